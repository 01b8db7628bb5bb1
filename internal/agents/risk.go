package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"sigma-trader/internal/errors"
	"sigma-trader/internal/llm"
	"sigma-trader/internal/logging"
	"sigma-trader/internal/models"
)

const riskSystemPrompt = `You are a strict Risk Manager. Your job is to PROTECT CAPITAL.
Review the proposed options order against the market conditions.
Rules:
- Selling premium when IV is below 11% is poor risk/reward; reject it.
- Reject a Short Strangle when sentiment is Volatile.
- The strikes must make sense relative to the spot price.
Respond in JSON: {"decision": "approved|rejected", "reason": "..."}`

// DefaultMinVolIndex is the volatility floor for selling premium.
const DefaultMinVolIndex = 11.0

// RiskConfig holds the deterministic risk limits.
type RiskConfig struct {
	MinVolIndex float64
}

// RiskInput is what the risk gate reviews.
type RiskInput struct {
	Market   *models.MarketSnapshot
	Decision models.StrategyDecision
	Order    *models.Order
}

// RiskManager is the terminal gate. It never modifies the order and rejects
// whenever it cannot establish approval.
type RiskManager struct {
	BaseAgent
	parser *Parser
	cfg    RiskConfig
}

// NewRiskManager creates a risk manager.
func NewRiskManager(client llm.Client, parser *Parser, cfg RiskConfig, route Route) *RiskManager {
	if parser == nil {
		parser = MustParser()
	}
	if cfg.MinVolIndex <= 0 {
		cfg.MinVolIndex = DefaultMinVolIndex
	}
	return &RiskManager{
		BaseAgent: NewBaseAgent(NodeRisk, client, route),
		parser:    parser,
		cfg:       cfg,
	}
}

// Review returns the approval status for the order.
func (r *RiskManager) Review(ctx context.Context, in RiskInput) models.RiskStatus {
	logger := logging.FromContext(ctx).With().Str("agent", r.name).Logger()

	if err := r.PreCheck(in); err != nil {
		logger.Warn().Err(err).Msg("Order rejected by pre-check")
		return models.RiskStatus{
			Decision: models.RiskRejected,
			Reason:   err.Error(),
			Analysis: "Deterministic pre-check failed. LLM review skipped.",
		}
	}

	prompt, err := r.buildPrompt(in)
	if err != nil {
		return models.RiskStatus{Decision: models.RiskRejected, Reason: "order could not be encoded: " + err.Error()}
	}

	resp, err := r.ask(ctx, riskSystemPrompt, prompt)
	if err != nil {
		return models.RiskStatus{
			Decision:    models.RiskRejected,
			Reason:      "LLM Failure",
			Annotations: []string{"risk generation failed: " + err.Error()},
		}
	}

	parsed, perr := r.parser.ParseRisk(resp.Text)
	notes := []string{r.fallbackNote(resp)}
	if perr != nil {
		notes = append(notes, "risk response ambiguous; rejected")
	}
	status := models.RiskStatus{
		Decision:    parsed.Decision,
		Reason:      parsed.Reason,
		Analysis:    resp.Text,
		Provider:    resp.Provider,
		Model:       resp.Model,
		Annotations: annotations(notes...),
	}
	logger.Info().Str("decision", string(status.Decision)).Str("stage", string(parsed.Stage)).Msg("Order reviewed")
	return status
}

// PreCheck applies the rules that need no generation. It returns a
// *errors.RiskError naming the first violated rule.
func (r *RiskManager) PreCheck(in RiskInput) error {
	o := in.Order
	if o == nil || len(o.Legs) == 0 {
		return errors.NewRiskError("legs", 0, 1, "order has no legs")
	}
	if in.Market != nil && in.Market.VolIndex < r.cfg.MinVolIndex {
		return errors.NewRiskError("min_vol_index", in.Market.VolIndex, r.cfg.MinVolIndex,
			"volatility too low to sell premium")
	}
	for _, l := range o.Legs {
		if l.Quantity <= 0 {
			return errors.NewRiskError("quantity", float64(l.Quantity), 1,
				fmt.Sprintf("leg %s has non-positive quantity", l.Instrument))
		}
	}
	if msg := shapeViolation(o); msg != "" {
		return errors.NewRiskError("shape", float64(len(o.Legs)), 0, msg)
	}
	if o.Strategy == models.ShortStrangle && strings.EqualFold(in.Decision.MarketSentiment, SentimentVolatile) {
		return errors.NewRiskError("sentiment", 0, 0, "short strangle in a volatile market")
	}
	return nil
}

// shapeViolation checks that the legs match the declared strategy.
func shapeViolation(o *models.Order) string {
	var sellCall, sellPut, buyCall, buyPut []float64
	for _, l := range o.Legs {
		switch {
		case l.Action == models.ActionSell && l.Side == models.Call:
			sellCall = append(sellCall, l.Strike)
		case l.Action == models.ActionSell && l.Side == models.Put:
			sellPut = append(sellPut, l.Strike)
		case l.Action == models.ActionBuy && l.Side == models.Call:
			buyCall = append(buyCall, l.Strike)
		case l.Action == models.ActionBuy && l.Side == models.Put:
			buyPut = append(buyPut, l.Strike)
		}
	}
	if len(sellCall) != 1 || len(sellPut) != 1 {
		return "expected one short call and one short put"
	}
	switch o.Strategy {
	case models.ShortStrangle:
		if len(buyCall)+len(buyPut) != 0 {
			return "strangle must not carry long legs"
		}
		if sellCall[0] < sellPut[0] {
			return "strangle call strike below put strike"
		}
	case models.ShortStraddle:
		if len(buyCall)+len(buyPut) != 0 {
			return "straddle must not carry long legs"
		}
		if sellCall[0] != sellPut[0] {
			return "straddle legs at different strikes"
		}
	case models.IronFly:
		if sellCall[0] != sellPut[0] {
			return "iron fly short legs at different strikes"
		}
		if len(buyCall) != 1 || len(buyPut) != 1 {
			return "iron fly needs one long call and one long put"
		}
		if buyCall[0] <= sellCall[0] || buyPut[0] >= sellPut[0] {
			return "iron fly wings not outside the body"
		}
	default:
		return fmt.Sprintf("unknown strategy %q", o.Strategy)
	}
	return ""
}

func (r *RiskManager) buildPrompt(in RiskInput) (string, error) {
	orderJSON, err := json.MarshalIndent(in.Order.Clone(), "", "  ")
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if in.Market != nil {
		sb.WriteString(fmt.Sprintf("Spot Price: %.2f\n", in.Market.Spot))
		sb.WriteString(fmt.Sprintf("IV: %.2f%%\n", in.Market.VolIndex))
		sb.WriteString(fmt.Sprintf("Days to expiry: %d\n", in.Market.DaysToExpiry))
	}
	sentiment := in.Decision.MarketSentiment
	if sentiment == "" {
		sentiment = SentimentNeutral
	}
	sb.WriteString("Sentiment: " + sentiment + "\n")
	sb.WriteString(fmt.Sprintf("Strategy: %s (sigma %.2f)\n", in.Decision.Strategy, in.Decision.SigmaMult))
	sb.WriteString("Proposed Order:\n")
	sb.Write(orderJSON)
	sb.WriteString("\n")
	return sb.String(), nil
}
