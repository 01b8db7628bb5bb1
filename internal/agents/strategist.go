package agents

import (
	"context"
	"fmt"
	"strings"

	"sigma-trader/internal/knowledge"
	"sigma-trader/internal/llm"
	"sigma-trader/internal/logging"
	"sigma-trader/internal/models"
)

const strategistSystemPrompt = `You are an options strategist for Indian index weeklies.
Choose between 'Short Strangle' for a range-bound market and 'Short Straddle' for a low-volatility market.
Recommend a sigma multiplier for strike distance: 1.0 (aggressive), 1.5 (balanced) or 2.0 (conservative).
Respond in JSON: {"strategy": "...", "recommended_sigma": 1.5, "rationale": "...", "constraints": "..."}`

// StrategistConfig bounds the strategist's output.
type StrategistConfig struct {
	DefaultStrategy models.Strategy
	DefaultSigma    float64
	MinSigma        float64
	MaxSigma        float64
}

// DefaultStrategistConfig returns the fallback strategy and sigma bounds.
func DefaultStrategistConfig() StrategistConfig {
	return StrategistConfig{
		DefaultStrategy: models.DefaultStrategy,
		DefaultSigma:    models.DefaultSigmaMult,
		MinSigma:        models.MinSigmaMult,
		MaxSigma:        models.MaxSigmaMult,
	}
}

// StrategyInput is everything the strategist sees for one run.
type StrategyInput struct {
	Market   *models.MarketSnapshot
	Research models.ResearchSummary
	Monitor  models.MonitorSignal
	// Override skips generation when set.
	Override models.Strategy
}

// Strategist picks the strategy and sigma multiplier.
type Strategist struct {
	BaseAgent
	knowledge knowledge.Lookup
	parser    *Parser
	cfg       StrategistConfig
}

// NewStrategist creates a strategist.
func NewStrategist(client llm.Client, lookup knowledge.Lookup, parser *Parser, cfg StrategistConfig, route Route) *Strategist {
	if parser == nil {
		parser = MustParser()
	}
	def := DefaultStrategistConfig()
	if cfg.DefaultStrategy == "" {
		cfg.DefaultStrategy = def.DefaultStrategy
	}
	if cfg.DefaultSigma <= 0 {
		cfg.DefaultSigma = def.DefaultSigma
	}
	if cfg.MinSigma <= 0 {
		cfg.MinSigma = def.MinSigma
	}
	if cfg.MaxSigma < cfg.MinSigma {
		cfg.MaxSigma = def.MaxSigma
	}
	return &Strategist{
		BaseAgent: NewBaseAgent(NodeStrategist, client, route),
		knowledge: lookup,
		parser:    parser,
		cfg:       cfg,
	}
}

// Decide produces the strategy decision. Generation problems fall back to
// the configured default strategy and are recorded as annotations.
func (s *Strategist) Decide(ctx context.Context, in StrategyInput) models.StrategyDecision {
	logger := logging.FromContext(ctx)

	strangleRules := s.rules(ctx, models.ShortStrangle)
	straddleRules := s.rules(ctx, models.ShortStraddle)

	var decision models.StrategyDecision
	if in.Override != "" {
		decision = s.manual(ctx, in, strangleRules, straddleRules)
	} else {
		decision = s.generate(ctx, in, strangleRules, straddleRules)
	}

	if in.Monitor.AdjustmentNeeded {
		decision.Annotations = append(decision.Annotations,
			fmt.Sprintf("open position flagged %s: %s", in.Monitor.Action, truncateString(in.Monitor.Reasoning, 120)))
	}
	decision.Annotations = append(decision.Annotations, in.Research.Annotations...)

	logging.LogDecision(logger, string(decision.Strategy), decision.SigmaMult, string(decision.Source))
	return decision
}

func (s *Strategist) manual(ctx context.Context, in StrategyInput, strangleRules, straddleRules string) models.StrategyDecision {
	constraints := strangleRules
	switch in.Override {
	case models.ShortStraddle:
		constraints = straddleRules
	case models.IronFly:
		constraints = s.rules(ctx, models.IronFly)
	}
	return models.StrategyDecision{
		Strategy:        in.Override,
		SigmaMult:       s.cfg.DefaultSigma,
		Rationale:       fmt.Sprintf("User manually selected %s.", in.Override),
		Constraints:     constraints,
		MarketSentiment: in.Research.Sentiment,
		Analysis:        "Manual Override. LLM analysis skipped.",
		Source:          models.SourceManual,
	}
}

func (s *Strategist) generate(ctx context.Context, in StrategyInput, strangleRules, straddleRules string) models.StrategyDecision {
	vol := 0.0
	if in.Market != nil {
		vol = in.Market.VolIndex
	}

	resp, err := s.ask(ctx, strategistSystemPrompt, s.buildPrompt(in, strangleRules, straddleRules))
	if err != nil {
		d := s.fallback(in, strangleRules, straddleRules)
		d.Rationale = fmt.Sprintf("Defaulting to safer strategy due to LLM error. IV is %.2f%%.", vol)
		d.Annotations = []string{"strategy generation failed: " + err.Error()}
		return d
	}

	parsed, perr := s.parser.ParseStrategy(resp.Text)
	if perr != nil {
		d := s.fallback(in, strangleRules, straddleRules)
		d.Rationale = fmt.Sprintf("Defaulting to safer strategy; response was inconclusive. IV is %.2f%%.", vol)
		d.Analysis = resp.Text
		d.Annotations = annotations("strategy response ambiguous", s.fallbackNote(resp))
		return d
	}

	notes := []string{s.fallbackNote(resp)}
	sigma := parsed.Sigma
	if !parsed.SigmaFound {
		sigma = s.cfg.DefaultSigma
		notes = append(notes, fmt.Sprintf("no sigma in response; using %.1f", sigma))
	}
	if clamped := s.clamp(sigma); clamped != sigma {
		notes = append(notes, fmt.Sprintf("sigma %.2f clamped to %.2f", sigma, clamped))
		sigma = clamped
	}

	constraints := parsed.Constraints
	if constraints == "" {
		constraints = strangleRules
		if parsed.Strategy == models.ShortStraddle {
			constraints = straddleRules
		}
	}
	return models.StrategyDecision{
		Strategy:        parsed.Strategy,
		SigmaMult:       sigma,
		Rationale:       parsed.Rationale,
		Constraints:     constraints,
		MarketSentiment: in.Research.Sentiment,
		Analysis:        resp.Text,
		Source:          models.SourceModel,
		Annotations:     annotations(notes...),
	}
}

func (s *Strategist) fallback(in StrategyInput, strangleRules, straddleRules string) models.StrategyDecision {
	constraints := strangleRules
	if s.cfg.DefaultStrategy == models.ShortStraddle {
		constraints = straddleRules
	}
	return models.StrategyDecision{
		Strategy:        s.cfg.DefaultStrategy,
		SigmaMult:       s.clamp(s.cfg.DefaultSigma),
		Constraints:     constraints,
		MarketSentiment: in.Research.Sentiment,
		Source:          models.SourceDefault,
	}
}

func (s *Strategist) clamp(v float64) float64 {
	if v < s.cfg.MinSigma {
		return s.cfg.MinSigma
	}
	if v > s.cfg.MaxSigma {
		return s.cfg.MaxSigma
	}
	return v
}

func (s *Strategist) buildPrompt(in StrategyInput, strangleRules, straddleRules string) string {
	var sb strings.Builder
	if in.Market != nil {
		sb.WriteString(fmt.Sprintf("Market IV: %.2f%%\n", in.Market.VolIndex))
		sb.WriteString(fmt.Sprintf("Spot: %.2f, days to expiry: %d\n", in.Market.Spot, in.Market.DaysToExpiry))
	}
	sb.WriteString("Strangle Rules:\n" + strangleRules + "\n")
	sb.WriteString("Straddle Rules:\n" + straddleRules + "\n")
	news := in.Research.Summary
	if news == "" {
		news = "No news available."
	}
	sb.WriteString("News:\n" + news + "\n")
	if in.Research.Sentiment != "" {
		sb.WriteString("Sentiment: " + in.Research.Sentiment + "\n")
	}
	if in.Monitor.Position != "" {
		sb.WriteString(fmt.Sprintf("Open position: %s (monitor: %s)\n", in.Monitor.Position, in.Monitor.Action))
	}
	return sb.String()
}

// rules returns the management rules stored for a strategy.
func (s *Strategist) rules(ctx context.Context, strategy models.Strategy) string {
	const none = "No specific rules found."
	if s.knowledge == nil {
		return none
	}
	topic := string(strategy) + " management"
	snippets, err := s.knowledge.Lookup(ctx, topic, knowledge.DefaultLimit)
	if err != nil {
		logger := logging.FromContext(ctx)
		logger.Warn().Err(err).Str("topic", topic).Msg("Rules lookup failed")
		return none
	}
	var exact []knowledge.Snippet
	for _, sn := range snippets {
		if strings.EqualFold(sn.Topic, topic) {
			exact = append(exact, sn)
		}
	}
	if len(exact) > 0 {
		snippets = exact
	}
	return knowledge.Join(snippets, none)
}
