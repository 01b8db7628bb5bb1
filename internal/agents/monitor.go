package agents

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"sigma-trader/internal/errors"
	"sigma-trader/internal/knowledge"
	"sigma-trader/internal/llm"
	"sigma-trader/internal/logging"
	"sigma-trader/internal/models"
	"sigma-trader/internal/store"
	"sigma-trader/pkg/utils"
)

const monitorSystemPrompt = `You are a Portfolio Manager supervising short option positions.
Decide whether the open position should be held, adjusted or exited.
Rules:
- If spot has moved more than 2% from entry, ADJUST.
- If news is Bearish and the position has short puts, EXIT.
- Otherwise HOLD.
Respond in JSON: {"decision": "HOLD|ADJUST|EXIT", "reason": "..."}`

// PositionSource supplies the most recent placed order for an underlying.
type PositionSource interface {
	LastPosition(ctx context.Context, symbol string) (*store.RunRecord, error)
}

// Monitor reviews the open position against the current market.
type Monitor struct {
	BaseAgent
	positions PositionSource
	knowledge knowledge.Lookup
	parser    *Parser
}

// NewMonitor creates a position monitor. A nil position source means no
// position is ever open.
func NewMonitor(client llm.Client, positions PositionSource, lookup knowledge.Lookup, parser *Parser, route Route) *Monitor {
	if parser == nil {
		parser = MustParser()
	}
	return &Monitor{
		BaseAgent: NewBaseAgent(NodeMonitor, client, route),
		positions: positions,
		knowledge: lookup,
		parser:    parser,
	}
}

// Check produces the run's monitor signal. It never fails the run.
func (m *Monitor) Check(ctx context.Context, market *models.MarketSnapshot) models.MonitorSignal {
	logger := logging.FromContext(ctx).With().Str("agent", m.name).Logger()

	position, err := m.openPosition(ctx, market)
	if err != nil {
		logger.Warn().Err(err).Msg("Position lookup failed")
		return models.MonitorSignal{
			Action:      models.PositionHold,
			Reasoning:   "Position unknown.",
			Annotations: []string{"position lookup failed: " + err.Error()},
		}
	}
	if position == nil {
		return models.MonitorSignal{Action: models.PositionHold, Reasoning: "No open position."}
	}

	desc := describePosition(position)
	news := ""
	if m.knowledge != nil {
		if snippets, err := m.knowledge.Lookup(ctx, NewsTopic, knowledge.DefaultLimit); err == nil {
			news = knowledge.Join(snippets, "No news available.")
		}
	}

	resp, err := m.ask(ctx, monitorSystemPrompt, m.buildPrompt(market, position, desc, news))
	if err != nil {
		return models.MonitorSignal{
			Action:      models.PositionHold,
			Reasoning:   "Monitor unavailable.",
			Position:    desc,
			Annotations: []string{"monitor generation failed; holding"},
		}
	}

	parsed, perr := m.parser.ParseMonitor(resp.Text)
	var notes []string
	if perr != nil {
		notes = append(notes, "monitor response ambiguous; holding")
	}
	signal := models.MonitorSignal{
		Action:           parsed.Action,
		AdjustmentNeeded: parsed.Action != models.PositionHold,
		Reasoning:        parsed.Reason,
		Position:         desc,
		Annotations:      annotations(append(notes, m.fallbackNote(resp))...),
	}
	logger.Info().Str("action", string(signal.Action)).Msg("Position reviewed")
	return signal
}

// openPosition returns the last placed order that has not expired.
func (m *Monitor) openPosition(ctx context.Context, market *models.MarketSnapshot) (*store.RunRecord, error) {
	if m.positions == nil || market == nil {
		return nil, nil
	}
	run, err := m.positions.LastPosition(ctx, market.Symbol)
	if errors.Is(err, errors.ErrDataNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !run.Placed || run.Risk != models.RiskApproved || len(run.Legs) == 0 {
		return nil, nil
	}
	if run.Expiry.In(models.IST).Before(startOfDay(market.FetchedAt)) {
		return nil, nil
	}
	return run, nil
}

func (m *Monitor) buildPrompt(market *models.MarketSnapshot, run *store.RunRecord, desc, news string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Position: %s\n", desc))
	sb.WriteString(fmt.Sprintf("Entry spot: %.2f on %s\n", run.Spot, run.StartedAt.In(models.IST).Format(time.DateOnly)))
	sb.WriteString(fmt.Sprintf("Current spot: %.2f (move %s)\n", market.Spot, utils.FormatPercent(SpotMove(run.Spot, market.Spot))))
	sb.WriteString(fmt.Sprintf("India VIX: %.2f\n", market.VolIndex))
	if news != "" {
		sb.WriteString("News:\n" + news + "\n")
	}
	return sb.String()
}

// SpotMove returns the percentage change from entry to current.
func SpotMove(entry, current float64) float64 {
	if entry == 0 {
		return 0
	}
	return math.Round((current-entry)/entry*10000) / 100
}

func describePosition(run *store.RunRecord) string {
	parts := make([]string, 0, len(run.Legs))
	for _, l := range run.Legs {
		parts = append(parts, fmt.Sprintf("%s %s %.0f", l.Action, l.Side, l.Strike))
	}
	return fmt.Sprintf("%s [%s]", run.Strategy, strings.Join(parts, ", "))
}
