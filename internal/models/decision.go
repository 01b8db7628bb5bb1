package models

import (
	"fmt"
	"strings"
)

// Strategy is the enumerated set of option strategies the pipeline can trade.
type Strategy string

const (
	ShortStrangle Strategy = "Short Strangle"
	ShortStraddle Strategy = "Short Straddle"
	IronFly       Strategy = "Iron Fly"
)

// DefaultStrategy is the lowest-risk fallback.
const DefaultStrategy = ShortStrangle

// Strategies lists every supported strategy.
var Strategies = []Strategy{ShortStrangle, ShortStraddle, IronFly}

// ParseStrategy resolves a strategy name case-insensitively.
func ParseStrategy(name string) (Strategy, error) {
	n := strings.TrimSpace(name)
	for _, s := range Strategies {
		if strings.EqualFold(n, string(s)) {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown strategy: %q", name)
}

// Sigma multiplier domain.
const (
	MinSigmaMult     = 0.5
	MaxSigmaMult     = 3.0
	DefaultSigmaMult = 1.0
)

// ClampSigma bounds a multiplier to [MinSigmaMult, MaxSigmaMult].
func ClampSigma(v float64) float64 {
	if v < MinSigmaMult {
		return MinSigmaMult
	}
	if v > MaxSigmaMult {
		return MaxSigmaMult
	}
	return v
}

// DecisionSource records how the strategy was chosen.
type DecisionSource string

const (
	SourceManual  DecisionSource = "MANUAL"
	SourceModel   DecisionSource = "MODEL"
	SourceDefault DecisionSource = "DEFAULT"
)

// StrategyDecision is the strategist's output. It is not modified after creation.
type StrategyDecision struct {
	Strategy        Strategy       `json:"strategy"`
	SigmaMult       float64        `json:"sigma_mult"`
	Rationale       string         `json:"rationale"`
	Constraints     string         `json:"constraints"`
	MarketSentiment string         `json:"market_sentiment"`
	Analysis        string         `json:"analysis"`
	Source          DecisionSource `json:"source"`
	Annotations     []string       `json:"annotations,omitempty"`
}

// ResearchSummary is the researcher's output.
type ResearchSummary struct {
	Summary     string   `json:"summary"`
	Sentiment   string   `json:"sentiment,omitempty"`
	Headlines   []string `json:"headlines,omitempty"`
	Provider    string   `json:"provider,omitempty"`
	Model       string   `json:"model,omitempty"`
	Annotations []string `json:"annotations,omitempty"`
}

// PositionAction is the monitor's recommendation for the open position.
type PositionAction string

const (
	PositionHold   PositionAction = "HOLD"
	PositionAdjust PositionAction = "ADJUST"
	PositionExit   PositionAction = "EXIT"
)

// MonitorSignal is the position monitor's output.
type MonitorSignal struct {
	Action           PositionAction `json:"action"`
	AdjustmentNeeded bool           `json:"adjustment_needed"`
	Reasoning        string         `json:"reasoning"`
	Position         string         `json:"position,omitempty"`
	Annotations      []string       `json:"annotations,omitempty"`
}

// RiskDecision is the risk gate verdict.
type RiskDecision string

const (
	RiskApproved RiskDecision = "approved"
	RiskRejected RiskDecision = "rejected"
)

// RiskStatus is the risk manager's output.
type RiskStatus struct {
	Decision    RiskDecision `json:"decision"`
	Reason      string       `json:"reason"`
	Analysis    string       `json:"analysis"`
	Provider    string       `json:"provider,omitempty"`
	Model       string       `json:"model,omitempty"`
	Annotations []string     `json:"annotations,omitempty"`
}

// Approved reports whether the order passed the gate.
func (r *RiskStatus) Approved() bool {
	return r != nil && r.Decision == RiskApproved
}
