// Package pipeline runs the decision graph
// scanner → {monitor, researcher} → strategist → executor → risk_manager.
package pipeline

import (
	"encoding/json"
	"time"

	"sigma-trader/internal/errors"
	"sigma-trader/internal/models"
	"sigma-trader/internal/store"
)

// State is the record of one run. Each node owns one field; Err is set by
// the first node that fails and stops every node after it.
type State struct {
	RunID      string     `json:"run_id"`
	Symbol     string     `json:"symbol"`
	Override   string     `json:"user_selected_strategy,omitempty"`
	Expiry     *time.Time `json:"requested_expiry,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`

	Market   *models.MarketSnapshot   `json:"market_data,omitempty"`
	Research *models.ResearchSummary  `json:"research,omitempty"`
	Monitor  *models.MonitorSignal    `json:"monitor,omitempty"`
	Decision *models.StrategyDecision `json:"strategy_decision,omitempty"`
	Order    *models.Order            `json:"proposed_order,omitempty"`
	Risk     *models.RiskStatus       `json:"risk_status,omitempty"`
	Placed   bool                     `json:"placed"`

	Err *errors.StageError `json:"-"`
}

// Failure is the JSON form of a terminal error.
type Failure struct {
	Stage    string          `json:"stage"`
	Category errors.Category `json:"category"`
	Message  string          `json:"message"`
}

// MarshalJSON adds the terminal error, when set, as "error".
func (s *State) MarshalJSON() ([]byte, error) {
	type plain State
	out := struct {
		*plain
		Error *Failure `json:"error,omitempty"`
	}{plain: (*plain)(s)}
	if s.Err != nil {
		out.Error = &Failure{Stage: s.Err.Stage, Category: s.Err.Category, Message: s.Err.Err.Error()}
	}
	return json.Marshal(out)
}

// Failed reports whether the run ended with a terminal error.
func (s *State) Failed() bool {
	return s.Err != nil
}

// fail records err as the terminal error unless one is already set.
func (s *State) fail(stage string, err error) {
	if s.Err != nil || err == nil {
		return
	}
	var se *errors.StageError
	if errors.As(err, &se) {
		s.Err = se
		return
	}
	s.Err = errors.NewStageError(stage, err)
}

// Record summarizes the state for the run journal.
func (s *State) Record() *store.RunRecord {
	r := &store.RunRecord{
		ID:         s.RunID,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		Symbol:     s.Symbol,
		Placed:     s.Placed,
	}
	if s.Market != nil {
		r.Spot = s.Market.Spot
		r.VolIndex = s.Market.VolIndex
		r.Expiry = s.Market.Expiry
		r.Provenance = s.Market.Provenance
	}
	if s.Decision != nil {
		r.Strategy = s.Decision.Strategy
		r.SigmaMult = s.Decision.SigmaMult
		r.Source = s.Decision.Source
	}
	if s.Order != nil {
		r.Legs = s.Order.Clone().Legs
	}
	if s.Risk != nil {
		r.Risk = s.Risk.Decision
		r.RiskReason = s.Risk.Reason
	}
	if s.Err != nil {
		r.ErrStage = s.Err.Stage
		r.ErrMessage = s.Err.Err.Error()
	}
	return r
}
