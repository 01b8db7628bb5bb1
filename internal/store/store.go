// Package store provides persistence for completed pipeline runs.
package store

import (
	"context"
	"time"

	"sigma-trader/internal/models"
)

// RunRecord is the journal summary of one pipeline run.
type RunRecord struct {
	ID         string                `json:"id"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
	Symbol     string                `json:"symbol"`
	Spot       float64               `json:"spot_price"`
	VolIndex   float64               `json:"iv"`
	Expiry     time.Time             `json:"expiry_date"`
	Provenance models.Provenance     `json:"data_source,omitempty"`
	Strategy   models.Strategy       `json:"strategy,omitempty"`
	SigmaMult  float64               `json:"sigma_mult,omitempty"`
	Source     models.DecisionSource `json:"decision_source,omitempty"`
	Legs       []models.Leg          `json:"legs,omitempty"`
	Risk       models.RiskDecision   `json:"risk_status,omitempty"`
	RiskReason string                `json:"risk_reason,omitempty"`
	Placed     bool                  `json:"placed"`
	ErrStage   string                `json:"error_stage,omitempty"`
	ErrMessage string                `json:"error,omitempty"`
}

// Failed reports whether the run ended with a terminal error.
func (r *RunRecord) Failed() bool {
	return r.ErrStage != "" || r.ErrMessage != ""
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Symbol    string
	StartDate time.Time
	EndDate   time.Time
	// Completed excludes failed runs.
	Completed bool
	// Placed keeps only approved runs whose legs were sent to the gateway.
	Placed bool
	Limit     int
}

// Journal records pipeline runs.
type Journal interface {
	SaveRun(ctx context.Context, run *RunRecord) error
	LastRun(ctx context.Context, symbol string) (*RunRecord, error)
	LastPosition(ctx context.Context, symbol string) (*RunRecord, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]RunRecord, error)
	Close() error
}
