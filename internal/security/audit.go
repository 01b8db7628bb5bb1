// Package security keeps the audit trail of decisions, orders and sessions
// and masks credentials before they reach any log.
package security

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"

	"sigma-trader/internal/models"
)

// AuditEventType represents the type of audit event.
type AuditEventType string

const (
	// Session events
	AuditLogin  AuditEventType = "LOGIN"
	AuditLogout AuditEventType = "LOGOUT"

	// Pipeline events
	AuditDecision  AuditEventType = "DECISION"
	AuditRunFailed AuditEventType = "RUN_FAILED"

	// Order events
	AuditOrderPlaced  AuditEventType = "ORDER_PLACED"
	AuditOrderBlocked AuditEventType = "ORDER_BLOCKED"
)

// AuditEvent represents a single audit log entry.
type AuditEvent struct {
	Timestamp  time.Time              `json:"timestamp"`
	EventType  AuditEventType         `json:"event_type"`
	RunID      string                 `json:"run_id,omitempty"`
	Symbol     string                 `json:"symbol,omitempty"`
	Instrument string                 `json:"instrument,omitempty"`
	OrderID    string                 `json:"order_id,omitempty"`
	Action     string                 `json:"action,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Success    bool                   `json:"success"`
	ErrorMsg   string                 `json:"error,omitempty"`
	SessionID  string                 `json:"session_id"`
}

// AuditLogger appends JSON audit events, one per line.
type AuditLogger struct {
	writer    io.WriteCloser
	mu        sync.Mutex
	sessionID string
	now       func() time.Time
}

// AuditConfig holds audit logger configuration.
type AuditConfig struct {
	LogDir     string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// DefaultAuditConfig returns the default audit configuration under dir.
func DefaultAuditConfig(dir string) AuditConfig {
	return AuditConfig{
		LogDir:     filepath.Join(dir, "audit"),
		MaxSize:    50,
		MaxBackups: 30,
		MaxAge:     365,
		Compress:   true,
	}
}

// NewAuditLogger creates a rotating audit logger at LogDir/audit.log.
func NewAuditLogger(cfg AuditConfig) (*AuditLogger, error) {
	if err := os.MkdirAll(cfg.LogDir, 0700); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}
	return newAuditLogger(&lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, "audit.log"),
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}), nil
}

func newAuditLogger(w io.WriteCloser) *AuditLogger {
	return &AuditLogger{writer: w, sessionID: uuid.NewString(), now: time.Now}
}

// Log writes an event. Error text is masked.
func (al *AuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	al.mu.Lock()
	defer al.mu.Unlock()

	event.Timestamp = al.now().UTC()
	event.SessionID = al.sessionID
	event.ErrorMsg = MaskSecrets(event.ErrorMsg)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serializing audit event: %w", err)
	}
	if _, err := al.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}
	return nil
}

// LogLogin logs a login attempt.
func (al *AuditLogger) LogLogin(ctx context.Context, success bool, errorMsg string) error {
	return al.Log(ctx, AuditEvent{EventType: AuditLogin, Success: success, ErrorMsg: errorMsg})
}

// LogLogout logs a logout.
func (al *AuditLogger) LogLogout(ctx context.Context, success bool, errorMsg string) error {
	return al.Log(ctx, AuditEvent{EventType: AuditLogout, Success: success, ErrorMsg: errorMsg})
}

// LogDecision logs the strategy and risk verdict of a completed run.
func (al *AuditLogger) LogDecision(ctx context.Context, runID, symbol string, d *models.StrategyDecision, r *models.RiskStatus) error {
	details := map[string]interface{}{}
	if d != nil {
		details["strategy"] = d.Strategy
		details["sigma_mult"] = d.SigmaMult
		details["source"] = d.Source
		details["rationale"] = d.Rationale
	}
	action := ""
	if r != nil {
		action = string(r.Decision)
		details["risk_reason"] = r.Reason
	}
	return al.Log(ctx, AuditEvent{
		EventType: AuditDecision,
		RunID:     runID,
		Symbol:    symbol,
		Action:    action,
		Details:   details,
		Success:   r.Approved(),
	})
}

// LogRunFailed logs a run stopped by a node error.
func (al *AuditLogger) LogRunFailed(ctx context.Context, runID, symbol, stage, category, errorMsg string) error {
	return al.Log(ctx, AuditEvent{
		EventType: AuditRunFailed,
		RunID:     runID,
		Symbol:    symbol,
		Details:   map[string]interface{}{"stage": stage, "category": category},
		ErrorMsg:  errorMsg,
	})
}

// LogOrderPlaced logs one leg submission. A leg without an order id failed.
func (al *AuditLogger) LogOrderPlaced(ctx context.Context, runID string, leg models.Leg, orderType models.OrderType, errorMsg string) error {
	event := AuditEvent{
		EventType:  AuditOrderPlaced,
		RunID:      runID,
		Instrument: leg.Instrument,
		Action:     string(leg.Action),
		Success:    leg.OrderID != nil,
		ErrorMsg:   errorMsg,
		Details: map[string]interface{}{
			"side":       leg.Side,
			"strike":     leg.Strike,
			"quantity":   leg.Quantity,
			"order_type": orderType,
		},
	}
	if leg.OrderID != nil {
		event.OrderID = *leg.OrderID
		event.ErrorMsg = ""
	}
	return al.Log(ctx, event)
}

// LogOrderBlocked logs a placement refused before reaching the gateway.
func (al *AuditLogger) LogOrderBlocked(ctx context.Context, runID, symbol, reason string) error {
	return al.Log(ctx, AuditEvent{
		EventType: AuditOrderBlocked,
		RunID:     runID,
		Symbol:    symbol,
		ErrorMsg:  reason,
	})
}

// Close closes the audit logger.
func (al *AuditLogger) Close() error {
	return al.writer.Close()
}
