package security

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigma-trader/internal/models"
)

type nopCloser struct{ *bytes.Buffer }

func (nopCloser) Close() error { return nil }

func readEvents(t *testing.T, buf *bytes.Buffer) []AuditEvent {
	t.Helper()
	var events []AuditEvent
	scanner := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for scanner.Scan() {
		var e AuditEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		events = append(events, e)
	}
	return events
}

func TestAuditLoggerEvents(t *testing.T) {
	buf := &bytes.Buffer{}
	al := newAuditLogger(nopCloser{buf})
	al.now = func() time.Time { return time.Date(2024, 10, 21, 10, 0, 0, 0, models.IST) }
	ctx := context.Background()

	decision := &models.StrategyDecision{Strategy: models.ShortStrangle, SigmaMult: 1, Source: models.SourceModel}
	risk := &models.RiskStatus{Decision: models.RiskApproved, Reason: "ok"}
	require.NoError(t, al.LogDecision(ctx, "run-1", "NIFTY", decision, risk))

	id := "PAPER-000001"
	leg := models.Leg{Side: models.Call, Strike: 25450, Instrument: "NIFTY24OCT2425450CE", Quantity: 50, Action: models.ActionSell, OrderID: &id}
	require.NoError(t, al.LogOrderPlaced(ctx, "run-1", leg, models.OrderTypeMarket, ""))

	failed := leg
	failed.OrderID = nil
	require.NoError(t, al.LogOrderPlaced(ctx, "run-1", failed, models.OrderTypeMarket, "rejected: api_key=abcd1234efgh5678"))

	events := readEvents(t, buf)
	require.Len(t, events, 3)

	assert.Equal(t, AuditDecision, events[0].EventType)
	assert.True(t, events[0].Success)
	assert.Equal(t, "approved", events[0].Action)
	assert.Equal(t, "Short Strangle", events[0].Details["strategy"])

	assert.Equal(t, "PAPER-000001", events[1].OrderID)
	assert.True(t, events[1].Success)

	assert.False(t, events[2].Success)
	assert.NotContains(t, events[2].ErrorMsg, "abcd1234efgh5678")
	assert.Contains(t, events[2].ErrorMsg, "api_key=")

	for _, e := range events {
		assert.Equal(t, events[0].SessionID, e.SessionID)
		assert.Equal(t, "2024-10-21T04:30:00Z", e.Timestamp.Format(time.RFC3339))
	}
}

func TestAuditDecisionWithoutRisk(t *testing.T) {
	buf := &bytes.Buffer{}
	al := newAuditLogger(nopCloser{buf})
	require.NoError(t, al.LogDecision(context.Background(), "run-2", "NIFTY", nil, nil))

	events := readEvents(t, buf)
	require.Len(t, events, 1)
	assert.False(t, events[0].Success)
}

func TestNewAuditLoggerWritesFile(t *testing.T) {
	dir := t.TempDir()
	al, err := NewAuditLogger(DefaultAuditConfig(dir))
	require.NoError(t, err)
	require.NoError(t, al.LogLogin(context.Background(), true, ""))
	require.NoError(t, al.Close())

	data, err := os.ReadFile(filepath.Join(dir, "audit", "audit.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"event_type":"LOGIN"`)
}

func TestMaskSecrets(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		hidden string
	}{
		{"query parameter", "GET /session?api_key=kitekey123456&x=1", "kitekey123456"},
		{"openai key", "invalid key sk-abcdefghijklmnopqrstuvwx", "sk-abcdefghijklmnopqrstuvwx"},
		{"groq key", "auth gsk_abcdefghijklmnopqrstuvwx failed", "gsk_abcdefghijklmnopqrstuvwx"},
		{"access token", "access_token: tok_9f8e7d6c5b4a", "tok_9f8e7d6c5b4a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, ContainsSecret(tt.input))
			out := MaskSecrets(tt.input)
			assert.NotContains(t, out, tt.hidden)
		})
	}
	assert.Equal(t, "no secrets here", MaskSecrets("no secrets here"))
	assert.False(t, ContainsSecret("no secrets here"))
}

func TestMaskCredentialProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	properties := gopter.NewProperties(parameters)

	// Property: masking preserves length
	properties.Property("MaskCredential preserves length", prop.ForAll(
		func(s string) bool {
			return len(MaskCredential(s)) == len(s)
		},
		gen.AlphaString(),
	))

	// Property: long credentials never appear unmasked
	properties.Property("MaskCredential hides the middle", prop.ForAll(
		func(s string) bool {
			masked := MaskCredential(s)
			return masked != s && masked[:4] == s[:4] && masked[len(s)-4:] == s[len(s)-4:]
		},
		gen.RegexMatch(`[a-z0-9]{9,40}`),
	))

	properties.TestingRun(t)
}
