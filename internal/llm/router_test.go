package llm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigma-trader/internal/errors"
	"sigma-trader/internal/resilience"
)

type stubBackend struct {
	text string
	err  error

	mu     sync.Mutex
	models []string
}

func (s *stubBackend) Complete(ctx context.Context, system, user, model string) (string, error) {
	s.mu.Lock()
	s.models = append(s.models, model)
	s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	return s.text, nil
}

func (s *stubBackend) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.models...)
}

func breakerCfg() resilience.CircuitBreakerConfig {
	return resilience.CircuitBreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Hour}
}

func TestRouterUsesRequestedProvider(t *testing.T) {
	groq := &stubBackend{text: "approved"}
	oa := &stubBackend{text: "from openai"}
	r, err := NewRouter(ProviderOpenAI, breakerCfg(),
		Route{Name: ProviderOpenAI, Backend: oa, DefaultModel: DefaultOpenAIModel},
		Route{Name: ProviderGroq, Backend: groq, DefaultModel: DefaultGroqModel},
	)
	require.NoError(t, err)

	resp, err := r.Query(context.Background(), Request{System: "s", User: "u", Provider: "groq"})
	require.NoError(t, err)
	assert.Equal(t, "approved", resp.Text)
	assert.Equal(t, ProviderGroq, resp.Provider)
	assert.Equal(t, DefaultGroqModel, resp.Model)
	assert.False(t, resp.FellBack)
	assert.Empty(t, oa.seen())
}

func TestRouterFallbackKeepsHonestIdentity(t *testing.T) {
	groq := &stubBackend{err: errors.New("503 service unavailable")}
	oa := &stubBackend{text: "rejected"}
	r, err := NewRouter(ProviderOpenAI, breakerCfg(),
		Route{Name: ProviderOpenAI, Backend: oa, DefaultModel: DefaultOpenAIModel},
		Route{Name: ProviderGroq, Backend: groq, DefaultModel: DefaultGroqModel},
	)
	require.NoError(t, err)

	resp, err := r.Query(context.Background(), Request{Provider: "groq", Model: "llama-3.1-8b-instant"})
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, resp.Provider)
	assert.Equal(t, DefaultOpenAIModel, resp.Model)
	assert.True(t, resp.FellBack)
	// the llama model name is never sent to openai
	assert.Equal(t, []string{DefaultOpenAIModel}, oa.seen())
	assert.Equal(t, []string{"llama-3.1-8b-instant"}, groq.seen())
}

func TestRouterMissingProviderFallsBack(t *testing.T) {
	oa := &stubBackend{text: "ok"}
	r, err := NewRouter(ProviderOpenAI, breakerCfg(), Route{Name: ProviderOpenAI, Backend: oa, DefaultModel: DefaultOpenAIModel})
	require.NoError(t, err)

	resp, err := r.Query(context.Background(), Request{Provider: ProviderGroq})
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, resp.Provider)
	assert.Equal(t, DefaultOpenAIModel, resp.Model)
	assert.True(t, resp.FellBack)
}

func TestRouterAllProvidersDown(t *testing.T) {
	down := &stubBackend{err: errors.New("connection refused")}
	r, err := NewRouter(ProviderOpenAI, breakerCfg(),
		Route{Name: ProviderOpenAI, Backend: down, DefaultModel: DefaultOpenAIModel},
		Route{Name: ProviderGroq, Backend: down, DefaultModel: DefaultGroqModel},
	)
	require.NoError(t, err)

	_, err = r.Query(context.Background(), Request{Provider: ProviderGroq})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrProviderUnavailable))
}

func TestRouterCircuitOpensPerBackend(t *testing.T) {
	groq := &stubBackend{err: errors.New("429")}
	oa := &stubBackend{text: "ok"}
	r, err := NewRouter(ProviderOpenAI, breakerCfg(),
		Route{Name: ProviderOpenAI, Backend: oa, DefaultModel: DefaultOpenAIModel},
		Route{Name: ProviderGroq, Backend: groq, DefaultModel: DefaultGroqModel},
	)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := r.Query(context.Background(), Request{Provider: ProviderGroq})
		require.NoError(t, err)
	}
	// two failures open the groq breaker; later calls skip the backend
	assert.Len(t, groq.seen(), 2)
	assert.Len(t, oa.seen(), 4)
}

func TestNewRouterRequiresBackend(t *testing.T) {
	_, err := NewRouter(ProviderOpenAI, breakerCfg())
	assert.True(t, errors.Is(err, errors.ErrProviderUnavailable))
}

func TestScriptedClient(t *testing.T) {
	s := NewScriptedClient(
		Reply{Match: "Risk Manager", Text: `{"decision": "approved"}`},
		Reply{Match: "Strategist", Err: errors.ErrProviderUnavailable},
		Reply{Text: "fallback"},
	)

	resp, err := s.Query(context.Background(), Request{System: "You are the Risk Manager", Provider: "groq"})
	require.NoError(t, err)
	assert.Equal(t, `{"decision": "approved"}`, resp.Text)
	assert.Equal(t, "groq", resp.Provider)

	_, err = s.Query(context.Background(), Request{System: "You are the Strategist"})
	assert.Error(t, err)

	resp, _ = s.Query(context.Background(), Request{User: "anything"})
	assert.Equal(t, "fallback", resp.Text)
	assert.Equal(t, 1, s.CallsMatching("Risk Manager"))
	assert.Len(t, s.Calls(), 3)
}
