package llm

import (
	"context"
	"strings"
	"sync"
)

// Reply is a canned answer. It is used for the first request whose system
// or user prompt contains Match; an empty Match matches everything.
type Reply struct {
	Match string
	Text  string
	Err   error
}

// ScriptedClient is a deterministic Client for tests and offline runs. It
// reports the requested provider and model back unchanged.
type ScriptedClient struct {
	replies []Reply

	mu    sync.Mutex
	calls []Request
}

// NewScriptedClient creates a client answering from replies in order of preference.
func NewScriptedClient(replies ...Reply) *ScriptedClient {
	return &ScriptedClient{replies: replies}
}

// Query implements Client.
func (s *ScriptedClient) Query(ctx context.Context, req Request) (Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	for _, r := range s.replies {
		if r.Match == "" || strings.Contains(req.System, r.Match) || strings.Contains(req.User, r.Match) {
			if r.Err != nil {
				return Response{}, r.Err
			}
			provider := req.Provider
			if provider == "" {
				provider = "scripted"
			}
			return Response{Text: r.Text, Provider: provider, Model: req.Model}, nil
		}
	}
	return Response{Provider: req.Provider, Model: req.Model}, nil
}

// Calls returns a copy of every request received.
func (s *ScriptedClient) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallsMatching counts requests whose prompts contain substr.
func (s *ScriptedClient) CallsMatching(substr string) int {
	n := 0
	for _, c := range s.Calls() {
		if strings.Contains(c.System, substr) || strings.Contains(c.User, substr) {
			n++
		}
	}
	return n
}

var _ Client = (*ScriptedClient)(nil)
