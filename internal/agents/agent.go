// Package agents provides the decision nodes of the trading pipeline: market
// scanner, researcher, position monitor, strategist, executor and risk manager.
package agents

import (
	"context"
	"fmt"
	"strings"

	"sigma-trader/internal/errors"
	"sigma-trader/internal/llm"
	"sigma-trader/internal/logging"
)

// Node names.
const (
	NodeScanner    = "scanner"
	NodeMonitor    = "monitor"
	NodeResearcher = "researcher"
	NodeStrategist = "strategist"
	NodeExecutor   = "executor"
	NodeRisk       = "risk_manager"
)

// Route selects the generation provider and model a node prefers. Empty
// values use the client defaults.
type Route struct {
	Provider string
	Model    string
}

// BaseAgent provides common functionality for nodes that consult a model.
type BaseAgent struct {
	name   string
	client llm.Client
	route  Route
}

// NewBaseAgent creates a base agent with the given name, client and route.
func NewBaseAgent(name string, client llm.Client, route Route) BaseAgent {
	return BaseAgent{name: name, client: client, route: route}
}

// Name returns the agent's name.
func (b *BaseAgent) Name() string {
	return b.name
}

// ask sends one prompt pair on the agent's route.
func (b *BaseAgent) ask(ctx context.Context, system, user string) (llm.Response, error) {
	if b.client == nil {
		return llm.Response{}, errors.NewAgentError(b.name, "query", errors.Wrap(errors.ErrProviderUnavailable, "no generation client configured"))
	}
	resp, err := b.client.Query(ctx, llm.Request{
		System:   system,
		User:     user,
		Provider: b.route.Provider,
		Model:    b.route.Model,
	})
	if err != nil {
		logger := logging.FromContext(ctx)
		logger.Warn().Err(err).Str("agent", b.name).Msg("Generation failed")
		return resp, errors.NewAgentError(b.name, "query", err)
	}
	return resp, nil
}

// fallbackNote describes a provider substitution, or "" when none happened.
func (b *BaseAgent) fallbackNote(resp llm.Response) string {
	if !resp.FellBack {
		return ""
	}
	requested := b.route.Provider
	if requested == "" {
		requested = "default"
	}
	return fmt.Sprintf("provider fallback: requested %s, answered by %s/%s", requested, resp.Provider, resp.Model)
}

// annotations collects non-empty notes.
func annotations(notes ...string) []string {
	var out []string
	for _, n := range notes {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
