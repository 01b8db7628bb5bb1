package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"sigma-trader/internal/errors"
	"sigma-trader/internal/logging"
	"sigma-trader/internal/resilience"
)

// Route is a named backend with its own default model.
type Route struct {
	Name         string
	Backend      Backend
	DefaultModel string
}

// Router dispatches requests to named routes. A request whose provider is
// missing or fails is retried once on the default route with that route's
// own default model, and the response names the route that answered.
type Router struct {
	routes   map[string]Route
	fallback string
	breakers *resilience.Registry
}

// NewRouter creates a router. fallback names the route used when the
// requested one is missing or failing.
func NewRouter(fallback string, breakers resilience.CircuitBreakerConfig, routes ...Route) (*Router, error) {
	r := &Router{
		routes:   make(map[string]Route, len(routes)),
		fallback: strings.ToLower(fallback),
		breakers: resilience.NewRegistry(breakers),
	}
	for _, rt := range routes {
		if rt.Backend == nil {
			continue
		}
		name := strings.ToLower(rt.Name)
		rt.Name = name
		r.routes[name] = rt
	}
	if len(r.routes) == 0 {
		return nil, errors.Wrap(errors.ErrProviderUnavailable, "no generation backends configured")
	}
	if _, ok := r.routes[r.fallback]; !ok {
		// any configured route can serve as the fallback
		names := r.Providers()
		r.fallback = names[0]
	}
	return r, nil
}

// Providers lists configured route names in sorted order.
func (r *Router) Providers() []string {
	names := make([]string, 0, len(r.routes))
	for n := range r.routes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Breakers exposes per-route circuit breaker statistics.
func (r *Router) Breakers() []resilience.CircuitBreakerStats {
	return r.breakers.AllStats()
}

// Query implements Client.
func (r *Router) Query(ctx context.Context, req Request) (Response, error) {
	logger := logging.FromContext(ctx)
	requested := strings.ToLower(req.Provider)
	if requested == "" {
		requested = r.fallback
	}

	var firstErr error
	if route, ok := r.routes[requested]; ok {
		model := req.Model
		if model == "" {
			model = route.DefaultModel
		}
		resp, err := r.call(ctx, route, req, model)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		firstErr = err
		logger.Warn().Err(err).Str("provider", requested).Msg("Generation failed on requested provider")
	} else {
		firstErr = fmt.Errorf("provider %q not configured", requested)
		logger.Warn().Str("provider", requested).Msg("Requested provider not configured")
	}

	if requested == r.fallback {
		return Response{}, errors.Wrapf(errors.ErrProviderUnavailable, "%v", firstErr)
	}

	// The requested model name belongs to the failed provider and is not reused.
	fb := r.routes[r.fallback]
	resp, err := r.call(ctx, fb, req, fb.DefaultModel)
	if err != nil {
		return Response{}, errors.Wrapf(errors.ErrProviderUnavailable, "%s: %v; %s: %v", requested, firstErr, fb.Name, err)
	}
	resp.FellBack = true
	return resp, nil
}

func (r *Router) call(ctx context.Context, route Route, req Request, model string) (Response, error) {
	start := time.Now()
	text, err := resilience.ExecuteWithResult(r.breakers.Get(route.Name), ctx, func(ctx context.Context) (string, error) {
		return route.Backend.Complete(ctx, req.System, req.User, model)
	})
	logging.LogAPICall(logging.FromContext(ctx), route.Name, model, time.Since(start), err)
	if err != nil {
		return Response{}, err
	}
	return Response{Text: text, Provider: route.Name, Model: model}, nil
}

var _ Client = (*Router)(nil)
