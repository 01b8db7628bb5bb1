package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"sigma-trader/internal/agents"
	"sigma-trader/internal/errors"
	"sigma-trader/internal/logging"
	"sigma-trader/internal/models"
	"sigma-trader/internal/store"
)

// Scanner fetches the run's market snapshot.
type Scanner interface {
	Scan(ctx context.Context, expiry *time.Time) (*models.MarketSnapshot, error)
}

// Researcher summarizes news. It does not fail.
type Researcher interface {
	Research(ctx context.Context, market *models.MarketSnapshot) models.ResearchSummary
}

// Monitor reviews the open position. It does not fail.
type Monitor interface {
	Check(ctx context.Context, market *models.MarketSnapshot) models.MonitorSignal
}

// Strategist decides strategy and sigma. It does not fail.
type Strategist interface {
	Decide(ctx context.Context, in agents.StrategyInput) models.StrategyDecision
}

// Executor builds and places orders.
type Executor interface {
	Execute(ctx context.Context, market *models.MarketSnapshot, decision models.StrategyDecision) (*models.Order, error)
	Place(ctx context.Context, order *models.Order, orderType models.OrderType) (*models.Order, error)
}

// RiskGate approves or rejects an order.
type RiskGate interface {
	Review(ctx context.Context, in agents.RiskInput) models.RiskStatus
}

// Nodes are the injected graph nodes.
type Nodes struct {
	Scanner    Scanner
	Researcher Researcher
	Monitor    Monitor
	Strategist Strategist
	Executor   Executor
	Risk       RiskGate
}

// Request parameterizes one run.
type Request struct {
	Symbol string
	// Override is a strategy name, or "" / "Auto" to let the strategist decide.
	Override string
	Expiry   *time.Time
}

// Pipeline runs the decision graph. It keeps no per-run state, so one
// Pipeline may serve concurrent runs.
type Pipeline struct {
	nodes   Nodes
	journal store.Journal
	now     func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithJournal records every finished run.
func WithJournal(j store.Journal) Option {
	return func(p *Pipeline) { p.journal = j }
}

// WithClock sets the clock used for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a pipeline. Every node is required.
func New(nodes Nodes, opts ...Option) (*Pipeline, error) {
	missing := []string{}
	if nodes.Scanner == nil {
		missing = append(missing, agents.NodeScanner)
	}
	if nodes.Researcher == nil {
		missing = append(missing, agents.NodeResearcher)
	}
	if nodes.Monitor == nil {
		missing = append(missing, agents.NodeMonitor)
	}
	if nodes.Strategist == nil {
		missing = append(missing, agents.NodeStrategist)
	}
	if nodes.Executor == nil {
		missing = append(missing, agents.NodeExecutor)
	}
	if nodes.Risk == nil {
		missing = append(missing, agents.NodeRisk)
	}
	if len(missing) > 0 {
		return nil, errors.NewValidationError("nodes", strings.Join(missing, ","), "missing pipeline nodes")
	}
	p := &Pipeline{nodes: nodes, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run executes one pass of the graph. The returned state is always non-nil;
// a terminal failure is reported in State.Err. Errors returned by Run itself
// are limited to an invalid request.
func (p *Pipeline) Run(ctx context.Context, req Request) (*State, error) {
	override, err := parseOverride(req.Override)
	if err != nil {
		return nil, errors.NewValidationError("strategy", req.Override, err.Error())
	}

	st := &State{
		RunID:     uuid.NewString(),
		Symbol:    strings.ToUpper(req.Symbol),
		Override:  string(override),
		Expiry:    req.Expiry,
		StartedAt: p.now(),
	}
	logger := logging.WithRunID(logging.FromContext(ctx), st.RunID)
	if st.Symbol != "" {
		logger = logging.WithSymbol(logger, st.Symbol)
	}
	ctx = logging.WithLogger(ctx, logger)
	logger.Info().Str("override", st.Override).Msg("Pipeline run started")

	p.scan(ctx, st)
	p.fanOut(ctx, st)
	p.strategize(ctx, st, override)
	p.execute(ctx, st)
	p.review(ctx, st)

	st.FinishedAt = p.now()
	p.save(ctx, st)

	event := logger.Info()
	if st.Err != nil {
		event = logger.Error().Str("stage", st.Err.Stage).Str("category", string(st.Err.Category)).Err(st.Err.Err)
	} else if st.Risk != nil {
		event = event.Str("risk", string(st.Risk.Decision))
	}
	event.Dur("elapsed", st.FinishedAt.Sub(st.StartedAt)).Msg("Pipeline run finished")
	return st, nil
}

func parseOverride(name string) (models.Strategy, error) {
	if name == "" || strings.EqualFold(name, "auto") {
		return "", nil
	}
	return models.ParseStrategy(name)
}

// stage runs fn with stage logging.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	logger := logging.WithStage(logging.FromContext(ctx), name)
	ctx = logging.WithLogger(ctx, logger)
	start := time.Now()
	err := fn(ctx)
	logging.LogStage(logger, name, time.Since(start), err)
	return err
}

func (p *Pipeline) scan(ctx context.Context, st *State) {
	err := p.stage(ctx, agents.NodeScanner, func(ctx context.Context) error {
		market, err := p.nodes.Scanner.Scan(ctx, st.Expiry)
		if err != nil {
			return err
		}
		st.Market = market
		if st.Symbol == "" {
			st.Symbol = market.Symbol
		}
		return nil
	})
	st.fail(agents.NodeScanner, err)
}

// fanOut runs monitor and researcher concurrently. Each branch writes only
// to its own local; the state is updated after both have finished.
func (p *Pipeline) fanOut(ctx context.Context, st *State) {
	if st.Err != nil {
		return
	}
	market := st.Market

	var (
		research models.ResearchSummary
		signal   models.MonitorSignal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.stage(gctx, agents.NodeResearcher, func(ctx context.Context) error {
			research = p.nodes.Researcher.Research(ctx, market)
			return ctx.Err()
		})
	})
	g.Go(func() error {
		return p.stage(gctx, agents.NodeMonitor, func(ctx context.Context) error {
			signal = p.nodes.Monitor.Check(ctx, market)
			return ctx.Err()
		})
	})
	if err := g.Wait(); err != nil {
		st.fail("fan-out", err)
		return
	}
	st.Research = &research
	st.Monitor = &signal
}

func (p *Pipeline) strategize(ctx context.Context, st *State, override models.Strategy) {
	if st.Err != nil {
		return
	}
	err := p.stage(ctx, agents.NodeStrategist, func(ctx context.Context) error {
		in := agents.StrategyInput{Market: st.Market, Override: override}
		if st.Research != nil {
			in.Research = *st.Research
		}
		if st.Monitor != nil {
			in.Monitor = *st.Monitor
		}
		decision := p.nodes.Strategist.Decide(ctx, in)
		st.Decision = &decision
		return ctx.Err()
	})
	st.fail(agents.NodeStrategist, err)
}

func (p *Pipeline) execute(ctx context.Context, st *State) {
	if st.Err != nil {
		return
	}
	err := p.stage(ctx, agents.NodeExecutor, func(ctx context.Context) error {
		order, err := p.nodes.Executor.Execute(ctx, st.Market, *st.Decision)
		if err != nil {
			return err
		}
		st.Order = order
		return nil
	})
	st.fail(agents.NodeExecutor, err)
}

func (p *Pipeline) review(ctx context.Context, st *State) {
	if st.Err != nil {
		return
	}
	err := p.stage(ctx, agents.NodeRisk, func(ctx context.Context) error {
		status := p.nodes.Risk.Review(ctx, agents.RiskInput{
			Market:   st.Market,
			Decision: *st.Decision,
			Order:    st.Order.Clone(),
		})
		st.Risk = &status
		return ctx.Err()
	})
	st.fail(agents.NodeRisk, err)
}

// Place submits an approved order through the executor and records the
// placed order ids on the state.
func (p *Pipeline) Place(ctx context.Context, st *State, orderType models.OrderType) error {
	if st.Err != nil {
		return st.Err
	}
	if !st.Risk.Approved() {
		return errors.NewOrderError("", st.Symbol, "", "order not approved by risk manager", errors.ErrInvalidOrder)
	}
	if st.Placed {
		return nil
	}
	placed, err := p.nodes.Executor.Place(ctx, st.Order, orderType)
	if placed != nil {
		st.Order = placed
	}
	if err != nil {
		return err
	}
	st.Placed = true
	p.save(ctx, st)
	return nil
}

func (p *Pipeline) save(ctx context.Context, st *State) {
	if p.journal == nil {
		return
	}
	if err := p.journal.SaveRun(ctx, st.Record()); err != nil {
		logger := logging.FromContext(ctx)
		logger.Warn().Err(err).Str("run_id", st.RunID).Msg("Failed to record run")
	}
}
