package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"sigma-trader/internal/agents"
	"sigma-trader/internal/broker"
	"sigma-trader/internal/config"
	"sigma-trader/internal/knowledge"
	"sigma-trader/internal/llm"
	"sigma-trader/internal/marketdata"
	"sigma-trader/internal/models"
	"sigma-trader/internal/pipeline"
	"sigma-trader/internal/resilience"
	"sigma-trader/internal/security"
	"sigma-trader/internal/store"
	"sigma-trader/pkg/utils"
)

// App holds the application dependencies. Stores and clients are opened
// on first use and released by Close.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Now    func() time.Time

	kite      *broker.KiteGateway
	paper     *broker.PaperGateway
	knowledge *knowledge.SQLiteStore
	journal   *store.SQLiteStore
	audit     *security.AuditLogger
	closers   []io.Closer
}

// NewApp creates an application over a loaded configuration.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger, Now: time.Now}
}

// Close releases every opened store.
func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

// Kite returns the Kite gateway, or nil when no API key is configured.
func (a *App) Kite() *broker.KiteGateway {
	if a.kite != nil {
		return a.kite
	}
	creds := a.Config.Credentials.Kite
	if creds.APIKey == "" {
		return nil
	}
	a.kite = broker.NewKiteGateway(broker.KiteConfig{
		APIKey:            creds.APIKey,
		AccessToken:       creds.AccessToken,
		TokenPath:         filepath.Join(a.Config.Dir(), "session.json"),
		RequestsPerSecond: a.Config.Trading.RequestsPerSecond,
		Product:           a.Config.Trading.Product,
	})
	a.Logger.Debug().Bool("authenticated", a.kite.IsAuthenticated()).Msg("Kite gateway initialized")
	return a.kite
}

// Gateway returns the order gateway for the configured trading mode.
func (a *App) Gateway() (broker.Gateway, error) {
	if a.Config.IsPaperMode() {
		if a.paper == nil {
			a.paper = broker.NewPaperGateway(broker.PaperGatewayConfig{})
		}
		return a.paper, nil
	}
	kite := a.Kite()
	if kite == nil {
		return nil, fmt.Errorf("live mode needs kite.api_key in credentials.toml")
	}
	return kite, nil
}

// Knowledge opens the rule store, seeding it when empty.
func (a *App) Knowledge(ctx context.Context) (*knowledge.SQLiteStore, error) {
	if a.knowledge != nil {
		return a.knowledge, nil
	}
	ks, err := knowledge.NewSQLiteStore(a.Config.KnowledgePath())
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, ks)
	a.knowledge = ks

	n, err := ks.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return ks, nil
	}

	seed := knowledge.DefaultRules()
	if path := a.Config.Storage.SeedFile; path != "" {
		extra, err := knowledge.LoadFile(path)
		if err != nil {
			a.Logger.Warn().Err(err).Str("path", path).Msg("Failed to load seed file")
		} else {
			seed = append(seed, extra...)
		}
	}
	added, err := ks.Add(ctx, seed...)
	if err != nil {
		return nil, err
	}
	a.Logger.Info().Int("snippets", added).Msg("Knowledge store seeded")
	return ks, nil
}

// Journal opens the run journal.
func (a *App) Journal() (*store.SQLiteStore, error) {
	if a.journal != nil {
		return a.journal, nil
	}
	j, err := store.NewSQLiteStore(a.Config.JournalPath())
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, j)
	a.journal = j
	return j, nil
}

// Audit records an audit event. Audit failures are logged, never returned.
func (a *App) Audit(ctx context.Context, record func(al *security.AuditLogger) error) {
	if a.audit == nil {
		al, err := security.NewAuditLogger(security.DefaultAuditConfig(a.Config.Dir()))
		if err != nil {
			a.Logger.Warn().Err(err).Msg("Audit log unavailable")
			return
		}
		a.closers = append(a.closers, al)
		a.audit = al
	}
	if err := record(a.audit); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to write audit event")
	}
}

// Router builds the generation router over every provider with a key.
func (a *App) Router() (*llm.Router, error) {
	ag := a.Config.Agents
	temp := float32(ag.Temperature)

	var routes []llm.Route
	if key := a.Config.Credentials.OpenAI.APIKey; key != "" {
		routes = append(routes, llm.Route{
			Name:         llm.ProviderOpenAI,
			Backend:      llm.NewOpenAIBackend(llm.ProviderOpenAI, key, "", temp),
			DefaultModel: ag.OpenAIModel,
		})
	}
	if key := a.Config.Credentials.Groq.APIKey; key != "" {
		routes = append(routes, llm.Route{
			Name:         llm.ProviderGroq,
			Backend:      llm.NewOpenAIBackend(llm.ProviderGroq, key, ag.GroqBaseURL, temp),
			DefaultModel: ag.GroqModel,
		})
	}

	breakers := resilience.DefaultCircuitBreakerConfig()
	if ag.BreakerFailures > 0 {
		breakers.FailureThreshold = ag.BreakerFailures
	}
	if ag.BreakerTimeout > 0 {
		breakers.Timeout = ag.BreakerTimeout
	}
	return llm.NewRouter(ag.DefaultProvider, breakers, routes...)
}

// RunOptions select the data source of a run.
type RunOptions struct {
	Offline bool
	Spot    float64
	Vol     float64
}

// Provider returns the market data provider. Offline runs need explicit
// spot and volatility; nothing is invented.
func (a *App) Provider(opts RunOptions) (marketdata.Provider, error) {
	m := a.Config.Market
	weekday, err := a.Config.ExpiryWeekday()
	if err != nil {
		return nil, err
	}
	fallback := marketdata.FallbackConfig{
		Tick:          m.Tick,
		Steps:         m.Steps,
		Rate:          m.RiskFreeRate,
		ExpiryWeekday: weekday,
		Now:           a.Now,
	}

	if opts.Offline {
		return marketdata.NewFallbackProvider(&marketdata.StaticProvider{Spot: opts.Spot, Vol: opts.Vol}, fallback), nil
	}

	kite := a.Kite()
	if kite == nil {
		return nil, fmt.Errorf("no market data source: configure kite credentials or use --offline with --spot and --vix")
	}
	retry := utils.DefaultRetryConfig()
	if a.Config.Pipeline.RetryAttempts > 0 {
		retry.MaxAttempts = a.Config.Pipeline.RetryAttempts
	}
	live := marketdata.NewKiteProvider(kite, marketdata.KiteProviderConfig{
		Retry: retry,
		Tick:  m.Tick,
		Steps: m.Steps,
		Rate:  m.RiskFreeRate,
		Now:   a.Now,
	})
	return marketdata.NewFallbackProvider(live, fallback), nil
}

// Pipeline wires the decision graph.
func (a *App) Pipeline(ctx context.Context, opts RunOptions) (*pipeline.Pipeline, error) {
	cfg := a.Config

	provider, err := a.Provider(opts)
	if err != nil {
		return nil, err
	}
	gateway, err := a.Gateway()
	if err != nil {
		return nil, err
	}
	rules, err := a.Knowledge(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening knowledge store: %w", err)
	}
	journal, err := a.Journal()
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	parser, err := agents.NewParser(cfg.Agents.Vocabulary)
	if err != nil {
		return nil, err
	}

	var client llm.Client
	router, err := a.Router()
	if err != nil {
		a.Logger.Warn().Str("error", security.MaskSecrets(err.Error())).Msg("No generation provider; decisions will use safe defaults")
	} else {
		client = router
	}

	route := func(node string) agents.Route {
		return agents.Route{Provider: cfg.Agents.Provider(node)}
	}
	defaultStrategy, err := models.ParseStrategy(cfg.Pipeline.DefaultStrategy)
	if err != nil {
		return nil, err
	}

	return pipeline.New(pipeline.Nodes{
		Scanner:    agents.NewScanner(provider, cfg.Market.Symbol, a.Now),
		Researcher: agents.NewResearcher(client, rules, route(config.NodeResearcher)),
		Monitor:    agents.NewMonitor(client, journal, rules, parser, route(config.NodeMonitor)),
		Strategist: agents.NewStrategist(client, rules, parser, agents.StrategistConfig{
			DefaultStrategy: defaultStrategy,
			DefaultSigma:    cfg.Pipeline.DefaultSigma,
			MinSigma:        cfg.Pipeline.MinSigma,
			MaxSigma:        cfg.Pipeline.MaxSigma,
		}, route(config.NodeStrategist)),
		Executor: agents.NewExecutor(gateway, agents.ExecutorConfig{
			Lots: cfg.Trading.Lots,
			Tick: cfg.Market.Tick,
			Wing: cfg.Market.WingWidth,
		}),
		Risk: agents.NewRiskManager(client, parser, agents.RiskConfig{MinVolIndex: cfg.Pipeline.MinVolIndex},
			route(config.NodeRisk)),
	}, pipeline.WithJournal(journal), pipeline.WithClock(a.Now))
}
