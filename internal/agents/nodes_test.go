package agents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigma-trader/internal/broker"
	"sigma-trader/internal/chain"
	"sigma-trader/internal/errors"
	"sigma-trader/internal/knowledge"
	"sigma-trader/internal/llm"
	"sigma-trader/internal/marketdata"
	"sigma-trader/internal/models"
	"sigma-trader/internal/store"
)

// Saturday; the next Thursday expiry is five days out.
var testNow = time.Date(2024, 10, 19, 10, 0, 0, 0, models.IST)

func clock() time.Time { return testNow }

const (
	matchResearch   = "senior market analyst"
	matchMonitor    = "Portfolio Manager"
	matchStrategist = "options strategist"
	matchRisk       = "strict Risk Manager"
)

func testMarket(t *testing.T, spot, vol float64) *models.MarketSnapshot {
	t.Helper()
	c, err := chain.Synthesize(chain.Params{
		Symbol:   "NIFTY",
		Spot:     spot,
		VolIndex: vol,
		Expiry:   chain.NextWeeklyExpiry(testNow, time.Thursday),
		Now:      testNow,
	})
	require.NoError(t, err)
	return models.NewMarketSnapshot(spot, vol, c, testNow)
}

func rulesLookup() *knowledge.Memory {
	return knowledge.NewMemory(knowledge.DefaultRules()...)
}

func TestScanner(t *testing.T) {
	ctx := context.Background()

	t.Run("derived chain from live inputs", func(t *testing.T) {
		provider := marketdata.NewFallbackProvider(&marketdata.StaticProvider{Spot: 25000, Vol: 15},
			marketdata.FallbackConfig{Now: clock})
		snap, err := NewScanner(provider, "nifty", clock).Scan(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, "NIFTY", snap.Symbol)
		assert.Equal(t, 5, snap.DaysToExpiry)
		assert.Equal(t, models.Derived, snap.Provenance)
		assert.True(t, snap.Chain.Contains(25000))
	})

	t.Run("missing spot is data unavailable", func(t *testing.T) {
		provider := marketdata.NewFallbackProvider(&marketdata.StaticProvider{Vol: 15},
			marketdata.FallbackConfig{Now: clock})
		_, err := NewScanner(provider, "NIFTY", clock).Scan(ctx, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrDataUnavailable))
	})

	t.Run("missing volatility is data unavailable", func(t *testing.T) {
		_, err := NewScanner(&marketdata.StaticProvider{Spot: 25000}, "NIFTY", clock).Scan(ctx, nil)
		assert.True(t, errors.Is(err, errors.ErrDataUnavailable))
	})

	t.Run("past expiry is rejected", func(t *testing.T) {
		past := testMarket(t, 25000, 15)
		later := func() time.Time { return testNow.AddDate(0, 0, 10) }
		provider := &marketdata.StaticProvider{Spot: 25000, Vol: 15, Chain: past.Chain}
		_, err := NewScanner(provider, "NIFTY", later).Scan(ctx, nil)
		assert.True(t, errors.Is(err, errors.ErrDataUnavailable))
	})
}

func TestResearcher(t *testing.T) {
	ctx := context.Background()
	market := testMarket(t, 25000, 15)

	t.Run("tags sentiment", func(t *testing.T) {
		client := llm.NewScriptedClient(llm.Reply{Match: matchResearch, Text: "FIIs sold heavily.\nSentiment: Bearish"})
		got := NewResearcher(client, rulesLookup(), Route{Provider: llm.ProviderGroq}).Research(ctx, market)
		assert.Equal(t, SentimentBearish, got.Sentiment)
		assert.Equal(t, llm.ProviderGroq, got.Provider)
		assert.NotEmpty(t, got.Headlines)
		assert.Empty(t, got.Annotations)

		calls := client.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, llm.ProviderGroq, calls[0].Provider)
		assert.Contains(t, calls[0].User, "India VIX: 15.00")
	})

	t.Run("generation failure degrades", func(t *testing.T) {
		client := llm.NewScriptedClient(llm.Reply{Err: errors.ErrProviderUnavailable})
		lookup := knowledge.NewMemory(knowledge.Snippet{Topic: "market news", Content: "Markets rally on strong inflow"})
		got := NewResearcher(client, lookup, Route{}).Research(ctx, market)
		assert.Equal(t, SentimentBullish, got.Sentiment)
		assert.Equal(t, "Markets rally on strong inflow", got.Summary)
		assert.NotEmpty(t, got.Annotations)
	})
}

func TestEstimateSentimentMatchesWholeWords(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Nifty edges toward record as software stocks rally", SentimentBullish},
		{"Brokers forward award nominations again", SentimentNeutral},
		{"Index slips against peers; FII outflows continue", SentimentBearish},
		{"Border war fears trigger a market crash", SentimentVolatile},
		{"Volatility spike as markets turn uncertain", SentimentVolatile},
		{"Banks gain, IT surges on strong buying", SentimentBullish},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, estimateSentiment(tt.text))
		})
	}

	t.Run("researcher without generation", func(t *testing.T) {
		lookup := knowledge.NewMemory(knowledge.Snippet{Topic: "market news", Content: "Nifty edges toward record as software stocks rally"})
		got := NewResearcher(nil, lookup, Route{}).Research(context.Background(), testMarket(t, 25000, 15))
		assert.Equal(t, SentimentBullish, got.Sentiment)
	})
}

func TestExtractSentiment(t *testing.T) {
	assert.Equal(t, "Volatile", ExtractSentiment("mixed cues; sentiment tag: VOLATILE"))
	assert.Equal(t, "Neutral", ExtractSentiment("bullish early, but overall Neutral"))
	assert.Equal(t, "", ExtractSentiment("nothing to say"))
}

type fakePositions struct {
	run *store.RunRecord
	err error
}

func (f *fakePositions) LastPosition(ctx context.Context, symbol string) (*store.RunRecord, error) {
	return f.run, f.err
}

func TestMonitor(t *testing.T) {
	ctx := context.Background()
	market := testMarket(t, 25600, 15)

	t.Run("no position holds without generation", func(t *testing.T) {
		client := llm.NewScriptedClient()
		positions := &fakePositions{err: errors.ErrDataNotFound}
		got := NewMonitor(client, positions, nil, nil, Route{}).Check(ctx, market)
		assert.Equal(t, models.PositionHold, got.Action)
		assert.False(t, got.AdjustmentNeeded)
		assert.Empty(t, client.Calls())
	})

	t.Run("open position is reviewed", func(t *testing.T) {
		run := &store.RunRecord{
			ID: "r1", StartedAt: testNow.AddDate(0, 0, -1), Symbol: "NIFTY", Spot: 25000,
			Expiry: market.Expiry, Strategy: models.ShortStrangle, Risk: models.RiskApproved, Placed: true,
			Legs: []models.Leg{
				{Side: models.Call, Strike: 25450, Action: models.ActionSell, Quantity: 50},
				{Side: models.Put, Strike: 24550, Action: models.ActionSell, Quantity: 50},
			},
		}
		client := llm.NewScriptedClient(llm.Reply{Match: matchMonitor, Text: `{"decision": "ADJUST", "reason": "spot up 2.4%"}`})
		got := NewMonitor(client, &fakePositions{run: run}, rulesLookup(), nil, Route{}).Check(ctx, market)
		assert.Equal(t, models.PositionAdjust, got.Action)
		assert.True(t, got.AdjustmentNeeded)
		assert.Contains(t, got.Position, "SELL CE 25450")

		calls := client.Calls()
		require.Len(t, calls, 1)
		assert.Contains(t, calls[0].User, "move +2.40%")
	})

	t.Run("unplaced plan is not a position", func(t *testing.T) {
		client := llm.NewScriptedClient()
		run := &store.RunRecord{ID: "r3", Symbol: "NIFTY", Expiry: market.Expiry, Risk: models.RiskApproved,
			Legs: []models.Leg{{Side: models.Call, Strike: 25450, Action: models.ActionSell, Quantity: 50}}}
		got := NewMonitor(client, &fakePositions{run: run}, nil, nil, Route{}).Check(ctx, market)
		assert.Equal(t, "No open position.", got.Reasoning)
		assert.Empty(t, client.Calls())
	})

	t.Run("rejected plan is not a position", func(t *testing.T) {
		client := llm.NewScriptedClient()
		run := &store.RunRecord{ID: "r2", Symbol: "NIFTY", Expiry: market.Expiry, Risk: models.RiskRejected}
		got := NewMonitor(client, &fakePositions{run: run}, nil, nil, Route{}).Check(ctx, market)
		assert.Equal(t, models.PositionHold, got.Action)
		assert.Empty(t, client.Calls())
	})
}

func TestSpotMove(t *testing.T) {
	assert.Equal(t, 2.4, SpotMove(25000, 25600))
	assert.Equal(t, -1.0, SpotMove(25000, 24750))
	assert.Equal(t, 0.0, SpotMove(0, 100))
}

func TestStrategist(t *testing.T) {
	ctx := context.Background()
	market := testMarket(t, 25000, 15)

	t.Run("manual override skips generation", func(t *testing.T) {
		client := llm.NewScriptedClient()
		s := NewStrategist(client, rulesLookup(), nil, StrategistConfig{}, Route{})
		got := s.Decide(ctx, StrategyInput{Market: market, Override: models.ShortStraddle})
		assert.Equal(t, models.ShortStraddle, got.Strategy)
		assert.Equal(t, models.SourceManual, got.Source)
		assert.Equal(t, "User manually selected Short Straddle.", got.Rationale)
		assert.Contains(t, got.Constraints, "Short Straddle")
		assert.Empty(t, client.Calls())
	})

	t.Run("model decision", func(t *testing.T) {
		client := llm.NewScriptedClient(llm.Reply{Match: matchStrategist,
			Text: "```json\n{\"strategy\": \"Short Strangle\", \"recommended_sigma\": 1.5, \"rationale\": \"range bound\"}\n```"})
		s := NewStrategist(client, rulesLookup(), nil, StrategistConfig{}, Route{})
		got := s.Decide(ctx, StrategyInput{Market: market, Research: models.ResearchSummary{Summary: "quiet", Sentiment: "Neutral"}})
		assert.Equal(t, models.ShortStrangle, got.Strategy)
		assert.Equal(t, 1.5, got.SigmaMult)
		assert.Equal(t, models.SourceModel, got.Source)
		assert.Equal(t, "Neutral", got.MarketSentiment)

		calls := client.Calls()
		require.Len(t, calls, 1)
		assert.Contains(t, calls[0].User, "Market IV: 15.00%")
		assert.Contains(t, calls[0].User, "Strangle Rules:")
	})

	t.Run("sigma is clamped", func(t *testing.T) {
		client := llm.NewScriptedClient(llm.Reply{Text: `{"strategy": "Short Strangle", "recommended_sigma": 7}`})
		got := NewStrategist(client, nil, nil, StrategistConfig{}, Route{}).Decide(ctx, StrategyInput{Market: market})
		assert.Equal(t, models.MaxSigmaMult, got.SigmaMult)
		assert.NotEmpty(t, got.Annotations)
	})

	t.Run("ambiguous response defaults", func(t *testing.T) {
		client := llm.NewScriptedClient(llm.Reply{Text: "hard to say"})
		got := NewStrategist(client, nil, nil, StrategistConfig{}, Route{}).Decide(ctx, StrategyInput{Market: market})
		assert.Equal(t, models.ShortStrangle, got.Strategy)
		assert.Equal(t, models.DefaultSigmaMult, got.SigmaMult)
		assert.Equal(t, models.SourceDefault, got.Source)
	})

	t.Run("generation failure defaults", func(t *testing.T) {
		client := llm.NewScriptedClient(llm.Reply{Err: errors.ErrProviderUnavailable})
		got := NewStrategist(client, nil, nil, StrategistConfig{}, Route{}).Decide(ctx, StrategyInput{Market: market})
		assert.Equal(t, models.SourceDefault, got.Source)
		assert.Contains(t, got.Rationale, "LLM error. IV is 15.00%")
	})

	t.Run("monitor adjustment is annotated", func(t *testing.T) {
		s := NewStrategist(llm.NewScriptedClient(), nil, nil, StrategistConfig{}, Route{})
		got := s.Decide(ctx, StrategyInput{
			Market:   market,
			Override: models.IronFly,
			Monitor:  models.MonitorSignal{Action: models.PositionExit, AdjustmentNeeded: true, Reasoning: "bearish news"},
		})
		require.NotEmpty(t, got.Annotations)
		assert.Contains(t, got.Annotations[0], "EXIT")
	})
}

func TestExecutor(t *testing.T) {
	ctx := context.Background()
	market := testMarket(t, 25000, 15)
	gw := broker.NewPaperGateway(broker.PaperGatewayConfig{})
	exec := NewExecutor(gw, ExecutorConfig{Lots: 2})

	t.Run("sigma strangle", func(t *testing.T) {
		order, err := exec.Execute(ctx, market, models.StrategyDecision{Strategy: models.ShortStrangle, SigmaMult: 1.0})
		require.NoError(t, err)
		assert.Equal(t, models.OrderKind, order.Action)
		require.Len(t, order.Legs, 2)
		assert.Equal(t, 25450.0, order.Legs[0].Strike)
		assert.Equal(t, models.Call, order.Legs[0].Side)
		assert.Equal(t, 24550.0, order.Legs[1].Strike)
		assert.Equal(t, "NIFTY24OCT2424550PE", order.Legs[1].Instrument)
		assert.Equal(t, 100, order.Legs[0].Quantity)
		assert.InDelta(t, 438.9, order.Analysis.RangePoints, 0.1)
	})

	t.Run("iron fly wings", func(t *testing.T) {
		order, err := exec.Execute(ctx, market, models.StrategyDecision{Strategy: models.IronFly})
		require.NoError(t, err)
		require.Len(t, order.Legs, 4)
		assert.Equal(t, 25300.0, order.Legs[2].Strike)
		assert.Equal(t, models.ActionBuy, order.Legs[2].Action)
		assert.Equal(t, 24700.0, order.Legs[3].Strike)
	})

	t.Run("chain without puts is incomplete", func(t *testing.T) {
		rows := market.Chain.Strikes()
		for i := range rows {
			rows[i].Put = nil
		}
		c, err := models.NewOptionChain("NIFTY", market.Expiry, models.Live, rows)
		require.NoError(t, err)
		calls := *market
		calls.Chain = c
		_, err = exec.Execute(ctx, &calls, models.StrategyDecision{Strategy: models.ShortStraddle})
		assert.True(t, errors.Is(err, errors.ErrChainIncomplete))
	})

	t.Run("place fills order ids", func(t *testing.T) {
		gw.Reset()
		order, err := exec.Execute(ctx, market, models.StrategyDecision{Strategy: models.ShortStraddle})
		require.NoError(t, err)
		placed, err := exec.Place(ctx, order, models.OrderTypeMarket)
		require.NoError(t, err)
		for _, l := range placed.Legs {
			require.NotNil(t, l.OrderID)
		}
		for _, l := range order.Legs {
			assert.Nil(t, l.OrderID)
		}
		assert.Len(t, gw.Orders(), 2)
	})

	t.Run("limit orders carry the chain premium", func(t *testing.T) {
		gw.Reset()
		order, err := exec.Execute(ctx, market, models.StrategyDecision{Strategy: models.ShortStraddle})
		require.NoError(t, err)
		_, err = exec.Place(ctx, order, models.OrderTypeLimit)
		require.NoError(t, err)
		orders := gw.Orders()
		require.Len(t, orders, 2)
		for i, o := range orders {
			assert.Equal(t, models.OrderTypeLimit, o.Type)
			assert.Greater(t, o.Price, 0.0)
			assert.Equal(t, order.Legs[i].Price, o.Price)
		}
	})
}

func TestRiskManager(t *testing.T) {
	ctx := context.Background()
	market := testMarket(t, 25000, 15)
	exec := NewExecutor(broker.NewPaperGateway(broker.PaperGatewayConfig{}), ExecutorConfig{Lots: 1})
	decision := models.StrategyDecision{Strategy: models.ShortStrangle, SigmaMult: 1.0, MarketSentiment: "Neutral"}
	order, err := exec.Execute(ctx, market, decision)
	require.NoError(t, err)

	review := func(client llm.Client, in RiskInput) models.RiskStatus {
		return NewRiskManager(client, nil, RiskConfig{}, Route{Provider: llm.ProviderGroq}).Review(ctx, in)
	}

	t.Run("approved", func(t *testing.T) {
		client := llm.NewScriptedClient(llm.Reply{Match: matchRisk, Text: `{"decision": "approved", "reason": "strikes outside range"}`})
		before := order.Clone()
		got := review(client, RiskInput{Market: market, Decision: decision, Order: order})
		assert.True(t, got.Approved())
		assert.Equal(t, "strikes outside range", got.Reason)
		assert.Equal(t, before, order)

		calls := client.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, llm.ProviderGroq, calls[0].Provider)
		assert.Contains(t, calls[0].User, "NIFTY24OCT2425450CE")
	})

	t.Run("ambiguous is rejected", func(t *testing.T) {
		client := llm.NewScriptedClient(llm.Reply{Text: "Hmm, interesting trade."})
		got := review(client, RiskInput{Market: market, Decision: decision, Order: order})
		assert.Equal(t, models.RiskRejected, got.Decision)
		assert.NotEmpty(t, got.Annotations)
	})

	t.Run("generation failure is rejected", func(t *testing.T) {
		client := llm.NewScriptedClient(llm.Reply{Err: errors.ErrProviderUnavailable})
		got := review(client, RiskInput{Market: market, Decision: decision, Order: order})
		assert.Equal(t, models.RiskRejected, got.Decision)
		assert.Equal(t, "LLM Failure", got.Reason)
	})

	t.Run("low volatility rejected without generation", func(t *testing.T) {
		client := llm.NewScriptedClient(llm.Reply{Text: `{"decision": "approved"}`})
		low := *market
		low.VolIndex = 10
		got := review(client, RiskInput{Market: &low, Decision: decision, Order: order})
		assert.Equal(t, models.RiskRejected, got.Decision)
		assert.Contains(t, got.Reason, "min_vol_index")
		assert.Empty(t, client.Calls())
	})

	t.Run("volatile sentiment rejects strangle", func(t *testing.T) {
		volatile := decision
		volatile.MarketSentiment = "Volatile"
		err := NewRiskManager(nil, nil, RiskConfig{}, Route{}).PreCheck(RiskInput{Market: market, Decision: volatile, Order: order})
		var riskErr *errors.RiskError
		require.True(t, errors.As(err, &riskErr))
		assert.Equal(t, "sentiment", riskErr.Rule)
	})

	t.Run("mismatched legs rejected", func(t *testing.T) {
		bad := order.Clone()
		bad.Strategy = models.ShortStraddle
		err := NewRiskManager(nil, nil, RiskConfig{}, Route{}).PreCheck(RiskInput{Market: market, Decision: decision, Order: bad})
		require.Error(t, err)

		empty := &models.Order{Strategy: models.ShortStrangle}
		assert.Error(t, NewRiskManager(nil, nil, RiskConfig{}, Route{}).PreCheck(RiskInput{Market: market, Order: empty}))
	})
}

func TestAskWrapsAgentErrors(t *testing.T) {
	ctx := context.Background()

	strategist := NewBaseAgent(NodeStrategist, nil, Route{})
	_, err := strategist.ask(ctx, "system", "user")
	require.Error(t, err)
	var agentErr *errors.AgentError
	require.True(t, errors.As(err, &agentErr))
	assert.Equal(t, NodeStrategist, agentErr.AgentName)
	assert.True(t, errors.Is(err, errors.ErrProviderUnavailable))

	client := llm.NewScriptedClient(llm.Reply{Match: "system", Err: errors.ErrProviderUnavailable})
	risk := NewBaseAgent(NodeRisk, client, Route{})
	_, err = risk.ask(ctx, "system", "user")
	require.True(t, errors.As(err, &agentErr))
	assert.Equal(t, NodeRisk, agentErr.AgentName)
}
