package agents

import (
	"context"

	"sigma-trader/internal/broker"
	"sigma-trader/internal/errors"
	"sigma-trader/internal/logging"
	"sigma-trader/internal/models"
	"sigma-trader/internal/strikes"
)

// ExecutorConfig sizes and shapes orders.
type ExecutorConfig struct {
	Lots int
	Tick float64
	Wing float64
}

// Executor turns a strategy decision into a concrete order against the chain.
type Executor struct {
	gateway broker.Gateway
	cfg     ExecutorConfig
}

// NewExecutor creates an executor. A nil gateway uses the known lot sizes.
func NewExecutor(gateway broker.Gateway, cfg ExecutorConfig) *Executor {
	if cfg.Lots <= 0 {
		cfg.Lots = 1
	}
	return &Executor{gateway: gateway, cfg: cfg}
}

// Execute materializes the order. A chain missing a required side fails with
// ErrChainIncomplete.
func (e *Executor) Execute(ctx context.Context, market *models.MarketSnapshot, decision models.StrategyDecision) (*models.Order, error) {
	logger := logging.FromContext(ctx)
	if market == nil || market.Chain == nil {
		return nil, errors.Wrap(errors.ErrChainIncomplete, "no option chain")
	}

	analysis, err := strikes.ForStrategy(decision.Strategy, strikes.Inputs{
		Spot:      market.Spot,
		Vol:       market.VolIndex,
		Days:      market.DaysToExpiry,
		SigmaMult: decision.SigmaMult,
		Tick:      e.cfg.Tick,
		Wing:      e.cfg.Wing,
	})
	if err != nil {
		return nil, errors.NewOrderError("", market.Symbol, string(decision.Strategy), "strike selection failed", err)
	}

	qty := e.lotSize(ctx, market.Symbol) * e.cfg.Lots
	legs, err := strikes.Realize(market.Chain, strikes.Targets(analysis), qty)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		Action:   models.OrderKind,
		Strategy: decision.Strategy,
		Legs:     legs,
		Analysis: analysis,
	}
	logger.Info().
		Str("strategy", string(order.Strategy)).
		Float64("sell_call", analysis.SellCallStrike).
		Float64("sell_put", analysis.SellPutStrike).
		Int("quantity", qty).
		Msg("Order built")
	return order, nil
}

func (e *Executor) lotSize(ctx context.Context, symbol string) int {
	if e.gateway != nil {
		if n, err := e.gateway.GetLotSize(ctx, symbol); err == nil && n > 0 {
			return n
		}
	}
	return broker.KnownLotSize(symbol)
}

// Place submits every leg through the gateway and returns a copy of the
// order with order ids filled in. On failure the copy carries the ids of
// legs already placed.
func (e *Executor) Place(ctx context.Context, order *models.Order, orderType models.OrderType) (*models.Order, error) {
	if e.gateway == nil {
		return nil, errors.NewOrderError("", "", "", "no broker gateway", errors.ErrNotAuthenticated)
	}
	if order == nil || len(order.Legs) == 0 {
		return nil, errors.NewOrderError("", "", "", "order has no legs", errors.ErrInvalidOrder)
	}
	logger := logging.FromContext(ctx)

	placed := order.Clone()
	for i := range placed.Legs {
		leg := &placed.Legs[i]
		id, err := e.gateway.PlaceOrder(ctx, broker.OrderRequest{
			Instrument: leg.Instrument,
			Action:     leg.Action,
			Quantity:   leg.Quantity,
			Type:       orderType,
			Price:      leg.Price,
		})
		if err != nil {
			return placed, errors.NewOrderError("", leg.Instrument, string(leg.Action), "placement failed", err)
		}
		leg.OrderID = &id
		logging.LogOrder(logger, id, leg.Instrument, string(leg.Action), leg.Quantity)
	}
	return placed, nil
}
