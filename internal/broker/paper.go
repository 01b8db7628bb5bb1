package broker

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"sigma-trader/internal/errors"
)

// PaperGateway is a deterministic offline gateway. Order IDs are sequential
// and lot sizes come from a fixed table.
type PaperGateway struct {
	lotSizes map[string]int
	orders   []PlacedOrder
	counter  int
	failWith error

	mu sync.Mutex
}

// PaperGatewayConfig holds configuration for the paper gateway.
type PaperGatewayConfig struct {
	// LotSizes overrides DefaultLotSizes per symbol.
	LotSizes map[string]int
}

// NewPaperGateway creates a paper gateway.
func NewPaperGateway(cfg PaperGatewayConfig) *PaperGateway {
	lots := make(map[string]int, len(DefaultLotSizes)+len(cfg.LotSizes))
	for k, v := range DefaultLotSizes {
		lots[k] = v
	}
	for k, v := range cfg.LotSizes {
		lots[strings.ToUpper(k)] = v
	}
	return &PaperGateway{lotSizes: lots}
}

// PlaceOrder records the order and returns the next sequential ID.
func (p *PaperGateway) PlaceOrder(ctx context.Context, req OrderRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := req.Validate(); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failWith != nil {
		return "", errors.NewBrokerError("PAPER", "order rejected", p.failWith)
	}

	p.counter++
	id := fmt.Sprintf("PAPER-%06d", p.counter)
	p.orders = append(p.orders, PlacedOrder{
		OrderID:    id,
		Instrument: req.Instrument,
		Action:     req.Action,
		Quantity:   req.Quantity,
		Type:       req.Type,
		Price:      req.Price,
	})
	return id, nil
}

// GetLotSize returns the table lot size for symbol.
func (p *PaperGateway) GetLotSize(ctx context.Context, symbol string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n, ok := p.lotSizes[strings.ToUpper(symbol)]; ok {
		return n, nil
	}
	return FallbackLotSize, nil
}

// Orders returns a copy of every order placed so far.
func (p *PaperGateway) Orders() []PlacedOrder {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PlacedOrder, len(p.orders))
	copy(out, p.orders)
	return out
}

// FailOrders makes subsequent PlaceOrder calls fail with err. Nil restores normal behavior.
func (p *PaperGateway) FailOrders(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failWith = err
}

// Reset clears placed orders and the ID counter.
func (p *PaperGateway) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = nil
	p.counter = 0
	p.failWith = nil
}
