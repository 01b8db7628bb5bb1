// Package broker provides broker integration interfaces and implementations.
package broker

import (
	"context"
	"fmt"
	"strings"

	"sigma-trader/internal/errors"
	"sigma-trader/internal/models"
)

// Gateway is the order-placement surface the pipeline depends on.
type Gateway interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (string, error)
	GetLotSize(ctx context.Context, symbol string) (int, error)
}

// OrderRequest is one option leg to place. Price is required for LIMIT
// orders and ignored for MARKET orders.
type OrderRequest struct {
	Instrument string
	Action     models.OrderAction
	Quantity   int
	Type       models.OrderType
	Price      float64
}

// Validate checks the request before it reaches a gateway.
func (r OrderRequest) Validate() error {
	invalid := func(msg string) error {
		return errors.NewOrderError("", r.Instrument, string(r.Action), msg, errors.ErrInvalidOrder)
	}
	switch {
	case r.Instrument == "":
		return invalid("missing instrument")
	case r.Quantity <= 0:
		return invalid(fmt.Sprintf("invalid quantity %d", r.Quantity))
	case r.Action != models.ActionBuy && r.Action != models.ActionSell:
		return invalid("invalid action")
	}
	switch r.Type {
	case models.OrderTypeMarket:
	case models.OrderTypeLimit:
		if r.Price <= 0 {
			return invalid("limit order needs a positive price")
		}
	default:
		return invalid(fmt.Sprintf("unknown order type %q", r.Type))
	}
	return nil
}

// QuoteSource provides quotes and the instrument master.
type QuoteSource interface {
	GetQuotes(ctx context.Context, symbols ...string) (map[string]models.Quote, error)
	GetInstruments(ctx context.Context, exchange models.Exchange) ([]models.Instrument, error)
}

// DefaultLotSizes are exchange lot sizes used when the instrument master is
// unavailable.
var DefaultLotSizes = map[string]int{
	"NIFTY":      50,
	"BANKNIFTY":  15,
	"FINNIFTY":   40,
	"MIDCPNIFTY": 75,
}

// FallbackLotSize is used for symbols missing from DefaultLotSizes.
const FallbackLotSize = 50

// KnownLotSize returns the table lot size for symbol.
func KnownLotSize(symbol string) int {
	if n, ok := DefaultLotSizes[strings.ToUpper(symbol)]; ok {
		return n
	}
	return FallbackLotSize
}

// PlacedOrder records an order accepted by a gateway.
type PlacedOrder struct {
	OrderID    string             `json:"order_id"`
	Instrument string             `json:"tradingsymbol"`
	Action     models.OrderAction `json:"action"`
	Quantity   int                `json:"quantity"`
	Type       models.OrderType   `json:"order_type"`
	Price      float64            `json:"price,omitempty"`
}
