package broker

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigma-trader/internal/errors"
	"sigma-trader/internal/models"
)

func TestPaperGatewayLotSizes(t *testing.T) {
	ctx := context.Background()
	pg := NewPaperGateway(PaperGatewayConfig{LotSizes: map[string]int{"nifty": 75}})

	n, err := pg.GetLotSize(ctx, "NIFTY")
	require.NoError(t, err)
	assert.Equal(t, 75, n)

	n, _ = pg.GetLotSize(ctx, "banknifty")
	assert.Equal(t, 15, n)

	n, _ = pg.GetLotSize(ctx, "SENSEX")
	assert.Equal(t, FallbackLotSize, n)
}

func marketSell(instrument string, qty int) OrderRequest {
	return OrderRequest{Instrument: instrument, Action: models.ActionSell, Quantity: qty, Type: models.OrderTypeMarket}
}

func TestPaperGatewayRejectsInvalidOrders(t *testing.T) {
	ctx := context.Background()
	pg := NewPaperGateway(PaperGatewayConfig{})

	_, err := pg.PlaceOrder(ctx, marketSell("NIFTY24OCT2425000CE", 0))
	assert.True(t, errors.Is(err, errors.ErrInvalidOrder))

	_, err = pg.PlaceOrder(ctx, marketSell("", 50))
	assert.True(t, errors.Is(err, errors.ErrInvalidOrder))

	limit := marketSell("NIFTY24OCT2425000CE", 50)
	limit.Type = models.OrderTypeLimit
	_, err = pg.PlaceOrder(ctx, limit)
	assert.True(t, errors.Is(err, errors.ErrInvalidOrder), "limit order without a price")

	limit.Price = 42.5
	id, err := pg.PlaceOrder(ctx, limit)
	require.NoError(t, err)
	require.Len(t, pg.Orders(), 1)
	assert.Equal(t, id, pg.Orders()[0].OrderID)
	assert.Equal(t, 42.5, pg.Orders()[0].Price)

	pg.FailOrders(errors.New("exchange closed"))
	_, err = pg.PlaceOrder(ctx, marketSell("NIFTY24OCT2425000CE", 50))
	var be *errors.BrokerError
	assert.True(t, errors.As(err, &be))
	assert.Len(t, pg.Orders(), 1)
}

// Property: Paper order IDs are sequential and every accepted order is recorded once.
func TestProperty_PaperOrderIDsSequential(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("ids follow placement order", prop.ForAll(
		func(qtys []int) bool {
			pg := NewPaperGateway(PaperGatewayConfig{})
			var ids []string
			for _, q := range qtys {
				id, err := pg.PlaceOrder(context.Background(), OrderRequest{
					Instrument: "NIFTY24OCT2425000PE", Action: models.ActionBuy, Quantity: q, Type: models.OrderTypeMarket,
				})
				if err != nil {
					return false
				}
				ids = append(ids, id)
			}
			orders := pg.Orders()
			if len(orders) != len(qtys) {
				return false
			}
			for i, o := range orders {
				if o.OrderID != ids[i] || o.Quantity != qtys[i] {
					return false
				}
				if i > 0 && o.OrderID <= orders[i-1].OrderID {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(1, 20).Map(func(n int) int { return n * 50 })),
	))

	properties.TestingRun(t)
}
