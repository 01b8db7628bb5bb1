package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"sigma-trader/internal/models"
)

func TestOrderParams(t *testing.T) {
	req := OrderRequest{
		Instrument: "NIFTY24OCT2425450CE",
		Action:     models.ActionSell,
		Quantity:   50,
		Type:       models.OrderTypeLimit,
		Price:      18.35,
	}

	params := orderParams(req, "NRML")
	assert.Equal(t, "NFO", params.Exchange)
	assert.Equal(t, "LIMIT", params.OrderType)
	assert.Equal(t, "SELL", params.TransactionType)
	assert.Equal(t, 50, params.Quantity)
	assert.Equal(t, 18.35, params.Price)
	assert.Equal(t, "NRML", params.Product)

	req.Type = models.OrderTypeMarket
	assert.Zero(t, orderParams(req, "NRML").Price)
}

func TestOrderRequestValidate(t *testing.T) {
	valid := OrderRequest{Instrument: "NIFTY24OCT2424550PE", Action: models.ActionBuy, Quantity: 50, Type: models.OrderTypeMarket}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(r *OrderRequest)
	}{
		{"limit without price", func(r *OrderRequest) { r.Type = models.OrderTypeLimit }},
		{"unknown type", func(r *OrderRequest) { r.Type = "SL" }},
		{"zero quantity", func(r *OrderRequest) { r.Quantity = 0 }},
		{"bad action", func(r *OrderRequest) { r.Action = "HOLD" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			assert.Error(t, r.Validate())
		})
	}
}
