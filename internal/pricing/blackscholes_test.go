package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"sigma-trader/internal/models"
)

func TestPriceZeroVolIsDiscountedIntrinsic(t *testing.T) {
	// Deep ITM call with no volatility is worth S - K*exp(-rT).
	got := Price(models.Call, 25000, 24000, 0.5, 0.07, 0)
	assert.InDelta(t, 25000-24000*0.965605, got, 0.5)

	// OTM with no volatility is floored.
	assert.Equal(t, MinTick, Price(models.Put, 25000, 24000, 0.5, 0.07, 0))
}

func TestGreeks(t *testing.T) {
	call := Greeks(models.Call, 25000, 25000, 7.0/365, 0.07, 0.15)
	put := Greeks(models.Put, 25000, 25000, 7.0/365, 0.07, 0.15)

	assert.InDelta(t, 1.0, call.Delta-put.Delta, 1e-9)
	assert.Greater(t, call.Delta, 0.5)
	assert.InDelta(t, call.Gamma, put.Gamma, 1e-12)
	assert.InDelta(t, call.Vega, put.Vega, 1e-9)
	assert.Less(t, call.Theta, 0.0)
	assert.Greater(t, call.Rho, 0.0)
	assert.Less(t, put.Rho, 0.0)

	expired := Greeks(models.Put, 24000, 25000, 0, 0.07, 0.15)
	assert.Equal(t, -1.0, expired.Delta)
}

func TestImpliedVolRejectsBadInputs(t *testing.T) {
	_, err := ImpliedVol(models.Call, 100, 25000, 25000, 0, 0.07)
	assert.Error(t, err)

	_, err = ImpliedVol(models.Call, 500, 25000, 24000, 0.1, 0.07)
	assert.Error(t, err)
}
