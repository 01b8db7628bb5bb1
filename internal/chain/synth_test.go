package chain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigma-trader/internal/errors"
	"sigma-trader/internal/models"
)

func TestSynthesizeRejectsMissingInputs(t *testing.T) {
	_, err := Synthesize(Params{Symbol: "NIFTY", Spot: 0, VolIndex: 14})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDataUnavailable))

	_, err = Synthesize(Params{Symbol: "NIFTY", Spot: 25000, VolIndex: -1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDataUnavailable))
}

func TestSynthesizeRejectsSpotBelowTick(t *testing.T) {
	_, err := Synthesize(Params{Symbol: "NIFTY", Spot: 20, VolIndex: 14})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDataUnavailable))
	assert.Contains(t, err.Error(), "below one strike tick")

	c, err := Synthesize(Params{Symbol: "NIFTY", Spot: 50, VolIndex: 14, Steps: 2})
	require.NoError(t, err)
	assert.Equal(t, 50.0, c.At(0).Price)
}

func TestSynthesizeLadder(t *testing.T) {
	now := time.Date(2024, 10, 21, 10, 0, 0, 0, models.IST) // Monday
	c, err := Synthesize(Params{Symbol: "nifty", Spot: 25012, VolIndex: 15, Now: now})
	require.NoError(t, err)

	assert.Equal(t, "NIFTY", c.Symbol())
	assert.Equal(t, "24-Oct-2024", FormatExpiry(c.Expiry()))
	assert.Equal(t, 41, c.Len())
	assert.Equal(t, 24000.0, c.At(0).Price)
	assert.Equal(t, 26000.0, c.At(c.Len()-1).Price)

	atm := c.At(20)
	assert.Equal(t, 25000.0, atm.Price)
	assert.Equal(t, "NIFTY24OCT2425000CE", atm.Call.Instrument)
	assert.Equal(t, "NIFTY24OCT2425000PE", atm.Put.Instrument)
	assert.Equal(t, int64(998800), atm.Call.OI)

	// Skew: OTM puts richer, calls above spot get half a point.
	low := c.At(0)
	assert.InDelta(t, 15+(25012.0-24000)/25012*20, low.Put.IV, 0.01)
	assert.Equal(t, 15.5, c.At(c.Len()-1).Call.IV)
	assert.Equal(t, 15.0, atm.Put.IV)
}

func TestNextWeeklyExpiry(t *testing.T) {
	thursday := time.Date(2024, 10, 24, 9, 0, 0, 0, models.IST)
	next := NextWeeklyExpiry(thursday, time.Thursday)
	assert.Equal(t, "31-Oct-2024", FormatExpiry(next))

	friday := time.Date(2024, 10, 25, 9, 0, 0, 0, models.IST)
	assert.Equal(t, "31-Oct-2024", FormatExpiry(NextWeeklyExpiry(friday, time.Thursday)))

	wed := time.Date(2024, 10, 23, 23, 0, 0, 0, models.IST)
	assert.Equal(t, "24-Oct-2024", FormatExpiry(NextWeeklyExpiry(wed, time.Thursday)))
}

func TestParseExpiry(t *testing.T) {
	for _, in := range []string{"24-Oct-2024", "24-OCT-2024", "24-oct-2024"} {
		got, err := ParseExpiry(in)
		require.NoError(t, err, in)
		assert.Equal(t, "24-Oct-2024", FormatExpiry(got))
		assert.Equal(t, "24OCT24", ExpiryCode(got))
	}

	_, err := ParseExpiry("2024-10-24")
	assert.Error(t, err)
}

func TestDaysToExpiryFromChain(t *testing.T) {
	now := time.Date(2024, 10, 21, 16, 0, 0, 0, models.IST)
	c, err := Synthesize(Params{Symbol: "NIFTY", Spot: 25000, VolIndex: 13, Now: now})
	require.NoError(t, err)

	snap := models.NewMarketSnapshot(25000, 13, c, now)
	assert.Equal(t, 3, snap.DaysToExpiry)
	assert.Equal(t, models.Derived, snap.Provenance)
}
