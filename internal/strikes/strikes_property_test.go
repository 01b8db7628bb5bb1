package strikes

import (
	"math"
	"sort"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"sigma-trader/internal/chain"
	"sigma-trader/internal/models"
)

func newProperties() *gopter.Properties {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	return gopter.NewProperties(parameters)
}

// Property: With sigma multiplier 0, sell-call, sell-put and ATM coincide.
func TestProperty_ZeroSigmaIsATM(t *testing.T) {
	properties := newProperties()

	properties.Property("sigma 0 collapses to ATM", prop.ForAll(
		func(spot, vol float64, days int) bool {
			a := SigmaRange(spot, vol, days, 0, 50)
			atm := chain.ATMStrike(spot, 50)
			return a.SellCallStrike == atm && a.SellPutStrike == atm
		},
		gen.Float64Range(1000, 60000),
		gen.Float64Range(1, 80),
		gen.IntRange(0, 90),
	))

	properties.Property("sell call is never below sell put", prop.ForAll(
		func(spot, vol, mult float64, days int) bool {
			a := SigmaRange(spot, vol, days, mult, 50)
			return a.SellCallStrike >= a.SellPutStrike &&
				math.Mod(a.SellCallStrike, 50) == 0 && math.Mod(a.SellPutStrike, 50) == 0
		},
		gen.Float64Range(1000, 60000),
		gen.Float64Range(1, 80),
		gen.Float64Range(0.5, 3),
		gen.IntRange(0, 90),
	))

	properties.TestingRun(t)
}

// Property: For any non-empty chain and target, Nearest returns a chain
// member that minimizes |K - target|, matching a brute-force scan.
func TestProperty_NearestMatchesBruteForce(t *testing.T) {
	properties := newProperties()
	expiry := time.Date(2024, 10, 24, 15, 30, 0, 0, models.IST)

	properties.Property("nearest matches brute force", prop.ForAll(
		func(steps []int, target float64, missingCall bool) bool {
			seen := make(map[int]bool)
			var rows []models.Strike
			for i, s := range steps {
				if seen[s] {
					continue
				}
				seen[s] = true
				k := float64(s * 50)
				row := models.Strike{
					Price: k,
					Put:   &models.OptionQuote{Instrument: chain.InstrumentID("NIFTY", expiry, k, models.Put)},
				}
				// drop calls on every other row to exercise side filtering
				if !(missingCall && i%2 == 0) {
					row.Call = &models.OptionQuote{Instrument: chain.InstrumentID("NIFTY", expiry, k, models.Call)}
				}
				rows = append(rows, row)
			}
			c, err := models.NewOptionChain("NIFTY", expiry, models.Live, rows)
			if err != nil {
				return false
			}

			for _, side := range []models.OptionSide{models.Call, models.Put} {
				leg, err := Nearest(c, target, side)

				// brute force over the sorted rows
				sorted := c.Strikes()
				sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Price < sorted[j].Price })
				bestDist := math.Inf(1)
				var bestK float64
				found := false
				for _, r := range sorted {
					if r.Side(side) == nil {
						continue
					}
					if d := math.Abs(r.Price - target); d < bestDist {
						bestDist, bestK, found = d, r.Price, true
					}
				}

				if !found {
					if err == nil {
						return false
					}
					continue
				}
				if err != nil || leg.Strike != bestK || !c.Contains(leg.Strike) {
					return false
				}
				if leg.Instrument != chain.InstrumentID("NIFTY", expiry, bestK, side) {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(15, gen.IntRange(400, 600)).SuchThat(func(v []int) bool { return len(v) > 0 }),
		gen.Float64Range(19000, 31000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
