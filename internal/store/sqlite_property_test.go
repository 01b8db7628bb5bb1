package store

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
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

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRun(id string, started time.Time, strategy models.Strategy, spot float64) *RunRecord {
	orderID := "PAPER-000001"
	return &RunRecord{
		ID:         id,
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		Symbol:     "NIFTY",
		Spot:       spot,
		VolIndex:   15,
		Expiry:     time.Date(2024, 10, 24, 10, 0, 0, 0, time.UTC),
		Provenance: models.Derived,
		Strategy:   strategy,
		SigmaMult:  1,
		Source:     models.SourceModel,
		Legs: []models.Leg{
			{Side: models.Call, Strike: 25450, Instrument: "NIFTY24OCT2425450CE", Quantity: 75, Action: models.ActionSell, OrderID: &orderID},
			{Side: models.Put, Strike: 24550, Instrument: "NIFTY24OCT2424550PE", Quantity: 75, Action: models.ActionSell},
		},
		Risk:       models.RiskApproved,
		RiskReason: "within limits",
		Placed:     true,
	}
}

// Property: For any run record, saving and reading it back yields the same
// record (round-trip consistency).
func TestProperty_RunRoundTripConsistency(t *testing.T) {
	s := newTestStore(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	strategyGen := gen.OneConstOf(models.ShortStrangle, models.ShortStraddle, models.IronFly)
	spotGen := gen.Float64Range(15000, 30000)

	n := 0
	properties.Property("run round-trip: save then list produces equivalent data", prop.ForAll(
		func(strategy models.Strategy, spot float64, offset int) bool {
			n++
			ctx := context.Background()
			id := fmt.Sprintf("run-%d", n)
			started := time.Date(2030, 1, 1, 9, 15, 0, 0, time.UTC).Add(time.Duration(n) * time.Hour)
			in := sampleRun(id, started, strategy, math.Round(spot*100)/100)
			in.SigmaMult = 0.5 + float64(offset)/10

			if err := s.SaveRun(ctx, in); err != nil {
				t.Logf("save failed: %v", err)
				return false
			}
			got, err := s.LastRun(ctx, "nifty")
			if err != nil {
				t.Logf("last run failed: %v", err)
				return false
			}
			return got.ID == in.ID &&
				got.Strategy == in.Strategy &&
				got.Spot == in.Spot &&
				got.SigmaMult == in.SigmaMult &&
				got.StartedAt.Equal(in.StartedAt) &&
				got.Expiry.Equal(in.Expiry) &&
				len(got.Legs) == 2 &&
				got.Legs[0].Instrument == in.Legs[0].Instrument &&
				got.Legs[0].OrderID != nil && *got.Legs[0].OrderID == *in.Legs[0].OrderID &&
				got.Legs[1].OrderID == nil &&
				got.Risk == in.Risk && got.Placed
		},
		strategyGen,
		spotGen,
		gen.IntRange(0, 25),
	))

	properties.TestingRun(t)
}

func TestLastRunSkipsFailedRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.LastRun(ctx, "NIFTY")
	assert.True(t, errors.Is(err, errors.ErrDataNotFound))

	base := time.Date(2024, 10, 21, 9, 30, 0, 0, time.UTC)
	require.NoError(t, s.SaveRun(ctx, sampleRun("ok", base, models.ShortStrangle, 25000)))
	failed := &RunRecord{ID: "failed", StartedAt: base.Add(time.Hour), FinishedAt: base.Add(time.Hour), Symbol: "NIFTY",
		ErrStage: "scanner", ErrMessage: "spot unavailable"}
	require.NoError(t, s.SaveRun(ctx, failed))

	last, err := s.LastRun(ctx, "NIFTY")
	require.NoError(t, err)
	assert.Equal(t, "ok", last.ID)

	all, err := s.ListRuns(ctx, RunFilter{Symbol: "NIFTY"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "failed", all[0].ID)
	assert.True(t, all[0].Failed())
	assert.Empty(t, all[0].Legs)
}

func TestLastPositionSkipsUnplacedRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.LastPosition(ctx, "NIFTY")
	assert.True(t, errors.Is(err, errors.ErrDataNotFound))

	base := time.Date(2024, 10, 21, 9, 30, 0, 0, time.UTC)
	require.NoError(t, s.SaveRun(ctx, sampleRun("placed", base, models.ShortStrangle, 25000)))

	rejected := sampleRun("rejected", base.Add(time.Hour), models.ShortStrangle, 25100)
	rejected.Risk = models.RiskRejected
	rejected.Placed = false
	require.NoError(t, s.SaveRun(ctx, rejected))

	approved := sampleRun("approved", base.Add(2*time.Hour), models.IronFly, 25200)
	approved.Placed = false
	require.NoError(t, s.SaveRun(ctx, approved))

	last, err := s.LastRun(ctx, "NIFTY")
	require.NoError(t, err)
	assert.Equal(t, "approved", last.ID)

	pos, err := s.LastPosition(ctx, "nifty")
	require.NoError(t, err)
	assert.Equal(t, "placed", pos.ID)
	assert.True(t, pos.Placed)
	assert.Len(t, pos.Legs, 2)
}

func TestSaveRunRequiresID(t *testing.T) {
	s := newTestStore(t)
	err := s.SaveRun(context.Background(), &RunRecord{})
	assert.True(t, errors.Is(err, errors.ErrConfigInvalid))
}
