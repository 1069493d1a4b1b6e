package forecast_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/pm25-forecast/internal/forecast"
	"github.com/i474232898/pm25-forecast/internal/forecast/providers"
	"github.com/i474232898/pm25-forecast/internal/store"
)

type stubAnchors struct {
	lookup forecast.AnchorLookup
	err    error
}

func (s *stubAnchors) Name() string { return "stub" }

func (s *stubAnchors) FetchAnchors(context.Context) (forecast.AnchorLookup, error) {
	return s.lookup, s.err
}

type capturePublisher struct {
	docs []forecast.Document
	err  error
}

func (p *capturePublisher) Publish(_ context.Context, doc forecast.Document) error {
	p.docs = append(p.docs, doc)
	return p.err
}

func value(v float64) *float64 { return &v }

type fixture struct {
	anchors   *stubAnchors
	mem       *store.MemoryStore
	previous  *store.MemoryPrevious
	publisher *capturePublisher
	service   *forecast.Service
}

func newFixture(t *testing.T, stabilize bool) *fixture {
	t.Helper()
	f := &fixture{
		anchors:   &stubAnchors{},
		mem:       store.NewMemoryStore(10, 0),
		previous:  store.NewMemoryPrevious(),
		publisher: &capturePublisher{},
	}
	f.mem.Register(
		forecast.Station{ID: "Alipur_Delhi", Lat: 28.81, Lon: 77.15},
		forecast.Station{ID: "Bawana_Delhi", Lat: 28.77, Lon: 77.05},
	)
	reconciler := forecast.NewReconciler(forecast.DefaultParams(), providers.PersistenceModel{}, 2, zerolog.Nop())
	f.service = forecast.NewService(
		forecast.ServiceConfig{HistoryWindow: 24, Stabilize: stabilize},
		f.anchors, f.mem, f.previous, f.mem, reconciler, zerolog.Nop(), f.publisher,
	)
	return f
}

func TestRunCycle(t *testing.T) {
	f := newFixture(t, true)
	f.anchors.lookup = forecast.AnchorLookup{
		"Alipur_Delhi": {Value: value(50), Timestamp: "14-10-2026 10:00:00", Source: providers.CPCBSource},
	}

	doc, err := f.service.RunCycle(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, doc.RunID)
	assert.Equal(t, forecast.DocumentSource, doc.Source)
	// Bawana has no history yet and is skipped.
	require.Len(t, doc.Forecasts, 1)
	rec := doc.Forecasts[0]
	assert.Equal(t, "Alipur_Delhi", rec.StationID)
	assert.Equal(t, []float64{50, 50, 50}, rec.Finals())
	assert.False(t, rec.Stabilized)
	assert.Equal(t, 28.81, rec.Lat)

	prev, ok, err := f.previous.LoadPrevious(context.Background(), "Alipur_Delhi")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float64{50, 50, 50}, prev)

	latest, err := f.service.Latest()
	require.NoError(t, err)
	assert.Equal(t, doc.RunID, latest.RunID)
	require.Len(t, f.publisher.docs, 1)

	// An unchanged feed is not recorded twice and the next cycle stabilizes.
	doc, err = f.service.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, doc.Forecasts, 1)
	assert.True(t, doc.Forecasts[0].Stabilized)
	assert.Len(t, f.mem.Recent("Alipur_Delhi", 0), 1)
}

func TestRunCycleWithoutStabilization(t *testing.T) {
	f := newFixture(t, false)
	f.anchors.lookup = forecast.AnchorLookup{
		"Bawana_Delhi": {Value: value(900), Timestamp: "14-10-2026 10:00:00", Source: providers.CPCBSource},
	}

	for i := 0; i < 2; i++ {
		doc, err := f.service.RunCycle(context.Background())
		require.NoError(t, err)
		require.Len(t, doc.Forecasts, 1)
		assert.False(t, doc.Forecasts[0].Stabilized)
		assert.Equal(t, []float64{900, 900, 900}, doc.Forecasts[0].Finals())
		assert.Equal(t, forecast.CategorySevere, doc.Forecasts[0].Forecasts[0].Category)
	}
}

func TestRunCycleCapsCarriedOverValues(t *testing.T) {
	f := newFixture(t, true)
	f.anchors.lookup = forecast.AnchorLookup{
		"Bawana_Delhi": {Value: value(900), Timestamp: "14-10-2026 10:00:00", Source: providers.CPCBSource},
	}

	doc, err := f.service.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, doc.Forecasts, 1)
	assert.Equal(t, []float64{900, 900, 900}, doc.Forecasts[0].Finals())

	doc, err = f.service.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, doc.Forecasts, 1)
	assert.True(t, doc.Forecasts[0].Stabilized)
	assert.Equal(t, []float64{800, 800, 800}, doc.Forecasts[0].Finals())
}

func TestRunCycleAnchorOutage(t *testing.T) {
	f := newFixture(t, true)
	f.mem.Append(forecast.Station{ID: "Alipur_Delhi"}, forecast.Observation{Time: time.Now().UTC(), PM25: 80})
	f.anchors.err = errors.New("feed down")

	doc, err := f.service.RunCycle(context.Background())
	require.NoError(t, err)

	require.Len(t, doc.Forecasts, 1)
	rec := doc.Forecasts[0]
	assert.Equal(t, []float64{80, 80, 80}, rec.Finals())
	assert.Equal(t, forecast.SourceUnavailable, rec.CurrentSafetyData.Source)
	assert.Contains(t, rec.Notes, "no anchor value; model forecast used unblended")
}

func TestRunCycleEmpty(t *testing.T) {
	f := newFixture(t, true)

	doc, err := f.service.RunCycle(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, doc.Forecasts)
	assert.Empty(t, doc.Forecasts)
}

func TestRunCycleReportsPublishFailure(t *testing.T) {
	f := newFixture(t, true)
	f.publisher.err = errors.New("disk full")
	f.anchors.lookup = forecast.AnchorLookup{
		"Alipur_Delhi": {Value: value(20), Timestamp: "14-10-2026 10:00:00", Source: providers.CPCBSource},
	}

	doc, err := f.service.RunCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, doc.Forecasts, 1)

	// The document is still served.
	_, err = f.service.Latest()
	assert.NoError(t, err)
}

func TestLatestFor(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.service.LatestFor("Alipur_Delhi")
	assert.ErrorIs(t, err, store.ErrNotFound)

	f.anchors.lookup = forecast.AnchorLookup{
		"Alipur_Delhi": {Value: value(20), Timestamp: "14-10-2026 10:00:00", Source: providers.CPCBSource},
	}
	_, err = f.service.RunCycle(context.Background())
	require.NoError(t, err)

	rec, err := f.service.LatestFor("Alipur_Delhi")
	require.NoError(t, err)
	assert.Equal(t, "Alipur_Delhi", rec.StationID)

	_, err = f.service.LatestFor("Bawana_Delhi")
	assert.ErrorIs(t, err, forecast.ErrUnknownStation)
}

func TestServiceReconcile(t *testing.T) {
	f := newFixture(t, true)
	in := forecast.StationInput{Station: forecast.Station{ID: "adhoc"}}

	rec, err := f.service.Reconcile(in, []float64{300, 300, 300}, &forecast.Anchor{Value: value(0), Source: "manual"})
	require.NoError(t, err)
	assert.InDelta(t, 45, rec.Forecasts[0].Final, 0.06)
	assert.Equal(t, "manual", rec.CurrentSafetyData.Source)

	rec, err = f.service.Reconcile(in, []float64{300, 300, 300}, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{300, 300, 300}, rec.Finals())

	_, err = f.service.Latest()
	assert.ErrorIs(t, err, store.ErrNotFound)
}
