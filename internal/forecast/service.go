package forecast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrUnknownStation is returned when the latest document has no record for a station.
var ErrUnknownStation = errors.New("no forecast for station")

// DocumentSource tags published documents.
const DocumentSource = "CPCB_RSS_HYBRID"

// ServiceConfig controls a publishing cycle.
type ServiceConfig struct {
	// HistoryWindow is the number of recent observations handed to the model.
	HistoryWindow int
	// Stabilize enables cross-cycle stabilization against the previous published vector.
	Stabilize bool
}

// Service runs publishing cycles: it refreshes anchors, records history,
// reconciles every station and hands the result to stores and publishers.
type Service struct {
	cfg        ServiceConfig
	anchors    AnchorSource
	history    HistoryStore
	previous   PreviousStore
	records    RecordStore
	publishers []Publisher
	reconciler *Reconciler
	logger     zerolog.Logger

	now   func() time.Time
	newID func() string
}

// NewService creates a new Service.
func NewService(
	cfg ServiceConfig,
	anchors AnchorSource,
	history HistoryStore,
	previous PreviousStore,
	records RecordStore,
	reconciler *Reconciler,
	logger zerolog.Logger,
	publishers ...Publisher,
) *Service {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 48
	}
	return &Service{
		cfg:        cfg,
		anchors:    anchors,
		history:    history,
		previous:   previous,
		records:    records,
		publishers: publishers,
		reconciler: reconciler,
		logger:     logger.With().Str("component", "forecast.service").Logger(),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// RunCycle performs one publishing cycle. The returned document is valid even
// when err is non-nil; err only reports persistence or publishing problems.
func (s *Service) RunCycle(ctx context.Context) (Document, error) {
	started := s.now()

	lookup, err := s.anchors.FetchAnchors(ctx)
	if err != nil {
		// Without anchors every station falls back to the unblended model forecast.
		s.logger.Error().Err(err).Str("source", s.anchors.Name()).Msg("anchor refresh failed")
		lookup = AnchorLookup{}
	}
	s.recordObservations(lookup, started)

	stations := s.history.Stations()
	inputs := make([]StationInput, 0, len(stations))
	for _, st := range stations {
		hist := s.history.Recent(st.ID, s.cfg.HistoryWindow)
		if len(hist) == 0 {
			continue
		}
		in := StationInput{Station: st, History: hist}
		if s.cfg.Stabilize {
			in.Previous = s.loadPrevious(ctx, st.ID)
		}
		inputs = append(inputs, in)
	}

	res := s.reconciler.Run(ctx, inputs, lookup)
	doc := Document{
		RunID:       s.newID(),
		GeneratedAt: started.UTC(),
		Source:      DocumentSource,
		Forecasts:   res.Records,
		Failures:    res.Failures,
	}
	if doc.Forecasts == nil {
		doc.Forecasts = []Record{}
	}

	var errs []error
	for _, rec := range doc.Forecasts {
		if err := s.previous.SavePrevious(ctx, rec.StationID, rec.Finals()); err != nil {
			errs = append(errs, fmt.Errorf("save previous for %s: %w", rec.StationID, err))
		}
	}
	s.records.SaveLatest(doc)

	for _, p := range s.publishers {
		if err := p.Publish(ctx, doc); err != nil {
			errs = append(errs, fmt.Errorf("publish: %w", err))
		}
	}

	s.logger.Info().
		Str("run_id", doc.RunID).
		Int("anchors", len(lookup)).
		Int("stations", len(inputs)).
		Int("records", len(doc.Forecasts)).
		Int("failures", len(doc.Failures)).
		Dur("took", s.now().Sub(started)).
		Msg("forecast cycle completed")

	return doc, errors.Join(errs...)
}

func (s *Service) recordObservations(lookup AnchorLookup, now time.Time) {
	for id, a := range lookup {
		if a.Value == nil {
			continue
		}
		s.history.Append(
			Station{ID: id, Lat: a.Lat, Lon: a.Lon},
			Observation{Time: a.Time(now.UTC()), PM25: *a.Value},
		)
	}
}

func (s *Service) loadPrevious(ctx context.Context, stationID string) []float64 {
	prev, ok, err := s.previous.LoadPrevious(ctx, stationID)
	if err != nil {
		s.logger.Warn().Err(err).Str("station", stationID).Msg("previous forecast unavailable; skipping stabilization")
		return nil
	}
	if !ok {
		return nil
	}
	return prev
}

// Reconcile runs the engine for a single caller-supplied station, without
// touching any store. A nil anchor means no anchor is available.
func (s *Service) Reconcile(in StationInput, raw []float64, anchor *Anchor) (Record, error) {
	if anchor == nil {
		return Reconcile(s.reconciler.Params(), in, raw, Anchor{}, false)
	}
	return Reconcile(s.reconciler.Params(), in, raw, *anchor, true)
}

// Latest returns the most recently published document.
func (s *Service) Latest() (Document, error) {
	return s.records.Latest()
}

// LatestFor returns the most recently published record of a station.
func (s *Service) LatestFor(stationID string) (Record, error) {
	doc, err := s.records.Latest()
	if err != nil {
		return Record{}, err
	}
	rec, ok := doc.Find(stationID)
	if !ok {
		return Record{}, ErrUnknownStation
	}
	return rec, nil
}
