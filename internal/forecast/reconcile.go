package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrMissingStationID is returned when a station input has no identifier.
var ErrMissingStationID = errors.New("station id is required")

// SourceUnavailable is reported in the safety snapshot of stations without an anchor.
const SourceUnavailable = "unavailable"

// Reconcile builds the record of one station from its raw model forecast and
// its anchor. It performs no I/O and returns identical output for identical input.
func Reconcile(p Params, in StationInput, raw []float64, anchor Anchor, hasAnchor bool) (Record, error) {
	id := in.Station.ID
	if id == "" {
		return Record{}, ErrMissingStationID
	}

	var current *float64
	if hasAnchor {
		current = anchor.Value
	}
	outcome, err := p.Blend(raw, current)
	if err != nil {
		return Record{}, &StationError{StationID: id, Err: err}
	}

	finals := outcome.Blended
	for i := range finals {
		finals[i] = math.Max(0, finals[i])
	}

	stabilized := false
	if in.Previous != nil {
		finals, err = p.Stabilize(finals, in.Previous)
		if err != nil {
			return Record{}, &StationError{StationID: id, Err: err}
		}
		stabilized = true
	}

	pollutant := p.DefaultPollutant
	if hasAnchor && anchor.DominantPollutant != "" {
		pollutant = anchor.DominantPollutant
	}

	lat, lon := in.Station.Lat, in.Station.Lon
	if hasAnchor && anchor.Lat != 0 && anchor.Lon != 0 {
		lat, lon = anchor.Lat, anchor.Lon
	}

	rec := Record{
		StationID:         id,
		Lat:               lat,
		Lon:               lon,
		Forecasts:         make([]HorizonForecast, 0, HorizonCount),
		CurrentSafetyData: safetySnapshot(anchor, hasAnchor, pollutant),
		Stabilized:        stabilized,
	}
	for i, h := range Horizons {
		rec.Forecasts = append(rec.Forecasts, HorizonForecast{
			HorizonHours:     h,
			ModelRaw:         roundTo(outcome.Raw[i], p.OutputDecimals),
			BaselineUsed:     roundTo(outcome.Baselines[i], p.OutputDecimals),
			TrustModel:       roundTo(outcome.Trust[i], p.TrustDecimals),
			Final:            roundTo(finals[i], p.OutputDecimals),
			Category:         p.Classify(finals[i]),
			PrimaryPollutant: pollutant,
		})
	}
	return rec, nil
}

func safetySnapshot(a Anchor, ok bool, pollutant string) SafetySnapshot {
	if !ok {
		return SafetySnapshot{ProminentPollutant: pollutant, Source: SourceUnavailable}
	}
	snap := SafetySnapshot{
		AQI:                copyFloat(a.Index),
		ProminentPollutant: pollutant,
		CurrentPM25:        copyFloat(a.Value),
		Source:             a.Source,
	}
	if a.Timestamp != "" {
		ts := a.Timestamp
		snap.LastUpdate = &ts
	}
	return snap
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// BatchResult holds the outcome of reconciling a set of stations.
// Records keep the order of the inputs they came from.
type BatchResult struct {
	Records  []Record
	Failures []StationFailure
}

// Reconciler drives per-station reconciliation over a batch, calling the
// model for each station with bounded concurrency.
type Reconciler struct {
	params      Params
	model       Model
	concurrency int
	logger      zerolog.Logger
}

// NewReconciler creates a Reconciler. A concurrency below 1 runs sequentially.
func NewReconciler(params Params, model Model, concurrency int, logger zerolog.Logger) *Reconciler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Reconciler{
		params:      params,
		model:       model,
		concurrency: concurrency,
		logger:      logger.With().Str("component", "forecast.reconciler").Logger(),
	}
}

// Params returns the engine parameters in use.
func (r *Reconciler) Params() Params {
	return r.params
}

type stationResult struct {
	record  Record
	failure *StationFailure
}

// Run reconciles every input. A failing station is reported in Failures and
// never affects the others.
func (r *Reconciler) Run(ctx context.Context, inputs []StationInput, anchors AnchorLookup) BatchResult {
	results := make([]stationResult, len(inputs))

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			results[i] = r.reconcileOne(ctx, in, anchors)
			return nil
		})
	}
	_ = g.Wait()

	var out BatchResult
	for _, res := range results {
		if res.failure != nil {
			out.Failures = append(out.Failures, *res.failure)
			continue
		}
		out.Records = append(out.Records, res.record)
	}
	return out
}

func (r *Reconciler) reconcileOne(ctx context.Context, in StationInput, anchors AnchorLookup) stationResult {
	id := in.Station.ID
	anchor, hasAnchor := anchors.Resolve(id)

	var notes []string
	raw, err := r.model.Predict(ctx, id, in.History)
	if err != nil {
		r.logger.Warn().Err(err).Str("station", id).Str("model", r.model.Name()).
			Msg("model inference failed; using zero forecast")
		raw = make([]float64, HorizonCount)
		notes = append(notes, fmt.Sprintf("model inference failed: %v", err))
	}

	rec, err := Reconcile(r.params, in, raw, anchor, hasAnchor)
	if err != nil {
		r.logger.Error().Err(err).Str("station", id).Msg("reconciliation rejected station")
		return stationResult{failure: &StationFailure{StationID: id, Error: err.Error()}}
	}
	if !hasAnchor || anchor.Value == nil {
		notes = append(notes, "no anchor value; model forecast used unblended")
	}
	rec.Notes = notes
	return stationResult{record: rec}
}
