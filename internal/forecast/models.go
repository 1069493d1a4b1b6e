package forecast

import (
	"time"
)

// Horizon is a forecast offset in hours.
type Horizon int

// Horizons are the fixed forecast offsets, always processed in this order.
var Horizons = [3]Horizon{24, 48, 72}

// HorizonCount is the length of every forecast vector.
const HorizonCount = len(Horizons)

// Category is a discrete PM2.5 severity band.
type Category string

const (
	CategoryGood         Category = "Good"
	CategorySatisfactory Category = "Satisfactory"
	CategoryModerate     Category = "Moderate"
	CategoryPoor         Category = "Poor"
	CategoryVeryPoor     Category = "Very Poor"
	CategorySevere       Category = "Severe"
)

// Station identifies a monitoring station.
// Lat/Lon are 0 when unknown.
type Station struct {
	ID  string  `json:"station_id" yaml:"id"`
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Anchor is the authoritative real-time measurement for a station.
type Anchor struct {
	Value             *float64 `json:"current_value"`
	Timestamp         string   `json:"timestamp"`
	DominantPollutant string   `json:"dominant_pollutant,omitempty"`
	Index             *float64 `json:"index_value"`
	Source            string   `json:"source_tag"`

	// Feed coordinates, preferred over the station's own when both are set.
	Lat float64 `json:"lat,omitempty"`
	Lon float64 `json:"lon,omitempty"`
}

// Observation is one point of a station's recent history, fed to the model.
type Observation struct {
	Time time.Time `json:"time"`
	PM25 float64   `json:"pm25"`
}

// BlendOutcome holds the per-horizon vectors produced by the sequential blend.
type BlendOutcome struct {
	Raw       [HorizonCount]float64
	Baselines [HorizonCount]float64
	Trust     [HorizonCount]float64
	Blended   [HorizonCount]float64

	// Anchored is false when blending was bypassed for lack of an anchor.
	Anchored bool
}

// HorizonForecast is the published forecast for a single horizon.
type HorizonForecast struct {
	HorizonHours     Horizon  `json:"horizon_hours"`
	ModelRaw         float64  `json:"pm25_model_raw"`
	BaselineUsed     float64  `json:"pm25_baseline_used"`
	TrustModel       float64  `json:"trust_model"`
	Final            float64  `json:"pm25_final"`
	Category         Category `json:"category"`
	PrimaryPollutant string   `json:"primary_pollutant"`
}

// SafetySnapshot is the anchor metadata copied into a record.
type SafetySnapshot struct {
	AQI                *float64 `json:"aqi"`
	ProminentPollutant string   `json:"prominent_pollutant"`
	CurrentPM25        *float64 `json:"current_pm25"`
	LastUpdate         *string  `json:"last_update"`
	Source             string   `json:"source"`
}

// Record is the reconciled output for one station.
type Record struct {
	StationID         string            `json:"station_id"`
	Lat               float64           `json:"lat"`
	Lon               float64           `json:"lon"`
	Forecasts         []HorizonForecast `json:"forecasts"`
	CurrentSafetyData SafetySnapshot    `json:"current_safety_data"`
	Stabilized        bool              `json:"stabilized"`
	Notes             []string          `json:"notes,omitempty"`
}

// Finals returns the published final value of every horizon in order.
func (r Record) Finals() []float64 {
	out := make([]float64, 0, len(r.Forecasts))
	for _, f := range r.Forecasts {
		out = append(out, f.Final)
	}
	return out
}

// StationInput is everything the reconciler needs for one station besides the anchor.
type StationInput struct {
	Station Station
	History []Observation

	// Previous is the last published vector for the station; nil disables stabilization.
	Previous []float64
}

// StationFailure reports a station whose record could not be produced.
type StationFailure struct {
	StationID string `json:"station_id"`
	Error     string `json:"error"`
}

// Document is a published batch of records.
type Document struct {
	RunID       string           `json:"run_id"`
	GeneratedAt time.Time        `json:"generated_at"`
	Source      string           `json:"source"`
	Forecasts   []Record         `json:"forecasts"`
	Failures    []StationFailure `json:"failures,omitempty"`
}

// Find returns the record for a station.
func (d Document) Find(stationID string) (Record, bool) {
	for _, r := range d.Forecasts {
		if r.StationID == stationID {
			return r, true
		}
	}
	return Record{}, false
}
