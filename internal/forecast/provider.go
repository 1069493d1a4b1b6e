package forecast

import (
	"context"
)

// AnchorSource abstracts a real-time measurement feed (e.g. the CPCB RSS feed).
type AnchorSource interface {
	Name() string
	FetchAnchors(ctx context.Context) (AnchorLookup, error)
}

// Model abstracts the external predictive model. Predict returns one value per horizon.
type Model interface {
	Name() string
	Predict(ctx context.Context, stationID string, history []Observation) ([]float64, error)
}

// HistoryStore keeps the recent observations of every known station.
type HistoryStore interface {
	Append(st Station, obs Observation)
	Stations() []Station
	Recent(stationID string, n int) []Observation
}

// PreviousStore persists the last published vector per station between cycles.
type PreviousStore interface {
	LoadPrevious(ctx context.Context, stationID string) ([]float64, bool, error)
	SavePrevious(ctx context.Context, stationID string, values []float64) error
}

// RecordStore keeps the latest published document.
type RecordStore interface {
	SaveLatest(doc Document)
	Latest() (Document, error)
}

// Publisher hands a finished document to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, doc Document) error
}
