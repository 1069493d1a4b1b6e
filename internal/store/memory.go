package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/i474232898/pm25-forecast/internal/forecast"
)

var (
	// ErrNotFound is returned when no forecast has been published yet.
	ErrNotFound = errors.New("no forecast data available")
)

// stationHistory holds a time-ordered list of observations for a station.
type stationHistory struct {
	station      forecast.Station
	observations []forecast.Observation
}

// MemoryStore is a concurrency-safe in-memory store of station history and
// of the latest published document.
type MemoryStore struct {
	mu sync.RWMutex

	// key: station id
	data   map[string]*stationHistory
	latest *forecast.Document

	// retention configuration
	maxHistory int           // max number of observations per station
	maxAge     time.Duration // optional max age for observations
	now        func() time.Time
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]*stationHistory),
		maxHistory: maxHistory,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// Register makes stations known with their coordinates before any observation arrives.
func (s *MemoryStore) Register(stations ...forecast.Station) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range stations {
		s.entry(st)
	}
}

// entry returns the history of a station, creating it and filling in
// missing coordinates. Caller must hold the write lock.
func (s *MemoryStore) entry(st forecast.Station) *stationHistory {
	h, ok := s.data[st.ID]
	if !ok {
		h = &stationHistory{station: forecast.Station{ID: st.ID}}
		s.data[st.ID] = h
	}
	if st.Lat != 0 && st.Lon != 0 {
		h.station.Lat, h.station.Lon = st.Lat, st.Lon
	}
	return h
}

// Append adds an observation and enforces retention. Observations not newer
// than the latest one are ignored, so an unchanged feed is not recorded twice.
func (s *MemoryStore) Append(st forecast.Station, obs forecast.Observation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.entry(st)
	if n := len(history.observations); n > 0 && !obs.Time.After(history.observations[n-1].Time) {
		return
	}
	history.observations = append(history.observations, obs)

	// Enforce retention by count.
	if s.maxHistory > 0 && len(history.observations) > s.maxHistory {
		over := len(history.observations) - s.maxHistory
		history.observations = history.observations[over:]
	}

	// Enforce retention by age; the newest observation is always kept.
	if s.maxAge > 0 {
		cutoff := s.now().Add(-s.maxAge)
		i := 0
		for ; i < len(history.observations); i++ {
			if !history.observations[i].Time.Before(cutoff) {
				break
			}
		}
		if i == len(history.observations) {
			i--
		}
		if i > 0 {
			history.observations = history.observations[i:]
		}
	}
}

// Stations returns every known station ordered by id.
func (s *MemoryStore) Stations() []forecast.Station {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]forecast.Station, 0, len(s.data))
	for _, h := range s.data {
		out = append(out, h.station)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Recent returns a copy of the last n observations of a station, oldest first.
func (s *MemoryStore) Recent(stationID string, n int) []forecast.Observation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.data[stationID]
	if !ok || len(h.observations) == 0 {
		return nil
	}
	obs := h.observations
	if n > 0 && len(obs) > n {
		obs = obs[len(obs)-n:]
	}
	out := make([]forecast.Observation, len(obs))
	copy(out, obs)
	return out
}

// SaveLatest replaces the latest published document.
func (s *MemoryStore) SaveLatest(doc forecast.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = &doc
}

// Latest returns the latest published document.
func (s *MemoryStore) Latest() (forecast.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return forecast.Document{}, ErrNotFound
	}
	return *s.latest, nil
}

var (
	_ forecast.HistoryStore = (*MemoryStore)(nil)
	_ forecast.RecordStore  = (*MemoryStore)(nil)
)
