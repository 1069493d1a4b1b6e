package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/i474232898/pm25-forecast/internal/forecast"
)

// MemoryPrevious keeps the last published vector per station in process memory.
type MemoryPrevious struct {
	mu   sync.RWMutex
	data map[string][]float64
}

// NewMemoryPrevious creates an empty MemoryPrevious.
func NewMemoryPrevious() *MemoryPrevious {
	return &MemoryPrevious{data: make(map[string][]float64)}
}

func (m *MemoryPrevious) LoadPrevious(_ context.Context, stationID string) ([]float64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[stationID]
	if !ok {
		return nil, false, nil
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *MemoryPrevious) SavePrevious(_ context.Context, stationID string, values []float64) error {
	if err := checkPrevious(values); err != nil {
		return err
	}
	v := make([]float64, len(values))
	copy(v, values)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[stationID] = v
	return nil
}

func checkPrevious(values []float64) error {
	if len(values) != forecast.HorizonCount {
		return fmt.Errorf("%w, got %d", forecast.ErrForecastShape, len(values))
	}
	return nil
}

var _ forecast.PreviousStore = (*MemoryPrevious)(nil)
