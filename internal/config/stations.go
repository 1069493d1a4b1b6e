package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/i474232898/pm25-forecast/internal/forecast"
)

//go:embed stations.yaml
var defaultStationsYAML []byte

// StationRegistry lists the stations tracked by the service and how feed
// station names map onto them.
type StationRegistry struct {
	// State filters the feed; Suffix is appended by the generic name rule.
	State    string         `yaml:"state"`
	Suffix   string         `yaml:"suffix"`
	Stations []StationEntry `yaml:"stations"`
}

type StationEntry struct {
	ID      string   `yaml:"id"`
	Lat     float64  `yaml:"lat"`
	Lon     float64  `yaml:"lon"`
	Aliases []string `yaml:"aliases"`
}

// IDs returns every station id in registry order.
func (r StationRegistry) IDs() []string {
	out := make([]string, 0, len(r.Stations))
	for _, s := range r.Stations {
		out = append(out, s.ID)
	}
	return out
}

// Known returns the stations as forecast stations.
func (r StationRegistry) Known() []forecast.Station {
	out := make([]forecast.Station, 0, len(r.Stations))
	for _, s := range r.Stations {
		out = append(out, forecast.Station{ID: s.ID, Lat: s.Lat, Lon: s.Lon})
	}
	return out
}

// DefaultStations returns the built-in Delhi registry.
func DefaultStations() (StationRegistry, error) {
	return parseStations(defaultStationsYAML)
}

// LoadStations reads a registry from a YAML file.
func LoadStations(path string) (StationRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return StationRegistry{}, fmt.Errorf("read stations file: %w", err)
	}
	return parseStations(data)
}

func parseStations(data []byte) (StationRegistry, error) {
	var reg StationRegistry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return StationRegistry{}, fmt.Errorf("decode stations: %w", err)
	}
	seen := make(map[string]bool, len(reg.Stations))
	for i, s := range reg.Stations {
		if s.ID == "" {
			return StationRegistry{}, fmt.Errorf("station %d has no id", i)
		}
		if seen[s.ID] {
			return StationRegistry{}, fmt.Errorf("duplicate station id %q", s.ID)
		}
		seen[s.ID] = true
	}
	return reg, nil
}
