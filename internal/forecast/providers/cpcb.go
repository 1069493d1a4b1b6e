package providers

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/i474232898/pm25-forecast/internal/common"
	"github.com/i474232898/pm25-forecast/internal/forecast"
)

// DefaultCPCBFeedURL is the public CAAQMS RSS feed.
const DefaultCPCBFeedURL = "https://airquality.cpcb.gov.in/caaqms/rss_feed"

// CPCBSource tags anchors coming from the CPCB feed.
const CPCBSource = "CPCB_RSS"

// PollutantReading is one pollutant of a safety record. Missing values are nil.
type PollutantReading struct {
	Avg      *float64 `json:"Avg"`
	SubIndex *float64 `json:"SubIndex"`
}

// SafetyRecord is a station entry of the safety layer, as persisted on disk.
type SafetyRecord struct {
	StationID          string                      `json:"Station_ID"`
	RSSStationName     string                      `json:"RSS_Station_Name"`
	Latitude           string                      `json:"Latitude"`
	Longitude          string                      `json:"Longitude"`
	LastUpdate         string                      `json:"Last_Update"`
	Pollutants         map[string]PollutantReading `json:"Pollutants"`
	AQIValue           *string                     `json:"AQI_Value"`
	ProminentPollutant *string                     `json:"Prominent_Pollutant"`
}

// Anchor converts the record into an anchor for the given pollutant.
func (r SafetyRecord) Anchor(pollutant, source string) forecast.Anchor {
	a := forecast.Anchor{
		Timestamp: r.LastUpdate,
		Source:    source,
	}
	if p, ok := r.Pollutants[pollutant]; ok && p.Avg != nil {
		v := *p.Avg
		a.Value = &v
	}
	if r.AQIValue != nil {
		a.Index = parseReading(*r.AQIValue)
	}
	if r.ProminentPollutant != nil {
		a.DominantPollutant = strings.TrimSpace(*r.ProminentPollutant)
	}
	lat, latErr := strconv.ParseFloat(strings.TrimSpace(r.Latitude), 64)
	lon, lonErr := strconv.ParseFloat(strings.TrimSpace(r.Longitude), 64)
	if latErr == nil && lonErr == nil {
		a.Lat, a.Lon = lat, lon
	}
	return a
}

// ToLookup indexes safety records by station id.
func ToLookup(records []SafetyRecord, pollutant, source string) forecast.AnchorLookup {
	out := make(forecast.AnchorLookup, len(records))
	for _, r := range records {
		out[r.StationID] = r.Anchor(pollutant, source)
	}
	return out
}

// parseReading parses a feed value; "NA", empty, malformed and non-finite values are missing.
func parseReading(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "NA") {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Alias maps any feed station name containing one of Contains to StationID.
type Alias struct {
	StationID string
	Contains  []string
}

// StationMatcher maps feed station names onto internal station ids.
type StationMatcher struct {
	targets map[string]struct{}
	aliases []Alias
	suffix  string
}

// NewStationMatcher creates a matcher. Aliases are tried in order before the
// generic rule, which replaces spaces with underscores and appends suffix.
func NewStationMatcher(ids []string, aliases []Alias, suffix string) *StationMatcher {
	targets := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		targets[id] = struct{}{}
	}
	return &StationMatcher{targets: targets, aliases: aliases, suffix: suffix}
}

// Match returns the station id for a feed name such as "Alipur, Delhi - DPCC".
func (m *StationMatcher) Match(rssName string) (string, bool) {
	base := rssName
	if i := strings.Index(base, ","); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimSpace(base)

	for _, a := range m.aliases {
		if common.HasAny(base, a.Contains...) {
			return a.StationID, true
		}
	}

	id := strings.ReplaceAll(base, " ", "_") + m.suffix
	if _, ok := m.targets[id]; ok {
		return id, true
	}
	return "", false
}

type rssFeed struct {
	States []rssState `xml:"Country>State"`
}

type rssState struct {
	ID     string    `xml:"id,attr"`
	Cities []rssCity `xml:"City"`
}

type rssCity struct {
	ID       string       `xml:"id,attr"`
	Stations []rssStation `xml:"Station"`
}

type rssStation struct {
	ID         string         `xml:"id,attr"`
	Latitude   string         `xml:"latitude,attr"`
	Longitude  string         `xml:"longitude,attr"`
	LastUpdate string         `xml:"lastupdate,attr"`
	Pollutants []rssPollutant `xml:"Pollutant_Index"`
	AQI        *rssAQI        `xml:"Air_Quality_Index"`
}

type rssPollutant struct {
	ID       string `xml:"id,attr"`
	Avg      string `xml:"Avg,attr"`
	SubIndex string `xml:"Hourly_sub_index,attr"`
}

type rssAQI struct {
	Value                string `xml:"Value,attr"`
	PredominantParameter string `xml:"Predominant_Parameter,attr"`
}

// CPCBFeedConfig configures the CPCB feed source.
type CPCBFeedConfig struct {
	URL string
	// State filters feed states by id substring, e.g. "Delhi".
	State     string
	Pollutant string
	// SnapshotPath, when set, receives the parsed safety layer as JSON.
	SnapshotPath string
}

// CPCBFeed implements forecast.AnchorSource for the CPCB CAAQMS RSS feed.
type CPCBFeed struct {
	name    string
	cfg     CPCBFeedConfig
	matcher *StationMatcher
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	logger  zerolog.Logger
}

// NewCPCBFeed creates a CPCB feed source.
func NewCPCBFeed(client *http.Client, cfg CPCBFeedConfig, matcher *StationMatcher, logger zerolog.Logger) *CPCBFeed {
	if cfg.URL == "" {
		cfg.URL = DefaultCPCBFeedURL
	}
	if cfg.Pollutant == "" {
		cfg.Pollutant = "PM2.5"
	}
	return &CPCBFeed{
		name:    "cpcb",
		cfg:     cfg,
		matcher: matcher,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: defaultBackoff(),
		},
		circuit: newCircuitBreaker("cpcb"),
		logger:  logger.With().Str("component", "providers.cpcb").Logger(),
	}
}

func (f *CPCBFeed) Name() string {
	return f.name
}

// FetchAnchors downloads the feed and returns the anchors of matched stations.
func (f *CPCBFeed) FetchAnchors(ctx context.Context) (forecast.AnchorLookup, error) {
	buildRequest := func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, f.cfg.URL, nil)
	}

	resp, err := doRequestWithResilience(ctx, f.httpCfg, f.circuit, buildRequest)
	if err != nil {
		return nil, fmt.Errorf("fetch cpcb feed: %w", err)
	}
	defer resp.Body.Close()

	var feed rssFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decode cpcb feed: %w", err)
	}

	records := f.records(feed)
	if len(records) == 0 {
		f.logger.Warn().Msg("no matching stations in cpcb feed")
	}
	// An empty feed keeps the last good snapshot on disk.
	if f.cfg.SnapshotPath != "" && len(records) > 0 {
		if err := writeSnapshot(f.cfg.SnapshotPath, records); err != nil {
			f.logger.Error().Err(err).Str("path", f.cfg.SnapshotPath).Msg("saving safety snapshot failed")
		}
	}
	return ToLookup(records, f.cfg.Pollutant, CPCBSource), nil
}

func (f *CPCBFeed) records(feed rssFeed) []SafetyRecord {
	var out []SafetyRecord
	for _, state := range feed.States {
		if f.cfg.State != "" && !strings.Contains(state.ID, f.cfg.State) {
			continue
		}
		for _, city := range state.Cities {
			for _, st := range city.Stations {
				id, ok := f.matcher.Match(st.ID)
				if !ok {
					f.logger.Debug().Str("rss_station", st.ID).Msg("unmatched feed station")
					continue
				}
				rec := SafetyRecord{
					StationID:      id,
					RSSStationName: st.ID,
					Latitude:       st.Latitude,
					Longitude:      st.Longitude,
					LastUpdate:     st.LastUpdate,
					Pollutants:     make(map[string]PollutantReading, len(st.Pollutants)),
				}
				for _, p := range st.Pollutants {
					rec.Pollutants[p.ID] = PollutantReading{
						Avg:      parseReading(p.Avg),
						SubIndex: parseReading(p.SubIndex),
					}
				}
				if st.AQI != nil {
					value, prominent := st.AQI.Value, st.AQI.PredominantParameter
					rec.AQIValue = &value
					rec.ProminentPollutant = &prominent
				}
				out = append(out, rec)
			}
		}
	}
	return out
}

func writeSnapshot(path string, records []SafetyRecord) error {
	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// SafetyFile implements forecast.AnchorSource over a saved safety layer file.
type SafetyFile struct {
	path      string
	pollutant string
}

// NewSafetyFile creates a file-backed anchor source.
func NewSafetyFile(path, pollutant string) *SafetyFile {
	if pollutant == "" {
		pollutant = "PM2.5"
	}
	return &SafetyFile{path: path, pollutant: pollutant}
}

func (s *SafetyFile) Name() string {
	return "safety-file"
}

func (s *SafetyFile) FetchAnchors(_ context.Context) (forecast.AnchorLookup, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read safety file: %w", err)
	}
	var records []SafetyRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode safety file: %w", err)
	}
	return ToLookup(records, s.pollutant, CPCBSource), nil
}

var (
	_ forecast.AnchorSource = (*CPCBFeed)(nil)
	_ forecast.AnchorSource = (*SafetyFile)(nil)
)
