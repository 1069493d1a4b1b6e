package forecast

import (
	"strings"
	"time"
)

// AnchorTimeLayout is the timestamp layout used by the CPCB feed.
const AnchorTimeLayout = "02-01-2006 15:04:05"

// AnchorLookup maps station identifiers to their current anchor.
type AnchorLookup map[string]Anchor

// Resolve returns the anchor for a station. A missing entry is a valid state,
// not an error.
func (l AnchorLookup) Resolve(stationID string) (Anchor, bool) {
	if l == nil {
		return Anchor{}, false
	}
	a, ok := l[stationID]
	return a, ok
}

// Time parses the anchor timestamp, falling back when it is empty or malformed.
func (a Anchor) Time(fallback time.Time) time.Time {
	ts := strings.TrimSpace(a.Timestamp)
	if ts == "" {
		return fallback
	}
	for _, layout := range []string{AnchorTimeLayout, time.RFC3339} {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.UTC()
		}
	}
	return fallback
}
