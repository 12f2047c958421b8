// Package timestamp converts the timestamp encodings found in chain and explorer
// records into a single comparable instant.
//
// Numeric values are ambiguous: small counters are seconds since the platform epoch
// (the chain launch), large values are Unix milliseconds. The split is a magnitude
// threshold of 1e10. A Unix-millisecond value below the threshold (any instant before
// 1970-04-26) is misread as platform-epoch seconds; this is a known limitation.
package timestamp

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mtlprog/nftdash/internal/domain"
)

// Threshold separates platform-epoch seconds (below) from Unix milliseconds (at or above).
const Threshold = 10_000_000_000

// DefaultPlatformEpoch is the chain launch date used when none is configured.
var DefaultPlatformEpoch = time.Date(2021, time.June, 1, 0, 0, 0, 0, time.UTC)

const isoLayout = "2006-01-02T15:04:05.000Z07:00"

var stringLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// Cutoff is the start of a rolling window in both encodings.
type Cutoff struct {
	Instant              time.Time
	PlatformEpochSeconds int64
}

// Normalizer maps heterogeneous timestamp values to canonical instants.
type Normalizer struct {
	epoch time.Time
}

// NewNormalizer creates a Normalizer. A zero epoch selects DefaultPlatformEpoch.
func NewNormalizer(platformEpoch time.Time) *Normalizer {
	if platformEpoch.IsZero() {
		platformEpoch = DefaultPlatformEpoch
	}
	return &Normalizer{epoch: platformEpoch.UTC()}
}

// PlatformEpoch returns the configured platform epoch.
func (n *Normalizer) PlatformEpoch() time.Time {
	return n.epoch
}

// Normalize converts v to an instant. It accepts numbers (any Go numeric type or
// json.Number), numeric strings, ISO-8601 strings and time.Time. The second result is
// false when v is absent or cannot be parsed.
func (n *Normalizer) Normalize(v any) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return t.UTC(), !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return t.UTC(), !t.IsZero()
	case float64:
		return n.FromNumber(t)
	case float32:
		return n.FromNumber(float64(t))
	case int:
		return n.FromNumber(float64(t))
	case int32:
		return n.FromNumber(float64(t))
	case int64:
		return n.fromInt(t)
	case uint32:
		return n.FromNumber(float64(t))
	case uint64:
		if t > math.MaxInt64 {
			return time.Time{}, false
		}
		return n.fromInt(int64(t))
	case json.Number:
		return n.fromString(t.String())
	case string:
		return n.fromString(t)
	default:
		return time.Time{}, false
	}
}

// FromNumber applies the magnitude heuristic to a numeric timestamp.
func (n *Normalizer) FromNumber(v float64) (time.Time, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return time.Time{}, false
	}
	if math.Abs(v) < Threshold {
		whole, frac := math.Modf(v)
		return time.Unix(n.epoch.Unix()+int64(whole), int64(frac*1e9)).UTC(), true
	}
	if math.Abs(v) > math.MaxInt64/2 {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(v)).UTC(), true
}

func (n *Normalizer) fromInt(v int64) (time.Time, bool) {
	if v > -Threshold && v < Threshold {
		return time.Unix(n.epoch.Unix()+v, 0).UTC(), true
	}
	return time.UnixMilli(v).UTC(), true
}

func (n *Normalizer) fromString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n.fromInt(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return n.FromNumber(f)
	}
	return ParseISO(s)
}

// ParseISO parses an ISO-8601 style string using the layouts seen in upstream payloads.
func ParseISO(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range stringLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ToPlatformSeconds returns t as seconds since the platform epoch.
func (n *Normalizer) ToPlatformSeconds(t time.Time) int64 {
	return t.Unix() - n.epoch.Unix()
}

// Cutoff returns the start of the window for p ending at now. The second result is
// false for PeriodAll, which has no cutoff.
func (n *Normalizer) Cutoff(p domain.Period, now time.Time) (Cutoff, bool) {
	w := p.Window()
	if w <= 0 {
		return Cutoff{}, false
	}
	instant := now.Add(-w).UTC()
	return Cutoff{
		Instant:              instant,
		PlatformEpochSeconds: n.ToPlatformSeconds(instant),
	}, true
}

// ToISOString formats t as UTC ISO-8601 with millisecond precision, e.g.
// 2024-03-01T12:00:00.000Z.
func ToISOString(t time.Time) string {
	return t.UTC().Format(isoLayout)
}
