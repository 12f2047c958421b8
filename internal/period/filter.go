// Package period projects time-series datasets onto rolling windows.
package period

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mtlprog/nftdash/internal/domain"
	"github.com/mtlprog/nftdash/internal/timestamp"
)

// Default field names tried before the name-based fallback.
const (
	DefaultISODateField   = "timestampISO"
	DefaultDateField      = "date"
	DefaultTimestampField = "timestamp"
)

// Options are per-call field hints.
type Options struct {
	TimestampField string `json:"timestampField,omitempty"`
	DateField      string `json:"dateField,omitempty"`
	ISODateField   string `json:"isoDateField,omitempty"`
	// ArrayField restricts envelope filtering to one named array.
	ArrayField string `json:"arrayField,omitempty"`
	// Strict drops records whose timestamp cannot be parsed instead of keeping them.
	Strict bool `json:"strict,omitempty"`
}

// Counter is incremented once per record kept only because it had no parseable
// timestamp. prometheus.Counter satisfies it.
type Counter interface {
	Inc()
}

// Filter keeps records inside [now - window, now]. It holds no mutable state; now is
// read from the clock on every call.
type Filter struct {
	normalizer *timestamp.Normalizer
	clock      clockwork.Clock
	failOpen   Counter
}

// NewFilter creates a Filter. failOpen may be nil.
func NewFilter(normalizer *timestamp.Normalizer, clock clockwork.Clock, failOpen Counter) *Filter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Filter{normalizer: normalizer, clock: clock, failOpen: failOpen}
}

// Apply filters data by p. data may be a record slice ([]any or []map[string]any) or an
// envelope (domain.Envelope or map[string]any); anything else is returned unchanged.
// PeriodAll returns the input unchanged. The input is never mutated.
func (f *Filter) Apply(data any, p domain.Period, opts Options) any {
	cutoff, ok := f.normalizer.Cutoff(p, f.clock.Now())
	if !ok {
		return data
	}

	switch d := data.(type) {
	case domain.Envelope:
		return f.envelope(d, cutoff.Instant, opts)
	case map[string]any:
		return map[string]any(f.envelope(domain.Envelope(d), cutoff.Instant, opts))
	case []any:
		return f.records(d, cutoff.Instant, opts)
	case []map[string]any:
		recs := make([]any, len(d))
		for i, r := range d {
			recs[i] = r
		}
		return f.records(recs, cutoff.Instant, opts)
	default:
		return data
	}
}

// Envelope is Apply specialised to envelopes.
func (f *Filter) Envelope(env domain.Envelope, p domain.Period, opts Options) domain.Envelope {
	cutoff, ok := f.normalizer.Cutoff(p, f.clock.Now())
	if !ok {
		return env
	}
	return f.envelope(env, cutoff.Instant, opts)
}

func (f *Filter) envelope(env domain.Envelope, cutoff time.Time, opts Options) domain.Envelope {
	out := env.Clone()

	fields := env.ArrayFields()
	if opts.ArrayField != "" {
		fields = nil
		if _, ok := env[opts.ArrayField].([]any); ok {
			fields = []string{opts.ArrayField}
		}
	}
	if len(fields) == 0 {
		return out
	}

	total := 0
	for _, name := range fields {
		filtered := f.records(env[name].([]any), cutoff, opts)
		out[name] = filtered
		total += len(filtered)
	}
	if _, ok := env[domain.FieldCount]; ok {
		out[domain.FieldCount] = total
	}
	return out
}

func (f *Filter) records(recs []any, cutoff time.Time, opts Options) []any {
	out := make([]any, 0, len(recs))
	unparsed := 0
	for _, rec := range recs {
		t, ok := f.Instant(rec, opts)
		if !ok {
			unparsed++
			if !opts.Strict {
				out = append(out, rec)
			}
			continue
		}
		if !t.Before(cutoff) {
			out = append(out, rec)
		}
	}

	if unparsed > 0 {
		if !opts.Strict && f.failOpen != nil {
			for range unparsed {
				f.failOpen.Inc()
			}
		}
		slog.Debug("records without a parseable timestamp", "count", unparsed, "kept", !opts.Strict)
	}
	return out
}

// Instant resolves a record's timestamp. Field priority: ISO field, date field, numeric
// timestamp field, then any other field whose name contains "date" or "time" in
// lexical order. The first field that normalizes wins.
func (f *Filter) Instant(rec any, opts Options) (time.Time, bool) {
	m, ok := rec.(map[string]any)
	if !ok {
		return time.Time{}, false
	}

	tried := make(map[string]bool, 4)
	for _, name := range []string{
		firstNonEmpty(opts.ISODateField, DefaultISODateField),
		firstNonEmpty(opts.DateField, DefaultDateField),
		firstNonEmpty(opts.TimestampField, DefaultTimestampField),
	} {
		tried[name] = true
		if t, ok := f.normalizer.Normalize(m[name]); ok {
			return t, true
		}
	}

	var fallback []string
	for k := range m {
		if tried[k] {
			continue
		}
		lk := strings.ToLower(k)
		if strings.Contains(lk, "date") || strings.Contains(lk, "time") {
			fallback = append(fallback, k)
		}
	}
	sort.Strings(fallback)
	for _, k := range fallback {
		if t, ok := f.normalizer.Normalize(m[k]); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
