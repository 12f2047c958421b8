package period

import (
	"sort"
	"time"
)

// MonthlyThreshold is the dataset span above which the dashboard charts monthly
// buckets instead of daily points for the all period.
const MonthlyThreshold = 90 * 24 * time.Hour

// Bucket is the number of records in one calendar month (UTC).
type Bucket struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// Span returns the time between the earliest and latest parseable record.
func (f *Filter) Span(recs []any, opts Options) time.Duration {
	var first, last time.Time
	for _, rec := range recs {
		t, ok := f.Instant(rec, opts)
		if !ok {
			continue
		}
		if first.IsZero() || t.Before(first) {
			first = t
		}
		if last.IsZero() || t.After(last) {
			last = t
		}
	}
	return last.Sub(first)
}

// MonthlyBuckets counts records per month in chronological order. Records without a
// parseable timestamp are skipped. It never filters or mutates recs.
func (f *Filter) MonthlyBuckets(recs []any, opts Options) []Bucket {
	counts := make(map[string]int)
	for _, rec := range recs {
		t, ok := f.Instant(rec, opts)
		if !ok {
			continue
		}
		counts[t.UTC().Format("2006-01")]++
	}

	buckets := make([]Bucket, 0, len(counts))
	for month, n := range counts {
		buckets = append(buckets, Bucket{Month: month, Count: n})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Month < buckets[j].Month })
	return buckets
}
