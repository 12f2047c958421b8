package timestamp

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/mtlprog/nftdash/internal/domain"
)

var testEpoch = time.Date(2021, time.June, 1, 0, 0, 0, 0, time.UTC)

func TestNormalizeThresholdBoundary(t *testing.T) {
	n := NewNormalizer(testEpoch)

	below, ok := n.Normalize(float64(9_999_999_999))
	if !ok {
		t.Fatal("expected 9_999_999_999 to normalize")
	}
	wantBelow := time.Unix(testEpoch.Unix()+9_999_999_999, 0).UTC()
	if !below.Equal(wantBelow) {
		t.Errorf("Normalize(9_999_999_999) = %v, want platform-epoch seconds %v", below, wantBelow)
	}

	at, ok := n.Normalize(float64(10_000_000_000))
	if !ok {
		t.Fatal("expected 10_000_000_000 to normalize")
	}
	wantAt := time.UnixMilli(10_000_000_000).UTC()
	if !at.Equal(wantAt) {
		t.Errorf("Normalize(10_000_000_000) = %v, want Unix milliseconds %v", at, wantAt)
	}
}

func TestNormalizePlausibleValuesEitherSideOfThreshold(t *testing.T) {
	n := NewNormalizer(testEpoch)

	// ~3 years after launch, encoded as platform seconds.
	secs, ok := n.Normalize(int64(95_000_000))
	if !ok {
		t.Fatal("expected platform seconds to normalize")
	}
	if secs.Year() != 2024 {
		t.Errorf("platform seconds year = %d, want 2024", secs.Year())
	}

	ms, ok := n.Normalize(int64(1_717_200_000_000))
	if !ok {
		t.Fatal("expected Unix ms to normalize")
	}
	if ms.Year() != 2024 {
		t.Errorf("unix ms year = %d, want 2024", ms.Year())
	}
}

func TestNormalizeInputs(t *testing.T) {
	n := NewNormalizer(testEpoch)
	want := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	platformSecs := want.Unix() - testEpoch.Unix()

	tests := []struct {
		name string
		in   any
	}{
		{"float platform seconds", float64(platformSecs)},
		{"int platform seconds", int(platformSecs)},
		{"int64 unix ms", want.UnixMilli()},
		{"json.Number unix ms", json.Number("1709294400000")},
		{"numeric string", "1709294400000"},
		{"rfc3339", "2024-03-01T12:00:00Z"},
		{"rfc3339 millis", "2024-03-01T12:00:00.000Z"},
		{"rfc3339 offset", "2024-03-01T14:00:00+02:00"},
		{"space separated", "2024-03-01 12:00:00"},
		{"time.Time", want},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := n.Normalize(tt.in)
			if !ok {
				t.Fatalf("Normalize(%v) failed", tt.in)
			}
			if !got.Equal(want) {
				t.Errorf("Normalize(%v) = %v, want %v", tt.in, got, want)
			}
		})
	}
}

func TestNormalizeRejects(t *testing.T) {
	n := NewNormalizer(testEpoch)

	for _, in := range []any{nil, "", "   ", "yesterday", math.NaN(), math.Inf(1), true, map[string]any{}, time.Time{}} {
		if got, ok := n.Normalize(in); ok {
			t.Errorf("Normalize(%#v) = %v, want failure", in, got)
		}
	}
}

func TestNormalizeDateOnly(t *testing.T) {
	n := NewNormalizer(testEpoch)
	got, ok := n.Normalize("2024-03-01")
	if !ok {
		t.Fatal("expected date-only string to normalize")
	}
	if !got.Equal(time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Normalize(date) = %v", got)
	}
}

func TestCutoff(t *testing.T) {
	n := NewNormalizer(testEpoch)
	now := time.Date(2024, time.March, 8, 0, 0, 0, 0, time.UTC)

	c, ok := n.Cutoff(domain.Period7d, now)
	if !ok {
		t.Fatal("expected cutoff for 7d")
	}
	want := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	if !c.Instant.Equal(want) {
		t.Errorf("Cutoff.Instant = %v, want %v", c.Instant, want)
	}
	if c.PlatformEpochSeconds != want.Unix()-testEpoch.Unix() {
		t.Errorf("Cutoff.PlatformEpochSeconds = %d", c.PlatformEpochSeconds)
	}

	if _, ok := n.Cutoff(domain.PeriodAll, now); ok {
		t.Error("expected no cutoff for all")
	}
}

func TestToISOString(t *testing.T) {
	ts := time.Date(2024, time.March, 1, 14, 0, 0, 5_000_000, time.FixedZone("EET", 2*3600))
	if got := ToISOString(ts); got != "2024-03-01T12:00:00.005Z" {
		t.Errorf("ToISOString() = %q", got)
	}
}

func TestNewNormalizerDefaultEpoch(t *testing.T) {
	n := NewNormalizer(time.Time{})
	if !n.PlatformEpoch().Equal(DefaultPlatformEpoch) {
		t.Errorf("PlatformEpoch() = %v, want default", n.PlatformEpoch())
	}
}
