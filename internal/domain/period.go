package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidPeriod is returned when a period token is not one of 24h, 7d, 30d or all.
var ErrInvalidPeriod = errors.New("invalid period")

// Period is a rolling-window selector applied at query time.
type Period string

const (
	Period24h Period = "24h"
	Period7d  Period = "7d"
	Period30d Period = "30d"
	PeriodAll Period = "all"
)

// Periods lists every supported token from the narrowest window to the unfiltered set.
var Periods = []Period{Period24h, Period7d, Period30d, PeriodAll}

// ParsePeriod parses a period token. An empty string selects PeriodAll.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case Period24h, Period7d, Period30d, PeriodAll:
		return p, nil
	case "":
		return PeriodAll, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
}

// Window returns the length of the rolling window. PeriodAll has no window and returns 0.
func (p Period) Window() time.Duration {
	switch p {
	case Period24h:
		return 24 * time.Hour
	case Period7d:
		return 7 * 24 * time.Hour
	case Period30d:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// IsAll reports whether p denotes the unfiltered set.
func (p Period) IsAll() bool {
	return p == PeriodAll
}
