// Package period defines evaluation periods and their window boundaries.
package period

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Period string

const (
	Hourly  Period = "hourly"
	Daily   Period = "daily"
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
)

var ErrInvalidPeriod = errors.New("invalid_period")

func Parse(raw string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(raw)))
	if !p.Valid() {
		return "", ErrInvalidPeriod
	}
	return p, nil
}

func (p Period) Valid() bool {
	switch p {
	case Hourly, Daily, Weekly, Monthly:
		return true
	default:
		return false
	}
}

func (p Period) String() string {
	return string(p)
}

// WindowStart returns the inclusive start of the aggregation window ending at now.
// Calendar alignment uses now's location.
func WindowStart(p Period, now time.Time) (time.Time, error) {
	switch p {
	case Hourly:
		return now.Add(-time.Hour), nil
	case Daily:
		return midnight(now), nil
	case Weekly:
		return midnight(now.AddDate(0, 0, -7)), nil
	case Monthly:
		return previousMonth(now), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, string(p))
	}
}

// DedupKey buckets now into the calendar slot of the period. Two evaluations of the same rule
// that share a key may never both persist an event.
func DedupKey(p Period, now time.Time) (string, error) {
	switch p {
	case Hourly:
		return now.Format("2006-01-02T15"), nil
	case Daily:
		return now.Format("2006-01-02"), nil
	case Weekly:
		year, week := now.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week), nil
	case Monthly:
		return now.Format("2006-01"), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, string(p))
	}
}

// StartOfDay returns local midnight of t.
func StartOfDay(t time.Time) time.Time {
	return midnight(t)
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// previousMonth steps back one calendar month, clamping the day to the length of the shorter
// month so the result never overflows into the current month.
func previousMonth(t time.Time) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m, 1, 0, 0, 0, 0, t.Location()).AddDate(0, -1, 0)
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, t.Location())
}
