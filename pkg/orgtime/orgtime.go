// Package orgtime holds calendar helpers evaluated in the organization's fixed
// time zone rather than the process-local zone.
package orgtime

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// DateLayout is the canonical persisted date format.
	DateLayout = "2006-01-02"
	// MonthLayout identifies a reconciliation period.
	MonthLayout = "2006-01"
	// ClockLayout is the canonical wall-clock format for session times.
	ClockLayout = "15:04:05"
)

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock struct {
	At time.Time
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return c.At }

// Zone evaluates dates in a single configured location.
type Zone struct {
	loc *time.Location
}

// LoadZone resolves an IANA zone name.
func LoadZone(name string) (*Zone, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return &Zone{loc: loc}, nil
}

// NewZone wraps an already resolved location.
func NewZone(loc *time.Location) *Zone {
	if loc == nil {
		loc = time.UTC
	}
	return &Zone{loc: loc}
}

// Location exposes the underlying location.
func (z *Zone) Location() *time.Location { return z.loc }

// Today returns the calendar date of t in the zone as YYYY-MM-DD.
func (z *Zone) Today(t time.Time) string {
	return t.In(z.loc).Format(DateLayout)
}

// CurrentMonth returns the month containing t in the zone.
func (z *Zone) CurrentMonth(t time.Time) Month {
	local := t.In(z.loc)
	return Month{Year: local.Year(), Month: local.Month()}
}

// Days lists every calendar date of m, anchored at local midnight in the zone.
func (z *Zone) Days(m Month) []time.Time {
	first := time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, z.loc)
	days := make([]time.Time, 0, 31)
	for d := first; d.Month() == m.Month; d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Month identifies a calendar month.
type Month struct {
	Year  int
	Month time.Month
}

// ParseMonth parses YYYY-MM.
func ParseMonth(raw string) (Month, error) {
	t, err := time.Parse(MonthLayout, strings.TrimSpace(raw))
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q: expected YYYY-MM", raw)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

// String renders YYYY-MM.
func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// FirstDay returns YYYY-MM-01.
func (m Month) FirstDay() string {
	return fmt.Sprintf("%04d-%02d-01", m.Year, int(m.Month))
}

// LastDay returns the final date of the month as YYYY-MM-DD.
func (m Month) LastDay() string {
	last := time.Date(m.Year, m.Month+1, 0, 0, 0, 0, 0, time.UTC)
	return last.Format(DateLayout)
}

// AddMonths shifts the month by n.
func (m Month) AddMonths(n int) Month {
	t := time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	return Month{Year: t.Year(), Month: t.Month()}
}

// NormalizeClock accepts HH:MM or HH:MM:SS and returns HH:MM:SS.
func NormalizeClock(raw string) (string, error) {
	secs, err := ClockSeconds(raw)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60), nil
}

// ClockSeconds converts a wall-clock string into seconds since midnight.
func ClockSeconds(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM or HH:MM:SS", raw)
	}
	limits := []int{23, 59, 59}
	values := [3]int{}
	for i, part := range parts {
		if len(part) == 0 || len(part) > 2 {
			return 0, fmt.Errorf("invalid time %q: expected HH:MM or HH:MM:SS", raw)
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > limits[i] {
			return 0, fmt.Errorf("invalid time %q: expected HH:MM or HH:MM:SS", raw)
		}
		values[i] = n
	}
	return values[0]*3600 + values[1]*60 + values[2], nil
}

// MinutesBetween returns end-start in whole wall-clock minutes; negative spans yield 0.
func MinutesBetween(start, end string) (int, error) {
	s, err := ClockSeconds(start)
	if err != nil {
		return 0, err
	}
	e, err := ClockSeconds(end)
	if err != nil {
		return 0, err
	}
	if e <= s {
		return 0, nil
	}
	return (e - s) / 60, nil
}
