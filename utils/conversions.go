package utils

import (
	"fmt"
	"time"
)

// ParseRowDate parses the handful of date/datetime shapes connector payloads
// show up in. Offline CSV exports use DateOnly, some web pulls use DateTime.
func ParseRowDate(s string) (time.Time, error) {
	layouts := []string{
		time.DateOnly,
		time.DateTime,
		"01/02/2006",
		"1/2/2006",
	}
	for _, layout := range layouts {
		if dt, err := time.Parse(layout, s); err == nil {
			return dt, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date format: %q", s)
}

// EasternNow returns the current time in the exchange's local timezone
// (mirrors the teacher's EST-anchored event loop). No package calls it;
// the scheduler ticks on time.Now.
func EasternNow() (time.Time, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.Time{}, fmt.Errorf("loading eastern location: %w", err)
	}
	return time.Now().In(loc), nil
}

// DaysBetween returns whole calendar days between two dates (b - a),
// truncated to midnight first so DST/time-of-day never perturbs the count.
// The lots engine does not call it; it decides ST/LT with its own
// 365*24h duration check.
func DaysBetween(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bd.Sub(ad).Hours() / 24)
}
