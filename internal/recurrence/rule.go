// Package recurrence computes occurrence dates for recurring expenses.
//
// All functions are pure: the same inputs always yield the same dates, which is
// what lets a catch-up scan be re-run after an interruption without producing a
// different plan.
package recurrence

import (
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-recurring/internal/domain"
)

// ErrInvalidDate is returned when the anchor date is not a real calendar date.
var ErrInvalidDate = errors.New("invalid date")

// NextOccurrence returns the occurrence that follows current for frequency f.
//
// Month based steps keep the day of month when it exists in the target month
// and clamp to the month's last day otherwise (2024-01-31 -> 2024-02-29,
// 2024-02-29 +1y -> 2025-02-28). Clamping is applied to the step from current,
// so a clamped date becomes the new anchor.
func NextOccurrence(current civil.Date, f domain.Frequency) (civil.Date, error) {
	if !current.IsValid() {
		return civil.Date{}, fmt.Errorf("NextOccurrence: %v: %w", current, ErrInvalidDate)
	}

	switch f {
	case domain.FrequencyDaily:
		return current.AddDays(1), nil
	case domain.FrequencyWeekly:
		return current.AddDays(7), nil
	case domain.FrequencyMonthly:
		return addMonthsClamped(current, 1), nil
	case domain.FrequencyQuarterly:
		return addMonthsClamped(current, 3), nil
	case domain.FrequencyYearly:
		return addMonthsClamped(current, 12), nil
	default:
		return civil.Date{}, fmt.Errorf("NextOccurrence: %q: %w", f, domain.ErrUnknownFrequency)
	}
}

// Occurrences lists the occurrence dates from first (inclusive) up to and
// including until, stepping by f. At most limit dates are returned; truncated
// reports whether more occurrences existed past the limit.
func Occurrences(first, until civil.Date, f domain.Frequency, limit int) (dates []civil.Date, truncated bool, err error) {
	if !first.IsValid() {
		return nil, false, fmt.Errorf("Occurrences: first %v: %w", first, ErrInvalidDate)
	}
	if !until.IsValid() {
		return nil, false, fmt.Errorf("Occurrences: until %v: %w", until, ErrInvalidDate)
	}
	if !f.Valid() {
		return nil, false, fmt.Errorf("Occurrences: %q: %w", f, domain.ErrUnknownFrequency)
	}

	for d := first; !d.After(until); {
		if limit > 0 && len(dates) == limit {
			return dates, true, nil
		}
		dates = append(dates, d)

		next, err := NextOccurrence(d, f)
		if err != nil {
			return dates, false, err
		}
		d = next
	}

	return dates, false, nil
}

func addMonthsClamped(d civil.Date, n int) civil.Date {
	months := int(d.Month) - 1 + n
	years := floorDiv(months, 12)
	year := d.Year + years
	month := time.Month(months - years*12 + 1)

	day := d.Day
	if last := daysIn(year, month); day > last {
		day = last
	}

	return civil.Date{Year: year, Month: month, Day: day}
}

// daysIn returns the number of days in the given month.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
