// Package schedule computes occurrence dates for recurring billing
// definitions. All functions are pure: no clocks, no I/O.
package schedule

import (
	"errors"
	"fmt"
	"time"
)

// Frequency is how often a recurring definition generates an invoice.
type Frequency string

const (
	FrequencyDaily   Frequency = "DAILY"
	FrequencyWeekly  Frequency = "WEEKLY"
	FrequencyMonthly Frequency = "MONTHLY"
	FrequencyYearly  Frequency = "YEARLY"
)

// ErrInvalidAnchor reports a malformed frequency/anchor combination. The
// owning definition is left untouched and skipped by the generator.
var ErrInvalidAnchor = errors.New("invalid_schedule_anchor")

// Anchor pins WEEKLY and MONTHLY occurrences to a calendar position.
// DAILY and YEARLY ignore both fields.
type Anchor struct {
	DayOfMonth *int // 1-31
	DayOfWeek  *int // 0-6, 0 = Sunday
}

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	}
	return false
}

// Validate rejects unknown frequencies and out-of-range anchors.
func Validate(freq Frequency, anchor Anchor) error {
	if !freq.Valid() {
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidAnchor, freq)
	}
	if anchor.DayOfMonth != nil && (*anchor.DayOfMonth < 1 || *anchor.DayOfMonth > 31) {
		return fmt.Errorf("%w: day_of_month %d out of range", ErrInvalidAnchor, *anchor.DayOfMonth)
	}
	if anchor.DayOfWeek != nil && (*anchor.DayOfWeek < 0 || *anchor.DayOfWeek > 6) {
		return fmt.Errorf("%w: day_of_week %d out of range", ErrInvalidAnchor, *anchor.DayOfWeek)
	}
	return nil
}

// Initial places the first occurrence for a start date that is still in
// the future: the start date adjusted forward to the nearest date
// satisfying the anchor, never before the start date itself.
func Initial(freq Frequency, start time.Time, anchor Anchor) (time.Time, error) {
	if err := Validate(freq, anchor); err != nil {
		return time.Time{}, err
	}
	start = truncateToDay(start)

	switch freq {
	case FrequencyWeekly:
		if anchor.DayOfWeek == nil {
			return start, nil
		}
		days := (*anchor.DayOfWeek - int(start.Weekday()) + 7) % 7
		return start.AddDate(0, 0, days), nil
	case FrequencyMonthly:
		if anchor.DayOfMonth == nil {
			return start, nil
		}
		candidate := clampToDay(start.Year(), start.Month(), *anchor.DayOfMonth, start.Location())
		if candidate.Before(start) {
			// Anchored day already passed this month; take next month's.
			candidate = clampToDay(yearMonthAfter(start.Year(), start.Month(), *anchor.DayOfMonth, start.Location()))
		}
		return candidate, nil
	default:
		return start, nil
	}
}

// Advance steps forward by exactly one period from the given occurrence.
// The result is always strictly after from.
func Advance(freq Frequency, from time.Time, anchor Anchor) (time.Time, error) {
	if err := Validate(freq, anchor); err != nil {
		return time.Time{}, err
	}
	from = truncateToDay(from)

	switch freq {
	case FrequencyDaily:
		return from.AddDate(0, 0, 1), nil
	case FrequencyWeekly:
		target := 1 // Monday when no anchor is set
		if anchor.DayOfWeek != nil {
			target = *anchor.DayOfWeek
		}
		days := (target - int(from.Weekday()) + 7) % 7
		if days == 0 {
			// Same weekday: a full week, never the same date.
			days = 7
		}
		return from.AddDate(0, 0, days), nil
	case FrequencyMonthly:
		year, month := from.Year(), from.Month()+1
		day := from.Day()
		if anchor.DayOfMonth != nil {
			day = *anchor.DayOfMonth
		}
		return clampToDay(year, month, day, from.Location()), nil
	case FrequencyYearly:
		return from.AddDate(1, 0, 0), nil
	}
	return time.Time{}, fmt.Errorf("%w: unknown frequency %q", ErrInvalidAnchor, freq)
}

// clampToDay builds a date in (year, month) with the day clamped to the
// month's length, so a day-of-month of 31 lands on Feb 28/29.
func clampToDay(year int, month time.Month, day int, loc *time.Location) time.Time {
	if max := daysIn(year, month); day > max {
		day = max
	}
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

func yearMonthAfter(year int, month time.Month, day int, loc *time.Location) (int, time.Month, int, *time.Location) {
	month++
	if month > time.December {
		month = time.January
		year++
	}
	return year, month, day, loc
}

func daysIn(year int, month time.Month) int {
	// Day zero of the following month normalizes to this month's last day.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
