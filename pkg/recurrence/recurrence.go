// Package recurrence does the calendar arithmetic for bill due dates.
package recurrence

import (
	"fmt"
	"time"

	"github.com/mcclellann/fredBills/pkg/models"
)

// step describes one cycle of a cadence as either a day offset or a month offset.
type step struct {
	days   int
	months int
}

func stepFor(f models.Frequency) (step, bool) {
	switch f {
	case models.FrequencyOnce:
		return step{}, false
	case models.FrequencyWeekly:
		return step{days: 7}, true
	case models.FrequencyBiweekly:
		return step{days: 14}, true
	case models.FrequencyTwiceMonthly:
		// Flat approximation, not a calendar 1st/15th rule.
		return step{days: 15}, true
	case models.FrequencyMonthly:
		return step{months: 1}, true
	case models.FrequencyBimonthly:
		return step{months: 2}, true
	case models.FrequencyQuarterly:
		return step{months: 3}, true
	case models.FrequencyYearly:
		return step{months: 12}, true
	}
	panic(fmt.Sprintf("recurrence: unknown frequency %q", f))
}

// NextDueDate returns the due date of the cycle following due.
// One-time bills have no next cycle and return false.
func NextDueDate(due time.Time, f models.Frequency) (time.Time, bool) {
	s, ok := stepFor(f)
	if !ok {
		return time.Time{}, false
	}
	return s.apply(due, 1), true
}

// PreviousDueDate returns the due date of the cycle preceding due, which is
// also the start of the cycle ending at due.
func PreviousDueDate(due time.Time, f models.Frequency) (time.Time, bool) {
	s, ok := stepFor(f)
	if !ok {
		return time.Time{}, false
	}
	return s.apply(due, -1), true
}

func (s step) apply(t time.Time, sign int) time.Time {
	if s.months != 0 {
		return AddMonthsClamped(t, sign*s.months)
	}
	return t.AddDate(0, 0, sign*s.days)
}

// AddMonthsClamped adds n calendar months to t. When t's day of month does not
// exist in the target month the last day of that month is used instead.
// Time of day and location are preserved.
func AddMonthsClamped(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()
	first := time.Date(year, month+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := DaysInMonth(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, hour, minute, sec, t.Nanosecond(), t.Location())
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// CycleMonths returns the length in months of cadences longer than one month,
// and 0 for everything else.
func CycleMonths(f models.Frequency) int {
	s, ok := stepFor(f)
	if !ok || s.months <= 1 {
		return 0
	}
	return s.months
}

// DeriveStatus reports overdue when due's calendar day is strictly before now's,
// pending otherwise. Paid is never derived.
func DeriveStatus(due, now time.Time) models.BillStatus {
	if DaysUntilDue(due, now) < 0 {
		return models.BillStatusOverdue
	}
	return models.BillStatusPending
}

// DaysUntilDue returns the signed number of calendar days from now to due,
// both taken in now's location.
func DaysUntilDue(due, now time.Time) int {
	return calendarDays(civilDay(now), civilDay(due.In(now.Location())))
}

// IsDueToday reports whether due falls on now's calendar day.
func IsDueToday(due, now time.Time) bool {
	return DaysUntilDue(due, now) == 0
}

// civilDay maps t to midnight UTC of the same wall-clock date so day
// differences are unaffected by DST transitions.
func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func calendarDays(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

// monthsBetween counts whole calendar months from one day to a later one.
func monthsBetween(from, to time.Time) int {
	months := (to.Year()-from.Year())*12 + int(to.Month()-from.Month())
	if to.Day() < from.Day() {
		months--
	}
	return months
}

// FormatRelativeDueDate renders a short human description of when a bill is due.
func FormatRelativeDueDate(due time.Time, status models.BillStatus, now time.Time) string {
	if status == models.BillStatusPaid {
		return "Paid"
	}

	days := DaysUntilDue(due, now)
	switch {
	case days == -1:
		return "Overdue by 1 day"
	case days < 0:
		return fmt.Sprintf("Overdue by %d days", -days)
	case days == 0:
		return "Due today"
	case days == 1:
		return "Due tomorrow"
	case days == 7:
		return "Due in 1 week"
	case days < 14:
		return fmt.Sprintf("Due in %d days", days)
	case days < 28:
		return fmt.Sprintf("Due in %d weeks", days/7)
	}

	months := monthsBetween(civilDay(now), civilDay(due.In(now.Location())))
	switch {
	case months <= 1 || days <= 45:
		return "Due in about 1 month"
	case months < 6:
		return fmt.Sprintf("Due in %d months", months)
	case months < 12:
		return fmt.Sprintf("Due in over %d months", months)
	case months == 12:
		return "Due in about a year"
	default:
		return "Due in over a year"
	}
}
