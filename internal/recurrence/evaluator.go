package recurrence

import (
	"strings"
	"time"
)

// Evaluator computes the next due date of a series.
//
// It is pure: the only notion of "now" is the value passed to Next, and it is
// used solely to decide whether the series is past its end date. Location is
// the organization-wide zone used to turn now into a calendar date.
type Evaluator struct {
	Location *time.Location
}

// Next returns the due date that follows completedDueDate under rule.
// ok is false when the series has no further occurrence.
//
// now is the moment the task was completed, not the moment Next runs. The
// series also ends when the completion day is already past endDate, so
// retries of the same completion must pass the same now.
func (e Evaluator) Next(rule Rule, completedDueDate, now time.Time) (next time.Time, ok bool, err error) {
	if err := rule.Validate(); err != nil {
		return time.Time{}, false, err
	}
	y, m, d := completedDueDate.Date()
	from := Date(y, m, d)

	next = advance(rule, from, rule.step())
	if !next.After(from) {
		base := next
		if base.Before(from) {
			base = from
		}
		next = advance(rule, base, 1)
	}

	if strings.TrimSpace(rule.EndDate) != "" {
		end, _ := ParseDate(rule.EndDate)
		if next.After(end) || Today(now, e.Location).After(end) {
			return time.Time{}, false, nil
		}
	}
	return next, true, nil
}

// advance moves from by n periods of the rule's frequency.
func advance(rule Rule, from time.Time, n int) time.Time {
	switch rule.Frequency {
	case Daily:
		return AddDays(from, n)
	case Weekly:
		if len(rule.DaysOfWeek) > 0 {
			return nextWeekday(from, rule.DaysOfWeek, n)
		}
		return AddDays(from, 7*n)
	case Biweekly:
		return AddDays(from, 14*n)
	case Monthly:
		return advanceMonths(rule, from, n)
	case Quarterly:
		return advanceMonths(rule, from, 3*n)
	case Yearly:
		return clampDay(from.Year()+n, from.Month(), from.Day())
	default:
		return from
	}
}

// nextWeekday scans the rest of from's week (Sunday-start) for a matching
// weekday. When none is left it jumps n whole weeks and takes the earliest
// match in that week.
func nextWeekday(from time.Time, days []int, n int) time.Time {
	var want [7]bool
	for _, d := range days {
		want[d] = true
	}
	wd := int(from.Weekday())
	for d := wd + 1; d <= 6; d++ {
		if want[d] {
			return AddDays(from, d-wd)
		}
	}
	week := AddDays(from, 7*n-wd)
	for d := 0; d <= 6; d++ {
		if want[d] {
			return AddDays(week, d)
		}
	}
	return week
}

func advanceMonths(rule Rule, from time.Time, n int) time.Time {
	year, month := addMonths(from.Year(), from.Month(), n)

	pattern := rule.MonthlyPattern
	if pattern == "" && rule.WeekOfMonth != 0 && rule.MonthlyDayOfWeek != nil {
		pattern = PatternDayOfWeek
	}
	if pattern == PatternDayOfWeek {
		return weekdayInMonth(year, month, rule.WeekOfMonth, time.Weekday(*rule.MonthlyDayOfWeek))
	}

	day := rule.DayOfMonth
	if day == 0 {
		day = from.Day()
	}
	return clampDay(year, month, day)
}

// weekdayInMonth resolves the week-th wd of the month. week is 1-4,
// LastWeek or LastBusinessWeek.
func weekdayInMonth(year int, month time.Month, week int, wd time.Weekday) time.Time {
	last := Date(year, month, daysInMonth(year, month))
	switch week {
	case LastWeek:
		back := (int(last.Weekday()) - int(wd) + 7) % 7
		return AddDays(last, -back)
	case LastBusinessWeek:
		return inLastBusinessWeek(last, wd)
	}
	first := Date(year, month, 1)
	offset := (int(wd) - int(first.Weekday()) + 7) % 7
	return AddDays(first, offset+7*(week-1))
}

// inLastBusinessWeek picks wd inside the last Monday-Friday span that lies
// entirely within the month ending at last. Weekend days map to that Friday.
func inLastBusinessWeek(last time.Time, wd time.Weekday) time.Time {
	friday := AddDays(last, -((int(last.Weekday()) - int(time.Friday) + 7) % 7))
	if wd == time.Saturday || wd == time.Sunday {
		return friday
	}
	monday := AddDays(friday, -4)
	return AddDays(monday, int(wd-time.Monday))
}
