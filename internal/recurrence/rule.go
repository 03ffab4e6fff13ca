package recurrence

import (
	"fmt"
	"strings"
)

// Frequency is the base cadence of a recurring task.
type Frequency string

const (
	Daily     Frequency = "daily"
	Weekly    Frequency = "weekly"
	Biweekly  Frequency = "biweekly"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Yearly    Frequency = "yearly"
)

// MonthlyPattern selects how monthly and quarterly rules pick a day.
type MonthlyPattern string

const (
	PatternDayOfMonth MonthlyPattern = "dayOfMonth"
	PatternDayOfWeek  MonthlyPattern = "dayOfWeek"
)

// Special weekOfMonth values.
const (
	LastWeek         = -1
	LastBusinessWeek = -2
)

// Rule describes how often and on which calendar pattern a task recurs.
// A copy is stored on every instance of a series.
type Rule struct {
	Frequency  Frequency `json:"frequency"`
	Interval   int       `json:"interval"`
	DaysOfWeek []int     `json:"daysOfWeek,omitempty"`
	DayOfMonth int       `json:"dayOfMonth,omitempty"`

	MonthlyPattern   MonthlyPattern `json:"monthlyPattern,omitempty"`
	WeekOfMonth      int            `json:"weekOfMonth,omitempty"`
	MonthlyDayOfWeek *int           `json:"monthlyDayOfWeek,omitempty"`

	// EndDate is a calendar date (YYYY-MM-DD). Empty means open-ended.
	EndDate             string `json:"endDate,omitempty"`
	EndAfterOccurrences int    `json:"endAfterOccurrences,omitempty"`
}

// ValidationError reports a malformed rule. It is never worth retrying.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid recurrence rule: %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the rule for internal consistency.
func (r Rule) Validate() error {
	switch r.Frequency {
	case Daily, Weekly, Biweekly, Monthly, Quarterly, Yearly:
	case "":
		return invalid("frequency", "is required")
	default:
		return invalid("frequency", "unknown value %q", r.Frequency)
	}
	if r.Interval < 0 {
		return invalid("interval", "must not be negative, got %d", r.Interval)
	}
	for _, d := range r.DaysOfWeek {
		if d < 0 || d > 6 {
			return invalid("daysOfWeek", "day %d out of range 0-6", d)
		}
	}
	if r.DayOfMonth != 0 && (r.DayOfMonth < 1 || r.DayOfMonth > 31) {
		return invalid("dayOfMonth", "%d out of range 1-31", r.DayOfMonth)
	}
	switch r.WeekOfMonth {
	case 0, 1, 2, 3, 4, LastWeek, LastBusinessWeek:
	default:
		return invalid("weekOfMonth", "unsupported value %d", r.WeekOfMonth)
	}
	if r.MonthlyDayOfWeek != nil && (*r.MonthlyDayOfWeek < 0 || *r.MonthlyDayOfWeek > 6) {
		return invalid("monthlyDayOfWeek", "%d out of range 0-6", *r.MonthlyDayOfWeek)
	}

	switch r.MonthlyPattern {
	case "":
	case PatternDayOfWeek:
		if r.WeekOfMonth == 0 {
			return invalid("weekOfMonth", "required when monthlyPattern is %q", PatternDayOfWeek)
		}
		if r.MonthlyDayOfWeek == nil {
			return invalid("monthlyDayOfWeek", "required when monthlyPattern is %q", PatternDayOfWeek)
		}
	case PatternDayOfMonth:
		if r.DayOfMonth == 0 {
			return invalid("dayOfMonth", "required when monthlyPattern is %q", PatternDayOfMonth)
		}
	default:
		return invalid("monthlyPattern", "unknown value %q", r.MonthlyPattern)
	}

	if strings.TrimSpace(r.EndDate) != "" {
		if _, err := ParseDate(r.EndDate); err != nil {
			return invalid("endDate", "%v", err)
		}
	}
	if r.EndAfterOccurrences < 0 {
		return invalid("endAfterOccurrences", "must not be negative, got %d", r.EndAfterOccurrences)
	}
	return nil
}

// step returns the effective interval, treating zero as misconfigured.
func (r Rule) step() int {
	if r.Interval <= 0 {
		return 0
	}
	return r.Interval
}
