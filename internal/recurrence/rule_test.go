package recurrence

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		rule  Rule
		field string
	}{
		{name: "daily ok", rule: Rule{Frequency: Daily, Interval: 1}},
		{name: "zero interval tolerated", rule: Rule{Frequency: Weekly}},
		{name: "missing frequency", rule: Rule{Interval: 1}, field: "frequency"},
		{name: "unknown frequency", rule: Rule{Frequency: "hourly", Interval: 1}, field: "frequency"},
		{name: "negative interval", rule: Rule{Frequency: Daily, Interval: -1}, field: "interval"},
		{name: "bad weekday", rule: Rule{Frequency: Weekly, Interval: 1, DaysOfWeek: []int{1, 7}}, field: "daysOfWeek"},
		{name: "bad day of month", rule: Rule{Frequency: Monthly, Interval: 1, DayOfMonth: 32}, field: "dayOfMonth"},
		{name: "bad week of month", rule: Rule{Frequency: Monthly, Interval: 1, WeekOfMonth: 5}, field: "weekOfMonth"},
		{
			name:  "day of week pattern without week",
			rule:  Rule{Frequency: Monthly, Interval: 1, MonthlyPattern: PatternDayOfWeek, MonthlyDayOfWeek: weekday(time.Friday)},
			field: "weekOfMonth",
		},
		{
			name:  "day of week pattern without weekday",
			rule:  Rule{Frequency: Monthly, Interval: 1, MonthlyPattern: PatternDayOfWeek, WeekOfMonth: LastWeek},
			field: "monthlyDayOfWeek",
		},
		{
			name:  "day of month pattern without day",
			rule:  Rule{Frequency: Quarterly, Interval: 1, MonthlyPattern: PatternDayOfMonth},
			field: "dayOfMonth",
		},
		{name: "unknown pattern", rule: Rule{Frequency: Monthly, Interval: 1, MonthlyPattern: "nth"}, field: "monthlyPattern"},
		{name: "bad weekday value", rule: Rule{Frequency: Monthly, Interval: 1, MonthlyDayOfWeek: weekday(9)}, field: "monthlyDayOfWeek"},
		{name: "bad end date", rule: Rule{Frequency: Daily, Interval: 1, EndDate: "06/30/2025"}, field: "endDate"},
		{name: "negative occurrences", rule: Rule{Frequency: Daily, Interval: 1, EndAfterOccurrences: -3}, field: "endAfterOccurrences"},
		{
			name: "last business week ok",
			rule: Rule{Frequency: Quarterly, Interval: 1, MonthlyPattern: PatternDayOfWeek, WeekOfMonth: LastBusinessWeek, MonthlyDayOfWeek: weekday(time.Monday)},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.rule.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestRuleValidateNegativeIntervalMessage(t *testing.T) {
	t.Parallel()
	err := Rule{Frequency: Daily, Interval: -2}.Validate()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "must not be negative, got -2", verr.Reason)

	assert.NoError(t, Rule{Frequency: Daily}.Validate())
}

func TestRuleJSONUsesCamelCase(t *testing.T) {
	t.Parallel()
	raw := `{"frequency":"monthly","interval":1,"monthlyPattern":"dayOfWeek","weekOfMonth":-1,"monthlyDayOfWeek":0,"endAfterOccurrences":6}`
	var rule Rule
	require.NoError(t, json.Unmarshal([]byte(raw), &rule))

	assert.Equal(t, Monthly, rule.Frequency)
	assert.Equal(t, LastWeek, rule.WeekOfMonth)
	require.NotNil(t, rule.MonthlyDayOfWeek)
	assert.Equal(t, int(time.Sunday), *rule.MonthlyDayOfWeek)
	assert.Equal(t, 6, rule.EndAfterOccurrences)
	assert.NoError(t, rule.Validate())
}

func TestShouldContinue(t *testing.T) {
	t.Parallel()
	open := Rule{Frequency: Daily, Interval: 1}
	for _, n := range []int{0, 1, 3, 1000} {
		assert.True(t, ShouldContinue(open, n))
	}

	limited := Rule{Frequency: Daily, Interval: 1, EndAfterOccurrences: 3}
	assert.True(t, ShouldContinue(limited, 1))
	assert.True(t, ShouldContinue(limited, 2))
	assert.False(t, ShouldContinue(limited, 3))
	assert.False(t, ShouldContinue(limited, 4))
}

func TestDateHelpers(t *testing.T) {
	t.Parallel()
	d, err := ParseDate(" 2025-06-10 ")
	require.NoError(t, err)
	assert.Equal(t, Date(2025, time.June, 10), d)
	assert.Equal(t, "2025-06-10", FormatDate(d))

	_, err = ParseDate("2025-13-01")
	assert.Error(t, err)

	assert.Equal(t, -2, DaysBetween(Date(2025, time.June, 10), Date(2025, time.June, 8)))
	assert.Equal(t, 30, DaysBetween(Date(2025, time.June, 10), Date(2025, time.July, 10)))
	assert.Equal(t, 29, daysInMonth(2024, time.February))
	assert.Equal(t, 31, daysInMonth(2025, time.December))

	y, m := addMonths(2025, time.November, 3)
	assert.Equal(t, 2026, y)
	assert.Equal(t, time.February, m)
}
