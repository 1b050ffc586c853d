package workdays

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestIsWorkday(t *testing.T) {
	cal := NewCalendar([]time.Time{date(2026, time.January, 1)})

	tests := []struct {
		name string
		day  time.Time
		want bool
	}{
		{"monday", date(2026, time.January, 5), true},
		{"friday", date(2026, time.January, 9), true},
		{"saturday", date(2026, time.January, 10), false},
		{"sunday", date(2026, time.January, 11), false},
		{"holiday_on_thursday", date(2026, time.January, 1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cal.IsWorkday(tt.day); got != tt.want {
				t.Errorf("IsWorkday(%s) = %t, want %t", tt.day.Format("2006-01-02"), got, tt.want)
			}
		})
	}
}

func TestDaysBetween(t *testing.T) {
	cal := NewCalendar(nil)

	// Monday 2026-01-05 to Friday 2026-01-09: Tue..Fri = 4 working days.
	if got := cal.DaysBetween(date(2026, time.January, 5), date(2026, time.January, 9)); got != 4 {
		t.Errorf("DaysBetween(Mon, Fri) = %d, want 4", got)
	}
	// Across a weekend: Friday to Monday is one working day.
	if got := cal.DaysBetween(date(2026, time.January, 9), date(2026, time.January, 12)); got != 1 {
		t.Errorf("DaysBetween(Fri, Mon) = %d, want 1", got)
	}
	// Same day counts nothing.
	if got := cal.DaysBetween(date(2026, time.January, 5), date(2026, time.January, 5)); got != 0 {
		t.Errorf("DaysBetween(d, d) = %d, want 0", got)
	}
	// A holiday inside the span is not counted.
	holidayCal := NewCalendar([]time.Time{date(2026, time.January, 7)})
	if got := holidayCal.DaysBetween(date(2026, time.January, 5), date(2026, time.January, 9)); got != 3 {
		t.Errorf("DaysBetween with holiday = %d, want 3", got)
	}
}

func genDate() gopter.Gen {
	return gen.IntRange(0, 2000).Map(func(offset int) time.Time {
		return date(2024, time.January, 1).AddDate(0, 0, offset)
	})
}

func TestProperty_DaysBetweenAntisymmetric(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	cal := NewCalendar([]time.Time{
		date(2024, time.December, 24),
		date(2025, time.January, 1),
		date(2026, time.January, 1),
	})

	properties.Property("reversing_the_span_negates_the_count", prop.ForAll(
		func(a, b time.Time) bool {
			return cal.DaysBetween(a, b) == -cal.DaysBetween(b, a)
		},
		genDate(),
		genDate(),
	))

	properties.Property("count_is_additive_over_a_midpoint", prop.ForAll(
		func(a time.Time, d1, d2 int) bool {
			b := a.AddDate(0, 0, d1)
			c := b.AddDate(0, 0, d2)
			return cal.DaysBetween(a, b)+cal.DaysBetween(b, c) == cal.DaysBetween(a, c)
		},
		genDate(),
		gen.IntRange(0, 60),
		gen.IntRange(0, 60),
	))

	properties.TestingRun(t)
}

func TestProperty_AddWorkdaysInvertsDaysBetween(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	cal := NewCalendar([]time.Time{date(2025, time.May, 1), date(2025, time.May, 8)})

	properties.Property("adding_n_workdays_counts_back_as_n", prop.ForAll(
		func(from time.Time, n int) bool {
			to := cal.AddWorkdays(from, n)
			return cal.DaysBetween(from, to) == n
		},
		genDate(),
		gen.IntRange(0, 120),
	))

	properties.Property("result_lands_on_a_workday", prop.ForAll(
		func(from time.Time, n int) bool {
			return cal.IsWorkday(cal.AddWorkdays(from, n))
		},
		genDate(),
		gen.IntRange(1, 120),
	))

	properties.TestingRun(t)
}
