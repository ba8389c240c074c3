// Package timetable holds the institution's fixed lesson-period table and
// the week-set normalization used by the schedule pipeline.
package timetable

import (
	"errors"
	"fmt"
	"time"
)

// ClockTime is a wall-clock time of day, independent of any date.
type ClockTime struct {
	Hour   int
	Minute int
}

// On pins the clock time onto the given date, in the date's location.
func (c ClockTime) On(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), c.Hour, c.Minute, 0, 0, date.Location())
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Span is a contiguous wall-clock time range within one day.
type Span struct {
	Start ClockTime
	End   ClockTime
}

// lessonPeriods is the standard 14-period day. Period 1 is at index 0.
var lessonPeriods = [14]Span{
	{ClockTime{8, 0}, ClockTime{8, 45}},
	{ClockTime{8, 55}, ClockTime{9, 40}},
	{ClockTime{10, 0}, ClockTime{10, 45}},
	{ClockTime{10, 55}, ClockTime{11, 40}},
	{ClockTime{12, 0}, ClockTime{12, 45}},
	{ClockTime{12, 55}, ClockTime{13, 40}},
	{ClockTime{14, 0}, ClockTime{14, 45}},
	{ClockTime{14, 55}, ClockTime{15, 40}},
	{ClockTime{16, 0}, ClockTime{16, 45}},
	{ClockTime{16, 55}, ClockTime{17, 40}},
	{ClockTime{18, 0}, ClockTime{18, 45}},
	{ClockTime{18, 55}, ClockTime{19, 40}},
	{ClockTime{19, 55}, ClockTime{20, 40}},
	{ClockTime{20, 55}, ClockTime{21, 40}},
}

// PeriodCount is the number of lesson periods in a day.
const PeriodCount = len(lessonPeriods)

var (
	// ErrPeriodOutOfRange reports a period index outside [1, PeriodCount].
	ErrPeriodOutOfRange = errors.New("timetable: period index out of range")
	// ErrEmptyPeriods reports an empty period selector.
	ErrEmptyPeriods = errors.New("timetable: empty period selector")
)

// Resolve maps a period selector to a wall-clock span. A single index yields
// that period's span; multiple indices yield the envelope from the first
// index's start to the last index's end. Indices are 1-based.
func Resolve(periods ...int) (Span, error) {
	if len(periods) == 0 {
		return Span{}, ErrEmptyPeriods
	}
	for _, p := range periods {
		if p < 1 || p > PeriodCount {
			return Span{}, fmt.Errorf("%w: %d", ErrPeriodOutOfRange, p)
		}
	}
	return Span{
		Start: lessonPeriods[periods[0]-1].Start,
		End:   lessonPeriods[periods[len(periods)-1]-1].End,
	}, nil
}
