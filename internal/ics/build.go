// Package ics converts a normalized class schedule into an iCalendar
// payload, one VEVENT per concrete class occurrence.
package ics

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"schedex/internal/schedule"
	"schedex/internal/timetable"
)

// InvalidScheduleError reports a class entry that cannot be converted
// (empty or out-of-range week set, bad weekday). The whole conversion is
// failed rather than silently dropping the class.
type InvalidScheduleError struct {
	Class  string
	Reason string
}

func (e *InvalidScheduleError) Error() string {
	return fmt.Sprintf("ics: invalid schedule for %q: %s", e.Class, e.Reason)
}

// Options controls payload generation.
type Options struct {
	// Location is the timezone lesson periods are anchored in.
	// If nil, time.Local is used.
	Location *time.Location

	// Now supplies the DTSTAMP timestamp. Injectable so identical input
	// plus a fixed clock produces byte-identical output.
	Now func() time.Time
}

const prodID = "-//schedex//schedule exporter//EN"

// Build renders classes into an iCalendar payload.
//
// Per entry: the period selector resolves to one contiguous time range via
// the period table; the anchor date is the first occurrence of the entry's
// weekday on or after termStart; week w then lands on anchor+(w-1)*7 days.
// Discrete per-occurrence events are emitted instead of a single RRULE
// event because academic week sets routinely have gaps (e.g. 1-8,10-16)
// that a recurrence rule cannot express. Output ordering follows input
// order, then week order, so repeated exports are byte-identical.
func Build(classes []schedule.ClassEntry, termStart time.Time, opts Options) ([]byte, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	stamp := now().UTC()

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(prodID)

	for _, entry := range classes {
		if err := addClass(cal, entry, termStart, loc, stamp); err != nil {
			return nil, err
		}
	}

	return []byte(cal.Serialize()), nil
}

func addClass(cal *ical.Calendar, entry schedule.ClassEntry, termStart time.Time, loc *time.Location, stamp time.Time) error {
	if len(entry.Weeks) == 0 {
		return &InvalidScheduleError{Class: entry.Name, Reason: "empty week set"}
	}
	if entry.Day < 1 || entry.Day > 7 {
		return &InvalidScheduleError{Class: entry.Name, Reason: fmt.Sprintf("weekday %d out of range", entry.Day)}
	}

	span, err := timetable.Resolve(entry.Periods...)
	if err != nil {
		return fmt.Errorf("ics: class %q: %w", entry.Name, err)
	}

	maxWeek := 0
	for _, w := range entry.Weeks {
		if w < 1 {
			return &InvalidScheduleError{Class: entry.Name, Reason: fmt.Sprintf("week %d out of range", w)}
		}
		if w > maxWeek {
			maxWeek = w
		}
	}

	anchor := anchorDate(termStart, entry.Day, loc)

	// Weekly candidates from the anchor; week w is candidate w-1.
	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.WEEKLY,
		Dtstart: span.Start.On(anchor),
		Count:   maxWeek,
	})
	if err != nil {
		return fmt.Errorf("ics: class %q: %w", entry.Name, err)
	}
	starts := rule.All()

	desc := describeClass(entry)

	for _, w := range entry.Weeks {
		start := starts[w-1]
		end := span.End.On(start)

		uid := fmt.Sprintf("%s-%s-%s@schedex", entry.CourseID, entry.ClassID, start.Format("20060102"))
		ev := cal.AddEvent(uid)
		ev.SetDtStampTime(stamp)
		ev.SetStartAt(start)
		ev.SetEndAt(end)
		ev.SetSummary(entry.Name)
		if entry.Location != "" {
			ev.SetLocation(entry.Location)
		}
		if desc != "" {
			ev.SetDescription(desc)
		}
	}

	return nil
}

// anchorDate returns the date of the given ISO weekday (1=Monday..7=Sunday)
// in the first calendar week starting at termStart, i.e. the first
// occurrence of that weekday on or after termStart, at midnight in loc.
func anchorDate(termStart time.Time, day int, loc *time.Location) time.Time {
	t := termStart.In(loc)
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)

	wd := int(d.Weekday())
	if wd == 0 {
		wd = 7 // Sunday
	}
	return d.AddDate(0, 0, (day-wd+7)%7)
}

func describeClass(entry schedule.ClassEntry) string {
	var parts []string
	if len(entry.Teachers) > 0 {
		parts = append(parts, strings.Join(entry.Teachers, ", "))
	}
	if entry.CourseID != "" {
		parts = append(parts, entry.CourseID)
	}
	if entry.Credit > 0 {
		parts = append(parts, fmt.Sprintf("%d credits", entry.Credit))
	}
	if entry.Remark != "" {
		parts = append(parts, entry.Remark)
	}
	return strings.Join(parts, "\n")
}
