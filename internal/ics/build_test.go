package ics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedex/internal/schedule"
)

func shanghai(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)
	return loc
}

func fixedClock() time.Time {
	return time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
}

func testEntry() schedule.ClassEntry {
	return schedule.ClassEntry{
		Name:     "Linear Algebra",
		CourseID: "MA001",
		ClassID:  "(2023-2024-2)-MA001-1",
		Day:      2, // Tuesday
		Weeks:    []int{1, 3, 5},
		Periods:  []int{3, 4},
		Location: "East 305",
		Teachers: []string{"Zhang San"},
		Credit:   4,
	}
}

func TestBuildOccurrenceDates(t *testing.T) {
	loc := shanghai(t)
	termStart := time.Date(2024, 2, 19, 0, 0, 0, 0, loc) // a Monday

	payload, err := Build([]schedule.ClassEntry{testEntry()}, termStart, Options{
		Location: loc,
		Now:      fixedClock,
	})
	require.NoError(t, err)

	body := string(payload)
	assert.Equal(t, 3, strings.Count(body, "BEGIN:VEVENT"))

	// Weeks 1, 3, 5 on a Tuesday: Feb 20, Mar 5, Mar 19. Periods 3-4 are
	// 10:00-11:40 Shanghai time, i.e. 02:00-03:40 UTC.
	for _, want := range []string{
		"DTSTART:20240220T020000Z",
		"DTSTART:20240305T020000Z",
		"DTSTART:20240319T020000Z",
		"DTEND:20240220T034000Z",
	} {
		assert.Contains(t, body, want)
	}
	assert.NotContains(t, body, "DTSTART:20240227") // week 2 must not occur
}

func TestBuildAnchorOnOrAfterTermStart(t *testing.T) {
	loc := shanghai(t)

	// Term starts on a Wednesday; a Tuesday class in week 1 lands on the
	// next Tuesday, six days later.
	termStart := time.Date(2024, 2, 21, 0, 0, 0, 0, loc) // a Wednesday
	entry := testEntry()
	entry.Weeks = []int{1}

	payload, err := Build([]schedule.ClassEntry{entry}, termStart, Options{Location: loc, Now: fixedClock})
	require.NoError(t, err)
	assert.Contains(t, string(payload), "DTSTART:20240227T020000Z")

	// A class on the term-start weekday anchors on term start itself.
	entry.Day = 3
	payload, err = Build([]schedule.ClassEntry{entry}, termStart, Options{Location: loc, Now: fixedClock})
	require.NoError(t, err)
	assert.Contains(t, string(payload), "DTSTART:20240221T020000Z")
}

func TestBuildStableUIDs(t *testing.T) {
	loc := shanghai(t)
	termStart := time.Date(2024, 2, 19, 0, 0, 0, 0, loc)

	payload, err := Build([]schedule.ClassEntry{testEntry()}, termStart, Options{Location: loc, Now: fixedClock})
	require.NoError(t, err)
	assert.Contains(t, string(payload), "UID:MA001-(2023-2024-2)-MA001-1-20240220@schedex")
}

func TestBuildDeterministic(t *testing.T) {
	loc := shanghai(t)
	termStart := time.Date(2024, 2, 19, 0, 0, 0, 0, loc)
	classes := []schedule.ClassEntry{testEntry()}
	opts := Options{Location: loc, Now: fixedClock}

	first, err := Build(classes, termStart, opts)
	require.NoError(t, err)
	second, err := Build(classes, termStart, opts)
	require.NoError(t, err)

	assert.Equal(t, first, second, "identical input and clock must produce byte-identical output")
}

func TestBuildEmptyWeeksRejected(t *testing.T) {
	loc := shanghai(t)
	termStart := time.Date(2024, 2, 19, 0, 0, 0, 0, loc)

	good := testEntry()
	bad := testEntry()
	bad.Name = "Ghost Seminar"
	bad.Weeks = nil

	payload, err := Build([]schedule.ClassEntry{good, bad}, termStart, Options{Location: loc, Now: fixedClock})
	require.Error(t, err)
	assert.Nil(t, payload, "no partial payload on failure")

	var invalid *InvalidScheduleError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "Ghost Seminar", invalid.Class)
}

func TestBuildWeekOutOfRangeRejected(t *testing.T) {
	loc := shanghai(t)
	termStart := time.Date(2024, 2, 19, 0, 0, 0, 0, loc)

	entry := testEntry()
	entry.Weeks = []int{0, 1}

	_, err := Build([]schedule.ClassEntry{entry}, termStart, Options{Location: loc, Now: fixedClock})
	var invalid *InvalidScheduleError
	require.ErrorAs(t, err, &invalid)
}

func TestBuildBadPeriodPropagates(t *testing.T) {
	loc := shanghai(t)
	termStart := time.Date(2024, 2, 19, 0, 0, 0, 0, loc)

	entry := testEntry()
	entry.Periods = []int{13, 15}

	_, err := Build([]schedule.ClassEntry{entry}, termStart, Options{Location: loc, Now: fixedClock})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestBuildDuplicateWeeksEmitDuplicateEvents(t *testing.T) {
	// The flattener does not deduplicate; the converter mirrors that and
	// emits one event per listed week, duplicates included.
	loc := shanghai(t)
	termStart := time.Date(2024, 2, 19, 0, 0, 0, 0, loc)

	entry := testEntry()
	entry.Weeks = []int{1, 1}

	payload, err := Build([]schedule.ClassEntry{entry}, termStart, Options{Location: loc, Now: fixedClock})
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(payload), "BEGIN:VEVENT"))
}
