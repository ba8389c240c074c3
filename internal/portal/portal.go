// Package portal defines the upstream academic-portal collaborator contract
// and the normalization from its raw records into schedule entries.
//
// The portal protocol itself (authentication, captcha, scraping) lives
// behind the Client interface; this service only stores the client's opaque
// state blob and consumes its schedule output.
package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"schedex/internal/schedule"
	"schedex/internal/timetable"
)

var (
	// ErrAuth reports rejected credentials on login.
	ErrAuth = errors.New("portal: authentication failed")
	// ErrSessionExpired reports that the portal no longer accepts the
	// restored session state.
	ErrSessionExpired = errors.New("portal: session expired")
)

// State is the portal client's serialized session snapshot. It is owned
// entirely by the client implementation; this service persists it verbatim.
type State = json.RawMessage

// RawClass is one class record as the portal reports it: weeks still
// nested, lesson periods still a bare selector.
type RawClass struct {
	Name     string               `json:"name"`
	CourseID string               `json:"course_id"`
	ClassID  string               `json:"class_id"`
	Day      int                  `json:"day"`
	Weeks    []timetable.WeekNode `json:"week"`
	Periods  []int                `json:"time"`
	Location string               `json:"location,omitempty"`
	Teachers []string             `json:"teacher_name,omitempty"`
	Credit   int                  `json:"credit,omitempty"`
	Remark   string               `json:"remark,omitempty"`
}

// Client is one authenticated portal conversation. Instances are not safe
// for concurrent use; create one per request via a Factory.
type Client interface {
	// Login authenticates and initializes the client's internal state.
	Login(ctx context.Context, username, password string) error
	// Dump serializes the client state for storage.
	Dump() (State, error)
	// Restore loads previously dumped state.
	Restore(state State) error

	StudentID(ctx context.Context) (int, error)
	Schedule(ctx context.Context, year, term int) ([]RawClass, error)
	TermStart(ctx context.Context) (time.Time, error)
	Logout(ctx context.Context) error
}

// Factory creates a fresh Client for one request.
type Factory func() Client

// Normalize flattens a raw portal record into a schedule entry.
func Normalize(raw RawClass) (schedule.ClassEntry, error) {
	if raw.Day < 1 || raw.Day > 7 {
		return schedule.ClassEntry{}, fmt.Errorf("portal: class %q: weekday %d out of range", raw.Name, raw.Day)
	}
	return schedule.ClassEntry{
		Name:     raw.Name,
		CourseID: raw.CourseID,
		ClassID:  raw.ClassID,
		Day:      raw.Day,
		Weeks:    timetable.Flatten(raw.Weeks),
		Periods:  raw.Periods,
		Location: raw.Location,
		Teachers: raw.Teachers,
		Credit:   raw.Credit,
		Remark:   raw.Remark,
	}, nil
}

// NormalizeAll maps Normalize over a full schedule, failing on the first
// invalid record.
func NormalizeAll(raws []RawClass) ([]schedule.ClassEntry, error) {
	out := make([]schedule.ClassEntry, 0, len(raws))
	for _, raw := range raws {
		entry, err := Normalize(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}
