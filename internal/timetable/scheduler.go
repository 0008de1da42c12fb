// Package timetable decides if and when a session must be force-expired
// based on the user's lesson timetable, with a pre-warning.
package timetable

import (
	"fmt"
	"sort"
	"time"
)

// ClockTime is a time of day, independent of date.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClock parses a "15:04" time-of-day string.
func ParseClock(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return ClockTime{}, fmt.Errorf("parse clock time %q: %w", s, err)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// On anchors the clock time to the date of ref, in ref's location.
func (c ClockTime) On(ref time.Time) time.Time {
	return time.Date(ref.Year(), ref.Month(), ref.Day(), c.Hour, c.Minute, 0, 0, ref.Location())
}

// Entry is one immutable timetable lesson.
type Entry struct {
	Day    time.Weekday
	Period string
	Start  ClockTime
	End    ClockTime
}

// NewEntry builds an Entry from wire strings.
func NewEntry(day int, period, start, end string) (Entry, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Entry{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Day: time.Weekday(day), Period: period, Start: s, End: e}, nil
}

// State is the derived auto-logout decision. Enabled implies LogoutAt is in
// the future at the time it was set.
type State struct {
	Enabled  bool
	LogoutAt time.Time
}

// Evaluate finds the lesson window containing now and returns the logout
// deadline at its end. Entries are scanned in ascending start order, so when
// timetables overlap the earliest-starting lesson wins. Inside no lesson the
// state is disabled.
func Evaluate(entries []Entry, now time.Time) State {
	today := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Day == now.Weekday() {
			today = append(today, e)
		}
	}
	sort.SliceStable(today, func(i, j int) bool {
		a, b := today[i].Start, today[j].Start
		if a.Hour != b.Hour {
			return a.Hour < b.Hour
		}
		return a.Minute < b.Minute
	})

	for _, e := range today {
		start := e.Start.On(now)
		end := e.End.On(now)
		if !now.Before(start) && now.Before(end) {
			return State{Enabled: true, LogoutAt: end}
		}
	}
	return State{}
}

// Action is what a scheduler tick demands of the caller.
type Action int

const (
	NoOp Action = iota
	ShowWarning
	ForceLogout
	StopScheduler
)

func (a Action) String() string {
	switch a {
	case NoOp:
		return "noop"
	case ShowWarning:
		return "show_warning"
	case ForceLogout:
		return "force_logout"
	case StopScheduler:
		return "stop_scheduler"
	}
	return "unknown"
}

// Warning band before the deadline. The band is half-open and exactly one
// tick period wide, so with a one-minute cadence the warning fires on
// exactly one qualifying tick even when ticks drift by sub-second amounts.
const (
	warnBandLow  = 4 * time.Minute
	warnBandHigh = 5 * time.Minute
)

// Tick evaluates one minute tick against the current state.
func Tick(state State, now time.Time) Action {
	if !state.Enabled {
		return StopScheduler
	}
	if !now.Before(state.LogoutAt) {
		return ForceLogout
	}
	remaining := state.LogoutAt.Sub(now)
	if remaining >= warnBandLow && remaining < warnBandHigh {
		return ShowWarning
	}
	return NoOp
}
