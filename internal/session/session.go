// Package session owns authentication state: login/logout, the two server
// tokens, and the keepalive protocol that stops the server session from
// expiring.
package session

import (
	"strings"
	"time"
)

// Device modes governing auto-logout behaviour.
const (
	ModeUnset    = ""
	ModePersonal = "personal"
	ModeShared   = "shared"
	ModeSingle   = "single"
)

// Session is the single active server session. It is created on successful
// login, mutated only by the Manager, and destroyed on logout.
type Session struct {
	ServerURL   string
	Username    string
	SiteName    string
	FirstName   string
	Token1      string
	Token2      string
	Token2Name  string
	Roles       map[string]struct{}
	DeviceMode  string
	LastContact time.Time // advanced only after a successful round-trip
}

// HasRole reports membership of a server role.
func (s *Session) HasRole(role string) bool {
	_, ok := s.Roles[role]
	return ok
}

// parseRoles splits the server's comma-separated role string into a set.
func parseRoles(raw string) map[string]struct{} {
	roles := make(map[string]struct{})
	for _, r := range strings.Split(raw, ",") {
		r = strings.TrimSpace(r)
		if r != "" {
			roles[r] = struct{}{}
		}
	}
	return roles
}

// Clock supplies the current time, injected so staleness and scheduling are
// testable with synthetic time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }
