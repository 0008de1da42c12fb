package fileops

import (
	"errors"
	"fmt"
)

// Decision is the caller's answer to a name conflict.
type Decision int

const (
	// Skip leaves the server untouched and marks the item skipped.
	Skip Decision = iota
	// Replace deletes the existing item, then transfers under the original
	// name.
	Replace
	// CreateNew transfers under the next free alternate name.
	CreateNew
)

func (d Decision) String() string {
	switch d {
	case Skip:
		return "skip"
	case Replace:
		return "replace"
	case CreateNew:
		return "create_new"
	}
	return "unknown"
}

// Conflict describes an item whose target name is already taken. No server
// call is made between detecting the conflict and acting on the decision.
type Conflict struct {
	Name   string // proposed name, already sanitized
	Folder string // destination folder path
	Path   string // full target path that exists
}

// DecideFunc resolves a conflict. Supplied by the caller (interactive UI or
// a fixed policy); it must not block on network work of its own.
type DecideFunc func(Conflict) Decision

// ConflictError is returned when a conflict is detected and no DecideFunc
// was configured.
type ConflictError struct {
	Path string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("item already exists: %s", e.Path)
}

// AsConflict checks if an error is a ConflictError and returns it.
func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
