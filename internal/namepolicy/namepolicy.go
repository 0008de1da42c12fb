// Package namepolicy sanitizes remote file names and generates numbered
// alternatives on conflict.
package namepolicy

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

// forbidden characters in HAP+ path components.
const forbiddenChars = `<>:"/\|?*`

// reservedNames are device names the server's filesystem refuses.
var reservedNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {},
	"COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {},
	"LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// maxAttempts bounds the alternate-name search so a server that always
// reports existence cannot drive it forever.
const maxAttempts = 100

// ErrExhausted is returned when no free name is found within maxAttempts.
var ErrExhausted = errors.New("alternate name attempts exhausted")

// Sanitize replaces forbidden path characters with underscores and defuses
// reserved device names by appending an underscore to the base component.
// Sanitize is idempotent.
func Sanitize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if strings.ContainsRune(forbiddenChars, r) {
			b.WriteRune('_')
		} else {
			b.WriteRune(r)
		}
	}
	name := b.String()

	// Only the base component (before the first dot) can hit a reserved name.
	base, rest, hasDot := strings.Cut(name, ".")
	if _, reserved := reservedNames[strings.ToUpper(base)]; reserved {
		base += "_"
	}
	if hasDot {
		return base + "." + rest
	}
	return base
}

// AlternateName produces the next numbered variant of a name:
// "file.txt" -> "file-1.txt" -> "file-2.txt".
func AlternateName(current string) string {
	base := current
	ext := ""
	if i := strings.LastIndex(current, "."); i >= 0 {
		base, ext = current[:i], current[i:]
	}

	if i := strings.LastIndex(base, "-"); i >= 0 {
		if n, err := strconv.Atoi(base[i+1:]); err == nil {
			return Sanitize(base[:i+1] + strconv.Itoa(n+1) + ext)
		}
	}
	return Sanitize(base + "-1" + ext)
}

// NextFreeName walks numbered variants of name until exists reports a free
// one. The search is bounded; a pathological server that always reports
// existence yields ErrExhausted rather than an unbounded loop.
func NextFreeName(ctx context.Context, name string, exists func(ctx context.Context, candidate string) (bool, error)) (string, error) {
	candidate := name
	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidate = AlternateName(candidate)
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", ErrExhausted
}
