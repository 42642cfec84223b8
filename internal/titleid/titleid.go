package titleid

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidTitleID is returned when a title ID cannot be normalized
// into the canonical 9-character form.
var ErrInvalidTitleID = errors.New("invalid title ID")

// Canonical form: four-letter region prefix followed by five digits,
// e.g. BLES00799 or NPUA80662.
var titleIDPattern = regexp.MustCompile(`^[A-Z]{4}[0-9]{5}$`)

// Clean strips separators and whitespace from a raw title ID and
// uppercases the remainder. It performs no validation.
func Clean(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))

	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - ('a' - 'A'))
		case (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		}
	}

	return b.String()
}

// Normalize cleans raw and validates the result against the canonical
// pattern. Inputs that clean into anything else are rejected outright,
// never truncated or padded.
func Normalize(raw string) (string, error) {
	cleaned := Clean(raw)
	if !titleIDPattern.MatchString(cleaned) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTitleID, raw)
	}

	return cleaned, nil
}
