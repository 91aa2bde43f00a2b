// Package capability mints and parses the unguessable calendar tokens that
// double as shareable links.
package capability

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"dayplan/backend/internal/domain"
)

// CalendarsPath is the URL path segment that precedes an id in a shared link.
const CalendarsPath = "/calendars/"

var ErrEmptyInput = errors.New("link or id is required")

// NewID returns a fresh 32-character lowercase hex id carrying 122 random
// bits. Uniqueness is probabilistic; callers do not check for collisions.
func NewID() (domain.CapabilityID, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate capability id: %w", err)
	}
	return domain.CapabilityID(strings.ReplaceAll(u.String(), "-", "")), nil
}

// ParseFromInput extracts the id from whatever the user pasted: a full
// share URL, a "/calendars/<id>" path, or the bare token. Query strings,
// fragments, a trailing slash and an ".ics" suffix are ignored. Whether a
// calendar exists for the id is not checked here.
func ParseFromInput(raw string) (domain.CapabilityID, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrEmptyInput
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return "", fmt.Errorf("invalid link %q: %w", raw, err)
		}
		s = u.Path
	}
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, CalendarsPath); i >= 0 {
		s = s[i+len(CalendarsPath):]
	}
	s = strings.Trim(s, "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(s, ".ics")

	if s == "" {
		return "", fmt.Errorf("no calendar id in %q", raw)
	}
	if !validToken(s) {
		return "", fmt.Errorf("invalid calendar id %q", s)
	}
	return domain.CapabilityID(s), nil
}

// URL builds the shareable link for id under base, e.g.
// https://plan.example.com/calendars/<id>.
func URL(base string, id domain.CapabilityID) string {
	return strings.TrimRight(base, "/") + CalendarsPath + string(id)
}

func validToken(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
