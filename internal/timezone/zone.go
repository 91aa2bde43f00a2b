// Package timezone decides which time zone a schedule is written in.
package timezone

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var ErrUnknownZone = errors.New("unknown time zone")

// Zone is a resolved time zone. Named zones carry an IANA identifier; Fixed
// zones only know a UTC offset and are written as UTC instants.
type Zone struct {
	Name     string
	Location *time.Location
	Fixed    bool
}

func UTC() Zone {
	return Zone{Name: "UTC", Location: time.UTC}
}

// IsUTC reports whether the zone is plain UTC.
func (z Zone) IsUTC() bool {
	return z.Name == "UTC" && !z.Fixed
}

// Loc never returns nil.
func (z Zone) Loc() *time.Location {
	if z.Location == nil {
		return time.UTC
	}
	return z.Location
}

// Load validates name against the time zone database and returns it as a
// named zone. "Local" and empty names are rejected.
func Load(name string) (Zone, error) {
	name = strings.TrimSpace(name)
	if !plausibleName(name) {
		return Zone{}, fmt.Errorf("%w: %q", ErrUnknownZone, name)
	}
	if strings.EqualFold(name, "UTC") || name == "Etc/UTC" || name == "Etc/GMT" {
		return UTC(), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Zone{}, fmt.Errorf("%w: %q", ErrUnknownZone, name)
	}
	return Zone{Name: loc.String(), Location: loc}, nil
}

// Valid reports whether name is a usable IANA zone identifier.
func Valid(name string) bool {
	_, err := Load(name)
	return err == nil
}

func plausibleName(name string) bool {
	if name == "" || name == "Local" || len(name) > 64 {
		return false
	}
	if strings.HasPrefix(name, "/") || strings.Contains(name, "..") || strings.ContainsAny(name, " \\") {
		return false
	}
	return true
}

var offsetPattern = regexp.MustCompile(`^(?i:(?:UTC|GMT))?\s*([+-])\s*(\d{1,2})(?::?(\d{2}))?$`)

// ParseOffset reads loose offset notations such as "UTC+3", "GMT-05:30" or
// "+0200" into a fixed zone. Plain "UTC", "GMT" and "Z" give UTC.
func ParseOffset(s string) (Zone, bool) {
	s = strings.TrimSpace(s)
	switch strings.ToUpper(s) {
	case "UTC", "GMT", "Z":
		return UTC(), true
	}

	m := offsetPattern.FindStringSubmatch(s)
	if m == nil {
		return Zone{}, false
	}
	hours, err := strconv.Atoi(m[2])
	if err != nil || hours > 14 {
		return Zone{}, false
	}
	minutes := 0
	if m[3] != "" {
		minutes, err = strconv.Atoi(m[3])
		if err != nil || minutes > 59 {
			return Zone{}, false
		}
	}
	offset := hours*3600 + minutes*60
	if m[1] == "-" {
		offset = -offset
	}
	if offset == 0 {
		return UTC(), true
	}
	return Fixed(offset), true
}

// Fixed returns a zone at a constant offset from UTC, in seconds.
func Fixed(offsetSeconds int) Zone {
	sign := '+'
	abs := offsetSeconds
	if abs < 0 {
		sign = '-'
		abs = -abs
	}
	name := fmt.Sprintf("UTC%c%02d:%02d", sign, abs/3600, (abs%3600)/60)
	return Zone{Name: name, Location: time.FixedZone(name, offsetSeconds), Fixed: true}
}
