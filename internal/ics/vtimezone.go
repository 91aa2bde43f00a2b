package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"dayplan/backend/internal/timezone"
)

var (
	propTzOffsetFrom = ical.ComponentProperty(ical.PropertyTzoffsetfrom)
	propTzOffsetTo   = ical.ComponentProperty(ical.PropertyTzoffsetto)
	propTzName       = ical.ComponentProperty(ical.PropertyTzname)
	propLicLocation  = ical.ComponentPropertyExtended("X-LIC-LOCATION")
)

type observance struct {
	onset    time.Time
	from, to int
	name     string
	dst      bool
}

// addTimezone appends a VTIMEZONE for zone built from the Go time zone
// database: the observance in force on 1 January of year, then every
// offset change during that year.
func addTimezone(cal *ical.Calendar, zone timezone.Zone, year int) error {
	loc := zone.Loc()
	obs := observances(loc, year)
	if len(obs) == 0 {
		return fmt.Errorf("no observances for %s in %d", zone.Name, year)
	}

	tz := cal.AddTimezone(zone.Name)
	tz.SetProperty(propLicLocation, zone.Name)
	for _, o := range obs {
		var c *ical.ComponentBase
		if o.dst {
			d := &ical.Daylight{}
			tz.Components = append(tz.Components, d)
			c = &d.ComponentBase
		} else {
			s := tz.AddStandard()
			c = &s.ComponentBase
		}
		c.SetProperty(propTzOffsetFrom, formatOffset(o.from))
		c.SetProperty(propTzOffsetTo, formatOffset(o.to))
		c.SetProperty(propTzName, o.name)
		c.SetProperty(ical.ComponentPropertyDtStart, o.onset.In(time.FixedZone("", o.from)).Format(localTimeLayout))
	}
	return nil
}

func observances(loc *time.Location, year int) []observance {
	jan1 := time.Date(year, time.January, 1, 0, 0, 0, 0, loc)
	name, offset := jan1.Zone()
	out := []observance{{
		onset: time.Date(1970, time.January, 1, 0, 0, 0, 0, time.FixedZone("", offset)),
		from:  offset,
		to:    offset,
		name:  name,
		dst:   jan1.IsDST(),
	}}

	t := jan1
	for {
		_, end := t.ZoneBounds()
		if end.IsZero() || end.Year() > year {
			break
		}
		_, prev := end.Add(-time.Second).Zone()
		n, next := end.Zone()
		out = append(out, observance{
			onset: end,
			from:  prev,
			to:    next,
			name:  n,
			dst:   end.IsDST(),
		})
		t = end
	}
	return out
}

// formatOffset renders seconds east of UTC as +HHMM, or +HHMMSS when the
// offset has a seconds part.
func formatOffset(seconds int) string {
	sign := '+'
	if seconds < 0 {
		sign = '-'
		seconds = -seconds
	}
	h, m, s := seconds/3600, (seconds%3600)/60, seconds%60
	if s != 0 {
		return fmt.Sprintf("%c%02d%02d%02d", sign, h, m, s)
	}
	return fmt.Sprintf("%c%02d%02d", sign, h, m)
}
