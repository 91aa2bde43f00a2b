package ics

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"dayplan/backend/internal/domain"
)

var ErrMalformed = errors.New("malformed calendar document")

const (
	utcLayout        = "20060102T150405Z"
	utcShortLayout   = "20060102T1504Z"
	localShortLayout = "20060102T1504"
	dateLayout       = "20060102"
)

type decodedEvent struct {
	start   time.Time
	allDay  bool
	summary string
}

// DecodeTasksForDate recovers the task entries scheduled on date's calendar
// day. date's location is the viewer's zone: events stored as UTC instants
// are shifted into it, events with a TZID keep their own wall clock.
//
// Only task events come back; summaries starting with "Rest" or "Prep" are
// skipped. Durations are not recovered. When nothing matches the result is
// a single empty task, never an empty slice.
func DecodeTasksForDate(doc []byte, date time.Time) ([]domain.Task, error) {
	if len(bytes.TrimSpace(doc)) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrMalformed)
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	viewer := date.Location()
	y, m, d := date.Date()

	var matched []decodedEvent
	for _, ev := range cal.Events() {
		de, ok := readEvent(ev, viewer)
		if !ok {
			continue
		}
		ey, em, ed := de.start.Date()
		if ey != y || em != m || ed != d {
			continue
		}
		if isDerivedBlock(de.summary) {
			continue
		}
		matched = append(matched, de)
	}

	if len(matched) == 0 {
		return []domain.Task{{}}, nil
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].start.Before(matched[j].start)
	})

	tasks := make([]domain.Task, 0, len(matched))
	for _, de := range matched {
		t := domain.Task{Name: taskName(de.summary)}
		if !de.allDay {
			t.EstimatedStart = de.start.Format("15:04")
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func readEvent(ev *ical.VEvent, viewer *time.Location) (decodedEvent, bool) {
	prop := ev.GetProperty(ical.ComponentPropertyDtStart)
	if prop == nil {
		return decodedEvent{}, false
	}
	start, allDay, err := parseDateTime(prop.Value, prop.ICalParameters, viewer)
	if err != nil {
		return decodedEvent{}, false
	}

	var summary string
	if p := ev.GetProperty(ical.ComponentPropertySummary); p != nil {
		summary = strings.TrimSpace(p.Value)
	}
	return decodedEvent{start: start, allDay: allDay, summary: summary}, true
}

// parseDateTime handles the three DTSTART forms: UTC ("...Z"), local with a
// TZID parameter, and floating or all-day values read in the viewer's zone.
// An unknown TZID also falls back to the viewer's zone.
func parseDateTime(value string, params map[string][]string, viewer *time.Location) (time.Time, bool, error) {
	value = strings.TrimSpace(value)

	loc := viewer
	if tzid, ok := params[string(ical.ParameterTzid)]; ok && len(tzid) > 0 {
		if l, err := time.LoadLocation(strings.Trim(tzid[0], `"`)); err == nil {
			loc = l
		}
	}

	switch {
	case strings.HasSuffix(value, "Z"):
		t, err := parseFirst(value, time.UTC, utcLayout, utcShortLayout)
		if err != nil {
			return time.Time{}, false, err
		}
		return t.In(viewer), false, nil
	case len(value) == len(dateLayout):
		t, err := time.ParseInLocation(dateLayout, value, loc)
		return t, true, err
	default:
		t, err := parseFirst(value, loc, localTimeLayout, localShortLayout)
		return t, false, err
	}
}

// parseFirst tries each layout in turn. The short layouts without seconds
// appear in documents written by older versions of the organizer.
func parseFirst(value string, loc *time.Location, layouts ...string) (time.Time, error) {
	var firstErr error
	for _, layout := range layouts {
		t, err := time.ParseInLocation(layout, value, loc)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

func isDerivedBlock(summary string) bool {
	s := strings.ToLower(summary)
	return strings.HasPrefix(s, "rest") || strings.HasPrefix(s, "prep")
}

// taskName strips a leading "Kind: " prefix from a summary.
func taskName(summary string) string {
	i := strings.Index(summary, ": ")
	if i <= 0 {
		return summary
	}
	if strings.ContainsAny(summary[:i], " \t") {
		return summary
	}
	return strings.TrimSpace(summary[i+2:])
}
