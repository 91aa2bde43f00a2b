// Package ics converts schedules to and from iCalendar documents.
package ics

import (
	"fmt"
	"log/slog"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"dayplan/backend/internal/domain"
	"dayplan/backend/internal/timezone"
)

const (
	ProductID = "-//dayplan//Task Organizer//EN"
	CalName   = "Day plan"
	uidDomain = "dayplan"

	localTimeLayout = "20060102T150405"
)

type encoder struct {
	now func() time.Time
	uid func() string
	log *slog.Logger
}

type Option func(*encoder)

// WithClock overrides the time used for DTSTAMP and CREATED.
func WithClock(now func() time.Time) Option {
	return func(e *encoder) { e.now = now }
}

// WithUIDSource overrides how event UIDs are generated.
func WithUIDSource(uid func() string) Option {
	return func(e *encoder) { e.uid = uid }
}

func WithLogger(log *slog.Logger) Option {
	return func(e *encoder) { e.log = log }
}

func newUID() string {
	return uuid.NewString() + "@" + uidDomain
}

// Encode writes one VEVENT per block on referenceDate's calendar day.
//
// For a named zone the events carry wall-clock times qualified by TZID and
// the document includes a matching VTIMEZONE. For UTC or a fixed offset
// the events carry absolute UTC instants. Blocks whose start cannot be
// parsed, or whose duration is not between one minute and a day, are
// skipped. Apart from UID, DTSTAMP and CREATED the output is a
// pure function of the inputs.
func Encode(blocks []domain.ScheduleBlock, zone timezone.Zone, referenceDate time.Time, opts ...Option) ([]byte, error) {
	e := &encoder{
		now: time.Now,
		uid: newUID,
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	log := e.log.With(slog.String("component", "ics"))

	loc := zone.Loc()
	named := !zone.Fixed && !zone.IsUTC()

	cal := ical.NewCalendar()
	cal.SetProductId(ProductID)
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName(CalName)
	if zone.Fixed {
		cal.SetXWRTimezone("UTC")
	} else {
		cal.SetXWRTimezone(zone.Name)
	}

	if named {
		if err := addTimezone(cal, zone, referenceDate.Year()); err != nil {
			return nil, err
		}
	}

	stamp := e.now().UTC()
	skipped := 0
	for i, b := range blocks {
		start, end, err := b.On(referenceDate, loc)
		if err != nil {
			skipped++
			log.Warn("skipping invalid block",
				slog.Int("index", i),
				slog.String("start", b.Start),
				slog.Int("duration", b.DurationMinutes),
				slog.Any("err", err),
			)
			continue
		}
		if h, m, _ := b.Clock(); start.Hour() != h || start.Minute() != m {
			log.Warn("block start falls in a daylight saving gap",
				slog.Int("index", i),
				slog.String("start", b.Start),
				slog.String("shifted_to", start.Format("15:04")),
			)
		}

		ev := cal.AddEvent(e.uid())
		ev.SetDtStampTime(stamp)
		ev.SetCreatedTime(stamp)
		ev.SetSummary(Summary(b))
		if named {
			ev.SetProperty(ical.ComponentPropertyDtStart, start.Format(localTimeLayout), ical.WithTZID(zone.Name))
			ev.SetProperty(ical.ComponentPropertyDtEnd, end.Format(localTimeLayout), ical.WithTZID(zone.Name))
		} else {
			ev.SetStartAt(start)
			ev.SetEndAt(end)
		}
	}

	log.Debug("calendar encoded",
		slog.Int("blocks", len(blocks)),
		slog.Int("skipped", skipped),
		slog.String("zone", zone.Name),
	)
	return []byte(cal.Serialize()), nil
}

// Summary is the event title for a block, e.g. "Task: Write report".
func Summary(b domain.ScheduleBlock) string {
	label := b.Label
	if label == "" {
		label = b.Kind.Label()
	}
	return fmt.Sprintf("%s: %s", b.Kind.Label(), label)
}
