// Package organizer ties the scheduling model, the zone resolver, the
// calendar codec and the calendar store into the organize, save and load
// flows.
package organizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dayplan/backend/internal/capability"
	"dayplan/backend/internal/domain"
	"dayplan/backend/internal/ics"
	"dayplan/backend/internal/store"
	"dayplan/backend/internal/timezone"
)

const maxTasks = 200

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

type planner interface {
	Plan(ctx context.Context, tasks []domain.Task) ([]domain.ScheduleBlock, error)
}

type zoneResolver interface {
	Resolve(ctx context.Context, hint, freeText string) (timezone.Result, error)
}

type Config struct {
	PublicBaseURL       string
	ZoneResolveAttempts int
}

type Service struct {
	planner  planner
	zones    zoneResolver
	repo     store.CalendarRepository
	gate     *RequestGate
	log      *slog.Logger
	baseURL  string
	attempts int
	now      func() time.Time
	newID    func() (domain.CapabilityID, error)
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDSource(newID func() (domain.CapabilityID, error)) Option {
	return func(s *Service) { s.newID = newID }
}

func WithRequestGate(g *RequestGate) Option {
	return func(s *Service) { s.gate = g }
}

func NewService(p planner, z zoneResolver, repo store.CalendarRepository, log *slog.Logger, cfg Config, opts ...Option) *Service {
	if log == nil {
		log = slog.Default()
	}
	attempts := cfg.ZoneResolveAttempts
	if attempts < 1 {
		attempts = 1
	}
	s := &Service{
		planner:  p,
		zones:    z,
		repo:     repo,
		gate:     NewRequestGate(0),
		log:      log.With(slog.String("component", "organizer")),
		baseURL:  cfg.PublicBaseURL,
		attempts: attempts,
		now:      time.Now,
		newID:    capability.NewID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type OrganizeInput struct {
	SessionID string
	Seq       uint64
	Tasks     []domain.Task
}

type OrganizeResult struct {
	Blocks []domain.ScheduleBlock
	Seq    uint64
	// Stale is set when a newer organize request for the same session began
	// while this one was in flight. Clients should discard the result.
	Stale bool
}

// Organize asks the scheduling model for a plan. A failure is returned as
// is, typically *scheduling.SchedulingError, so the caller can show the
// diagnostic and keep the previous task list.
func (s *Service) Organize(ctx context.Context, in OrganizeInput) (OrganizeResult, error) {
	if len(in.Tasks) > maxTasks {
		return OrganizeResult{}, validationError("too many tasks")
	}
	tasks := make([]domain.Task, 0, len(in.Tasks))
	for _, t := range in.Tasks {
		t.Name = strings.TrimSpace(t.Name)
		if t.Name == "" && t.EstimatedStart == "" && t.EstimatedDuration == "" && t.PrepTime == "" {
			continue
		}
		tasks = append(tasks, t)
	}

	session := strings.TrimSpace(in.SessionID)
	var seq uint64
	if session != "" {
		seq = s.gate.Begin(session, in.Seq)
	}

	blocks, err := s.planner.Plan(ctx, tasks)

	res := OrganizeResult{Blocks: blocks, Seq: seq}
	if session != "" && !s.gate.Current(session, seq) {
		res.Stale = true
		s.log.Info("organize result superseded", slog.String("session_id", session), slog.Uint64("seq", seq))
	}
	if err != nil {
		res.Blocks = nil
		return res, err
	}
	return res, nil
}

// ResolveZone resolves the session zone, repeating the free-text lookup up
// to the configured number of attempts. When every attempt fails the
// fallback zone is returned with its warning and no error: a zone problem
// never blocks saving.
func (s *Service) ResolveZone(ctx context.Context, hint, location string) (timezone.Result, error) {
	var (
		res timezone.Result
		err error
	)
	for attempt := 1; attempt <= s.attempts; attempt++ {
		res, err = s.zones.Resolve(ctx, hint, location)
		if err == nil {
			return res, nil
		}
		var rErr *timezone.ResolutionError
		if !errors.As(err, &rErr) {
			return timezone.Result{}, err
		}
		s.log.Warn("time zone lookup attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", s.attempts),
			slog.Any("err", err),
		)
		if ctx.Err() != nil {
			break
		}
	}
	if res.Warning == "" {
		res.Warning = "Could not work out your time zone; calendar times may be off."
	}
	return res, nil
}

type SaveInput struct {
	// Link is an existing capability id or pasted link. Empty mints a new id.
	Link         string
	Blocks       []domain.ScheduleBlock
	TimezoneHint string
	Location     string
	// Date selects the calendar day. Zero means today in the resolved zone.
	Date time.Time
}

type SaveResult struct {
	ID      domain.CapabilityID
	URL     string
	Zone    timezone.Zone
	Warning string
}

// Save encodes the schedule and stores it under the link's id, replacing
// whatever was there.
func (s *Service) Save(ctx context.Context, in SaveInput) (SaveResult, error) {
	if len(in.Blocks) == 0 {
		return SaveResult{}, validationError("schedule is empty")
	}
	for i, b := range in.Blocks {
		if err := b.CheckDuration(); err != nil {
			return SaveResult{}, validationError(fmt.Sprintf("block %d: %v", i+1, err))
		}
	}

	var id domain.CapabilityID
	if strings.TrimSpace(in.Link) == "" {
		newID, err := s.newID()
		if err != nil {
			return SaveResult{}, err
		}
		id = newID
	} else {
		parsed, err := capability.ParseFromInput(in.Link)
		if err != nil {
			return SaveResult{}, validationError("invalid calendar link")
		}
		id = parsed
	}

	zr, err := s.ResolveZone(ctx, in.TimezoneHint, in.Location)
	if err != nil {
		return SaveResult{}, err
	}

	day := s.day(in.Date, zr.Zone)
	body, err := ics.Encode(in.Blocks, zr.Zone, day, ics.WithClock(s.now), ics.WithLogger(s.log))
	if err != nil {
		return SaveResult{}, err
	}

	if err := s.repo.Save(ctx, id, body); err != nil {
		s.log.Error("calendar save failed", slog.String("calendar_id", id.String()), slog.Any("err", err))
		return SaveResult{}, err
	}

	s.log.Info("calendar saved",
		slog.String("calendar_id", id.String()),
		slog.Int("blocks", len(in.Blocks)),
		slog.String("zone", zr.Zone.Name),
	)
	return SaveResult{
		ID:      id,
		URL:     capability.URL(s.baseURL, id),
		Zone:    zr.Zone,
		Warning: zr.Warning,
	}, nil
}

// Document returns the stored calendar body for a link or bare id.
func (s *Service) Document(ctx context.Context, link string) ([]byte, error) {
	id, err := capability.ParseFromInput(link)
	if err != nil {
		return nil, validationError("invalid calendar link")
	}
	doc, err := s.repo.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return doc.Body, nil
}

type LoadTasksInput struct {
	Link         string
	Date         time.Time
	TimezoneHint string
}

// LoadTasks rebuilds the editable task list for one day from a stored
// calendar. The hint names the viewer's zone and is not looked up.
func (s *Service) LoadTasks(ctx context.Context, in LoadTasksInput) ([]domain.Task, error) {
	body, err := s.Document(ctx, in.Link)
	if err != nil {
		return nil, err
	}

	zone := timezone.UTC()
	if z, err := timezone.Load(strings.TrimSpace(in.TimezoneHint)); err == nil {
		zone = z
	} else if z, ok := timezone.ParseOffset(in.TimezoneHint); ok {
		zone = z
	}

	tasks, err := ics.DecodeTasksForDate(body, s.day(in.Date, zone))
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *Service) day(date time.Time, zone timezone.Zone) time.Time {
	loc := zone.Loc()
	if date.IsZero() {
		date = s.now().In(loc)
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
