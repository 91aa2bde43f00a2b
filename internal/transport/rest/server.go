// Package rest exposes the organizer over HTTP with echo.
package rest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"dayplan/backend/internal/domain"
	"dayplan/backend/internal/ics"
	"dayplan/backend/internal/scheduling"
	"dayplan/backend/internal/service/organizer"
	"dayplan/backend/internal/store"
	"dayplan/backend/internal/timezone"
)

const (
	maxBodyBytes = 1 << 20
	dateLayout   = "2006-01-02"

	calendarContentType = "text/calendar; charset=utf-8"
)

type organizerService interface {
	Organize(ctx context.Context, in organizer.OrganizeInput) (organizer.OrganizeResult, error)
	ResolveZone(ctx context.Context, hint, location string) (timezone.Result, error)
	Save(ctx context.Context, in organizer.SaveInput) (organizer.SaveResult, error)
	Document(ctx context.Context, link string) ([]byte, error)
	LoadTasks(ctx context.Context, in organizer.LoadTasksInput) ([]domain.Task, error)
}

type Server struct {
	svc    organizerService
	log    *slog.Logger
	health func(ctx context.Context) error
}

func NewServer(svc organizerService, log *slog.Logger, health func(ctx context.Context) error) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		svc:    svc,
		log:    log.With(slog.String("component", "http")),
		health: health,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/calendars/:id", s.getCalendar)
	e.GET("/healthz", s.healthz)

	api := e.Group("/api")
	api.POST("/organize", s.organize)
	api.POST("/timezone", s.resolveZone)
	api.PUT("/calendars", s.saveCalendar)
	api.GET("/calendars/:id/tasks", s.loadTasks)
}

type errorResponse struct {
	Error      string `json:"error"`
	Diagnostic string `json:"diagnostic,omitempty"`
	Stage      string `json:"stage,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
}

func (s *Server) healthz(c echo.Context) error {
	if s.health != nil {
		if err := s.health(c.Request().Context()); err != nil {
			s.log.Warn("health check failed", slog.Any("err", err))
			return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "storage unavailable"})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// getCalendar serves the stored document byte for byte. Anyone holding the
// id can read it.
func (s *Server) getCalendar(c echo.Context) error {
	log := s.log.With(slog.String("route", "GET /calendars/:id"))

	body, err := s.svc.Document(c.Request().Context(), c.Param("id"))
	if err != nil {
		var vErr *organizer.ValidationError
		if errors.Is(err, store.ErrNotFound) || errors.As(err, &vErr) {
			log.Info("calendar not found", slog.String("calendar_id", c.Param("id")))
			return c.String(http.StatusNotFound, "calendar not found")
		}
		if store.IsRetryable(err) {
			log.Warn("calendar load failed", slog.Any("err", err))
			return c.String(http.StatusServiceUnavailable, "calendar temporarily unavailable")
		}
		log.Error("calendar load failed", slog.Any("err", err))
		return c.String(http.StatusInternalServerError, "internal error")
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `inline; filename="dayplan.ics"`)
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	return c.Blob(http.StatusOK, calendarContentType, body)
}

type organizeRequest struct {
	SessionID  string        `json:"session_id"`
	RequestSeq uint64        `json:"request_seq"`
	Tasks      []domain.Task `json:"tasks"`
}

type organizeResponse struct {
	Blocks     []domain.ScheduleBlock `json:"blocks"`
	RequestSeq uint64                 `json:"request_seq,omitempty"`
	Stale      bool                   `json:"stale"`
}

func (s *Server) organize(c echo.Context) error {
	log := s.log.With(slog.String("route", "POST /api/organize"))

	var req organizeRequest
	if err := decodeBody(c, &req); err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}

	res, err := s.svc.Organize(c.Request().Context(), organizer.OrganizeInput{
		SessionID: req.SessionID,
		Seq:       req.RequestSeq,
		Tasks:     req.Tasks,
	})
	if err != nil {
		return s.fail(c, log, err)
	}

	blocks := res.Blocks
	if blocks == nil {
		blocks = []domain.ScheduleBlock{}
	}
	log.Info("tasks organized",
		slog.String("session_id", req.SessionID),
		slog.Int("tasks", len(req.Tasks)),
		slog.Int("blocks", len(blocks)),
		slog.Bool("stale", res.Stale),
	)
	return c.JSON(http.StatusOK, organizeResponse{Blocks: blocks, RequestSeq: res.Seq, Stale: res.Stale})
}

type zoneRequest struct {
	Hint     string `json:"hint"`
	Location string `json:"location"`
}

type zoneResponse struct {
	Zone       string `json:"zone"`
	Fixed      bool   `json:"fixed"`
	FromLookup bool   `json:"from_lookup"`
	Warning    string `json:"warning,omitempty"`
}

func (s *Server) resolveZone(c echo.Context) error {
	log := s.log.With(slog.String("route", "POST /api/timezone"))

	var req zoneRequest
	if err := decodeBody(c, &req); err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}

	res, err := s.svc.ResolveZone(c.Request().Context(), req.Hint, req.Location)
	if err != nil {
		return s.fail(c, log, err)
	}
	return c.JSON(http.StatusOK, zoneResponse{
		Zone:       res.Zone.Name,
		Fixed:      res.Zone.Fixed,
		FromLookup: res.FromLookup,
		Warning:    res.Warning,
	})
}

type saveRequest struct {
	Link         string                 `json:"link"`
	Blocks       []domain.ScheduleBlock `json:"blocks"`
	TimezoneHint string                 `json:"timezone_hint"`
	Location     string                 `json:"location"`
	Date         string                 `json:"date"`
}

type saveResponse struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Timezone string `json:"timezone"`
	Warning  string `json:"warning,omitempty"`
}

func (s *Server) saveCalendar(c echo.Context) error {
	log := s.log.With(slog.String("route", "PUT /api/calendars"))

	var req saveRequest
	if err := decodeBody(c, &req); err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	date, err := parseDate(req.Date)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_date"), slog.String("date", req.Date))
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "date must be YYYY-MM-DD"})
	}

	res, err := s.svc.Save(c.Request().Context(), organizer.SaveInput{
		Link:         req.Link,
		Blocks:       req.Blocks,
		TimezoneHint: req.TimezoneHint,
		Location:     req.Location,
		Date:         date,
	})
	if err != nil {
		return s.fail(c, log, err)
	}
	return c.JSON(http.StatusOK, saveResponse{
		ID:       res.ID.String(),
		URL:      res.URL,
		Timezone: res.Zone.Name,
		Warning:  res.Warning,
	})
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

func (s *Server) loadTasks(c echo.Context) error {
	log := s.log.With(slog.String("route", "GET /api/calendars/:id/tasks"))

	date, err := parseDate(c.QueryParam("date"))
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_date"), slog.String("date", c.QueryParam("date")))
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "date must be YYYY-MM-DD"})
	}

	tasks, err := s.svc.LoadTasks(c.Request().Context(), organizer.LoadTasksInput{
		Link:         c.Param("id"),
		Date:         date,
		TimezoneHint: c.QueryParam("tz"),
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Info("calendar not found", slog.String("calendar_id", c.Param("id")))
			return c.JSON(http.StatusNotFound, errorResponse{Error: "no calendar yet"})
		}
		return s.fail(c, log, err)
	}
	return c.JSON(http.StatusOK, tasksResponse{Tasks: tasks})
}

// fail maps service errors onto HTTP responses.
func (s *Server) fail(c echo.Context, log *slog.Logger, err error) error {
	var (
		vErr  *organizer.ValidationError
		sErr  *scheduling.SchedulingError
		stErr *store.Error
	)
	switch {
	case errors.As(err, &vErr):
		log.Warn("invalid request", slog.Any("err", err))
		return c.JSON(http.StatusBadRequest, errorResponse{Error: vErr.Error()})
	case errors.As(err, &sErr):
		log.Warn("scheduling failed", slog.String("stage", string(sErr.Stage)), slog.Any("err", err))
		return c.JSON(http.StatusBadGateway, errorResponse{
			Error:      "could not organize tasks",
			Diagnostic: sErr.Diagnostic(),
			Stage:      string(sErr.Stage),
		})
	case errors.Is(err, store.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: "calendar not found"})
	case errors.Is(err, ics.ErrMalformed):
		log.Error("stored calendar unreadable", slog.Any("err", err))
		return c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: "stored calendar could not be read"})
	case errors.As(err, &stErr):
		log.Error("calendar store failed", slog.Any("err", err), slog.Bool("retryable", stErr.Retryable()))
		return c.JSON(http.StatusServiceUnavailable, errorResponse{
			Error:     "calendar storage unavailable",
			Retryable: true,
		})
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn("request timed out", slog.Any("err", err))
		return c.JSON(http.StatusGatewayTimeout, errorResponse{Error: "request timed out"})
	default:
		log.Error("request failed", slog.Any("err", err))
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxBodyBytes)
	dec := sonic.ConfigStd.NewDecoder(lr)
	return dec.Decode(v)
}

// parseDate reads a YYYY-MM-DD day. Empty means today in the session zone.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, s)
}
