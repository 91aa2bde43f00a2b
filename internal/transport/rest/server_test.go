package rest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"dayplan/backend/internal/domain"
	"dayplan/backend/internal/ics"
	"dayplan/backend/internal/scheduling"
	"dayplan/backend/internal/service/organizer"
	"dayplan/backend/internal/store"
	"dayplan/backend/internal/store/memory"
	"dayplan/backend/internal/timezone"
)

type fakeService struct {
	organizeFn    func(ctx context.Context, in organizer.OrganizeInput) (organizer.OrganizeResult, error)
	resolveZoneFn func(ctx context.Context, hint, location string) (timezone.Result, error)
	saveFn        func(ctx context.Context, in organizer.SaveInput) (organizer.SaveResult, error)
	documentFn    func(ctx context.Context, link string) ([]byte, error)
	loadTasksFn   func(ctx context.Context, in organizer.LoadTasksInput) ([]domain.Task, error)
}

func (f *fakeService) Organize(ctx context.Context, in organizer.OrganizeInput) (organizer.OrganizeResult, error) {
	if f.organizeFn == nil {
		panic("Organize not configured")
	}
	return f.organizeFn(ctx, in)
}

func (f *fakeService) ResolveZone(ctx context.Context, hint, location string) (timezone.Result, error) {
	if f.resolveZoneFn == nil {
		panic("ResolveZone not configured")
	}
	return f.resolveZoneFn(ctx, hint, location)
}

func (f *fakeService) Save(ctx context.Context, in organizer.SaveInput) (organizer.SaveResult, error) {
	if f.saveFn == nil {
		panic("Save not configured")
	}
	return f.saveFn(ctx, in)
}

func (f *fakeService) Document(ctx context.Context, link string) ([]byte, error) {
	if f.documentFn == nil {
		panic("Document not configured")
	}
	return f.documentFn(ctx, link)
}

func (f *fakeService) LoadTasks(ctx context.Context, in organizer.LoadTasksInput) ([]domain.Task, error) {
	if f.loadTasksFn == nil {
		panic("LoadTasks not configured")
	}
	return f.loadTasksFn(ctx, in)
}

func serve(t *testing.T, svc organizerService, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := New(NewServer(svc, nil, nil), Options{})
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestGetCalendar_ServesDocumentBytes(t *testing.T) {
	doc := "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nEND:VCALENDAR\r\n"
	var gotLink string
	rec := serve(t, &fakeService{documentFn: func(ctx context.Context, link string) ([]byte, error) {
		gotLink = link
		return []byte(doc), nil
	}}, http.MethodGet, "/calendars/abc123.ics", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get(echo.HeaderContentType); got != calendarContentType {
		t.Fatalf("content type = %q, want %q", got, calendarContentType)
	}
	if rec.Body.String() != doc {
		t.Fatalf("body = %q, want %q", rec.Body.String(), doc)
	}
	if gotLink != "abc123.ics" {
		t.Fatalf("link = %q, want %q", gotLink, "abc123.ics")
	}
}

func TestGetCalendar_NotFoundIsPlainText(t *testing.T) {
	for _, err := range []error{store.ErrNotFound, &organizer.ValidationError{}} {
		rec := serve(t, &fakeService{documentFn: func(ctx context.Context, link string) ([]byte, error) {
			return nil, err
		}}, http.MethodGet, "/calendars/missing", "")

		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
		if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, echo.MIMETextPlain) {
			t.Fatalf("content type = %q, want text/plain", ct)
		}
		if rec.Body.String() != "calendar not found" {
			t.Fatalf("body = %q", rec.Body.String())
		}
	}
}

func TestGetCalendar_StoreUnavailable(t *testing.T) {
	rec := serve(t, &fakeService{documentFn: func(ctx context.Context, link string) ([]byte, error) {
		return nil, store.Wrap("load", errors.New("conn reset"), true)
	}}, http.MethodGet, "/calendars/abc", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestOrganize_ReturnsBlocks(t *testing.T) {
	var got organizer.OrganizeInput
	rec := serve(t, &fakeService{organizeFn: func(ctx context.Context, in organizer.OrganizeInput) (organizer.OrganizeResult, error) {
		got = in
		return organizer.OrganizeResult{
			Blocks: []domain.ScheduleBlock{{Kind: domain.BlockKindTask, Label: "Gym", Start: "07:00", DurationMinutes: 60}},
			Seq:    4,
		}, nil
	}}, http.MethodPost, "/api/organize", `{"session_id":"s1","request_seq":4,"tasks":[{"name":"Gym","est_start":"7am"}]}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got.SessionID != "s1" || got.Seq != 4 || len(got.Tasks) != 1 || got.Tasks[0].EstimatedStart != "7am" {
		t.Fatalf("unexpected input: %#v", got)
	}

	var resp organizeResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(resp.Blocks) != 1 || resp.Blocks[0].Start != "07:00" || resp.Blocks[0].DurationMinutes != 60 {
		t.Fatalf("unexpected blocks: %#v", resp.Blocks)
	}
	if resp.Stale || resp.RequestSeq != 4 {
		t.Fatalf("unexpected gate fields: %#v", resp)
	}
}

func TestOrganize_SchedulingErrorCarriesDiagnostic(t *testing.T) {
	rec := serve(t, &fakeService{organizeFn: func(ctx context.Context, in organizer.OrganizeInput) (organizer.OrganizeResult, error) {
		return organizer.OrganizeResult{}, &scheduling.SchedulingError{Stage: scheduling.StageExtractArray, Raw: "Sorry, I cannot help.", Err: errors.New("no array")}
	}}, http.MethodPost, "/api/organize", `{"tasks":[]}`)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	var resp errorResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Diagnostic != "Sorry, I cannot help." || resp.Stage != string(scheduling.StageExtractArray) {
		t.Fatalf("unexpected error body: %#v", resp)
	}
}

func TestOrganize_InvalidBody(t *testing.T) {
	rec := serve(t, &fakeService{}, http.MethodPost, "/api/organize", `{"tasks":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestResolveZone(t *testing.T) {
	rec := serve(t, &fakeService{resolveZoneFn: func(ctx context.Context, hint, location string) (timezone.Result, error) {
		if hint != "UTC+3" || location != "Istanbul" {
			t.Fatalf("unexpected args: %q %q", hint, location)
		}
		return timezone.Result{Zone: timezone.Fixed(3 * 3600), Warning: "fixed offset"}, nil
	}}, http.MethodPost, "/api/timezone", `{"hint":"UTC+3","location":"Istanbul"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp zoneResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Zone != "UTC+03:00" || !resp.Fixed || resp.Warning == "" {
		t.Fatalf("unexpected response: %#v", resp)
	}
}

func TestSaveCalendar_ParsesDateAndMapsErrors(t *testing.T) {
	var got organizer.SaveInput
	rec := serve(t, &fakeService{saveFn: func(ctx context.Context, in organizer.SaveInput) (organizer.SaveResult, error) {
		got = in
		return organizer.SaveResult{ID: "abc", URL: "http://x/calendars/abc", Zone: timezone.UTC()}, nil
	}}, http.MethodPut, "/api/calendars", `{"blocks":[{"type":"task","name":"A","start_time":"09:00","duration":30}],"timezone_hint":"UTC","date":"2026-07-15"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !got.Date.Equal(time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)) || len(got.Blocks) != 1 {
		t.Fatalf("unexpected input: %#v", got)
	}

	rec = serve(t, &fakeService{}, http.MethodPut, "/api/calendars", `{"date":"15/07/2026"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad date status = %d, want 400", rec.Code)
	}

	tests := []struct {
		err  error
		want int
	}{
		{err: &organizer.ValidationError{}, want: http.StatusBadRequest},
		{err: store.Wrap("save", errors.New("down"), false), want: http.StatusServiceUnavailable},
		{err: context.DeadlineExceeded, want: http.StatusGatewayTimeout},
		{err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := serve(t, &fakeService{saveFn: func(ctx context.Context, in organizer.SaveInput) (organizer.SaveResult, error) {
			return organizer.SaveResult{}, tt.err
		}}, http.MethodPut, "/api/calendars", `{"blocks":[]}`)
		if rec.Code != tt.want {
			t.Fatalf("err %v: status = %d, want %d", tt.err, rec.Code, tt.want)
		}
	}
}

func TestLoadTasks_NotFoundIsDistinctFromEmptyDay(t *testing.T) {
	rec := serve(t, &fakeService{loadTasksFn: func(ctx context.Context, in organizer.LoadTasksInput) ([]domain.Task, error) {
		return nil, store.ErrNotFound
	}}, http.MethodGet, "/api/calendars/abc/tasks?date=2026-07-15", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "no calendar yet") {
		t.Fatalf("body = %s", rec.Body.String())
	}

	rec = serve(t, &fakeService{loadTasksFn: func(ctx context.Context, in organizer.LoadTasksInput) ([]domain.Task, error) {
		return []domain.Task{{}}, nil
	}}, http.MethodGet, "/api/calendars/abc/tasks?date=2026-07-16", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	rec = serve(t, &fakeService{loadTasksFn: func(ctx context.Context, in organizer.LoadTasksInput) ([]domain.Task, error) {
		return nil, ics.ErrMalformed
	}}, http.MethodGet, "/api/calendars/abc/tasks", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("malformed status = %d, want 422", rec.Code)
	}
}

func TestRequestTimeoutIsApplied(t *testing.T) {
	var hadDeadline bool
	e := New(NewServer(&fakeService{documentFn: func(ctx context.Context, link string) ([]byte, error) {
		_, hadDeadline = ctx.Deadline()
		return []byte("x"), nil
	}}, nil, nil), Options{RequestTimeout: time.Second})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/calendars/abc", nil))
	if !hadDeadline {
		t.Fatalf("handler context has no deadline")
	}
}

func TestHealthz(t *testing.T) {
	e := New(NewServer(&fakeService{}, nil, func(ctx context.Context) error { return errors.New("db down") }), Options{})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	rec = serve(t, &fakeService{}, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestEndToEnd_SaveThenFetchPastedLink(t *testing.T) {
	svc := organizer.NewService(nil, timezone.NewResolver(nil, nil), memory.New(), nil,
		organizer.Config{PublicBaseURL: "https://plan.example.com"})

	rec := serve(t, svc, http.MethodPut, "/api/calendars",
		`{"blocks":[{"type":"task","name":"Write report","start_time":"09:00","duration":90},{"type":"rest","name":"Walk","start_time":"10:30","duration":15}],"timezone_hint":"Europe/Bucharest","date":"2026-07-15"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("save status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var saved saveResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &saved); err != nil {
		t.Fatalf("invalid json: %v", err)
	}

	doc := serve(t, svc, http.MethodGet, "/calendars/"+saved.ID, "")
	if doc.Code != http.StatusOK || !strings.Contains(doc.Body.String(), "DTSTART;TZID=Europe/Bucharest:20260715T090000") {
		t.Fatalf("document status = %d, body = %s", doc.Code, doc.Body.String())
	}

	rec = serve(t, svc, http.MethodGet, "/api/calendars/"+saved.ID+"/tasks?date=2026-07-15&tz=Europe/Bucharest", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("tasks status = %d", rec.Code)
	}
	var tasks tasksResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &tasks); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(tasks.Tasks) != 1 || tasks.Tasks[0].Name != "Write report" || tasks.Tasks[0].EstimatedStart != "09:00" {
		t.Fatalf("unexpected tasks: %#v", tasks.Tasks)
	}

	missing := serve(t, svc, http.MethodGet, "/calendars/0123456789abcdef0123456789abcdef", "")
	if missing.Code != http.StatusNotFound || missing.Body.String() != "calendar not found" {
		t.Fatalf("missing status = %d, body = %q", missing.Code, missing.Body.String())
	}
}

func TestEndToEnd_SaveRejectsNonPositiveDuration(t *testing.T) {
	repo := memory.New()
	svc := organizer.NewService(nil, timezone.NewResolver(nil, nil), repo, nil, organizer.Config{})

	for _, minutes := range []string{"-30", "0", "100000"} {
		rec := serve(t, svc, http.MethodPut, "/api/calendars",
			`{"blocks":[{"type":"task","name":"A","start_time":"09:00","duration":`+minutes+`}],"timezone_hint":"UTC","date":"2025-06-02"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("duration %s: status = %d, body = %s", minutes, rec.Code, rec.Body.String())
		}
	}
	if repo.Len() != 0 {
		t.Fatalf("stored %d calendars, want 0", repo.Len())
	}
}
