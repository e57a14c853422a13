package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/djlord-it/easybooking/internal/booking"
	"github.com/djlord-it/easybooking/internal/domain"
	"github.com/djlord-it/easybooking/internal/store/memory"
	"github.com/djlord-it/easybooking/internal/validation"
)

var fixedNow = time.Date(2026, 10, 16, 14, 30, 0, 0, time.UTC)

// mockService implements Service for error mapping tests. Unset functions
// return domain.ErrNotFound.
type mockService struct {
	mu sync.Mutex

	jobFn    func(ctx context.Context, id int64) (domain.Job, error)
	createFn func(ctx context.Context, payload validation.Payload) (domain.Job, error)
	offerFn  func(ctx context.Context, id int64, translatorIDs []int64) error
}

func (s *mockService) CreateJob(ctx context.Context, payload validation.Payload) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createFn != nil {
		return s.createFn(ctx, payload)
	}
	return domain.Job{}, domain.ErrNotFound
}

func (s *mockService) Job(ctx context.Context, id int64) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobFn != nil {
		return s.jobFn(ctx, id)
	}
	return domain.Job{}, domain.ErrNotFound
}

func (s *mockService) UpdateJob(ctx context.Context, id int64, payload validation.Payload) (domain.Job, error) {
	return domain.Job{}, domain.ErrNotFound
}

func (s *mockService) AssignTranslator(ctx context.Context, id, translatorID int64) (domain.Job, error) {
	return domain.Job{}, domain.ErrNotFound
}

func (s *mockService) OfferJob(ctx context.Context, id int64, translatorIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offerFn != nil {
		return s.offerFn(ctx, id, translatorIDs)
	}
	return domain.ErrNotFound
}

func (s *mockService) CancelJob(ctx context.Context, id, cancelledBy int64) (domain.Job, error) {
	return domain.Job{}, domain.ErrNotFound
}

func (s *mockService) EndJob(ctx context.Context, id int64) (domain.Job, error) {
	return domain.Job{}, domain.ErrNotFound
}

func (s *mockService) UserJobs(ctx context.Context, userID int64) (booking.UserJobs, error) {
	return booking.UserJobs{}, nil
}

func (s *mockService) PotentialJobs(ctx context.Context, translatorID int64) ([]domain.Job, error) {
	return nil, domain.ErrNotFound
}

// mockHealthChecker implements HealthChecker for handler tests.
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) Ping(ctx context.Context) error {
	return m.err
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()

	dir := memory.NewDirectory()
	dir.AddUser(domain.User{ID: 42, Name: "Rita", Email: "rita@example.com"})
	dir.AddUser(domain.User{ID: 9, Name: "Tess", Email: "tess@example.com", LanguageIDs: []int64{7}})
	dir.AddLanguage(7, "German")

	svc := booking.New(memory.New(), dir, nil).
		WithClock(func() time.Time { return fixedNow })
	return NewHandler(svc)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to unmarshal %q: %v", w.Body.String(), err)
	}
	return v
}

const validCreateBody = `{"user_id": 42, "due_date": "2026-10-20", "language_id": 7, "duration": 90}`

func createJob(t *testing.T, h http.Handler) JobResponse {
	t.Helper()
	w := do(t, h, http.MethodPost, "/jobs", validCreateBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	return decode[JobResponse](t, w)
}

// --- Health ---

func TestHandler_Health(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		checker    HealthChecker
		wantCode   int
		wantStatus string
		wantStore  string
	}{
		{"simple", "/health", &mockHealthChecker{}, http.StatusOK, "ok", ""},
		{"verbose without checker", "/health?verbose=true", nil, http.StatusOK, "ok", ""},
		{"verbose healthy", "/health?verbose=true", &mockHealthChecker{}, http.StatusOK, "ok", "healthy"},
		{"verbose degraded", "/health?verbose=true", &mockHealthChecker{err: errors.New("connection refused")}, http.StatusServiceUnavailable, "degraded", "unhealthy: connection refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(&mockService{})
			if tt.checker != nil {
				h.WithHealthChecker(tt.checker)
			}

			w := do(t, h, http.MethodGet, tt.path, "")
			if w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, w.Code)
			}
			resp := decode[HealthResponse](t, w)
			if resp.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", resp.Status, tt.wantStatus)
			}
			if resp.Components["store"] != tt.wantStore {
				t.Errorf("store = %q, want %q", resp.Components["store"], tt.wantStore)
			}
		})
	}
}

// --- CreateJob ---

func TestHandler_CreateJob_Success(t *testing.T) {
	h := newTestHandler(t)

	resp := createJob(t, h)

	if resp.ID != 1 {
		t.Errorf("ID = %d, want 1", resp.ID)
	}
	if resp.UserID != 42 {
		t.Errorf("UserID = %d, want 42", resp.UserID)
	}
	if resp.Status != "pending" {
		t.Errorf("Status = %q, want pending", resp.Status)
	}
	if resp.TranslatorID != nil {
		t.Errorf("TranslatorID = %v, want nil", *resp.TranslatorID)
	}
	if resp.DueAt != "2026-10-20T00:00:00Z" {
		t.Errorf("DueAt = %q", resp.DueAt)
	}
	if resp.CreatedAt != "2026-10-16T14:30:00Z" {
		t.Errorf("CreatedAt = %q", resp.CreatedAt)
	}
}

func TestHandler_CreateJob_ValidationError(t *testing.T) {
	h := newTestHandler(t)

	w := do(t, h, http.MethodPost, "/jobs", `{"user_id": 1000, "due_date": "2026-10-16", "language_id": 7}`)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[ErrorResponse](t, w)
	want := map[string]string{
		"user_id":  "must reference an existing user",
		"due_date": "must be a date after today",
		"duration": "is required",
	}
	if len(resp.Fields) != len(want) {
		t.Fatalf("Fields = %v, want %v", resp.Fields, want)
	}
	for field, msg := range want {
		if resp.Fields[field] != msg {
			t.Errorf("Fields[%s] = %q, want %q", field, resp.Fields[field], msg)
		}
	}
}

func TestHandler_CreateJob_OversizedDuration(t *testing.T) {
	h := newTestHandler(t)

	w := do(t, h, http.MethodPost, "/jobs", `{"user_id": 42, "due_date": "2026-10-20", "language_id": 7, "duration": 9999999999}`)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[ErrorResponse](t, w)
	if resp.Fields["duration"] != "must be at most 2147483647" {
		t.Errorf("Fields = %v", resp.Fields)
	}
}

func TestHandler_CreateJob_EmptyBody(t *testing.T) {
	h := newTestHandler(t)

	w := do(t, h, http.MethodPost, "/jobs", "")

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", w.Code)
	}
}

func TestHandler_CreateJob_InvalidJSON(t *testing.T) {
	h := newTestHandler(t)

	w := do(t, h, http.MethodPost, "/jobs", "{invalid")

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandler_CreateJob_BodyTooLarge(t *testing.T) {
	h := newTestHandler(t)

	largeBody := `{"pad": "` + strings.Repeat("a", 1<<20) + `"}`
	w := do(t, h, http.MethodPost, "/jobs", largeBody)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", w.Code)
	}
}

func TestHandler_CreateJob_StoreError(t *testing.T) {
	svc := &mockService{
		createFn: func(ctx context.Context, payload validation.Payload) (domain.Job, error) {
			return domain.Job{}, errors.New("database error")
		},
	}
	h := NewHandler(svc)

	w := do(t, h, http.MethodPost, "/jobs", validCreateBody)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	resp := decode[ErrorResponse](t, w)
	if strings.Contains(resp.Error, "database") {
		t.Errorf("internal error detail leaked: %q", resp.Error)
	}
}

// --- Lifecycle over HTTP ---

func TestHandler_AssignThenEnd(t *testing.T) {
	h := newTestHandler(t)
	job := createJob(t, h)

	w := do(t, h, http.MethodPost, "/jobs/1/assign", `{"translator_id": 9}`)
	if w.Code != http.StatusOK {
		t.Fatalf("assign: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	assigned := decode[JobResponse](t, w)
	if assigned.Status != "assigned" || assigned.TranslatorID == nil || *assigned.TranslatorID != 9 {
		t.Errorf("assigned = %+v", assigned)
	}
	if assigned.Version <= job.Version {
		t.Errorf("Version = %d, want > %d", assigned.Version, job.Version)
	}

	w = do(t, h, http.MethodPost, "/jobs/1/end", "")
	if w.Code != http.StatusOK {
		t.Fatalf("end: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	ended := decode[JobResponse](t, w)
	if ended.Status != "completed" {
		t.Errorf("Status = %q, want completed", ended.Status)
	}
	if ended.CompletedAt == nil || *ended.CompletedAt != "2026-10-16T14:30:00Z" {
		t.Errorf("CompletedAt = %v", ended.CompletedAt)
	}
}

func TestHandler_InvalidTransitionIsConflict(t *testing.T) {
	h := newTestHandler(t)
	createJob(t, h)

	w := do(t, h, http.MethodPost, "/jobs/1/end", "")

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	resp := decode[ErrorResponse](t, w)
	if !strings.Contains(resp.Error, "pending") {
		t.Errorf("error should name the current status: %q", resp.Error)
	}
}

func TestHandler_ConcurrentModificationIsConflict(t *testing.T) {
	svc := &mockService{
		jobFn: func(ctx context.Context, id int64) (domain.Job, error) {
			return domain.Job{}, domain.ErrConcurrentModification
		},
	}
	h := NewHandler(svc)

	w := do(t, h, http.MethodGet, "/jobs/1", "")

	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
}

func TestHandler_CancelKeepsTranslator(t *testing.T) {
	h := newTestHandler(t)
	createJob(t, h)
	do(t, h, http.MethodPost, "/jobs/1/assign", `{"translator_id": 9}`)

	w := do(t, h, http.MethodPost, "/jobs/1/cancel", `{"cancelled_by": 42}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[JobResponse](t, w)
	if resp.Status != "canceled" {
		t.Errorf("Status = %q, want canceled", resp.Status)
	}
	if resp.CancelledBy == nil || *resp.CancelledBy != 42 {
		t.Errorf("CancelledBy = %v, want 42", resp.CancelledBy)
	}
	if resp.TranslatorID == nil || *resp.TranslatorID != 9 {
		t.Errorf("TranslatorID = %v, want 9", resp.TranslatorID)
	}
}

func TestHandler_MissingBodyFields(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		wantField string
	}{
		{"assign", "/jobs/1/assign", "translator_id"},
		{"cancel", "/jobs/1/cancel", "cancelled_by"},
		{"offer", "/jobs/1/offer", "translator_ids"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t)
			createJob(t, h)

			w := do(t, h, http.MethodPost, tt.path, `{}`)
			if w.Code != http.StatusUnprocessableEntity {
				t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
			}
			resp := decode[ErrorResponse](t, w)
			if _, ok := resp.Fields[tt.wantField]; !ok {
				t.Errorf("Fields = %v, want %s", resp.Fields, tt.wantField)
			}
		})
	}
}

func TestHandler_UpdateJob(t *testing.T) {
	h := newTestHandler(t)
	createJob(t, h)

	w := do(t, h, http.MethodPatch, "/jobs/1", `{"duration": 30}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if resp := decode[JobResponse](t, w); resp.Duration != 30 || resp.Status != "pending" {
		t.Errorf("resp = %+v", resp)
	}

	w = do(t, h, http.MethodPatch, "/jobs/1", `{"status": "finished"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad status: expected 422, got %d", w.Code)
	}
}

func TestHandler_OfferJob(t *testing.T) {
	h := newTestHandler(t)
	createJob(t, h)

	w := do(t, h, http.MethodPost, "/jobs/1/offer", `{"translator_ids": [9]}`)

	if w.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandler_UnknownJob(t *testing.T) {
	tests := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodGet, "/jobs/99", ""},
		{http.MethodPatch, "/jobs/99", `{"duration": 5}`},
		{http.MethodPost, "/jobs/99/assign", `{"translator_id": 9}`},
		{http.MethodPost, "/jobs/99/cancel", `{"cancelled_by": 42}`},
		{http.MethodPost, "/jobs/99/end", ""},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			h := newTestHandler(t)
			w := do(t, h, tt.method, tt.path, tt.body)
			if w.Code != http.StatusNotFound {
				t.Errorf("expected 404, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

// --- Listings ---

func TestHandler_UserJobs(t *testing.T) {
	h := newTestHandler(t)
	createJob(t, h)
	createJob(t, h)
	do(t, h, http.MethodPost, "/jobs/2/cancel", `{"cancelled_by": 42}`)

	w := do(t, h, http.MethodGet, "/users/42/jobs", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := decode[UserJobsResponse](t, w)
	if len(resp.ActiveJobs) != 1 || resp.ActiveJobs[0].ID != 1 {
		t.Errorf("ActiveJobs = %+v", resp.ActiveJobs)
	}
	if resp.CompletedJobs == nil || len(resp.CompletedJobs) != 0 {
		t.Errorf("CompletedJobs should be an empty array, got %v", resp.CompletedJobs)
	}
	if len(resp.CanceledJobs) != 1 || resp.CanceledJobs[0].ID != 2 {
		t.Errorf("CanceledJobs = %+v", resp.CanceledJobs)
	}
}

func TestHandler_PotentialJobs(t *testing.T) {
	h := newTestHandler(t)
	createJob(t, h)

	w := do(t, h, http.MethodGet, "/translators/9/potential-jobs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp := decode[ListJobsResponse](t, w); len(resp.Jobs) != 1 {
		t.Errorf("expected 1 job, got %d", len(resp.Jobs))
	}

	w = do(t, h, http.MethodGet, "/translators/404/potential-jobs", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown translator: expected 404, got %d", w.Code)
	}
}

// --- Routing ---

func TestHandler_Routing(t *testing.T) {
	tests := []struct {
		method   string
		path     string
		wantCode int
	}{
		{http.MethodGet, "/nope", http.StatusNotFound},
		{http.MethodDelete, "/jobs/1", http.StatusMethodNotAllowed},
		{http.MethodGet, "/jobs/abc", http.StatusBadRequest},
		{http.MethodGet, "/jobs/0", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			h := newTestHandler(t)
			w := do(t, h, tt.method, tt.path, "")
			if w.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, w.Code)
			}
		})
	}
}

func TestHandler_MetricsHandlerMounted(t *testing.T) {
	h := newTestHandler(t).WithMetricsHandler("/metrics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok_metric 1\n"))
	}))

	w := do(t, h, http.MethodGet, "/metrics", "")

	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "ok_metric") {
		t.Errorf("metrics not served: %d %q", w.Code, w.Body.String())
	}
}

type mockStats struct {
	counts map[domain.EventKind][2]int64
	err    error
	at     time.Time
}

func (m *mockStats) Counts(ctx context.Context, kind domain.EventKind, at time.Time) (int64, int64, error) {
	m.at = at
	if m.err != nil {
		return 0, 0, m.err
	}
	c := m.counts[kind]
	return c[0], c[1], nil
}

func TestHandler_NotificationStats(t *testing.T) {
	stats := &mockStats{counts: map[domain.EventKind][2]int64{
		domain.EventKindCreated:           {4, 1},
		domain.EventKindAssignmentOffered: {3, 0},
	}}
	h := newTestHandler(t).WithStats(stats)

	w := do(t, h, http.MethodGet, "/stats/notifications?at=2026-10-16T14:05:00Z", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if want := time.Date(2026, 10, 16, 14, 5, 0, 0, time.UTC); !stats.at.Equal(want) {
		t.Errorf("queried at %v, want %v", stats.at, want)
	}

	var resp NotificationStatsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Kinds) != len(domain.EventKinds) {
		t.Errorf("kinds = %v, want all %d", resp.Kinds, len(domain.EventKinds))
	}
	if got := resp.Kinds["created"]; got.Sent != 4 || got.Failed != 1 {
		t.Errorf("created = %+v", got)
	}
	if got := resp.Kinds["status_changed"]; got.Sent != 0 || got.Failed != 0 {
		t.Errorf("status_changed = %+v", got)
	}
}

func TestHandler_NotificationStats_Errors(t *testing.T) {
	tests := []struct {
		name  string
		stats StatsReader
		query string
		want  int
	}{
		{"disabled", nil, "", http.StatusNotFound},
		{"bad at", &mockStats{}, "?at=yesterday", http.StatusBadRequest},
		{"redis down", &mockStats{err: errors.New("connection refused")}, "", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t)
			if tt.stats != nil {
				h = h.WithStats(tt.stats)
			}
			w := do(t, h, http.MethodGet, "/stats/notifications"+tt.query, "")
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}
