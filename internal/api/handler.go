package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/djlord-it/easybooking/internal/booking"
	"github.com/djlord-it/easybooking/internal/domain"
	"github.com/djlord-it/easybooking/internal/validation"
)

// Service is the booking facade the handler exposes over HTTP.
type Service interface {
	CreateJob(ctx context.Context, payload validation.Payload) (domain.Job, error)
	Job(ctx context.Context, id int64) (domain.Job, error)
	UpdateJob(ctx context.Context, id int64, payload validation.Payload) (domain.Job, error)
	AssignTranslator(ctx context.Context, id, translatorID int64) (domain.Job, error)
	OfferJob(ctx context.Context, id int64, translatorIDs []int64) error
	CancelJob(ctx context.Context, id, cancelledBy int64) (domain.Job, error)
	EndJob(ctx context.Context, id int64) (domain.Job, error)
	UserJobs(ctx context.Context, userID int64) (booking.UserJobs, error)
	PotentialJobs(ctx context.Context, translatorID int64) ([]domain.Job, error)
}

var _ Service = (*booking.Service)(nil)

// HealthChecker provides store health status for the /health endpoint.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// StatsReader reads windowed notification counters.
type StatsReader interface {
	Counts(ctx context.Context, kind domain.EventKind, at time.Time) (sent, failed int64, err error)
}

type Handler struct {
	svc    Service
	db     HealthChecker // optional, nil = not reported
	stats  StatsReader   // optional, nil = /stats/notifications answers 404
	logger zerolog.Logger
	router chi.Router
}

func NewHandler(svc Service) *Handler {
	h := &Handler{svc: svc, logger: zerolog.Nop()}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", h.health)
	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", h.createJob)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getJob)
			r.Patch("/", h.updateJob)
			r.Post("/assign", h.assignJob)
			r.Post("/offer", h.offerJob)
			r.Post("/cancel", h.cancelJob)
			r.Post("/end", h.endJob)
		})
	})
	r.Get("/users/{id}/jobs", h.userJobs)
	r.Get("/translators/{id}/potential-jobs", h.potentialJobs)
	r.Get("/stats/notifications", h.notificationStats)

	h.router = r
	return h
}

// WithHealthChecker sets the store health checker for verbose /health responses.
func (h *Handler) WithHealthChecker(db HealthChecker) *Handler {
	h.db = db
	return h
}

// WithStats enables /stats/notifications.
func (h *Handler) WithStats(stats StatsReader) *Handler {
	h.stats = stats
	return h
}

func (h *Handler) WithLogger(logger zerolog.Logger) *Handler {
	h.logger = logger.With().Str("component", "api").Logger()
	return h
}

// WithMetricsHandler mounts a metrics exporter at path.
func (h *Handler) WithMetricsHandler(path string, handler http.Handler) *Handler {
	h.router.Handle(path, handler)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request served")
	})
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose || h.db == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Components["store"] = "unhealthy: " + err.Error()
	} else {
		resp.Components["store"] = "healthy"
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, resp)
}

func (h *Handler) createJob(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodePayload(w, r)
	if !ok {
		return
	}

	job, err := h.svc.CreateJob(r.Context(), payload)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toJobResponse(job))
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	job, err := h.svc.Job(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (h *Handler) updateJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	payload, ok := decodePayload(w, r)
	if !ok {
		return
	}

	job, err := h.svc.UpdateJob(r.Context(), id, payload)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (h *Handler) assignJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req AssignRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	job, err := h.svc.AssignTranslator(r.Context(), id, *req.TranslatorID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (h *Handler) offerJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req OfferRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.svc.OfferJob(r.Context(), id, req.TranslatorIDs); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) cancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req CancelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	job, err := h.svc.CancelJob(r.Context(), id, *req.CancelledBy)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (h *Handler) endJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	job, err := h.svc.EndJob(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (h *Handler) userJobs(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	jobs, err := h.svc.UserJobs(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UserJobsResponse{
		ActiveJobs:    toJobResponses(jobs.Active),
		CompletedJobs: toJobResponses(jobs.Completed),
		CanceledJobs:  toJobResponses(jobs.Canceled),
	})
}

func (h *Handler) potentialJobs(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	jobs, err := h.svc.PotentialJobs(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListJobsResponse{Jobs: toJobResponses(jobs)})
}

// notificationStats reports sent and failed counts per event kind for the
// bucket containing ?at= (RFC 3339, default now).
func (h *Handler) notificationStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		writeError(w, http.StatusNotFound, "notification stats disabled")
		return
	}

	at := time.Now()
	if raw := r.URL.Query().Get("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid at, want RFC 3339")
			return
		}
		at = parsed
	}

	resp := NotificationStatsResponse{At: formatTime(at), Kinds: make(map[string]NotificationCounts, len(domain.EventKinds))}
	for _, kind := range domain.EventKinds {
		sent, failed, err := h.stats.Counts(r.Context(), kind, at)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		resp.Kinds[string(kind)] = NotificationCounts{Sent: sent, Failed: failed}
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeServiceError maps domain errors onto status codes. Anything
// unrecognised is logged and reported as a 500 without detail.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs domain.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		resp := ErrorResponse{Error: "validation failed", Fields: make(map[string]string, len(verrs))}
		for _, fe := range verrs {
			resp.Fields[fe.Field] = fe.Message
		}
		writeJSON(w, http.StatusUnprocessableEntity, resp)
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrConcurrentModification):
		writeError(w, http.StatusConflict, "job was modified concurrently, retry")
	default:
		h.logger.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
