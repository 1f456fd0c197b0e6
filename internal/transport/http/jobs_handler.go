package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"subsvc/internal/dispatcher"
	apierrors "subsvc/internal/errors"
	"subsvc/internal/infrastructure"
	"subsvc/internal/jobs"
	"subsvc/internal/middleware"
)

// validate runs the `validate:"..."` struct tags on CreateJobRequest and
// WebhookRequest; a single *validator.Validate is safe for concurrent use
// and is cached by the library internally, so one package-level instance
// is the idiomatic choice.
var validate = validator.New()

// DispatcherIdentity is an alias for dispatcher.Identity, named for
// readability at the transport layer.
type DispatcherIdentity = dispatcher.Identity

// JobDispatcher is the service-layer contract the handler delegates to —
// the API/Dispatcher (spec §4.1).
type JobDispatcher interface {
	CreateJob(ctx context.Context, identity DispatcherIdentity, folder, language, logLevel string) (*jobs.Job, error)
	CreateJobFromWebhook(ctx context.Context, serviceAccountID, folder, language, logLevel string) (*jobs.Job, error)
	CancelJob(ctx context.Context, identity DispatcherIdentity, id string) error
	RetryJob(ctx context.Context, identity DispatcherIdentity, id string) (*jobs.Job, error)
	GetJob(ctx context.Context, identity DispatcherIdentity, id string) (*jobs.Job, error)
	ListJobs(ctx context.Context, identity DispatcherIdentity, offset, limit int) ([]*jobs.Job, error)
}

// JobsHandler handles the job CRUD + webhook HTTP surface (spec §6.1).
type JobsHandler struct {
	service        JobDispatcher
	webhookSecret  string
	authMiddleware func(http.Handler) http.Handler
	logger         *slog.Logger
	metrics        *infrastructure.BusinessMetrics
}

func NewJobsHandler(service JobDispatcher, webhookSecret string, logger *slog.Logger) *JobsHandler {
	if service == nil {
		panic("service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JobsHandler{
		service:       service,
		webhookSecret: webhookSecret,
		logger:        logger.With(slog.String("handler", "jobs")),
	}
}

func (h *JobsHandler) SetMetrics(metrics *infrastructure.BusinessMetrics) {
	h.metrics = metrics
}

// SetAuthMiddleware installs the bearer-auth middleware applied to every
// route except the webhook intake, which authenticates by shared secret
// instead (spec §6.1's per-route Auth column).
func (h *JobsHandler) SetAuthMiddleware(mw func(http.Handler) http.Handler) {
	h.authMiddleware = mw
}

// Routes returns a chi router for the /jobs surface. The webhook route is
// deliberately outside the bearer-auth group: it authenticates callers by
// constant-time shared-secret compare instead (spec §4.1 webhook intake).
func (h *JobsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Timeout(30*time.Second, h.logger))

	r.Post("/webhook", h.CreateJobFromWebhook)

	r.Group(func(r chi.Router) {
		if h.authMiddleware != nil {
			r.Use(h.authMiddleware)
		}
		r.Post("/", h.CreateJob)
		r.Get("/", h.ListJobs)
		r.Get("/{id}", h.GetJob)
		r.Post("/{id}/cancel", h.CancelJob)
		r.Post("/{id}/retry", h.RetryJob)
	})

	return r
}

// CreateJobRequest is the body of POST /jobs.
type CreateJobRequest struct {
	Folder   string `json:"folder" validate:"required"`
	Language string `json:"language" validate:"required"`
	LogLevel string `json:"log_level,omitempty"`
}

func (r *CreateJobRequest) Bind(req *http.Request) error {
	return validate.Struct(r)
}

func identityFromContext(ctx context.Context) dispatcher.Identity {
	user, ok := ctx.Value("user").(*middleware.UserInfo)
	if !ok || user == nil {
		return dispatcher.Identity{}
	}
	isAdmin := false
	for _, role := range user.Roles {
		if role == "admin" {
			isAdmin = true
			break
		}
	}
	return dispatcher.Identity{UserID: user.ID, IsAdmin: isAdmin}
}

// CreateJob handles POST /jobs (spec §4.1 CreateJob).
func (h *JobsHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)
	tracer := otel.Tracer("jobs-handler")
	ctx, span := tracer.Start(ctx, "jobs_handler.create_job",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/jobs"),
			attribute.String("request_id", reqID),
		),
	)
	defer span.End()

	data := &CreateJobRequest{}
	if err := render.Bind(r, data); err != nil {
		span.RecordError(err)
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	identity := identityFromContext(ctx)
	start := time.Now()
	job, err := h.service.CreateJob(ctx, identity, data.Folder, data.Language, data.LogLevel)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create job failed")
		h.logger.ErrorContext(ctx, "create job failed", slog.String("error", err.Error()), slog.String("request_id", reqID))
		h.renderServiceError(w, r, err)
		return
	}

	if h.metrics != nil {
		infrastructure.RecordJobMetrics(ctx, h.metrics, job.ID, time.Since(start), job.Status != jobs.StatusFailed, nil)
	}

	span.SetAttributes(attribute.String("job.id", job.ID), attribute.String("job.status", string(job.Status)))
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]interface{}{
		"job_id":   job.ID,
		"status":   job.Status,
		"poll_url": "/jobs/" + job.ID,
	})
}

// WebhookRequest is the body of POST /jobs/webhook.
type WebhookRequest struct {
	ServiceAccountID string `json:"service_account_id" validate:"required"`
	Folder           string `json:"folder" validate:"required"`
	Language         string `json:"language" validate:"required"`
	LogLevel         string `json:"log_level,omitempty"`
}

func (r *WebhookRequest) Bind(req *http.Request) error {
	return validate.Struct(r)
}

// CreateJobFromWebhook handles POST /jobs/webhook (spec §4.1 webhook
// intake): shared secret compared in constant time, no user session.
func (h *JobsHandler) CreateJobFromWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	provided := r.Header.Get("X-Webhook-Secret")
	if h.webhookSecret == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(h.webhookSecret)) != 1 {
		h.logger.WarnContext(ctx, "webhook rejected: secret mismatch", slog.String("request_id", reqID))
		render.Render(w, r, apierrors.ErrUnauthorized)
		return
	}

	data := &WebhookRequest{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	job, err := h.service.CreateJobFromWebhook(ctx, data.ServiceAccountID, data.Folder, data.Language, data.LogLevel)
	if err != nil {
		h.logger.ErrorContext(ctx, "webhook create job failed", slog.String("error", err.Error()), slog.String("request_id", reqID))
		h.renderServiceError(w, r, err)
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]interface{}{"job_id": job.ID, "status": job.Status})
}

// GetJob handles GET /jobs/{id} (spec §4.1 GetJob).
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	identity := identityFromContext(ctx)

	job, err := h.service.GetJob(ctx, identity, id)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	render.JSON(w, r, job.Snapshot())
}

// ListJobs handles GET /jobs (spec §4.1 ListJobs).
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := identityFromContext(ctx)

	offset, limit := 0, 50
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}

	jobList, err := h.service.ListJobs(ctx, identity, offset, limit)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}

	snapshots := make([]jobs.Job, len(jobList))
	for i, j := range jobList {
		snapshots[i] = j.Snapshot()
	}
	render.JSON(w, r, map[string]interface{}{"jobs": snapshots, "count": len(snapshots)})
}

// CancelJob handles POST /jobs/{id}/cancel (spec §4.1 CancelJob).
func (h *JobsHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	identity := identityFromContext(ctx)

	if err := h.service.CancelJob(ctx, identity, id); err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]string{"message": "job cancellation requested"})
}

// RetryJob handles POST /jobs/{id}/retry (spec §4.1 RetryJob).
func (h *JobsHandler) RetryJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	identity := identityFromContext(ctx)

	job, err := h.service.RetryJob(ctx, identity, id)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]interface{}{"job_id": job.ID, "status": job.Status, "retry_of": job.RetryOf})
}

// renderServiceError maps dispatcher errors (already *errors.APIError
// sentinels per spec §7) to their HTTP representation.
func (h *JobsHandler) renderServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *apierrors.APIError
	if errors.As(err, &apiErr) {
		render.Render(w, r, apiErr)
		return
	}
	render.Render(w, r, apierrors.ErrInternalServer)
}
