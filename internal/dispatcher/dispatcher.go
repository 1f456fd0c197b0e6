// Package dispatcher implements the API/Dispatcher (spec §4.1): the
// single component authorized to create, cancel, and retry Jobs and to
// enqueue them on the Broker. HTTP and webhook transports are thin
// wrappers around this service.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"subsvc/internal/allowlist"
	"subsvc/internal/broker"
	apierrors "subsvc/internal/errors"
	"subsvc/internal/jobs"
	"subsvc/internal/jobstore"
)

// Identity is the caller context every dispatcher operation authorizes
// against (spec §3's capability rules).
type Identity struct {
	UserID  string
	IsAdmin bool
}

// Dispatcher is the API/Dispatcher component (C6).
type Dispatcher struct {
	store     jobstore.Store
	brk       broker.Broker
	allowList *allowlist.AllowList
	logger    *slog.Logger
}

func New(store jobstore.Store, brk broker.Broker, allowList *allowlist.AllowList, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:     store,
		brk:       brk,
		allowList: allowList,
		logger:    logger.With(slog.String("component", "dispatcher")),
	}
}

// CreateJob validates folder/language, persists a PENDING Job, and
// enqueues it on the Broker (spec §4.1 CreateJob).
func (d *Dispatcher) CreateJob(ctx context.Context, identity Identity, folder, language, logLevel string) (*jobs.Job, error) {
	if language == "" {
		return nil, apierrors.ErrValidation("language", "language is required")
	}
	if logLevel == "" {
		logLevel = "info"
	}

	resolved, err := d.allowList.Validate(folder)
	if err != nil {
		d.logger.WarnContext(ctx, "job folder rejected", slog.String("folder", folder), slog.String("error", err.Error()))
		if errors.Is(err, allowlist.ErrNotExist) {
			return nil, apierrors.ErrPathNotFound
		}
		return nil, apierrors.ErrUnauthorizedPath
	}

	job := jobs.New(uuid.New().String(), identity.UserID, resolved, language, logLevel, "", time.Now())
	if err := d.store.InsertJob(ctx, job); err != nil {
		return nil, fmt.Errorf("dispatcher: insert job: %w", err)
	}

	if err := d.enqueue(ctx, job); err != nil {
		failMsg := fmt.Sprintf("enqueue failed: %v", err)
		_ = d.store.UpdateCompletionDetails(ctx, job.ID, jobs.StatusFailed, -97, time.Now(), failMsg, "")
		d.logger.ErrorContext(ctx, "job enqueue failed, marked failed", slog.String("job_id", job.ID), slog.String("error", err.Error()))
		return d.store.Get(ctx, job.ID)
	}

	return d.store.Get(ctx, job.ID)
}

// CreateJobFromWebhook creates a Job attributed to a service account,
// bypassing the interactive-user capability checks (spec §4.1 webhook
// intake). Signature verification happens at the transport layer.
func (d *Dispatcher) CreateJobFromWebhook(ctx context.Context, serviceAccountID, folder, language, logLevel string) (*jobs.Job, error) {
	return d.CreateJob(ctx, Identity{UserID: serviceAccountID, IsAdmin: false}, folder, language, logLevel)
}

func (d *Dispatcher) enqueue(ctx context.Context, job *jobs.Job) error {
	task := broker.Task{JobID: job.ID, Folder: job.Folder, Language: job.Language, LogLevel: job.LogLevel}
	_, err := d.brk.Enqueue(ctx, task)
	return err
}

// CancelJob transitions a PENDING|RUNNING job to CANCELLING and revokes
// its Broker task (spec §4.1 CancelJob).
func (d *Dispatcher) CancelJob(ctx context.Context, identity Identity, id string) error {
	job, err := d.authorizedGet(ctx, identity, id)
	if err != nil {
		return err
	}

	if err := job.RequestCancel(); err != nil {
		return apierrors.ErrJobNotCancellable
	}

	if job.TaskHandle != "" {
		if err := d.brk.Revoke(job.TaskHandle); err != nil {
			d.logger.WarnContext(ctx, "broker revoke failed", slog.String("job_id", id), slog.String("error", err.Error()))
		}
	}
	return nil
}

// RetryJob creates a new PENDING job cloning the input fields of a
// terminal FAILED|CANCELLED job, and enqueues it (spec §4.1 RetryJob).
func (d *Dispatcher) RetryJob(ctx context.Context, identity Identity, id string) (*jobs.Job, error) {
	job, err := d.authorizedGet(ctx, identity, id)
	if err != nil {
		return nil, err
	}
	if !job.CanRetry() {
		return nil, apierrors.ErrJobNotRetriable
	}

	clone := job.Clone(uuid.New().String(), time.Now())
	if err := d.store.InsertJob(ctx, clone); err != nil {
		return nil, fmt.Errorf("dispatcher: insert retry job: %w", err)
	}
	if err := d.enqueue(ctx, clone); err != nil {
		failMsg := fmt.Sprintf("enqueue failed: %v", err)
		_ = d.store.UpdateCompletionDetails(ctx, clone.ID, jobs.StatusFailed, -97, time.Now(), failMsg, "")
		return d.store.Get(ctx, clone.ID)
	}
	return d.store.Get(ctx, clone.ID)
}

// GetJob authorizes and returns a Job by id (spec §4.1 GetJob).
func (d *Dispatcher) GetJob(ctx context.Context, identity Identity, id string) (*jobs.Job, error) {
	return d.authorizedGet(ctx, identity, id)
}

// ListJobs returns the caller's own jobs, or every job for an admin
// (spec §4.1 ListJobs / §3 capability rules).
func (d *Dispatcher) ListJobs(ctx context.Context, identity Identity, offset, limit int) ([]*jobs.Job, error) {
	if identity.IsAdmin {
		return d.store.ListAll(ctx, offset, limit)
	}
	return d.store.ListForOwner(ctx, identity.UserID, offset, limit)
}

func (d *Dispatcher) authorizedGet(ctx context.Context, identity Identity, id string) (*jobs.Job, error) {
	job, err := d.store.Get(ctx, id)
	if err != nil {
		return nil, apierrors.ErrJobNotFound
	}
	if !identity.IsAdmin && job.OwnerID != identity.UserID {
		return nil, apierrors.ErrForbidden
	}
	return job, nil
}
