// Package jobstore provides the Job Store (spec §4.6): relational
// key-value semantics for the Job row, with the atomic guarded transitions
// the Supervisor relies on for idempotent finalize.
package jobstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"subsvc/internal/jobs"
)

// Filter groups owner, status and paging criteria. ListForOwner and
// ListAll take their criteria as plain arguments and do not accept a Filter.
type Filter struct {
	OwnerID string
	Status  jobs.Status
	Offset  int
	Limit   int
}

// Store is the Job Store contract. Every mutating method is a single
// row-level transaction; the Supervisor commits exactly once on finalize.
type Store interface {
	InsertJob(ctx context.Context, job *jobs.Job) error

	// UpdateStartDetails transitions PENDING → RUNNING, only if the row is
	// currently PENDING. A second delivery of the same dispatch is a no-op
	// error rather than a restart.
	UpdateStartDetails(ctx context.Context, id, taskHandle string, startedAt time.Time) error

	// UpdateCompletionDetails writes the terminal row, only if the row is
	// not already terminal. Safe to call from a redelivered Broker message.
	UpdateCompletionDetails(ctx context.Context, id string, status jobs.Status, exitCode int, completedAt time.Time, resultMessage, logSnippet string) error

	Get(ctx context.Context, id string) (*jobs.Job, error)
	ListForOwner(ctx context.Context, ownerID string, offset, limit int) ([]*jobs.Job, error)
	ListAll(ctx context.Context, offset, limit int) ([]*jobs.Job, error)
}

// MemoryStore is an in-process Store backed by a guarded map. Rows are
// retained indefinitely — nothing ever deletes a terminal Job, matching the
// spec's "cleared from memory but retained in Job Store indefinitely" note
// for the in-memory deployment profile.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]*jobs.Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]*jobs.Job)}
}

func (s *MemoryStore) InsertJob(_ context.Context, job *jobs.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[job.ID]; exists {
		return fmt.Errorf("jobstore: job %s already exists", job.ID)
	}
	s.rows[job.ID] = job
	return nil
}

func (s *MemoryStore) UpdateStartDetails(_ context.Context, id, taskHandle string, startedAt time.Time) error {
	s.mu.RLock()
	row, exists := s.rows[id]
	s.mu.RUnlock()
	if !exists {
		return fmt.Errorf("jobstore: job %s not found", id)
	}
	return row.Start(taskHandle, startedAt)
}

func (s *MemoryStore) UpdateCompletionDetails(_ context.Context, id string, status jobs.Status, exitCode int, completedAt time.Time, resultMessage, logSnippet string) error {
	s.mu.RLock()
	row, exists := s.rows[id]
	s.mu.RUnlock()
	if !exists {
		return fmt.Errorf("jobstore: job %s not found", id)
	}
	return row.Finish(status, exitCode, resultMessage, logSnippet, completedAt)
}

func (s *MemoryStore) Get(_ context.Context, id string) (*jobs.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, exists := s.rows[id]
	if !exists {
		return nil, fmt.Errorf("jobstore: job %s not found", id)
	}
	snap := row.Snapshot()
	return &snap, nil
}

func (s *MemoryStore) ListForOwner(ctx context.Context, ownerID string, offset, limit int) ([]*jobs.Job, error) {
	return s.list(func(j *jobs.Job) bool { return j.OwnerID == ownerID }, offset, limit)
}

func (s *MemoryStore) ListAll(ctx context.Context, offset, limit int) ([]*jobs.Job, error) {
	return s.list(func(*jobs.Job) bool { return true }, offset, limit)
}

func (s *MemoryStore) list(include func(*jobs.Job) bool, offset, limit int) ([]*jobs.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*jobs.Job
	for _, row := range s.rows {
		if include(row) {
			snap := row.Snapshot()
			matched = append(matched, &snap)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].SubmittedAt.After(matched[j].SubmittedAt)
	})

	if offset >= len(matched) {
		return nil, nil
	}
	end := len(matched)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return matched[offset:end], nil
}
