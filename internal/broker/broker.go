// Package broker implements the Broker Queue (spec §4.7): at-least-once
// task delivery to Supervisors, task revocation by handle, and ack-late
// semantics (acknowledge only after the Job Store commit, never on start).
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Task is the unit of dispatch handed to a Supervisor: enough to start the
// worker subprocess without a further Job Store read.
type Task struct {
	JobID    string
	Folder   string
	Language string
	LogLevel string

	// handle is the opaque revocation token returned by Enqueue; it is
	// threaded back through Ack/Revoke.
	handle string
}

// Handle returns the task's revocation handle.
func (t Task) Handle() string { return t.handle }

// Broker is the at-least-once task queue between the API and Supervisors.
type Broker interface {
	// Enqueue admits a task for dispatch and returns its task handle. The
	// Supervisor that dequeues the task persists this handle via
	// jobstore.UpdateStartDetails — Enqueue itself never blocks on that.
	Enqueue(ctx context.Context, task Task) (handle string, err error)

	// Dequeue blocks until a task is available or ctx is cancelled.
	Dequeue(ctx context.Context) (Task, error)

	// Ack acknowledges successful processing — called only after the Job
	// Store commit of the terminal state, never on task start.
	Ack(handle string) error

	// Revoke cancels a task by handle, used by CancelJob. If the task has
	// not yet been dequeued it is marked revoked and its handle dropped,
	// but the task stays in the queue and Dequeue still returns it; if it
	// is already running, revocation is advisory — the Supervisor's own
	// process-termination protocol (spec §4.2 step 5) produces the
	// terminal write.
	Revoke(handle string) error
}

// InProcessBroker is a buffered-channel Broker for a single-process
// deployment. Queued tasks live only in memory and do not survive a
// process restart; nothing in this package replays un-terminal rows at
// startup. Within a running process every Enqueue is delivered
// exactly once per Dequeue loop, since nothing else returns a task to the
// channel once taken.
type InProcessBroker struct {
	mu       sync.Mutex
	tasks    chan Task
	handles  map[string]*queuedTask
	revoked  map[string]bool
	logger   *slog.Logger
	capacity int
}

type queuedTask struct {
	task      Task
	delivered bool
}

func NewInProcessBroker(capacity int, logger *slog.Logger) *InProcessBroker {
	if capacity <= 0 {
		capacity = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InProcessBroker{
		tasks:    make(chan Task, capacity),
		handles:  make(map[string]*queuedTask),
		revoked:  make(map[string]bool),
		logger:   logger.With(slog.String("component", "broker")),
		capacity: capacity,
	}
}

func (b *InProcessBroker) Enqueue(ctx context.Context, task Task) (string, error) {
	handle := task.JobID
	task.handle = handle

	b.mu.Lock()
	if _, exists := b.handles[handle]; exists {
		b.mu.Unlock()
		return "", fmt.Errorf("broker: task %s already enqueued", handle)
	}
	b.handles[handle] = &queuedTask{task: task}
	b.mu.Unlock()

	select {
	case b.tasks <- task:
		b.logger.Info("task enqueued", slog.String("job_id", task.JobID))
		return handle, nil
	case <-ctx.Done():
		b.mu.Lock()
		delete(b.handles, handle)
		b.mu.Unlock()
		return "", ctx.Err()
	default:
		b.mu.Lock()
		delete(b.handles, handle)
		b.mu.Unlock()
		return "", fmt.Errorf("broker: queue at capacity (%d)", b.capacity)
	}
}

func (b *InProcessBroker) Dequeue(ctx context.Context) (Task, error) {
	select {
	case task := <-b.tasks:
		b.mu.Lock()
		revoked := b.revoked[task.handle]
		if qt, ok := b.handles[task.handle]; ok {
			qt.delivered = true
		}
		b.mu.Unlock()
		if revoked {
			// Already cancelled before a Supervisor picked it up; the
			// caller's idempotent Job-row check handles the rest.
			b.logger.Info("dequeued already-revoked task", slog.String("job_id", task.JobID))
		}
		return task, nil
	case <-ctx.Done():
		return Task{}, ctx.Err()
	}
}

func (b *InProcessBroker) Ack(handle string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.handles[handle]; !exists {
		return fmt.Errorf("broker: unknown task handle %s", handle)
	}
	delete(b.handles, handle)
	delete(b.revoked, handle)
	return nil
}

func (b *InProcessBroker) Revoke(handle string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	qt, exists := b.handles[handle]
	if !exists {
		return fmt.Errorf("broker: unknown task handle %s", handle)
	}
	b.revoked[handle] = true
	if !qt.delivered {
		delete(b.handles, handle)
	}
	return nil
}

// IsRevoked reports whether handle has been revoked — a Supervisor polls
// this between stdout/stderr reads to decide whether to begin termination
// even absent an external signal on its own context.
func (b *InProcessBroker) IsRevoked(handle string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.revoked[handle]
}
