// Package logbus implements the Log Bus (spec §4.4/§6.3): a per-job topic
// carrying log/status/system/error envelopes from a Supervisor to any
// number of Subscribers, with a bounded replay buffer so a late-joining
// subscriber receives history before live traffic, both in seq order.
package logbus

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// EnvelopeType is the discriminator of the self-describing wire envelope.
type EnvelopeType string

const (
	TypeLog    EnvelopeType = "log"
	TypeStatus EnvelopeType = "status"
	TypeSystem EnvelopeType = "system"
	TypeError  EnvelopeType = "error"
)

// Envelope is the wire format published on a job's topic and replayed to
// subscribers verbatim — seq is assigned by the topic, monotonic per job.
type Envelope struct {
	Type    EnvelopeType    `json:"type"`
	Payload json.RawMessage `json:"payload"`
	TS      time.Time       `json:"ts"`
	Seq     uint64          `json:"seq"`
}

// LogPayload is the payload of a "log" envelope.
type LogPayload struct {
	Stream  string `json:"stream"` // stdout|stderr|system|status|error
	Message string `json:"message"`
}

// StatusPayload is the payload of a "status" envelope.
type StatusPayload struct {
	Status   string `json:"status"`
	ExitCode int    `json:"exit_code"`
	JobID    string `json:"job_id"`
}

// SystemPayload is the payload of a "system" envelope.
type SystemPayload struct {
	Message string `json:"message"`
	JobID   string `json:"job_id"`
}

// ErrorPayload is the payload of an "error" envelope.
type ErrorPayload struct {
	Message string `json:"message"`
}

// subscriber is a single Subscriber's delivery channel.
type subscriber struct {
	ch chan Envelope
}

// topic is the single-writer actor owning one job's envelope stream: a
// goroutine serializing every publish/subscribe/unsubscribe so the replay
// buffer and the live fan-out can never race, mirroring the teacher's
// channel-driven status broadcaster.
type topic struct {
	jobID      string
	requests   chan func()
	stop       chan struct{}
	history    []Envelope
	historyCap int
	nextSeq    uint64
	subs       map[*subscriber]bool
	closed     bool
	logger     *slog.Logger
}

func newTopic(jobID string, historyCap int, logger *slog.Logger) *topic {
	t := &topic{
		jobID:      jobID,
		requests:   make(chan func(), 64),
		stop:       make(chan struct{}),
		historyCap: historyCap,
		subs:       make(map[*subscriber]bool),
		logger:     logger,
	}
	go t.run()
	return t
}

func (t *topic) run() {
	for {
		select {
		case <-t.stop:
			return
		case req := <-t.requests:
			req()
		}
	}
}

// Bus owns the registry of per-job topics. A job's topic is created on
// first publish or subscribe; Close marks it finalized but retains its
// history for retention so a Subscriber that connects after the terminal
// status was published still gets a full replay, and only the retention
// timer's expiry actually tears the topic down.
type Bus struct {
	mu         sync.Mutex
	topics     map[string]*topic
	historyCap int
	retention  time.Duration
	logger     *slog.Logger
}

func NewBus(historyCap int, logger *slog.Logger) *Bus {
	return NewBusWithRetention(historyCap, 5*time.Minute, logger)
}

// NewBusWithRetention is NewBus with an explicit closed-topic retention
// window (config.LogBusConfig.ClosedTopicRetention).
func NewBusWithRetention(historyCap int, retention time.Duration, logger *slog.Logger) *Bus {
	if historyCap <= 0 {
		historyCap = 1000
	}
	if retention <= 0 {
		retention = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		topics:     make(map[string]*topic),
		historyCap: historyCap,
		retention:  retention,
		logger:     logger.With(slog.String("component", "logbus")),
	}
}

func (b *Bus) topicFor(jobID string) *topic {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[jobID]
	if !ok {
		t = newTopic(jobID, b.historyCap, b.logger)
		b.topics[jobID] = t
	}
	return t
}

// Publish appends an envelope to the job's topic, assigning the next
// sequence number, and fans it out to every current subscriber.
func (b *Bus) Publish(jobID string, envType EnvelopeType, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	t := b.topicFor(jobID)

	done := make(chan struct{})
	t.requests <- func() {
		defer close(done)
		if t.closed {
			return
		}
		env := Envelope{Type: envType, Payload: raw, TS: time.Now(), Seq: t.nextSeq}
		t.nextSeq++

		t.history = append(t.history, env)
		if len(t.history) > t.historyCap {
			t.history = t.history[len(t.history)-t.historyCap:]
		}

		for s := range t.subs {
			select {
			case s.ch <- env:
			default:
				t.logger.Warn("subscriber channel full, dropping envelope",
					slog.String("job_id", jobID), slog.Uint64("seq", env.Seq))
			}
		}
	}
	<-done
	return nil
}

// Subscribe registers a new subscriber and returns its delivery channel
// pre-loaded with replay history, plus an unsubscribe func. History is
// delivered before this call returns so a late joiner never misses a live
// envelope published between Subscribe and its first read.
func (b *Bus) Subscribe(jobID string, bufferSize int) (<-chan Envelope, func()) {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	t := b.topicFor(jobID)
	sub := &subscriber{ch: make(chan Envelope, bufferSize)}

	done := make(chan struct{})
	t.requests <- func() {
		defer close(done)
		for _, env := range t.history {
			select {
			case sub.ch <- env:
			default:
				t.logger.Warn("subscriber buffer overflow during replay",
					slog.String("job_id", jobID))
			}
		}
		if t.closed {
			// The job already reached terminal state: history (including
			// the final status envelope) was just replayed above and no
			// further envelope will ever be published, so close the
			// channel immediately rather than registering a live
			// subscriber that would wait forever.
			close(sub.ch)
			return
		}
		t.subs[sub] = true
	}
	<-done

	unsubscribe := func() {
		done := make(chan struct{})
		select {
		case t.requests <- func() {
			defer close(done)
			if _, ok := t.subs[sub]; ok {
				delete(t.subs, sub)
				close(sub.ch)
			}
		}:
			<-done
		case <-t.stop:
		}
	}
	return sub.ch, unsubscribe
}

// Close finalizes a job's topic: every currently-attached subscriber
// channel is closed (so an in-progress session sees its terminal status
// followed by EOF), but the topic and its history stay in the registry for
// the retention window so a Subscriber that connects afterward still gets
// a full replay ending in the terminal status envelope, then an immediate
// close. Only the retention timer actually removes the topic and stops its
// actor goroutine.
func (b *Bus) Close(jobID string) {
	b.mu.Lock()
	t, ok := b.topics[jobID]
	b.mu.Unlock()
	if !ok {
		return
	}

	done := make(chan struct{})
	t.requests <- func() {
		defer close(done)
		t.closed = true
		for s := range t.subs {
			close(s.ch)
			delete(t.subs, s)
		}
	}
	<-done

	time.AfterFunc(b.retention, func() {
		b.mu.Lock()
		if cur, ok := b.topics[jobID]; ok && cur == t {
			delete(b.topics, jobID)
		}
		b.mu.Unlock()
		close(t.stop)
	})
}

// ActiveTopics returns the number of jobs with a live topic. It counts
// topics, not subscribers, and is not recorded in any metric.
func (b *Bus) ActiveTopics() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics)
}
