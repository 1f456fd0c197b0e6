// Package ws implements the Live-Log Subscriber (spec §4.4): a
// WebSocket endpoint that authorizes a short-lived bearer token against
// a job, subscribes to its Log Bus topic, and forwards envelopes to the
// client until the job's terminal status is delivered or the client
// disconnects.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"subsvc/internal/dispatcher"
	apierrors "subsvc/internal/errors"
	"subsvc/internal/jobs"
	"subsvc/internal/logbus"
	"subsvc/internal/middleware"
)

const (
	writeWait      = 10 * time.Second
	subscribeDepth = 256
)

// JobAuthorizer is the subset of the API/Dispatcher the Subscriber needs
// to decide whether the caller may attach to a job's log stream.
type JobAuthorizer interface {
	GetJob(ctx context.Context, identity dispatcher.Identity, id string) (*jobs.Job, error)
}

// TokenValidator validates the short-lived bearer passed in the query
// string (spec §6.1's "short-lived bearer in query").
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*middleware.UserInfo, error)
}

// Handler upgrades a request to a WebSocket per spec §6.1's
// `/jobs/{id}/logs?token=...` route.
type Handler struct {
	dispatcher JobAuthorizer
	bus        *logbus.Bus
	validator  TokenValidator
	upgrader   websocket.Upgrader
	logger     *slog.Logger
}

func NewHandler(disp JobAuthorizer, bus *logbus.Bus, validator TokenValidator, allowedOrigins []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	originAllowed := func(origin string) bool {
		if origin == "" || len(allowedOrigins) == 0 {
			return true
		}
		for _, allowed := range allowedOrigins {
			if allowed == "*" || allowed == origin {
				return true
			}
		}
		return false
	}
	return &Handler{
		dispatcher: disp,
		bus:        bus,
		validator:  validator,
		logger:     logger.With(slog.String("component", "ws_subscriber")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(r.Header.Get("Origin"))
			},
		},
	}
}

// Routes mounts the live-log-stream route on a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{id}/logs", h.ServeHTTP)
	return r
}

// closeCodeTable implements spec §6.2.
const (
	closeInvalidAuth   = websocket.ClosePolicyViolation  // 1008
	closeJobNotFound   = websocket.CloseUnsupportedData  // 1003
	closeForbidden     = websocket.ClosePolicyViolation  // 1008
	closeBusUnavailable = websocket.CloseInternalServerErr // 1011
	closeGoingAway     = websocket.CloseGoingAway        // 1001
	closeUnexpected    = websocket.CloseInternalServerErr // 1011
)

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := chi.URLParam(r, "id")
	token := r.URL.Query().Get("token")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.ErrorContext(ctx, "websocket upgrade failed", slog.String("error", err.Error()), slog.String("job_id", jobID))
		return
	}
	defer conn.Close()

	identity, authErr := h.authenticate(ctx, token)
	if authErr != nil {
		h.logger.WarnContext(ctx, "websocket auth rejected", slog.String("job_id", jobID), slog.String("error", authErr.Error()))
		h.writeError(conn, "Invalid or expired auth token.")
		closeWith(conn, closeInvalidAuth, "invalid or expired auth")
		return
	}

	_, err = h.dispatcher.GetJob(ctx, identity, jobID)
	if err != nil {
		var apiErr *apierrors.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode == "FORBIDDEN" {
			h.writeError(conn, "Forbidden: you do not own this job.")
			closeWith(conn, closeForbidden, "forbidden")
			return
		}
		h.writeError(conn, "Job not found.")
		closeWith(conn, closeJobNotFound, "job not found")
		return
	}

	if h.bus == nil {
		h.writeError(conn, "Log bus unavailable.")
		closeWith(conn, closeBusUnavailable, "log bus unavailable")
		return
	}

	h.runSession(ctx, conn, jobID)
}

func (h *Handler) authenticate(ctx context.Context, token string) (dispatcher.Identity, error) {
	if h.validator == nil || token == "" {
		return dispatcher.Identity{}, errNoToken
	}
	user, err := h.validator.ValidateToken(ctx, token)
	if err != nil {
		return dispatcher.Identity{}, err
	}
	isAdmin := false
	for _, role := range user.Roles {
		if role == "admin" {
			isAdmin = true
			break
		}
	}
	return dispatcher.Identity{UserID: user.ID, IsAdmin: isAdmin}, nil
}

var errNoToken = errors.New("ws: no token provided")

// runSession is the session loop of spec §4.4: an egress forwarder reads
// the Log Bus subscription and writes WS frames, an ingress watcher reads
// client frames solely to detect disconnect. The session ends when either
// task completes or errors; cleanup cancels the peer task and closes the
// stream with an appropriate status code.
func (h *Handler) runSession(ctx context.Context, conn *websocket.Conn, jobID string) {
	envelopes, unsubscribe := h.bus.Subscribe(jobID, subscribeDepth)
	defer unsubscribe()

	if err := h.writeEnvelope(conn, systemEnvelope("Log streaming started", jobID)); err != nil {
		h.logger.WarnContext(ctx, "websocket write failed", slog.String("job_id", jobID), slog.String("error", err.Error()))
		return
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ingressDone := make(chan struct{})
	go func() {
		defer close(ingressDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case env, ok := <-envelopes:
			if !ok {
				closeWith(conn, closeGoingAway, "stream complete")
				return
			}
			if err := h.writeEnvelope(conn, env); err != nil {
				h.logger.WarnContext(sessionCtx, "websocket write failed", slog.String("job_id", jobID), slog.String("error", err.Error()))
				return
			}
			if env.Type == logbus.TypeStatus {
				closeWith(conn, closeGoingAway, "job terminal")
				return
			}
		case <-ingressDone:
			// Client disconnected; terminate cleanly without disturbing
			// the Supervisor or the Log Bus publisher.
			return
		case <-sessionCtx.Done():
			closeWith(conn, closeGoingAway, "server shutdown")
			return
		}
	}
}

func (h *Handler) writeEnvelope(conn *websocket.Conn, env logbus.Envelope) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// writeError best-efforts an "error" envelope ahead of a close control
// frame (spec §8's forbidden/invalid-auth/job-not-found/bus-unavailable
// scenarios all pair a close code with this payload). The connection is
// about to be closed regardless, so a write failure here is not fatal.
func (h *Handler) writeError(conn *websocket.Conn, message string) {
	if err := h.writeEnvelope(conn, errorEnvelope(message)); err != nil {
		h.logger.Debug("websocket error envelope write failed", slog.String("error", err.Error()))
	}
}

func systemEnvelope(message, jobID string) logbus.Envelope {
	raw, _ := json.Marshal(logbus.SystemPayload{Message: message, JobID: jobID})
	return logbus.Envelope{Type: logbus.TypeSystem, Payload: raw, TS: time.Now()}
}

func errorEnvelope(message string) logbus.Envelope {
	raw, _ := json.Marshal(logbus.ErrorPayload{Message: message})
	return logbus.Envelope{Type: logbus.TypeError, Payload: raw, TS: time.Now()}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
}
