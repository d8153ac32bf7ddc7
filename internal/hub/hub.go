package hub

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"readingroom/internal/metrics"
	"readingroom/internal/proxy"
	"readingroom/internal/session"
	"readingroom/internal/websocket"
	"readingroom/pkg/interfaces"
	"readingroom/pkg/types"
)

// Translator is the slice of the provider proxy the approval workflow needs
type Translator interface {
	Translate(ctx context.Context, in proxy.TranslationInput) (string, error)
}

// Hub applies session operations on behalf of connections and fans out the
// resulting events.
// ARCHITECTURAL DISCOVERY: Every mutation and its broadcast run inside one
// registry critical section, so a listener sees a session's events in the order
// the mutations were applied. Lock order is registry then rooms, never reversed.
type Hub struct {
	sessions   *session.Registry
	rooms      *websocket.Registry
	translator Translator
	activity   interfaces.ActivityLog
	logger     *zap.SugaredLogger
	now        func() time.Time

	// TECHNICAL DISCOVERY: RWMutex allows concurrent reads of running state
	mu      sync.RWMutex
	running bool
	started bool
	cancel  context.CancelFunc
}

// NewHub creates a hub and installs the expiry broadcast on the registry.
// activity may be nil.
func NewHub(sessions *session.Registry, rooms *websocket.Registry, translator Translator, activity interfaces.ActivityLog, logger *zap.SugaredLogger) *Hub {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	h := &Hub{
		sessions:   sessions,
		rooms:      rooms,
		translator: translator,
		activity:   activity,
		logger:     logger,
		now:        time.Now,
	}
	sessions.SetExpiryHook(h.onExpire)
	return h
}

// Start launches the expiry sweeper. A hub runs once per process.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running || h.started {
		return ErrHubAlreadyRunning
	}
	ctx, h.cancel = context.WithCancel(ctx)
	h.running = true
	h.started = true

	h.sessions.StartSweeper(ctx)
	h.logger.Infow("session hub started")
	return nil
}

// Stop halts the sweeper
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false
	h.cancel()
	h.logger.Infow("session hub stopped")
	return nil
}

// IsRunning reports whether Start has been called without a matching Stop
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// onExpire runs under the registry lock after an expired session left the map
func (h *Hub) onExpire(s *session.Session) {
	h.broadcast(s.Code(), types.EventSessionEnded, messagePayload{Message: "Session expired"})
	h.rooms.CloseRoom(s.Code())
	h.record(s.Code(), types.ActivityExpired, s.ParticipantCount())
}

// send queues an event on one connection. Failures are dropped frames, not errors.
func (h *Hub) send(connID, event string, data interface{}) {
	if connID == "" {
		return
	}
	if err := h.rooms.Send(connID, types.NewEvent(event, data)); err != nil {
		h.logger.Debugw("event not delivered", "event", event, "connection", connID, "error", err)
		return
	}
	metrics.RecordBroadcast(event)
}

// broadcast queues an event on every connection subscribed to the session's room
func (h *Hub) broadcast(code, event string, data interface{}) {
	delivered := h.rooms.Broadcast(code, types.NewEvent(event, data))
	metrics.RecordBroadcast(event)
	h.logger.Debugw("event broadcast", "event", event, "code", code, "delivered", delivered)
}

func (h *Hub) record(code, kind string, participants int) {
	if h.activity == nil {
		return
	}
	h.activity.Record(types.ActivityEvent{
		Code:         code,
		Kind:         kind,
		Participants: participants,
		OccurredAt:   h.now(),
	})
}
