package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"readingroom/internal/metrics"
	"readingroom/pkg/interfaces"
	"readingroom/pkg/types"
)

// Dispatcher receives every inbound frame and the final disconnect of a connection
// ARCHITECTURAL DISCOVERY: The handler owns transport concerns only. Event decoding,
// authorization and session state live behind this interface.
type Dispatcher interface {
	Dispatch(ctx context.Context, conn interfaces.Connection, data []byte)
	Disconnect(conn interfaces.Connection)
}

// Handler upgrades HTTP requests and runs the per-connection read loop
type Handler struct {
	registry   *Registry
	dispatcher Dispatcher
	config     Config
	upgrader   websocket.Upgrader
	logger     *zap.SugaredLogger
}

// NewHandler creates a new WebSocket handler with dependency injection
func NewHandler(registry *Registry, dispatcher Dispatcher, cfg Config, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	cfg = cfg.withDefaults()
	return &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		config:     cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// FUNCTIONAL DISCOVERY: Classroom devices reach the server from arbitrary
				// origins. Sessions are gated by code and owner connection instead.
				return true
			},
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// HandleWebSocket upgrades the request and starts the connection lifecycle.
// Connections are anonymous until they create, attach to or join a session.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	wsConn := NewConnection(conn, h.config)
	if err := h.registry.Register(wsConn); err != nil {
		h.logger.Errorw("failed to register connection", "error", err)
		_ = wsConn.Close()
		return
	}
	metrics.ConnectionOpened()
	h.logger.Debugw("websocket connected", "connection", wsConn.ID(), "remote", r.RemoteAddr)

	// Clients learn their server-assigned id before sending anything
	_ = wsConn.WriteJSON(types.NewEvent(types.EventConnected, map[string]string{
		"connection_id": wsConn.ID(),
	}))

	// TECHNICAL DISCOVERY: Separate goroutine for connection lifecycle management
	// enables clean resource cleanup and heartbeat monitoring
	go h.handleConnection(wsConn)
}

// handleConnection manages the connection lifecycle with heartbeat monitoring
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		// FUNCTIONAL DISCOVERY: Unregister before session cleanup. A join racing with
		// the disconnect then fails to subscribe instead of leaving a dead owner behind.
		h.registry.Unregister(conn.ID())
		if h.dispatcher != nil {
			h.dispatcher.Disconnect(conn)
		}
		_ = conn.Close()
		metrics.ConnectionClosed()
		h.logger.Debugw("websocket disconnected", "connection", conn.ID())
	}()

	ws := conn.conn
	ws.SetReadLimit(h.config.MaxMessageBytes)
	if err := ws.SetReadDeadline(time.Now().Add(h.config.ReadTimeout)); err != nil {
		h.logger.Warnw("failed to set read deadline", "error", err)
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	})

	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := ws.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(h.config.WriteTimeout)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	// Read pump
	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Infow("websocket read error", "connection", conn.ID(), "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage || h.dispatcher == nil {
			continue
		}
		h.dispatcher.Dispatch(conn.ctx, conn, data)
	}
}
