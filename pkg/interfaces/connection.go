package interfaces

// Connection is what the sync layer needs from a live client channel
// ARCHITECTURAL DISCOVERY: Hub and router depend on this abstraction rather than on
// gorilla/websocket so tests can substitute a recording fake
type Connection interface {
	// ID returns the server-assigned connection identifier
	ID() string

	// WriteJSON queues a JSON frame for delivery (thread-safe, best-effort)
	// FUNCTIONAL DISCOVERY: Must never block the caller, because broadcasts are
	// issued while the session lock is held
	WriteJSON(v interface{}) error

	// Close closes the connection and releases its writer goroutine
	Close() error
}
