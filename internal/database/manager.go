package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	dbconfig "readingroom/pkg/database"
	"readingroom/pkg/types"
)

// ErrManagerClosed is returned by reads after Close
var ErrManagerClosed = errors.New("activity log is closed")

// DefaultRecentLimit caps Recent when the caller passes a non-positive limit
const DefaultRecentLimit = 100

// Manager is the SQLite-backed activity log
// ARCHITECTURAL DISCOVERY: All inserts go through one writer goroutine so SQLite
// never sees concurrent writers, and hub callers never wait on disk
type Manager struct {
	db       *sql.DB
	config   *dbconfig.Config
	events   chan types.ActivityEvent
	shutdown chan struct{}
	wg       sync.WaitGroup
	logger   *zap.SugaredLogger

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// NewManager opens the database, applies migrations, validates the schema and
// starts the writer
func NewManager(config *dbconfig.Config, logger *zap.SugaredLogger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	db, err := dbconfig.Open(config)
	if err != nil {
		return nil, err
	}

	if err := dbconfig.NewMigrationManager(db).ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate activity log: %w", err)
	}
	if err := dbconfig.NewSchemaValidator(db).Validate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("activity log schema invalid: %w", err)
	}

	m := &Manager{
		db:       db,
		config:   config,
		events:   make(chan types.ActivityEvent, config.QueueSize),
		shutdown: make(chan struct{}),
		logger:   logger,
	}
	m.wg.Add(1)
	go m.writeLoop()

	logger.Infow("activity log opened", "path", config.DatabasePath)
	return m, nil
}

// Record queues an event for the writer. A full queue drops the event.
func (m *Manager) Record(event types.ActivityEvent) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	select {
	case m.events <- event:
	default:
		// FUNCTIONAL DISCOVERY: Losing a diagnostic row is preferable to stalling a
		// broadcast path that holds the session lock
		m.dropped.Add(1)
		m.logger.Warnw("activity event dropped", "code", event.Code, "event", event.Kind)
	}
}

// writeLoop inserts queued events until shutdown, then drains what is left
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case event := <-m.events:
			m.insert(event)
		case <-m.shutdown:
			for {
				select {
				case event := <-m.events:
					m.insert(event)
				default:
					m.logger.Infow("activity writer stopped")
					return
				}
			}
		}
	}
}

// insert writes one row, retrying once after a short pause
func (m *Manager) insert(event types.ActivityEvent) {
	const query = `INSERT INTO session_events (code, event, participants, occurred_at) VALUES (?, ?, ?, ?)`

	_, err := m.db.Exec(query, event.Code, event.Kind, event.Participants, event.OccurredAt.UTC())
	if err != nil {
		m.logger.Warnw("activity insert failed, retrying", "error", err)
		time.Sleep(100 * time.Millisecond)
		if _, err = m.db.Exec(query, event.Code, event.Kind, event.Participants, event.OccurredAt.UTC()); err != nil {
			m.logger.Errorw("activity insert failed after retry", "error", err, "code", event.Code)
		}
	}
}

// Recent returns up to limit events, newest first
func (m *Manager) Recent(ctx context.Context, limit int) ([]types.ActivityEvent, error) {
	if m.isClosed() {
		return nil, ErrManagerClosed
	}
	if limit <= 0 || limit > DefaultRecentLimit {
		limit = DefaultRecentLimit
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, code, event, participants, occurred_at
		FROM session_events
		ORDER BY occurred_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := make([]types.ActivityEvent, 0, limit)
	for rows.Next() {
		var e types.ActivityEvent
		if err := rows.Scan(&e.ID, &e.Code, &e.Kind, &e.Participants, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity row: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// HealthCheck validates connectivity and that the event table is readable
func (m *Manager) HealthCheck(ctx context.Context) error {
	if m.isClosed() {
		return ErrManagerClosed
	}
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var n int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM session_events").Scan(&n); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Dropped returns how many events were lost to a full queue
func (m *Manager) Dropped() int64 {
	return m.dropped.Load()
}

// Close stops accepting events, flushes the queue and closes the database.
// Calling Close twice is safe.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func (m *Manager) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
