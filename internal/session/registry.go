package session

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"readingroom/internal/identity"
	"readingroom/internal/metrics"
	"readingroom/pkg/types"
)

// Default lifecycle settings
const (
	DefaultTTL           = 3 * time.Hour
	DefaultSweepInterval = 5 * time.Minute
	maxCodeAttempts      = 1000
)

// ExpiryHook runs under the registry lock for every session removed by TTL expiry,
// after the session has left the map
type ExpiryHook func(s *Session)

// Registry is the authoritative map of session code to session.
// ARCHITECTURAL DISCOVERY: One coarse mutex covers the map and every nested field.
// Classroom scale keeps contention low, and a single lock removes any ordering
// question between session, participant and translation state.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	ttl           time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	random        io.Reader
	intn          identity.IntN
	onExpire      ExpiryHook
	logger        *zap.SugaredLogger

	sweepOnce sync.Once
}

// Option customizes a Registry
type Option func(*Registry)

// WithTTL overrides the session lifetime
func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithSweepInterval overrides the sweep cadence
func WithSweepInterval(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.sweepInterval = d
		}
	}
}

// WithClock injects the time source
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithRandom injects the code generator's entropy source
func WithRandom(rd io.Reader) Option {
	return func(r *Registry) { r.random = rd }
}

// WithIdentityRandom injects the fallback picker used when identities run out
func WithIdentityRandom(intn identity.IntN) Option {
	return func(r *Registry) { r.intn = intn }
}

// NewRegistry creates an empty registry
func NewRegistry(logger *zap.SugaredLogger, opts ...Option) *Registry {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	r := &Registry{
		sessions:      make(map[string]*Session),
		ttl:           DefaultTTL,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
		random:        rand.Reader,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetExpiryHook installs the callback for expired sessions. Call before StartSweeper.
func (r *Registry) SetExpiryHook(hook ExpiryHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onExpire = hook
}

// Create inserts a new session under a fresh code.
// Credential validation is the caller's job.
// FUNCTIONAL DISCOVERY: An expired entry that has not been swept still occupies its
// code, so a new session can never resurrect an old code before removal.
func (r *Registry) Create(creds types.Credentials, pin string) (string, time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := r.generateCode()
		if err != nil {
			return "", time.Time{}, err
		}
		if _, taken := r.sessions[code]; taken {
			continue
		}

		s := newSession(code, creds, pin, r.now(), r.ttl, r.intn)
		r.sessions[code] = s
		metrics.SetActiveSessions(len(r.sessions))
		r.logger.Infow("session created", "code", code, "expires", s.expires, "hasPIN", pin != "")
		return code, s.expires, nil
	}
	return "", time.Time{}, ErrCodeSpaceExhausted
}

// generateCode draws CodeLength characters from the code alphabet.
// TECHNICAL DISCOVERY: The alphabet has 32 symbols, so byte%32 is unbiased.
func (r *Registry) generateCode() (string, error) {
	buf := make([]byte, types.CodeLength)
	if _, err := io.ReadFull(r.random, buf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRandomSource, err)
	}
	alphabet := types.CodeAlphabet
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf), nil
}

// getLocked returns a live session or lazily removes an expired one. Caller holds mu.
func (r *Registry) getLocked(code string) (*Session, error) {
	s, ok := r.sessions[types.NormalizeCode(code)]
	if !ok {
		return nil, types.ErrSessionNotFound
	}
	if s.expiredAt(r.now()) {
		r.expireLocked(s)
		metrics.RecordSessionsExpired(1)
		return nil, types.ErrSessionNotFound
	}
	return s, nil
}

// expireLocked removes s and fires the expiry hook. Caller holds mu.
func (r *Registry) expireLocked(s *Session) {
	delete(r.sessions, s.code)
	metrics.SetActiveSessions(len(r.sessions))
	r.logger.Infow("session expired", "code", s.code, "participants", len(s.participants))
	if r.onExpire != nil {
		r.onExpire(s)
	}
}

// Lookup returns the public status of a live session
func (r *Registry) Lookup(code string) (types.Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.getLocked(code)
	if err != nil {
		return types.Status{}, err
	}
	return s.Status(), nil
}

// Exists reports whether code names a live session
func (r *Registry) Exists(code string) bool {
	_, err := r.Lookup(code)
	return err == nil
}

// Update runs fn against a live session under the registry lock.
// ARCHITECTURAL DISCOVERY: This is the only mutation path. fn may broadcast, because
// broadcasts only enqueue, and emitting inside the critical section is what keeps
// per-session event order equal to mutation order.
func (r *Registry) Update(code string, fn func(s *Session) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.getLocked(code)
	if err != nil {
		return err
	}
	return fn(s)
}

// View runs fn against a live session under the registry lock without mutating it
func (r *Registry) View(code string, fn func(s *Session)) error {
	return r.Update(code, func(s *Session) error {
		fn(s)
		return nil
	})
}

// Credentials returns the secret bundle of a live session.
// Kept separate from Lookup so call sites that touch secrets stand out.
func (r *Registry) Credentials(code string) (types.Credentials, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.getLocked(code)
	if err != nil {
		return types.Credentials{}, err
	}
	return s.creds, nil
}

// End deletes a session. Ending twice is safe; the second call reports false.
func (r *Registry) End(code string) bool {
	ended, _ := r.EndIf(code, nil)
	return ended
}

// EndIf runs check under the lock and deletes the session only if check returns nil.
// check may broadcast the terminal event before the record disappears.
func (r *Registry) EndIf(code string, check func(s *Session) error) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.getLocked(code)
	if err != nil {
		return false, err
	}
	if check != nil {
		if err := check(s); err != nil {
			return false, err
		}
	}
	delete(r.sessions, s.code)
	metrics.SetActiveSessions(len(r.sessions))
	r.logger.Infow("session ended", "code", s.code, "participants", len(s.participants))
	return true, nil
}

// Disconnect removes connID from every session it belongs to.
// fn runs under the lock once per affected session so the caller can notify peers;
// departed is the removed participant record, nil when connID was only the owner.
func (r *Registry) Disconnect(connID string, fn func(s *Session, wasOwner bool, departed *types.Participant)) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	affected := 0
	for _, s := range r.sessions {
		if s.expiredAt(now) {
			continue
		}
		wasOwner := s.IsOwner(connID)
		var departed *types.Participant
		if p, ok := s.Participant(connID); ok {
			s.Leave(connID)
			departed = &p
		}
		if !wasOwner && departed == nil {
			continue
		}
		if wasOwner {
			// FUNCTIONAL DISCOVERY: The session stays alive and ownerless until TTL or
			// until the owner re-attaches with the code
			s.DetachOwner()
		}
		affected++
		if fn != nil {
			fn(s, wasOwner, departed)
		}
	}
	return affected
}

// Sweep removes every expired session and returns how many were removed
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for _, s := range r.sessions {
		if s.expiredAt(now) {
			removed++
			r.expireLocked(s)
		}
	}
	if removed > 0 {
		metrics.RecordSessionsExpired(removed)
	}
	return removed
}

// StartSweeper launches the periodic sweep once for the registry's lifetime.
// Later calls are no-ops and report false.
func (r *Registry) StartSweeper(ctx context.Context) bool {
	started := false
	r.sweepOnce.Do(func() {
		started = true
		go r.sweepLoop(ctx)
	})
	return started
}

func (r *Registry) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	r.logger.Infow("session sweeper started", "interval", r.sweepInterval.String())
	for {
		select {
		case <-ticker.C:
			r.safeSweep()
		case <-ctx.Done():
			r.logger.Infow("session sweeper stopped")
			return
		}
	}
}

// safeSweep keeps the loop alive when a sweep panics
// TECHNICAL DISCOVERY: The sweep is the only bound on abandoned sessions, so a
// failing expiry hook must not end it
func (r *Registry) safeSweep() {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Errorw("session sweep failed", "panic", rec)
		}
	}()
	if removed := r.Sweep(); removed > 0 {
		r.logger.Infow("session sweep removed expired sessions", "removed", removed)
	}
}

// Count returns the number of sessions in the map, including expired-but-unswept ones
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
