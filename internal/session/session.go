package session

import (
	"crypto/subtle"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"

	"readingroom/internal/identity"
	"readingroom/pkg/types"
)

// Session is the aggregate for one classroom session.
// ARCHITECTURAL DISCOVERY: Every field is guarded by the registry mutex. A *Session
// is only reachable inside Registry callbacks, so nothing can hold one after the
// lock is released.
type Session struct {
	code       string
	creds      types.Credentials
	pin        string
	ownerToken string
	owner      string
	created time.Time
	expires time.Time

	text           string
	settings       json.RawMessage
	tasks          json.RawMessage
	tasksAvailable bool
	simplification bool

	participants map[string]*types.Participant
	translations map[string]*types.TranslationRequest
	levels       map[string]types.LevelReport

	intn identity.IntN
}

func newSession(code string, creds types.Credentials, pin string, now time.Time, ttl time.Duration, intn identity.IntN) *Session {
	return &Session{
		code:         code,
		creds:        creds,
		pin:          pin,
		ownerToken:   uuid.NewString(),
		created:      now,
		expires:      now.Add(ttl),
		settings:     json.RawMessage("{}"),
		tasks:        json.RawMessage("[]"),
		participants: make(map[string]*types.Participant),
		translations: make(map[string]*types.TranslationRequest),
		levels:       make(map[string]types.LevelReport),
		intn:         intn,
	}
}

// Code returns the session code
func (s *Session) Code() string { return s.code }

// Expires returns the absolute expiry time
func (s *Session) Expires() time.Time { return s.expires }

func (s *Session) expiredAt(now time.Time) bool {
	return !now.Before(s.expires)
}

// Owner returns the owning connection id, empty while unowned
func (s *Session) Owner() string { return s.owner }

// IsOwner reports whether connID is the recorded owner
func (s *Session) IsOwner(connID string) bool {
	return connID != "" && s.owner == connID
}

// RequireOwner is the ownership gate for every privileged mutation
func (s *Session) RequireOwner(connID string) error {
	if !s.IsOwner(connID) {
		return types.ErrNotOwner
	}
	return nil
}

// HasPIN reports whether owner attach requires a PIN
func (s *Session) HasPIN() bool { return s.pin != "" }

// OwnerToken returns the secret handed to the creator. Whoever holds it may attach
// as owner; it never appears in any public view.
func (s *Session) OwnerToken() string { return s.ownerToken }

// AttachOwner records connID as owner.
// FUNCTIONAL DISCOVERY: The code is public to every participant, so attach needs the
// owner token (and the PIN when one was set). Participants are never promoted, and
// an attached owner is never displaced by another connection.
func (s *Session) AttachOwner(connID, pin, token string) error {
	if s.owner == connID && connID != "" {
		return nil
	}
	if _, ok := s.participants[connID]; ok {
		return types.ErrParticipantOwn
	}
	if s.owner != "" {
		return types.ErrOwnerAttached
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.ownerToken)) != 1 {
		return types.ErrInvalidOwnerKey
	}
	if s.pin != "" && subtle.ConstantTimeCompare([]byte(pin), []byte(s.pin)) != 1 {
		return types.ErrInvalidPIN
	}
	s.owner = connID
	return nil
}

// DetachOwner leaves the session ownerless
func (s *Session) DetachOwner() { s.owner = "" }

// Text returns the shared text
func (s *Session) Text() string { return s.text }

// SetText replaces the shared text
func (s *Session) SetText(text string) { s.text = text }

// SetSettings replaces the settings object wholesale
func (s *Session) SetSettings(settings json.RawMessage) { s.settings = settings }

// ReleaseTasks replaces the task list and marks it available
func (s *Session) ReleaseTasks(tasks json.RawMessage) {
	s.tasks = tasks
	s.tasksAvailable = true
}

// SetSimplification toggles the simplification flag
func (s *Session) SetSimplification(enabled bool) { s.simplification = enabled }

// SimplificationEnabled reports the simplification flag
func (s *Session) SimplificationEnabled() bool { return s.simplification }

// Join adds connID as a participant and allocates its anonymous identity.
// A connection that already joined keeps its identity; existing reports true.
func (s *Session) Join(connID, name string, now time.Time) (p types.Participant, existing bool) {
	if current, ok := s.participants[connID]; ok {
		return *current, true
	}

	used := make(map[int]bool, len(s.participants))
	for _, other := range s.participants {
		used[other.Identity.Index] = true
	}

	participant := &types.Participant{
		ConnectionID: connID,
		JoinedAt:     now,
		Name:         name,
		Identity:     identity.Allocate(used, len(s.participants), s.intn),
	}
	s.participants[connID] = participant
	return *participant, false
}

// Leave removes connID and everything the session remembered about it
func (s *Session) Leave(connID string) bool {
	if _, ok := s.participants[connID]; !ok {
		return false
	}
	delete(s.participants, connID)
	delete(s.translations, connID)
	delete(s.levels, connID)
	return true
}

// Participant returns the participant record for connID
func (s *Session) Participant(connID string) (types.Participant, bool) {
	p, ok := s.participants[connID]
	if !ok {
		return types.Participant{}, false
	}
	return *p, true
}

// ParticipantCount returns the number of joined participants
func (s *Session) ParticipantCount() int { return len(s.participants) }

// Participants returns participants ordered by join time
func (s *Session) Participants() []types.Participant {
	out := make([]types.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].Identity.Index < out[j].Identity.Index
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// RequestTranslation records a new pending request, replacing any earlier one
func (s *Session) RequestTranslation(connID, language string, now time.Time) (types.TranslationRequest, error) {
	p, ok := s.participants[connID]
	if !ok {
		return types.TranslationRequest{}, types.ErrNotParticipant
	}
	if language == "" {
		return types.TranslationRequest{}, types.ErrInvalidLanguage
	}

	req := &types.TranslationRequest{
		ID:           uuid.NewString(),
		Language:     language,
		LanguageName: types.LanguageName(language),
		Status:       types.TranslationPending,
		AnonymousID:  p.Identity.AnonymousID(),
		RequestedAt:  now,
	}
	s.translations[connID] = req
	return *req, nil
}

// TranslationRequest returns the remembered request for connID
func (s *Session) TranslationRequest(connID string) (types.TranslationRequest, bool) {
	req, ok := s.translations[connID]
	if !ok {
		return types.TranslationRequest{}, false
	}
	return *req, true
}

// PendingTranslation returns the request for connID only if it is still pending
func (s *Session) PendingTranslation(connID string) (types.TranslationRequest, error) {
	req, ok := s.translations[connID]
	if !ok {
		return types.TranslationRequest{}, types.ErrTranslationNotFound
	}
	if req.Status != types.TranslationPending {
		return types.TranslationRequest{}, types.ErrTranslationResolved
	}
	return *req, nil
}

// ResolveTranslation moves a pending request to its terminal status.
// TECHNICAL DISCOVERY: requestID pins the transition to the request that was read
// before the provider call. If the participant re-requested meanwhile, the newer
// request stays pending and this resolution is rejected.
func (s *Session) ResolveTranslation(connID, requestID, status string, translated *string) (types.TranslationRequest, error) {
	req, ok := s.translations[connID]
	if !ok || (requestID != "" && req.ID != requestID) {
		return types.TranslationRequest{}, types.ErrTranslationNotFound
	}
	if req.Status != types.TranslationPending {
		return types.TranslationRequest{}, types.ErrTranslationResolved
	}
	req.Status = status
	req.TranslatedText = translated
	return *req, nil
}

// PendingTranslations lists unresolved requests for the owner dashboard
func (s *Session) PendingTranslations() map[string]types.TranslationRequest {
	out := make(map[string]types.TranslationRequest)
	for connID, req := range s.translations {
		if req.Status == types.TranslationPending {
			out[connID] = *req
		}
	}
	return out
}

// ReportLevel records the reading level a participant is using
func (s *Session) ReportLevel(connID, level string, now time.Time) (types.LevelReport, error) {
	if !types.IsValidReadingLevel(level) {
		return types.LevelReport{}, types.ErrInvalidLevel
	}
	p, ok := s.participants[connID]
	if !ok {
		return types.LevelReport{}, types.ErrNotParticipant
	}
	report := types.LevelReport{
		Level:       level,
		AnonymousID: p.Identity.AnonymousID(),
		ReportedAt:  now,
	}
	s.levels[connID] = report
	return report, nil
}

// Levels returns the current level reports keyed by connection id
func (s *Session) Levels() map[string]types.LevelReport {
	out := make(map[string]types.LevelReport, len(s.levels))
	for k, v := range s.levels {
		out[k] = v
	}
	return out
}

// Snapshot returns the state a late joiner needs. Tasks are withheld until released.
func (s *Session) Snapshot() types.Snapshot {
	tasks := json.RawMessage("[]")
	if s.tasksAvailable {
		tasks = cloneRaw(s.tasks)
	}
	return types.Snapshot{
		Code:                  s.code,
		Text:                  s.text,
		Settings:              cloneRaw(s.settings),
		TasksAvailable:        s.tasksAvailable,
		Tasks:                 tasks,
		SimplificationEnabled: s.simplification,
	}
}

// Status returns the public summary
func (s *Session) Status() types.Status {
	return types.Status{
		Code:         s.code,
		StudentCount: len(s.participants),
		Created:      s.created,
		Expires:      s.expires,
		HasText:      s.text != "",
		HasOwner:     s.owner != "",
		HasPIN:       s.pin != "",
	}
}

// PublicSettings returns provider choices with key material reduced to flags
func (s *Session) PublicSettings() types.PublicSettings {
	return s.creds.Public()
}

// Credentials returns the secret bundle. Only the provider proxy path should call this.
func (s *Session) Credentials() types.Credentials {
	return s.creds
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
