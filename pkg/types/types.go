package types

import (
	"encoding/json"
	"time"
)

// ARCHITECTURAL DISCOVERY: Event names are the wire contract shared by the browser
// clients and every server component, so they live in one place
const (
	// Inbound events (client -> server)
	EventTeacherCreateSession      = "teacher_create_session"
	EventTeacherJoinSession        = "teacher_join_session"
	EventTeacherEndSession         = "teacher_end_session"
	EventTeacherUpdateText         = "teacher_update_text"
	EventTeacherUpdateSettings     = "teacher_update_settings"
	EventTeacherReleaseTasks       = "teacher_release_tasks"
	EventTeacherApproveTranslation = "teacher_approve_translation"
	EventTeacherDenyTranslation    = "teacher_deny_translation"
	EventTeacherToggleSimplify     = "teacher_toggle_simplification"
	EventStudentJoinSession        = "student_join_session"
	EventStudentLeaveSession       = "student_leave_session"
	EventStudentRequestTranslation = "student_request_translation"
	EventStudentUsingSimplified    = "student_using_simplified"

	// Outbound events (server -> client)
	EventConnected                  = "connected"
	EventSessionCreated             = "session_created"
	EventTeacherJoined              = "teacher_joined"
	EventJoinSuccess                = "join_success"
	EventJoinError                  = "join_error"
	EventStudentJoined              = "student_joined"
	EventStudentLeft                = "student_left"
	EventSessionEnded               = "session_ended"
	EventSessionEndedConfirmed      = "session_ended_confirmed"
	EventSessionError               = "session_error"
	EventTextUpdated                = "text_updated"
	EventSettingsUpdated            = "settings_updated"
	EventTasksReleased              = "tasks_released"
	EventTranslationRequestSent     = "translation_request_sent"
	EventTranslationRequestReceived = "translation_request_received"
	EventTranslationApproved        = "translation_approved"
	EventTranslationSent            = "translation_sent"
	EventTranslationDenied          = "translation_denied"
	EventTranslationRequestRemoved  = "translation_request_removed"
	EventTranslationError           = "translation_error"
	EventSimplificationChanged      = "simplification_status_changed"
	EventStudentLevelUpdate         = "student_level_update"
)

// Translation request states
const (
	TranslationPending               = "pending"
	TranslationApproved              = "approved"
	TranslationApprovedNoTranslation = "approved_no_translation"
	TranslationDenied                = "denied"
)

// Defaults applied to credential bundles that omit them
const (
	DefaultAIProvider  = "openai"
	DefaultVoiceID     = "21m00Tcm4TlvDq8ikWAM"
	DefaultSTTProvider = "browser"
	DefaultLayout      = "side-by-side"

	// SourceLanguage is the classroom language texts are written in
	SourceLanguage = "de"
)

// LanguageNames maps supported translation targets to their German display names
var LanguageNames = map[string]string{
	"tr": "Türkisch",
	"bg": "Bulgarisch",
	"de": "Deutsch",
	"ar": "Arabisch",
	"uk": "Ukrainisch",
	"en": "Englisch",
}

// ReadingLevels lists the levels a participant may report. "original" means unsimplified.
var ReadingLevels = []string{"original", "A1", "A2", "B1"}

// SimplifyLevels lists the levels a simplification may target
var SimplifyLevels = []string{"A1", "A2", "B1"}

// Credentials is the provider bundle a teacher hands over at session creation.
// FUNCTIONAL DISCOVERY: Keys stay server-side. json:"-" keeps them out of every
// marshalled payload even if a Credentials value is embedded by mistake.
type Credentials struct {
	SynthesisKey string `json:"-"`
	AIKey        string `json:"-"`
	AIProvider   string `json:"ai_provider"`
	VoiceID      string `json:"voice_id"`
	STTProvider  string `json:"stt_provider"`
}

// CreateSessionRequest is the inbound shape for session creation over HTTP and websocket
type CreateSessionRequest struct {
	SynthesisKey string `json:"elevenlabs_key"`
	AIKey        string `json:"ai_key"`
	AIProvider   string `json:"ai_provider"`
	VoiceID      string `json:"voice_id"`
	STTProvider  string `json:"stt_provider"`
	PIN          string `json:"pin"`
}

// Credentials extracts the credential bundle with defaults applied
func (r *CreateSessionRequest) Credentials() Credentials {
	return Credentials{
		SynthesisKey: r.SynthesisKey,
		AIKey:        r.AIKey,
		AIProvider:   r.AIProvider,
		VoiceID:      r.VoiceID,
		STTProvider:  r.STTProvider,
	}.WithDefaults()
}

// Identity is the anonymous emoji + label pair shown to peers instead of a name
type Identity struct {
	Index int    `json:"animal_index"`
	Emoji string `json:"animal_emoji"`
	Label string `json:"animal_name"`
}

// AnonymousID renders the identity the way clients display it
func (i Identity) AnonymousID() string {
	return i.Emoji + " " + i.Label
}

// Participant is a connected student inside one session
type Participant struct {
	ConnectionID string    `json:"student_sid"`
	JoinedAt     time.Time `json:"joined_at"`
	Name         string    `json:"name,omitempty"`
	Identity     Identity  `json:"identity"`
}

// TranslationRequest is the single remembered request of one participant
type TranslationRequest struct {
	ID             string    `json:"id"`
	Language       string    `json:"language"`
	LanguageName   string    `json:"language_name"`
	Status         string    `json:"status"`
	AnonymousID    string    `json:"anonymous_id"`
	RequestedAt    time.Time `json:"requested_at"`
	TranslatedText *string   `json:"translated_text,omitempty"`
}

// LevelReport records which reading level a participant is currently using
type LevelReport struct {
	Level       string    `json:"level"`
	AnonymousID string    `json:"anonymous_id"`
	ReportedAt  time.Time `json:"timestamp"`
}

// Snapshot is the state a joining participant needs to render without prior broadcasts
type Snapshot struct {
	Code                  string          `json:"code"`
	Text                  string          `json:"text"`
	Settings              json.RawMessage `json:"settings"`
	TasksAvailable        bool            `json:"tasks_available"`
	Tasks                 json.RawMessage `json:"tasks"`
	SimplificationEnabled bool            `json:"simplification_enabled"`
}

// Status is the public, credential-free summary of a session
type Status struct {
	Code         string    `json:"code"`
	StudentCount int       `json:"student_count"`
	Created      time.Time `json:"created"`
	Expires      time.Time `json:"expires"`
	HasText      bool      `json:"has_text"`
	HasOwner     bool      `json:"has_owner"`
	HasPIN       bool      `json:"has_pin"`
}

// PublicSettings exposes the provider choices a client needs without any key material
type PublicSettings struct {
	STTProvider  string `json:"stt_provider"`
	VoiceID      string `json:"voice_id"`
	HasSynthesis bool   `json:"has_elevenlabs"`
	HasAI        bool   `json:"has_ai"`
}

// Envelope is one inbound websocket frame
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Event is one outbound websocket frame
type Event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// NewEvent builds an outbound frame
func NewEvent(name string, data interface{}) Event {
	return Event{Event: name, Data: data}
}

// ErrorPayload is the body of join_error, translation_error and session_error events
type ErrorPayload struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// ActivityEvent is one row of the session lifecycle log. It carries counts only.
type ActivityEvent struct {
	ID           int64     `json:"id"`
	Code         string    `json:"code"`
	Kind         string    `json:"event"`
	Participants int       `json:"participants"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// WordInfo explains one word of the shared text. Details is the provider's JSON
// object and is absent when the session has no AI key.
type WordInfo struct {
	Word         string          `json:"word"`
	OriginalWord string          `json:"original_word"`
	Available    bool            `json:"available"`
	Details      json.RawMessage `json:"details,omitempty"`
}

// Activity kinds
const (
	ActivityCreated = "created"
	ActivityEnded   = "ended"
	ActivityExpired = "expired"
	ActivityJoined  = "joined"
	ActivityLeft    = "left"
)
