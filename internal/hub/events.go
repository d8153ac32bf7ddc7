package hub

import (
	"encoding/json"
	"time"

	"readingroom/pkg/types"
)

// Outbound payloads. Field names are the browser clients' wire contract.

type sessionCreatedPayload struct {
	Code       string    `json:"code"`
	Expires    time.Time `json:"expires"`
	HasPIN     bool      `json:"has_pin"`
	OwnerToken string    `json:"owner_token"`
}

type teacherJoinedPayload struct {
	types.Snapshot
	StudentCount        int                                 `json:"student_count"`
	Students            []studentSummary                    `json:"students"`
	PendingTranslations map[string]types.TranslationRequest `json:"pending_translations"`
	Levels              map[string]types.LevelReport        `json:"levels"`
	Expires             time.Time                           `json:"expires"`
}

type studentSummary struct {
	StudentSID  string `json:"student_sid"`
	AnonymousID string `json:"anonymous_id"`
}

type joinSuccessPayload struct {
	types.Snapshot
	AnonymousID string `json:"anonymous_id"`
	AnimalEmoji string `json:"animal_emoji"`
	AnimalName  string `json:"animal_name"`
	// Translation is the participant's own request, restored on rejoin
	Translation *types.TranslationRequest `json:"translation_request,omitempty"`
}

type studentJoinedPayload struct {
	Count       int    `json:"count"`
	Name        string `json:"name,omitempty"`
	AnonymousID string `json:"anonymous_id"`
	StudentSID  string `json:"student_sid"`
}

type studentLeftPayload struct {
	Count       int    `json:"count"`
	AnonymousID string `json:"anonymous_id,omitempty"`
	StudentSID  string `json:"student_sid,omitempty"`
}

type messagePayload struct {
	Message string `json:"message"`
}

type successPayload struct {
	Success bool `json:"success"`
}

type textPayload struct {
	Text string `json:"text"`
}

type settingsPayload struct {
	Settings json.RawMessage `json:"settings"`
}

type tasksPayload struct {
	Tasks json.RawMessage `json:"tasks"`
}

type simplificationPayload struct {
	Enabled bool `json:"enabled"`
}

type translationRequestSentPayload struct {
	Language     string `json:"language"`
	LanguageName string `json:"language_name"`
}

type translationRequestReceivedPayload struct {
	StudentSID   string `json:"student_sid"`
	AnonymousID  string `json:"anonymous_id"`
	Language     string `json:"language"`
	LanguageName string `json:"language_name"`
}

// translationApprovedPayload keeps translated_text as an explicit null when no
// AI provider is configured
type translationApprovedPayload struct {
	Language       string  `json:"language"`
	LanguageName   string  `json:"language_name"`
	TranslatedText *string `json:"translated_text"`
	Layout         string  `json:"layout"`
	Message        string  `json:"message,omitempty"`
}

type translationSentPayload struct {
	StudentSID  string `json:"student_sid"`
	AnonymousID string `json:"anonymous_id"`
	Success     bool   `json:"success"`
}

type translationRemovedPayload struct {
	StudentSID  string `json:"student_sid"`
	AnonymousID string `json:"anonymous_id"`
}

type levelUpdatePayload struct {
	StudentSID  string `json:"student_sid"`
	AnonymousID string `json:"anonymous_id"`
	Level       string `json:"level"`
}
