package types

import (
	"errors"
	"fmt"
)

// ARCHITECTURAL DISCOVERY: Four outcome categories cover every failure a caller can see.
// Specific errors wrap a category so boundaries map them with errors.Is, never by string.
var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrUnprocessable   = errors.New("unprocessable")
	ErrUpstream        = errors.New("upstream failure")
	ErrUpstreamTimeout = fmt.Errorf("%w: provider timed out", ErrUpstream)
)

// Session errors
var (
	ErrSessionNotFound = fmt.Errorf("%w: session not found or expired", ErrNotFound)
	ErrNotOwner        = fmt.Errorf("%w: connection is not the session owner", ErrUnauthorized)
	ErrInvalidPIN      = fmt.Errorf("%w: invalid session PIN", ErrUnauthorized)
	ErrOwnerAttached   = fmt.Errorf("%w: session already has an owner", ErrUnauthorized)
	ErrInvalidOwnerKey = fmt.Errorf("%w: invalid owner token", ErrUnauthorized)
	ErrParticipantOwn  = fmt.Errorf("%w: a participant cannot become the owner", ErrUnauthorized)
	ErrNotParticipant  = fmt.Errorf("%w: connection has not joined this session", ErrNotFound)
)

// Request validation errors
var (
	ErrMissingSynthesisKey = fmt.Errorf("%w: synthesis provider key is required", ErrUnprocessable)
	ErrMissingAIKey        = fmt.Errorf("%w: no AI provider key configured", ErrUnprocessable)
	ErrInvalidCode         = fmt.Errorf("%w: session code must be 6 characters", ErrUnprocessable)
	ErrInvalidPayload      = fmt.Errorf("%w: malformed request payload", ErrUnprocessable)
	ErrUnknownEvent        = fmt.Errorf("%w: unknown event", ErrUnprocessable)
	ErrEmptyText           = fmt.Errorf("%w: text is required", ErrUnprocessable)
	ErrTextTooLarge        = fmt.Errorf("%w: text exceeds size limit", ErrUnprocessable)
	ErrInvalidLevel        = fmt.Errorf("%w: unsupported reading level", ErrUnprocessable)
	ErrInvalidLanguage     = fmt.Errorf("%w: unsupported language", ErrUnprocessable)
	ErrInvalidSettings     = fmt.Errorf("%w: settings must be a JSON object", ErrUnprocessable)
	ErrInvalidTasks        = fmt.Errorf("%w: tasks must be a JSON array", ErrUnprocessable)
	ErrInvalidWord         = fmt.Errorf("%w: word is required", ErrUnprocessable)
	ErrEmptyMedia          = fmt.Errorf("%w: audio or image data is required", ErrUnprocessable)
	ErrMediaTooLarge       = fmt.Errorf("%w: audio or image exceeds size limit", ErrUnprocessable)
	ErrAudioTooShort       = fmt.Errorf("%w: recording is too short", ErrUnprocessable)
	ErrUnsupportedMedia    = fmt.Errorf("%w: unsupported media type", ErrUnprocessable)
	ErrNoTextRecognized    = fmt.Errorf("%w: no text recognized in image", ErrUnprocessable)
)

// Translation workflow errors
var (
	ErrTranslationNotFound = fmt.Errorf("%w: no translation request for participant", ErrNotFound)
	ErrTranslationResolved = fmt.Errorf("%w: translation request already resolved", ErrUnprocessable)
	ErrSimplifyDisabled    = fmt.Errorf("%w: simplification is not enabled for this session", ErrForbidden)
)

// ErrRateLimited is returned when a connection sends faster than its allowance
var ErrRateLimited = errors.New("rate limit exceeded")

// Error kinds carried in error event payloads and HTTP error bodies
const (
	KindNotFound        = "not_found"
	KindUnauthorized    = "unauthorized"
	KindForbidden       = "forbidden"
	KindUnprocessable   = "unprocessable"
	KindUpstream        = "upstream_failure"
	KindUpstreamTimeout = "upstream_timeout"
	KindRateLimited     = "rate_limited"
	KindInternal        = "internal"
)

// ErrorKind maps an error onto its category name
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrUnprocessable):
		return KindUnprocessable
	case errors.Is(err, ErrUpstreamTimeout):
		return KindUpstreamTimeout
	case errors.Is(err, ErrUpstream):
		return KindUpstream
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	default:
		return KindInternal
	}
}
