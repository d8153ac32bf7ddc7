package router

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"readingroom/internal/hub"
	"readingroom/pkg/interfaces"
	"readingroom/pkg/types"
)

// Inbound payloads

type codePayload struct {
	Code string `json:"code"`
}

type attachPayload struct {
	Code       string `json:"code"`
	PIN        string `json:"pin"`
	OwnerToken string `json:"owner_token"`
}

type joinPayload struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type textPayload struct {
	Code string `json:"code"`
	Text string `json:"text"`
}

type settingsPayload struct {
	Code     string          `json:"code"`
	Settings json.RawMessage `json:"settings"`
}

type tasksPayload struct {
	Code  string          `json:"code"`
	Tasks json.RawMessage `json:"tasks"`
}

type togglePayload struct {
	Code    string `json:"code"`
	Enabled bool   `json:"enabled"`
}

type translationRequestPayload struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

type translationDecisionPayload struct {
	Code       string `json:"code"`
	StudentSID string `json:"student_sid"`
	Layout     string `json:"layout"`
}

type levelPayload struct {
	Code  string `json:"code"`
	Level string `json:"level"`
}

// Router decodes inbound frames, applies the per-connection allowance and
// dispatches each event to the hub.
// ARCHITECTURAL DISCOVERY: The router never touches session state directly; it
// only translates wire frames into hub calls and hub errors into error events.
type Router struct {
	hub      *hub.Hub
	limiter  *RateLimiter
	logger   *zap.SugaredLogger
	inflight sync.WaitGroup
}

// NewRouter creates a router in front of h
func NewRouter(h *hub.Hub, limiter *RateLimiter, logger *zap.SugaredLogger) *Router {
	if limiter == nil {
		limiter = NewRateLimiter(DefaultEventsPerMinute, DefaultBurst)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Router{hub: h, limiter: limiter, logger: logger}
}

// Dispatch handles one inbound frame from conn
func (r *Router) Dispatch(ctx context.Context, conn interfaces.Connection, data []byte) {
	var env types.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		r.replyError(conn, types.EventSessionError, types.ErrInvalidPayload)
		return
	}
	if env.Event == "" {
		r.replyError(conn, types.EventSessionError, ErrMissingEvent)
		return
	}
	if !r.limiter.Allow(conn.ID()) {
		r.replyError(conn, errorEventFor(env.Event), ErrRateLimitExceeded)
		return
	}

	// TECHNICAL DISCOVERY: Approval waits on the translation provider for up to its
	// full timeout. It runs beside the read pump so the owner's other events and
	// heartbeats keep flowing while it is in flight.
	if env.Event == types.EventTeacherApproveTranslation {
		r.inflight.Add(1)
		go func() {
			defer r.inflight.Done()
			r.handle(ctx, conn, env)
		}()
		return
	}
	r.handle(ctx, conn, env)
}

func (r *Router) handle(ctx context.Context, conn interfaces.Connection, env types.Envelope) {
	if err := r.route(ctx, conn.ID(), env); err != nil {
		r.logger.Debugw("event rejected", "event", env.Event, "connection", conn.ID(), "error", err)
		r.replyError(conn, errorEventFor(env.Event), err)
	}
}

// Wait blocks until every approval dispatched off the read pump has finished
func (r *Router) Wait() {
	r.inflight.Wait()
}

// Disconnect forgets the connection's allowance and cleans up its sessions
func (r *Router) Disconnect(conn interfaces.Connection) {
	r.limiter.Forget(conn.ID())
	r.hub.Disconnect(conn.ID())
}

// StartCleanup prunes idle limiter entries until ctx ends
func (r *Router) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if removed := r.limiter.Cleanup(); removed > 0 {
					r.logger.Debugw("rate limiter pruned idle connections", "removed", removed)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (r *Router) route(ctx context.Context, connID string, env types.Envelope) error {
	switch env.Event {
	case types.EventTeacherCreateSession:
		var p types.CreateSessionRequest
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		_, err := r.hub.CreateSession(connID, p)
		return err

	case types.EventTeacherJoinSession:
		var p attachPayload
		if err := decodeWithCode(env.Data, &p, &p.Code); err != nil {
			return err
		}
		return r.hub.AttachOwner(connID, p.Code, p.PIN, p.OwnerToken)

	case types.EventStudentJoinSession:
		var p joinPayload
		if err := decodeWithCode(env.Data, &p, &p.Code); err != nil {
			return err
		}
		return r.hub.JoinSession(connID, p.Code, strings.TrimSpace(p.Name))

	case types.EventStudentLeaveSession:
		var p codePayload
		if err := decodeWithCode(env.Data, &p, &p.Code); err != nil {
			return err
		}
		return r.hub.LeaveSession(connID, p.Code)

	case types.EventTeacherEndSession:
		var p codePayload
		if err := decodeWithCode(env.Data, &p, &p.Code); err != nil {
			return err
		}
		return r.hub.EndSession(connID, p.Code)

	case types.EventTeacherUpdateText:
		var p textPayload
		if err := decodeWithCode(env.Data, &p, &p.Code); err != nil {
			return err
		}
		return r.hub.UpdateText(connID, p.Code, p.Text)

	case types.EventTeacherUpdateSettings:
		var p settingsPayload
		if err := decodeWithCode(env.Data, &p, &p.Code); err != nil {
			return err
		}
		return r.hub.UpdateSettings(connID, p.Code, p.Settings)

	case types.EventTeacherReleaseTasks:
		var p tasksPayload
		if err := decodeWithCode(env.Data, &p, &p.Code); err != nil {
			return err
		}
		return r.hub.ReleaseTasks(connID, p.Code, p.Tasks)

	case types.EventTeacherToggleSimplify:
		var p togglePayload
		if err := decodeWithCode(env.Data, &p, &p.Code); err != nil {
			return err
		}
		return r.hub.ToggleSimplification(connID, p.Code, p.Enabled)

	case types.EventStudentRequestTranslation:
		var p translationRequestPayload
		if err := decodeWithCode(env.Data, &p, &p.Code); err != nil {
			return err
		}
		return r.hub.RequestTranslation(connID, p.Code, strings.TrimSpace(p.Language))

	case types.EventTeacherApproveTranslation:
		var p translationDecisionPayload
		if err := decodeWithCode(env.Data, &p, &p.Code); err != nil {
			return err
		}
		return r.hub.ApproveTranslation(ctx, connID, p.Code, p.StudentSID, p.Layout)

	case types.EventTeacherDenyTranslation:
		var p translationDecisionPayload
		if err := decodeWithCode(env.Data, &p, &p.Code); err != nil {
			return err
		}
		return r.hub.DenyTranslation(connID, p.Code, p.StudentSID)

	case types.EventStudentUsingSimplified:
		var p levelPayload
		if err := decodeWithCode(env.Data, &p, &p.Code); err != nil {
			return err
		}
		return r.hub.ReportLevel(connID, p.Code, p.Level)

	default:
		return types.ErrUnknownEvent
	}
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return types.ErrInvalidPayload
	}
	if err := json.Unmarshal(data, v); err != nil {
		return types.ErrInvalidPayload
	}
	return nil
}

// decodeWithCode decodes v and normalizes the session code it carries
func decodeWithCode(data json.RawMessage, v interface{}, code *string) error {
	if err := decode(data, v); err != nil {
		return err
	}
	*code = types.NormalizeCode(*code)
	if !types.IsValidCode(*code) {
		return types.ErrInvalidCode
	}
	return nil
}

// errorEventFor picks the error event the client listens for after sending event
func errorEventFor(event string) string {
	switch event {
	case types.EventStudentJoinSession, types.EventTeacherJoinSession:
		return types.EventJoinError
	case types.EventStudentRequestTranslation, types.EventTeacherApproveTranslation, types.EventTeacherDenyTranslation:
		return types.EventTranslationError
	default:
		return types.EventSessionError
	}
}

// replyError sends a category-tagged error event. Internal errors are not echoed.
func (r *Router) replyError(conn interfaces.Connection, event string, err error) {
	kind := types.ErrorKind(err)
	message := err.Error()
	if kind == types.KindInternal {
		r.logger.Errorw("event handling failed", "connection", conn.ID(), "error", err)
		message = "internal error"
	}
	_ = conn.WriteJSON(types.NewEvent(event, types.ErrorPayload{Error: message, Kind: kind}))
}
