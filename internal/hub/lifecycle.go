package hub

import (
	"time"

	"readingroom/internal/session"
	"readingroom/pkg/types"
)

// CreateSession creates a session owned by connID and subscribes it to the room
func (h *Hub) CreateSession(connID string, req types.CreateSessionRequest) (string, error) {
	if _, ok := h.rooms.Get(connID); !ok {
		return "", ErrConnectionGone
	}
	grant, err := h.CreateDetached(req)
	if err != nil {
		return "", err
	}
	code := grant.Code

	err = h.sessions.Update(code, func(s *session.Session) error {
		if err := h.subscribe(s, connID); err != nil {
			return err
		}
		if err := s.AttachOwner(connID, req.PIN, grant.OwnerToken); err != nil {
			h.rooms.LeaveRoom(code, connID)
			return err
		}
		h.send(connID, types.EventSessionCreated, sessionCreatedPayload{
			Code:       s.Code(),
			Expires:    s.Expires(),
			HasPIN:     s.HasPIN(),
			OwnerToken: grant.OwnerToken,
		})
		return nil
	})
	if err != nil {
		// The creator vanished between create and attach; nobody else knows the code
		h.sessions.End(code)
		return "", err
	}
	return code, nil
}

// Grant is what the creator of a session learns. OwnerToken goes to the creator only.
type Grant struct {
	Code       string
	Expires    time.Time
	OwnerToken string
	HasPIN     bool
}

// CreateDetached creates an unowned session, for callers without a live connection.
// The owner attaches later with the code and the returned owner token.
func (h *Hub) CreateDetached(req types.CreateSessionRequest) (Grant, error) {
	creds := req.Credentials()
	if err := creds.Validate(); err != nil {
		return Grant{}, err
	}
	code, expires, err := h.sessions.Create(creds, req.PIN)
	if err != nil {
		h.logger.Errorw("session creation failed", "error", err)
		return Grant{}, err
	}
	grant := Grant{Code: code, Expires: expires, HasPIN: req.PIN != ""}
	if err := h.sessions.View(code, func(s *session.Session) { grant.OwnerToken = s.OwnerToken() }); err != nil {
		return Grant{}, err
	}
	h.record(code, types.ActivityCreated, 0)
	return grant, nil
}

// AttachOwner makes connID the owner of an existing session.
// FUNCTIONAL DISCOVERY: This is the only way back into an ownerless session. It
// needs the owner token issued at creation and, when one was set, the PIN.
// An attached owner is never displaced.
func (h *Hub) AttachOwner(connID, code, pin, token string) error {
	return h.sessions.Update(code, func(s *session.Session) error {
		if err := s.AttachOwner(connID, pin, token); err != nil {
			return err
		}
		if err := h.subscribe(s, connID); err != nil {
			s.DetachOwner()
			return err
		}

		participants := s.Participants()
		students := make([]studentSummary, 0, len(participants))
		for _, p := range participants {
			students = append(students, studentSummary{StudentSID: p.ConnectionID, AnonymousID: p.Identity.AnonymousID()})
		}
		h.send(connID, types.EventTeacherJoined, teacherJoinedPayload{
			Snapshot:            s.Snapshot(),
			StudentCount:        s.ParticipantCount(),
			Students:            students,
			PendingTranslations: s.PendingTranslations(),
			Levels:              s.Levels(),
			Expires:             s.Expires(),
		})
		h.logger.Infow("owner attached", "code", s.Code())
		return nil
	})
}

// JoinSession adds connID as an anonymous participant and hands it the current snapshot.
// Rejoining with the same connection keeps the identity and only resends the snapshot.
func (h *Hub) JoinSession(connID, code, name string) error {
	return h.sessions.Update(code, func(s *session.Session) error {
		if s.IsOwner(connID) {
			return types.ErrOwnerAttached
		}
		if err := h.subscribe(s, connID); err != nil {
			return err
		}

		p, existing := s.Join(connID, name, h.now())
		payload := joinSuccessPayload{
			Snapshot:    s.Snapshot(),
			AnonymousID: p.Identity.AnonymousID(),
			AnimalEmoji: p.Identity.Emoji,
			AnimalName:  p.Identity.Label,
		}
		if req, ok := s.TranslationRequest(connID); ok {
			payload.Translation = &req
		}
		h.send(connID, types.EventJoinSuccess, payload)
		if existing {
			return nil
		}

		h.send(s.Owner(), types.EventStudentJoined, studentJoinedPayload{
			Count:       s.ParticipantCount(),
			Name:        p.Name,
			AnonymousID: p.Identity.AnonymousID(),
			StudentSID:  connID,
		})
		h.record(s.Code(), types.ActivityJoined, s.ParticipantCount())
		return nil
	})
}

// LeaveSession removes connID from the session without closing the connection
func (h *Hub) LeaveSession(connID, code string) error {
	return h.sessions.Update(code, func(s *session.Session) error {
		p, ok := s.Participant(connID)
		if !ok {
			return types.ErrNotParticipant
		}
		s.Leave(connID)
		h.rooms.LeaveRoom(s.Code(), connID)
		h.notifyDeparture(s, p)
		return nil
	})
}

// Disconnect cleans up after a closed connection in every session it touched.
// FUNCTIONAL DISCOVERY: A departing owner leaves the session alive and ownerless;
// participants and content stay until TTL or an owner re-attaches.
func (h *Hub) Disconnect(connID string) {
	affected := h.sessions.Disconnect(connID, func(s *session.Session, wasOwner bool, departed *types.Participant) {
		if wasOwner {
			h.logger.Infow("owner disconnected, session left ownerless", "code", s.Code())
		}
		if departed != nil {
			h.notifyDeparture(s, *departed)
		}
	})
	if affected > 0 {
		h.logger.Debugw("connection removed from sessions", "connection", connID, "sessions", affected)
	}
}

// notifyDeparture tells the owner the new headcount. Caller holds the registry lock.
func (h *Hub) notifyDeparture(s *session.Session, p types.Participant) {
	h.send(s.Owner(), types.EventStudentLeft, studentLeftPayload{
		Count:       s.ParticipantCount(),
		AnonymousID: p.Identity.AnonymousID(),
		StudentSID:  p.ConnectionID,
	})
	h.record(s.Code(), types.ActivityLeft, s.ParticipantCount())
}

// EndSession terminates a session on behalf of its owner. Every subscriber gets
// exactly one session_ended, then the record and room are torn down.
func (h *Hub) EndSession(connID, code string) error {
	var participants int
	_, err := h.sessions.EndIf(code, func(s *session.Session) error {
		if err := s.RequireOwner(connID); err != nil {
			return err
		}
		participants = s.ParticipantCount()
		h.broadcast(s.Code(), types.EventSessionEnded, messagePayload{Message: "The teacher has ended the session"})
		h.rooms.CloseRoom(s.Code())
		return nil
	})
	if err != nil {
		return err
	}

	h.send(connID, types.EventSessionEndedConfirmed, successPayload{Success: true})
	h.record(types.NormalizeCode(code), types.ActivityEnded, participants)
	return nil
}

// subscribe adds connID to the session room. Caller holds the registry lock.
// TECHNICAL DISCOVERY: Subscribing before mutating means a connection that is
// already unregistered never becomes an owner or participant.
func (h *Hub) subscribe(s *session.Session, connID string) error {
	if err := h.rooms.JoinRoom(s.Code(), connID); err != nil {
		return ErrConnectionGone
	}
	return nil
}
