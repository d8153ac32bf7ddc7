package hub

import (
	"context"
	"errors"

	"readingroom/internal/proxy"
	"readingroom/internal/session"
	"readingroom/pkg/types"
)

const noTranslationMessage = "Your teacher approved the request, but no translation service is configured"

// RequestTranslation records a participant's translation request and tells the owner
func (h *Hub) RequestTranslation(connID, code, language string) error {
	return h.sessions.Update(code, func(s *session.Session) error {
		req, err := s.RequestTranslation(connID, language, h.now())
		if err != nil {
			return err
		}
		h.send(connID, types.EventTranslationRequestSent, translationRequestSentPayload{
			Language:     req.Language,
			LanguageName: req.LanguageName,
		})
		h.send(s.Owner(), types.EventTranslationRequestReceived, translationRequestReceivedPayload{
			StudentSID:   connID,
			AnonymousID:  req.AnonymousID,
			Language:     req.Language,
			LanguageName: req.LanguageName,
		})
		return nil
	})
}

// ApproveTranslation resolves a pending request, translating the shared text when an
// AI provider is configured.
// ARCHITECTURAL DISCOVERY: Lock, read, unlock, call, lock, record. The provider call
// runs with no lock held. The request id read in the first phase pins the second
// phase, so a request replaced or withdrawn meanwhile discards the result.
func (h *Hub) ApproveTranslation(ctx context.Context, connID, code, studentID, layout string) error {
	if layout == "" {
		layout = types.DefaultLayout
	}

	var (
		pending types.TranslationRequest
		text    string
		hasAI   bool
	)
	err := h.sessions.Update(code, func(s *session.Session) error {
		if err := s.RequireOwner(connID); err != nil {
			return err
		}
		req, err := s.PendingTranslation(studentID)
		if err != nil {
			return err
		}
		pending, text, hasAI = req, s.Text(), s.Credentials().HasAI()
		return nil
	})
	if err != nil {
		return err
	}

	if !hasAI {
		return h.resolveApproval(connID, code, studentID, pending, types.TranslationApprovedNoTranslation, nil, layout)
	}

	translated, err := h.translator.Translate(ctx, proxy.TranslationInput{
		Code:   code,
		Text:   text,
		Target: pending.Language,
	})
	if err != nil {
		h.logger.Warnw("translation for approval failed", "code", code, "language", pending.Language, "error", err)
		return err
	}
	return h.resolveApproval(connID, code, studentID, pending, types.TranslationApproved, &translated, layout)
}

func (h *Hub) resolveApproval(connID, code, studentID string, pending types.TranslationRequest, status string, translated *string, layout string) error {
	err := h.sessions.Update(code, func(s *session.Session) error {
		if err := s.RequireOwner(connID); err != nil {
			return err
		}
		req, err := s.ResolveTranslation(studentID, pending.ID, status, translated)
		if err != nil {
			return err
		}

		payload := translationApprovedPayload{
			Language:       req.Language,
			LanguageName:   req.LanguageName,
			TranslatedText: req.TranslatedText,
			Layout:         layout,
		}
		if status == types.TranslationApprovedNoTranslation {
			payload.Message = noTranslationMessage
		}
		h.send(studentID, types.EventTranslationApproved, payload)
		h.send(connID, types.EventTranslationSent, translationSentPayload{
			StudentSID:  studentID,
			AnonymousID: req.AnonymousID,
			Success:     true,
		})
		return nil
	})
	if errors.Is(err, types.ErrTranslationNotFound) {
		h.logger.Infow("translation result discarded, request was replaced or withdrawn", "code", code)
	}
	return err
}

// DenyTranslation rejects a pending request and tells the requester
func (h *Hub) DenyTranslation(connID, code, studentID string) error {
	return h.sessions.Update(code, func(s *session.Session) error {
		if err := s.RequireOwner(connID); err != nil {
			return err
		}
		req, err := s.ResolveTranslation(studentID, "", types.TranslationDenied, nil)
		if err != nil {
			return err
		}
		h.send(studentID, types.EventTranslationDenied, messagePayload{Message: "Your teacher declined the translation request"})
		h.send(connID, types.EventTranslationRequestRemoved, translationRemovedPayload{
			StudentSID:  studentID,
			AnonymousID: req.AnonymousID,
		})
		return nil
	})
}
