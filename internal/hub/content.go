package hub

import (
	"encoding/json"

	"readingroom/internal/session"
	"readingroom/pkg/types"
)

// UpdateText replaces the shared text and broadcasts it to the room
func (h *Hub) UpdateText(connID, code, text string) error {
	if err := types.ValidateText(text); err != nil {
		return err
	}
	return h.ownerUpdate(connID, code, func(s *session.Session) {
		s.SetText(text)
		h.broadcast(s.Code(), types.EventTextUpdated, textPayload{Text: text})
	})
}

// UpdateSettings replaces the settings object wholesale
func (h *Hub) UpdateSettings(connID, code string, raw json.RawMessage) error {
	settings, err := types.ValidateSettings(raw)
	if err != nil {
		return err
	}
	return h.ownerUpdate(connID, code, func(s *session.Session) {
		s.SetSettings(settings)
		h.broadcast(s.Code(), types.EventSettingsUpdated, settingsPayload{Settings: settings})
	})
}

// ReleaseTasks replaces the task list and makes it visible to participants
func (h *Hub) ReleaseTasks(connID, code string, raw json.RawMessage) error {
	tasks, count, err := types.ValidateTasks(raw)
	if err != nil {
		return err
	}
	return h.ownerUpdate(connID, code, func(s *session.Session) {
		s.ReleaseTasks(tasks)
		h.broadcast(s.Code(), types.EventTasksReleased, tasksPayload{Tasks: tasks})
		h.logger.Infow("tasks released", "code", s.Code(), "tasks", count)
	})
}

// ToggleSimplification switches AI simplification for the whole session
func (h *Hub) ToggleSimplification(connID, code string, enabled bool) error {
	return h.ownerUpdate(connID, code, func(s *session.Session) {
		s.SetSimplification(enabled)
		h.broadcast(s.Code(), types.EventSimplificationChanged, simplificationPayload{Enabled: enabled})
	})
}

// ReportLevel records the reading level a participant switched to and tells the owner
func (h *Hub) ReportLevel(connID, code, level string) error {
	return h.sessions.Update(code, func(s *session.Session) error {
		report, err := s.ReportLevel(connID, level, h.now())
		if err != nil {
			return err
		}
		h.send(s.Owner(), types.EventStudentLevelUpdate, levelUpdatePayload{
			StudentSID:  connID,
			AnonymousID: report.AnonymousID,
			Level:       report.Level,
		})
		return nil
	})
}

// ownerUpdate is the ownership gate for session-wide mutations.
// FUNCTIONAL DISCOVERY: The owner check and the mutation share one critical section,
// so a rejected caller causes no state change and no broadcast.
func (h *Hub) ownerUpdate(connID, code string, apply func(s *session.Session)) error {
	return h.sessions.Update(code, func(s *session.Session) error {
		if err := s.RequireOwner(connID); err != nil {
			h.logger.Warnw("owner-only action rejected", "code", s.Code(), "connection", connID)
			return err
		}
		apply(s)
		return nil
	})
}
