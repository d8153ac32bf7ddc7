package integration

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"readingroom/internal/config"
	"readingroom/pkg/types"
)

type createdPayload struct {
	Code       string `json:"code"`
	OwnerToken string `json:"owner_token"`
}

type errorPayload struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func createSession(t *testing.T, teacher *testClient, pin string) (string, string) {
	t.Helper()
	teacher.Send(types.EventTeacherCreateSession, map[string]string{
		"elevenlabs_key": "sk_secret_synthesis",
		"ai_key":         "ai_secret_translation",
		"pin":            pin,
	})
	var created createdPayload
	teacher.WaitFor(types.EventSessionCreated, &created)
	if !types.IsValidCode(created.Code) || created.OwnerToken == "" {
		t.Fatalf("session_created carried invalid grant %+v", created)
	}
	return created.Code, created.OwnerToken
}

func joinSession(t *testing.T, student *testClient, code, name string) string {
	t.Helper()
	student.Send(types.EventStudentJoinSession, map[string]string{"code": code, "name": name})
	var joined struct {
		AnonymousID string `json:"anonymous_id"`
	}
	student.WaitFor(types.EventJoinSuccess, &joined)
	if joined.AnonymousID == "" {
		t.Fatal("join_success carried no anonymous id")
	}
	return joined.AnonymousID
}

func TestClassroom_FullLesson(t *testing.T) {
	server := startServer(t, nil)
	teacher := connect(t, server)
	student := connect(t, server)

	code, token := createSession(t, teacher, "4711")
	anonymousID := joinSession(t, student, strings.ToLower(code), "Ada")

	var joined struct {
		Count       int    `json:"count"`
		AnonymousID string `json:"anonymous_id"`
		StudentSID  string `json:"student_sid"`
	}
	teacher.WaitFor(types.EventStudentJoined, &joined)
	if joined.Count != 1 || joined.AnonymousID != anonymousID || joined.StudentSID != student.id {
		t.Errorf("unexpected student_joined %+v", joined)
	}

	teacher.Send(types.EventTeacherUpdateText, map[string]string{"code": code, "text": "Hallo Welt"})
	var text struct {
		Text string `json:"text"`
	}
	student.WaitFor(types.EventTextUpdated, &text)
	if text.Text != "Hallo Welt" {
		t.Errorf("expected shared text, got %q", text.Text)
	}

	teacher.Send(types.EventTeacherReleaseTasks, map[string]interface{}{
		"code":  code,
		"tasks": []map[string]string{{"q": "Wer ist Ada?"}},
	})
	var tasks struct {
		Tasks json.RawMessage `json:"tasks"`
	}
	student.WaitFor(types.EventTasksReleased, &tasks)
	if !strings.Contains(string(tasks.Tasks), "Wer ist Ada?") {
		t.Errorf("released tasks missing, got %s", tasks.Tasks)
	}

	student.Send(types.EventStudentRequestTranslation, map[string]string{"code": code, "language": "tr"})
	student.WaitFor(types.EventTranslationRequestSent, nil)
	var request struct {
		StudentSID   string `json:"student_sid"`
		LanguageName string `json:"language_name"`
	}
	teacher.WaitFor(types.EventTranslationRequestReceived, &request)
	if request.StudentSID != student.id || request.LanguageName != "Türkisch" {
		t.Errorf("unexpected translation request %+v", request)
	}

	teacher.Send(types.EventTeacherApproveTranslation, map[string]string{
		"code":        code,
		"student_sid": request.StudentSID,
		"layout":      "side-by-side",
	})
	var approved struct {
		TranslatedText *string `json:"translated_text"`
		Layout         string  `json:"layout"`
	}
	student.WaitFor(types.EventTranslationApproved, &approved)
	if approved.TranslatedText == nil || *approved.TranslatedText != "[TR] Hallo Welt" {
		t.Errorf("unexpected translation %+v", approved)
	}
	if approved.Layout != "side-by-side" {
		t.Errorf("expected requested layout, got %q", approved.Layout)
	}
	teacher.WaitFor(types.EventTranslationSent, nil)

	teacher.Send(types.EventTeacherEndSession, map[string]string{"code": code})
	student.WaitFor(types.EventSessionEnded, nil)
	teacher.WaitFor(types.EventSessionEndedConfirmed, nil)

	if status := getJSON(t, server, "/api/session/status/"+code, nil); status != http.StatusNotFound {
		t.Errorf("ended session should be gone, got %d", status)
	}

	for _, client := range []*testClient{teacher, student} {
		transcript := client.Transcript()
		for _, secret := range []string{"sk_secret_synthesis", "ai_secret_translation", `"4711"`} {
			if strings.Contains(transcript, secret) {
				t.Errorf("websocket frames leaked %s", secret)
			}
		}
	}
	if strings.Contains(student.Transcript(), token) {
		t.Error("owner token reached a participant")
	}
}

func TestClassroom_OwnerGate(t *testing.T) {
	server := startServer(t, nil)
	teacher := connect(t, server)
	student := connect(t, server)

	code, _ := createSession(t, teacher, "")
	joinSession(t, student, code, "Ben")

	student.Send(types.EventTeacherUpdateText, map[string]string{"code": code, "text": "hijacked"})
	var rejected errorPayload
	student.WaitFor(types.EventSessionError, &rejected)
	if rejected.Kind != types.KindUnauthorized {
		t.Errorf("expected unauthorized, got %+v", rejected)
	}

	student.Send(types.EventTeacherEndSession, map[string]string{"code": code})
	student.WaitFor(types.EventSessionError, nil)

	var text struct {
		Text string `json:"text"`
	}
	getJSON(t, server, "/api/session/text/"+code, &text)
	if text.Text != "" {
		t.Errorf("non-owner mutation must not apply, text is %q", text.Text)
	}
	if status := getJSON(t, server, "/api/session/status/"+code, nil); status != http.StatusOK {
		t.Errorf("non-owner end must not delete the session, got %d", status)
	}
}

func TestClassroom_JoinUnknownSession(t *testing.T) {
	server := startServer(t, nil)
	student := connect(t, server)

	student.Send(types.EventStudentJoinSession, map[string]string{"code": "ZZZZZZ"})
	var failure errorPayload
	student.WaitFor(types.EventJoinError, &failure)
	if failure.Kind != types.KindNotFound {
		t.Errorf("expected not_found, got %+v", failure)
	}
}

func TestClassroom_DisconnectNotifiesOwner(t *testing.T) {
	server := startServer(t, nil)
	teacher := connect(t, server)
	student := connect(t, server)

	code, _ := createSession(t, teacher, "")
	joinSession(t, student, code, "Cem")
	teacher.WaitFor(types.EventStudentJoined, nil)

	student.Close()

	var left struct {
		Count      int    `json:"count"`
		StudentSID string `json:"student_sid"`
	}
	teacher.WaitFor(types.EventStudentLeft, &left)
	if left.Count != 0 || left.StudentSID != student.id {
		t.Errorf("unexpected student_left %+v", left)
	}
}

func TestClassroom_OwnerReattachAfterDisconnect(t *testing.T) {
	server := startServer(t, nil)
	teacher := connect(t, server)
	code, token := createSession(t, teacher, "2468")
	student := connect(t, server)
	joinSession(t, student, code, "Eva")
	teacher.Close()

	deadline := time.Now().Add(waitTimeout)
	for {
		var status types.Status
		getJSON(t, server, "/api/session/status/"+code, &status)
		if !status.HasOwner {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("owner was never detached")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Knowing the code and PIN is not enough for a participant
	student.Send(types.EventTeacherJoinSession, map[string]string{"code": code, "pin": "2468"})
	var hijack errorPayload
	student.WaitFor(types.EventJoinError, &hijack)
	if hijack.Kind != types.KindUnauthorized {
		t.Errorf("participant takeover should be unauthorized, got %+v", hijack)
	}

	again := connect(t, server)
	again.Send(types.EventTeacherJoinSession, map[string]string{"code": code, "pin": "2468"})
	var failure errorPayload
	again.WaitFor(types.EventJoinError, &failure)
	if failure.Kind != types.KindUnauthorized {
		t.Errorf("attach without owner token should be unauthorized, got %+v", failure)
	}

	again.Send(types.EventTeacherJoinSession, map[string]string{"code": code, "pin": "0000", "owner_token": token})
	again.WaitFor(types.EventJoinError, &failure)
	if failure.Kind != types.KindUnauthorized {
		t.Errorf("wrong PIN should be unauthorized, got %+v", failure)
	}

	again.Send(types.EventTeacherJoinSession, map[string]string{"code": code, "pin": "2468", "owner_token": token})
	again.WaitFor(types.EventTeacherJoined, nil)

	again.Send(types.EventTeacherUpdateText, map[string]string{"code": code, "text": "weiter"})
	deadline = time.Now().Add(waitTimeout)
	for {
		var text struct {
			Text string `json:"text"`
		}
		getJSON(t, server, "/api/session/text/"+code, &text)
		if text.Text == "weiter" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("re-attached owner could not update the text")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClassroom_RateLimit(t *testing.T) {
	server := startServer(t, func(c *config.Config) {
		c.RateLimit.PerMinute = 1
		c.RateLimit.Burst = 2
	})
	client := connect(t, server)

	for i := 0; i < 3; i++ {
		client.Send(types.EventTeacherUpdateText, map[string]string{"code": "ZZZZZZ", "text": "x"})
	}

	kinds := make([]string, 3)
	for i := range kinds {
		var failure errorPayload
		client.WaitFor(types.EventSessionError, &failure)
		kinds[i] = failure.Kind
	}
	if kinds[0] != types.KindNotFound || kinds[1] != types.KindNotFound || kinds[2] != types.KindRateLimited {
		t.Errorf("expected two not_found then rate_limited, got %v", kinds)
	}
}

func TestClassroom_ActivityLogRecordsCountsOnly(t *testing.T) {
	server := startServer(t, nil)
	teacher := connect(t, server)
	student := connect(t, server)

	code, _ := createSession(t, teacher, "1357")
	joinSession(t, student, code, "Dana")
	teacher.Send(types.EventTeacherEndSession, map[string]string{"code": code})
	teacher.WaitFor(types.EventSessionEndedConfirmed, nil)

	var activity struct {
		Events []types.ActivityEvent `json:"events"`
	}
	deadline := time.Now().Add(waitTimeout)
	for len(activity.Events) < 3 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
		activity.Events = nil
		getJSON(t, server, "/api/activity?limit=10", &activity)
	}
	if len(activity.Events) != 3 {
		t.Fatalf("expected 3 activity rows, got %+v", activity.Events)
	}

	kinds := map[string]int{}
	for _, e := range activity.Events {
		if e.Code != code {
			t.Errorf("unexpected code in activity row %+v", e)
		}
		kinds[e.Kind] = e.Participants
	}
	if _, ok := kinds[types.ActivityCreated]; !ok {
		t.Errorf("missing created row: %v", kinds)
	}
	if kinds[types.ActivityJoined] != 1 || kinds[types.ActivityEnded] != 1 {
		t.Errorf("unexpected participant counts %v", kinds)
	}

	raw, _ := json.Marshal(activity)
	for _, secret := range []string{"sk_secret_synthesis", "ai_secret_translation", `"1357"`, "Dana"} {
		if strings.Contains(string(raw), secret) {
			t.Errorf("activity log leaked %s", secret)
		}
	}
}
