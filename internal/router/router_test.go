package router

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"readingroom/internal/hub"
	"readingroom/internal/provider"
	"readingroom/internal/proxy"
	"readingroom/internal/session"
	"readingroom/internal/websocket"
	"readingroom/pkg/interfaces"
	"readingroom/pkg/types"
)

type fakeConn struct {
	id     string
	mu     sync.Mutex
	frames []types.Envelope
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var env types.Envelope
	json.Unmarshal(data, &env)
	c.mu.Lock()
	c.frames = append(c.frames, env)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) lastFrame() types.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		return types.Envelope{}
	}
	return c.frames[len(c.frames)-1]
}

type testRouter struct {
	router   *Router
	rooms    *websocket.Registry
	sessions *session.Registry
}

func newTestRouter(t *testing.T, limiter *RateLimiter) *testRouter {
	t.Helper()
	stub := provider.NewStub()
	return newTestRouterWith(t, limiter, proxy.Providers{Synthesizer: stub, Translator: stub, Simplifier: stub})
}

func newTestRouterWith(t *testing.T, limiter *RateLimiter, providers proxy.Providers) *testRouter {
	t.Helper()
	sessions := session.NewRegistry(nil)
	rooms := websocket.NewRegistry()
	svc := proxy.NewService(sessions, providers, proxy.DefaultConfig(), nil)
	h := hub.NewHub(sessions, rooms, svc, nil, nil)
	return &testRouter{router: NewRouter(h, limiter, nil), rooms: rooms, sessions: sessions}
}

func (tr *testRouter) connect(id string) *fakeConn {
	c := &fakeConn{id: id}
	tr.rooms.Register(c)
	return c
}

func (tr *testRouter) send(conn *fakeConn, event string, data interface{}) types.Envelope {
	frame, _ := json.Marshal(map[string]interface{}{"event": event, "data": data})
	tr.router.Dispatch(context.Background(), conn, frame)
	tr.router.Wait()
	return conn.lastFrame()
}

// waitFrame polls until conn has received event
func (c *fakeConn) waitFrame(t *testing.T, event string) types.Envelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		for _, env := range c.frames {
			if env.Event == event {
				c.mu.Unlock()
				return env
			}
		}
		c.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%s never received %s", c.id, event)
	return types.Envelope{}
}

func errorPayload(t *testing.T, env types.Envelope) types.ErrorPayload {
	t.Helper()
	var p types.ErrorPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	return p
}

func TestRouter_CreateJoinAndUpdate(t *testing.T) {
	tr := newTestRouter(t, nil)
	teacher := tr.connect("t1")
	student := tr.connect("s1")

	created := tr.send(teacher, types.EventTeacherCreateSession, map[string]string{"elevenlabs_key": "K1"})
	if created.Event != types.EventSessionCreated {
		t.Fatalf("expected session_created, got %s", created.Event)
	}
	var payload struct {
		Code string `json:"code"`
	}
	json.Unmarshal(created.Data, &payload)

	// Codes are accepted in any case
	joined := tr.send(student, types.EventStudentJoinSession, map[string]string{"code": " " + lower(payload.Code), "name": "Ada"})
	if joined.Event != types.EventJoinSuccess {
		t.Fatalf("expected join_success, got %s", joined.Event)
	}

	tr.send(teacher, types.EventTeacherUpdateText, map[string]string{"code": payload.Code, "text": "Hallo Welt"})
	if got := student.lastFrame(); got.Event != types.EventTextUpdated {
		t.Errorf("student should receive text_updated, got %s", got.Event)
	}
}

func TestRouter_ErrorEventMapping(t *testing.T) {
	tr := newTestRouter(t, nil)
	teacher := tr.connect("t1")
	student := tr.connect("s1")
	tr.send(teacher, types.EventTeacherCreateSession, map[string]string{"elevenlabs_key": "K1"})
	var created struct {
		Code string `json:"code"`
	}
	json.Unmarshal(teacher.lastFrame().Data, &created)
	tr.send(student, types.EventStudentJoinSession, map[string]string{"code": created.Code})

	cases := []struct {
		name      string
		conn      *fakeConn
		event     string
		data      interface{}
		wantEvent string
		wantKind  string
	}{
		{"unknown session", student, types.EventStudentJoinSession, map[string]string{"code": "ZZZZZZ"}, types.EventJoinError, types.KindNotFound},
		{"malformed code", student, types.EventStudentJoinSession, map[string]string{"code": "abc"}, types.EventJoinError, types.KindUnprocessable},
		{"non-owner update", student, types.EventTeacherUpdateText, map[string]string{"code": created.Code, "text": "x"}, types.EventSessionError, types.KindUnauthorized},
		{"non-owner approve", student, types.EventTeacherApproveTranslation, map[string]string{"code": created.Code, "student_sid": "s1"}, types.EventTranslationError, types.KindUnauthorized},
		{"bad level", student, types.EventStudentUsingSimplified, map[string]string{"code": created.Code, "level": "C2"}, types.EventSessionError, types.KindUnprocessable},
		{"missing key", teacher, types.EventTeacherCreateSession, map[string]string{"ai_key": "A1"}, types.EventSessionError, types.KindUnprocessable},
		{"unknown event", student, "student_dance", map[string]string{}, types.EventSessionError, types.KindUnprocessable},
		{"missing data", student, types.EventStudentLeaveSession, nil, types.EventSessionError, types.KindUnprocessable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tr.send(tc.conn, tc.event, tc.data)
			if got.Event != tc.wantEvent {
				t.Fatalf("expected %s, got %s", tc.wantEvent, got.Event)
			}
			if kind := errorPayload(t, got).Kind; kind != tc.wantKind {
				t.Errorf("expected kind %s, got %s", tc.wantKind, kind)
			}
		})
	}
}

func TestRouter_MalformedFrame(t *testing.T) {
	tr := newTestRouter(t, nil)
	conn := tr.connect("c1")

	tr.router.Dispatch(context.Background(), conn, []byte("{not json"))
	if got := conn.lastFrame(); got.Event != types.EventSessionError || errorPayload(t, got).Kind != types.KindUnprocessable {
		t.Errorf("expected unprocessable session_error, got %+v", got)
	}
}

func TestRouter_RateLimit(t *testing.T) {
	tr := newTestRouter(t, NewRateLimiter(1, 2))
	conn := tr.connect("c1")

	for i := 0; i < 2; i++ {
		tr.send(conn, types.EventStudentJoinSession, map[string]string{"code": "ZZZZZZ"})
	}
	got := tr.send(conn, types.EventStudentJoinSession, map[string]string{"code": "ZZZZZZ"})
	if kind := errorPayload(t, got).Kind; kind != types.KindRateLimited {
		t.Errorf("expected rate_limited, got %s", kind)
	}
}

func TestRouter_DisconnectForgetsLimiterState(t *testing.T) {
	limiter := NewRateLimiter(0, 0)
	tr := newTestRouter(t, limiter)
	conn := tr.connect("c1")
	tr.send(conn, types.EventStudentJoinSession, map[string]string{"code": "ZZZZZZ"})

	tr.router.Disconnect(conn)
	if limiter.Len() != 0 {
		t.Errorf("disconnect should drop limiter state, %d entries left", limiter.Len())
	}
}

type heldTranslator struct {
	started chan struct{}
	release chan struct{}
	err     error
}

func (h *heldTranslator) Translate(ctx context.Context, req interfaces.TranslationCall) (string, error) {
	close(h.started)
	<-h.release
	if h.err != nil {
		return "", h.err
	}
	return "held " + req.Text, nil
}

// pendingApproval creates a session with an AI key, joins a student and files a
// translation request, returning the teacher, student and session code
func pendingApproval(t *testing.T, tr *testRouter) (*fakeConn, *fakeConn, string) {
	t.Helper()
	teacher := tr.connect("t1")
	student := tr.connect("s1")
	created := tr.send(teacher, types.EventTeacherCreateSession, map[string]string{"elevenlabs_key": "K1", "ai_key": "A1"})
	var payload struct {
		Code string `json:"code"`
	}
	json.Unmarshal(created.Data, &payload)
	tr.send(student, types.EventStudentJoinSession, map[string]string{"code": payload.Code, "name": "Ada"})
	tr.send(teacher, types.EventTeacherUpdateText, map[string]string{"code": payload.Code, "text": "Hallo"})
	if got := tr.send(student, types.EventStudentRequestTranslation, map[string]string{"code": payload.Code, "language": "tr"}); got.Event != types.EventTranslationRequestSent {
		t.Fatalf("translation request failed: %s", got.Event)
	}
	return teacher, student, payload.Code
}

func TestRouter_ApprovalDoesNotBlockOtherEvents(t *testing.T) {
	held := &heldTranslator{started: make(chan struct{}), release: make(chan struct{})}
	stub := provider.NewStub()
	tr := newTestRouterWith(t, nil, proxy.Providers{Synthesizer: stub, Translator: held, Simplifier: stub})
	teacher, student, code := pendingApproval(t, tr)

	frame, _ := json.Marshal(map[string]interface{}{
		"event": types.EventTeacherApproveTranslation,
		"data":  map[string]string{"code": code, "student_sid": student.id},
	})
	dispatched := make(chan struct{})
	go func() {
		tr.router.Dispatch(context.Background(), teacher, frame)
		close(dispatched)
	}()
	select {
	case <-dispatched:
	case <-time.After(time.Second):
		t.Fatal("dispatch waited for the translation provider")
	}
	<-held.started

	// The same connection keeps being served while the translation is held
	frame, _ = json.Marshal(map[string]interface{}{
		"event": types.EventTeacherUpdateText,
		"data":  map[string]string{"code": code, "text": "Weiter"},
	})
	tr.router.Dispatch(context.Background(), teacher, frame)
	if got := student.lastFrame(); got.Event != types.EventTextUpdated {
		t.Errorf("text update should be delivered during approval, got %s", got.Event)
	}

	close(held.release)
	tr.router.Wait()
	approved := student.waitFrame(t, types.EventTranslationApproved)
	var payload struct {
		TranslatedText *string `json:"translated_text"`
	}
	json.Unmarshal(approved.Data, &payload)
	if payload.TranslatedText == nil || *payload.TranslatedText != "held Hallo" {
		t.Errorf("approval should use the text read when it started, got %+v", payload)
	}
	teacher.waitFrame(t, types.EventTranslationSent)
}

func TestRouter_AsyncApprovalFailureRepliesToOwner(t *testing.T) {
	held := &heldTranslator{started: make(chan struct{}), release: make(chan struct{}), err: errors.New("vendor down")}
	stub := provider.NewStub()
	tr := newTestRouterWith(t, nil, proxy.Providers{Synthesizer: stub, Translator: held, Simplifier: stub})
	teacher, student, code := pendingApproval(t, tr)
	close(held.release)

	got := tr.send(teacher, types.EventTeacherApproveTranslation, map[string]string{"code": code, "student_sid": student.id})
	if got.Event != types.EventTranslationError {
		t.Fatalf("expected translation_error, got %s", got.Event)
	}
	if kind := errorPayload(t, got).Kind; kind != types.KindUpstream {
		t.Errorf("expected upstream_failure, got %s", kind)
	}
}

func lower(s string) string {
	out := []byte(s)
	for i, b := range out {
		if b >= 'A' && b <= 'Z' {
			out[i] = b + 'a' - 'A'
		}
	}
	return string(out)
}
