package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"readingroom/internal/app"
	"readingroom/internal/config"
	"readingroom/pkg/types"
)

const waitTimeout = 3 * time.Second

// startServer runs a full application on a free port with the activity log in a temp dir
func startServer(t *testing.T, mutate func(*config.Config)) *app.Application {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.Activity.Path = filepath.Join(t.TempDir(), "activity.db")
	if mutate != nil {
		mutate(cfg)
	}

	application, err := app.NewApplication(cfg, nil)
	if err != nil {
		t.Fatalf("failed to build application: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Start(ctx); err != nil {
		t.Fatalf("failed to start application: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		application.Stop(ctx)
	})
	return application
}

// testClient is a websocket participant that records every frame it receives
type testClient struct {
	t    *testing.T
	conn *websocket.Conn
	id   string

	mu       sync.Mutex
	frames   []types.Envelope
	consumed []bool
	raw      []string
	done     chan struct{}
}

func connect(t *testing.T, application *app.Application) *testClient {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+application.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	c := &testClient{t: t, conn: conn, done: make(chan struct{})}
	t.Cleanup(c.Close)
	go c.readLoop()

	var hello struct {
		ConnectionID string `json:"connection_id"`
	}
	c.WaitFor(types.EventConnected, &hello)
	if hello.ConnectionID == "" {
		t.Fatal("connected event carried no connection id")
	}
	c.id = hello.ConnectionID
	return c
}

func (c *testClient) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		c.mu.Lock()
		c.frames = append(c.frames, env)
		c.consumed = append(c.consumed, false)
		c.raw = append(c.raw, string(data))
		c.mu.Unlock()
	}
}

// Send writes one event frame
func (c *testClient) Send(event string, data interface{}) {
	c.t.Helper()
	if err := c.conn.WriteJSON(map[string]interface{}{"event": event, "data": data}); err != nil {
		c.t.Fatalf("send %s failed: %v", event, err)
	}
}

// WaitFor consumes the oldest unread frame named event and decodes its data into out
func (c *testClient) WaitFor(event string, out interface{}) {
	c.t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if data, ok := c.take(event); ok {
			if out != nil {
				if err := json.Unmarshal(data, out); err != nil {
					c.t.Fatalf("decode %s failed: %v", event, err)
				}
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	c.t.Fatalf("timed out waiting for %s, received %v", event, c.events())
}

func (c *testClient) take(event string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, env := range c.frames {
		if !c.consumed[i] && env.Event == event {
			c.consumed[i] = true
			return env.Data, true
		}
	}
	return nil, false
}

func (c *testClient) events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, len(c.frames))
	for i, env := range c.frames {
		names[i] = env.Event
	}
	return names
}

// Transcript returns every frame received so far as raw JSON
func (c *testClient) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.raw, "\n")
}

// Close drops the connection and waits for the read loop to finish
func (c *testClient) Close() {
	c.conn.Close()
	select {
	case <-c.done:
	case <-time.After(waitTimeout):
	}
}

func getJSON(t *testing.T, application *app.Application, path string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(fmt.Sprintf("http://%s%s", application.Addr(), path))
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode
}
