package websocket

import (
	"context"
	"sync"
)

func contextForTest() (context.Context, context.CancelFunc) {
	return context.WithCancel(context.Background())
}

// recordingConn captures frames written to it
type recordingConn struct {
	id     string
	mu     sync.Mutex
	frames []interface{}
	err    error
	closed bool
}

func (c *recordingConn) ID() string { return c.id }

func (c *recordingConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.frames = append(c.frames, v)
	return nil
}

func (c *recordingConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *recordingConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}
