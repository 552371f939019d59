package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClosed reports a read or write against a stream handle that has begun
// closing. Writers seeing it know their frame never reached the peer.
var ErrClosed = errors.New("stream closed")

// Conn is a single live websocket stream. Writes from any goroutine are
// serialized; once closure begins every operation fails with ErrClosed and
// the handle never becomes usable again.
type Conn struct {
	ws           *websocket.Conn
	writeMu      sync.Mutex
	writeTimeout time.Duration
	closed       atomic.Bool
}

// Dial establishes a websocket connection to url within the handshake
// timeout and wraps it in a Conn.
func Dial(ctx context.Context, url string, handshakeTimeout, writeTimeout time.Duration) (*Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Conn{ws: ws, writeTimeout: writeTimeout}, nil
}

// Send marshals v and writes it as a single text frame.
func (c *Conn) Send(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return c.SendRaw(data)
}

// SendRaw writes one text frame. Any write failure marks the stream
// closed, so the returned error always wraps ErrClosed once the frame can
// no longer be delivered.
func (c *Conn) SendRaw(data []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}

	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		if c.closed.CompareAndSwap(false, true) {
			_ = c.ws.Close()
		}
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return nil
}

// Read blocks until the next text frame arrives or the connection dies.
// After Close it fails with ErrClosed.
func (c *Conn) Read() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		if c.closed.Load() {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("read frame: %w", err)
	}
	return data, nil
}

// Close tears the connection down. It is safe to call from any goroutine
// and any number of times; only the first call does work.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	return c.ws.Close()
}
