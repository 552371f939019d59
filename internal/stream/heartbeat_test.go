package stream

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestHeartbeatSendsLivenessFrames(t *testing.T) {
	var mu sync.Mutex
	var frames []string
	url := newWSServer(t, func(ws *websocket.Conn) {
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			mu.Lock()
			frames = append(frames, string(data))
			mu.Unlock()
		}
	})

	conn := dialTest(t, url)
	hb := NewHeartbeat(conn, 20*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- hb.Run(context.Background()) }()

	// Keep the peer alive while a few beats go out.
	keepAlive := time.NewTicker(10 * time.Millisecond)
	defer keepAlive.Stop()
	for i := 0; i < 5; i++ {
		<-keepAlive.C
		hb.MarkReceived()
	}

	hb.Stop()
	if err := <-done; err != nil {
		t.Fatalf("run after stop: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(frames) == 0 {
		t.Fatal("no heartbeat frames sent")
	}
	var frame struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(frames[0]), &frame); err != nil || frame.Type != "heartbeat" {
		t.Errorf("first frame = %s", frames[0])
	}
}

func TestHeartbeatTimeoutClosesStream(t *testing.T) {
	url := newWSServer(t, func(ws *websocket.Conn) {
		// Silent peer: read but never answer.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})

	conn := dialTest(t, url)
	hb := NewHeartbeat(conn, 20*time.Millisecond)

	start := time.Now()
	err := hb.Run(context.Background())
	if !errors.Is(err, ErrHeartbeatTimeout) {
		t.Fatalf("err = %v, want ErrHeartbeatTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("timed out after %v, before twice the interval", elapsed)
	}

	// The monitor closed the stream on the way out.
	if err := conn.Send(map[string]string{"type": "heartbeat"}); !errors.Is(err, ErrClosed) {
		t.Errorf("stream still writable after timeout: %v", err)
	}
}

func TestHeartbeatMarkReceivedDefersTimeout(t *testing.T) {
	url := newWSServer(t, func(ws *websocket.Conn) {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})

	conn := dialTest(t, url)
	hb := NewHeartbeat(conn, 20*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- hb.Run(context.Background()) }()

	// Feed receipts for well past the plain timeout window.
	deadline := time.After(150 * time.Millisecond)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
feed:
	for {
		select {
		case <-deadline:
			break feed
		case <-ticker.C:
			hb.MarkReceived()
		case err := <-done:
			t.Fatalf("monitor stopped early: %v", err)
		}
	}

	hb.Stop()
	if err := <-done; err != nil {
		t.Fatalf("run after stop: %v", err)
	}
}

func TestHeartbeatStopIdempotent(t *testing.T) {
	url := newWSServer(t, func(ws *websocket.Conn) {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})

	conn := dialTest(t, url)
	hb := NewHeartbeat(conn, time.Hour)

	hb.Stop()
	hb.Stop()

	if err := hb.Run(context.Background()); err != nil {
		t.Fatalf("run on stopped monitor: %v", err)
	}
}

func TestHeartbeatContextCancel(t *testing.T) {
	url := newWSServer(t, func(ws *websocket.Conn) {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})

	conn := dialTest(t, url)
	hb := NewHeartbeat(conn, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hb.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("run after cancel: %v", err)
	}
}
