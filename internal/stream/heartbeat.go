package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"stakeflow/internal/metrics"
	"stakeflow/internal/protocol"
	"stakeflow/logger"
)

// ErrHeartbeatTimeout reports a peer that went silent for more than twice
// the heartbeat interval.
var ErrHeartbeatTimeout = errors.New("heartbeat timeout")

// Heartbeat emits liveness frames on a fixed interval and tracks the ones
// coming back. MarkReceived is called by the read loop; Run owns the send
// side and the staleness check.
type Heartbeat struct {
	conn     *Conn
	interval time.Duration
	lastSeen atomic.Int64
	stop     chan struct{}
	stopOnce sync.Once
	log      *logger.Entry
}

func NewHeartbeat(conn *Conn, interval time.Duration) *Heartbeat {
	h := &Heartbeat{
		conn:     conn,
		interval: interval,
		stop:     make(chan struct{}),
		log:      logger.GetLogger().WithComponent("heartbeat"),
	}
	// The peer gets a full window before the first staleness check.
	h.lastSeen.Store(time.Now().UnixNano())
	return h
}

// MarkReceived records that a heartbeat frame arrived from the peer.
func (h *Heartbeat) MarkReceived() {
	h.lastSeen.Store(time.Now().UnixNano())
}

// Stop ends the monitor loop without an error. Safe to call repeatedly
// and from any goroutine.
func (h *Heartbeat) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

func (h *Heartbeat) stopped() bool {
	select {
	case <-h.stop:
		return true
	default:
		return false
	}
}

// Run sends a heartbeat every interval and fails with ErrHeartbeatTimeout
// once the peer has been silent for more than twice the interval. The
// connection is closed on the way out so the read loop unblocks too.
func (h *Heartbeat) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		if err := h.conn.Send(protocol.NewHeartbeat()); err != nil {
			if h.stopped() || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("send heartbeat: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-h.stop:
			return nil
		case <-ticker.C:
		}

		silent := time.Since(time.Unix(0, h.lastSeen.Load()))
		if silent > 2*h.interval {
			metrics.IncrementHeartbeatTimeout()
			logger.IncrementHeartbeatTimeout()
			h.log.WithFields(logger.Fields{"silent": silent.String()}).Warn("peer missed heartbeats, closing stream")
			_ = h.conn.Close()
			return ErrHeartbeatTimeout
		}
	}
}
