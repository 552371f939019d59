package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stakeflow/config"
	"stakeflow/internal/metrics"
	"stakeflow/internal/protocol"
	"stakeflow/logger"
)

// Supervisor owns the connection lifecycle: dial, run one session until
// something ends it, tear everything down, wait, redial. Sessions share
// nothing; in-flight processor work survives teardown and reroutes its
// lost replies through the retry queue.
type Supervisor struct {
	cfg     *config.Config
	handler Handler
	retries RetryQueue
	dial    func(ctx context.Context) (*Conn, error)
	log     *logger.Entry
}

func NewSupervisor(cfg *config.Config, handler Handler, retries RetryQueue) *Supervisor {
	s := &Supervisor{
		cfg:     cfg,
		handler: handler,
		retries: retries,
		log:     logger.GetLogger().WithComponent("supervisor"),
	}
	s.dial = func(ctx context.Context) (*Conn, error) {
		return Dial(ctx,
			cfg.Stream.URL,
			time.Duration(cfg.Stream.DialTimeoutMs)*time.Millisecond,
			time.Duration(cfg.Stream.WriteTimeoutMs)*time.Millisecond)
	}
	return s
}

// Run keeps a session alive until ctx ends or a fatal condition appears.
// Recoverable failures (dial errors, dead peers, missed heartbeats,
// processor crashes under the failure cap) trigger a fixed-delay redial.
func (s *Supervisor) Run(ctx context.Context) error {
	delay := time.Duration(s.cfg.Stream.ReconnectDelayMs) * time.Millisecond
	consecutive := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		procFailure, err := s.runSession(ctx)
		if ctx.Err() != nil {
			s.log.Info("supervisor stopped")
			return nil
		}

		if procFailure {
			consecutive++
			if max := s.cfg.Processor.MaxFailures; max > 0 && consecutive >= max {
				return fmt.Errorf("%d consecutive sessions ended by processor failures: %w", consecutive, err)
			}
		} else {
			consecutive = 0
		}

		logger.IncrementReconnect()
		metrics.IncrementReconnect()
		s.log.WithError(err).WithFields(logger.Fields{"delay": delay.String()}).Warn("stream session ended, reconnecting")

		if waitForReconnect(ctx, delay) {
			return nil
		}
	}
}

// runSession drives one connection attempt from dial to teardown. The
// returned procFailure reports whether a processor unit ended the session.
func (s *Supervisor) runSession(ctx context.Context) (procFailure bool, err error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return false, err
	}

	slog := s.log.WithFields(logger.Fields{
		"session": uuid.New().String(),
		"url":     s.cfg.Stream.URL,
	})
	slog.Info("stream connected")

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	hb := NewHeartbeat(conn, time.Duration(s.cfg.Stream.HeartbeatIntervalMs)*time.Millisecond)

	done := make(chan error, 2)
	procErr := make(chan error, 1)

	go func() { done <- hb.Run(sessionCtx) }()
	go func() { done <- s.readLoop(ctx, conn, hb, procErr, slog) }()

	// Messages whose replies were lost with the previous stream get a
	// fresh processing run against this one.
	s.drainRetries(ctx, conn, procErr, slog)

	remaining := 2
	var result error
	select {
	case result = <-done:
		remaining = 1
	case perr := <-procErr:
		result = fmt.Errorf("processing failed: %w", perr)
		procFailure = true
	case <-ctx.Done():
	}

	hb.Stop()
	cancel()
	_ = conn.Close()

	// Both loops must be down before the next attempt starts.
	for i := 0; i < remaining; i++ {
		if stray := <-done; result == nil && stray != nil && ctx.Err() == nil {
			result = stray
		}
	}

	slog.Debug("stream session closed")
	return procFailure, result
}

// readLoop pulls frames until the connection dies. Heartbeats feed the
// monitor; everything else is dispatched to a processor goroutine in
// arrival order without waiting for completions.
func (s *Supervisor) readLoop(ctx context.Context, conn *Conn, hb *Heartbeat, procErr chan error, slog *logger.Entry) error {
	for {
		raw, err := conn.Read()
		if err != nil {
			return err
		}

		if protocol.IsHeartbeat(raw) {
			hb.MarkReceived()
			metrics.IncrementFrameReceived("heartbeat")
			slog.Debug("heartbeat received")
			continue
		}

		metrics.IncrementFrameReceived("message")
		logger.IncrementMessageReceived(len(raw))
		slog.WithFields(logger.Fields{"raw": string(raw)}).Debug("received message")

		go s.runUnit(ctx, raw, conn, procErr)
	}
}

// runUnit executes one processor call. Failures are offered to the
// session's result channel; when a failure already won the race the
// extra one is dropped.
func (s *Supervisor) runUnit(ctx context.Context, raw []byte, conn *Conn, procErr chan error) {
	if err := s.handler.Process(ctx, raw, conn); err != nil {
		select {
		case procErr <- err:
		default:
		}
	}
}

func (s *Supervisor) drainRetries(ctx context.Context, conn *Conn, procErr chan error, slog *logger.Entry) {
	replayed := 0
	s.retries.Drain(ctx, func(raw []byte) {
		replayed++
		metrics.IncrementRetryEvent("replayed")
		logger.IncrementRetryReplayed(len(raw))
		go s.runUnit(ctx, raw, conn, procErr)
	})
	if replayed > 0 {
		logger.LogDataFlowEntry(slog, "retry_buffer", "stream", replayed, "conversion_request")
	}
}

// waitForReconnect sleeps for the reconnect delay. It reports true when
// the context ended during the wait and the caller should stop.
func waitForReconnect(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}
