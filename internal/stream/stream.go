// Package stream owns the websocket side of the service: the single live
// connection handle, the heartbeat liveness protocol and the supervisor
// that keeps a session running across disconnects.
package stream

import "context"

// Sender is the write side of a stream handed to message processors.
type Sender interface {
	Send(v interface{}) error
}

// Handler processes one inbound non-heartbeat frame against the stream it
// arrived on. Implementations must be safe for concurrent use; one call is
// made per frame and calls for different frames run in parallel.
type Handler interface {
	Process(ctx context.Context, raw []byte, conn Sender) error
}

// RetryQueue hands back frames whose replies were lost to a dead stream so
// they can be replayed against a fresh one.
type RetryQueue interface {
	Drain(ctx context.Context, submit func(raw []byte))
}
