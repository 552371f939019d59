package processor

import (
	"context"
	"strconv"
	"sync"
	"time"

	appconfig "stakeflow/config"
	"stakeflow/internal/metrics"
	"stakeflow/internal/protocol"
	"stakeflow/logger"
)

// pendingRetry is one undelivered request waiting for a fresh stream.
type pendingRetry struct {
	raw      []byte
	enqueued time.Time
}

// RetryBuffer holds requests whose replies were lost to a dead stream
// until the next session can replay them. Entries expire after the
// configured TTL; an expired entry is dropped, never reprocessed. With a
// configured capacity the oldest entry is evicted first since it is the
// closest to expiry anyway.
type RetryBuffer struct {
	mu         sync.Mutex
	entries    []pendingRetry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	log        *logger.Entry
}

func NewRetryBuffer(cfg *appconfig.Config) *RetryBuffer {
	return &RetryBuffer{
		ttl:        time.Duration(cfg.Retry.MessageTTLSeconds) * time.Second,
		maxEntries: cfg.Retry.MaxEntries,
		now:        time.Now,
		log:        logger.GetLogger().WithComponent("retry_buffer"),
	}
}

// Put appends raw with the current timestamp. Safe for concurrent use.
func (b *RetryBuffer) Put(raw []byte) {
	b.mu.Lock()
	b.entries = append(b.entries, pendingRetry{raw: raw, enqueued: b.now()})
	var evicted []byte
	if b.maxEntries > 0 && len(b.entries) > b.maxEntries {
		evicted = b.entries[0].raw
		b.entries = b.entries[1:]
	}
	depth := len(b.entries)
	b.mu.Unlock()

	logger.IncrementRetryEnqueued(len(raw))
	metrics.IncrementRetryEvent("enqueued")
	metrics.SetRetryBufferDepth(depth)

	if evicted != nil {
		logger.IncrementRetryDropped()
		metrics.IncrementRetryEvent("evicted")
		metrics.EmitDropMetric(nil, metrics.DropMetricRetryCapacity, transactionIDString(evicted))
		b.log.WithFields(logger.Fields{"depth": depth}).Warn("retry buffer full, evicted oldest entry")
	}
}

// Len reports the current number of parked entries.
func (b *RetryBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Drain removes entries oldest first and hands each unexpired one to
// submit for reprocessing against the new stream. Expired entries are
// discarded silently. The context is consulted between entries so a
// teardown mid-drain leaves the remainder parked for the next session.
func (b *RetryBuffer) Drain(ctx context.Context, submit func(raw []byte)) {
	for ctx.Err() == nil {
		entry, ok := b.pop()
		if !ok {
			return
		}

		if age := b.now().Sub(entry.enqueued); age > b.ttl {
			logger.IncrementRetryDropped()
			metrics.IncrementRetryEvent("expired")
			metrics.EmitDropMetric(nil, metrics.DropMetricRetryExpired, transactionIDString(entry.raw))
			b.log.WithFields(logger.Fields{"age": age.String()}).Info("dropping expired retry entry")
			continue
		}

		submit(entry.raw)
	}
}

func (b *RetryBuffer) pop() (pendingRetry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.entries) == 0 {
		return pendingRetry{}, false
	}
	entry := b.entries[0]
	b.entries = b.entries[1:]
	metrics.SetRetryBufferDepth(len(b.entries))
	return entry, true
}

func transactionIDString(raw []byte) string {
	id := protocol.ExtractTransactionID(raw)
	if v, ok := id.Value(); ok {
		return strconv.FormatInt(v, 10)
	}
	return protocol.MissingTransactionID
}
