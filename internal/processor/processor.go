// Package processor turns inbound conversion requests into replies. Each
// frame is handled by one Process call; calls for different frames run
// concurrently and share nothing but the rate service and the retry buffer.
package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	appconfig "stakeflow/config"
	"stakeflow/internal/metrics"
	"stakeflow/internal/protocol"
	"stakeflow/internal/rates"
	"stakeflow/internal/stream"
	"stakeflow/logger"
)

// stakePrecision is the number of decimal places converted stakes are
// rounded to.
const stakePrecision = 5

const (
	errPrefix          = "Unable to convert stake. Error: "
	msgValidation      = errPrefix + "input validation failed"
	msgRateService     = errPrefix + "remote rate service failure"
	msgInternalFailure = errPrefix + "Fatal internal service error"
)

// rateSource resolves a conversion rate for a currency on a calendar day.
type rateSource interface {
	Rate(ctx context.Context, currency, day string) (float64, error)
}

// Processor converts inbound stake requests to the target currency and
// writes the reply back on the stream the request arrived on. Replies that
// can no longer be delivered because the stream died are parked in the
// retry buffer for the next session.
type Processor struct {
	rates   rateSource
	retries *RetryBuffer
	target  string
	log     *logger.Entry
}

func NewProcessor(cfg *appconfig.Config, source rateSource, retries *RetryBuffer) *Processor {
	return &Processor{
		rates:   source,
		retries: retries,
		target:  cfg.Rates.TargetCurrency,
		log:     logger.GetLogger().WithComponent("processor"),
	}
}

// Process handles one raw inbound frame end to end. Validation and rate
// failures are answered with error replies and are not errors of Process
// itself; a returned error means something unexpected broke mid-flight and
// the session should not assume processing is still healthy.
func (p *Processor) Process(ctx context.Context, raw []byte, conn stream.Sender) error {
	req, err := protocol.ParseRequest(raw)
	if err != nil {
		p.log.WithError(err).WithFields(logger.Fields{"raw": string(raw)}).Warn("rejecting malformed request")
		id := protocol.ExtractTransactionID(raw)
		return p.deliver(raw, conn, protocol.NewErrorReply(id, fmt.Sprintf("%s: %v", msgValidation, err)), "validation_error")
	}

	rate, err := p.rates.Rate(ctx, req.Payload.Currency, req.Payload.Date.Day())
	if err != nil {
		if errors.Is(err, rates.ErrUnsupportedCurrency) || errors.Is(err, rates.ErrSourceUnavailable) {
			p.log.WithError(err).WithFields(logger.Fields{"id": req.ID, "currency": req.Payload.Currency}).Warn("rate lookup refused")
			reply := protocol.NewErrorReply(protocol.NewTransactionID(req.ID), fmt.Sprintf("%s: %v", msgRateService, err))
			return p.deliver(raw, conn, reply, "rate_error")
		}
		return p.internalFailure(req.ID, conn, fmt.Errorf("rate lookup for request %d: %w", req.ID, err))
	}
	if rate <= 0 {
		p.log.WithFields(logger.Fields{"id": req.ID, "currency": req.Payload.Currency, "rate": rate}).Warn("unusable rate from source")
		reply := protocol.NewErrorReply(protocol.NewTransactionID(req.ID), fmt.Sprintf("%s: unusable rate %v for %s", msgRateService, rate, req.Payload.Currency))
		return p.deliver(raw, conn, reply, "rate_error")
	}

	converted := decimal.NewFromFloat(req.Payload.Stake).
		Div(decimal.NewFromFloat(rate)).
		Round(stakePrecision)
	stake, _ := converted.Float64()

	p.log.WithFields(logger.Fields{
		"id":       req.ID,
		"currency": req.Payload.Currency,
		"rate":     rate,
		"stake":    req.Payload.Stake,
		"result":   stake,
	}).Debug("converted stake")

	return p.deliver(raw, conn, protocol.NewReply(req, stake, p.target), "success")
}

// deliver writes a reply frame. A dead stream is not a processing failure:
// the original request is parked for replay and the caller sees nil. Any
// other write failure is unexpected and escalates.
func (p *Processor) deliver(raw []byte, conn stream.Sender, frame interface{}, status string) error {
	err := conn.Send(frame)
	if err == nil {
		metrics.IncrementReplySent(status)
		if status == "success" {
			logger.IncrementReplySent(len(raw))
		} else {
			logger.IncrementErrorReply(len(raw))
		}
		return nil
	}

	if errors.Is(err, stream.ErrClosed) {
		p.log.WithFields(logger.Fields{"raw": string(raw)}).Warn("stream closed before reply, parking request for retry")
		p.retries.Put(raw)
		return nil
	}
	return fmt.Errorf("deliver reply: %w", err)
}

// internalFailure answers with a generic error reply on a best-effort
// basis and propagates the underlying failure to the supervisor.
func (p *Processor) internalFailure(id int64, conn stream.Sender, err error) error {
	p.log.WithError(err).Error("unexpected processing failure")
	reply := protocol.NewErrorReply(protocol.NewTransactionID(id), msgInternalFailure)
	if sendErr := conn.Send(reply); sendErr == nil {
		metrics.IncrementReplySent("internal_error")
	}
	return err
}
