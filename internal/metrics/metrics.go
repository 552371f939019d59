// Registers:
//
//	#stakeflow_frames_received_total
//	#stakeflow_replies_sent_total
//	#stakeflow_rate_lookups_total
//	#stakeflow_retry_events_total
//	#stakeflow_retry_buffer_depth
//	#stakeflow_reconnects_total
//	#stakeflow_heartbeat_timeouts_total
//	#go_* and process_* system metrics
//
// Exposes them on the configured address using the Prometheus HTTP handler
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once              sync.Once
	framesReceived    *prometheus.CounterVec
	repliesSent       *prometheus.CounterVec
	rateLookups       *prometheus.CounterVec
	retryEvents       *prometheus.CounterVec
	retryBufferDepth  prometheus.Gauge
	reconnects        prometheus.Counter
	heartbeatTimeouts prometheus.Counter
)

func Init(addr string) {
	once.Do(func() {
		framesReceived = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stakeflow_frames_received_total",
				Help: "Number of frames read off the stream",
			},
			[]string{"type"},
		)

		repliesSent = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stakeflow_replies_sent_total",
				Help: "Number of replies written to the stream",
			},
			[]string{"status"},
		)

		rateLookups = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stakeflow_rate_lookups_total",
				Help: "Number of conversion rate lookups by outcome",
			},
			[]string{"outcome"},
		)

		retryEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stakeflow_retry_events_total",
				Help: "Number of retry buffer events",
			},
			[]string{"event"},
		)

		retryBufferDepth = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stakeflow_retry_buffer_depth",
				Help: "Current number of messages waiting in the retry buffer",
			},
		)

		reconnects = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stakeflow_reconnects_total",
				Help: "Number of stream reconnect attempts",
			},
		)

		heartbeatTimeouts = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stakeflow_heartbeat_timeouts_total",
				Help: "Number of connections closed for missed heartbeats",
			},
		)

		_ = prometheus.Register(framesReceived)
		_ = prometheus.Register(repliesSent)
		_ = prometheus.Register(rateLookups)
		_ = prometheus.Register(retryEvents)
		_ = prometheus.Register(retryBufferDepth)
		_ = prometheus.Register(reconnects)
		_ = prometheus.Register(heartbeatTimeouts)
		_ = prometheus.Register(collectors.NewGoCollector())
		_ = prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(addr, nil); err != nil {
				panic("metrics server failed: " + err.Error())
			}
		}()
	})
}

// IncrementFrameReceived increases the received counter for a frame type.
func IncrementFrameReceived(frameType string) {
	if framesReceived != nil {
		framesReceived.WithLabelValues(frameType).Inc()
	}
}

// IncrementReplySent increases the reply counter for a given status.
func IncrementReplySent(status string) {
	if repliesSent != nil {
		repliesSent.WithLabelValues(status).Inc()
	}
}

// IncrementRateLookup increases the lookup counter for a given outcome.
func IncrementRateLookup(outcome string) {
	if rateLookups != nil {
		rateLookups.WithLabelValues(outcome).Inc()
	}
}

// IncrementRetryEvent increases the retry counter for a given event.
func IncrementRetryEvent(event string) {
	if retryEvents != nil {
		retryEvents.WithLabelValues(event).Inc()
	}
}

// SetRetryBufferDepth records the current retry buffer occupancy.
func SetRetryBufferDepth(depth int) {
	if retryBufferDepth != nil {
		retryBufferDepth.Set(float64(depth))
	}
}

// IncrementReconnect increases the reconnect attempt counter.
func IncrementReconnect() {
	if reconnects != nil {
		reconnects.Inc()
	}
}

// IncrementHeartbeatTimeout increases the missed heartbeat counter.
func IncrementHeartbeatTimeout() {
	if heartbeatTimeouts != nil {
		heartbeatTimeouts.Inc()
	}
}
