package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type flowStat struct {
	messages int64
	bytes    int64
}

var (
	errorsStream      int64
	errorsProcessing  int64
	warnsStream       int64
	warnsProcessing   int64
	messagesReceived  int64
	repliesSent       int64
	errorReplies      int64
	retryEnqueued     int64
	retryReplayed     int64
	retryDropped      int64
	reconnects        int64
	heartbeatTimeouts int64
	flows             sync.Map // map[string]*flowStat
)

func isStreamComponent(component string) bool {
	return strings.Contains(component, "stream") ||
		strings.Contains(component, "heartbeat") ||
		strings.Contains(component, "supervisor")
}

func isProcessingComponent(component string) bool {
	return strings.Contains(component, "processor") ||
		strings.Contains(component, "rates") ||
		strings.Contains(component, "retry")
}

func recordWarn(component string) {
	if isStreamComponent(component) {
		atomic.AddInt64(&warnsStream, 1)
	} else if isProcessingComponent(component) {
		atomic.AddInt64(&warnsProcessing, 1)
	}
}

func recordError(component string) {
	if isStreamComponent(component) {
		atomic.AddInt64(&errorsStream, 1)
	} else if isProcessingComponent(component) {
		atomic.AddInt64(&errorsProcessing, 1)
	}
}

func IncrementMessageReceived(size int) {
	atomic.AddInt64(&messagesReceived, 1)
	recordFlow("ws_inbound", size)
}

func IncrementReplySent(size int) {
	atomic.AddInt64(&repliesSent, 1)
	recordFlow("ws_outbound", size)
}

func IncrementErrorReply(size int) {
	atomic.AddInt64(&errorReplies, 1)
	recordFlow("ws_outbound", size)
}

func IncrementRetryEnqueued(size int) {
	atomic.AddInt64(&retryEnqueued, 1)
	recordFlow("retry_buffer", size)
}

func IncrementRetryReplayed(size int) {
	atomic.AddInt64(&retryReplayed, 1)
	recordFlow("retry_replay", size)
}

func IncrementRetryDropped() {
	atomic.AddInt64(&retryDropped, 1)
}

func IncrementReconnect() {
	atomic.AddInt64(&reconnects, 1)
}

func IncrementHeartbeatTimeout() {
	atomic.AddInt64(&heartbeatTimeouts, 1)
}

func RecordFlowMessage(name string, size int) {
	recordFlow(name, size)
}

func recordFlow(name string, size int) {
	v, _ := flows.LoadOrStore(name, &flowStat{})
	fs := v.(*flowStat)
	atomic.AddInt64(&fs.messages, 1)
	atomic.AddInt64(&fs.bytes, int64(size))
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of system and stream statistics.
// It exposes the internal startReport function for use by other packages.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	netStats, _ := gnet.IOCounters(false)
	flowData := map[string]map[string]int64{}
	flows.Range(func(k, v any) bool {
		name := k.(string)
		fs := v.(*flowStat)
		flowData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&fs.messages),
			"bytes":    atomic.LoadInt64(&fs.bytes),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	bytesSent := uint64(0)
	bytesRecv := uint64(0)
	if len(netStats) > 0 {
		bytesSent = netStats[0].BytesSent
		bytesRecv = netStats[0].BytesRecv
	}

	fields := Fields{
		"errors_stream":      atomic.LoadInt64(&errorsStream),
		"errors_processing":  atomic.LoadInt64(&errorsProcessing),
		"warns_stream":       atomic.LoadInt64(&warnsStream),
		"warns_processing":   atomic.LoadInt64(&warnsProcessing),
		"messages_received":  atomic.LoadInt64(&messagesReceived),
		"replies_sent":       atomic.LoadInt64(&repliesSent),
		"error_replies":      atomic.LoadInt64(&errorReplies),
		"retry_enqueued":     atomic.LoadInt64(&retryEnqueued),
		"retry_replayed":     atomic.LoadInt64(&retryReplayed),
		"retry_dropped":      atomic.LoadInt64(&retryDropped),
		"reconnects":         atomic.LoadInt64(&reconnects),
		"heartbeat_timeouts": atomic.LoadInt64(&heartbeatTimeouts),
		"goroutines":         runtime.NumGoroutine(),
		"cpu_percent":        cpuPct,
		"memory_mb":          int64(memStats.Used) / 1024 / 1024,
		"disk_mb":            int64(diskStats.Used) / 1024 / 1024,
		"flows":              flowData,
		"net_bytes_sent":     int64(bytesSent),
		"net_bytes_recv":     int64(bytesRecv),
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("DiskMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(diskStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsStream"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_stream"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsProcessing"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_processing"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("WarnsStream"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_stream"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("WarnsProcessing"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_processing"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("MessagesReceived"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["messages_received"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("RepliesSent"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["replies_sent"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorReplies"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["error_replies"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("RetryEnqueued"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["retry_enqueued"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("RetryReplayed"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["retry_replayed"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("RetryDropped"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["retry_dropped"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Reconnects"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["reconnects"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("HeartbeatTimeouts"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["heartbeat_timeouts"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("NetBytesSent"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesSent))},
		cwtypes.MetricDatum{MetricName: aws.String("NetBytesRecv"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesRecv))},
	)

	for name, stats := range flowData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("FlowMessages"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Flow"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["messages"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("FlowBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Flow"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
