package coordinator

import "sync/atomic"

// Metrics contains atomic counters for one coordinator.
type Metrics struct {
	// TickCount is the number of ticks run.
	TickCount atomic.Uint64
	// TickErrCount is the number of failed ticks.
	TickErrCount atomic.Uint64
	// ReconnectCount is the number of successful reconnects.
	ReconnectCount atomic.Uint64
	// ReconnectErrCount is the number of failed reconnects.
	ReconnectErrCount atomic.Uint64
	// SkippedBucketCount is the number of buckets skipped on a non-fatal error.
	SkippedBucketCount atomic.Uint64
	// ConsecutiveErrors is the number of failed ticks since the last success or reconnect.
	ConsecutiveErrors atomic.Uint32
}
