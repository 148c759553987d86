package transport

import "sync/atomic"

// Metrics contains atomic counters for one transport.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type Metrics struct {
	// SendCount is the number of telegrams written, retries included.
	SendCount atomic.Uint64
	// RecvCount is the number of responses returned to the caller.
	RecvCount atomic.Uint64
	// RetryCount is the number of resends after a timeout.
	RetryCount atomic.Uint64
	// TimeoutCount is the number of attempts that timed out.
	TimeoutCount atomic.Uint64
	// StaleDropCount is the number of stale datagrams or buffered reads discarded before a send.
	StaleDropCount atomic.Uint64
	// ConnectCount is the number of successful connects.
	ConnectCount atomic.Uint64
	// ConnectErrCount is the number of failed connects.
	ConnectErrCount atomic.Uint64
	// ConnectedGauge is 1 while connected.
	ConnectedGauge atomic.Uint32
}

func (m *Metrics) incSendCount() { m.SendCount.Add(1) }

func (m *Metrics) incRecvCount() { m.RecvCount.Add(1) }

func (m *Metrics) incRetryCount() { m.RetryCount.Add(1) }

func (m *Metrics) incTimeoutCount() { m.TimeoutCount.Add(1) }

func (m *Metrics) addStaleDropCount(n int) {
	if n > 0 {
		m.StaleDropCount.Add(uint64(n))
	}
}

func (m *Metrics) onConnect() {
	m.ConnectCount.Add(1)
	m.ConnectedGauge.Store(1)
}

func (m *Metrics) incConnectErrCount() { m.ConnectErrCount.Add(1) }

func (m *Metrics) onDisconnect() { m.ConnectedGauge.Store(0) }
