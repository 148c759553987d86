// Package metrics exposes transport and coordinator counters, and the polled
// PCD values, as Prometheus metrics.
package metrics

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arloliu/go-sbus/coordinator"
	"github.com/arloliu/go-sbus/transport"
)

const namespace = "sbus"

// Register registers CounterFunc and GaugeFunc metrics reading tm and cm under
// a constant device label. Either source may be nil.
func Register(reg prometheus.Registerer, device string, tm *transport.Metrics, cm *coordinator.Metrics) error {
	labels := prometheus.Labels{"device": device}

	var collectors []prometheus.Collector

	counter := func(subsystem, name, help string, f func() uint64) {
		collectors = append(collectors, prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return float64(f()) }))
	}
	gauge := func(subsystem, name, help string, f func() float64) {
		collectors = append(collectors, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, f))
	}

	if tm != nil {
		counter("transport", "sends_total", "Telegrams written, resends included.", tm.SendCount.Load)
		counter("transport", "receives_total", "Responses returned to the engine.", tm.RecvCount.Load)
		counter("transport", "retries_total", "Resends after a timeout.", tm.RetryCount.Load)
		counter("transport", "timeouts_total", "Attempts that timed out.", tm.TimeoutCount.Load)
		counter("transport", "stale_drops_total", "Stale datagrams or bytes discarded before a send.", tm.StaleDropCount.Load)
		counter("transport", "connects_total", "Successful connects.", tm.ConnectCount.Load)
		counter("transport", "connect_errors_total", "Failed connects.", tm.ConnectErrCount.Load)
		gauge("transport", "connected", "1 while the transport is connected.", func() float64 {
			return float64(tm.ConnectedGauge.Load())
		})
	}

	if cm != nil {
		counter("coordinator", "ticks_total", "Poll ticks run.", cm.TickCount.Load)
		counter("coordinator", "tick_errors_total", "Failed poll ticks.", cm.TickErrCount.Load)
		counter("coordinator", "reconnects_total", "Successful reconnects.", cm.ReconnectCount.Load)
		counter("coordinator", "reconnect_errors_total", "Failed reconnects.", cm.ReconnectErrCount.Load)
		counter("coordinator", "skipped_buckets_total", "Buckets skipped on a non-fatal error.", cm.SkippedBucketCount.Load)
		gauge("coordinator", "consecutive_errors", "Failed ticks since the last success or reconnect.", func() float64 {
			return float64(cm.ConsecutiveErrors.Load())
		})
	}

	var errs []error
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Handler serves the metrics gathered from g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ValueExporter is a coordinator.Sink publishing every snapshot as gauges
// labelled by device and address.
type ValueExporter struct {
	registers *prometheus.GaugeVec
	flags     *prometheus.GaugeVec
	timers    *prometheus.GaugeVec
	counters  *prometheus.GaugeVec
	updated   *prometheus.GaugeVec
}

var _ coordinator.Sink = (*ValueExporter)(nil)

// NewValueExporter creates the value gauges and registers them with reg.
func NewValueExporter(reg prometheus.Registerer) (*ValueExporter, error) {
	vec := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	}

	e := &ValueExporter{
		registers: vec("register_value", "Last polled register value.", "device", "address"),
		flags:     vec("flag_value", "Last polled flag state (0 or 1).", "device", "address"),
		timers:    vec("timer_value", "Last polled timer value.", "device", "address"),
		counters:  vec("counter_value", "Last polled counter value.", "device", "address"),
		updated:   vec("last_update_timestamp_seconds", "Time of the last successful poll.", "device"),
	}

	for _, c := range []prometheus.Collector{e.registers, e.flags, e.timers, e.counters, e.updated} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return e, nil
}

func (e *ValueExporter) OnUpdate(snap *coordinator.Snapshot) {
	for addr, v := range snap.Registers {
		e.registers.WithLabelValues(snap.Device, strconv.Itoa(addr)).Set(float64(v))
	}
	for addr, v := range snap.Flags {
		f := 0.0
		if v {
			f = 1
		}
		e.flags.WithLabelValues(snap.Device, strconv.Itoa(addr)).Set(f)
	}
	for addr, v := range snap.Timers {
		e.timers.WithLabelValues(snap.Device, strconv.Itoa(addr)).Set(float64(v))
	}
	for addr, v := range snap.Counters {
		e.counters.WithLabelValues(snap.Device, strconv.Itoa(addr)).Set(float64(v))
	}
	e.updated.WithLabelValues(snap.Device).Set(float64(snap.Time.UnixNano()) / 1e9)
}

// OnError is a no-op; failures are counted by the coordinator metrics.
func (e *ValueExporter) OnError(string, error) {}
