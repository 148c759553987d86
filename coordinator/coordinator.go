package coordinator

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-sbus/internal/pool"
	"github.com/arloliu/go-sbus/logger"
	"github.com/arloliu/go-sbus/pcd"
	"github.com/arloliu/go-sbus/sbus"
)

// ErrUpdateFailed is wrapped by every failed tick.
var ErrUpdateFailed = errors.New("coordinator: update failed")

// Engine is the part of pcd.Client a Coordinator drives.
type Engine interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool
	ReadRegisters(ctx context.Context, start, count int) ([]uint32, error)
	ReadFlags(ctx context.Context, start, count int) ([]bool, error)
	ReadTimers(ctx context.Context, start, count int) ([]uint32, error)
	ReadCounters(ctx context.Context, start, count int) ([]uint32, error)
	GetDeviceInfo(ctx context.Context) pcd.DeviceInfo
}

var _ Engine = (*pcd.Client)(nil)

// Coordinator polls one engine. Refresh, Run and DeviceInfo are safe for
// concurrent use; ticks never overlap.
type Coordinator struct {
	engine  Engine
	cfg     *coordConfig
	logger  logger.Logger
	metrics Metrics

	tickMu        sync.Mutex
	disconnected  atomic.Bool
	everConnected atomic.Bool

	infoMu sync.Mutex
	info   *pcd.DeviceInfo

	last atomic.Pointer[Snapshot]

	now func() time.Time
}

// New creates a coordinator for engine.
func New(engine Engine, opts ...Option) (*Coordinator, error) {
	if engine == nil {
		return nil, errors.New("coordinator: nil engine")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return &Coordinator{
		engine: engine,
		cfg:    cfg,
		logger: cfg.logger.With("device", cfg.id),
		now:    time.Now,
	}, nil
}

// ID returns the coordinator's device id.
func (c *Coordinator) ID() string { return c.cfg.id }

// Interval returns the polling interval.
func (c *Coordinator) Interval() time.Duration { return c.cfg.interval }

// Plan returns the poll plan.
func (c *Coordinator) Plan() Plan { return c.cfg.plan }

// Metrics returns the coordinator's counters.
func (c *Coordinator) Metrics() *Metrics { return &c.metrics }

// ConsecutiveErrors returns the number of failed ticks since the last success or reconnect.
func (c *Coordinator) ConsecutiveErrors() int { return int(c.metrics.ConsecutiveErrors.Load()) }

// Last returns the most recent snapshot, or nil before the first successful tick.
func (c *Coordinator) Last() *Snapshot { return c.last.Load() }

// Refresh runs one tick: reconnect when needed, read every block of the plan
// and store the snapshot.
func (c *Coordinator) Refresh(ctx context.Context) (*Snapshot, error) {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	c.metrics.TickCount.Add(1)

	errs := int(c.metrics.ConsecutiveErrors.Load())
	if c.disconnected.Load() || !c.engine.IsConnected() || errs >= c.cfg.maxErrors {
		if err := c.reconnect(ctx); err != nil {
			c.metrics.TickErrCount.Add(1)
			return nil, fmt.Errorf("%w: reconnect: %w", ErrUpdateFailed, err)
		}
	}

	snap := newSnapshot(c.cfg.id, c.now())
	plan := c.cfg.plan

	steps := []struct {
		name  string
		block Block
		read  func(ctx context.Context, b Block) error
	}{
		{"registers", plan.Registers, func(ctx context.Context, b Block) error {
			return c.readWords(ctx, c.engine.ReadRegisters, b, snap.Registers)
		}},
		{"flags", plan.Flags, func(ctx context.Context, b Block) error {
			values, err := c.engine.ReadFlags(ctx, b.Start, b.Count)
			if err != nil {
				return err
			}
			for i, v := range values {
				snap.Flags[b.Start+i] = v
			}

			return nil
		}},
		{"timers", plan.Timers, func(ctx context.Context, b Block) error {
			return c.readWords(ctx, c.engine.ReadTimers, b, snap.Timers)
		}},
		{"counters", plan.Counters, func(ctx context.Context, b Block) error {
			return c.readWords(ctx, c.engine.ReadCounters, b, snap.Counters)
		}},
	}

	for _, step := range steps {
		if step.block.Count == 0 {
			continue
		}

		err := step.read(ctx, step.block)
		if err == nil {
			continue
		}

		if ctx.Err() != nil {
			c.metrics.TickErrCount.Add(1)
			return nil, fmt.Errorf("%w: %s: %w", ErrUpdateFailed, step.name, err)
		}

		if isFatal(err) {
			return nil, c.fail(step.name, err)
		}

		c.metrics.SkippedBucketCount.Add(1)
		c.logger.Debug("coordinator: skipped bucket", "bucket", step.name, "error", err)
	}

	c.metrics.ConsecutiveErrors.Store(0)
	c.disconnected.Store(false)
	c.everConnected.Store(true)
	c.last.Store(snap)

	return snap, nil
}

// readWords reads a word block in chunks the engine accepts in one request.
// The bucket is filled only when every chunk succeeded; a skipped bucket
// stays empty.
func (c *Coordinator) readWords(ctx context.Context, read func(context.Context, int, int) ([]uint32, error), b Block, bucket map[int]uint32) error {
	values := make(map[int]uint32, b.Count)
	for offset := 0; offset < b.Count; offset += pcd.MaxRegisterCount {
		start := b.Start + offset
		count := min(pcd.MaxRegisterCount, b.Count-offset)

		chunk, err := read(ctx, start, count)
		if err != nil {
			return err
		}
		for i, v := range chunk {
			values[start+i] = v
		}
	}

	maps.Copy(bucket, values)

	return nil
}

func (c *Coordinator) fail(bucket string, err error) error {
	n := c.metrics.ConsecutiveErrors.Add(1)
	c.metrics.TickErrCount.Add(1)

	if errors.Is(err, sbus.ErrConnection) {
		c.disconnected.Store(true)
	}

	c.logger.Warn("coordinator: poll failed",
		"bucket", bucket, "consecutiveErrors", n, "maxErrors", c.cfg.maxErrors, "error", err)

	return fmt.Errorf("%w: %s: %w", ErrUpdateFailed, bucket, err)
}

// reconnect disconnects, waits the reconnect delay and connects again. The
// delay is skipped for the very first connect.
func (c *Coordinator) reconnect(ctx context.Context) error {
	c.logger.Info("coordinator: connecting", "consecutiveErrors", c.metrics.ConsecutiveErrors.Load())

	if err := c.engine.Disconnect(); err != nil {
		c.logger.Debug("coordinator: disconnect before reconnect failed", "error", err)
	}

	if c.everConnected.Load() {
		if err := pool.Sleep(ctx, c.cfg.reconnectDelay); err != nil {
			c.disconnected.Store(true)
			return err
		}
	}

	if err := c.engine.Connect(ctx); err != nil {
		c.disconnected.Store(true)
		c.metrics.ReconnectErrCount.Add(1)
		c.logger.Error("coordinator: reconnect failed", "error", err)

		return err
	}

	c.infoMu.Lock()
	c.info = nil
	c.infoMu.Unlock()

	c.metrics.ConsecutiveErrors.Store(0)
	c.metrics.ReconnectCount.Add(1)
	c.disconnected.Store(false)
	c.everConnected.Store(true)
	c.logger.Info("coordinator: connected")

	return nil
}

// DeviceInfo returns the device identity, reading it on first use after
// each reconnect.
func (c *Coordinator) DeviceInfo(ctx context.Context) pcd.DeviceInfo {
	c.infoMu.Lock()
	defer c.infoMu.Unlock()

	if c.info == nil {
		info := c.engine.GetDeviceInfo(ctx)
		c.info = &info
	}

	return *c.info
}

// Run refreshes immediately and then on every interval until ctx is done.
// Snapshots and failures go to the sink; failures never stop the loop.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.interval)
	defer ticker.Stop()

	for {
		c.tick(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Coordinator) tick(ctx context.Context) {
	snap, err := c.Refresh(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.cfg.sink.OnError(c.cfg.id, err)
		}

		return
	}

	c.cfg.sink.OnUpdate(snap)
}

// Shutdown disconnects the engine. The next tick reconnects.
func (c *Coordinator) Shutdown() error {
	c.disconnected.Store(true)

	if err := c.engine.Disconnect(); err != nil {
		c.logger.Error("coordinator: disconnect failed", "error", err)
		return err
	}
	c.logger.Debug("coordinator: shut down")

	return nil
}

func isFatal(err error) bool {
	return errors.Is(err, sbus.ErrTimeout) || errors.Is(err, sbus.ErrConnection)
}
