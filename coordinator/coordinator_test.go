package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-sbus/sbus"
)

func newTestCoordinator(t *testing.T, e Engine, opts ...Option) *Coordinator {
	t.Helper()

	c, err := New(e, append([]Option{WithReconnectDelay(0)}, opts...)...)
	require.NoError(t, err)

	return c
}

func TestCoordinator_Refresh(t *testing.T) {
	e := newFakeEngine()
	c := newTestCoordinator(t, e, WithID("boiler"))

	snap, err := c.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "boiler", snap.Device)
	assert.Len(t, snap.Registers, 10)
	assert.Equal(t, uint32(90), snap.Registers[9])
	assert.Len(t, snap.Flags, 32)
	assert.True(t, snap.Flags[31])
	assert.Empty(t, snap.Timers)
	assert.Empty(t, snap.Counters)
	assert.Same(t, snap, c.Last())

	connects, _, _ := e.counts()
	assert.Equal(t, 0, connects, "a connected engine is polled without reconnecting")
}

func TestCoordinator_PartialFailureIsSuccess(t *testing.T) {
	e := newFakeEngine()
	e.regErr = errProtocol
	c := newTestCoordinator(t, e)

	snap, err := c.Refresh(context.Background())
	require.NoError(t, err)

	assert.Empty(t, snap.Registers)
	assert.Len(t, snap.Flags, 32)
	assert.Equal(t, uint64(1), c.Metrics().SkippedBucketCount.Load())
	assert.Equal(t, 0, c.ConsecutiveErrors())
}

func TestCoordinator_TimeoutFailsTick(t *testing.T) {
	e := newFakeEngine()
	e.regErr = errTimeout
	c := newTestCoordinator(t, e)

	snap, err := c.Refresh(context.Background())
	require.ErrorIs(t, err, ErrUpdateFailed)
	require.ErrorIs(t, err, sbus.ErrTimeout)
	assert.Nil(t, snap)
	assert.Nil(t, c.Last())
	assert.Equal(t, 1, c.ConsecutiveErrors())

	// the tick stops at the first fatal error
	for _, r := range e.reads {
		assert.NotEqual(t, "flags", r.kind)
	}
}

func TestCoordinator_ReconnectAfterConsecutiveTimeouts(t *testing.T) {
	e := newFakeEngine()
	e.regErr = errTimeout
	c := newTestCoordinator(t, e)
	ctx := context.Background()

	for i := 1; i <= DefaultMaxConsecutiveErrors; i++ {
		_, err := c.Refresh(ctx)
		require.ErrorIs(t, err, ErrUpdateFailed)
		assert.Equal(t, i, c.ConsecutiveErrors())
	}

	connects, disconnects, _ := e.counts()
	assert.Equal(t, 0, connects)
	assert.Equal(t, 0, disconnects)

	e.set(func(e *fakeEngine) { e.regErr = nil })

	_, err := c.Refresh(ctx)
	require.NoError(t, err)

	connects, disconnects, _ = e.counts()
	assert.Equal(t, 1, connects)
	assert.Equal(t, 1, disconnects)
	assert.Equal(t, 0, c.ConsecutiveErrors())
	assert.Equal(t, uint64(1), c.Metrics().ReconnectCount.Load())
	assert.Equal(t, uint64(3), c.Metrics().TickErrCount.Load())
}

func TestCoordinator_ConnectionLossReconnectsNextTick(t *testing.T) {
	e := newFakeEngine()
	e.flagErr = errLost
	c := newTestCoordinator(t, e)

	_, err := c.Refresh(context.Background())
	require.ErrorIs(t, err, sbus.ErrConnection)
	assert.Equal(t, 1, c.ConsecutiveErrors())

	e.set(func(e *fakeEngine) { e.flagErr = nil })

	_, err = c.Refresh(context.Background())
	require.NoError(t, err)

	connects, _, _ := e.counts()
	assert.Equal(t, 1, connects)
}

func TestCoordinator_ReconnectFailure(t *testing.T) {
	e := newFakeEngine()
	e.connected = false
	e.connectErr = errLost
	c := newTestCoordinator(t, e)

	_, err := c.Refresh(context.Background())
	require.ErrorIs(t, err, ErrUpdateFailed)
	require.ErrorContains(t, err, "reconnect")
	assert.Equal(t, uint64(1), c.Metrics().ReconnectErrCount.Load())
	assert.Empty(t, e.reads, "nothing is polled without a connection")

	e.set(func(e *fakeEngine) { e.connectErr = nil })

	_, err = c.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, e.IsConnected())
}

func TestCoordinator_ReconnectDelay(t *testing.T) {
	e := newFakeEngine()
	e.flagErr = errLost
	c := newTestCoordinator(t, e, WithReconnectDelay(200*time.Millisecond))

	_, err := c.Refresh(context.Background())
	require.ErrorIs(t, err, sbus.ErrConnection)

	// only reconnects after a first connect wait
	c.everConnected.Store(true)
	e.set(func(e *fakeEngine) { e.flagErr = nil })

	start := time.Now()
	_, err = c.Refresh(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)

	// a cancelled wait fails the tick
	c.disconnected.Store(true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.Refresh(ctx)
	require.ErrorIs(t, err, ErrUpdateFailed)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCoordinator_FirstConnectSkipsDelay(t *testing.T) {
	e := newFakeEngine()
	e.connected = false
	c := newTestCoordinator(t, e, WithReconnectDelay(time.Minute))

	start := time.Now()
	_, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCoordinator_DeviceInfoCachedUntilReconnect(t *testing.T) {
	e := newFakeEngine()
	c := newTestCoordinator(t, e)
	ctx := context.Background()

	assert.Equal(t, "PCD3 #1", c.DeviceInfo(ctx).ProductType)
	assert.Equal(t, "PCD3 #1", c.DeviceInfo(ctx).ProductType)

	// successful polls keep the cache
	_, err := c.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "PCD3 #1", c.DeviceInfo(ctx).ProductType)

	// a connection loss followed by a reconnect drops it
	e.set(func(e *fakeEngine) { e.regErr = errLost })
	_, err = c.Refresh(ctx)
	require.Error(t, err)
	assert.Equal(t, "PCD3 #1", c.DeviceInfo(ctx).ProductType)

	e.set(func(e *fakeEngine) { e.regErr = nil })
	_, err = c.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "PCD3 #2", c.DeviceInfo(ctx).ProductType)

	_, _, infoCalls := e.counts()
	assert.Equal(t, 2, infoCalls)
}

func TestCoordinator_ChunksLargeWordBlocks(t *testing.T) {
	e := newFakeEngine()
	c := newTestCoordinator(t, e, WithPlan(Plan{
		Registers: Block{Start: 100, Count: 40},
		Counters:  Block{Start: 5, Count: 2},
	}))

	snap, err := c.Refresh(context.Background())
	require.NoError(t, err)

	assert.Len(t, snap.Registers, 40)
	assert.Equal(t, uint32(1390), snap.Registers[139])
	assert.Equal(t, uint32(60), snap.Counters[6])
	assert.Equal(t, []readCall{
		{"registers", 100, 32},
		{"registers", 132, 8},
		{"counters", 5, 2},
	}, e.reads)
}

func TestCoordinator_FailedChunkLeavesBucketEmpty(t *testing.T) {
	e := newFakeEngine()
	e.regChunkErr = errProtocol
	e.regChunkStart = 132
	c := newTestCoordinator(t, e, WithPlan(Plan{
		Registers: Block{Start: 100, Count: 40},
		Counters:  Block{Start: 5, Count: 2},
	}))

	snap, err := c.Refresh(context.Background())
	require.NoError(t, err)

	assert.Empty(t, snap.Registers, "the first chunk must not leak into a skipped bucket")
	assert.Len(t, snap.Counters, 2)
	assert.Equal(t, uint64(1), c.Metrics().SkippedBucketCount.Load())
	assert.Equal(t, []readCall{
		{"registers", 100, 32},
		{"registers", 132, 8},
		{"counters", 5, 2},
	}, e.reads)
}

func TestCoordinator_Run(t *testing.T) {
	e := newFakeEngine()
	e.flagErr = errTimeout

	var (
		mu      sync.Mutex
		updates []*Snapshot
		errs    []error
	)
	sink := SinkFuncs{
		Update: func(s *Snapshot) {
			mu.Lock()
			updates = append(updates, s)
			mu.Unlock()
		},
		Error: func(device string, err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		},
	}

	c := newTestCoordinator(t, e, WithSink(sink), WithInterval(MinInterval))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(errs) == 1
	}, time.Second, 5*time.Millisecond, "first tick runs immediately")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, updates)
	assert.ErrorIs(t, errs[0], ErrUpdateFailed)
}

func TestCoordinator_Shutdown(t *testing.T) {
	e := newFakeEngine()
	c := newTestCoordinator(t, e)

	require.NoError(t, c.Shutdown())
	assert.False(t, e.IsConnected())

	_, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, e.IsConnected())
}

func TestNew_Options(t *testing.T) {
	e := newFakeEngine()

	c, err := New(e)
	require.NoError(t, err)
	assert.Equal(t, DefaultInterval, c.Interval())
	assert.Equal(t, DefaultPlan(), c.Plan())

	_, err = New(e, WithInterval(time.Second))
	require.ErrorContains(t, err, "interval 1s out of range")
	_, err = New(e, WithInterval(2*time.Hour))
	require.Error(t, err)
	_, err = New(e, WithPlan(Plan{}))
	require.ErrorContains(t, err, "empty poll plan")
	_, err = New(e, WithPlan(Plan{Flags: Block{Start: -1, Count: 1}}))
	require.ErrorContains(t, err, "invalid flags block")
	_, err = New(e, WithMaxConsecutiveErrors(0))
	require.Error(t, err)
	_, err = New(e, WithSink(nil))
	require.Error(t, err)
	_, err = New(nil)
	require.Error(t, err)
}

func TestMultiSink(t *testing.T) {
	var updates []string
	var errs []error

	record := SinkFuncs{
		Update: func(snap *Snapshot) { updates = append(updates, snap.Device) },
		Error:  func(_ string, err error) { errs = append(errs, err) },
	}
	s := MultiSink{record, SinkFuncs{}, record}

	s.OnUpdate(&Snapshot{Device: "pcd"})
	s.OnError("pcd", ErrUpdateFailed)

	assert.Equal(t, []string{"pcd", "pcd"}, updates)
	assert.Len(t, errs, 2)
}
