package coordinator

import (
	"context"
	"fmt"
	"sync"

	"github.com/arloliu/go-sbus/pcd"
	"github.com/arloliu/go-sbus/sbus"
)

type readCall struct {
	kind         string
	start, count int
}

// fakeEngine is a scripted Engine that records every call.
type fakeEngine struct {
	mu sync.Mutex

	connected  bool
	connectErr error
	regErr     error
	flagErr    error

	// regChunkErr fails only the register read starting at regChunkStart
	regChunkErr   error
	regChunkStart int

	connects    int
	disconnects int
	infoCalls   int
	reads       []readCall
}

var _ Engine = (*fakeEngine)(nil)

func newFakeEngine() *fakeEngine {
	return &fakeEngine{connected: true}
}

func (e *fakeEngine) Connect(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.connects++
	if e.connectErr != nil {
		return e.connectErr
	}
	e.connected = true

	return nil
}

func (e *fakeEngine) Disconnect() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.disconnects++
	e.connected = false

	return nil
}

func (e *fakeEngine) IsConnected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.connected
}

func (e *fakeEngine) ReadRegisters(_ context.Context, start, count int) ([]uint32, error) {
	e.mu.Lock()
	err := e.regErr
	if e.regChunkErr != nil && start == e.regChunkStart {
		err = e.regChunkErr
	}
	e.mu.Unlock()

	return e.words("registers", start, count, err)
}

func (e *fakeEngine) ReadTimers(_ context.Context, start, count int) ([]uint32, error) {
	return e.words("timers", start, count, nil)
}

func (e *fakeEngine) ReadCounters(_ context.Context, start, count int) ([]uint32, error) {
	return e.words("counters", start, count, nil)
}

func (e *fakeEngine) ReadFlags(_ context.Context, start, count int) ([]bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.reads = append(e.reads, readCall{"flags", start, count})
	if e.flagErr != nil {
		return nil, e.flagErr
	}

	values := make([]bool, count)
	for i := range values {
		values[i] = (start+i)%2 == 1
	}

	return values, nil
}

func (e *fakeEngine) GetDeviceInfo(context.Context) pcd.DeviceInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.infoCalls++

	return pcd.DeviceInfo{ProductType: fmt.Sprintf("PCD3 #%d", e.infoCalls)}
}

func (e *fakeEngine) words(kind string, start, count int, err error) ([]uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.reads = append(e.reads, readCall{kind, start, count})
	if err != nil {
		return nil, err
	}

	values := make([]uint32, count)
	for i := range values {
		values[i] = uint32((start + i) * 10)
	}

	return values, nil
}

func (e *fakeEngine) set(f func(e *fakeEngine)) {
	e.mu.Lock()
	defer e.mu.Unlock()

	f(e)
}

func (e *fakeEngine) counts() (connects, disconnects, infoCalls int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.connects, e.disconnects, e.infoCalls
}

var (
	errTimeout  = fmt.Errorf("%w: no response", sbus.ErrTimeout)
	errProtocol = fmt.Errorf("%w: bad attribute", sbus.ErrInvalidAttribute)
	errLost     = fmt.Errorf("%w: connection reset", sbus.ErrConnection)
)
