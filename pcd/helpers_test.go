package pcd

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-sbus/sbus"
	"github.com/arloliu/go-sbus/transport"
)

// fakeTransport records every telegram and answers through handle.
type fakeTransport struct {
	kind   transport.Kind
	handle func(req []byte) ([]byte, error)

	mu        sync.Mutex
	requests  [][]byte
	connected bool

	active    atomic.Int32
	maxActive atomic.Int32
	metrics   transport.Metrics
}

var _ transport.Transport = (*fakeTransport)(nil)

func newFakeTransport(kind transport.Kind, handle func([]byte) ([]byte, error)) *fakeTransport {
	return &fakeTransport{kind: kind, handle: handle, connected: true}
}

func (f *fakeTransport) Connect(context.Context) error {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()

	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()

	return nil
}

func (f *fakeTransport) SendAndReceive(_ context.Context, telegram []byte) ([]byte, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxActive.Load()
		if n <= m || f.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	f.requests = append(f.requests, append([]byte(nil), telegram...))
	f.mu.Unlock()

	return f.handle(telegram)
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.connected
}

func (f *fakeTransport) Kind() transport.Kind { return f.kind }

func (f *fakeTransport) Metrics() *transport.Metrics { return &f.metrics }

func (f *fakeTransport) String() string { return "fake://pcd" }

func (f *fakeTransport) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.requests)
}

func (f *fakeTransport) request(i int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.requests[i]
}

// reply answers every request with a RESPONSE carrying data.
func reply(format sbus.Format, data []byte) func([]byte) ([]byte, error) {
	return func(req []byte) ([]byte, error) {
		t, err := sbus.ParseTelegram(format, req)
		if err != nil {
			return nil, err
		}

		resp := &sbus.Telegram{
			Sequence:  t.Sequence,
			Station:   t.Station,
			Attribute: sbus.AttrResponse,
			Command:   t.Command,
			Address:   t.Address,
			Count:     t.Count,
			Data:      data,
		}

		return resp.Pack(format), nil
	}
}

func fail(err error) func([]byte) ([]byte, error) {
	return func([]byte) ([]byte, error) { return nil, err }
}
