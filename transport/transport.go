package transport

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Transport moves raw telegrams to a PCD and back. Implementations own the
// connection and its state; the protocol engine never touches sockets.
//
// SendAndReceive fails with an error wrapping sbus.ErrTimeout when no
// complete response arrives within the configured timeout (after the
// transport's retry budget is spent), and with sbus.ErrNotConnected when
// called before Connect or after Disconnect. Disconnect is idempotent.
type Transport interface {
	// Connect opens the underlying connection. Connecting an already
	// connected transport is a no-op.
	Connect(ctx context.Context) error
	// Disconnect closes the underlying connection. It never fails on a
	// transport that is not connected.
	Disconnect() error
	// SendAndReceive writes one telegram and returns the raw response.
	SendAndReceive(ctx context.Context, telegram []byte) ([]byte, error)
	// IsConnected reports whether the transport is in the connected state.
	IsConnected() bool
	// Kind returns the transport variant.
	Kind() Kind
	// Metrics returns the transport's counters.
	Metrics() *Metrics
	// String returns a URL-like description of the remote end.
	String() string
}

// Kind is the transport variant.
type Kind uint8

const (
	KindEthernet Kind = iota + 1
	KindSerial
	KindProfibus
)

func (k Kind) String() string {
	switch k {
	case KindEthernet:
		return "ethernet"
	case KindSerial:
		return "serial"
	case KindProfibus:
		return "profibus"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// New creates the transport variant described by cfg.
func New(cfg *Config) (Transport, error) {
	if cfg == nil {
		return nil, fmt.Errorf("transport: nil config")
	}

	switch cfg.kind {
	case KindEthernet:
		return NewEthernet(cfg), nil
	case KindSerial:
		return NewSerial(cfg), nil
	case KindProfibus:
		return NewProfibus(cfg), nil
	default:
		return nil, fmt.Errorf("transport: unsupported kind %s", cfg.kind)
	}
}

// ConnState is the connection state of a transport.
type ConnState uint32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateDisconnecting:
		return "Disconnecting"
	default:
		return "Unknown"
	}
}

// connState holds a ConnState and moves it only along the allowed edges:
// Disconnected -> Connecting -> Connected -> Disconnecting -> Disconnected,
// with Connecting -> Disconnected on a failed connect.
type connState struct {
	state atomic.Uint32
}

func (st *connState) get() ConnState { return ConnState(st.state.Load()) }

func (st *connState) set(s ConnState) { st.state.Store(uint32(s)) }

func (st *connState) isConnected() bool { return st.get() == StateConnected }

func (st *connState) toConnecting() bool {
	return st.state.CompareAndSwap(uint32(StateDisconnected), uint32(StateConnecting))
}

func (st *connState) toConnected() bool {
	return st.state.CompareAndSwap(uint32(StateConnecting), uint32(StateConnected))
}

func (st *connState) toDisconnecting() bool {
	return st.state.CompareAndSwap(uint32(StateConnected), uint32(StateDisconnecting))
}
