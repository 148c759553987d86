package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/arloliu/go-sbus/internal/pool"
	"github.com/arloliu/go-sbus/sbus"
)

// rxQueueSize bounds the datagrams buffered between exchanges.
const rxQueueSize = 16

// EthernetTransport carries Ether-S-Bus telegrams over UDP or TCP.
//
// Over UDP, a receive goroutine owned by the transport queues every
// datagram. Each exchange first drops whatever is queued, so a late response
// to an earlier, timed out request is never returned for a new one.
type EthernetTransport struct {
	base

	mu     sync.Mutex
	conn   net.Conn
	stream *netStream
	rx     chan []byte
	done   chan struct{}
	wg     sync.WaitGroup
}

var _ Transport = (*EthernetTransport)(nil)

// NewEthernet creates an Ethernet transport. cfg must come from NewEthernetConfig.
func NewEthernet(cfg *Config) *EthernetTransport {
	return &EthernetTransport{
		base: newBase(cfg, fmt.Sprintf("%s://%s", cfg.network, cfg.Addr())),
	}
}

// Connect dials the PCD. For UDP this only binds a local socket; the first
// exchange shows whether the PCD answers.
func (t *EthernetTransport) Connect(ctx context.Context) error {
	done, err := t.beginConnect()
	if done || err != nil {
		return err
	}

	dialer := net.Dialer{Timeout: t.cfg.connectTimeout}

	conn, err := dialer.DialContext(ctx, t.cfg.network.String(), t.cfg.Addr())
	if err != nil {
		return t.endConnect(err)
	}

	t.mu.Lock()
	t.conn = conn
	if t.cfg.network == NetworkUDP {
		t.rx = make(chan []byte, rxQueueSize)
		t.done = make(chan struct{})
		t.wg.Add(1)
		go t.receiveLoop(conn, t.rx, t.done)
	} else {
		t.stream = newNetStream(conn, t.cfg.timeout)
	}
	t.mu.Unlock()

	return t.endConnect(nil)
}

// Disconnect closes the socket and stops the receive goroutine.
func (t *EthernetTransport) Disconnect() error {
	if !t.beginDisconnect() {
		return nil
	}

	t.mu.Lock()
	conn, done := t.conn, t.done
	t.conn, t.stream, t.rx, t.done = nil, nil, nil, nil
	t.mu.Unlock()

	if done != nil {
		close(done)
	}

	var err error
	if conn != nil {
		err = conn.Close()
	}
	t.wg.Wait()

	return t.endDisconnect(err)
}

// SendAndReceive sends telegram and returns the PCD's response, resending
// on timeout per the configured attempt budget.
func (t *EthernetTransport) SendAndReceive(ctx context.Context, telegram []byte) ([]byte, error) {
	return t.exchange(ctx, func(ctx context.Context) ([]byte, error) {
		t.mu.Lock()
		conn, stream, rx, done := t.conn, t.stream, t.rx, t.done
		t.mu.Unlock()

		if conn == nil {
			return nil, fmt.Errorf("%w: %s", sbus.ErrNotConnected, t.name)
		}

		if stream != nil {
			return t.tcpAttempt(ctx, stream, telegram)
		}

		return t.udpAttempt(ctx, conn, rx, done, telegram)
	})
}

func (t *EthernetTransport) udpAttempt(ctx context.Context, conn net.Conn, rx chan []byte, done chan struct{}, telegram []byte) ([]byte, error) {
	if n := drainQueue(rx); n > 0 {
		t.metrics.addStaleDropCount(n)
		t.logger.Debug("transport: dropped stale datagrams", "count", n)
	}

	t.trace("transport: send", telegram)
	if _, err := conn.Write(telegram); err != nil {
		return nil, fmt.Errorf("%w: write: %w", sbus.ErrConnection, err)
	}

	timer := pool.AcquireTimer(t.cfg.timeout)
	defer pool.ReleaseTimer(timer)

	select {
	case resp := <-rx:
		t.trace("transport: receive", resp)
		return resp, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: no datagram from %s within %v", sbus.ErrTimeout, t.cfg.Addr(), t.cfg.timeout)
	case <-ctx.Done():
		return nil, ctxError(ctx.Err())
	case <-done:
		return nil, fmt.Errorf("%w: %s closed during exchange", sbus.ErrNotConnected, t.name)
	}
}

func (t *EthernetTransport) tcpAttempt(ctx context.Context, s *netStream, telegram []byte) ([]byte, error) {
	if n := s.discard(); n > 0 {
		t.metrics.addStaleDropCount(n)
		t.logger.Debug("transport: dropped stale bytes", "count", n)
	}

	t.trace("transport: send", telegram)
	if err := s.writeAll(telegram); err != nil {
		return nil, fmt.Errorf("%w: write: %w", sbus.ErrConnection, err)
	}

	resp, err := readFrame(ctx, s, t.cfg.timeout, t.cfg.interCharTimeout, t.cfg.frameSize)
	if err != nil {
		return nil, err
	}
	t.trace("transport: receive", resp)

	return resp, nil
}

// receiveLoop queues datagrams until the socket is closed. When the queue is
// full the oldest datagram is dropped.
func (t *EthernetTransport) receiveLoop(conn net.Conn, rx chan []byte, done chan struct{}) {
	defer t.wg.Done()

	for {
		buf := make([]byte, MaxFrameSize)

		n, err := conn.Read(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-done:
				return
			default:
			}
			// ICMP port unreachable surfaces here as a read error; keep listening.
			t.logger.Debug("transport: udp receive error", "error", err)

			continue
		}

		select {
		case rx <- buf[:n]:
		default:
			select {
			case <-rx:
				t.metrics.addStaleDropCount(1)
			default:
			}
			select {
			case rx <- buf[:n]:
			default:
			}
		}
	}
}

func drainQueue(rx chan []byte) int {
	n := 0
	for {
		select {
		case <-rx:
			n++
		default:
			return n
		}
	}
}
