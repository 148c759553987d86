package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/arloliu/go-sbus/sbus"
)

// profibusHeaderSize is the size of the gateway header: node address and length.
const profibusHeaderSize = 2

// ProfibusTransport carries S-Bus telegrams over TCP to a Profibus gateway.
//
// Outbound, the gateway expects [node address][telegram length] in front of
// the telegram. Inbound, the same two-byte header precedes the response and
// is stripped before the telegram is returned. The gateway header is not
// part of the S-Bus telegram and is not covered by its CRC.
type ProfibusTransport struct {
	base

	mu     sync.Mutex
	stream *netStream
}

var _ Transport = (*ProfibusTransport)(nil)

// NewProfibus creates a Profibus gateway transport. cfg must come from NewProfibusConfig.
func NewProfibus(cfg *Config) *ProfibusTransport {
	return &ProfibusTransport{
		base: newBase(cfg, fmt.Sprintf("profibus://%s/%d", cfg.Addr(), cfg.profibusAddress)),
	}
}

// Connect opens the TCP connection to the gateway.
func (t *ProfibusTransport) Connect(ctx context.Context) error {
	done, err := t.beginConnect()
	if done || err != nil {
		return err
	}

	dialer := net.Dialer{Timeout: t.cfg.connectTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", t.cfg.Addr())
	if err != nil {
		return t.endConnect(err)
	}

	t.mu.Lock()
	t.stream = newNetStream(conn, t.cfg.timeout)
	t.mu.Unlock()

	return t.endConnect(nil)
}

// Disconnect closes the gateway connection.
func (t *ProfibusTransport) Disconnect() error {
	if !t.beginDisconnect() {
		return nil
	}

	t.mu.Lock()
	s := t.stream
	t.stream = nil
	t.mu.Unlock()

	var err error
	if s != nil {
		err = s.Close()
	}

	return t.endDisconnect(err)
}

// SendAndReceive wraps telegram in the gateway header, sends it and returns
// the unwrapped response telegram.
func (t *ProfibusTransport) SendAndReceive(ctx context.Context, telegram []byte) ([]byte, error) {
	frame, err := WrapProfibus(t.cfg.profibusAddress, telegram)
	if err != nil {
		return nil, err
	}

	return t.exchange(ctx, func(ctx context.Context) ([]byte, error) {
		t.mu.Lock()
		s := t.stream
		t.mu.Unlock()

		if s == nil {
			return nil, fmt.Errorf("%w: %s", sbus.ErrNotConnected, t.name)
		}

		if n := s.discard(); n > 0 {
			t.metrics.addStaleDropCount(n)
			t.logger.Debug("transport: dropped stale bytes", "count", n)
		}

		t.trace("transport: send", frame)
		if err := s.writeAll(frame); err != nil {
			return nil, fmt.Errorf("%w: write: %w", sbus.ErrConnection, err)
		}

		resp, err := readFrame(ctx, s, t.cfg.timeout, t.cfg.interCharTimeout, profibusFrameSize)
		if err != nil {
			return nil, err
		}
		t.trace("transport: receive", resp)

		return UnwrapProfibus(resp)
	})
}

// WrapProfibus prepends the gateway header for node to telegram.
func WrapProfibus(node uint8, telegram []byte) ([]byte, error) {
	if len(telegram) > 0xFF {
		return nil, fmt.Errorf("%w: telegram of %d bytes exceeds the gateway limit of 255", sbus.ErrOutOfRange, len(telegram))
	}

	frame := make([]byte, 0, profibusHeaderSize+len(telegram))
	frame = append(frame, node, byte(len(telegram)))

	return append(frame, telegram...), nil
}

// UnwrapProfibus strips the gateway header from a gateway frame.
func UnwrapProfibus(frame []byte) ([]byte, error) {
	if len(frame) <= profibusHeaderSize {
		return nil, fmt.Errorf("%w: gateway frame of %d bytes", sbus.ErrTooShort, len(frame))
	}

	return frame[profibusHeaderSize:], nil
}

// profibusFrameSize reads the frame size from the gateway length byte.
func profibusFrameSize(buf []byte) (int, bool) {
	if len(buf) < profibusHeaderSize {
		return 0, false
	}

	return profibusHeaderSize + int(buf[1]), true
}
