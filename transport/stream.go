package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/arloliu/go-sbus/sbus"
)

// errReadTimeout is returned by readChunk when nothing arrived in time.
var errReadTimeout = errors.New("transport: read timeout")

// stream is a byte-oriented connection: a TCP socket, a serial line or a
// WebSocket bridge.
type stream interface {
	// readChunk reads whatever is available, waiting at most timeout for
	// the first byte. It returns errReadTimeout when nothing arrived.
	readChunk(p []byte, timeout time.Duration) (int, error)
	// writeAll writes p completely.
	writeAll(p []byte) error
	// discard drops buffered input and returns the number of bytes or
	// messages dropped (-1 when the medium cannot tell).
	discard() int
	Close() error
}

// netStream is a stream over a net.Conn.
type netStream struct {
	conn         net.Conn
	writeTimeout time.Duration
}

func newNetStream(conn net.Conn, writeTimeout time.Duration) *netStream {
	return &netStream{conn: conn, writeTimeout: writeTimeout}
}

func (s *netStream) readChunk(p []byte, timeout time.Duration) (int, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}

	n, err := s.conn.Read(p)
	if err != nil && isTimeout(err) {
		return n, errReadTimeout
	}

	return n, err
}

func (s *netStream) writeAll(p []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}

	for written := 0; written < len(p); {
		n, err := s.conn.Write(p[written:])
		written += n

		if err != nil {
			return err
		}
	}

	return nil
}

// discard reads until the socket has nothing buffered. A deadline already
// in the past would skip the read entirely, so a short future one is used.
func (s *netStream) discard() int {
	var buf [256]byte
	total := 0

	for total < MaxFrameSize*4 {
		_ = s.conn.SetReadDeadline(time.Now().Add(time.Millisecond))

		n, err := s.conn.Read(buf[:])
		total += n

		if err != nil {
			break
		}
	}

	return total
}

func (s *netStream) Close() error {
	return s.conn.Close()
}

// readFrame reads one response frame from s.
//
// The first chunk may take up to timeout. After that, when frameSize knows
// the frame's total size, reading continues until the frame is complete or
// the timeout expires. When the size is unknown, the frame ends at the
// first silence of gap. Reads are bounded by MaxFrameSize.
func readFrame(ctx context.Context, s stream, timeout, gap time.Duration, frameSize func([]byte) (int, bool)) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	buf := make([]byte, 0, MaxFrameSize)
	chunk := make([]byte, MaxFrameSize)

	for {
		if err := ctx.Err(); err != nil {
			return nil, ctxError(err)
		}

		size, known := 0, false
		if frameSize != nil && len(buf) > 0 {
			size, known = frameSize(buf)
			if known && (size < sbus.MinTelegramSize || size > MaxFrameSize) {
				// implausible length field: let the codec report it
				known = false
			}
			if known && len(buf) >= size {
				return buf[:size], nil
			}
		}

		wait := time.Until(deadline)
		if len(buf) > 0 && !known {
			wait = min(wait, gap)
		}
		if wait <= 0 {
			if len(buf) == 0 || known {
				return nil, fmt.Errorf("%w: no complete response within %v (%d bytes buffered)", sbus.ErrTimeout, timeout, len(buf))
			}

			return buf, nil
		}

		n, err := s.readChunk(chunk[:MaxFrameSize-len(buf)], wait)
		buf = append(buf, chunk[:n]...)

		switch {
		case errors.Is(err, errReadTimeout):
			if len(buf) > 0 && !known && n == 0 {
				return buf, nil
			}
		case err != nil:
			return nil, fmt.Errorf("%w: read: %w", sbus.ErrConnection, err)
		}

		if len(buf) >= MaxFrameSize {
			return buf, nil
		}
	}
}

// ctxError maps a context error: a caller deadline counts as a timeout,
// cancellation is returned as is.
func ctxError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", sbus.ErrTimeout, err)
	}

	return err
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}
