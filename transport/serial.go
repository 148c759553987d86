package transport

import (
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"

	"github.com/arloliu/go-sbus/internal/pool"
	"github.com/arloliu/go-sbus/sbus"
)

// openSerialPort opens a local serial device. Tests replace it.
var openSerialPort = func(name string, mode *serial.Mode) (serial.Port, error) {
	return serial.Open(name, mode)
}

// SerialTransport carries S-Bus telegrams over a serial line, either a local
// device, a TCP serial server or a WebSocket serial server.
//
// Before every exchange unread input is discarded so that a partial frame
// left over from an earlier, timed out exchange is never parsed as the new response.
type SerialTransport struct {
	base

	mu     sync.Mutex
	stream stream
}

var _ Transport = (*SerialTransport)(nil)

// NewSerial creates a serial transport. cfg must come from NewSerialConfig.
func NewSerial(cfg *Config) *SerialTransport {
	var name string
	switch cfg.serialMode {
	case SerialTCPBridge:
		name = "tcp-serial://" + cfg.Addr()
	case SerialWebSocket:
		name = redactURL(cfg.serialPort)
	default:
		name = fmt.Sprintf("serial://%s@%d", cfg.serialPort, cfg.baudRate)
	}

	return &SerialTransport{base: newBase(cfg, name)}
}

// Connect opens the serial device or connects to the bridge.
func (t *SerialTransport) Connect(ctx context.Context) error {
	done, err := t.beginConnect()
	if done || err != nil {
		return err
	}

	var s stream
	switch t.cfg.serialMode {
	case SerialTCPBridge:
		s, err = t.dialBridge(ctx)
	case SerialWebSocket:
		s, err = t.dialWebSocket(ctx)
	default:
		s, err = t.openLine()
	}
	if err != nil {
		return t.endConnect(err)
	}

	t.mu.Lock()
	t.stream = s
	t.mu.Unlock()

	return t.endConnect(nil)
}

// Disconnect closes the line or bridge connection.
func (t *SerialTransport) Disconnect() error {
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

// SendAndReceive sends telegram and returns the response frame.
func (t *SerialTransport) SendAndReceive(ctx context.Context, telegram []byte) ([]byte, error) {
	return t.exchange(ctx, func(ctx context.Context) ([]byte, error) {
		t.mu.Lock()
		s := t.stream
		t.mu.Unlock()

		if s == nil {
			return nil, fmt.Errorf("%w: %s", sbus.ErrNotConnected, t.name)
		}

		if n := s.discard(); n > 0 {
			t.metrics.addStaleDropCount(n)
			t.logger.Debug("transport: dropped stale input", "count", n)
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
	})
}

func (t *SerialTransport) openLine() (stream, error) {
	mode := &serial.Mode{
		BaudRate: t.cfg.baudRate,
		DataBits: 8,
		Parity:   serial.EvenParity,
		StopBits: serial.OneStopBit,
	}

	port, err := openSerialPort(t.cfg.serialPort, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", t.cfg.serialPort, err)
	}

	return &lineStream{port: port}, nil
}

func (t *SerialTransport) dialBridge(ctx context.Context) (stream, error) {
	dialer := net.Dialer{Timeout: t.cfg.connectTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", t.cfg.Addr())
	if err != nil {
		return nil, err
	}

	return newNetStream(conn, t.cfg.timeout), nil
}

func (t *SerialTransport) dialWebSocket(ctx context.Context) (stream, error) {
	u, err := url.Parse(t.cfg.serialPort)
	if err != nil {
		return nil, fmt.Errorf("invalid bridge URL: %w", err)
	}

	headers := http.Header{}
	if u.User != nil {
		password, _ := u.User.Password()
		credentials := base64.StdEncoding.EncodeToString([]byte(u.User.Username() + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
		u.User = nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: t.cfg.connectTimeout}

	conn, resp, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake failed (HTTP %d): %w", resp.StatusCode, err)
		}

		return nil, err
	}

	return newWSStream(conn, t.cfg.timeout), nil
}

// lineStream is a stream over a local serial port.
type lineStream struct {
	port serial.Port
}

func (s *lineStream) readChunk(p []byte, timeout time.Duration) (int, error) {
	if err := s.port.SetReadTimeout(timeout); err != nil {
		return 0, err
	}

	n, err := s.port.Read(p)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, errReadTimeout
	}

	return n, nil
}

func (s *lineStream) writeAll(p []byte) error {
	for written := 0; written < len(p); {
		n, err := s.port.Write(p[written:])
		written += n

		if err != nil {
			return err
		}
	}

	return nil
}

// discard resets the driver's input buffer; the dropped byte count is unknown.
func (s *lineStream) discard() int {
	_ = s.port.ResetInputBuffer()
	return -1
}

func (s *lineStream) Close() error {
	return s.port.Close()
}

// wsStream is a stream over a WebSocket serial bridge. Binary messages are
// queued by a reader goroutine because a gorilla read that hits its deadline
// breaks the connection for good.
type wsStream struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	rx      chan []byte
	pending []byte

	closed    chan struct{}
	closeOnce sync.Once
	readErr   error
	wg        sync.WaitGroup
}

func newWSStream(conn *websocket.Conn, writeTimeout time.Duration) *wsStream {
	s := &wsStream{
		conn:         conn,
		writeTimeout: writeTimeout,
		rx:           make(chan []byte, rxQueueSize),
		closed:       make(chan struct{}),
	}

	s.wg.Add(1)
	go s.readLoop()

	return s
}

func (s *wsStream) readLoop() {
	defer s.wg.Done()

	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			s.closeOnce.Do(func() {
				s.readErr = err
				close(s.closed)
			})

			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}

		select {
		case s.rx <- data:
		case <-s.closed:
			return
		}
	}
}

func (s *wsStream) readChunk(p []byte, timeout time.Duration) (int, error) {
	if len(s.pending) > 0 {
		n := copy(p, s.pending)
		s.pending = s.pending[n:]

		return n, nil
	}

	timer := pool.AcquireTimer(timeout)
	defer pool.ReleaseTimer(timer)

	select {
	case msg := <-s.rx:
		n := copy(p, msg)
		s.pending = msg[n:]

		return n, nil
	case <-timer.C:
		return 0, errReadTimeout
	case <-s.closed:
		if s.readErr != nil {
			return 0, s.readErr
		}

		return 0, net.ErrClosed
	}
}

func (s *wsStream) writeAll(p []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}

	return s.conn.WriteMessage(websocket.BinaryMessage, p)
}

func (s *wsStream) discard() int {
	n := len(s.pending)
	s.pending = nil

	return n + drainQueue(s.rx)
}

func (s *wsStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	err := s.conn.Close()
	s.wg.Wait()

	return err
}

// redactURL hides bridge credentials in names and logs.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	return u.Redacted()
}
