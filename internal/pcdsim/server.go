package pcdsim

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/arloliu/go-sbus/sbus"
)

// Server exposes a Device on a loopback socket.
type Server struct {
	dev *Device

	pc net.PacketConn
	ln net.Listener

	mu    sync.Mutex
	conns map[net.Conn]struct{}

	wg   sync.WaitGroup
	once sync.Once
}

// ListenUDP serves d over UDP on addr ("127.0.0.1:0" picks a free port).
func (d *Device) ListenUDP(addr string) (*Server, error) {
	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, err
	}

	s := &Server{dev: d, pc: pc}
	s.wg.Add(1)
	go s.serveUDP()

	return s, nil
}

// ListenTCP serves d over TCP on addr. Each connection carries bare telegrams.
func (d *Device) ListenTCP(addr string) (*Server, error) {
	return d.listenTCP(addr, false)
}

// ListenProfibus serves d behind a simulated Profibus gateway on addr:
// requests and responses carry the [node][length] gateway header.
func (d *Device) ListenProfibus(addr string) (*Server, error) {
	return d.listenTCP(addr, true)
}

func (d *Device) listenTCP(addr string, profibus bool) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := &Server{dev: d, ln: ln, conns: make(map[net.Conn]struct{})}
	s.wg.Add(1)
	go s.acceptLoop(profibus)

	return s, nil
}

// Addr returns the listening address.
func (s *Server) Addr() net.Addr {
	if s.pc != nil {
		return s.pc.LocalAddr()
	}

	return s.ln.Addr()
}

// Host returns the listening IP as a string.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.Addr().String())
	return host
}

// Port returns the listening port.
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.Addr().String())
	p, _ := strconv.Atoi(port)

	return p
}

// Close stops the server and closes open connections.
func (s *Server) Close() error {
	var err error
	s.once.Do(func() {
		if s.pc != nil {
			err = s.pc.Close()
		}
		if s.ln != nil {
			err = s.ln.Close()
			s.mu.Lock()
			for c := range s.conns {
				_ = c.Close()
			}
			s.mu.Unlock()
		}
		s.wg.Wait()
	})

	return err
}

func (s *Server) serveUDP() {
	defer s.wg.Done()

	buf := make([]byte, 2048)
	for {
		n, from, err := s.pc.ReadFrom(buf)
		if err != nil {
			return
		}

		resp := s.dev.Handle(append([]byte(nil), buf[:n]...))
		if resp == nil {
			continue
		}

		if delay := s.dev.responseDelay(); delay > 0 {
			time.Sleep(delay)
		}
		_, _ = s.pc.WriteTo(resp, from)
	}
}

func (s *Server) acceptLoop(profibus bool) {
	defer s.wg.Done()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serveConn(conn, profibus)
	}
}

func (s *Server) serveConn(conn net.Conn, profibus bool) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		var (
			req  []byte
			node byte
			err  error
		)
		if profibus {
			node, req, err = readProfibusFrame(conn)
		} else {
			req, err = s.readTelegram(conn)
		}
		if err != nil {
			return
		}

		resp := s.dev.Handle(req)
		if resp == nil {
			continue
		}
		if profibus {
			resp = append([]byte{node, byte(len(resp))}, resp...)
		}

		if delay := s.dev.responseDelay(); delay > 0 {
			time.Sleep(delay)
		}
		if _, err := conn.Write(resp); err != nil {
			return
		}
	}
}

// readTelegram reads one request. Ether-S-Bus requests are delimited by
// their length field; generic requests by a single read.
func (s *Server) readTelegram(conn net.Conn) ([]byte, error) {
	if s.dev.Format() != sbus.FormatEther {
		buf := make([]byte, 1024)
		n, err := conn.Read(buf)
		if err != nil {
			return nil, err
		}

		return buf[:n], nil
	}

	var head [4]byte
	if _, err := io.ReadFull(conn, head[:]); err != nil {
		return nil, err
	}

	total := int(binary.BigEndian.Uint32(head[:]))
	if total < 4 || total > 1024 {
		return nil, errors.New("pcdsim: bad length field")
	}

	buf := make([]byte, total)
	copy(buf, head[:])
	if _, err := io.ReadFull(conn, buf[4:]); err != nil {
		return nil, err
	}

	return buf, nil
}

func readProfibusFrame(conn net.Conn) (byte, []byte, error) {
	var head [2]byte
	if _, err := io.ReadFull(conn, head[:]); err != nil {
		return 0, nil, err
	}

	buf := make([]byte, int(head[1]))
	if _, err := io.ReadFull(conn, buf); err != nil {
		return 0, nil, err
	}

	return head[0], buf, nil
}
