package transport

import (
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/arloliu/go-sbus/logger"
	"github.com/arloliu/go-sbus/sbus"
)

// Defaults.
const (
	DefaultPort             = 5050
	DefaultTimeout          = 5 * time.Second
	DefaultConnectTimeout   = 5 * time.Second
	DefaultInterCharTimeout = 50 * time.Millisecond
	DefaultRetryDelay       = 500 * time.Millisecond
	DefaultBaudRate         = 9600

	// DefaultEthernetAttempts is the attempt budget of Ethernet transports:
	// a send plus two resends after 0.5s and 1s.
	DefaultEthernetAttempts = 3
	// DefaultAttempts is the attempt budget of serial and Profibus transports.
	DefaultAttempts = 1

	// MaxFrameSize bounds a single response read.
	MaxFrameSize = 1024
)

// Limits.
const (
	MinTimeout = 100 * time.Millisecond
	MaxTimeout = 60 * time.Second

	MinInterCharTimeout = 1 * time.Millisecond
	MaxInterCharTimeout = 5 * time.Second

	MaxRetryDelay = 30 * time.Second

	MaxAttempts = 10

	MaxProfibusAddress = 126
)

// BaudRates is the set of baud rates accepted for direct serial lines.
var BaudRates = []int{1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200}

// Network selects UDP or TCP for Ethernet transports.
type Network uint8

const (
	NetworkUDP Network = iota
	NetworkTCP
)

func (n Network) String() string {
	if n == NetworkTCP {
		return "tcp"
	}

	return "udp"
}

// SerialMode selects how a serial transport reaches the line.
type SerialMode uint8

const (
	// SerialLine opens a local serial device (8 data bits, even parity, 1 stop bit).
	SerialLine SerialMode = iota
	// SerialTCPBridge connects to a serial server given as host:port.
	SerialTCPBridge
	// SerialWebSocket connects to a serial server given as a ws:// or wss:// URL.
	SerialWebSocket
)

func (m SerialMode) String() string {
	switch m {
	case SerialTCPBridge:
		return "tcp_serial"
	case SerialWebSocket:
		return "websocket"
	default:
		return "usb"
	}
}

// Config holds the configuration of one transport. Create it with
// NewEthernetConfig, NewSerialConfig or NewProfibusConfig and pass it to New.
type Config struct {
	kind Kind

	// Ethernet and Profibus gateway endpoint.
	network Network
	host    string
	port    int

	// Serial endpoint.
	serialPort string
	serialMode SerialMode
	baudRate   int

	profibusAddress uint8

	timeout          time.Duration
	connectTimeout   time.Duration
	interCharTimeout time.Duration

	// attempts is the number of sends per exchange; only timeouts are retried.
	attempts   int
	retryDelay time.Duration

	// frameSize reports the total size of a buffered frame when known.
	frameSize func([]byte) (int, bool)

	logger logger.Logger
}

func newConfig(kind Kind) *Config {
	return &Config{
		kind:             kind,
		port:             DefaultPort,
		baudRate:         DefaultBaudRate,
		timeout:          DefaultTimeout,
		connectTimeout:   DefaultConnectTimeout,
		interCharTimeout: DefaultInterCharTimeout,
		attempts:         DefaultAttempts,
		retryDelay:       DefaultRetryDelay,
		logger:           logger.GetLogger(),
	}
}

// NewEthernetConfig creates an Ethernet (Ether-S-Bus) configuration.
// The network defaults to UDP and the attempt budget to DefaultEthernetAttempts.
func NewEthernetConfig(host string, port int, opts ...Option) (*Config, error) {
	cfg := newConfig(KindEthernet)
	cfg.attempts = DefaultEthernetAttempts

	if err := cfg.setHost(host); err != nil {
		return nil, err
	}
	if err := cfg.setPort(port); err != nil {
		return nil, err
	}

	return cfg.apply(opts)
}

// NewSerialConfig creates a serial configuration. port is a device path for
// SerialLine, "host:port" for SerialTCPBridge, or a ws:// URL for
// SerialWebSocket. A ws:// or wss:// port selects SerialWebSocket
// automatically; WithTCPBridge selects the bridge mode.
func NewSerialConfig(port string, opts ...Option) (*Config, error) {
	cfg := newConfig(KindSerial)

	port = strings.TrimSpace(port)
	if port == "" {
		return nil, fmt.Errorf("transport: empty serial port")
	}
	cfg.serialPort = port
	if strings.HasPrefix(port, "ws://") || strings.HasPrefix(port, "wss://") {
		cfg.serialMode = SerialWebSocket
	}

	cfg, err := cfg.apply(opts)
	if err != nil {
		return nil, err
	}

	if cfg.serialMode == SerialTCPBridge {
		host, p, err := SplitBridgeAddress(cfg.serialPort)
		if err != nil {
			return nil, err
		}
		cfg.host, cfg.port = host, p
	}

	return cfg, nil
}

// NewProfibusConfig creates a Profibus gateway configuration for the gateway
// at host:port and the Profibus node address (0..126) behind it.
func NewProfibusConfig(host string, port int, address int, opts ...Option) (*Config, error) {
	cfg := newConfig(KindProfibus)
	cfg.network = NetworkTCP

	if err := cfg.setHost(host); err != nil {
		return nil, err
	}
	if err := cfg.setPort(port); err != nil {
		return nil, err
	}
	if address < 0 || address > MaxProfibusAddress {
		return nil, fmt.Errorf("transport: profibus address %d out of range [0, %d]", address, MaxProfibusAddress)
	}
	cfg.profibusAddress = uint8(address)

	return cfg.apply(opts)
}

// SplitBridgeAddress splits a "host:port" serial bridge address on its last colon.
func SplitBridgeAddress(addr string) (string, int, error) {
	idx := strings.LastIndex(addr, ":")
	if idx <= 0 || idx == len(addr)-1 {
		return "", 0, fmt.Errorf("transport: invalid TCP serial address %q, expected host:port", addr)
	}

	port, err := strconv.Atoi(addr[idx+1:])
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("transport: invalid TCP serial port in %q", addr)
	}

	host := strings.TrimSuffix(strings.TrimPrefix(addr[:idx], "["), "]")

	return host, port, nil
}

func (cfg *Config) apply(opts []Option) (*Config, error) {
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (cfg *Config) setHost(host string) error {
	host = strings.TrimSpace(host)
	if host == "" {
		return fmt.Errorf("transport: empty host")
	}
	cfg.host = host

	return nil
}

func (cfg *Config) setPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("transport: port %d out of range [1, 65535]", port)
	}
	cfg.port = port

	return nil
}

// --- Getters ---

// Kind returns the transport variant.
func (cfg *Config) Kind() Kind { return cfg.kind }

// Network returns UDP or TCP for Ethernet transports.
func (cfg *Config) Network() Network { return cfg.network }

// Host returns the remote host.
func (cfg *Config) Host() string { return cfg.host }

// Port returns the remote port.
func (cfg *Config) Port() int { return cfg.port }

// Addr returns "host:port".
func (cfg *Config) Addr() string { return net.JoinHostPort(cfg.host, strconv.Itoa(cfg.port)) }

// SerialPort returns the serial device path, bridge address or URL.
func (cfg *Config) SerialPort() string { return cfg.serialPort }

// SerialMode returns how a serial transport reaches the line.
func (cfg *Config) SerialMode() SerialMode { return cfg.serialMode }

// BaudRate returns the serial line baud rate.
func (cfg *Config) BaudRate() int { return cfg.baudRate }

// ProfibusAddress returns the Profibus node address.
func (cfg *Config) ProfibusAddress() uint8 { return cfg.profibusAddress }

// Timeout returns the response timeout of one attempt.
func (cfg *Config) Timeout() time.Duration { return cfg.timeout }

// ConnectTimeout returns the dial timeout.
func (cfg *Config) ConnectTimeout() time.Duration { return cfg.connectTimeout }

// InterCharTimeout returns the silence that ends a frame of unknown size.
func (cfg *Config) InterCharTimeout() time.Duration { return cfg.interCharTimeout }

// Attempts returns the number of sends per exchange.
func (cfg *Config) Attempts() int { return cfg.attempts }

// RetryDelay returns the backoff before the first resend; it doubles per resend.
func (cfg *Config) RetryDelay() time.Duration { return cfg.retryDelay }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// backoff returns the delay before the given attempt (2 for the first resend).
func (cfg *Config) backoff(attempt int) time.Duration {
	if attempt < 2 {
		return 0
	}

	return cfg.retryDelay << (attempt - 2)
}

// --- Option ---

// Option is a functional option for configuring a Config.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithUDP selects UDP for an Ethernet transport. This is the default.
func WithUDP() Option {
	return optFunc(func(cfg *Config) error {
		if cfg.kind != KindEthernet {
			return fmt.Errorf("transport: UDP is only available for ethernet transports")
		}
		cfg.network = NetworkUDP

		return nil
	})
}

// WithTCP selects TCP for an Ethernet transport.
func WithTCP() Option {
	return optFunc(func(cfg *Config) error {
		if cfg.kind != KindEthernet {
			return fmt.Errorf("transport: TCP option is only available for ethernet transports")
		}
		cfg.network = NetworkTCP

		return nil
	})
}

// WithTCPBridge makes a serial transport connect to a TCP serial server
// given as "host:port" instead of opening a local device.
func WithTCPBridge() Option {
	return optFunc(func(cfg *Config) error {
		if cfg.kind != KindSerial {
			return fmt.Errorf("transport: TCP bridge is only available for serial transports")
		}
		cfg.serialMode = SerialTCPBridge

		return nil
	})
}

// WithBaudRate sets the serial line baud rate. It must be one of BaudRates.
func WithBaudRate(baud int) Option {
	return optFunc(func(cfg *Config) error {
		if !slices.Contains(BaudRates, baud) {
			return fmt.Errorf("transport: baud rate %d not in %v", baud, BaudRates)
		}
		cfg.baudRate = baud

		return nil
	})
}

// WithTimeout sets the response timeout of one attempt.
func WithTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinTimeout || d > MaxTimeout {
			return fmt.Errorf("transport: timeout %v out of range [%v, %v]", d, MinTimeout, MaxTimeout)
		}
		cfg.timeout = d

		return nil
	})
}

// WithConnectTimeout sets the dial timeout.
func WithConnectTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinTimeout || d > MaxTimeout {
			return fmt.Errorf("transport: connect timeout %v out of range [%v, %v]", d, MinTimeout, MaxTimeout)
		}
		cfg.connectTimeout = d

		return nil
	})
}

// WithInterCharTimeout sets how long a stream read waits for more bytes of
// a frame whose size is unknown before treating the frame as complete.
func WithInterCharTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinInterCharTimeout || d > MaxInterCharTimeout {
			return fmt.Errorf("transport: inter-character timeout %v out of range [%v, %v]",
				d, MinInterCharTimeout, MaxInterCharTimeout)
		}
		cfg.interCharTimeout = d

		return nil
	})
}

// WithAttempts sets how many times a telegram is sent when attempts time out.
func WithAttempts(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 1 || n > MaxAttempts {
			return fmt.Errorf("transport: attempts %d out of range [1, %d]", n, MaxAttempts)
		}
		cfg.attempts = n

		return nil
	})
}

// WithRetryDelay sets the delay before the first resend. Each further resend
// waits twice as long as the previous one.
func WithRetryDelay(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 || d > MaxRetryDelay {
			return fmt.Errorf("transport: retry delay %v out of range [0s, %v]", d, MaxRetryDelay)
		}
		cfg.retryDelay = d

		return nil
	})
}

// WithFrameFormat lets stream transports detect the end of a response from
// the telegram's length field instead of waiting for line silence.
func WithFrameFormat(f sbus.Format) Option {
	return optFunc(func(cfg *Config) error {
		if !f.Valid() {
			return fmt.Errorf("transport: invalid telegram format %s", f)
		}
		cfg.frameSize = f.FrameSize

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return fmt.Errorf("transport: nil logger")
		}
		cfg.logger = l

		return nil
	})
}
