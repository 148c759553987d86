package pcd

import (
	"fmt"

	"github.com/arloliu/go-sbus/logger"
	"github.com/arloliu/go-sbus/sbus"
	"github.com/arloliu/go-sbus/transport"
)

// Limits of the PCD object model.
const (
	MaxStation         = 253
	MaxRegisterAddress = 9999
	MaxRegisterCount   = 32
	MaxRegisterValue   = 0xFFFFFFFF
	MaxFlagAddress     = 0xFFFF

	// DefaultMaxFlagCount bounds a single flag, input or output read.
	// Devices may impose a lower limit.
	DefaultMaxFlagCount = 1024
)

type clientConfig struct {
	station      uint8
	format       sbus.Format
	formatSet    bool
	maxFlagCount int
	logger       logger.Logger
}

func defaultClientConfig() *clientConfig {
	return &clientConfig{
		maxFlagCount: DefaultMaxFlagCount,
		logger:       logger.GetLogger(),
	}
}

// defaultFormat returns the telegram format a transport variant speaks
// unless WithFormat says otherwise.
func defaultFormat(kind transport.Kind) sbus.Format {
	if kind == transport.KindEthernet {
		return sbus.FormatEther
	}

	return sbus.FormatGeneric
}

// Option is a functional option for NewClient.
type Option interface {
	apply(*clientConfig) error
}

type optFunc func(*clientConfig) error

func (f optFunc) apply(cfg *clientConfig) error { return f(cfg) }

// WithStation sets the destination station address (0..253). The default is 0.
func WithStation(station int) Option {
	return optFunc(func(cfg *clientConfig) error {
		if station < 0 || station > MaxStation {
			return fmt.Errorf("%w: station %d not in [0, %d]", sbus.ErrOutOfRange, station, MaxStation)
		}
		cfg.station = uint8(station)

		return nil
	})
}

// WithFormat selects the telegram layout. Ethernet transports default to
// sbus.FormatEther, serial and Profibus transports to sbus.FormatGeneric.
func WithFormat(f sbus.Format) Option {
	return optFunc(func(cfg *clientConfig) error {
		if !f.Valid() {
			return fmt.Errorf("pcd: invalid telegram format %s", f)
		}
		cfg.format = f
		cfg.formatSet = true

		return nil
	})
}

// WithMaxFlagCount sets the largest count accepted by ReadFlags, ReadInputs and ReadOutputs.
func WithMaxFlagCount(n int) Option {
	return optFunc(func(cfg *clientConfig) error {
		if n < 1 || n > MaxFlagAddress+1 {
			return fmt.Errorf("%w: max flag count %d not in [1, %d]", sbus.ErrOutOfRange, n, MaxFlagAddress+1)
		}
		cfg.maxFlagCount = n

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *clientConfig) error {
		if l == nil {
			return fmt.Errorf("pcd: nil logger")
		}
		cfg.logger = l

		return nil
	})
}
