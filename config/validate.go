package config

import (
	"fmt"
	"slices"

	"github.com/arloliu/go-sbus/coordinator"
	"github.com/arloliu/go-sbus/logger"
	"github.com/arloliu/go-sbus/pcd"
	"github.com/arloliu/go-sbus/sbus"
	"github.com/arloliu/go-sbus/transport"
)

// Validate checks a normalized configuration. It does not mutate it.
func (c *Config) Validate() error {
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if _, ok := logger.ParseFormat(c.LogFormat); !ok {
		return fmt.Errorf("log_format: unknown format %q, expected json or console", c.LogFormat)
	}

	if len(c.Devices) == 0 {
		return fmt.Errorf("no devices configured")
	}

	seen := make(map[string]struct{}, len(c.Devices))
	for i := range c.Devices {
		d := &c.Devices[i]

		if d.ID == "" {
			return fmt.Errorf("device #%d: empty id", i+1)
		}
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("device %q: duplicate id", d.ID)
		}
		seen[d.ID] = struct{}{}

		if err := d.Validate(); err != nil {
			return fmt.Errorf("device %q: %w", d.ID, err)
		}
	}

	return nil
}

// Validate checks a normalized device entry.
func (d *Device) Validate() error {
	var connections []string
	switch d.Protocol {
	case ProtocolEther:
		connections = []string{ConnectionUDP, ConnectionTCP}
	case ProtocolSerial:
		connections = []string{ConnectionUSB, ConnectionTCPSerial, ConnectionWebSocket}
	case ProtocolProfi:
		connections = []string{ConnectionTCP}
	default:
		return fmt.Errorf("unknown protocol %q, expected %s, %s or %s", d.Protocol, ProtocolEther, ProtocolSerial, ProtocolProfi)
	}
	if !slices.Contains(connections, d.Connection) {
		return fmt.Errorf("connection %q is not valid for %s, expected one of %v", d.Connection, d.Protocol, connections)
	}

	if d.Protocol == ProtocolSerial {
		if d.SerialPort == "" {
			return fmt.Errorf("serial_port is required for %s", d.Protocol)
		}
		if d.Connection == ConnectionUSB && !slices.Contains(transport.BaudRates, d.BaudRate) {
			return fmt.Errorf("baudrate %d not in %v", d.BaudRate, transport.BaudRates)
		}
		if d.Connection == ConnectionTCPSerial {
			if _, _, err := transport.SplitBridgeAddress(d.SerialPort); err != nil {
				return err
			}
		}
	} else {
		if d.Host == "" {
			return fmt.Errorf("host is required for %s", d.Protocol)
		}
		if d.Port < 1 || d.Port > 65535 {
			return fmt.Errorf("port %d out of range [1, 65535]", d.Port)
		}
	}

	if d.Protocol == ProtocolProfi && (d.ProfibusAddress < 0 || d.ProfibusAddress > transport.MaxProfibusAddress) {
		return fmt.Errorf("profibus_address %d out of range [0, %d]", d.ProfibusAddress, transport.MaxProfibusAddress)
	}

	if d.Station < 0 || d.Station > pcd.MaxStation {
		return fmt.Errorf("station %d out of range [0, %d]", d.Station, pcd.MaxStation)
	}

	if _, err := sbus.ParseFormat(d.Format); err != nil {
		return fmt.Errorf("format: %w", err)
	}

	if d.Timeout < transport.MinTimeout || d.Timeout > transport.MaxTimeout {
		return fmt.Errorf("timeout %v out of range [%v, %v]", d.Timeout, transport.MinTimeout, transport.MaxTimeout)
	}
	if d.Retries < 1 || d.Retries > transport.MaxAttempts {
		return fmt.Errorf("retries %d out of range [1, %d]", d.Retries, transport.MaxAttempts)
	}
	if d.ScanInterval < coordinator.MinInterval || d.ScanInterval > coordinator.MaxInterval {
		return fmt.Errorf("scan_interval %v out of range [%v, %v]", d.ScanInterval, coordinator.MinInterval, coordinator.MaxInterval)
	}

	if d.Poll != nil {
		if err := validatePlan(*d.Poll); err != nil {
			return fmt.Errorf("poll: %w", err)
		}
	}

	return nil
}

func validatePlan(p coordinator.Plan) error {
	blocks := []struct {
		name  string
		block coordinator.Block
		max   int
	}{
		{"registers", p.Registers, pcd.MaxRegisterAddress},
		{"flags", p.Flags, pcd.MaxFlagAddress},
		{"timers", p.Timers, pcd.MaxRegisterAddress},
		{"counters", p.Counters, pcd.MaxRegisterAddress},
	}

	for _, b := range blocks {
		if b.block.Count == 0 {
			continue
		}
		if b.block.Start < 0 || b.block.Count < 0 || b.block.Start+b.block.Count-1 > b.max {
			return fmt.Errorf("%s block {start: %d, count: %d} exceeds address range [0, %d]",
				b.name, b.block.Start, b.block.Count, b.max)
		}
	}

	if p.Flags.Count > pcd.DefaultMaxFlagCount {
		return fmt.Errorf("flags count %d exceeds %d", p.Flags.Count, pcd.DefaultMaxFlagCount)
	}

	if p.Empty() {
		return fmt.Errorf("nothing to poll")
	}

	return nil
}
