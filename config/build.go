package config

import (
	"fmt"
	"os"

	"github.com/arloliu/go-sbus/coordinator"
	"github.com/arloliu/go-sbus/logger"
	"github.com/arloliu/go-sbus/pcd"
	"github.com/arloliu/go-sbus/sbus"
	"github.com/arloliu/go-sbus/transport"
)

// Logger builds the logger described by log_level and log_format, writing to stderr.
func (c *Config) Logger() (*logger.SlogLogger, error) {
	level, err := logger.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}

	format, ok := logger.ParseFormat(c.LogFormat)
	if !ok {
		return nil, fmt.Errorf("config: unknown log format %q", c.LogFormat)
	}

	return logger.NewSlogWithOptions(logger.Options{Level: level, Format: format, Output: os.Stderr}), nil
}

// TelegramFormat returns the device's telegram format.
func (d *Device) TelegramFormat() sbus.Format {
	f, err := sbus.ParseFormat(d.Format)
	if err != nil {
		return sbus.FormatGeneric
	}

	return f
}

// TransportConfig maps the device entry onto a transport configuration.
func (d *Device) TransportConfig(l logger.Logger) (*transport.Config, error) {
	opts := []transport.Option{
		transport.WithTimeout(d.Timeout),
		transport.WithAttempts(d.Retries),
		transport.WithFrameFormat(d.TelegramFormat()),
	}
	if l != nil {
		opts = append(opts, transport.WithLogger(l))
	}

	switch d.Protocol {
	case ProtocolEther:
		if d.Connection == ConnectionTCP {
			opts = append(opts, transport.WithTCP())
		}

		return transport.NewEthernetConfig(d.Host, d.Port, opts...)

	case ProtocolSerial:
		switch d.Connection {
		case ConnectionTCPSerial:
			opts = append(opts, transport.WithTCPBridge())
		case ConnectionUSB:
			opts = append(opts, transport.WithBaudRate(d.BaudRate))
		}

		return transport.NewSerialConfig(d.SerialPort, opts...)

	case ProtocolProfi:
		return transport.NewProfibusConfig(d.Host, d.Port, d.ProfibusAddress, opts...)

	default:
		return nil, fmt.Errorf("config: unknown protocol %q", d.Protocol)
	}
}

// BuildTransport creates the device's transport.
func (d *Device) BuildTransport(l logger.Logger) (transport.Transport, error) {
	cfg, err := d.TransportConfig(l)
	if err != nil {
		return nil, err
	}

	return transport.New(cfg)
}

// BuildClient creates the device's transport and protocol engine.
func (d *Device) BuildClient(l logger.Logger) (*pcd.Client, error) {
	tr, err := d.BuildTransport(l)
	if err != nil {
		return nil, err
	}

	opts := []pcd.Option{
		pcd.WithStation(d.Station),
		pcd.WithFormat(d.TelegramFormat()),
	}
	if l != nil {
		opts = append(opts, pcd.WithLogger(l))
	}

	return pcd.NewClient(tr, opts...)
}

// BuildCoordinator creates a coordinator polling engine with the device's
// id, interval and plan. Extra options are applied last.
func (d *Device) BuildCoordinator(engine coordinator.Engine, l logger.Logger, extra ...coordinator.Option) (*coordinator.Coordinator, error) {
	opts := []coordinator.Option{
		coordinator.WithID(d.ID),
		coordinator.WithInterval(d.ScanInterval),
	}
	if d.Poll != nil {
		opts = append(opts, coordinator.WithPlan(*d.Poll))
	}
	if l != nil {
		opts = append(opts, coordinator.WithLogger(l))
	}

	return coordinator.New(engine, append(opts, extra...)...)
}

// Unit is one configured device with everything built for it.
type Unit struct {
	Device      *Device
	Client      *pcd.Client
	Coordinator *coordinator.Coordinator
}

// BuildManager builds a client and a coordinator for every device and
// registers the coordinators with a new Manager.
func (c *Config) BuildManager(l logger.Logger, extra ...coordinator.Option) (*coordinator.Manager, []Unit, error) {
	m := coordinator.NewManager()
	units := make([]Unit, 0, len(c.Devices))

	for i := range c.Devices {
		d := &c.Devices[i]

		client, err := d.BuildClient(l)
		if err != nil {
			return nil, nil, fmt.Errorf("device %q: %w", d.ID, err)
		}

		coord, err := d.BuildCoordinator(client, l, extra...)
		if err != nil {
			return nil, nil, fmt.Errorf("device %q: %w", d.ID, err)
		}

		if err := m.Add(coord); err != nil {
			return nil, nil, err
		}
		units = append(units, Unit{Device: d, Client: client, Coordinator: coord})
	}

	return m, units, nil
}
