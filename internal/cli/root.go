// Package cli implements the sbusctl command tree.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-sbus/config"
	"github.com/arloliu/go-sbus/logger"
	"github.com/arloliu/go-sbus/pcd"
)

// Version is reported by --version.
var Version = "0.1.0"

type globalFlags struct {
	configPath string
	device     string

	protocol        string
	connection      string
	host            string
	port            int
	serialPort      string
	baud            int
	profibusAddress int
	station         int
	format          string
	timeout         time.Duration
	retries         int

	logLevel  string
	logFormat string
	output    string
}

// NewRootCommand builds the sbusctl command tree.
func NewRootCommand() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "sbusctl",
		Short: "Read and write SAIA PCD controllers over S-Bus",
		Long: `sbusctl talks to SAIA PCD controllers over Ether-S-Bus (UDP/TCP),
serial S-Bus (local line, TCP serial server or WebSocket serial bridge) and
Profibus gateways.

A device is either described by flags or picked from a YAML device file:
  sbusctl --host 192.168.1.100 read-registers 0 10
  sbusctl -c devices.yaml --device boiler-room info

WebSocket bridges take credentials from the URL. When the URL names a user
but no password, the password is read from SBUS_PASSWORD or prompted for.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if _, ok := encoders[g.output]; !ok {
				return fmt.Errorf("unknown output %q, expected text, json, yaml or cbor", g.output)
			}

			return nil
		},
	}

	f := root.PersistentFlags()
	f.StringVarP(&g.configPath, "config", "c", "", "YAML device file")
	f.StringVar(&g.device, "device", "", "Device id in the device file")
	f.StringVar(&g.protocol, "protocol", "", "Protocol: ether_sbus, serial_sbus or profi_sbus (default ether_sbus)")
	f.StringVar(&g.connection, "connection", "", "Connection: udp, tcp, usb, tcp_serial or websocket")
	f.StringVar(&g.host, "host", "", "PCD or gateway host")
	f.IntVar(&g.port, "port", 0, "PCD or gateway port (default 5050)")
	f.StringVar(&g.serialPort, "serial-port", "", "Serial device, host:port bridge or ws:// URL")
	f.IntVar(&g.baud, "baud", 0, "Serial baud rate (default 9600)")
	f.IntVar(&g.profibusAddress, "profibus-address", 0, "Profibus node address (0..126)")
	f.IntVar(&g.station, "station", 0, "S-Bus station address (0..253)")
	f.StringVar(&g.format, "format", "", "Telegram format: ether or generic")
	f.DurationVar(&g.timeout, "timeout", 0, "Response timeout (default 5s)")
	f.IntVar(&g.retries, "retries", 0, "Sends per exchange, the first one included")
	f.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn or error (default warn)")
	f.StringVar(&g.logFormat, "log-format", "", "Log format: console or json (default console)")
	f.StringVarP(&g.output, "output", "o", "text", "Output: text, json, yaml or cbor")

	root.AddCommand(
		newReadWordsCommand(g, "read-registers", "Read registers", "R", (*pcd.Client).ReadRegisters),
		newReadWordsCommand(g, "read-timers", "Read timers", "T", (*pcd.Client).ReadTimers),
		newReadWordsCommand(g, "read-counters", "Read counters", "C", (*pcd.Client).ReadCounters),
		newReadBitsCommand(g, "read-flags", "Read flags", "F", (*pcd.Client).ReadFlags),
		newReadBitsCommand(g, "read-inputs", "Read inputs", "I", (*pcd.Client).ReadInputs),
		newReadBitsCommand(g, "read-outputs", "Read outputs", "O", (*pcd.Client).ReadOutputs),
		newWriteWordCommand(g, "write-register", "Write a register", "R", (*pcd.Client).WriteRegister),
		newWriteWordCommand(g, "write-timer", "Write a timer", "T", (*pcd.Client).WriteTimer),
		newWriteWordCommand(g, "write-counter", "Write a counter", "C", (*pcd.Client).WriteCounter),
		newWriteBitCommand(g, "write-flag", "Set or clear a flag", "F", (*pcd.Client).WriteFlag),
		newWriteBitCommand(g, "write-output", "Set or clear an output", "O", (*pcd.Client).WriteOutput),
		newInfoCommand(g),
		newPollCommand(g),
		newMonitorCommand(g),
	)

	return root
}

// Execute runs sbusctl with ctx.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// loadConfig loads --config, or returns nil when it is not set.
func (g *globalFlags) loadConfig() (*config.Config, error) {
	if g.configPath == "" {
		return nil, nil
	}

	return config.Load(g.configPath)
}

// resolveDevice picks the device from the device file, or builds one from
// flags. Flags given explicitly override device file values.
func (g *globalFlags) resolveDevice(cmd *cobra.Command, cfg *config.Config) (*config.Device, error) {
	var d config.Device

	switch {
	case cfg == nil:
		d.ID = "sbusctl"
	case g.device != "":
		found, ok := cfg.Device(g.device)
		if !ok {
			return nil, fmt.Errorf("device %q not found in %s", g.device, g.configPath)
		}
		d = *found
	case len(cfg.Devices) == 1:
		d = cfg.Devices[0]
	default:
		return nil, fmt.Errorf("%s lists %d devices, pick one with --device", g.configPath, len(cfg.Devices))
	}

	g.applyFlags(cmd, &d)
	d.Normalize()
	if err := d.Validate(); err != nil {
		return nil, err
	}

	return &d, nil
}

func (g *globalFlags) applyFlags(cmd *cobra.Command, d *config.Device) {
	changed := cmd.Flags().Changed

	if changed("protocol") {
		d.Protocol = g.protocol
		if !changed("connection") {
			d.Connection = ""
		}
		if !changed("format") {
			d.Format = ""
		}
		if !changed("retries") {
			d.Retries = 0
		}
	}
	if changed("connection") {
		d.Connection = g.connection
	}
	if changed("host") {
		d.Host = g.host
	}
	if changed("port") {
		d.Port = g.port
	}
	if changed("serial-port") {
		d.SerialPort = g.serialPort
	}
	if changed("baud") {
		d.BaudRate = g.baud
	}
	if changed("profibus-address") {
		d.ProfibusAddress = g.profibusAddress
	}
	if changed("station") {
		d.Station = g.station
	}
	if changed("format") {
		d.Format = g.format
	}
	if changed("timeout") {
		d.Timeout = g.timeout
	}
	if changed("retries") {
		d.Retries = g.retries
	}
}

// newLogger builds the logger from --log-level and --log-format, falling back
// to the device file and then to warn/console. Logs go to the command's stderr.
func (g *globalFlags) newLogger(cmd *cobra.Command, cfg *config.Config) (logger.Logger, error) {
	levelName, formatName := "warn", "console"
	if cfg != nil {
		levelName, formatName = cfg.LogLevel, cfg.LogFormat
	}
	if g.logLevel != "" {
		levelName = g.logLevel
	}
	if g.logFormat != "" {
		formatName = g.logFormat
	}

	level, err := logger.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	format, ok := logger.ParseFormat(formatName)
	if !ok {
		return nil, fmt.Errorf("unknown log format %q, expected console or json", formatName)
	}

	return logger.NewSlogWithOptions(logger.Options{
		Level:  level,
		Format: format,
		Output: cmd.ErrOrStderr(),
	}), nil
}

// session is one connected device.
type session struct {
	device *config.Device
	client *pcd.Client
	logger logger.Logger
}

// openSession resolves the device, builds its client and connects it.
func (g *globalFlags) openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}

	d, err := g.resolveDevice(cmd, cfg)
	if err != nil {
		return nil, err
	}

	l, err := g.newLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}

	if err := fillPassword(d, cmd.ErrOrStderr()); err != nil {
		return nil, err
	}

	client, err := d.BuildClient(l)
	if err != nil {
		return nil, err
	}

	if err := client.Connect(cmd.Context()); err != nil {
		return nil, err
	}

	return &session{device: d, client: client, logger: l}, nil
}

func (s *session) close() {
	if err := s.client.Disconnect(); err != nil {
		s.logger.Warn("sbusctl: disconnect failed", "error", err)
	}
}

// withSession runs fn against a connected client and disconnects afterwards.
func (g *globalFlags) withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	s, err := g.openSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	return fn(cmd.Context(), s)
}
