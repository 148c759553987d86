package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-sbus/coordinator"
	"github.com/arloliu/go-sbus/logger"
	"github.com/arloliu/go-sbus/sbus"
	"github.com/arloliu/go-sbus/transport"
)

func TestLoad(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	cfg, err := Load(filepath.Join("testdata", "devices.yaml"))
	require.NoError(err)

	assert.Equal("debug", cfg.LogLevel)
	assert.Equal(":9108", cfg.MetricsAddr)
	require.Len(cfg.Devices, 4)

	boiler := cfg.Devices[0]
	assert.Equal(ConnectionUDP, boiler.Connection)
	assert.Equal(transport.DefaultPort, boiler.Port)
	assert.Equal("ether", boiler.Format)
	assert.Equal(transport.DefaultEthernetAttempts, boiler.Retries)
	assert.Equal(transport.DefaultTimeout, boiler.Timeout)
	assert.Equal(10*time.Second, boiler.ScanInterval)
	assert.Equal(coordinator.Block{Start: 100, Count: 40}, boiler.Poll.Registers)
	assert.Equal(0, boiler.Poll.Timers.Count)

	chiller, ok := cfg.Device("chiller")
	require.True(ok)
	assert.Equal(2*time.Second, chiller.Timeout)
	assert.Equal(1, chiller.Retries)
	assert.Equal("generic", chiller.Format)
	assert.Equal(coordinator.DefaultPlan(), *chiller.Poll)
	assert.Equal(coordinator.DefaultInterval, chiller.ScanInterval)

	ahu, ok := cfg.Device("ahu-1")
	require.True(ok)
	assert.Equal(ConnectionUSB, ahu.Connection)
	assert.Equal(38400, ahu.BaudRate)

	gw, ok := cfg.Device("remote-gw")
	require.True(ok)
	assert.Equal(ConnectionTCP, gw.Connection)
	assert.Equal(12, gw.ProfibusAddress)

	_, ok = cfg.Device("missing")
	assert.False(ok)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestParse_UnknownKey(t *testing.T) {
	_, err := Parse([]byte("devices:\n  - id: a\n    hots: 10.0.0.1\n"))
	require.ErrorContains(t, err, "hots")
}

func TestParse_WebSocketDefault(t *testing.T) {
	cfg, err := Parse([]byte("devices:\n  - id: a\n    protocol: serial_sbus\n    serial_port: ws://bridge.local/tty\n"))
	require.NoError(t, err)
	assert.Equal(t, ConnectionWebSocket, cfg.Devices[0].Connection)
}

func TestValidate(t *testing.T) {
	base := func() Device {
		d := Device{ID: "pcd", Protocol: ProtocolEther, Host: "10.0.0.1"}
		d.Normalize()

		return d
	}

	tests := []struct {
		name   string
		mutate func(d *Device)
		errMsg string
	}{
		{"unknown protocol", func(d *Device) { d.Protocol = "modbus" }, "unknown protocol"},
		{"serial connection on ethernet", func(d *Device) { d.Connection = ConnectionUSB }, `connection "usb" is not valid`},
		{"missing host", func(d *Device) { d.Host = "" }, "host is required"},
		{"port", func(d *Device) { d.Port = 70000 }, "port 70000 out of range"},
		{"station", func(d *Device) { d.Station = 254 }, "station 254 out of range"},
		{"format", func(d *Device) { d.Format = "c" }, "unknown telegram format"},
		{"timeout", func(d *Device) { d.Timeout = time.Millisecond }, "timeout 1ms out of range"},
		{"retries", func(d *Device) { d.Retries = 11 }, "retries 11 out of range"},
		{"scan interval low", func(d *Device) { d.ScanInterval = 4 * time.Second }, "scan_interval 4s out of range"},
		{"scan interval high", func(d *Device) { d.ScanInterval = 3601 * time.Second }, "scan_interval 1h0m1s out of range"},
		{"register block past end", func(d *Device) { d.Poll.Registers = coordinator.Block{Start: 9990, Count: 20} }, "registers block"},
		{"empty plan", func(d *Device) { d.Poll = &coordinator.Plan{} }, "nothing to poll"},
		{"profibus address", func(d *Device) {
			d.Protocol, d.Connection, d.ProfibusAddress = ProtocolProfi, ConnectionTCP, 127
		}, "profibus_address 127 out of range"},
		{"serial port missing", func(d *Device) {
			d.Protocol, d.Connection = ProtocolSerial, ConnectionUSB
		}, "serial_port is required"},
		{"baud rate", func(d *Device) {
			d.Protocol, d.Connection, d.SerialPort, d.BaudRate = ProtocolSerial, ConnectionUSB, "/dev/ttyS0", 14400
		}, "baudrate 14400"},
		{"bridge address", func(d *Device) {
			d.Protocol, d.Connection, d.SerialPort = ProtocolSerial, ConnectionTCPSerial, "bridge"
		}, "expected host:port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base()
			require.NoError(t, d.Validate())

			tt.mutate(&d)
			require.ErrorContains(t, d.Validate(), tt.errMsg)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{}
	cfg.Normalize()
	require.ErrorContains(t, cfg.Validate(), "no devices configured")

	cfg = &Config{Devices: []Device{
		{ID: "a", Host: "10.0.0.1"},
		{ID: "a", Host: "10.0.0.2"},
	}}
	cfg.Normalize()
	require.ErrorContains(t, cfg.Validate(), `device "a": duplicate id`)

	cfg = &Config{Devices: []Device{{Host: "10.0.0.1"}}}
	cfg.Normalize()
	require.ErrorContains(t, cfg.Validate(), "empty id")

	cfg = &Config{LogLevel: "loud", Devices: []Device{{ID: "a", Host: "10.0.0.1"}}}
	cfg.Normalize()
	require.ErrorContains(t, cfg.Validate(), "log_level")

	cfg = &Config{LogFormat: "xml", Devices: []Device{{ID: "a", Host: "10.0.0.1"}}}
	cfg.Normalize()
	require.ErrorContains(t, cfg.Validate(), "log_format")
}

func TestDevice_TransportConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "devices.yaml"))
	require.NoError(t, err)

	tests := []struct {
		id   string
		kind transport.Kind
		addr string
	}{
		{"boiler-room", transport.KindEthernet, "192.168.1.100:5050"},
		{"chiller", transport.KindSerial, "10.0.0.5:4001"},
		{"remote-gw", transport.KindProfibus, "gw.local:5050"},
	}

	for _, tt := range tests {
		d, ok := cfg.Device(tt.id)
		require.True(t, ok)

		tc, err := d.TransportConfig(logger.NewMockLogger())
		require.NoError(t, err, tt.id)
		assert.Equal(t, tt.kind, tc.Kind(), tt.id)
		assert.Equal(t, tt.addr, tc.Addr(), tt.id)
		assert.Equal(t, d.Timeout, tc.Timeout(), tt.id)
		assert.Equal(t, d.Retries, tc.Attempts(), tt.id)
	}

	ahu, _ := cfg.Device("ahu-1")
	tc, err := ahu.TransportConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, transport.SerialLine, tc.SerialMode())
	assert.Equal(t, 38400, tc.BaudRate())

	gw, _ := cfg.Device("remote-gw")
	tc, err = gw.TransportConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, uint8(12), tc.ProfibusAddress())
}

func TestBuildManager(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "devices.yaml"))
	require.NoError(t, err)

	m, units, err := cfg.BuildManager(nil)
	require.NoError(t, err)
	require.Len(t, units, 4)
	assert.Equal(t, []string{"ahu-1", "boiler-room", "chiller", "remote-gw"}, m.IDs())

	boiler := units[0]
	assert.Equal(t, "boiler-room", boiler.Coordinator.ID())
	assert.Equal(t, uint8(10), boiler.Client.Station())
	assert.Equal(t, sbus.FormatEther, boiler.Client.Format())
	assert.Equal(t, 10*time.Second, boiler.Coordinator.Interval())
	assert.Equal(t, 40, boiler.Coordinator.Plan().Registers.Count)
	assert.False(t, boiler.Client.IsConnected())

	gw := units[3]
	assert.Equal(t, sbus.FormatGeneric, gw.Client.Format())
	assert.Equal(t, transport.KindProfibus, gw.Client.Transport().Kind())
}

func TestConfig_Logger(t *testing.T) {
	cfg := &Config{LogLevel: "warn", LogFormat: "json"}

	l, err := cfg.Logger()
	require.NoError(t, err)
	assert.Equal(t, logger.WarnLevel, l.Level())

	cfg.LogFormat = "xml"
	_, err = cfg.Logger()
	require.Error(t, err)
}

func TestLoad_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "one.yaml")
	require.NoError(t, os.WriteFile(path, []byte("devices:\n  - id: only\n    host: 127.0.0.1\n    connection: TCP\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ConnectionTCP, cfg.Devices[0].Connection)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}
