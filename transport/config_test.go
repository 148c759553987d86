package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-sbus/sbus"
)

func TestNewEthernetConfig_Defaults(t *testing.T) {
	cfg, err := NewEthernetConfig("192.168.1.100", DefaultPort)
	require.NoError(t, err)

	assert.Equal(t, KindEthernet, cfg.Kind())
	assert.Equal(t, NetworkUDP, cfg.Network())
	assert.Equal(t, "192.168.1.100:5050", cfg.Addr())
	assert.Equal(t, DefaultTimeout, cfg.Timeout())
	assert.Equal(t, DefaultEthernetAttempts, cfg.Attempts())
	assert.Equal(t, DefaultRetryDelay, cfg.RetryDelay())
	assert.NotNil(t, cfg.GetLogger())
}

func TestNewEthernetConfig_Invalid(t *testing.T) {
	_, err := NewEthernetConfig("", 5050)
	require.Error(t, err)

	_, err = NewEthernetConfig("10.0.0.1", 0)
	require.ErrorContains(t, err, "port 0 out of range")

	_, err = NewEthernetConfig("10.0.0.1", 5050, WithTimeout(time.Millisecond))
	require.ErrorContains(t, err, "timeout 1ms out of range")

	_, err = NewEthernetConfig("10.0.0.1", 5050, WithAttempts(0))
	require.Error(t, err)

	_, err = NewEthernetConfig("10.0.0.1", 5050, WithTCPBridge())
	require.Error(t, err)

	_, err = NewEthernetConfig("10.0.0.1", 5050, WithFrameFormat(sbus.Format(9)))
	require.Error(t, err)

	_, err = NewEthernetConfig("10.0.0.1", 5050, WithLogger(nil))
	require.Error(t, err)
}

func TestConfig_Backoff(t *testing.T) {
	cfg, err := NewEthernetConfig("10.0.0.1", 5050, WithAttempts(4))
	require.NoError(t, err)

	assert.Equal(t, time.Duration(0), cfg.backoff(1))
	assert.Equal(t, 500*time.Millisecond, cfg.backoff(2))
	assert.Equal(t, time.Second, cfg.backoff(3))
	assert.Equal(t, 2*time.Second, cfg.backoff(4))
}

func TestNewSerialConfig(t *testing.T) {
	assert := assert.New(t)

	cfg, err := NewSerialConfig("/dev/ttyUSB0")
	require.NoError(t, err)
	assert.Equal(SerialLine, cfg.SerialMode())
	assert.Equal(DefaultBaudRate, cfg.BaudRate())
	assert.Equal(DefaultAttempts, cfg.Attempts())

	cfg, err = NewSerialConfig("/dev/ttyS1", WithBaudRate(38400))
	require.NoError(t, err)
	assert.Equal(38400, cfg.BaudRate())

	_, err = NewSerialConfig("/dev/ttyS1", WithBaudRate(14400))
	require.ErrorContains(t, err, "baud rate 14400")

	cfg, err = NewSerialConfig("10.0.0.5:4001", WithTCPBridge())
	require.NoError(t, err)
	assert.Equal(SerialTCPBridge, cfg.SerialMode())
	assert.Equal("10.0.0.5", cfg.Host())
	assert.Equal(4001, cfg.Port())

	_, err = NewSerialConfig("10.0.0.5", WithTCPBridge())
	require.ErrorContains(t, err, "expected host:port")

	cfg, err = NewSerialConfig("ws://bridge.local/serial")
	require.NoError(t, err)
	assert.Equal(SerialWebSocket, cfg.SerialMode())

	_, err = NewSerialConfig("  ")
	require.Error(t, err)

	_, err = NewSerialConfig("/dev/ttyS1", WithUDP())
	require.Error(t, err)
}

func TestSplitBridgeAddress(t *testing.T) {
	tests := []struct {
		in   string
		host string
		port int
		ok   bool
	}{
		{"192.168.1.10:4001", "192.168.1.10", 4001, true},
		{"moxa.local:950", "moxa.local", 950, true},
		{"[fe80::1]:4001", "fe80::1", 4001, true},
		{"fe80::1:4001", "fe80::1", 4001, true},
		{"host", "", 0, false},
		{"host:", "", 0, false},
		{":4001", "", 0, false},
		{"host:abc", "", 0, false},
		{"host:70000", "", 0, false},
	}

	for _, tt := range tests {
		host, port, err := SplitBridgeAddress(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.host, host, tt.in)
		assert.Equal(t, tt.port, port, tt.in)
	}
}

func TestNewProfibusConfig(t *testing.T) {
	cfg, err := NewProfibusConfig("10.0.0.9", 5050, 126)
	require.NoError(t, err)
	assert.Equal(t, KindProfibus, cfg.Kind())
	assert.Equal(t, uint8(126), cfg.ProfibusAddress())
	assert.Equal(t, DefaultAttempts, cfg.Attempts())

	_, err = NewProfibusConfig("10.0.0.9", 5050, 127)
	require.ErrorContains(t, err, "profibus address 127 out of range")

	_, err = NewProfibusConfig("10.0.0.9", 5050, -1)
	require.Error(t, err)
}

func TestNew_Factory(t *testing.T) {
	eth, err := NewEthernetConfig("127.0.0.1", 5050, WithTCP())
	require.NoError(t, err)
	ser, err := NewSerialConfig("127.0.0.1:4001", WithTCPBridge())
	require.NoError(t, err)
	pb, err := NewProfibusConfig("127.0.0.1", 5050, 3)
	require.NoError(t, err)

	tr, err := New(eth)
	require.NoError(t, err)
	assert.IsType(t, &EthernetTransport{}, tr)
	assert.Equal(t, "tcp://127.0.0.1:5050", tr.String())

	tr, err = New(ser)
	require.NoError(t, err)
	assert.IsType(t, &SerialTransport{}, tr)
	assert.Equal(t, KindSerial, tr.Kind())
	assert.Equal(t, "tcp-serial://127.0.0.1:4001", tr.String())

	tr, err = New(pb)
	require.NoError(t, err)
	assert.IsType(t, &ProfibusTransport{}, tr)
	assert.Equal(t, "profibus://127.0.0.1:5050/3", tr.String())

	_, err = New(nil)
	require.Error(t, err)
}
