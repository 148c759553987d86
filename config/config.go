// Package config loads the YAML device file used by sbusctl and turns each
// device entry into a transport, a protocol engine and a coordinator.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/go-sbus/coordinator"
)

// Protocols.
const (
	ProtocolEther  = "ether_sbus"
	ProtocolSerial = "serial_sbus"
	ProtocolProfi  = "profi_sbus"
)

// Connection types.
const (
	ConnectionUDP       = "udp"
	ConnectionTCP       = "tcp"
	ConnectionUSB       = "usb"
	ConnectionTCPSerial = "tcp_serial"
	ConnectionWebSocket = "websocket"
)

type Config struct {
	LogLevel    string   `yaml:"log_level"`
	LogFormat   string   `yaml:"log_format"`
	MetricsAddr string   `yaml:"metrics_addr"`
	Devices     []Device `yaml:"devices"`
}

// ---- DEVICE ----

type Device struct {
	ID         string `yaml:"id"`
	Protocol   string `yaml:"protocol"`
	Connection string `yaml:"connection"`

	// ether_sbus and profi_sbus endpoint
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// serial_sbus endpoint: device path, host:port or ws:// URL
	SerialPort string `yaml:"serial_port"`
	BaudRate   int    `yaml:"baudrate"`

	ProfibusAddress int    `yaml:"profibus_address"`
	Station         int    `yaml:"station"`
	Format          string `yaml:"format"`

	Timeout time.Duration `yaml:"timeout"`
	// Retries is the number of sends per exchange, the first one included.
	Retries      int               `yaml:"retries"`
	ScanInterval time.Duration     `yaml:"scan_interval"`
	Poll         *coordinator.Plan `yaml:"poll"`
}

// Load reads, normalizes and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	return cfg, nil
}

// Parse decodes YAML, then normalizes and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Device returns the device with the given id.
func (c *Config) Device(id string) (*Device, bool) {
	for i := range c.Devices {
		if c.Devices[i].ID == id {
			return &c.Devices[i], true
		}
	}

	return nil, false
}
