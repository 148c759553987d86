package config

import (
	"strings"

	"github.com/arloliu/go-sbus/coordinator"
	"github.com/arloliu/go-sbus/transport"
)

// Normalize fills unset fields with their defaults. Protocol and connection
// names are lower-cased first so that defaults key off the canonical names.
func (c *Config) Normalize() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}

	for i := range c.Devices {
		c.Devices[i].Normalize()
	}
}

// Normalize fills the device's unset fields with their defaults.
func (d *Device) Normalize() {
	d.ID = strings.TrimSpace(d.ID)
	d.Protocol = strings.ToLower(strings.TrimSpace(d.Protocol))
	d.Connection = strings.ToLower(strings.TrimSpace(d.Connection))
	d.Format = strings.ToLower(strings.TrimSpace(d.Format))

	if d.Protocol == "" {
		d.Protocol = ProtocolEther
	}

	if d.Connection == "" {
		switch d.Protocol {
		case ProtocolEther:
			d.Connection = ConnectionUDP
		case ProtocolSerial:
			d.Connection = ConnectionUSB
			if strings.HasPrefix(d.SerialPort, "ws://") || strings.HasPrefix(d.SerialPort, "wss://") {
				d.Connection = ConnectionWebSocket
			}
		case ProtocolProfi:
			d.Connection = ConnectionTCP
		}
	}

	if d.Port == 0 && d.Protocol != ProtocolSerial {
		d.Port = transport.DefaultPort
	}
	if d.BaudRate == 0 {
		d.BaudRate = transport.DefaultBaudRate
	}

	if d.Format == "" {
		d.Format = "generic"
		if d.Protocol == ProtocolEther {
			d.Format = "ether"
		}
	}

	if d.Timeout == 0 {
		d.Timeout = transport.DefaultTimeout
	}
	if d.Retries == 0 {
		d.Retries = transport.DefaultAttempts
		if d.Protocol == ProtocolEther {
			d.Retries = transport.DefaultEthernetAttempts
		}
	}
	if d.ScanInterval == 0 {
		d.ScanInterval = coordinator.DefaultInterval
	}
	if d.Poll == nil {
		plan := coordinator.DefaultPlan()
		d.Poll = &plan
	}
}
