package pcd

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
)

// Identity system registers.
const (
	RegFirmware     = 600
	RegProductType  = 605 // 605..608, ASCII
	ProductTypeRegs = 4
	RegHWVersion    = 609
	RegSerial       = 611 // 611..612
	SerialRegs      = 2
)

// DeviceInfo is the identity of a PCD.
type DeviceInfo struct {
	FirmwareVersion       uint32 `json:"firmware_version" yaml:"firmware_version"`
	ProductType           string `json:"product_type" yaml:"product_type"`
	HWVersion             uint32 `json:"hw_version" yaml:"hw_version"`
	SerialNumber          string `json:"serial_number" yaml:"serial_number"`
	FirmwareVersionString string `json:"firmware_version_str" yaml:"firmware_version_str"`
	HWVersionString       string `json:"hw_version_str" yaml:"hw_version_str"`
}

// UnknownDeviceInfo is returned by GetDeviceInfo when the identity cannot be read.
func UnknownDeviceInfo() DeviceInfo {
	return DeviceInfo{
		ProductType:           "SAIA PCD (Unknown)",
		SerialNumber:          "UNKNOWN",
		FirmwareVersionString: "Unknown",
		HWVersionString:       "Unknown",
	}
}

// GetDeviceInfo reads the identity registers.
//
// This is the one operation that does not return an error: any failure is
// logged as a warning and UnknownDeviceInfo is returned.
func (c *Client) GetDeviceInfo(ctx context.Context) DeviceInfo {
	info, err := c.readDeviceInfo(ctx)
	if err != nil {
		c.logger.Warn("pcd: failed to read device info", "error", err)
		return UnknownDeviceInfo()
	}

	return info
}

func (c *Client) readDeviceInfo(ctx context.Context) (DeviceInfo, error) {
	var info DeviceInfo

	fw, err := c.ReadRegisters(ctx, RegFirmware, 1)
	if err != nil {
		return info, fmt.Errorf("firmware version: %w", err)
	}

	product, err := c.ReadRegisters(ctx, RegProductType, ProductTypeRegs)
	if err != nil {
		return info, fmt.Errorf("product type: %w", err)
	}

	hw, err := c.ReadRegisters(ctx, RegHWVersion, 1)
	if err != nil {
		return info, fmt.Errorf("hardware version: %w", err)
	}

	serial, err := c.ReadRegisters(ctx, RegSerial, SerialRegs)
	if err != nil {
		return info, fmt.Errorf("serial number: %w", err)
	}

	info.FirmwareVersion = fw[0]
	info.ProductType = decodeProductType(product)
	info.HWVersion = hw[0]
	info.SerialNumber = fmt.Sprintf("%08X%08X", serial[0], serial[1])
	info.FirmwareVersionString = FormatVersion(info.FirmwareVersion)
	info.HWVersionString = FormatVersion(info.HWVersion)

	return info, nil
}

// decodeProductType unpacks ASCII from big-endian words. Non-ASCII bytes are
// dropped and NUL padding trimmed; an empty result becomes "SAIA PCD".
func decodeProductType(words []uint32) string {
	raw := make([]byte, 0, len(words)*4)
	for _, w := range words {
		raw = binary.BigEndian.AppendUint32(raw, w)
	}

	var sb strings.Builder
	for _, b := range raw {
		if b < 0x80 {
			sb.WriteByte(b)
		}
	}

	product := strings.Trim(sb.String(), "\x00")
	if product == "" {
		return "SAIA PCD"
	}

	return product
}

// FormatVersion renders a version register as major.minor.patch from bits
// 23..16, 15..8 and 7..0. Zero is "Unknown".
func FormatVersion(v uint32) string {
	if v == 0 {
		return "Unknown"
	}

	return fmt.Sprintf("%d.%d.%d", (v>>16)&0xFF, (v>>8)&0xFF, v&0xFF)
}
