package sbus

import "github.com/sigurn/crc16"

// S-Bus uses the CRC-16/XMODEM parameter set: polynomial 0x1021, initial
// value 0x0000, no input/output reflection and no final xor. The initial
// value differs from the common CCITT 0xFFFF and must stay 0 for wire
// compatibility.
var crcTable = crc16.MakeTable(crc16.CRC16_XMODEM)

// CRC16 returns the S-Bus checksum of data.
func CRC16(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}
