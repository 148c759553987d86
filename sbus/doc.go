// Package sbus implements the SAIA S-Bus telegram layer: the CRC-16 checksum,
// the two telegram layouts (Ether-S-Bus and generic S-Bus), command opcodes,
// attribute bytes and the error taxonomy shared by the transport and protocol
// engine packages.
//
// # Telegram Formats
//
// Two layouts exist and they are not wire compatible:
//
//   - FormatEther: a 4-byte length prefix followed by version, type, sequence,
//     attribute, station and command bytes. Address and count travel in the data area.
//   - FormatGeneric: telegram number, station, attribute and command bytes
//     followed by 16-bit address and count header fields.
//
// Both end with a big-endian CRC-16 (poly 0x1021, init 0x0000) over every
// preceding byte.
//
// # Errors
//
// Errors wrap one of ErrTimeout, ErrCRC, ErrProtocol, ErrValidation or
// ErrConnection. Use errors.Is or KindOf to classify them.
package sbus
