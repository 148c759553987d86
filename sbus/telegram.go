package sbus

import (
	"encoding/binary"
	"fmt"
)

// MinTelegramSize is the nominal smallest S-Bus response. Generic bit
// responses for up to 8 bits are one byte shorter; see Format.MinResponseSize.
const MinTelegramSize = 12

// crcSize is the size of the trailing CRC in bytes.
const crcSize = 2

// Format A (Ether-S-Bus) constants.
const (
	etherVersion    byte   = 0x01
	etherType       uint16 = 0x0000
	etherLengthSize        = 4
	etherHeaderSize        = 6 // version(1) + type(2) + sequence(1) + attribute(1) + station(1)
	etherDataOffset        = etherLengthSize + etherHeaderSize + 1
)

// Format B (generic S-Bus) constants.
const genericDataOffset = 8 // telegram number, station, attribute, command, address(2), count(2)

// Format selects one of the two S-Bus telegram layouts. The two layouts are
// not wire compatible; a protocol engine uses one format for its lifetime.
type Format uint8

const (
	// FormatEther is the Ether-S-Bus layout:
	//
	//	[u32 length][u8 version=1][u16 type=0][u8 sequence][u8 attribute][u8 station][u8 command][data][u16 crc]
	//
	// The length field counts every byte of the telegram including itself and the CRC.
	FormatEther Format = iota + 1
	// FormatGeneric is the generic S-Bus layout:
	//
	//	[u8 telegram number][u8 station][u8 attribute][u8 command][u16 address][u16 count][data][u16 crc]
	FormatGeneric
)

func (f Format) String() string {
	switch f {
	case FormatEther:
		return "ether"
	case FormatGeneric:
		return "generic"
	default:
		return fmt.Sprintf("Format(%d)", uint8(f))
	}
}

// ParseFormat converts a configuration name ("ether", "generic") to a Format.
func ParseFormat(name string) (Format, error) {
	switch name {
	case "ether", "A", "a":
		return FormatEther, nil
	case "generic", "B", "b":
		return FormatGeneric, nil
	default:
		return 0, fmt.Errorf("%w: unknown telegram format %q", ErrValidation, name)
	}
}

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	return f == FormatEther || f == FormatGeneric
}

// SequenceMask returns the largest sequence value before the counter wraps to 0.
func (f Format) SequenceMask() uint16 {
	if f == FormatEther {
		return 0xFFFF
	}

	return 0xFF
}

// headerSize is the fixed header plus CRC, the size of a telegram with an
// empty data area.
func (f Format) headerSize() int {
	if f == FormatEther {
		return etherDataOffset + crcSize
	}

	return genericDataOffset + crcSize
}

// MinResponseSize is the smallest response Codec.ParseResponse accepts in
// format f. Ether-S-Bus responses never drop below the fixed header plus CRC.
// A generic response carries at least one data byte: a bit read of up to
// 8 bits packs into a single byte.
func (f Format) MinResponseSize() int {
	if f == FormatEther {
		return max(MinTelegramSize, f.headerSize())
	}

	return genericDataOffset + 1 + crcSize
}

// FrameSize reports the total size of the telegram that starts at buf, when it
// can be determined from the bytes buffered so far. Only the Ether-S-Bus
// layout carries a length field; generic telegrams are delimited by silence.
func (f Format) FrameSize(buf []byte) (int, bool) {
	if f != FormatEther || len(buf) < etherLengthSize {
		return 0, false
	}

	return int(binary.BigEndian.Uint32(buf[:etherLengthSize])), true
}

// Telegram is one decoded S-Bus telegram.
//
// Address and Count are header fields of the generic format only. In the
// Ether-S-Bus format they travel inside Data; see BuildRequest and SplitRequest.
type Telegram struct {
	Sequence  uint16
	Station   uint8
	Attribute Attribute
	Command   Command
	Address   uint16
	Count     uint16
	Data      []byte
}

// Pack serializes the telegram in format f and appends the CRC.
// The Ether-S-Bus sequence byte carries the low 8 bits of Sequence.
func (t *Telegram) Pack(f Format) []byte {
	var buf []byte

	switch f {
	case FormatEther:
		total := etherDataOffset + len(t.Data) + crcSize
		buf = make([]byte, etherDataOffset, total)
		binary.BigEndian.PutUint32(buf[0:4], uint32(total))
		buf[4] = etherVersion
		binary.BigEndian.PutUint16(buf[5:7], etherType)
		buf[7] = byte(t.Sequence)
		buf[8] = byte(t.Attribute)
		buf[9] = t.Station
		buf[10] = byte(t.Command)
	default:
		buf = make([]byte, genericDataOffset, genericDataOffset+len(t.Data)+crcSize)
		buf[0] = byte(t.Sequence)
		buf[1] = t.Station
		buf[2] = byte(t.Attribute)
		buf[3] = byte(t.Command)
		binary.BigEndian.PutUint16(buf[4:6], t.Address)
		binary.BigEndian.PutUint16(buf[6:8], t.Count)
	}

	buf = append(buf, t.Data...)

	return binary.BigEndian.AppendUint16(buf, CRC16(buf))
}

// ParseTelegram decodes raw as a telegram in format f.
//
// Structural checks run in a fixed order: the fixed header plus CRC first,
// then the embedded length field (Ether-S-Bus only), then the CRC. The CRC is
// never computed over a range derived from an unchecked length. Requests
// without a data area are valid telegrams, so the response minimum and the
// semantic checks (sequence, attribute) are left to Codec.ParseResponse.
func ParseTelegram(f Format, raw []byte) (*Telegram, error) {
	if minSize := f.headerSize(); len(raw) < minSize {
		return nil, fmt.Errorf("%w: got %d bytes, want at least %d", ErrTooShort, len(raw), minSize)
	}

	if f == FormatEther {
		if n := binary.BigEndian.Uint32(raw[0:4]); int(n) != len(raw) {
			return nil, fmt.Errorf("%w: length field %d, got %d bytes", ErrLengthMismatch, n, len(raw))
		}
	}

	body := raw[:len(raw)-crcSize]
	want := binary.BigEndian.Uint16(raw[len(raw)-crcSize:])
	if got := CRC16(body); got != want {
		return nil, fmt.Errorf("%w: computed 0x%04X, received 0x%04X", ErrCRC, got, want)
	}

	t := &Telegram{}
	switch f {
	case FormatEther:
		t.Sequence = uint16(raw[7])
		t.Attribute = Attribute(raw[8])
		t.Station = raw[9]
		t.Command = Command(raw[10])
		t.Data = cloneBytes(body[etherDataOffset:])
	default:
		t.Sequence = uint16(raw[0])
		t.Station = raw[1]
		t.Attribute = Attribute(raw[2])
		t.Command = Command(raw[3])
		t.Address = binary.BigEndian.Uint16(raw[4:6])
		t.Count = binary.BigEndian.Uint16(raw[6:8])
		t.Data = cloneBytes(body[genericDataOffset:])
	}

	return t, nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)

	return out
}
