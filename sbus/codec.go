package sbus

import (
	"encoding/binary"
	"fmt"
)

// Codec builds request telegrams and validates response telegrams for one
// station in one format. It owns the sequence counter.
//
// Codec is NOT goroutine-safe. The protocol engine holds its exclusive
// section across BuildRequest, the transport exchange and ParseResponse, so
// the sequence allocated for a request is the one its response is checked against.
type Codec struct {
	format  Format
	station uint8
	seq     uint16
}

// NewCodec returns a codec for station in format f. The first request carries sequence 1.
func NewCodec(f Format, station uint8) *Codec {
	return &Codec{format: f, station: station}
}

// Format returns the codec's telegram format.
func (c *Codec) Format() Format { return c.format }

// Station returns the station address written into requests.
func (c *Codec) Station() uint8 { return c.station }

// Sequence returns the most recently allocated sequence number.
func (c *Codec) Sequence() uint16 { return c.seq }

// SetSequence sets the counter so that the next request carries seq+1 (wrapped).
func (c *Codec) SetSequence(seq uint16) { c.seq = seq & c.format.SequenceMask() }

// nextSequence advances the counter. It wraps to 0 after the format's mask
// and never yields mask+1.
func (c *Codec) nextSequence() uint16 {
	c.seq = (c.seq + 1) & c.format.SequenceMask()

	return c.seq
}

// BuildRequest allocates the next sequence number and returns the complete
// request telegram together with that sequence number.
//
// In the generic format address and count are header fields and payload
// follows them. In the Ether-S-Bus format they are encoded at the start of the
// data area: 32-bit media reads carry [u16 address][u8 count], bit media
// reads carry [u16 address][u16 count], writes carry [u16 address][payload],
// and RTC commands carry the payload alone.
func (c *Codec) BuildRequest(cmd Command, address, count uint16, payload []byte) ([]byte, uint16) {
	seq := c.nextSequence()

	t := &Telegram{
		Sequence:  seq,
		Station:   c.station,
		Attribute: AttrRequest,
		Command:   cmd,
		Address:   address,
		Count:     count,
		Data:      payload,
	}
	if c.format == FormatEther {
		t.Data = etherRequestBody(cmd, address, count, payload)
	}

	return t.Pack(c.format), seq
}

// ParseResponse validates raw as the response to the request that carried
// expectedSeq and returns its data area.
//
// Failures, in check order: ErrTooShort (below Format.MinResponseSize),
// ErrLengthMismatch, ErrCRC, ErrSequenceMismatch, ErrInvalidAttribute
// (anything but RESPONSE or ACK). Both formats carry a single sequence byte
// on the wire, so the comparison uses the low 8 bits of expectedSeq.
func (c *Codec) ParseResponse(raw []byte, expectedSeq uint16) ([]byte, error) {
	if minSize := c.format.MinResponseSize(); len(raw) < minSize {
		return nil, fmt.Errorf("%w: got %d bytes, want at least %d", ErrTooShort, len(raw), minSize)
	}

	t, err := ParseTelegram(c.format, raw)
	if err != nil {
		return nil, err
	}

	if byte(t.Sequence) != byte(expectedSeq) {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrSequenceMismatch, byte(expectedSeq), t.Sequence)
	}

	if t.Attribute != AttrResponse && t.Attribute != AttrACK {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAttribute, t.Attribute)
	}

	return t.Data, nil
}

// SplitRequest recovers address, count and payload from a decoded request
// telegram. It is the inverse of BuildRequest and is meant for device simulators.
//
// Ether-S-Bus writes do not carry a count; it is reported as 1 for bit media
// and as the number of 32-bit words in payload otherwise.
func SplitRequest(f Format, t *Telegram) (address, count uint16, payload []byte, err error) {
	if f != FormatEther {
		return t.Address, t.Count, t.Data, nil
	}

	data := t.Data
	cmd := t.Command

	switch {
	case cmd.isRTC():
		return 0, 0, data, nil
	case len(data) < 2:
		return 0, 0, nil, fmt.Errorf("%w: %s request needs an address, got %d bytes", ErrUnexpectedPayload, cmd, len(data))
	}

	address = binary.BigEndian.Uint16(data[0:2])
	rest := data[2:]

	switch {
	case cmd.IsWrite():
		if cmd.IsBitAccess() {
			return address, 1, rest, nil
		}

		return address, uint16(len(rest) / 4), rest, nil
	case cmd.IsBitAccess():
		if len(rest) < 2 {
			return 0, 0, nil, fmt.Errorf("%w: %s request needs a 16-bit count", ErrUnexpectedPayload, cmd)
		}

		return address, binary.BigEndian.Uint16(rest[0:2]), rest[2:], nil
	default:
		if len(rest) < 1 {
			return 0, 0, nil, fmt.Errorf("%w: %s request needs an 8-bit count", ErrUnexpectedPayload, cmd)
		}

		return address, uint16(rest[0]), rest[1:], nil
	}
}

func etherRequestBody(cmd Command, address, count uint16, payload []byte) []byte {
	if cmd.isRTC() {
		return payload
	}

	body := make([]byte, 0, 4+len(payload))
	body = binary.BigEndian.AppendUint16(body, address)

	switch {
	case cmd.IsWrite():
	case cmd.IsBitAccess():
		body = binary.BigEndian.AppendUint16(body, count)
	default:
		body = append(body, byte(count))
	}

	return append(body, payload...)
}
