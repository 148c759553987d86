// Package pcdsim simulates a SAIA PCD answering S-Bus telegrams. It backs
// the transport, engine and CLI tests and the examples.
package pcdsim

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/arloliu/go-sbus/sbus"
)

// Identity system registers.
const (
	RegFirmware    = 600
	RegProductType = 605 // 605..608
	RegHWVersion   = 609
	RegSerial      = 611 // 611..612
)

// Device is an in-memory PCD. All methods are safe for concurrent use.
type Device struct {
	mu      sync.Mutex
	format  sbus.Format
	station uint8

	registers map[uint16]uint32
	timers    map[uint16]uint32
	counters  map[uint16]uint32
	flags     map[uint16]bool
	inputs    map[uint16]bool
	outputs   map[uint16]bool

	dropNext    int
	corruptNext int
	delay       time.Duration
	requests    int
}

// New returns a device that answers telegrams in format f addressed to station.
func New(f sbus.Format, station uint8) *Device {
	return &Device{
		format:    f,
		station:   station,
		registers: make(map[uint16]uint32),
		timers:    make(map[uint16]uint32),
		counters:  make(map[uint16]uint32),
		flags:     make(map[uint16]bool),
		inputs:    make(map[uint16]bool),
		outputs:   make(map[uint16]bool),
	}
}

// Format returns the telegram format the device speaks.
func (d *Device) Format() sbus.Format { return d.format }

func (d *Device) SetRegister(addr uint16, v uint32) { d.setWord(d.registers, addr, v) }

func (d *Device) Register(addr uint16) uint32 { return d.word(d.registers, addr) }

func (d *Device) SetTimer(addr uint16, v uint32) { d.setWord(d.timers, addr, v) }

func (d *Device) SetCounter(addr uint16, v uint32) { d.setWord(d.counters, addr, v) }

func (d *Device) SetFlag(addr uint16, v bool) { d.setBit(d.flags, addr, v) }

func (d *Device) Flag(addr uint16) bool { return d.bit(d.flags, addr) }

func (d *Device) SetInput(addr uint16, v bool) { d.setBit(d.inputs, addr, v) }

func (d *Device) Output(addr uint16) bool { return d.bit(d.outputs, addr) }

// SetIdentity fills the identity system registers. product is packed four
// ASCII bytes per register, big-endian, NUL padded to 16 bytes.
func (d *Device) SetIdentity(firmware uint32, product string, hw uint32, serial uint64) {
	var packed [16]byte
	copy(packed[:], product)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.registers[RegFirmware] = firmware
	for i := 0; i < 4; i++ {
		d.registers[uint16(RegProductType+i)] = binary.BigEndian.Uint32(packed[i*4:])
	}
	d.registers[RegHWVersion] = hw
	d.registers[RegSerial] = uint32(serial >> 32)
	d.registers[RegSerial+1] = uint32(serial)
}

// DropNext makes the device ignore the next n requests.
func (d *Device) DropNext(n int) {
	d.mu.Lock()
	d.dropNext = n
	d.mu.Unlock()
}

// CorruptNext makes the device flip a CRC bit in the next n responses.
func (d *Device) CorruptNext(n int) {
	d.mu.Lock()
	d.corruptNext = n
	d.mu.Unlock()
}

// SetDelay delays every response sent by a server by delay.
func (d *Device) SetDelay(delay time.Duration) {
	d.mu.Lock()
	d.delay = delay
	d.mu.Unlock()
}

func (d *Device) responseDelay() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.delay
}

// Requests returns the number of telegrams handled, dropped ones included.
func (d *Device) Requests() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.requests
}

// Handle answers one request telegram. It returns nil when the device stays
// silent: dropped requests, malformed telegrams, other stations and
// unsupported commands.
func (d *Device) Handle(raw []byte) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.requests++
	if d.dropNext > 0 {
		d.dropNext--
		return nil
	}

	req, err := sbus.ParseTelegram(d.format, raw)
	if err != nil || req.Attribute != sbus.AttrRequest || req.Station != d.station {
		return nil
	}

	addr, count, payload, err := sbus.SplitRequest(d.format, req)
	if err != nil {
		return nil
	}

	data, ok := d.execute(req.Command, addr, count, payload)
	if !ok {
		return nil
	}

	resp := &sbus.Telegram{
		Sequence:  req.Sequence,
		Station:   req.Station,
		Attribute: sbus.AttrResponse,
		Command:   req.Command,
		Address:   addr,
		Count:     count,
		Data:      data,
	}
	if req.Command.IsWrite() {
		resp.Attribute = sbus.AttrACK
		if d.format == sbus.FormatGeneric {
			// zero status word, as a generic PCD sends it
			resp.Data = []byte{0x00, 0x00}
		}
	}

	out := resp.Pack(d.format)
	if d.corruptNext > 0 {
		d.corruptNext--
		out[len(out)-1] ^= 0x01
	}

	return out
}

func (d *Device) execute(cmd sbus.Command, addr, count uint16, payload []byte) ([]byte, bool) {
	switch cmd { //nolint:exhaustive
	case sbus.CmdReadRegister:
		return readWords(d.registers, addr, count), true
	case sbus.CmdReadTimer:
		return readWords(d.timers, addr, count), true
	case sbus.CmdReadCounter:
		return readWords(d.counters, addr, count), true
	case sbus.CmdReadFlag:
		return readBits(d.flags, addr, count), true
	case sbus.CmdReadInput:
		return readBits(d.inputs, addr, count), true
	case sbus.CmdReadOutput:
		return readBits(d.outputs, addr, count), true
	case sbus.CmdWriteRegister:
		return nil, writeWords(d.registers, addr, payload)
	case sbus.CmdWriteTimer:
		return nil, writeWords(d.timers, addr, payload)
	case sbus.CmdWriteCounter:
		return nil, writeWords(d.counters, addr, payload)
	case sbus.CmdWriteFlag:
		return nil, writeBit(d.flags, addr, payload)
	case sbus.CmdWriteOutput:
		return nil, writeBit(d.outputs, addr, payload)
	default:
		return nil, false
	}
}

func readWords(m map[uint16]uint32, addr, count uint16) []byte {
	buf := make([]byte, 0, int(count)*4)
	for i := uint16(0); i < count; i++ {
		buf = binary.BigEndian.AppendUint32(buf, m[addr+i])
	}

	return buf
}

func readBits(m map[uint16]bool, addr, count uint16) []byte {
	buf := make([]byte, (int(count)+7)/8)
	for i := 0; i < int(count); i++ {
		if m[addr+uint16(i)] {
			buf[i/8] |= 1 << (i % 8)
		}
	}

	return buf
}

func writeWords(m map[uint16]uint32, addr uint16, payload []byte) bool {
	if len(payload) == 0 || len(payload)%4 != 0 {
		return false
	}
	for i := 0; i < len(payload)/4; i++ {
		m[addr+uint16(i)] = binary.BigEndian.Uint32(payload[i*4:])
	}

	return true
}

func writeBit(m map[uint16]bool, addr uint16, payload []byte) bool {
	if len(payload) < 1 {
		return false
	}
	m[addr] = payload[0] != 0

	return true
}

func (d *Device) setWord(m map[uint16]uint32, addr uint16, v uint32) {
	d.mu.Lock()
	m[addr] = v
	d.mu.Unlock()
}

func (d *Device) word(m map[uint16]uint32, addr uint16) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return m[addr]
}

func (d *Device) setBit(m map[uint16]bool, addr uint16, v bool) {
	d.mu.Lock()
	m[addr] = v
	d.mu.Unlock()
}

func (d *Device) bit(m map[uint16]bool, addr uint16) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return m[addr]
}
