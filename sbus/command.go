package sbus

import "fmt"

// Command is an S-Bus command opcode.
type Command uint8

// S-Bus command opcodes.
const (
	CmdReadCounter   Command = 0x00
	CmdReadFlag      Command = 0x02
	CmdReadInput     Command = 0x03
	CmdReadRTC       Command = 0x04
	CmdReadOutput    Command = 0x05
	CmdReadRegister  Command = 0x06
	CmdReadTimer     Command = 0x07
	CmdWriteCounter  Command = 0x0A
	CmdWriteFlag     Command = 0x0B
	CmdWriteRTC      Command = 0x0C
	CmdWriteOutput   Command = 0x0D
	CmdWriteRegister Command = 0x0E
	CmdWriteTimer    Command = 0x0F
	CmdReadDB        Command = 0x96
	CmdWriteDB       Command = 0x97
)

var commandNames = map[Command]string{
	CmdReadCounter:   "READ_COUNTER",
	CmdReadFlag:      "READ_FLAG",
	CmdReadInput:     "READ_INPUT",
	CmdReadRTC:       "READ_RTC",
	CmdReadOutput:    "READ_OUTPUT",
	CmdReadRegister:  "READ_REGISTER",
	CmdReadTimer:     "READ_TIMER",
	CmdWriteCounter:  "WRITE_COUNTER",
	CmdWriteFlag:     "WRITE_FLAG",
	CmdWriteRTC:      "WRITE_RTC",
	CmdWriteOutput:   "WRITE_OUTPUT",
	CmdWriteRegister: "WRITE_REGISTER",
	CmdWriteTimer:    "WRITE_TIMER",
	CmdReadDB:        "READ_DB",
	CmdWriteDB:       "WRITE_DB",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}

	return fmt.Sprintf("CMD_0x%02X", uint8(c))
}

// IsWrite reports whether c modifies controller state. Devices answer writes with ACK.
func (c Command) IsWrite() bool {
	switch c { //nolint:exhaustive
	case CmdWriteCounter, CmdWriteFlag, CmdWriteRTC, CmdWriteOutput,
		CmdWriteRegister, CmdWriteTimer, CmdWriteDB:
		return true
	default:
		return false
	}
}

// IsBitAccess reports whether c addresses single-bit media (flags, inputs, outputs).
func (c Command) IsBitAccess() bool {
	switch c { //nolint:exhaustive
	case CmdReadFlag, CmdReadInput, CmdReadOutput, CmdWriteFlag, CmdWriteOutput:
		return true
	default:
		return false
	}
}

// isRTC reports whether c addresses the real time clock, which has no address field.
func (c Command) isRTC() bool {
	return c == CmdReadRTC || c == CmdWriteRTC
}

// Attribute distinguishes request, response and acknowledge telegrams.
type Attribute uint8

const (
	AttrRequest  Attribute = 0x00
	AttrResponse Attribute = 0x01
	AttrACK      Attribute = 0x02
)

func (a Attribute) String() string {
	switch a {
	case AttrRequest:
		return "REQUEST"
	case AttrResponse:
		return "RESPONSE"
	case AttrACK:
		return "ACK"
	default:
		return fmt.Sprintf("ATTR_0x%02X", uint8(a))
	}
}

// Valid reports whether a is one of the defined attribute values.
func (a Attribute) Valid() bool {
	return a <= AttrACK
}
