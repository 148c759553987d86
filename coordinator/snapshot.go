package coordinator

import "time"

// Snapshot holds the values read on one successful tick. A bucket is empty
// when its block is disabled or its read was skipped.
type Snapshot struct {
	Device    string         `json:"device" yaml:"device"`
	Time      time.Time      `json:"time" yaml:"time"`
	Registers map[int]uint32 `json:"registers" yaml:"registers"`
	Flags     map[int]bool   `json:"flags" yaml:"flags"`
	Timers    map[int]uint32 `json:"timers" yaml:"timers"`
	Counters  map[int]uint32 `json:"counters" yaml:"counters"`
}

func newSnapshot(device string, now time.Time) *Snapshot {
	return &Snapshot{
		Device:    device,
		Time:      now,
		Registers: make(map[int]uint32),
		Flags:     make(map[int]bool),
		Timers:    make(map[int]uint32),
		Counters:  make(map[int]uint32),
	}
}

// Sink receives the outcome of every tick run by Coordinator.Run.
// Implementations must not block.
type Sink interface {
	OnUpdate(snap *Snapshot)
	OnError(device string, err error)
}

type nopSink struct{}

func (nopSink) OnUpdate(*Snapshot) {}

func (nopSink) OnError(string, error) {}

// SinkFuncs adapts plain functions to Sink. Nil functions are skipped.
type SinkFuncs struct {
	Update func(snap *Snapshot)
	Error  func(device string, err error)
}

func (s SinkFuncs) OnUpdate(snap *Snapshot) {
	if s.Update != nil {
		s.Update(snap)
	}
}

func (s SinkFuncs) OnError(device string, err error) {
	if s.Error != nil {
		s.Error(device, err)
	}
}

// MultiSink fans every outcome out to sinks in order.
type MultiSink []Sink

func (m MultiSink) OnUpdate(snap *Snapshot) {
	for _, s := range m {
		s.OnUpdate(snap)
	}
}

func (m MultiSink) OnError(device string, err error) {
	for _, s := range m {
		s.OnError(device, err)
	}
}
