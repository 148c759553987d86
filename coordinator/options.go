package coordinator

import (
	"fmt"
	"time"

	"github.com/arloliu/go-sbus/logger"
)

const (
	DefaultInterval             = 30 * time.Second
	DefaultReconnectDelay       = 5 * time.Second
	DefaultMaxConsecutiveErrors = 3

	MinInterval       = 5 * time.Second
	MaxInterval       = 3600 * time.Second
	MaxReconnectDelay = 5 * time.Minute
)

// Block is a contiguous range of objects to poll. A zero Count disables it.
type Block struct {
	Start int `json:"start" yaml:"start"`
	Count int `json:"count" yaml:"count"`
}

// Plan lists the blocks polled on every tick.
type Plan struct {
	Registers Block `json:"registers" yaml:"registers"`
	Flags     Block `json:"flags" yaml:"flags"`
	Timers    Block `json:"timers" yaml:"timers"`
	Counters  Block `json:"counters" yaml:"counters"`
}

// DefaultPlan polls registers 0..9 and flags 0..31.
func DefaultPlan() Plan {
	return Plan{
		Registers: Block{Start: 0, Count: 10},
		Flags:     Block{Start: 0, Count: 32},
	}
}

// Empty reports whether the plan polls nothing.
func (p Plan) Empty() bool {
	return p.Registers.Count == 0 && p.Flags.Count == 0 && p.Timers.Count == 0 && p.Counters.Count == 0
}

type coordConfig struct {
	id             string
	interval       time.Duration
	reconnectDelay time.Duration
	maxErrors      int
	plan           Plan
	sink           Sink
	logger         logger.Logger
}

func defaultConfig() *coordConfig {
	return &coordConfig{
		id:             "pcd",
		interval:       DefaultInterval,
		reconnectDelay: DefaultReconnectDelay,
		maxErrors:      DefaultMaxConsecutiveErrors,
		plan:           DefaultPlan(),
		sink:           nopSink{},
		logger:         logger.GetLogger(),
	}
}

// Option is a functional option for New.
type Option interface {
	apply(*coordConfig) error
}

type optFunc func(*coordConfig) error

func (f optFunc) apply(cfg *coordConfig) error { return f(cfg) }

// WithID names the coordinator in logs, sink calls and the Manager.
func WithID(id string) Option {
	return optFunc(func(cfg *coordConfig) error {
		if id == "" {
			return fmt.Errorf("coordinator: empty id")
		}
		cfg.id = id

		return nil
	})
}

// WithInterval sets the polling interval (5s..3600s).
func WithInterval(d time.Duration) Option {
	return optFunc(func(cfg *coordConfig) error {
		if d < MinInterval || d > MaxInterval {
			return fmt.Errorf("coordinator: interval %v out of range [%v, %v]", d, MinInterval, MaxInterval)
		}
		cfg.interval = d

		return nil
	})
}

// WithReconnectDelay sets the wait between disconnect and connect on a reconnect.
func WithReconnectDelay(d time.Duration) Option {
	return optFunc(func(cfg *coordConfig) error {
		if d < 0 || d > MaxReconnectDelay {
			return fmt.Errorf("coordinator: reconnect delay %v out of range [0s, %v]", d, MaxReconnectDelay)
		}
		cfg.reconnectDelay = d

		return nil
	})
}

// WithMaxConsecutiveErrors sets how many failed ticks in a row force a reconnect.
func WithMaxConsecutiveErrors(n int) Option {
	return optFunc(func(cfg *coordConfig) error {
		if n < 1 {
			return fmt.Errorf("coordinator: max consecutive errors %d must be positive", n)
		}
		cfg.maxErrors = n

		return nil
	})
}

// WithPlan sets the blocks polled on every tick.
func WithPlan(p Plan) Option {
	return optFunc(func(cfg *coordConfig) error {
		for name, b := range map[string]Block{
			"registers": p.Registers, "flags": p.Flags, "timers": p.Timers, "counters": p.Counters,
		} {
			if b.Start < 0 || b.Count < 0 {
				return fmt.Errorf("coordinator: invalid %s block {start: %d, count: %d}", name, b.Start, b.Count)
			}
		}
		if p.Empty() {
			return fmt.Errorf("coordinator: empty poll plan")
		}
		cfg.plan = p

		return nil
	})
}

// WithSink sets the receiver of snapshots and tick failures.
func WithSink(s Sink) Option {
	return optFunc(func(cfg *coordConfig) error {
		if s == nil {
			return fmt.Errorf("coordinator: nil sink")
		}
		cfg.sink = s

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *coordConfig) error {
		if l == nil {
			return fmt.Errorf("coordinator: nil logger")
		}
		cfg.logger = l

		return nil
	})
}
