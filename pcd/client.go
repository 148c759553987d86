package pcd

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/arloliu/go-sbus/logger"
	"github.com/arloliu/go-sbus/sbus"
	"github.com/arloliu/go-sbus/transport"
)

// Client is the protocol engine for one PCD station behind one transport.
//
// The codec's sequence counter is only touched inside the exclusive
// section, together with the exchange it numbers.
type Client struct {
	tr     transport.Transport
	codec  *sbus.Codec
	sem    chan struct{}
	logger logger.Logger

	maxFlagCount int
}

// NewClient creates an engine that talks to a station over tr.
func NewClient(tr transport.Transport, opts ...Option) (*Client, error) {
	if tr == nil {
		return nil, errors.New("pcd: nil transport")
	}

	cfg := defaultClientConfig()
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}
	if !cfg.formatSet {
		cfg.format = defaultFormat(tr.Kind())
	}

	return &Client{
		tr:           tr,
		codec:        sbus.NewCodec(cfg.format, cfg.station),
		sem:          make(chan struct{}, 1),
		logger:       cfg.logger.With("station", cfg.station, "transport", tr.String()),
		maxFlagCount: cfg.maxFlagCount,
	}, nil
}

// Station returns the destination station address.
func (c *Client) Station() uint8 { return c.codec.Station() }

// Format returns the telegram format in use.
func (c *Client) Format() sbus.Format { return c.codec.Format() }

// Transport returns the underlying transport.
func (c *Client) Transport() transport.Transport { return c.tr }

// Connect connects the transport.
func (c *Client) Connect(ctx context.Context) error {
	return c.tr.Connect(ctx)
}

// Disconnect disconnects the transport. It is safe to call repeatedly.
func (c *Client) Disconnect() error {
	return c.tr.Disconnect()
}

// IsConnected reports whether the transport is connected.
func (c *Client) IsConnected() bool {
	return c.tr.IsConnected()
}

// ReadRegisters reads count (1..32) consecutive 32-bit registers from start (0..9999).
func (c *Client) ReadRegisters(ctx context.Context, start, count int) ([]uint32, error) {
	return c.readWords(ctx, sbus.CmdReadRegister, start, count)
}

// ReadTimers reads count consecutive timers from start, with register bounds.
func (c *Client) ReadTimers(ctx context.Context, start, count int) ([]uint32, error) {
	return c.readWords(ctx, sbus.CmdReadTimer, start, count)
}

// ReadCounters reads count consecutive counters from start, with register bounds.
func (c *Client) ReadCounters(ctx context.Context, start, count int) ([]uint32, error) {
	return c.readWords(ctx, sbus.CmdReadCounter, start, count)
}

// WriteRegister writes value (0..0xFFFFFFFF) to the register at address (0..9999).
func (c *Client) WriteRegister(ctx context.Context, address int, value int64) error {
	return c.writeWord(ctx, sbus.CmdWriteRegister, address, value)
}

// WriteTimer writes value to the timer at address, with register bounds.
func (c *Client) WriteTimer(ctx context.Context, address int, value int64) error {
	return c.writeWord(ctx, sbus.CmdWriteTimer, address, value)
}

// WriteCounter writes value to the counter at address, with register bounds.
func (c *Client) WriteCounter(ctx context.Context, address int, value int64) error {
	return c.writeWord(ctx, sbus.CmdWriteCounter, address, value)
}

// ReadFlags reads count flags from start. Flags arrive packed LSB-first.
func (c *Client) ReadFlags(ctx context.Context, start, count int) ([]bool, error) {
	return c.readBits(ctx, sbus.CmdReadFlag, start, count)
}

// ReadInputs reads count digital inputs from start.
func (c *Client) ReadInputs(ctx context.Context, start, count int) ([]bool, error) {
	return c.readBits(ctx, sbus.CmdReadInput, start, count)
}

// ReadOutputs reads count digital outputs from start.
func (c *Client) ReadOutputs(ctx context.Context, start, count int) ([]bool, error) {
	return c.readBits(ctx, sbus.CmdReadOutput, start, count)
}

// WriteFlag sets or clears the flag at address.
func (c *Client) WriteFlag(ctx context.Context, address int, value bool) error {
	return c.writeBit(ctx, sbus.CmdWriteFlag, address, value)
}

// WriteOutput sets or clears the digital output at address.
func (c *Client) WriteOutput(ctx context.Context, address int, value bool) error {
	return c.writeBit(ctx, sbus.CmdWriteOutput, address, value)
}

func (c *Client) readWords(ctx context.Context, cmd sbus.Command, start, count int) ([]uint32, error) {
	if err := checkWordRange(start, count); err != nil {
		return nil, err
	}

	data, err := c.exchange(ctx, cmd, uint16(start), uint16(count), nil)
	if err != nil {
		return nil, err
	}

	if len(data) != count*4 {
		return nil, fmt.Errorf("%w: %s of %d objects returned %d bytes, expected %d",
			sbus.ErrUnexpectedPayload, cmd, count, len(data), count*4)
	}

	values := make([]uint32, count)
	for i := range values {
		values[i] = binary.BigEndian.Uint32(data[i*4:])
	}

	return values, nil
}

func (c *Client) readBits(ctx context.Context, cmd sbus.Command, start, count int) ([]bool, error) {
	if err := c.checkBitRange(start, count); err != nil {
		return nil, err
	}

	data, err := c.exchange(ctx, cmd, uint16(start), uint16(count), nil)
	if err != nil {
		return nil, err
	}

	need := (count + 7) / 8
	if len(data) < need {
		return nil, fmt.Errorf("%w: %s of %d bits returned %d bytes, expected at least %d",
			sbus.ErrUnexpectedPayload, cmd, count, len(data), need)
	}

	values := make([]bool, count)
	for i := range values {
		values[i] = data[i/8]&(1<<(i%8)) != 0
	}

	return values, nil
}

func (c *Client) writeWord(ctx context.Context, cmd sbus.Command, address int, value int64) error {
	if address < 0 || address > MaxRegisterAddress {
		return fmt.Errorf("%w: address %d not in [0, %d]", sbus.ErrOutOfRange, address, MaxRegisterAddress)
	}
	if value < 0 || value > MaxRegisterValue {
		return fmt.Errorf("%w: value %d not in [0, %d]", sbus.ErrOutOfRange, value, int64(MaxRegisterValue))
	}

	payload := binary.BigEndian.AppendUint32(nil, uint32(value))
	_, err := c.exchange(ctx, cmd, uint16(address), 1, payload)

	return err
}

func (c *Client) writeBit(ctx context.Context, cmd sbus.Command, address int, value bool) error {
	if address < 0 || address > MaxFlagAddress {
		return fmt.Errorf("%w: address %d not in [0, %d]", sbus.ErrOutOfRange, address, MaxFlagAddress)
	}

	payload := []byte{0}
	if value {
		payload[0] = 1
	}
	_, err := c.exchange(ctx, cmd, uint16(address), 1, payload)

	return err
}

// exchange runs one request/response cycle inside the exclusive section and
// returns the response's data area.
func (c *Client) exchange(ctx context.Context, cmd sbus.Command, address, count uint16, payload []byte) ([]byte, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	req, seq := c.codec.BuildRequest(cmd, address, count, payload)

	raw, err := c.tr.SendAndReceive(ctx, req)
	if err != nil {
		c.logger.Debug("pcd: exchange failed", "command", cmd, "address", address, "count", count, "error", err)
		return nil, err
	}

	data, err := c.codec.ParseResponse(raw, seq)
	if err != nil {
		c.logger.Debug("pcd: invalid response", "command", cmd, "seq", seq, "error", err)
		return nil, err
	}

	return data, nil
}

// acquire takes the exchange slot. A done ctx never gets the slot, even
// when it is free.
func (c *Client) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return slotError(err)
	}

	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return slotError(ctx.Err())
	}
}

func slotError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: waiting for the exchange slot: %w", sbus.ErrTimeout, err)
	}

	return err
}

func (c *Client) release() { <-c.sem }

func checkWordRange(start, count int) error {
	switch {
	case start < 0 || start > MaxRegisterAddress:
		return fmt.Errorf("%w: start %d not in [0, %d]", sbus.ErrOutOfRange, start, MaxRegisterAddress)
	case count < 1 || count > MaxRegisterCount:
		return fmt.Errorf("%w: count %d not in [1, %d]", sbus.ErrOutOfRange, count, MaxRegisterCount)
	case start+count-1 > MaxRegisterAddress:
		return fmt.Errorf("%w: range %d..%d exceeds address %d", sbus.ErrOutOfRange, start, start+count-1, MaxRegisterAddress)
	}

	return nil
}

func (c *Client) checkBitRange(start, count int) error {
	switch {
	case start < 0 || start > MaxFlagAddress:
		return fmt.Errorf("%w: start %d not in [0, %d]", sbus.ErrOutOfRange, start, MaxFlagAddress)
	case count < 1 || count > c.maxFlagCount:
		return fmt.Errorf("%w: count %d not in [1, %d]", sbus.ErrOutOfRange, count, c.maxFlagCount)
	case start+count-1 > MaxFlagAddress:
		return fmt.Errorf("%w: range %d..%d exceeds address %d", sbus.ErrOutOfRange, start, start+count-1, MaxFlagAddress)
	}

	return nil
}
