package transport

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/arloliu/go-sbus/internal/pool"
	"github.com/arloliu/go-sbus/logger"
	"github.com/arloliu/go-sbus/sbus"
)

// base carries what every driver shares: configuration, state, metrics and
// the timeout retry loop.
type base struct {
	cfg     *Config
	logger  logger.Logger
	state   connState
	metrics Metrics
	name    string
}

func newBase(cfg *Config, name string) base {
	return base{
		cfg:    cfg,
		logger: cfg.logger.With("transport", name),
		name:   name,
	}
}

func (b *base) IsConnected() bool { return b.state.isConnected() }

func (b *base) Kind() Kind { return b.cfg.kind }

func (b *base) Metrics() *Metrics { return &b.metrics }

func (b *base) String() string { return b.name }

// Config returns the transport's configuration.
func (b *base) Config() *Config { return b.cfg }

// beginConnect moves the state to Connecting. It returns done=true when the
// transport is already connected.
func (b *base) beginConnect() (done bool, err error) {
	if b.state.toConnecting() {
		return false, nil
	}
	if b.state.isConnected() {
		return true, nil
	}

	return false, fmt.Errorf("%w: %s is %s", sbus.ErrConnection, b.name, b.state.get())
}

// endConnect completes a connect started by beginConnect.
func (b *base) endConnect(err error) error {
	if err != nil {
		b.state.set(StateDisconnected)
		b.metrics.incConnectErrCount()
		b.logger.Error("transport: connect failed", "error", err)

		return fmt.Errorf("%w: connect %s: %w", sbus.ErrConnection, b.name, err)
	}

	b.state.toConnected()
	b.metrics.onConnect()
	b.logger.Info("transport: connected")

	return nil
}

// beginDisconnect moves the state to Disconnecting. It returns false when
// there is nothing to do.
func (b *base) beginDisconnect() bool {
	return b.state.toDisconnecting()
}

func (b *base) endDisconnect(err error) error {
	b.state.set(StateDisconnected)
	b.metrics.onDisconnect()
	b.logger.Info("transport: disconnected")

	if err != nil {
		return fmt.Errorf("%w: close %s: %w", sbus.ErrConnection, b.name, err)
	}

	return nil
}

// exchange runs attempt up to cfg.attempts times. Only timeouts are retried;
// resend n waits retryDelay * 2^(n-1) first.
func (b *base) exchange(ctx context.Context, attempt func(context.Context) ([]byte, error)) ([]byte, error) {
	if !b.state.isConnected() {
		return nil, fmt.Errorf("%w: %s", sbus.ErrNotConnected, b.name)
	}

	var lastErr error
	for n := 1; n <= b.cfg.attempts; n++ {
		if n > 1 {
			delay := b.cfg.backoff(n)
			b.metrics.incRetryCount()
			b.logger.Debug("transport: retry after timeout", "attempt", n, "delay", delay)

			if err := pool.Sleep(ctx, delay); err != nil {
				return nil, ctxError(err)
			}
		}

		b.metrics.incSendCount()

		resp, err := attempt(ctx)
		if err == nil {
			b.metrics.incRecvCount()
			return resp, nil
		}

		if !errors.Is(err, sbus.ErrTimeout) || ctx.Err() != nil {
			return nil, err
		}

		b.metrics.incTimeoutCount()
		lastErr = err
	}

	if b.cfg.attempts > 1 {
		return nil, fmt.Errorf("%w (after %d attempts)", lastErr, b.cfg.attempts)
	}

	return nil, lastErr
}

// trace logs a telegram at debug level.
func (b *base) trace(msg string, data []byte) {
	if b.logger.Level() > logger.DebugLevel {
		return
	}

	b.logger.Debug(msg, "telegram", hex.EncodeToString(data), "len", len(data))
}
