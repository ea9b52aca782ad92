// Package bustx implements the request/reply transaction used by every
// driver: wait for the bus, send, read the reply, and on failure clear the bus
// and try exactly once more.
package bustx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mklimuk/nxtsensors"
)

const (
	DefaultPollInterval = time.Millisecond
	DefaultTimeout      = 100 * time.Millisecond
	DefaultClearCount   = 5
	DefaultClearDelay   = 10 * time.Millisecond
	DefaultMaxPayload   = 16
)

type Conn struct {
	bus          nxtsensors.I2CBus
	addr         byte
	pollInterval time.Duration
	timeout      time.Duration
	clearCount   int
	clearDelay   time.Duration
	maxPayload   int
	logger       *slog.Logger
}

type Option func(*Conn)

func WithPollInterval(interval time.Duration) Option {
	return func(c *Conn) {
		c.pollInterval = interval
	}
}

// WithTimeout bounds a single attempt, including the bus-ready wait.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Conn) {
		c.timeout = timeout
	}
}

func WithClearSequence(count int, delay time.Duration) Option {
	return func(c *Conn) {
		c.clearCount = count
		c.clearDelay = delay
	}
}

func WithMaxPayload(size int) Option {
	return func(c *Conn) {
		c.maxPayload = size
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Conn) {
		c.logger = logger
	}
}

func New(bus nxtsensors.I2CBus, addr byte, opts ...Option) *Conn {
	c := &Conn{
		bus:          bus,
		addr:         addr,
		pollInterval: DefaultPollInterval,
		timeout:      DefaultTimeout,
		clearCount:   DefaultClearCount,
		clearDelay:   DefaultClearDelay,
		maxPayload:   DefaultMaxPayload,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Conn) Addr() byte {
	return c.addr
}

func (c *Conn) Bus() nxtsensors.I2CBus {
	return c.bus
}

// Tx writes w to the device and then fills r with its reply. An empty r means
// no reply is expected.
func (c *Conn) Tx(ctx context.Context, w, r []byte) error {
	if len(w) > c.maxPayload || len(r) > c.maxPayload {
		return fmt.Errorf("device %#x: %w: write %d, read %d, max %d", c.addr, nxtsensors.ErrPayloadTooLarge, len(w), len(r), c.maxPayload)
	}
	if err := c.waitReady(ctx); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("device %#x: %w", c.addr, ctx.Err())
		}
		c.log().Debug("bus not ready, clearing", "addr", c.addr, "error", err)
		c.clear(ctx)
		if err := c.waitReady(ctx); err != nil {
			return fmt.Errorf("%w: device %#x: %w", nxtsensors.ErrTxFailed, c.addr, err)
		}
	}
	err := c.attempt(ctx, w, r)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || errors.Is(err, nxtsensors.ErrNotSupported) {
		return fmt.Errorf("device %#x: %w", c.addr, err)
	}
	c.log().Debug("transaction failed, clearing bus and retrying", "addr", c.addr, "error", err)
	c.clear(ctx)
	err = c.attempt(ctx, w, r)
	if err != nil {
		c.log().Warn("transaction failed after retry", "addr", c.addr, "error", err)
		return fmt.Errorf("%w: device %#x: %w", nxtsensors.ErrTxFailed, c.addr, err)
	}
	return nil
}

func (c *Conn) WriteReg(ctx context.Context, reg byte, data ...byte) error {
	w := make([]byte, 0, len(data)+1)
	w = append(w, reg)
	w = append(w, data...)
	return c.Tx(ctx, w, nil)
}

func (c *Conn) ReadReg(ctx context.Context, reg byte, buf []byte) error {
	return c.Tx(ctx, []byte{reg}, buf)
}

func (c *Conn) attempt(ctx context.Context, w, r []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if t, ok := c.bus.(nxtsensors.Transceiver); ok {
		return t.Tx(ctx, c.addr, w, r)
	}
	if len(w) > 0 {
		if err := c.bus.WriteToAddr(ctx, c.addr, w); err != nil {
			return err
		}
		if err := c.waitReady(ctx); err != nil {
			return err
		}
	}
	if len(r) > 0 {
		if err := c.bus.ReadFromAddr(ctx, c.addr, r); err != nil {
			return err
		}
	}
	return nil
}

// waitReady polls the bus status until the engine is idle. Buses without a
// status register are always considered ready.
func (c *Conn) waitReady(ctx context.Context) error {
	poller, ok := c.bus.(nxtsensors.StatusPoller)
	if !ok {
		return nil
	}
	deadline := time.Now().Add(c.timeout)
	for {
		status, err := poller.BusStatus(ctx, c.addr)
		if err != nil {
			return err
		}
		switch status {
		case nxtsensors.StatusReady:
			return nil
		case nxtsensors.StatusError:
			return nxtsensors.ErrBusError
		}
		if time.Now().After(deadline) {
			return nxtsensors.ErrBusTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

func (c *Conn) clear(ctx context.Context) {
	if cl, ok := c.bus.(nxtsensors.Clearer); ok {
		if err := cl.Clear(ctx, c.addr); err != nil {
			c.log().Debug("could not clear bus", "addr", c.addr, "error", err)
		}
		return
	}
	_ = c.bus.Release(ctx)
	for i := 0; i < c.clearCount; i++ {
		// address only message
		_ = c.bus.WriteToAddr(ctx, c.addr, nil)
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.clearDelay):
		}
	}
}

func (c *Conn) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.Default()
}
