// Package firgelli drives Firgelli linear actuators connected to an NXT
// motor output, directly or through a motor multiplexer.
package firgelli

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mklimuk/nxtsensors"
)

const (
	DefaultPollInterval = 20 * time.Millisecond
	DefaultStallWindow  = 500 * time.Millisecond
)

var ErrInvalidArgument = fmt.Errorf("firgelli: invalid argument")

// Motor is an output with an encoder, such as a motor multiplexer channel.
// SetPower takes -100..100, zero stops the motor.
type Motor interface {
	SetPower(ctx context.Context, power int) error
	Encoder(ctx context.Context) (int32, error)
}

type Config struct {
	PollInterval time.Duration
	// StallWindow is how long the encoder may stay unchanged before the move
	// is considered stalled.
	StallWindow time.Duration
	// Reversed swaps the extend and retract directions.
	Reversed bool
}

type Option func(*Config)

func WithPollInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.PollInterval = interval
	}
}

func WithStallWindow(window time.Duration) Option {
	return func(c *Config) {
		c.StallWindow = window
	}
}

func WithReversed(reversed bool) Option {
	return func(c *Config) {
		c.Reversed = reversed
	}
}

// Actuator runs one move at a time in the background. A move ends when the
// encoder has travelled the requested ticks, when the actuator stalls (at an
// end stop or under load) or when its context is cancelled. The motor is
// stopped in every case.
type Actuator struct {
	mx     sync.Mutex
	motor  Motor
	config Config
	move   *move
}

type move struct {
	cancel    context.CancelFunc
	done      chan struct{}
	stopped   atomic.Bool
	travelled atomic.Int64
	stalled   bool
	err       error
}

func New(motor Motor, opts ...Option) *Actuator {
	config := Config{PollInterval: DefaultPollInterval, StallWindow: DefaultStallWindow}
	for _, opt := range opts {
		opt(&config)
	}
	return &Actuator{motor: motor, config: config}
}

// Extend starts extending at speed (0..100) for ticks encoder ticks, or
// until the end stop when ticks is 0. A running move is stopped first.
func (a *Actuator) Extend(ctx context.Context, speed int, ticks int) error {
	return a.start(ctx, nxtsensors.Clip(speed, 0, 100), ticks)
}

// Retract is Extend in the other direction.
func (a *Actuator) Retract(ctx context.Context, speed int, ticks int) error {
	return a.start(ctx, -nxtsensors.Clip(speed, 0, 100), ticks)
}

// Stop ends the running move and stops the motor.
func (a *Actuator) Stop(ctx context.Context) error {
	a.mx.Lock()
	defer a.mx.Unlock()
	a.stopLocked()
	if err := a.motor.SetPower(ctx, 0); err != nil {
		return fmt.Errorf("firgelli: could not stop motor: %w", err)
	}
	return nil
}

// Done reports whether the last move has ended.
func (a *Actuator) Done() bool {
	m := a.current()
	if m == nil {
		return true
	}
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

// Stalled reports whether the last move ended because the encoder stopped
// moving. A full travel move (ticks 0) always ends this way.
func (a *Actuator) Stalled() bool {
	m := a.current()
	if m == nil || !a.Done() {
		return false
	}
	return m.stalled
}

// Travelled returns the ticks covered by the last move so far.
func (a *Actuator) Travelled() int {
	m := a.current()
	if m == nil {
		return 0
	}
	return int(m.travelled.Load())
}

// Wait blocks until the last move ends and returns its error: nil when it
// reached its target, stalled or was stopped.
func (a *Actuator) Wait(ctx context.Context) error {
	m := a.current()
	if m == nil {
		return nil
	}
	select {
	case <-m.done:
		return m.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Actuator) current() *move {
	a.mx.Lock()
	defer a.mx.Unlock()
	return a.move
}

func (a *Actuator) start(ctx context.Context, power int, ticks int) error {
	if ticks < 0 {
		return fmt.Errorf("%w: ticks %d", ErrInvalidArgument, ticks)
	}
	if a.config.Reversed {
		power = -power
	}
	a.mx.Lock()
	defer a.mx.Unlock()
	a.stopLocked()
	pos, err := a.motor.Encoder(ctx)
	if err != nil {
		return fmt.Errorf("firgelli: could not read encoder: %w", err)
	}
	if err := a.motor.SetPower(ctx, power); err != nil {
		return fmt.Errorf("firgelli: could not start motor: %w", err)
	}
	mctx, cancel := context.WithCancel(ctx)
	m := &move{cancel: cancel, done: make(chan struct{})}
	a.move = m
	slog.Debug("actuator move started", "power", power, "ticks", ticks, "position", pos)
	go a.run(mctx, m, pos, ticks)
	return nil
}

func (a *Actuator) stopLocked() {
	if a.move == nil {
		return
	}
	a.move.stopped.Store(true)
	a.move.cancel()
	<-a.move.done
}

func (a *Actuator) run(ctx context.Context, m *move, start int32, ticks int) {
	defer close(m.done)
	defer m.cancel()
	defer func() {
		if err := a.motor.SetPower(context.WithoutCancel(ctx), 0); err != nil && m.err == nil {
			m.err = fmt.Errorf("firgelli: could not stop motor: %w", err)
		}
		slog.Debug("actuator move ended", "travelled", m.travelled.Load(), "stalled", m.stalled, "error", m.err)
	}()
	ticker := time.NewTicker(a.config.PollInterval)
	defer ticker.Stop()
	last := start
	lastChange := time.Now()
	for {
		select {
		case <-ctx.Done():
			if !m.stopped.Load() {
				m.err = ctx.Err()
			}
			return
		case <-ticker.C:
		}
		pos, err := a.motor.Encoder(ctx)
		if err != nil {
			if ctx.Err() == nil || !m.stopped.Load() {
				m.err = fmt.Errorf("firgelli: could not read encoder: %w", err)
			}
			return
		}
		travelled := int(pos) - int(start)
		if travelled < 0 {
			travelled = -travelled
		}
		m.travelled.Store(int64(travelled))
		if ticks > 0 && travelled >= ticks {
			return
		}
		if pos != last {
			last = pos
			lastChange = time.Now()
			continue
		}
		if time.Since(lastChange) >= a.config.StallWindow {
			m.stalled = true
			return
		}
	}
}
