// Package asl is a driver for the acoustic sound locator, a two microphone
// sensor reporting the direction of a sound source.
package asl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mklimuk/nxtsensors"
	"github.com/mklimuk/nxtsensors/bustx"
)

// DefaultAddress is the 7-bit bus address.
const DefaultAddress byte = 0x08

const (
	dynAngleReg  byte = 0x42
	statAngleReg byte = 0x45
	rightMicReg  byte = 0x48
	comboMicReg  byte = 0x4A
)

const (
	calibrationSamples  = 100
	calibrationInterval = 5 * time.Millisecond
)

// NoSound is returned by ThresholdAngle when the level is below the
// threshold.
const NoSound = -1

type Config struct {
	Address        byte
	TxOptions      []bustx.Option
	Reversed       bool
	SampleInterval time.Duration
}

type Option func(*Config)

func WithAddress(address byte) Option {
	return func(c *Config) {
		c.Address = address
	}
}

func WithTxOptions(opts ...bustx.Option) Option {
	return func(c *Config) {
		c.TxOptions = append(c.TxOptions, opts...)
	}
}

// WithReversed is used when the sensor is mounted upside down: angles are
// mirrored and the left and right microphones swapped.
func WithReversed(reversed bool) Option {
	return func(c *Config) {
		c.Reversed = reversed
	}
}

func WithSampleInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.SampleInterval = interval
	}
}

type MicLevels struct {
	Right    int `yaml:"right"`
	Left     int `yaml:"left"`
	Combined int `yaml:"combined"`
}

type Reading struct {
	// Angles range from 0 to 180 degrees.
	DynamicAngle int       `yaml:"dynamic_angle"`
	StaticAngle  int       `yaml:"static_angle"`
	Mics         MicLevels `yaml:"mics"`
}

type Locator struct {
	mx     sync.Mutex
	conn   *bustx.Conn
	config Config
}

func New(bus nxtsensors.I2CBus, opts ...Option) *Locator {
	config := Config{Address: DefaultAddress, SampleInterval: calibrationInterval}
	for _, opt := range opts {
		opt(&config)
	}
	return &Locator{conn: bustx.New(bus, config.Address, config.TxOptions...), config: config}
}

// DynamicAngle is the direction of the last loud sound.
func (l *Locator) DynamicAngle(ctx context.Context) (int, error) {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.angle(ctx, dynAngleReg)
}

// StaticAngle is the direction of a continuous sound source.
func (l *Locator) StaticAngle(ctx context.Context) (int, error) {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.angle(ctx, statAngleReg)
}

// ThresholdAngle returns the dynamic angle if the combined level is above
// threshold and NoSound otherwise.
func (l *Locator) ThresholdAngle(ctx context.Context, threshold int) (int, error) {
	l.mx.Lock()
	defer l.mx.Unlock()
	level, err := l.level(ctx)
	if err != nil {
		return 0, err
	}
	if level <= threshold {
		return NoSound, nil
	}
	return l.angle(ctx, dynAngleReg)
}

func (l *Locator) Mics(ctx context.Context) (MicLevels, error) {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.mics(ctx)
}

func (l *Locator) Read(ctx context.Context) (Reading, error) {
	l.mx.Lock()
	defer l.mx.Unlock()
	var r Reading
	var err error
	if r.DynamicAngle, err = l.angle(ctx, dynAngleReg); err != nil {
		return r, err
	}
	if r.StaticAngle, err = l.angle(ctx, statAngleReg); err != nil {
		return r, err
	}
	if r.Mics, err = l.mics(ctx); err != nil {
		return r, err
	}
	return r, nil
}

// CalibrateLevel returns the average combined level of the background noise,
// a starting point for the ThresholdAngle threshold.
func (l *Locator) CalibrateLevel(ctx context.Context) (int, error) {
	l.mx.Lock()
	defer l.mx.Unlock()
	level, err := nxtsensors.SampleAverage(ctx, calibrationSamples, l.config.SampleInterval, l.level)
	if err != nil {
		return 0, fmt.Errorf("asl: could not calibrate level: %w", err)
	}
	return level, nil
}

func (l *Locator) angle(ctx context.Context, reg byte) (int, error) {
	buf := make([]byte, 1)
	if err := l.conn.ReadReg(ctx, reg, buf); err != nil {
		return 0, fmt.Errorf("asl: could not read angle: %w", err)
	}
	angle := int(buf[0])
	if l.config.Reversed {
		angle = 180 - angle
	}
	return angle, nil
}

func (l *Locator) level(ctx context.Context) (int, error) {
	buf := make([]byte, 1)
	if err := l.conn.ReadReg(ctx, comboMicReg, buf); err != nil {
		return 0, fmt.Errorf("asl: could not read level: %w", err)
	}
	return int(buf[0]), nil
}

func (l *Locator) mics(ctx context.Context) (MicLevels, error) {
	buf := make([]byte, 3)
	if err := l.conn.ReadReg(ctx, rightMicReg, buf); err != nil {
		return MicLevels{}, fmt.Errorf("asl: could not read microphones: %w", err)
	}
	m := MicLevels{Right: int(buf[0]), Left: int(buf[1]), Combined: int(buf[2])}
	if l.config.Reversed {
		m.Right, m.Left = m.Left, m.Right
	}
	return m, nil
}
