package hitechnic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/mklimuk/nxtsensors"
	"github.com/mklimuk/nxtsensors/calib"
)

const (
	DefaultGyroOffset    = 620
	DefaultMagFieldBias  = 512
	analogFullScale      = 1023
	touchMuxLadderFactor = 339
)

type offsetCalibration struct {
	Offset int `yaml:"offset"`
}

// loadOffset restores a persisted offset, keeping def when none is stored.
func loadOffset(config Config, device string, def int) int {
	if config.Calibration == nil {
		return def
	}
	var cal offsetCalibration
	err := config.Calibration.Load(config.calibrationKey(device), &cal)
	if errors.Is(err, calib.ErrNotFound) {
		return def
	}
	if err != nil {
		slog.Warn("could not load calibration", "device", device, "port", config.Port, "error", err)
		return def
	}
	return cal.Offset
}

func saveOffset(config Config, device string, offset int) error {
	if config.Calibration == nil {
		return nil
	}
	return config.Calibration.Save(config.calibrationKey(device), offsetCalibration{Offset: offset})
}

type GyroReading struct {
	Raw      int `yaml:"raw"`
	Offset   int `yaml:"offset"`
	Rotation int `yaml:"rotation"`
}

// Gyro is the HiTechnic analog gyro; Rotation is in degrees per second.
type Gyro struct {
	mx     sync.Mutex
	input  nxtsensors.AnalogReader
	config Config
	offset int
	last   GyroReading
}

func NewGyro(input nxtsensors.AnalogReader, opts ...Option) *Gyro {
	config := newConfig(0, opts)
	return &Gyro{
		input:  input,
		config: config,
		offset: loadOffset(config, "gyro", DefaultGyroOffset),
	}
}

func (g *Gyro) Read(ctx context.Context) (GyroReading, error) {
	g.mx.Lock()
	defer g.mx.Unlock()
	raw, err := g.input.ReadAnalog(ctx)
	if err != nil {
		return g.last, fmt.Errorf("htgyro: could not read sensor: %w", err)
	}
	g.last = GyroReading{Raw: raw, Offset: g.offset, Rotation: raw - g.offset}
	return g.last, nil
}

func (g *Gyro) Last() GyroReading {
	g.mx.Lock()
	defer g.mx.Unlock()
	return g.last
}

func (g *Gyro) SetOffset(offset int) {
	g.mx.Lock()
	defer g.mx.Unlock()
	g.offset = offset
}

// Calibrate averages the output of a stationary gyro and stores it as the new
// offset.
func (g *Gyro) Calibrate(ctx context.Context) (int, error) {
	g.mx.Lock()
	defer g.mx.Unlock()
	avg, err := nxtsensors.SampleAverage(ctx, calibrationSamples, g.config.SampleInterval, g.input.ReadAnalog)
	if err != nil {
		return g.offset, fmt.Errorf("htgyro: could not calibrate: %w", err)
	}
	g.offset = avg
	if err := saveOffset(g.config, "gyro", avg); err != nil {
		return avg, fmt.Errorf("htgyro: could not save calibration: %w", err)
	}
	return avg, nil
}

type ForceReading struct {
	Raw   int `yaml:"raw"`
	Force int `yaml:"force"`
}

// Force is the HiTechnic force sensor; Force grows with the applied load.
type Force struct {
	mx    sync.Mutex
	input nxtsensors.AnalogReader
	last  ForceReading
}

func NewForce(input nxtsensors.AnalogReader) *Force {
	return &Force{input: input}
}

func (f *Force) Read(ctx context.Context) (ForceReading, error) {
	f.mx.Lock()
	defer f.mx.Unlock()
	raw, err := f.input.ReadAnalog(ctx)
	if err != nil {
		return f.last, fmt.Errorf("htf: could not read sensor: %w", err)
	}
	f.last = ForceReading{Raw: raw, Force: analogFullScale - raw}
	return f.last, nil
}

func (f *Force) Last() ForceReading {
	f.mx.Lock()
	defer f.mx.Unlock()
	return f.last
}

type EOPDConfig struct {
	LongRange bool `yaml:"long_range"`
}

type EOPDReading struct {
	Raw       int  `yaml:"raw"`
	Processed int  `yaml:"processed"`
	LongRange bool `yaml:"long_range"`
}

// EOPD is the HiTechnic electro optical proximity detector. Processed is
// roughly linear with distance.
type EOPD struct {
	mx        sync.Mutex
	input     nxtsensors.AnalogReader
	longRange bool
	last      EOPDReading
}

func NewEOPD(input nxtsensors.AnalogReader) *EOPD {
	return &EOPD{input: input}
}

// Configure switches between short and long range by powering the port. Ports
// that cannot switch their excitation return ErrNotSupported.
func (e *EOPD) Configure(ctx context.Context, config EOPDConfig) error {
	e.mx.Lock()
	defer e.mx.Unlock()
	setter, ok := e.input.(nxtsensors.AnalogPowerSetter)
	if !ok {
		return fmt.Errorf("hteopd: range selection: %w", nxtsensors.ErrNotSupported)
	}
	if err := setter.SetAnalogActive(ctx, config.LongRange); err != nil {
		return fmt.Errorf("hteopd: could not set range: %w", err)
	}
	e.longRange = config.LongRange
	return nil
}

func (e *EOPD) Read(ctx context.Context) (EOPDReading, error) {
	e.mx.Lock()
	defer e.mx.Unlock()
	v, err := e.input.ReadAnalog(ctx)
	if err != nil {
		return e.last, fmt.Errorf("hteopd: could not read sensor: %w", err)
	}
	raw := analogFullScale - v
	e.last = EOPDReading{
		Raw:       raw,
		Processed: int(math.Round(math.Sqrt(float64(raw * 10)))),
		LongRange: e.longRange,
	}
	return e.last, nil
}

func (e *EOPD) Last() EOPDReading {
	e.mx.Lock()
	defer e.mx.Unlock()
	return e.last
}

type MagFieldReading struct {
	Raw      int `yaml:"raw"`
	Bias     int `yaml:"bias"`
	Strength int `yaml:"strength"`
}

// MagField is the HiTechnic magnetic field sensor.
type MagField struct {
	mx     sync.Mutex
	input  nxtsensors.AnalogReader
	config Config
	bias   int
	last   MagFieldReading
}

func NewMagField(input nxtsensors.AnalogReader, opts ...Option) *MagField {
	config := newConfig(0, opts)
	return &MagField{
		input:  input,
		config: config,
		bias:   loadOffset(config, "magfield", DefaultMagFieldBias),
	}
}

func (m *MagField) Read(ctx context.Context) (MagFieldReading, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	raw, err := m.input.ReadAnalog(ctx)
	if err != nil {
		return m.last, fmt.Errorf("htmag: could not read sensor: %w", err)
	}
	m.last = MagFieldReading{Raw: raw, Bias: m.bias, Strength: raw - m.bias}
	return m.last, nil
}

func (m *MagField) Last() MagFieldReading {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.last
}

// Calibrate measures the bias with no magnet near the sensor.
func (m *MagField) Calibrate(ctx context.Context) (int, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	avg, err := nxtsensors.SampleAverage(ctx, calibrationSamples, m.config.SampleInterval, m.input.ReadAnalog)
	if err != nil {
		return m.bias, fmt.Errorf("htmag: could not calibrate: %w", err)
	}
	m.bias = avg
	if err := saveOffset(m.config, "magfield", avg); err != nil {
		return avg, fmt.Errorf("htmag: could not save calibration: %w", err)
	}
	return avg, nil
}

type TouchMuxReading struct {
	Mask    byte    `yaml:"mask"`
	Pressed [4]bool `yaml:"pressed"`
}

// TouchMux decodes the four touch sensors of the HiTechnic touch multiplexer
// from the voltage of its resistor ladder.
type TouchMux struct {
	mx    sync.Mutex
	input nxtsensors.AnalogReader
	last  TouchMuxReading
}

func NewTouchMux(input nxtsensors.AnalogReader) *TouchMux {
	return &TouchMux{input: input}
}

func (t *TouchMux) Read(ctx context.Context) (TouchMuxReading, error) {
	t.mx.Lock()
	defer t.mx.Unlock()
	raw, err := t.input.ReadAnalog(ctx)
	if err != nil {
		return t.last, fmt.Errorf("httmux: could not read sensor: %w", err)
	}
	t.last = decodeTouchMux(raw)
	return t.last, nil
}

func (t *TouchMux) Last() TouchMuxReading {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.last
}

func decodeTouchMux(raw int) TouchMuxReading {
	v := nxtsensors.Clip(analogFullScale-raw, 0, analogFullScale-1)
	switches := (touchMuxLadderFactor*v/(analogFullScale-v) + 5) / 10
	var r TouchMuxReading
	r.Mask = byte(switches) & 0x0F
	for i := range r.Pressed {
		r.Pressed[i] = r.Mask&(1<<i) != 0
	}
	return r
}
