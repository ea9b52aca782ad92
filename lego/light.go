// Package lego contains drivers for the LEGO NXT analog sensors.
package lego

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mklimuk/nxtsensors"
	"github.com/mklimuk/nxtsensors/calib"
)

const analogMax = 1023

type Config struct {
	Port        string
	Calibration nxtsensors.CalibrationStore
}

type Option func(*Config)

// WithPort names the port the sensor is plugged in; it is the calibration
// key suffix.
func WithPort(port string) Option {
	return func(c *Config) {
		c.Port = port
	}
}

func WithCalibration(store nxtsensors.CalibrationStore) Option {
	return func(c *Config) {
		c.Calibration = store
	}
}

func (c Config) calibrationKey(device string) string {
	if c.Port == "" {
		return "lego-" + device
	}
	return "lego-" + device + "-" + c.Port
}

type LightLimits struct {
	Low  int `yaml:"low"`
	High int `yaml:"high"`
}

type LightReading struct {
	// Raw grows with brightness.
	Raw        int `yaml:"raw"`
	Normalised int `yaml:"normalised"`
}

// Light is the LEGO NXT light sensor. The port reports lower values for more
// light, Raw is inverted so that it grows with brightness.
type Light struct {
	mx     sync.Mutex
	input  nxtsensors.AnalogReader
	config Config
	limits LightLimits
}

func NewLight(input nxtsensors.AnalogReader, opts ...Option) *Light {
	var config Config
	for _, opt := range opts {
		opt(&config)
	}
	l := &Light{input: input, config: config, limits: LightLimits{Low: 0, High: analogMax}}
	if config.Calibration != nil {
		err := config.Calibration.Load(config.calibrationKey("light"), &l.limits)
		if err != nil && !errors.Is(err, calib.ErrNotFound) {
			slog.Warn("could not load calibration", "device", "light", "port", config.Port, "error", err)
		}
	}
	return l
}

// SetActive switches the sensor's LED on or off when the port can power it.
func (l *Light) SetActive(ctx context.Context, active bool) error {
	setter, ok := l.input.(nxtsensors.AnalogPowerSetter)
	if !ok {
		return fmt.Errorf("legols: %w: port cannot power the led", nxtsensors.ErrNotSupported)
	}
	if err := setter.SetAnalogActive(ctx, active); err != nil {
		return fmt.Errorf("legols: could not switch led: %w", err)
	}
	return nil
}

func (l *Light) Raw(ctx context.Context) (int, error) {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.raw(ctx)
}

func (l *Light) Read(ctx context.Context) (LightReading, error) {
	l.mx.Lock()
	defer l.mx.Unlock()
	raw, err := l.raw(ctx)
	if err != nil {
		return LightReading{}, err
	}
	return LightReading{Raw: raw, Normalised: nxtsensors.Normalise(raw, l.limits.Low, l.limits.High)}, nil
}

func (l *Light) Limits() LightLimits {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.limits
}

// CalibrateLow stores the current raw value as the dark limit.
func (l *Light) CalibrateLow(ctx context.Context) (int, error) {
	return l.calibrate(ctx, func(lim *LightLimits, v int) { lim.Low = v })
}

// CalibrateHigh stores the current raw value as the bright limit.
func (l *Light) CalibrateHigh(ctx context.Context) (int, error) {
	return l.calibrate(ctx, func(lim *LightLimits, v int) { lim.High = v })
}

func (l *Light) calibrate(ctx context.Context, set func(*LightLimits, int)) (int, error) {
	l.mx.Lock()
	defer l.mx.Unlock()
	raw, err := l.raw(ctx)
	if err != nil {
		return 0, err
	}
	set(&l.limits, raw)
	if l.config.Calibration == nil {
		return raw, nil
	}
	if err := l.config.Calibration.Save(l.config.calibrationKey("light"), l.limits); err != nil {
		return raw, fmt.Errorf("legols: could not save calibration: %w", err)
	}
	return raw, nil
}

func (l *Light) raw(ctx context.Context) (int, error) {
	v, err := l.input.ReadAnalog(ctx)
	if err != nil {
		return 0, fmt.Errorf("legols: could not read sensor: %w", err)
	}
	return analogMax - v, nil
}
