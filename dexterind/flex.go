package dexterind

import (
	"context"
	"fmt"
	"sync"

	"github.com/mklimuk/nxtsensors"
)

type FlexLimits struct {
	Low  int `yaml:"low"`
	High int `yaml:"high"`
}

type FlexReading struct {
	Raw        int `yaml:"raw"`
	Normalised int `yaml:"normalised"`
}

// Flex is the Dexter Industries dFlex bend sensor. Normalised is 0 at the
// low limit and 100 at the high limit.
type Flex struct {
	mx     sync.Mutex
	input  nxtsensors.AnalogReader
	config Config
	limits FlexLimits
}

func NewFlex(input nxtsensors.AnalogReader, opts ...Option) *Flex {
	config := newConfig(0, opts)
	f := &Flex{input: input, config: config, limits: FlexLimits{Low: 0, High: 1023}}
	config.load("flex", &f.limits)
	return f
}

func (f *Flex) Read(ctx context.Context) (FlexReading, error) {
	f.mx.Lock()
	defer f.mx.Unlock()
	raw, err := f.input.ReadAnalog(ctx)
	if err != nil {
		return FlexReading{}, fmt.Errorf("dflex: could not read sensor: %w", err)
	}
	return FlexReading{Raw: raw, Normalised: nxtsensors.Normalise(raw, f.limits.Low, f.limits.High)}, nil
}

func (f *Flex) Limits() FlexLimits {
	f.mx.Lock()
	defer f.mx.Unlock()
	return f.limits
}

// CalibrateLow stores the current raw value as the low limit.
func (f *Flex) CalibrateLow(ctx context.Context) (int, error) {
	return f.calibrate(ctx, func(l *FlexLimits, v int) { l.Low = v })
}

// CalibrateHigh stores the current raw value as the high limit.
func (f *Flex) CalibrateHigh(ctx context.Context) (int, error) {
	return f.calibrate(ctx, func(l *FlexLimits, v int) { l.High = v })
}

func (f *Flex) SetLimits(limits FlexLimits) error {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.limits = limits
	if err := f.config.save("flex", limits); err != nil {
		return fmt.Errorf("dflex: could not save calibration: %w", err)
	}
	return nil
}

func (f *Flex) calibrate(ctx context.Context, set func(*FlexLimits, int)) (int, error) {
	f.mx.Lock()
	defer f.mx.Unlock()
	raw, err := f.input.ReadAnalog(ctx)
	if err != nil {
		return 0, fmt.Errorf("dflex: could not read sensor: %w", err)
	}
	set(&f.limits, raw)
	if err := f.config.save("flex", f.limits); err != nil {
		return raw, fmt.Errorf("dflex: could not save calibration: %w", err)
	}
	return raw, nil
}
