package mindsensors

import (
	"context"
	"fmt"
	"time"

	"github.com/mklimuk/nxtsensors"
	"github.com/mklimuk/nxtsensors/gpio"
)

const MagicWandLEDs = 8

var flashStep = 30 * time.Millisecond

// MagicWand is the Mindsensors Magic Wand kit: eight LEDs on a PCF8574
// expander. The LEDs are active low.
type MagicWand struct {
	expander *gpio.PCF8574
}

func NewMagicWand(bus nxtsensors.I2CBus, opts ...Option) *MagicWand {
	config := newConfig(MagicWandAddress, opts)
	return &MagicWand{expander: gpio.NewPCF8574(bus, config.Address)}
}

// State returns a bit mask of the LEDs that are lit.
func (w *MagicWand) State(ctx context.Context) (byte, error) {
	v, err := w.expander.Read(ctx)
	if err != nil {
		return 0, fmt.Errorf("msmw: could not read leds: %w", err)
	}
	return ^v, nil
}

func (w *MagicWand) SetLED(ctx context.Context, led int, on bool) error {
	if err := w.expander.Set(ctx, led, !on); err != nil {
		return fmt.Errorf("msmw: could not set led %d: %w", led, err)
	}
	return nil
}

func (w *MagicWand) ToggleLED(ctx context.Context, led int) error {
	if err := w.expander.Toggle(ctx, led); err != nil {
		return fmt.Errorf("msmw: could not toggle led %d: %w", led, err)
	}
	return nil
}

// SetLEDs lights exactly the LEDs set in mask.
func (w *MagicWand) SetLEDs(ctx context.Context, mask byte) error {
	if err := w.expander.Write(ctx, ^mask); err != nil {
		return fmt.Errorf("msmw: could not set leds: %w", err)
	}
	return nil
}

func (w *MagicWand) SetAll(ctx context.Context) error {
	return w.SetLEDs(ctx, 0xFF)
}

func (w *MagicWand) ClearAll(ctx context.Context) error {
	return w.SetLEDs(ctx, 0x00)
}

// FlashAndClear runs count sweeps lighting the LEDs one by one and switching
// them off in the same order, then leaves them all off.
func (w *MagicWand) FlashAndClear(ctx context.Context, count int) error {
	if err := w.ClearAll(ctx); err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		for _, on := range []bool{true, false} {
			for led := 0; led < MagicWandLEDs; led++ {
				if err := w.SetLED(ctx, led, on); err != nil {
					return err
				}
				if err := sleep(ctx, flashStep); err != nil {
					return err
				}
			}
		}
		if err := w.ClearAll(ctx); err != nil {
			return err
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
