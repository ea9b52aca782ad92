package nxtsensors

import (
	"context"
	"fmt"
	"time"
)

var (
	ErrBusBusy         = fmt.Errorf("I2C engine is busy (command not completed)")
	ErrBusError        = fmt.Errorf("I2C bus error")
	ErrBusTimeout      = fmt.Errorf("timed out waiting for I2C bus")
	ErrNotSupported    = fmt.Errorf("operation not supported")
	ErrPayloadTooLarge = fmt.Errorf("payload exceeds bus message size")
	ErrTxFailed        = fmt.Errorf("bus transaction failed")
)

type BusReader interface {
	Read(ctx context.Context, buffer []byte) error
}

type BusWriter interface {
	Write(ctx context.Context, buffer []byte) error
}

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

type I2CBus interface {
	AddressableReader
	AddressableWriter
}

type I2CDevice interface {
	BusReader
	BusWriter
}

// Transceiver is implemented by buses able to write and read in a single
// transaction (repeated start).
type Transceiver interface {
	Tx(ctx context.Context, address byte, w, r []byte) error
}

type BusStatus int

const (
	StatusReady BusStatus = iota
	StatusPending
	StatusError
)

func (s BusStatus) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusPending:
		return "pending"
	default:
		return "error"
	}
}

// StatusPoller is implemented by buses exposing the state of their I2C engine.
type StatusPoller interface {
	BusStatus(ctx context.Context, address byte) (BusStatus, error)
}

// Clearer is implemented by buses with their own way of recovering from a
// stuck transaction.
type Clearer interface {
	Clear(ctx context.Context, address byte) error
}

// AnalogReader returns a 10-bit sample (0..1023) of an analog sensor port.
type AnalogReader interface {
	ReadAnalog(ctx context.Context) (int, error)
}

// Addr8To7 converts an 8-bit (write) bus address, as printed on most NXT
// sensor datasheets, to the 7-bit address used by the bus backends.
func Addr8To7(addr byte) byte {
	return addr >> 1
}

func Clip(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

// Normalise maps raw onto 0..100 between the low and high calibration
// limits.
func Normalise(raw, low, high int) int {
	switch {
	case raw <= low:
		return 0
	case raw >= high:
		return 100
	}
	return (raw - low) * 100 / (high - low)
}

// AnalogPowerSetter is implemented by analog ports able to power the sensor's
// emitter (the "active" analog mode of the NXT ports).
type AnalogPowerSetter interface {
	SetAnalogActive(ctx context.Context, active bool) error
}

// CalibrationStore persists calibration values keyed by device.
type CalibrationStore interface {
	Load(key string, v any) error
	Save(key string, v any) error
}

// SampleAverage calls sample n times, interval apart, and returns the integer
// mean of the results.
func SampleAverage(ctx context.Context, n int, interval time.Duration, sample func(ctx context.Context) (int, error)) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("invalid sample count %d", n)
	}
	sum := 0
	for i := 0; i < n; i++ {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(interval):
			}
		}
		v, err := sample(ctx)
		if err != nil {
			return 0, fmt.Errorf("sample %d: %w", i, err)
		}
		sum += v
	}
	return sum / n, nil
}
