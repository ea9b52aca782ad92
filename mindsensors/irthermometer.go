package mindsensors

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/mklimuk/nxtsensors"
	"github.com/mklimuk/nxtsensors/bustx"
)

const (
	irtAmbientCReg byte = 0x42
	irtAmbientFReg byte = 0x46
)

type TemperatureUnit int

const (
	Celsius TemperatureUnit = iota
	Fahrenheit
)

func (u TemperatureUnit) String() string {
	if u == Fahrenheit {
		return "F"
	}
	return "C"
}

type IRThermometerConfig struct {
	Unit TemperatureUnit `yaml:"unit"`
}

type IRThermometerReading struct {
	Ambient float64         `yaml:"ambient"`
	Target  float64         `yaml:"target"`
	Unit    TemperatureUnit `yaml:"unit"`
}

// IRThermometer is the Mindsensors contactless IR thermometer.
type IRThermometer struct {
	mx   sync.Mutex
	conn *bustx.Conn
	unit TemperatureUnit
}

func NewIRThermometer(bus nxtsensors.I2CBus, opts ...Option) *IRThermometer {
	config := newConfig(IRThermometerAddress, opts)
	return &IRThermometer{conn: config.conn(bus)}
}

// Configure selects the unit; both are computed by the sensor so nothing is
// written to the device.
func (t *IRThermometer) Configure(ctx context.Context, config IRThermometerConfig) error {
	t.mx.Lock()
	defer t.mx.Unlock()
	t.unit = config.Unit
	return nil
}

func (t *IRThermometer) Read(ctx context.Context) (IRThermometerReading, error) {
	t.mx.Lock()
	defer t.mx.Unlock()
	reg := irtAmbientCReg
	if t.unit == Fahrenheit {
		reg = irtAmbientFReg
	}
	buf := make([]byte, 4)
	if err := t.conn.ReadReg(ctx, reg, buf); err != nil {
		return IRThermometerReading{}, fmt.Errorf("msir: could not read sensor: %w", err)
	}
	return IRThermometerReading{
		Ambient: float64(int16(binary.LittleEndian.Uint16(buf[0:2]))) / 100,
		Target:  float64(int16(binary.LittleEndian.Uint16(buf[2:4]))) / 100,
		Unit:    t.unit,
	}, nil
}
