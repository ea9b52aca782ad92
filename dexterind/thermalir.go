package dexterind

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/mklimuk/nxtsensors"
	"github.com/mklimuk/nxtsensors/bustx"
)

const (
	tirAmbient       byte = 0x00
	tirObject        byte = 0x01
	tirSetEmissivity byte = 0x02
	tirGetEmissivity byte = 0x03
	tirReset         byte = 0x05
)

const (
	tirKelvinPerLSB    = 0.02
	tirKelvinToCelsius = 273.15
)

// Emissivity coefficients (x10000) of common targets.
const (
	EmissivitySkinLight  = 5660
	EmissivitySkinDark   = 8380
	EmissivityGlass      = 9200
	EmissivityCandleSoot = 9500
	EmissivityBlackBody  = 10000
)

type ThermalIRReading struct {
	Ambient float64 `yaml:"ambient"`
	Object  float64 `yaml:"object"`
}

// ThermalIR is the Dexter Industries thermal infrared sensor (MLX90614);
// temperatures are in degrees Celsius.
type ThermalIR struct {
	mx   sync.Mutex
	conn *bustx.Conn
	last ThermalIRReading
}

func NewThermalIR(bus nxtsensors.I2CBus, opts ...Option) *ThermalIR {
	config := newConfig(ThermalIRAddress, opts)
	return &ThermalIR{conn: config.conn(bus)}
}

func (t *ThermalIR) Read(ctx context.Context) (ThermalIRReading, error) {
	t.mx.Lock()
	defer t.mx.Unlock()
	ambient, err := t.temperature(ctx, tirAmbient)
	if err != nil {
		return t.last, fmt.Errorf("dtir: could not read ambient temperature: %w", err)
	}
	object, err := t.temperature(ctx, tirObject)
	if err != nil {
		return t.last, fmt.Errorf("dtir: could not read object temperature: %w", err)
	}
	t.last = ThermalIRReading{Ambient: ambient, Object: object}
	return t.last, nil
}

func (t *ThermalIR) temperature(ctx context.Context, reg byte) (float64, error) {
	buf := make([]byte, 2)
	if err := t.conn.ReadReg(ctx, reg, buf); err != nil {
		return 0, err
	}
	return float64(binary.LittleEndian.Uint16(buf))*tirKelvinPerLSB - tirKelvinToCelsius, nil
}

// SetEmissivity stores the emissivity (x10000) in the sensor's EEPROM.
func (t *ThermalIR) SetEmissivity(ctx context.Context, emissivity int) error {
	t.mx.Lock()
	defer t.mx.Unlock()
	e := uint16(nxtsensors.Clip(emissivity, 0, EmissivityBlackBody))
	if err := t.conn.WriteReg(ctx, tirSetEmissivity, byte(e), byte(e>>8)); err != nil {
		return fmt.Errorf("dtir: could not set emissivity: %w", err)
	}
	return nil
}

func (t *ThermalIR) Emissivity(ctx context.Context) (int, error) {
	t.mx.Lock()
	defer t.mx.Unlock()
	buf := make([]byte, 2)
	if err := t.conn.ReadReg(ctx, tirGetEmissivity, buf); err != nil {
		return 0, fmt.Errorf("dtir: could not read emissivity: %w", err)
	}
	return int(binary.LittleEndian.Uint16(buf)), nil
}

// Reset restores the factory emissivity.
func (t *ThermalIR) Reset(ctx context.Context) error {
	t.mx.Lock()
	defer t.mx.Unlock()
	if err := t.conn.WriteReg(ctx, tirReset); err != nil {
		return fmt.Errorf("dtir: could not reset sensor: %w", err)
	}
	return nil
}
