package dexterind

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/mklimuk/nxtsensors"
	"github.com/mklimuk/nxtsensors/bustx"
)

const (
	dimcConfigA byte = 0x00
	dimcConfigB byte = 0x01
	dimcMode    byte = 0x02
	dimcDataX   byte = 0x03
	dimcStatus  byte = 0x09
)

type CompassSamples byte

const (
	CompassSamples1 CompassSamples = 0x00
	CompassSamples2 CompassSamples = 0x20
	CompassSamples4 CompassSamples = 0x40
	CompassSamples8 CompassSamples = 0x60
)

type CompassRate byte

const (
	CompassRate0_75Hz CompassRate = 0x00
	CompassRate1_5Hz  CompassRate = 0x04
	CompassRate3Hz    CompassRate = 0x08
	CompassRate7_5Hz  CompassRate = 0x0C
	CompassRate15Hz   CompassRate = 0x10
	CompassRate30Hz   CompassRate = 0x14
	CompassRate75Hz   CompassRate = 0x18
)

type CompassGain byte

const (
	CompassGain0_88 CompassGain = 0x00
	CompassGain1_3  CompassGain = 0x20
	CompassGain1_9  CompassGain = 0x40
	CompassGain2_5  CompassGain = 0x60
	CompassGain4_0  CompassGain = 0x80
	CompassGain4_7  CompassGain = 0xA0
	CompassGain5_6  CompassGain = 0xC0
	CompassGain8_1  CompassGain = 0xE0
)

type CompassMode byte

const (
	CompassContinuous CompassMode = 0x00
	CompassSingle     CompassMode = 0x01
	CompassIdle       CompassMode = 0x02
)

type CompassConfig struct {
	Samples CompassSamples `yaml:"samples"`
	Rate    CompassRate    `yaml:"rate"`
	Gain    CompassGain    `yaml:"gain"`
	Mode    CompassMode    `yaml:"mode"`
}

var DefaultCompassConfig = CompassConfig{
	Samples: CompassSamples8,
	Rate:    CompassRate15Hz,
	Gain:    CompassGain1_3,
	Mode:    CompassContinuous,
}

type CompassOffsets struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
	Z int `yaml:"z"`
}

type CompassReading struct {
	X       int     `yaml:"x"`
	Y       int     `yaml:"y"`
	Z       int     `yaml:"z"`
	Heading float64 `yaml:"heading"`
}

// Compass is the Dexter Industries dCompass (HMC5883L). Axes are reported
// with the hard-iron offsets removed.
type Compass struct {
	mx          sync.Mutex
	conn        *bustx.Conn
	config      Config
	offsets     CompassOffsets
	calibrating bool
	low, high   [3]int
	samples     int
	last        CompassReading
}

func NewCompass(bus nxtsensors.I2CBus, opts ...Option) *Compass {
	config := newConfig(CompassAddress, opts)
	c := &Compass{conn: config.conn(bus), config: config}
	config.load("compass", &c.offsets)
	return c
}

func (c *Compass) Configure(ctx context.Context, config CompassConfig) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	writes := []struct {
		reg, value byte
	}{
		{dimcConfigA, byte(config.Samples) | byte(config.Rate)},
		{dimcConfigB, byte(config.Gain)},
		{dimcMode, byte(config.Mode)},
	}
	for _, w := range writes {
		if err := c.conn.WriteReg(ctx, w.reg, w.value); err != nil {
			return fmt.Errorf("dimc: could not write register %#x: %w", w.reg, err)
		}
	}
	return nil
}

func (c *Compass) Read(ctx context.Context) (CompassReading, error) {
	c.mx.Lock()
	defer c.mx.Unlock()
	buf := make([]byte, 6)
	if err := c.conn.ReadReg(ctx, dimcDataX, buf); err != nil {
		return c.last, fmt.Errorf("dimc: could not read axes: %w", err)
	}
	// register order is X, Z, Y
	axes := [3]int{
		int(int16(binary.BigEndian.Uint16(buf[0:2]))),
		int(int16(binary.BigEndian.Uint16(buf[4:6]))),
		int(int16(binary.BigEndian.Uint16(buf[2:4]))),
	}
	if c.calibrating {
		c.track(axes)
	}
	x := axes[0] - c.offsets.X
	y := axes[1] - c.offsets.Y
	z := axes[2] - c.offsets.Z
	c.last = CompassReading{X: x, Y: y, Z: z, Heading: compassHeading(x, z)}
	return c.last, nil
}

// compassHeading follows the mounting of the chip in the dCompass housing,
// where the field is measured in the X-Z plane.
func compassHeading(x, z int) float64 {
	angle := math.Atan2(float64(x), float64(z))
	if angle < 0 {
		angle += 2 * math.Pi
	}
	return math.Mod(angle*180/math.Pi+270, 360)
}

func (c *Compass) track(axes [3]int) {
	if c.samples == 0 {
		c.low, c.high = axes, axes
	}
	for i, v := range axes {
		c.low[i] = min(c.low[i], v)
		c.high[i] = max(c.high[i], v)
	}
	c.samples++
}

// StartCalibration starts tracking the extremes of each axis; keep reading
// while rotating the sensor through all orientations.
func (c *Compass) StartCalibration() {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.calibrating = true
	c.samples = 0
}

// StopCalibration centres each axis between the tracked extremes and
// persists the offsets.
func (c *Compass) StopCalibration() (CompassOffsets, error) {
	c.mx.Lock()
	defer c.mx.Unlock()
	if !c.calibrating {
		return c.offsets, fmt.Errorf("dimc: calibration not started")
	}
	c.calibrating = false
	if c.samples == 0 {
		return c.offsets, fmt.Errorf("dimc: no samples read during calibration")
	}
	var mid [3]int
	for i := range mid {
		mid[i] = (c.high[i]-c.low[i])/2 + c.low[i]
	}
	c.offsets = CompassOffsets{X: mid[0], Y: mid[1], Z: mid[2]}
	if err := c.config.save("compass", c.offsets); err != nil {
		return c.offsets, fmt.Errorf("dimc: could not save calibration: %w", err)
	}
	return c.offsets, nil
}

func (c *Compass) Offsets() CompassOffsets {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.offsets
}

func (c *Compass) SetOffsets(offsets CompassOffsets) {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.offsets = offsets
}

// Ready reports whether a new measurement is available.
func (c *Compass) Ready(ctx context.Context) (bool, error) {
	c.mx.Lock()
	defer c.mx.Unlock()
	buf := make([]byte, 1)
	if err := c.conn.ReadReg(ctx, dimcStatus, buf); err != nil {
		return false, fmt.Errorf("dimc: could not read status: %w", err)
	}
	return buf[0]&0x01 != 0, nil
}
