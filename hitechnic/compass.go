package hitechnic

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mklimuk/nxtsensors"
	"github.com/mklimuk/nxtsensors/bustx"
)

const (
	compassModeReg       byte = 0x41
	compassHeadingReg    byte = 0x42
	compassModeMeasure   byte = 0x00
	compassModeCalibrate byte = 0x43
	compassCalFailed     byte = 0x02
)

var ErrCalibrationFailed = errors.New("hitechnic: calibration failed")

type CompassReading struct {
	Heading         int `yaml:"heading"`
	Target          int `yaml:"target"`
	RelativeHeading int `yaml:"relative_heading"`
}

// Compass is the HiTechnic NXT compass sensor (NMC1034).
type Compass struct {
	mx     sync.Mutex
	conn   *bustx.Conn
	target int
	last   CompassReading
}

func NewCompass(bus nxtsensors.I2CBus, opts ...Option) *Compass {
	config := newConfig(DefaultAddress, opts)
	return &Compass{conn: config.conn(bus)}
}

func (c *Compass) Read(ctx context.Context) (CompassReading, error) {
	c.mx.Lock()
	defer c.mx.Unlock()
	buf := make([]byte, 2)
	if err := c.conn.ReadReg(ctx, compassHeadingReg, buf); err != nil {
		return c.last, fmt.Errorf("htmc: could not read heading: %w", err)
	}
	heading := int(buf[0])*2 + int(buf[1])
	c.last = CompassReading{
		Heading:         heading,
		Target:          c.target,
		RelativeHeading: RelativeHeading(heading, c.target),
	}
	return c.last, nil
}

// SetTarget sets the heading the relative heading is computed against.
func (c *Compass) SetTarget(target int) {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.target = target
}

// Last returns the most recent reading without touching the bus.
func (c *Compass) Last() CompassReading {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.last
}

// StartCalibration puts the compass in hard-iron calibration mode; the sensor
// has to be rotated at least one and a half times before StopCalibration.
func (c *Compass) StartCalibration(ctx context.Context) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	if err := c.conn.WriteReg(ctx, compassModeReg, compassModeCalibrate); err != nil {
		return fmt.Errorf("htmc: could not start calibration: %w", err)
	}
	return nil
}

func (c *Compass) StopCalibration(ctx context.Context) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	if err := c.conn.WriteReg(ctx, compassModeReg, compassModeMeasure); err != nil {
		return fmt.Errorf("htmc: could not stop calibration: %w", err)
	}
	mode := make([]byte, 1)
	if err := c.conn.ReadReg(ctx, compassModeReg, mode); err != nil {
		return fmt.Errorf("htmc: could not read calibration result: %w", err)
	}
	if mode[0] == compassCalFailed {
		return ErrCalibrationFailed
	}
	return nil
}

// RelativeHeading returns heading relative to target in the range [-180, 179].
func RelativeHeading(heading, target int) int {
	t := heading - target + 180
	if t >= 0 {
		return t%360 - 180
	}
	return 359 - (-1-t)%360 - 180
}
