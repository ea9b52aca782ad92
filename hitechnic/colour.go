package hitechnic

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/mklimuk/nxtsensors"
	"github.com/mklimuk/nxtsensors/bustx"
)

const (
	colourCmdReg  byte = 0x41
	colourDataReg byte = 0x42
)

type ColourMode byte

const (
	ColourModeActive  ColourMode = 0x00
	ColourModePassive ColourMode = 0x01
	ColourModeRaw     ColourMode = 0x03
	ColourMode50Hz    ColourMode = 0x35
	ColourMode60Hz    ColourMode = 0x36
)

func (m ColourMode) String() string {
	switch m {
	case ColourModeActive:
		return "active"
	case ColourModePassive:
		return "passive"
	case ColourModeRaw:
		return "raw"
	case ColourMode50Hz:
		return "50Hz"
	case ColourMode60Hz:
		return "60Hz"
	default:
		return fmt.Sprintf("mode(%#x)", byte(m))
	}
}

type ColourConfig struct {
	Mode ColourMode `yaml:"mode"`
}

type ColourReading struct {
	Colour     int     `yaml:"colour"`
	Red        int     `yaml:"red"`
	Green      int     `yaml:"green"`
	Blue       int     `yaml:"blue"`
	Hue        float64 `yaml:"hue"`
	Saturation float64 `yaml:"saturation"`
	Value      float64 `yaml:"value"`
}

// Colour is the HiTechnic colour sensor V2.
type Colour struct {
	mx    sync.Mutex
	conn  *bustx.Conn
	muxed bool
	last  ColourReading
}

func NewColour(bus nxtsensors.I2CBus, opts ...Option) *Colour {
	config := newConfig(DefaultAddress, opts)
	return &Colour{conn: config.conn(bus), muxed: behindMux(bus)}
}

// Configure sets the measurement mode. The 50/60Hz commands only select the
// mains frequency used for ambient light cancellation; the sensor returns to
// active mode afterwards. Behind a sensor mux it does nothing.
func (c *Colour) Configure(ctx context.Context, config ColourConfig) error {
	if c.muxed {
		return nil
	}
	c.mx.Lock()
	defer c.mx.Unlock()
	if err := c.conn.WriteReg(ctx, colourCmdReg, byte(config.Mode)); err != nil {
		return fmt.Errorf("htcs2: could not set mode %s: %w", config.Mode, err)
	}
	return nil
}

func (c *Colour) Read(ctx context.Context) (ColourReading, error) {
	c.mx.Lock()
	defer c.mx.Unlock()
	buf := make([]byte, 4)
	if err := c.conn.ReadReg(ctx, colourDataReg, buf); err != nil {
		return c.last, fmt.Errorf("htcs2: could not read sensor: %w", err)
	}
	r := ColourReading{
		Colour: int(buf[0]),
		Red:    int(buf[1]),
		Green:  int(buf[2]),
		Blue:   int(buf[3]),
	}
	r.Hue, r.Saturation, r.Value = RGBToHSV(r.Red, r.Green, r.Blue)
	c.last = r
	return r, nil
}

// RGBToHSV converts 8-bit channels to hue in degrees [0, 360) and saturation
// and value in percent.
func RGBToHSV(red, green, blue int) (hue, saturation, value float64) {
	r := float64(red) / 255
	g := float64(green) / 255
	b := float64(blue) / 255
	high := math.Max(r, math.Max(g, b))
	low := math.Min(r, math.Min(g, b))
	delta := high - low
	value = high * 100
	if high == 0 || delta == 0 {
		return 0, 0, value
	}
	saturation = delta / high * 100
	switch high {
	case r:
		hue = 60 * math.Mod((g-b)/delta, 6)
	case g:
		hue = 60 * ((b-r)/delta + 2)
	default:
		hue = 60 * ((r-g)/delta + 4)
	}
	if hue < 0 {
		hue += 360
	}
	return hue, saturation, value
}
