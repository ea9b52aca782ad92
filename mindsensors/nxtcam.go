package mindsensors

import (
	"context"
	"fmt"
	"sync"

	"github.com/mklimuk/nxtsensors"
	"github.com/mklimuk/nxtsensors/bustx"
)

const (
	camCountReg byte = 0x42
	camBlobReg  byte = 0x43
)

const (
	camBlobSize = 5
	// blobs fetched per bus transaction
	camBlobsPerRead = 3

	MaxBlobs = 8
)

type CamCommand byte

const (
	CamSortBySize     CamCommand = 'A'
	CamObjectTracking CamCommand = 'B'
	CamDisable        CamCommand = 'D'
	CamEnable         CamCommand = 'E'
	CamLineTracking   CamCommand = 'L'
	CamReset          CamCommand = 'R'
	CamSortByColour   CamCommand = 'U'
	CamNoSort         CamCommand = 'X'
)

type CamTrackingMode byte

const (
	TrackObjects CamTrackingMode = iota
	TrackLines
)

type NXTCamConfig struct {
	Mode CamTrackingMode `yaml:"mode"`
	// Merge combines colliding blobs of the same colour.
	Merge bool `yaml:"merge"`
}

// Blob is a tracked object's bounding box in camera coordinates (176x144).
type Blob struct {
	Colour int `yaml:"colour"`
	Left   int `yaml:"left"`
	Top    int `yaml:"top"`
	Right  int `yaml:"right"`
	Bottom int `yaml:"bottom"`
}

func (b Blob) Area() int {
	return (b.Right - b.Left) * (b.Bottom - b.Top)
}

func (b Blob) Centre() (x, y int) {
	return (b.Left + b.Right) / 2, (b.Top + b.Bottom) / 2
}

func (b Blob) Overlaps(o Blob) bool {
	return b.Left <= o.Right && o.Left <= b.Right && b.Top <= o.Bottom && o.Top <= b.Bottom
}

func (b Blob) union(o Blob) Blob {
	return Blob{
		Colour: b.Colour,
		Left:   min(b.Left, o.Left),
		Top:    min(b.Top, o.Top),
		Right:  max(b.Right, o.Right),
		Bottom: max(b.Bottom, o.Bottom),
	}
}

type NXTCamReading struct {
	Blobs []Blob `yaml:"blobs"`
}

// NXTCam is the Mindsensors NXTCam vision sensor.
type NXTCam struct {
	mx    sync.Mutex
	conn  *bustx.Conn
	merge bool
}

func NewNXTCam(bus nxtsensors.I2CBus, opts ...Option) *NXTCam {
	config := newConfig(NXTCamAddress, opts)
	return &NXTCam{conn: config.conn(bus)}
}

// Configure stops tracking, selects the mode with blobs sorted by size and
// starts tracking again.
func (c *NXTCam) Configure(ctx context.Context, config NXTCamConfig) error {
	mode := CamObjectTracking
	if config.Mode == TrackLines {
		mode = CamLineTracking
	}
	for _, cmd := range []CamCommand{CamDisable, CamSortBySize, mode, CamEnable} {
		if err := c.Command(ctx, cmd); err != nil {
			return err
		}
	}
	c.mx.Lock()
	c.merge = config.Merge
	c.mx.Unlock()
	return nil
}

func (c *NXTCam) Command(ctx context.Context, cmd CamCommand) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	if err := c.conn.WriteReg(ctx, cmdReg, byte(cmd)); err != nil {
		return fmt.Errorf("nxtcam: could not send command %q: %w", byte(cmd), err)
	}
	return nil
}

func (c *NXTCam) Read(ctx context.Context) (NXTCamReading, error) {
	c.mx.Lock()
	defer c.mx.Unlock()
	count := make([]byte, 1)
	if err := c.conn.ReadReg(ctx, camCountReg, count); err != nil {
		return NXTCamReading{}, fmt.Errorf("nxtcam: could not read blob count: %w", err)
	}
	n := min(int(count[0]), MaxBlobs)
	blobs := make([]Blob, 0, n)
	for i := 0; i < n; i += camBlobsPerRead {
		batch := min(camBlobsPerRead, n-i)
		buf := make([]byte, batch*camBlobSize)
		if err := c.conn.ReadReg(ctx, camBlobReg+byte(i*camBlobSize), buf); err != nil {
			return NXTCamReading{}, fmt.Errorf("nxtcam: could not read blobs: %w", err)
		}
		for j := 0; j < batch; j++ {
			b := buf[j*camBlobSize:]
			blobs = append(blobs, Blob{
				Colour: int(b[0]),
				Left:   int(b[1]),
				Top:    int(b[2]),
				Right:  int(b[3]),
				Bottom: int(b[4]),
			})
		}
	}
	if c.merge {
		blobs = MergeBlobs(blobs)
	}
	return NXTCamReading{Blobs: blobs}, nil
}

// MergeBlobs replaces every group of overlapping blobs of the same colour
// with their bounding box.
func MergeBlobs(blobs []Blob) []Blob {
	out := append([]Blob(nil), blobs...)
	for merged := true; merged; {
		merged = false
		for i := 0; i < len(out) && !merged; i++ {
			for j := i + 1; j < len(out); j++ {
				if out[i].Colour == out[j].Colour && out[i].Overlaps(out[j]) {
					out[i] = out[i].union(out[j])
					out = append(out[:j], out[j+1:]...)
					merged = true
					break
				}
			}
		}
	}
	return out
}

// AverageCentre returns the mean centre of the blobs of the given colour
// whose area is at least minArea. ok is false when none qualifies.
func AverageCentre(blobs []Blob, colour, minArea int) (x, y int, ok bool) {
	n := 0
	for _, b := range blobs {
		if b.Colour != colour || b.Area() < minArea {
			continue
		}
		cx, cy := b.Centre()
		x += cx
		y += cy
		n++
	}
	if n == 0 {
		return 0, 0, false
	}
	return x / n, y / n, true
}
