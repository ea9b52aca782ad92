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
	irSeekerModeReg byte = 0x41
	irSeekerDataReg byte = 0x42
)

type IRSeekerMode byte

const (
	IRSeeker1200Hz IRSeekerMode = 0x00
	IRSeeker600Hz  IRSeekerMode = 0x01
)

type IRSeekerConfig struct {
	Mode IRSeekerMode `yaml:"mode"`
}

// IRSeekerReading holds the raw DC (unmodulated) and AC (modulated beacon)
// channels plus the direction and strength derived from the DC sensors.
// Directions range from 1 to 9, 0 means no signal.
type IRSeekerReading struct {
	DCDirection  int    `yaml:"dc_direction"`
	DC           [5]int `yaml:"dc"`
	DCAverage    int    `yaml:"dc_average"`
	ACDirection  int    `yaml:"ac_direction"`
	AC           [5]int `yaml:"ac"`
	EnhDirection int    `yaml:"enh_direction"`
	EnhStrength  int    `yaml:"enh_strength"`
}

// IRSeeker is the HiTechnic IR seeker V2.
type IRSeeker struct {
	mx    sync.Mutex
	conn  *bustx.Conn
	muxed bool
	last  IRSeekerReading
}

func NewIRSeeker(bus nxtsensors.I2CBus, opts ...Option) *IRSeeker {
	config := newConfig(IRSeekerAddress, opts)
	return &IRSeeker{conn: config.conn(bus), muxed: behindMux(bus)}
}

// Configure sets the DSP mode. It does nothing behind a sensor mux, which
// polls the seeker in the mode it powered up with.
func (s *IRSeeker) Configure(ctx context.Context, config IRSeekerConfig) error {
	if s.muxed {
		return nil
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := s.conn.WriteReg(ctx, irSeekerModeReg, byte(config.Mode)); err != nil {
		return fmt.Errorf("htirs2: could not set DSP mode: %w", err)
	}
	return nil
}

func (s *IRSeeker) Read(ctx context.Context) (IRSeekerReading, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	buf := make([]byte, 13)
	if err := s.conn.ReadReg(ctx, irSeekerDataReg, buf); err != nil {
		return s.last, fmt.Errorf("htirs2: could not read sensor: %w", err)
	}
	s.last = decodeIRSeeker(buf)
	return s.last, nil
}

func decodeIRSeeker(buf []byte) IRSeekerReading {
	var r IRSeekerReading
	r.DCDirection = int(buf[0])
	for i := 0; i < 5; i++ {
		r.DC[i] = int(buf[1+i])
		r.AC[i] = int(buf[8+i])
	}
	r.DCAverage = int(buf[6])
	r.ACDirection = int(buf[7])

	iMax := 0
	for i := range r.DC {
		if r.DC[i] > r.DC[iMax] {
			iMax = i
		}
	}
	r.EnhDirection = iMax*2 + 1
	sum := r.DC[iMax] + r.DCAverage
	if iMax > 0 && r.DC[iMax-1] > r.DC[iMax]/2 {
		r.EnhDirection--
		sum += r.DC[iMax-1]
	}
	if iMax < 4 && r.DC[iMax+1] > r.DC[iMax]/2 {
		r.EnhDirection++
		sum += r.DC[iMax+1]
	}
	r.EnhStrength = int(math.Sqrt(float64(sum * 500)))
	// weak DC signal, fall back on the modulated channels
	if r.EnhStrength <= 200 && r.EnhDirection > 0 {
		r.EnhStrength = 0
		for _, v := range r.AC {
			r.EnhStrength += v
		}
	}
	return r
}
