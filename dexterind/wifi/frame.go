package wifi

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"
)

const esc = 0x1B

// Frame is a block of connection data exchanged in bulk mode:
// ESC 'S' <cid digit> payload ESC 'E'.
type Frame struct {
	CID     int
	Payload []byte
}

func EncodeFrame(cid int, payload []byte) []byte {
	out := make([]byte, 0, len(payload)+5)
	out = append(out, esc, 'S', byte('0'+cid))
	out = append(out, payload...)
	return append(out, esc, 'E')
}

// DecodeFrames extracts the complete frames from data and returns the bytes
// following the last complete frame. Anything before a frame start marker is
// dropped.
func DecodeFrames(data []byte) ([]Frame, []byte) {
	var frames []Frame
	for {
		start := bytes.Index(data, []byte{esc, 'S'})
		if start < 0 {
			// a start marker may be split across reads
			if len(data) > 0 && data[len(data)-1] == esc {
				return frames, []byte{esc}
			}
			return frames, nil
		}
		data = data[start:]
		if len(data) < 3 {
			return frames, data
		}
		end := bytes.Index(data[3:], []byte{esc, 'E'})
		if end < 0 {
			return frames, data
		}
		frames = append(frames, Frame{
			CID:     int(data[2] - '0'),
			Payload: append([]byte(nil), data[3:3+end]...),
		})
		data = data[3+end+2:]
	}
}

type Failure int

const (
	FailureNone Failure = iota
	// the module reported an error (ESC 'F' or a numeric error code)
	FailureError
	// the connection was closed by the peer
	FailureDisconnected
)

// DetectFailure scans a module reply for error indications.
func DetectFailure(data []byte) Failure {
	var prev byte
	for _, b := range data {
		switch {
		case prev == esc && b == 'F':
			return FailureError
		case b > '0' && b < '7':
			return FailureError
		case b == '9':
			return FailureDisconnected
		}
		prev = b
	}
	return FailureNone
}

// SendData sends payload on connection cid.
func (m *Modem) SendData(ctx context.Context, cid int, payload []byte) error {
	if cid < 0 || cid > 9 {
		return fmt.Errorf("%w: cid %d", ErrInvalidArgument, cid)
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	if _, err := m.port.Write(EncodeFrame(cid, payload)); err != nil {
		return fmt.Errorf("wifi: could not send data on cid %d: %w", cid, err)
	}
	return ctx.Err()
}

// ReceiveFrames waits up to timeout for data and returns the complete frames
// received so far. Partial frames are kept for the next call.
func (m *Modem) ReceiveFrames(ctx context.Context, timeout time.Duration) ([]Frame, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	data, err := m.read(ctx, timeout)
	m.pending = append(m.pending, data...)
	frames, rest := DecodeFrames(m.pending)
	m.pending = rest
	return frames, err
}

// IPInfo is the address configuration reported by AT+NSTAT.
type IPInfo struct {
	IP      string `yaml:"ip"`
	Subnet  string `yaml:"subnet"`
	Gateway string `yaml:"gateway"`
}

// ParseIPInfo reads the line following the "IP SubNet Gateway" header:
//
//	IP              SubNet         Gateway
//	192.168.178.26: 255.255.255.0: 192.168.178.1
func ParseIPInfo(status string) (IPInfo, error) {
	idx := strings.Index(status, "Gateway")
	if idx < 0 {
		return IPInfo{}, fmt.Errorf("%w: no address header in status", ErrCommandFailed)
	}
	rest := status[idx+len("Gateway"):]
	var fields []string
	for _, line := range strings.Split(rest, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, f := range strings.Split(line, ":") {
			if f = strings.TrimSpace(f); f != "" {
				fields = append(fields, f)
			}
		}
		break
	}
	if len(fields) < 3 {
		return IPInfo{}, fmt.Errorf("%w: incomplete address line", ErrCommandFailed)
	}
	return IPInfo{IP: fields[0], Subnet: fields[1], Gateway: fields[2]}, nil
}
