package wifi

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/mklimuk/nxtsensors"
)

const (
	responseHeader = "HTTP/1.1 200 OK\nContent-Type: text/plain\n\n"
	pollTimeout    = 100 * time.Millisecond
)

// HandlerFunc returns the plain text body answering a GET of path.
type HandlerFunc func(ctx context.Context, path string) string

// RequestPath extracts the path of an HTTP request line, "" when payload is
// not a request.
func RequestPath(payload []byte) string {
	s := string(payload)
	start := strings.Index(s, "/")
	if start < 0 {
		return ""
	}
	s = s[start:]
	if end := strings.Index(s, " HTTP"); end >= 0 {
		s = s[:end]
	} else if end := strings.IndexAny(s, " \r\n"); end >= 0 {
		s = s[:end]
	}
	return s
}

// MotorPower parses paths of the form /MOTA=<power>, clipping the power to
// -100..100.
func MotorPower(path string) (int, bool) {
	const prefix = "/MOTA="
	if !strings.HasPrefix(path, prefix) {
		return 0, false
	}
	v, err := strconv.Atoi(path[len(prefix):])
	if err != nil {
		return 0, false
	}
	return nxtsensors.Clip(v, -100, 100), true
}

// Serve opens a TCP server on port and answers every request with a plain
// text page produced by handler, closing the client connection afterwards.
// It returns when ctx is done.
func (m *Modem) Serve(ctx context.Context, port int, handler HandlerFunc) error {
	if err := m.CloseAll(ctx); err != nil {
		m.logger.Debug("could not close connections", "error", err)
	}
	if err := sleep(ctx, savePause); err != nil {
		return err
	}
	resp, err := m.OpenTCPServer(ctx, port)
	if err != nil {
		return err
	}
	m.logger.Info("listening", "port", port, "reply", strings.TrimSpace(resp))
	for {
		frames, err := m.ReceiveFrames(ctx, pollTimeout)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
		for _, f := range frames {
			path := RequestPath(f.Payload)
			if path == "" {
				continue
			}
			m.logger.Debug("request", "cid", f.CID, "path", path)
			if err := m.respond(ctx, f.CID, handler(ctx, path)); err != nil {
				m.logger.Warn("could not answer request", "cid", f.CID, "error", err)
			}
		}
	}
}

func (m *Modem) respond(ctx context.Context, cid int, body string) error {
	if err := m.SendData(ctx, cid, []byte(responseHeader)); err != nil {
		return err
	}
	if err := sleep(ctx, shortPause); err != nil {
		return err
	}
	if err := m.SendData(ctx, cid, []byte(body)); err != nil {
		return err
	}
	if err := sleep(ctx, 3*shortPause); err != nil {
		return err
	}
	m.mx.Lock()
	m.clear()
	m.mx.Unlock()
	return m.CloseConnection(ctx, cid)
}
