// Package wifi drives the Dexter Industries Wi-Fi sensor (a GainSpan module)
// through its AT command set over a serial line.
package wifi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

var (
	ErrNoResponse       = errors.New("wifi: no response")
	ErrCommandFailed    = errors.New("wifi: command failed")
	ErrBaudRateNotFound = errors.New("wifi: could not determine baud rate")
	ErrBaudRateNotSet   = errors.New("wifi: baud rate change not confirmed")
	ErrInvalidArgument  = errors.New("wifi: invalid argument")
)

// BaudRates are tried in this order when scanning for the modem.
var BaudRates = []int{9600, 19200, 38400, 57600, 115200, 230400, 460800, 921600}

const (
	DefaultBaudRate = 9600

	responseTimeout = 50 * time.Millisecond
	ssidTimeout     = 500 * time.Millisecond
	dhcpTimeout     = time.Second
	wpaTimeout      = 30 * time.Second
	scanTimeout     = 3 * time.Second
	serverTimeout   = 100 * time.Millisecond
	quietGap        = 50 * time.Millisecond

	// replies longer than this are cut; the tail is dropped by the next clear
	maxReply = 4096
)

// pauses the module needs between commands; tests shorten them
var (
	escapeGuard = time.Second
	shortPause  = 100 * time.Millisecond
	savePause   = 500 * time.Millisecond
)

// Port is the part of a serial port the modem uses; serial.Port satisfies
// it.
type Port interface {
	io.ReadWriteCloser
	SetMode(mode *serial.Mode) error
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

type AuthMode int

const (
	AuthNone AuthMode = 0
	AuthWEP  AuthMode = 1
)

type Modem struct {
	mx     sync.Mutex
	port   Port
	baud   int
	logger *slog.Logger
	// received bytes not yet consumed as data frames
	pending []byte
}

type Option func(*Modem)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Modem) {
		m.logger = logger
	}
}

// WithBaudRate records the rate the port was opened at.
func WithBaudRate(baud int) Option {
	return func(m *Modem) {
		m.baud = baud
	}
}

// Open opens the serial device the modem is connected to.
func Open(name string, baud int, opts ...Option) (*Modem, error) {
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("wifi: could not open %s: %w", name, err)
	}
	return New(port, append([]Option{WithBaudRate(baud)}, opts...)...), nil
}

func New(port Port, opts ...Option) *Modem {
	m := &Modem{port: port, baud: DefaultBaudRate, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Modem) Close() error {
	return m.port.Close()
}

func (m *Modem) BaudRate() int {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.baud
}

func (m *Modem) send(cmd string) error {
	m.logger.Debug("wifi command", "cmd", cmd)
	if _, err := m.port.Write([]byte(cmd + "\n")); err != nil {
		return fmt.Errorf("wifi: could not send %q: %w", cmd, err)
	}
	return nil
}

func (m *Modem) clear() {
	if err := m.port.ResetInputBuffer(); err != nil {
		m.logger.Debug("could not reset input buffer", "error", err)
	}
	m.pending = nil
}

// read collects bytes until nothing arrives for quietGap, waiting at most
// timeout for the first byte. A reply keeps going for as long as the module
// keeps sending.
func (m *Modem) read(ctx context.Context, timeout time.Duration) ([]byte, error) {
	var out []byte
	buf := make([]byte, 256)
	deadline := time.Now().Add(timeout)
	for ctx.Err() == nil && len(out) < maxReply {
		wait := quietGap
		if len(out) == 0 {
			wait = time.Until(deadline)
		}
		if wait <= 0 {
			break
		}
		if err := m.port.SetReadTimeout(wait); err != nil {
			return out, fmt.Errorf("wifi: could not set read timeout: %w", err)
		}
		n, err := m.port.Read(buf)
		out = append(out, buf[:n]...)
		if err != nil {
			return out, fmt.Errorf("wifi: read failed: %w", err)
		}
		if n == 0 {
			break
		}
	}
	if len(out) > 0 {
		m.logger.Debug("wifi response", "data", string(out))
	}
	return out, ctx.Err()
}

// checkResult reads the reply of a command; any reply containing "OK" or a
// numeric "0" result code is a success.
func (m *Modem) checkResult(ctx context.Context, timeout time.Duration) error {
	resp, err := m.read(ctx, timeout)
	if err != nil {
		return err
	}
	if len(resp) == 0 {
		return ErrNoResponse
	}
	s := string(resp)
	if strings.Contains(s, "OK") || strings.Contains(s, "0") {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrCommandFailed, strings.TrimSpace(s))
}

func (m *Modem) command(ctx context.Context, cmd string, timeout time.Duration) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	if err := m.send(cmd); err != nil {
		return err
	}
	if err := m.checkResult(ctx, timeout); err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	return nil
}

// query sends cmd and returns whatever the module answers.
func (m *Modem) query(ctx context.Context, cmd string, timeout time.Duration) (string, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	if err := m.send(cmd); err != nil {
		return "", err
	}
	resp, err := m.read(ctx, timeout)
	if err != nil {
		return string(resp), err
	}
	if len(resp) == 0 {
		return "", fmt.Errorf("%s: %w", cmd, ErrNoResponse)
	}
	return string(resp), nil
}

func flag(on bool) string {
	if on {
		return "1"
	}
	return "0"
}

// SetEcho turns the command echo on or off. The reply is discarded since it
// may or may not be echoed.
func (m *Modem) SetEcho(ctx context.Context, on bool) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	if err := m.send("ATE" + flag(on)); err != nil {
		return err
	}
	if err := sleep(ctx, shortPause); err != nil {
		return err
	}
	m.clear()
	return nil
}

// SetVerbose selects text (on) or numeric result codes.
func (m *Modem) SetVerbose(ctx context.Context, on bool) error {
	return m.command(ctx, "ATV"+flag(on), responseTimeout)
}

func (m *Modem) SetSoftwareFlowControl(ctx context.Context) error {
	return m.command(ctx, "AT&K1", responseTimeout)
}

// ScanNetworks returns the raw list of visible networks.
func (m *Modem) ScanNetworks(ctx context.Context) (string, error) {
	return m.query(ctx, "AT+ws", scanTimeout)
}

func (m *Modem) SetAuthMode(ctx context.Context, mode AuthMode) error {
	if mode != AuthNone && mode != AuthWEP {
		return fmt.Errorf("%w: auth mode %d", ErrInvalidArgument, mode)
	}
	return m.command(ctx, fmt.Sprintf("AT+WAUTH=%d", mode), responseTimeout)
}

// SetSSID associates with an open network.
func (m *Modem) SetSSID(ctx context.Context, ssid string) error {
	return m.command(ctx, "AT+WA="+ssid, ssidTimeout)
}

// SetWEPKey stores one of the four WEP keys.
func (m *Modem) SetWEPKey(ctx context.Context, index int, key string) error {
	if index < 1 || index > 4 {
		return fmt.Errorf("%w: WEP key index %d", ErrInvalidArgument, index)
	}
	return m.command(ctx, fmt.Sprintf("AT+WWEP%d=%s", index, key), responseTimeout)
}

// SetWPAPSK computes the WPA pre-shared key for ssid. The module takes several
// seconds to derive it.
func (m *Modem) SetWPAPSK(ctx context.Context, ssid, passphrase string) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	cmd := fmt.Sprintf("AT+WPAPSK=%s,%s", ssid, passphrase)
	if err := m.send(cmd); err != nil {
		return err
	}
	if err := sleep(ctx, shortPause); err != nil {
		return err
	}
	// drop the echo
	m.clear()
	if err := m.checkResult(ctx, wpaTimeout); err != nil {
		return fmt.Errorf("AT+WPAPSK: %w", err)
	}
	return nil
}

func (m *Modem) SetDHCP(ctx context.Context, on bool) error {
	return m.command(ctx, "AT+NDHCP="+flag(on), dhcpTimeout)
}

func (m *Modem) FirmwareVersion(ctx context.Context) (string, error) {
	return m.query(ctx, "AT+VER=?", responseTimeout)
}

// NetworkStatus returns the raw AT+NSTAT report; see ParseIPInfo.
func (m *Modem) NetworkStatus(ctx context.Context) (string, error) {
	return m.query(ctx, "AT+NSTAT=?", serverTimeout)
}

func (m *Modem) WLANStatus(ctx context.Context) (string, error) {
	return m.query(ctx, "AT+WSTATUS", serverTimeout)
}

// IPInfo queries the network status and parses the addresses out of it.
func (m *Modem) IPInfo(ctx context.Context) (IPInfo, error) {
	status, err := m.NetworkStatus(ctx)
	if err != nil {
		return IPInfo{}, err
	}
	return ParseIPInfo(status)
}

// CloseConnection closes the connection with the given cid.
func (m *Modem) CloseConnection(ctx context.Context, cid int) error {
	if cid < 0 || cid > 15 {
		return fmt.Errorf("%w: cid %d", ErrInvalidArgument, cid)
	}
	return m.command(ctx, fmt.Sprintf("AT+NCLOSE=%d", cid), responseTimeout)
}

func (m *Modem) CloseAll(ctx context.Context) error {
	return m.command(ctx, "AT+NCLOSEALL", responseTimeout)
}

// SaveConfig writes the current profile and makes it the default one.
func (m *Modem) SaveConfig(ctx context.Context) error {
	if err := m.command(ctx, "AT&W0", responseTimeout); err != nil {
		m.logger.Debug("saving profile not confirmed", "error", err)
	}
	if err := sleep(ctx, savePause); err != nil {
		return err
	}
	return m.command(ctx, "AT&Y0", responseTimeout)
}

// ResetConfig restores the factory profile.
func (m *Modem) ResetConfig(ctx context.Context) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	if err := m.send("AT&F"); err != nil {
		return err
	}
	if err := sleep(ctx, shortPause); err != nil {
		return err
	}
	m.clear()
	return nil
}

// OpenTCPServer starts listening on port and returns the module's reply,
// which carries the cid of the server socket.
func (m *Modem) OpenTCPServer(ctx context.Context, port int) (string, error) {
	if port <= 0 || port > 65535 {
		return "", fmt.Errorf("%w: port %d", ErrInvalidArgument, port)
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	if err := m.send(fmt.Sprintf("AT+NSTCP=%d", port)); err != nil {
		return "", err
	}
	resp, err := m.read(ctx, serverTimeout)
	return string(resp), err
}

func (m *Modem) setPortBaud(baud int) error {
	if err := m.port.SetMode(&serial.Mode{BaudRate: baud}); err != nil {
		return fmt.Errorf("wifi: could not set port to %d baud: %w", baud, err)
	}
	m.baud = baud
	return nil
}

// CheckBaudRate switches the port to baud, escapes to command mode and
// reports whether the module answers. Errors are only returned for port
// failures.
func (m *Modem) CheckBaudRate(ctx context.Context, baud int) (bool, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.checkBaudRate(ctx, baud)
}

func (m *Modem) checkBaudRate(ctx context.Context, baud int) (bool, error) {
	m.logger.Debug("testing baud rate", "baud", baud)
	if err := m.setPortBaud(baud); err != nil {
		return false, err
	}
	m.clear()
	if err := sleep(ctx, shortPause); err != nil {
		return false, err
	}
	if err := m.send("+++"); err != nil {
		return false, err
	}
	if err := sleep(ctx, escapeGuard); err != nil {
		return false, err
	}
	m.clear()
	if err := sleep(ctx, shortPause); err != nil {
		return false, err
	}
	if err := m.send("AT"); err != nil {
		return false, err
	}
	err := m.checkResult(ctx, responseTimeout)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNoResponse), errors.Is(err, ErrCommandFailed):
		return false, nil
	default:
		return false, err
	}
}

// ScanBaudRate tries every rate in BaudRates and leaves the port at the first
// one the module answers on.
func (m *Modem) ScanBaudRate(ctx context.Context) (int, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.scanBaudRate(ctx)
}

func (m *Modem) scanBaudRate(ctx context.Context) (int, error) {
	for _, baud := range BaudRates {
		ok, err := m.checkBaudRate(ctx, baud)
		if err != nil {
			return 0, err
		}
		if ok {
			m.clear()
			return baud, nil
		}
	}
	m.clear()
	return 0, ErrBaudRateNotFound
}

// SetBaudRate reconfigures the module (and the port) to baud.
func (m *Modem) SetBaudRate(ctx context.Context, baud int) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	ok, err := m.checkBaudRate(ctx, baud)
	if err != nil {
		return err
	}
	if ok {
		m.logger.Debug("baud rate already set", "baud", baud)
		return nil
	}
	current, err := m.scanBaudRate(ctx)
	if err != nil {
		return err
	}
	m.logger.Debug("changing baud rate", "from", current, "to", baud)
	if err := m.send(fmt.Sprintf("ATB=%d", baud)); err != nil {
		return err
	}
	if err := sleep(ctx, shortPause); err != nil {
		return err
	}
	ok, err = m.checkBaudRate(ctx, baud)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %d", ErrBaudRateNotSet, baud)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
