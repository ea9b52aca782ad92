package wifi

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func init() {
	escapeGuard = 0
	shortPause = 0
	savePause = 0
}

// fakePort answers scripted commands when the port and the module agree on
// the baud rate.
type fakePort struct {
	mx         sync.Mutex
	baud       int
	deviceBaud int
	replies    map[string]string
	// replies delivered after the next input reset
	late    map[string]string
	pending []byte
	// data delivered once the reply to a command has been read
	after     map[string]string
	scheduled []byte
	countdown int
	input     []byte
	written   []string
}

func newFakePort(replies map[string]string) *fakePort {
	return &fakePort{
		baud:       DefaultBaudRate,
		deviceBaud: DefaultBaudRate,
		replies:    replies,
		late:       map[string]string{},
		after:      map[string]string{},
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mx.Lock()
	defer p.mx.Unlock()
	p.written = append(p.written, string(b))
	if p.baud != p.deviceBaud {
		return len(b), nil
	}
	cmd := strings.TrimSuffix(string(b), "\n")
	if r, ok := p.replies[cmd]; ok {
		p.input = append(p.input, r...)
	}
	if r, ok := p.late[cmd]; ok {
		p.pending = append(p.pending, r...)
	}
	if r, ok := p.after[cmd]; ok {
		p.scheduled = []byte(r)
		p.countdown = 2
	}
	if strings.HasPrefix(cmd, "ATB=") {
		p.deviceBaud, _ = strconv.Atoi(cmd[len("ATB="):])
	}
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.scheduled != nil {
		if p.countdown == 0 {
			p.input = append(p.input, p.scheduled...)
			p.scheduled = nil
		}
		p.countdown--
	}
	n := copy(b, p.input)
	p.input = p.input[n:]
	return n, nil
}

func (p *fakePort) push(data []byte) {
	p.mx.Lock()
	defer p.mx.Unlock()
	p.input = append(p.input, data...)
}

func (p *fakePort) SetMode(mode *serial.Mode) error {
	p.mx.Lock()
	defer p.mx.Unlock()
	p.baud = mode.BaudRate
	return nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	return nil
}

func (p *fakePort) ResetInputBuffer() error {
	p.mx.Lock()
	defer p.mx.Unlock()
	p.input = p.pending
	p.pending = nil
	return nil
}

func (p *fakePort) Close() error {
	return nil
}

func (p *fakePort) Written() []string {
	p.mx.Lock()
	defer p.mx.Unlock()
	return append([]string(nil), p.written...)
}

func TestModem_CommandResult(t *testing.T) {
	port := newFakePort(map[string]string{
		"ATV1":      "OK\r\n",
		"ATV0":      "0\r\n",
		"AT+WA=lab": "ERROR: NO AP\r\n",
	})
	modem := New(port)
	ctx := context.Background()

	require.NoError(t, modem.SetVerbose(ctx, true))
	require.NoError(t, modem.SetVerbose(ctx, false))
	assert.ErrorIs(t, modem.SetSSID(ctx, "lab"), ErrCommandFailed)
	assert.ErrorIs(t, modem.SetSoftwareFlowControl(ctx), ErrNoResponse)
	assert.Equal(t, []string{"ATV1\n", "ATV0\n", "AT+WA=lab\n", "AT&K1\n"}, port.Written())
}

func TestModem_Arguments(t *testing.T) {
	port := newFakePort(map[string]string{
		"AT+WWEP2=abcde": "OK",
		"AT+WAUTH=1":     "OK",
		"AT+NCLOSE=3":    "OK",
		"AT+NDHCP=1":     "OK",
	})
	modem := New(port)
	ctx := context.Background()

	assert.ErrorIs(t, modem.SetWEPKey(ctx, 5, "abcde"), ErrInvalidArgument)
	assert.ErrorIs(t, modem.SetAuthMode(ctx, 3), ErrInvalidArgument)
	assert.ErrorIs(t, modem.CloseConnection(ctx, -1), ErrInvalidArgument)
	require.NoError(t, modem.SetWEPKey(ctx, 2, "abcde"))
	require.NoError(t, modem.SetAuthMode(ctx, AuthWEP))
	require.NoError(t, modem.CloseConnection(ctx, 3))
	require.NoError(t, modem.SetDHCP(ctx, true))
	assert.Equal(t, []string{"AT+WWEP2=abcde\n", "AT+WAUTH=1\n", "AT+NCLOSE=3\n", "AT+NDHCP=1\n"}, port.Written())
}

func TestModem_SetWPAPSK(t *testing.T) {
	port := newFakePort(map[string]string{"AT+WPAPSK=lab,secret": "AT+WPAPSK=lab,secret\r\n"})
	port.late["AT+WPAPSK=lab,secret"] = "Computing PSK from SSID and PassPhrase...\r\nOK\r\n"
	require.NoError(t, New(port).SetWPAPSK(context.Background(), "lab", "secret"))
}

func TestModem_SaveConfig(t *testing.T) {
	port := newFakePort(map[string]string{"AT&Y0": "OK"})
	require.NoError(t, New(port).SaveConfig(context.Background()))
	assert.Equal(t, []string{"AT&W0\n", "AT&Y0\n"}, port.Written())
}

func TestModem_Queries(t *testing.T) {
	port := newFakePort(map[string]string{
		"AT+VER=?":   "S2W APP VERSION=2.4.3\r\nOK\r\n",
		"AT+NSTAT=?": "MAC=00:1d:c9:01:02:03\r\n    IP              SubNet         Gateway\r\n 192.168.178.26: 255.255.255.0: 192.168.178.1\r\nOK\r\n",
	})
	modem := New(port)
	ctx := context.Background()

	version, err := modem.FirmwareVersion(ctx)
	require.NoError(t, err)
	assert.Contains(t, version, "2.4.3")

	info, err := modem.IPInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, IPInfo{IP: "192.168.178.26", Subnet: "255.255.255.0", Gateway: "192.168.178.1"}, info)

	_, err = modem.WLANStatus(ctx)
	assert.ErrorIs(t, err, ErrNoResponse)
}

// slowPort streams the reply to a command in small chunks, the way the
// module does at 9600 baud.
type slowPort struct {
	fakePort
	reply   string
	chunk   int
	delay   time.Duration
	timeout time.Duration
	stream  []byte
}

func (p *slowPort) Write(b []byte) (int, error) {
	p.mx.Lock()
	defer p.mx.Unlock()
	p.written = append(p.written, string(b))
	p.stream = []byte(p.reply)
	return len(b), nil
}

func (p *slowPort) SetReadTimeout(t time.Duration) error {
	p.mx.Lock()
	defer p.mx.Unlock()
	p.timeout = t
	return nil
}

func (p *slowPort) Read(b []byte) (int, error) {
	p.mx.Lock()
	defer p.mx.Unlock()
	if len(p.stream) == 0 {
		time.Sleep(p.timeout)
		return 0, nil
	}
	time.Sleep(p.delay)
	n := copy(b[:min(len(b), p.chunk)], p.stream)
	p.stream = p.stream[n:]
	return n, nil
}

func TestModem_SlowReply(t *testing.T) {
	report := "MAC=00:1d:c9:01:02:03\r\n" +
		"WSTATE=CONNECTED     MODE=INFRA\r\n" +
		"BSSID=00:24:01:ab:cd:ef   SSID=\"lab\"   CHANNEL=6\r\n" +
		"SECURITY=WPA2-PERSONAL   RSSI=-52\r\n" +
		"    IP              SubNet         Gateway\r\n" +
		" 192.168.178.26: 255.255.255.0: 192.168.178.1\r\n" +
		"DNS1=192.168.178.1   DNS2=0.0.0.0\r\n" +
		"Rx Count=1432   Tx Count=877\r\n" +
		"Rx Bytes=210522   Tx Bytes=64012\r\n" +
		"Rx Errors=0   Tx Errors=0   Retries=3   Fails=0\r\n" +
		"OK\r\n"
	require.Greater(t, len(report), 300)
	// 16 bytes every 16ms keeps the reply going well past serverTimeout
	port := &slowPort{reply: report, chunk: 16, delay: 16 * time.Millisecond}
	modem := New(port)
	ctx := context.Background()

	status, err := modem.NetworkStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, report, status)

	info, err := modem.IPInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, IPInfo{IP: "192.168.178.26", Subnet: "255.255.255.0", Gateway: "192.168.178.1"}, info)
}

func TestModem_ScanBaudRate(t *testing.T) {
	port := newFakePort(map[string]string{"AT": "OK\r\n"})
	port.deviceBaud = 57600
	modem := New(port)

	baud, err := modem.ScanBaudRate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 57600, baud)
	assert.Equal(t, 57600, modem.BaudRate())

	port.deviceBaud = 1200
	_, err = modem.ScanBaudRate(context.Background())
	assert.ErrorIs(t, err, ErrBaudRateNotFound)
}

func TestModem_SetBaudRate(t *testing.T) {
	port := newFakePort(map[string]string{"AT": "OK\r\n"})
	modem := New(port)

	require.NoError(t, modem.SetBaudRate(context.Background(), 230400))
	assert.Equal(t, 230400, modem.BaudRate())
	assert.Equal(t, 230400, port.deviceBaud)
	assert.Contains(t, port.Written(), "ATB=230400\n")

	// already there, nothing to change
	before := len(port.Written())
	require.NoError(t, modem.SetBaudRate(context.Background(), 230400))
	assert.Len(t, port.Written(), before+2)
}

func TestModem_DataFrames(t *testing.T) {
	port := newFakePort(nil)
	modem := New(port)
	ctx := context.Background()

	require.NoError(t, modem.SendData(ctx, 1, []byte("hi")))
	assert.Equal(t, []string{"\x1bS1hi\x1bE"}, port.Written())
	assert.ErrorIs(t, modem.SendData(ctx, 10, nil), ErrInvalidArgument)

	port.push([]byte("\x1bS0GET / HT"))
	frames, err := modem.ReceiveFrames(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, frames)

	port.push([]byte("TP/1.1\x1bE"))
	frames, err = modem.ReceiveFrames(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []Frame{{CID: 0, Payload: []byte("GET / HTTP/1.1")}}, frames)
}

func TestDecodeFrames(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		frames []Frame
		rest   string
	}{
		{"empty", "", nil, ""},
		{"noise", "CONNECT 1\r\n", nil, ""},
		{"two frames", "\x1bS1abc\x1bE\r\n\x1bS2\x1bE", []Frame{{1, []byte("abc")}, {2, nil}}, ""},
		{"partial", "\x1bS1abc\x1bE\x1bS3de", []Frame{{1, []byte("abc")}}, "\x1bS3de"},
		{"split marker", "OK\x1b", nil, "\x1b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames, rest := DecodeFrames([]byte(tt.data))
			assert.Equal(t, tt.frames, frames)
			assert.Equal(t, tt.rest, string(rest))
		})
	}
}

func TestDetectFailure(t *testing.T) {
	tests := []struct {
		data     string
		expected Failure
	}{
		{"OK\r\n", FailureNone},
		{"0\r\n", FailureNone},
		{"\x1bF", FailureError},
		{"4\r\n", FailureError},
		{"9\r\n", FailureDisconnected},
	}
	for _, tt := range tests {
		t.Run(strconv.Quote(tt.data), func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectFailure([]byte(tt.data)))
		})
	}
}

func TestParseIPInfo_Missing(t *testing.T) {
	_, err := ParseIPInfo("ERROR")
	assert.Error(t, err)
	_, err = ParseIPInfo("IP SubNet Gateway\r\n 10.0.0.2:")
	assert.Error(t, err)
}

func TestRequestPath(t *testing.T) {
	assert.Equal(t, "/MOTA=50", RequestPath([]byte("GET /MOTA=50 HTTP/1.1\r\nHost: nxt\r\n")))
	assert.Equal(t, "/", RequestPath([]byte("GET / HTTP/1.0")))
	assert.Equal(t, "", RequestPath([]byte("CONNECT 0 1 192.168.1.2 1234")))
}

func TestMotorPower(t *testing.T) {
	tests := []struct {
		path  string
		power int
		ok    bool
	}{
		{"/MOTA=50", 50, true},
		{"/MOTA=-20", -20, true},
		{"/MOTA=150", 100, true},
		{"/MOTA=x", 0, false},
		{"/favicon.ico", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			power, ok := MotorPower(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.power, power)
		})
	}
}

func TestModem_Serve(t *testing.T) {
	port := newFakePort(map[string]string{
		"AT+NCLOSEALL": "OK\r\n",
		"AT+NSTCP=80":  "CONNECT 0\r\nOK\r\n",
		"AT+NCLOSE=1":  "OK\r\n",
	})
	port.after["AT+NSTCP=80"] = string(EncodeFrame(1, []byte("GET /MOTA=50 HTTP/1.1\r\n\r\n")))
	modem := New(port)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	paths := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- modem.Serve(ctx, 80, func(ctx context.Context, path string) string {
			paths <- path
			return "MotorA=50\n"
		})
	}()

	assert.Equal(t, "/MOTA=50", <-paths)
	assert.Eventually(t, func() bool {
		w := port.Written()
		return len(w) > 0 && w[len(w)-1] == "AT+NCLOSE=1\n"
	}, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	w := port.Written()
	assert.Contains(t, w, string(EncodeFrame(1, []byte(responseHeader))))
	assert.Contains(t, w, string(EncodeFrame(1, []byte("MotorA=50\n"))))
}
