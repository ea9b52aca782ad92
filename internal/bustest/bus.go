// Package bustest provides bus doubles shared by the driver tests.
package bustest

import (
	"context"
	"fmt"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/mklimuk/nxtsensors"
)

var _ nxtsensors.I2CBus = &MockI2CBus{}

// MockI2CBus is a testify mock; ReadFromAddr copies the first return argument
// into the caller's buffer.
type MockI2CBus struct {
	mock.Mock
}

func (m *MockI2CBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	if data, ok := args.Get(0).([]byte); ok {
		copy(buffer, data)
	}
	return args.Error(1)
}

func (m *MockI2CBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	return args.Error(0)
}

func (m *MockI2CBus) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockStatusBus adds a mocked bus-ready poll.
type MockStatusBus struct {
	MockI2CBus
}

func (m *MockStatusBus) BusStatus(ctx context.Context, address byte) (nxtsensors.BusStatus, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(nxtsensors.BusStatus), args.Error(1)
}

// Registers emulates devices as flat 256-byte register files. A single byte
// write moves the register pointer, longer writes store data starting at the
// register given by the first byte. Reads continue from the pointer.
type Registers struct {
	mx      sync.Mutex
	mem     map[byte]*[256]byte
	ptr     map[byte]byte
	writes  map[byte][][]byte
	failing map[byte]int
}

func NewRegisters() *Registers {
	return &Registers{
		mem:     make(map[byte]*[256]byte),
		ptr:     make(map[byte]byte),
		writes:  make(map[byte][][]byte),
		failing: make(map[byte]int),
	}
}

func (r *Registers) device(addr byte) *[256]byte {
	m, ok := r.mem[addr]
	if !ok {
		m = &[256]byte{}
		r.mem[addr] = m
	}
	return m
}

// Set stores data at reg of the device at addr.
func (r *Registers) Set(addr, reg byte, data ...byte) {
	r.mx.Lock()
	defer r.mx.Unlock()
	m := r.device(addr)
	for i, b := range data {
		m[byte(int(reg)+i)] = b
	}
}

func (r *Registers) Get(addr, reg byte, n int) []byte {
	r.mx.Lock()
	defer r.mx.Unlock()
	m := r.device(addr)
	out := make([]byte, n)
	for i := range out {
		out[i] = m[byte(int(reg)+i)]
	}
	return out
}

// Writes returns all payload writes (two bytes or more) sent to addr.
func (r *Registers) Writes(addr byte) [][]byte {
	r.mx.Lock()
	defer r.mx.Unlock()
	return append([][]byte(nil), r.writes[addr]...)
}

// Fail makes the next n operations addressed to addr return ErrBusBusy.
func (r *Registers) Fail(addr byte, n int) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.failing[addr] = n
}

func (r *Registers) fail(addr byte) bool {
	if r.failing[addr] > 0 {
		r.failing[addr]--
		return true
	}
	return false
}

func (r *Registers) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.fail(address) {
		return fmt.Errorf("read from %#x: %w", address, nxtsensors.ErrBusBusy)
	}
	m := r.device(address)
	p := r.ptr[address]
	for i := range buffer {
		buffer[i] = m[p]
		p++
	}
	r.ptr[address] = p
	return nil
}

func (r *Registers) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	r.mx.Lock()
	defer r.mx.Unlock()
	if len(buffer) == 0 {
		return nil
	}
	if r.fail(address) {
		return fmt.Errorf("write to %#x: %w", address, nxtsensors.ErrBusBusy)
	}
	r.ptr[address] = buffer[0]
	if len(buffer) == 1 {
		return nil
	}
	r.writes[address] = append(r.writes[address], append([]byte(nil), buffer...))
	m := r.device(address)
	for i, b := range buffer[1:] {
		m[byte(int(buffer[0])+i)] = b
	}
	return nil
}

func (r *Registers) Release(ctx context.Context) error {
	return nil
}

// Analog returns the configured samples in order and then keeps repeating the
// last one.
type Analog struct {
	mx     sync.Mutex
	values []int
	calls  int
	err    error
}

func NewAnalog(values ...int) *Analog {
	return &Analog{values: values}
}

func (a *Analog) ReadAnalog(ctx context.Context) (int, error) {
	a.mx.Lock()
	defer a.mx.Unlock()
	if a.err != nil {
		return 0, a.err
	}
	if len(a.values) == 0 {
		return 0, nil
	}
	i := a.calls
	if i >= len(a.values) {
		i = len(a.values) - 1
	}
	a.calls++
	return a.values[i], nil
}

func (a *Analog) Set(values ...int) {
	a.mx.Lock()
	defer a.mx.Unlock()
	a.values = values
	a.calls = 0
}

func (a *Analog) Fail(err error) {
	a.mx.Lock()
	defer a.mx.Unlock()
	a.err = err
}

func (a *Analog) Calls() int {
	a.mx.Lock()
	defer a.mx.Unlock()
	return a.calls
}

// Latch emulates a register-less device such as an 8-bit port expander: a
// write stores its first byte, a read returns it.
type Latch struct {
	mx       sync.Mutex
	state    byte
	writes   []byte
	busy     int
	releases int
}

func NewLatch(state byte) *Latch {
	return &Latch{state: state}
}

func (l *Latch) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	l.mx.Lock()
	defer l.mx.Unlock()
	if l.busy > 0 {
		l.busy--
		return fmt.Errorf("read from %#x: %w", address, nxtsensors.ErrBusBusy)
	}
	for i := range buffer {
		buffer[i] = l.state
	}
	return nil
}

func (l *Latch) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	l.mx.Lock()
	defer l.mx.Unlock()
	if len(buffer) == 0 {
		return nil
	}
	if l.busy > 0 {
		l.busy--
		return fmt.Errorf("write to %#x: %w", address, nxtsensors.ErrBusBusy)
	}
	l.state = buffer[0]
	l.writes = append(l.writes, buffer[0])
	return nil
}

func (l *Latch) Release(ctx context.Context) error {
	l.mx.Lock()
	defer l.mx.Unlock()
	l.releases++
	return nil
}

// Busy makes the next n operations fail with ErrBusBusy.
func (l *Latch) Busy(n int) {
	l.mx.Lock()
	defer l.mx.Unlock()
	l.busy = n
}

func (l *Latch) Writes() []byte {
	l.mx.Lock()
	defer l.mx.Unlock()
	return append([]byte(nil), l.writes...)
}

func (l *Latch) Releases() int {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.releases
}
