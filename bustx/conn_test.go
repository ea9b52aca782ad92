package bustx

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/nxtsensors"
	"github.com/mklimuk/nxtsensors/internal/bustest"
)

const testAddr byte = 0x01

func fastConn(bus nxtsensors.I2CBus) *Conn {
	return New(bus, testAddr, WithClearSequence(5, 0), WithTimeout(20*time.Millisecond))
}

func TestTx_WriteThenRead(t *testing.T) {
	bus := &bustest.MockI2CBus{}
	bus.On("WriteToAddr", mock.Anything, testAddr, []byte{0x42}).Return(nil).Once()
	bus.On("ReadFromAddr", mock.Anything, testAddr, mock.Anything).Return([]byte{0x5A, 0x01}, nil).Once()

	reply := make([]byte, 2)
	err := fastConn(bus).ReadReg(context.Background(), 0x42, reply)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x5A, 0x01}, reply)
	bus.AssertExpectations(t)
}

func TestTx_WriteOnlySkipsRead(t *testing.T) {
	bus := &bustest.MockI2CBus{}
	bus.On("WriteToAddr", mock.Anything, testAddr, []byte{0x41, 0x43}).Return(nil).Once()

	err := fastConn(bus).WriteReg(context.Background(), 0x41, 0x43)
	require.NoError(t, err)
	bus.AssertExpectations(t)
	bus.AssertNotCalled(t, "ReadFromAddr", mock.Anything, mock.Anything, mock.Anything)
}

func TestTx_RetriesOnceAfterClearing(t *testing.T) {
	bus := &bustest.MockI2CBus{}
	bus.On("WriteToAddr", mock.Anything, testAddr, []byte{0x42}).Return(nxtsensors.ErrBusBusy).Once()
	bus.On("Release", mock.Anything).Return(nil).Once()
	bus.On("WriteToAddr", mock.Anything, testAddr, []byte(nil)).Return(nil).Times(5)
	bus.On("WriteToAddr", mock.Anything, testAddr, []byte{0x42}).Return(nil).Once()
	bus.On("ReadFromAddr", mock.Anything, testAddr, mock.Anything).Return([]byte{0x07}, nil).Once()

	reply := make([]byte, 1)
	err := fastConn(bus).ReadReg(context.Background(), 0x42, reply)
	require.NoError(t, err)
	assert.Equal(t, byte(0x07), reply[0])
	bus.AssertExpectations(t)
}

func TestTx_FailsAfterSecondError(t *testing.T) {
	bus := &bustest.MockI2CBus{}
	busErr := errors.New("nack")
	bus.On("WriteToAddr", mock.Anything, testAddr, []byte{0x42}).Return(busErr).Twice()
	bus.On("Release", mock.Anything).Return(nil).Once()
	bus.On("WriteToAddr", mock.Anything, testAddr, []byte(nil)).Return(nil).Times(5)

	err := fastConn(bus).ReadReg(context.Background(), 0x42, make([]byte, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, nxtsensors.ErrTxFailed)
	assert.ErrorIs(t, err, busErr)
	bus.AssertExpectations(t)
	bus.AssertNotCalled(t, "ReadFromAddr", mock.Anything, mock.Anything, mock.Anything)
}

func TestTx_PayloadLimit(t *testing.T) {
	bus := &bustest.MockI2CBus{}
	err := fastConn(bus).Tx(context.Background(), make([]byte, 17), nil)
	assert.ErrorIs(t, err, nxtsensors.ErrPayloadTooLarge)
	bus.AssertNotCalled(t, "WriteToAddr", mock.Anything, mock.Anything, mock.Anything)
}

func TestTx_NotSupportedIsNotRetried(t *testing.T) {
	bus := &bustest.MockI2CBus{}
	bus.On("WriteToAddr", mock.Anything, testAddr, []byte{0x41, 0x00}).Return(nxtsensors.ErrNotSupported).Once()

	err := fastConn(bus).WriteReg(context.Background(), 0x41, 0x00)
	assert.ErrorIs(t, err, nxtsensors.ErrNotSupported)
	assert.NotErrorIs(t, err, nxtsensors.ErrTxFailed)
	bus.AssertExpectations(t)
}

func TestTx_PollsUntilReady(t *testing.T) {
	bus := &bustest.MockStatusBus{}
	bus.On("BusStatus", mock.Anything, testAddr).Return(nxtsensors.StatusPending, nil).Twice()
	bus.On("BusStatus", mock.Anything, testAddr).Return(nxtsensors.StatusReady, nil)
	bus.On("WriteToAddr", mock.Anything, testAddr, []byte{0x42}).Return(nil).Once()
	bus.On("ReadFromAddr", mock.Anything, testAddr, mock.Anything).Return([]byte{0x10}, nil).Once()

	reply := make([]byte, 1)
	err := fastConn(bus).ReadReg(context.Background(), 0x42, reply)
	require.NoError(t, err)
	assert.Equal(t, byte(0x10), reply[0])
	bus.AssertExpectations(t)
}

func TestTx_BusNeverReady(t *testing.T) {
	bus := &bustest.MockStatusBus{}
	bus.On("BusStatus", mock.Anything, testAddr).Return(nxtsensors.StatusPending, nil)
	bus.On("Release", mock.Anything).Return(nil).Once()
	bus.On("WriteToAddr", mock.Anything, testAddr, []byte(nil)).Return(nil).Times(5)

	err := fastConn(bus).ReadReg(context.Background(), 0x42, make([]byte, 1))
	assert.ErrorIs(t, err, nxtsensors.ErrTxFailed)
	assert.ErrorIs(t, err, nxtsensors.ErrBusTimeout)
	bus.AssertNotCalled(t, "WriteToAddr", mock.Anything, testAddr, []byte{0x42})
}

// stuckBus reports a pending transfer until it is released.
type stuckBus struct {
	bustest.MockI2CBus
	released atomic.Bool
	polls    atomic.Int32
}

func (b *stuckBus) BusStatus(ctx context.Context, address byte) (nxtsensors.BusStatus, error) {
	b.polls.Add(1)
	if b.released.Load() {
		return nxtsensors.StatusReady, nil
	}
	return nxtsensors.StatusPending, nil
}

func TestTx_ClearsStuckBusBeforeRequest(t *testing.T) {
	bus := &stuckBus{}
	bus.On("Release", mock.Anything).Run(func(mock.Arguments) {
		bus.released.Store(true)
	}).Return(nil).Once()
	bus.On("WriteToAddr", mock.Anything, testAddr, []byte(nil)).Return(nil).Times(5)
	bus.On("WriteToAddr", mock.Anything, testAddr, []byte{0x42}).Return(nil).Once()
	bus.On("ReadFromAddr", mock.Anything, testAddr, mock.Anything).Return([]byte{0x33}, nil).Once()

	reply := make([]byte, 1)
	err := fastConn(bus).ReadReg(context.Background(), 0x42, reply)
	require.NoError(t, err)
	assert.Equal(t, byte(0x33), reply[0])
	assert.Greater(t, bus.polls.Load(), int32(2))
	bus.AssertExpectations(t)
	bus.AssertNumberOfCalls(t, "Release", 1)
	bus.AssertNumberOfCalls(t, "WriteToAddr", 6)
}

func TestTx_BusErrorStatusTriggersRetry(t *testing.T) {
	bus := &bustest.MockStatusBus{}
	bus.On("BusStatus", mock.Anything, testAddr).Return(nxtsensors.StatusReady, nil).Once()
	bus.On("WriteToAddr", mock.Anything, testAddr, []byte{0x42}).Return(nil).Once()
	bus.On("BusStatus", mock.Anything, testAddr).Return(nxtsensors.StatusError, nil).Once()
	bus.On("Release", mock.Anything).Return(nil).Once()
	bus.On("WriteToAddr", mock.Anything, testAddr, []byte(nil)).Return(nil).Times(5)
	bus.On("WriteToAddr", mock.Anything, testAddr, []byte{0x42}).Return(nil).Once()
	bus.On("BusStatus", mock.Anything, testAddr).Return(nxtsensors.StatusReady, nil).Once()
	bus.On("ReadFromAddr", mock.Anything, testAddr, mock.Anything).Return([]byte{0x01}, nil).Once()

	err := fastConn(bus).ReadReg(context.Background(), 0x42, make([]byte, 1))
	require.NoError(t, err)
	bus.AssertExpectations(t)
}

func TestTx_CancelledContext(t *testing.T) {
	bus := &bustest.MockI2CBus{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.On("WriteToAddr", mock.Anything, testAddr, []byte{0x42}).Return(context.Canceled).Once()

	err := fastConn(bus).ReadReg(ctx, 0x42, make([]byte, 1))
	assert.ErrorIs(t, err, context.Canceled)
	bus.AssertNotCalled(t, "Release", mock.Anything)
}

type clearingBus struct {
	*bustest.Registers
	cleared int
}

func (b *clearingBus) Clear(ctx context.Context, address byte) error {
	b.cleared++
	return nil
}

func TestTx_UsesBusClearer(t *testing.T) {
	bus := &clearingBus{Registers: bustest.NewRegisters()}
	bus.Set(testAddr, 0x42, 0xAB)
	bus.Fail(testAddr, 1)

	reply := make([]byte, 1)
	err := fastConn(bus).ReadReg(context.Background(), 0x42, reply)
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), reply[0])
	assert.Equal(t, 1, bus.cleared)
}
