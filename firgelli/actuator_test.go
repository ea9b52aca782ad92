package firgelli

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/nxtsensors/hitechnic"
)

var _ Motor = (*hitechnic.MuxMotor)(nil)

// fakeMotor moves step ticks per encoder read in the direction of the power
// until it hits one of the end stops at 0 and travel.
type fakeMotor struct {
	mx     sync.Mutex
	power  int
	pos    int32
	travel int32
	step   int32
	powers []int
	encErr error
}

func (m *fakeMotor) SetPower(ctx context.Context, power int) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.power = power
	m.powers = append(m.powers, power)
	return nil
}

func (m *fakeMotor) Encoder(ctx context.Context) (int32, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.encErr != nil {
		return 0, m.encErr
	}
	switch {
	case m.power > 0:
		m.pos = min(m.pos+m.step, m.travel)
	case m.power < 0:
		m.pos = max(m.pos-m.step, 0)
	}
	return m.pos, nil
}

func (m *fakeMotor) Powers() []int {
	m.mx.Lock()
	defer m.mx.Unlock()
	return append([]int(nil), m.powers...)
}

func (m *fakeMotor) Position() int32 {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.pos
}

func newActuator(m *fakeMotor, opts ...Option) *Actuator {
	opts = append([]Option{WithPollInterval(time.Millisecond), WithStallWindow(30 * time.Millisecond)}, opts...)
	return New(m, opts...)
}

func TestActuator_ExtendTicks(t *testing.T) {
	motor := &fakeMotor{travel: 1000, step: 5}
	a := newActuator(motor)
	require.NoError(t, a.Extend(context.Background(), 50, 50))
	require.NoError(t, a.Wait(context.Background()))
	assert.True(t, a.Done())
	assert.False(t, a.Stalled())
	assert.Equal(t, 50, a.Travelled())
	assert.Equal(t, int32(50), motor.Position())
	assert.Equal(t, []int{50, 0}, motor.Powers())
}

func TestActuator_FullTravel(t *testing.T) {
	motor := &fakeMotor{travel: 100, step: 10}
	a := newActuator(motor)
	require.NoError(t, a.Extend(context.Background(), 150, 0))
	require.NoError(t, a.Wait(context.Background()))
	assert.True(t, a.Stalled())
	assert.Equal(t, 100, a.Travelled())
	assert.Equal(t, []int{100, 0}, motor.Powers())
}

func TestActuator_RetractReversed(t *testing.T) {
	motor := &fakeMotor{pos: 100, travel: 200, step: 10}
	a := newActuator(motor, WithReversed(true))
	require.NoError(t, a.Retract(context.Background(), 30, 20))
	require.NoError(t, a.Wait(context.Background()))
	assert.Equal(t, []int{30, 0}, motor.Powers())
	assert.Equal(t, int32(120), motor.Position())
}

func TestActuator_Cancel(t *testing.T) {
	motor := &fakeMotor{travel: 1 << 30, step: 1}
	a := newActuator(motor)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.Extend(ctx, 100, 0))
	assert.False(t, a.Done())
	cancel()
	assert.ErrorIs(t, a.Wait(context.Background()), context.Canceled)
	assert.True(t, a.Done())
	assert.False(t, a.Stalled())
	powers := motor.Powers()
	assert.Equal(t, 0, powers[len(powers)-1])
}

func TestActuator_Stop(t *testing.T) {
	motor := &fakeMotor{pos: 1 << 20, travel: 1 << 30, step: 1}
	a := newActuator(motor)
	require.NoError(t, a.Retract(context.Background(), 40, 0))
	require.NoError(t, a.Stop(context.Background()))
	assert.True(t, a.Done())
	assert.NoError(t, a.Wait(context.Background()))
	assert.Equal(t, []int{-40, 0, 0}, motor.Powers())
}

func TestActuator_NewMoveStopsRunning(t *testing.T) {
	motor := &fakeMotor{travel: 1 << 30, step: 1}
	a := newActuator(motor)
	require.NoError(t, a.Extend(context.Background(), 40, 0))
	require.NoError(t, a.Extend(context.Background(), 60, 5))
	require.NoError(t, a.Wait(context.Background()))
	assert.Equal(t, []int{40, 0, 60, 0}, motor.Powers())
	assert.Equal(t, 5, a.Travelled())
}

func TestActuator_EncoderFailure(t *testing.T) {
	boom := errors.New("bus")
	motor := &fakeMotor{travel: 100, step: 1}
	a := newActuator(motor)
	require.NoError(t, a.Extend(context.Background(), 40, 0))
	motor.mx.Lock()
	motor.encErr = boom
	motor.mx.Unlock()
	assert.ErrorIs(t, a.Wait(context.Background()), boom)

	assert.ErrorIs(t, a.Extend(context.Background(), 40, 10), boom)
}

func TestActuator_InvalidTicks(t *testing.T) {
	a := newActuator(&fakeMotor{})
	assert.ErrorIs(t, a.Extend(context.Background(), 10, -1), ErrInvalidArgument)
	assert.True(t, a.Done())
	assert.NoError(t, a.Wait(context.Background()))
}
