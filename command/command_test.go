package command

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopdev/pidserver/log2"
	"github.com/loopdev/pidserver/pid"
	"github.com/loopdev/pidserver/wire"
)

func testDispatcher(t testing.TB) (*Dispatcher, *pid.Controller) {
	engine := pid.NewController()
	return NewDispatcher(engine, log2.NewTest(t, log2.LDebug)), engine
}

func TestSetSetpoint(t *testing.T) {
	t.Parallel()
	d, engine := testDispatcher(t)
	resp := d.Handle(wire.Frame{Opcode: OpSetSetpoint, Arg1: 2.0})
	assert.Equal(t, wire.Frame{Opcode: OpSetSetpoint, Arg1: 2.0}, resp)
	assert.Equal(t, 2.0, engine.Setpoint())
}

func TestSetGains(t *testing.T) {
	t.Parallel()
	d, engine := testDispatcher(t)
	for _, c := range []struct {
		op byte
		v  float32
	}{
		{OpSetKp, 1.5},
		{OpSetKi, 0.25},
		{OpSetKd, 0.125},
	} {
		resp := d.Handle(wire.Frame{Opcode: c.op, Arg1: c.v, Arg2: 99})
		assert.Equal(t, c.op, resp.Opcode, OpString(c.op))
		assert.Equal(t, c.v, resp.Arg1)
		assert.Equal(t, float32(0), resp.Arg2)
	}
	assert.Equal(t, pid.Gains{Kp: 1.5, Ki: 0.25, Kd: 0.125}, engine.Gains())
}

func TestSetLimits(t *testing.T) {
	t.Parallel()
	d, engine := testDispatcher(t)

	resp := d.Handle(wire.Frame{Opcode: OpSetOutputLimits, Arg1: -1, Arg2: 1})
	assert.Equal(t, wire.Frame{Opcode: OpSetOutputLimits, Arg1: -1, Arg2: 1}, resp)
	min, max := engine.OutputLimits()
	assert.Equal(t, -1.0, min)
	assert.Equal(t, 1.0, max)

	resp = d.Handle(wire.Frame{Opcode: OpSetIntegralLimits, Arg1: -5, Arg2: 5})
	assert.Equal(t, OpSetIntegralLimits, resp.Opcode)
	min, max = engine.IntegralLimits()
	assert.Equal(t, -5.0, min)
	assert.Equal(t, 5.0, max)
}

func TestInvalidConfigurationAnswered(t *testing.T) {
	t.Parallel()
	d, engine := testDispatcher(t)
	require.NoError(t, engine.SetOutputLimits(-3, 3))

	// min > max must be rejected with an error frame, prior state kept
	resp := d.Handle(wire.Frame{Opcode: OpSetOutputLimits, Arg1: 5, Arg2: 1})
	assert.Equal(t, OpError, resp.Opcode)
	assert.Equal(t, float32(OpSetOutputLimits), resp.Arg1)
	min, max := engine.OutputLimits()
	assert.Equal(t, -3.0, min)
	assert.Equal(t, 3.0, max)

	resp = d.Handle(wire.Frame{Opcode: OpSetKp, Arg1: float32(math.NaN())})
	assert.Equal(t, OpError, resp.Opcode)
	assert.Equal(t, pid.Gains{}, engine.Gains())
}

func TestUnknownOpcode(t *testing.T) {
	t.Parallel()
	d, _ := testDispatcher(t)
	resp := d.Handle(wire.Frame{Opcode: 0x5a, Arg1: 1, Arg2: 2})
	assert.Equal(t, OpError, resp.Opcode)
	assert.Equal(t, float32(0x5a), resp.Arg1)
}

// Scenario from the protocol docs: set setpoint 2.0, step with kp=1 at
// measurement 1.0, then read back measurement/output.
func TestGetMeasurementScenario(t *testing.T) {
	t.Parallel()
	d, engine := testDispatcher(t)

	resp := d.Handle(wire.Frame{Opcode: OpSetKp, Arg1: 1.0})
	require.Equal(t, OpSetKp, resp.Opcode)
	resp = d.Handle(wire.Frame{Opcode: OpSetSetpoint, Arg1: 2.0})
	require.Equal(t, OpSetSetpoint, resp.Opcode)

	_, err := engine.Step(1.0, 0.02)
	require.NoError(t, err)

	resp = d.Handle(wire.Frame{Opcode: OpGetMeasurement})
	assert.Equal(t, OpGetMeasurement, resp.Opcode)
	assert.Equal(t, float32(1.0), resp.Arg1) // last measurement
	assert.Equal(t, float32(1.0), resp.Arg2) // output = kp * (2.0 - 1.0)
}

func TestTelemetryFrame(t *testing.T) {
	t.Parallel()
	f := TelemetryFrame(pid.Snapshot{Measurement: 1.5, Output: -0.5})
	assert.Equal(t, wire.Frame{Opcode: OpTelemetry, Arg1: 1.5, Arg2: -0.5}, f)
}

func TestOpString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "set-setpoint", OpString(OpSetSetpoint))
	assert.Equal(t, "unknown(5a)", OpString(0x5a))
}
