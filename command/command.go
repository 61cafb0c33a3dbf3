// Package command maps wire frames onto PID controller operations.
//
// Opcode table. arg1/arg2 meaning is per-opcode; a frame only carries two
// floats so each gain has its own opcode instead of packing three values.
//
//	op    request                     response
//	0x01  set setpoint (arg1)         echo, arg1=applied value
//	0x02  set kp (arg1)               echo, arg1=applied value
//	0x03  set ki (arg1)               echo, arg1=applied value
//	0x04  set kd (arg1)               echo, arg1=applied value
//	0x05  set output limits (min,max) echo, arg1=min arg2=max
//	0x06  set integral limits         echo, arg1=min arg2=max
//	0x07  get measurement             echo, arg1=measurement arg2=output
//	0x7f  (push only) telemetry       arg1=measurement arg2=output
//	0xee  (response only) error       arg1=offending request opcode
package command

import (
	"fmt"

	"github.com/loopdev/pidserver/log2"
	"github.com/loopdev/pidserver/pid"
	"github.com/loopdev/pidserver/wire"
)

const (
	OpSetSetpoint       = byte(0x01)
	OpSetKp             = byte(0x02)
	OpSetKi             = byte(0x03)
	OpSetKd             = byte(0x04)
	OpSetOutputLimits   = byte(0x05)
	OpSetIntegralLimits = byte(0x06)
	OpGetMeasurement    = byte(0x07)
	OpTelemetry         = byte(0x7f)
	OpError             = byte(0xee)
)

func OpString(op byte) string {
	switch op {
	case OpSetSetpoint:
		return "set-setpoint"
	case OpSetKp:
		return "set-kp"
	case OpSetKi:
		return "set-ki"
	case OpSetKd:
		return "set-kd"
	case OpSetOutputLimits:
		return "set-output-limits"
	case OpSetIntegralLimits:
		return "set-integral-limits"
	case OpGetMeasurement:
		return "get-measurement"
	case OpTelemetry:
		return "telemetry"
	case OpError:
		return "error"
	}
	return fmt.Sprintf("unknown(%02x)", op)
}

// Dispatcher resolves frame-level and configuration errors at this boundary,
// they never escape as process failures. Unknown opcode and rejected
// configuration answer with OpError; the loop keeps running.
type Dispatcher struct {
	engine *pid.Controller
	log    *log2.Log
}

func NewDispatcher(engine *pid.Controller, log *log2.Log) *Dispatcher {
	return &Dispatcher{engine: engine, log: log}
}

// Handle executes one decoded request and returns the response frame.
// Successful commands echo the request opcode with the applied values,
// confirming to the client which command was executed.
func (d *Dispatcher) Handle(req wire.Frame) wire.Frame {
	var err error
	resp := req

	switch req.Opcode {
	case OpSetSetpoint:
		err = d.engine.SetSetpoint(float64(req.Arg1))
		resp.Arg2 = 0

	case OpSetKp:
		err = d.engine.SetKp(float64(req.Arg1))
		resp.Arg2 = 0

	case OpSetKi:
		err = d.engine.SetKi(float64(req.Arg1))
		resp.Arg2 = 0

	case OpSetKd:
		err = d.engine.SetKd(float64(req.Arg1))
		resp.Arg2 = 0

	case OpSetOutputLimits:
		err = d.engine.SetOutputLimits(float64(req.Arg1), float64(req.Arg2))

	case OpSetIntegralLimits:
		err = d.engine.SetIntegralLimits(float64(req.Arg1), float64(req.Arg2))

	case OpGetMeasurement:
		snap := d.engine.Snapshot()
		resp.Arg1 = float32(snap.Measurement)
		resp.Arg2 = float32(snap.Output)

	default:
		d.log.Errorf("command unknown op=%02x", req.Opcode)
		return errorFrame(req.Opcode)
	}

	if err != nil {
		d.log.Errorf("command %s rejected: %v", OpString(req.Opcode), err)
		return errorFrame(req.Opcode)
	}
	d.log.Debugf("command %s ok arg1=%g arg2=%g", OpString(req.Opcode), resp.Arg1, resp.Arg2)
	return resp
}

// TelemetryFrame builds the unsolicited push frame from a state snapshot.
func TelemetryFrame(snap pid.Snapshot) wire.Frame {
	return wire.Frame{
		Opcode: OpTelemetry,
		Arg1:   float32(snap.Measurement),
		Arg2:   float32(snap.Output),
	}
}

func errorFrame(reqOp byte) wire.Frame {
	return wire.Frame{Opcode: OpError, Arg1: float32(reqOp)}
}
