// Package pid is the control law state machine. One Controller instance per
// process, shared between the request loop (configuration writes), the
// control loop (Step) and the telemetry pusher (Snapshot reads).
//
// Numeric safety invariants:
// - integral accumulator stays within integral limits (anti-windup)
// - returned output stays within output limits
// Rejected configuration never modifies prior state.
package pid

import (
	"math"
	"sync"

	"github.com/juju/errors"
)

type Gains struct {
	Kp float64
	Ki float64
	Kd float64
}

// Snapshot is the read-only view for telemetry.
type Snapshot struct {
	Setpoint    float64
	Measurement float64
	Output      float64
}

// Controller holds all mutable control state behind one mutex.
// The lock is held only for the duration of one read or one write,
// never across I/O.
type Controller struct { //nolint:maligned
	lk sync.Mutex

	setpoint  float64
	gains     Gains
	integral  float64
	prevError float64

	integralMin float64
	integralMax float64
	outputMin   float64
	outputMax   float64

	lastOutput      float64
	lastMeasurement float64
}

// NewController returns a clean bounded state: everything zeroed except
// limits which default to the widest representable range.
func NewController() *Controller {
	return &Controller{
		integralMin: -math.MaxFloat64,
		integralMax: math.MaxFloat64,
		outputMin:   -math.MaxFloat64,
		outputMax:   math.MaxFloat64,
	}
}

// Reset zeroes the accumulator and previous error, keeps gains and limits.
func (c *Controller) Reset() {
	c.lk.Lock()
	defer c.lk.Unlock()
	c.integral = 0
	c.prevError = 0
	c.lastOutput = 0
	c.lastMeasurement = 0
}

func (c *Controller) SetGains(g Gains) error {
	if !isFinite(g.Kp) || !isFinite(g.Ki) || !isFinite(g.Kd) {
		return errors.NotValidf("gains kp=%g ki=%g kd=%g", g.Kp, g.Ki, g.Kd)
	}
	c.lk.Lock()
	defer c.lk.Unlock()
	c.gains = g
	return nil
}

func (c *Controller) SetKp(v float64) error { return c.setGain(&c.gains.Kp, "kp", v) }
func (c *Controller) SetKi(v float64) error { return c.setGain(&c.gains.Ki, "ki", v) }
func (c *Controller) SetKd(v float64) error { return c.setGain(&c.gains.Kd, "kd", v) }

func (c *Controller) setGain(p *float64, name string, v float64) error {
	if !isFinite(v) {
		return errors.NotValidf("gain %s=%g", name, v)
	}
	c.lk.Lock()
	defer c.lk.Unlock()
	*p = v
	return nil
}

func (c *Controller) SetSetpoint(v float64) error {
	if !isFinite(v) {
		return errors.NotValidf("setpoint=%g", v)
	}
	c.lk.Lock()
	defer c.lk.Unlock()
	c.setpoint = v
	return nil
}

func (c *Controller) SetOutputLimits(min, max float64) error {
	if err := checkLimits("output", min, max); err != nil {
		return err
	}
	c.lk.Lock()
	defer c.lk.Unlock()
	c.outputMin, c.outputMax = min, max
	return nil
}

func (c *Controller) SetIntegralLimits(min, max float64) error {
	if err := checkLimits("integral", min, max); err != nil {
		return err
	}
	c.lk.Lock()
	defer c.lk.Unlock()
	c.integralMin, c.integralMax = min, max
	// existing accumulator must obey new bounds immediately
	c.integral = clamp(c.integral, min, max)
	return nil
}

// Step performs one control computation. dt is seconds since previous step,
// must be positive. Sole mutation point for the control law.
func (c *Controller) Step(measurement, dt float64) (float64, error) {
	if !(dt > 0) {
		return 0, errors.NotValidf("dt=%g", dt)
	}
	if !isFinite(measurement) {
		return 0, errors.NotValidf("measurement=%g", measurement)
	}

	c.lk.Lock()
	defer c.lk.Unlock()

	e := c.setpoint - measurement
	c.integral = clamp(c.integral+e*dt, c.integralMin, c.integralMax)
	derivative := (e - c.prevError) / dt
	raw := c.gains.Kp*e + c.gains.Ki*c.integral + c.gains.Kd*derivative
	out := clamp(raw, c.outputMin, c.outputMax)

	c.prevError = e
	c.lastOutput = out
	c.lastMeasurement = measurement
	return out, nil
}

func (c *Controller) Snapshot() Snapshot {
	c.lk.Lock()
	defer c.lk.Unlock()
	return Snapshot{
		Setpoint:    c.setpoint,
		Measurement: c.lastMeasurement,
		Output:      c.lastOutput,
	}
}

func (c *Controller) Gains() Gains {
	c.lk.Lock()
	defer c.lk.Unlock()
	return c.gains
}

func (c *Controller) Setpoint() float64 {
	c.lk.Lock()
	defer c.lk.Unlock()
	return c.setpoint
}

func (c *Controller) OutputLimits() (min, max float64) {
	c.lk.Lock()
	defer c.lk.Unlock()
	return c.outputMin, c.outputMax
}

func (c *Controller) IntegralLimits() (min, max float64) {
	c.lk.Lock()
	defer c.lk.Unlock()
	return c.integralMin, c.integralMax
}

// Integral returns the current accumulator value, mostly for tests and debug.
func (c *Controller) Integral() float64 {
	c.lk.Lock()
	defer c.lk.Unlock()
	return c.integral
}

func checkLimits(tag string, min, max float64) error {
	if !isFinite(min) || !isFinite(max) || min > max {
		return errors.NotValidf("%s limits min=%g max=%g", tag, min, max)
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
