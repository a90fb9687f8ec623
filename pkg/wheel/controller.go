package wheel

import "math"

// Model is the experimentally-fit steady-state actuator model's
// calibration constants:
//
//	v = max(0, SpeedOffset - Factor*exp(-(dutyCycle+DutyCycleOffset)/TimeConstant))
//
// WheelSpeedController inverts this to turn a desired speed into an
// open-loop duty cycle, which the PID then trims.
type Model struct {
	TimeConstant    float64
	DutyCycleOffset float64
	Factor          float64
	SpeedOffset     float64
}

// DutyCycleSetter emits a PWM duty cycle in [-1, 1] to the motor driver.
type DutyCycleSetter func(dutyCycle float32)

// TimeSource returns the current time in nanoseconds, abstracting the
// clock collaborator out of scope for this package.
type TimeSource func() int64

// WheelSpeedController is a periodic closed-loop wheel speed controller
// combining a nonlinear plant-inverse feedforward with a PID. It has no
// error surface: pathological inputs are clamped rather than rejected.
type WheelSpeedController struct {
	model          Model
	wheelRadius    float64 // meters
	radiansPerTick float64

	tickCount TickCountGetter
	setDuty   DutyCycleSetter
	now       TimeSource

	pid *PID

	timeStartNs       int64
	ticksAtStart      int32
	averageWheelSpeed float64
	isTurningForward  bool
	lastDutyCycle     float64
}

// NewWheelSpeedController creates a controller for one wheel. kp, ki, kd
// are the PID gains; model is the plant-inverse calibration; wheelRadius
// is in meters and radiansPerTick is the encoder's angular resolution.
func NewWheelSpeedController(
	model Model,
	wheelRadius, radiansPerTick float64,
	kp, ki, kd float64,
	tickCount TickCountGetter,
	setDuty DutyCycleSetter,
	now TimeSource,
) *WheelSpeedController {
	return &WheelSpeedController{
		model:            model,
		wheelRadius:      wheelRadius,
		radiansPerTick:   radiansPerTick,
		tickCount:        tickCount,
		setDuty:          setDuty,
		now:              now,
		pid:              NewPID(kp, ki, kd),
		isTurningForward: true,
	}
}

// SetLinearSpeed sets the target linear speed in meters/second and
// restarts the speed-estimation window.
func (c *WheelSpeedController) SetLinearSpeed(metersPerSecond float64) {
	c.timeStartNs = c.now()
	c.ticksAtStart = c.tickCount()
	c.pid.Target(metersPerSecond)
}

// SetAngularSpeed sets the target angular speed in radians/second,
// translated to linear speed via the wheel radius.
func (c *WheelSpeedController) SetAngularSpeed(radiansPerSecond float64) {
	c.SetLinearSpeed(radiansPerSecond * c.wheelRadius)
}

// RunAfterPeriod runs one control period. now is the current time in
// nanoseconds; dtSeconds is the elapsed time since the previous call, fed
// to the PID.
func (c *WheelSpeedController) RunAfterPeriod(nowNs int64, dtSeconds float64) {
	// Direction inference: the wheel's actual rotation direction cannot be
	// sensed, so assume it matches the commanded direction. When the
	// target is exactly zero that gives no sign information, so fall back
	// to the sign of the last PID output; otherwise a speed error at a
	// zero target can destabilize the loop and drive the robot backwards
	// indefinitely.
	isTurningForward := c.pid.GetTarget() > 0 || (c.pid.GetTarget() == 0 && c.pid.Output() >= 0)
	if isTurningForward != c.isTurningForward {
		c.averageWheelSpeed = 0
	}
	c.isTurningForward = isTurningForward

	secondsSinceStart := float64(nowNs-c.timeStartNs) / 1e9
	ticks := c.tickCount() - c.ticksAtStart
	if ticks > 0 {
		speed := c.wheelRadius * c.radiansPerTick * float64(ticks) / secondsSinceStart
		if !c.isTurningForward {
			speed = -speed
		}
		c.averageWheelSpeed = speed
	}
	// ticks == 0 retains the previous estimate, avoiding a spurious zero
	// right after a setpoint change.

	pidOutput := c.pid.Update(c.averageWheelSpeed, dtSeconds)
	speedCommand := c.pid.GetTarget() + pidOutput
	if (isTurningForward && speedCommand < 0) || (!isTurningForward && speedCommand > 0) {
		// A command opposite to the driving direction would slip the
		// wheel and corrupt odometry beyond what the trajectory
		// controller can recover from.
		speedCommand = 0
	}

	dutyCycle := c.DutyCycleFromLinearSpeed(speedCommand)
	c.lastDutyCycle = dutyCycle
	c.setDuty(float32(dutyCycle))
}

// MeasuredLinearSpeed returns the most recent speed estimate fed to the
// PID, in meters/second.
func (c *WheelSpeedController) MeasuredLinearSpeed() float64 {
	return c.averageWheelSpeed
}

// TargetLinearSpeed returns the current setpoint, in meters/second.
func (c *WheelSpeedController) TargetLinearSpeed() float64 {
	return c.pid.GetTarget()
}

// LastDutyCycle returns the duty cycle sent to setDuty on the most
// recent RunAfterPeriod call.
func (c *WheelSpeedController) LastDutyCycle() float64 {
	return c.lastDutyCycle
}

// DutyCycleFromLinearSpeed inverts the plant model to map a desired
// linear speed to an open-loop PWM duty cycle in [-1, 1].
func (c *WheelSpeedController) DutyCycleFromLinearSpeed(metersPerSecond float64) float64 {
	if metersPerSecond == 0 {
		return 0 // save power rather than hold a near-zero duty cycle
	}
	if metersPerSecond >= c.model.SpeedOffset {
		return 1
	}
	if metersPerSecond <= -c.model.SpeedOffset {
		return -1
	}
	offset := c.model.TimeConstant*math.Log(c.model.Factor) - c.model.DutyCycleOffset
	dutyCycle := offset - c.model.TimeConstant*math.Log(c.model.SpeedOffset-math.Abs(metersPerSecond))
	dutyCycle = clamp(dutyCycle, 0, 1)
	if metersPerSecond < 0 {
		dutyCycle = -dutyCycle
	}
	return dutyCycle
}

// GetMaxLinearSpeed returns the largest linear speed the model can
// command a duty cycle of 1.0 for.
func (c *WheelSpeedController) GetMaxLinearSpeed() float64 {
	offset := c.model.TimeConstant*math.Log(c.model.Factor) - c.model.DutyCycleOffset
	return c.model.SpeedOffset - math.Exp((offset-1)/c.model.TimeConstant)
}

// GetMinLinearSpeed is the negation of GetMaxLinearSpeed.
func (c *WheelSpeedController) GetMinLinearSpeed() float64 {
	return -c.GetMaxLinearSpeed()
}

// GetMaxAngularSpeed divides GetMaxLinearSpeed by the wheel radius.
func (c *WheelSpeedController) GetMaxAngularSpeed() float64 {
	return c.GetMaxLinearSpeed() / c.wheelRadius
}

// GetMinAngularSpeed is the negation of GetMaxAngularSpeed.
func (c *WheelSpeedController) GetMinAngularSpeed() float64 {
	return -c.GetMaxAngularSpeed()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
