package wheel

// PID is a standard discrete proportional-integral-derivative controller.
// The integrator is intentionally never reset on a setpoint change: an
// earlier version of this controller reset it, and under fast-changing
// targets that produced a visible torque kick at every SetLinearSpeed
// call, so the reset was removed.
type PID struct {
	Kp, Ki, Kd float64

	target       float64
	integral     float64
	lastError    float64
	haveLastErr  bool
	lastOutput   float64
}

// NewPID creates a PID with the given gains.
func NewPID(kp, ki, kd float64) *PID {
	return &PID{Kp: kp, Ki: ki, Kd: kd}
}

// Target sets the setpoint the next Update call controls towards.
func (p *PID) Target(target float64) {
	p.target = target
}

// GetTarget returns the current setpoint.
func (p *PID) GetTarget() float64 {
	return p.target
}

// Output returns the correction computed by the most recent Update call.
func (p *PID) Output() float64 {
	return p.lastOutput
}

// Update computes a correction from the current measurement and the time
// elapsed since the previous call.
func (p *PID) Update(measurement float64, dtSeconds float64) float64 {
	err := p.target - measurement
	p.integral += err * dtSeconds
	var derivative float64
	if p.haveLastErr && dtSeconds > 0 {
		derivative = (err - p.lastError) / dtSeconds
	}
	p.lastError = err
	p.haveLastErr = true
	p.lastOutput = p.Kp*err + p.Ki*p.integral + p.Kd*derivative
	return p.lastOutput
}
