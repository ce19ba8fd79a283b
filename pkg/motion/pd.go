package motion

import "time"

// ControlState is the PD controller memory for one approach invocation.
type ControlState struct {
	LastError float64
	LastTime  time.Time
	PTerm     float64
	DTerm     float64
	Output    float64

	primed bool
}

// HeadingPD implements the proportional-derivative heading law used while
// translating toward the secondary goal.
type HeadingPD struct {
	Kp         float64
	Kd         float64
	SampleTime time.Duration

	State ControlState
}

// NewHeadingPD creates a PD controller with fresh state.
func NewHeadingPD(cfg Config) *HeadingPD {
	return &HeadingPD{
		Kp:         cfg.KpAng,
		Kd:         cfg.KdAng,
		SampleTime: cfg.SampleTime,
	}
}

// Update feeds a wrapped heading error sampled at now and returns the
// angular velocity command. The output is only recomputed when more than
// SampleTime has passed since the previous update; otherwise the last
// output is held.
func (c *HeadingPD) Update(err float64, now time.Time) float64 {
	s := &c.State

	// First sample primes the history so there is no derivative kick.
	if !s.primed {
		s.primed = true
		s.LastError = err
		s.LastTime = now
		s.PTerm = c.Kp * err
		s.DTerm = 0
		s.Output = s.PTerm
		return s.Output
	}

	dt := now.Sub(s.LastTime)
	if dt <= c.SampleTime || dt <= 0 {
		return s.Output
	}

	s.PTerm = c.Kp * err
	s.DTerm = c.Kd * (err - s.LastError) / dt.Seconds()
	s.Output = s.PTerm + s.DTerm
	s.LastError = err
	s.LastTime = now

	return s.Output
}
