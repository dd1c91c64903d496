package pattern

import "time"

// Ramp moves linearly from a start rate to an end rate, then holds.
type Ramp struct {
	startRate float64
	endRate   float64
	duration  time.Duration
}

// NewRamp creates a ramp pattern that goes from startRate to endRate over
// duration.
func NewRamp(startRate, endRate float64, duration time.Duration) *Ramp {
	return &Ramp{
		startRate: startRate,
		endRate:   endRate,
		duration:  duration,
	}
}

func (r *Ramp) Name() string { return NameRamp }

// Rate interpolates between the start and end rates.
func (r *Ramp) Rate(elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return r.startRate
	}
	if elapsed >= r.duration {
		return r.endRate
	}
	progress := float64(elapsed) / float64(r.duration)
	return r.startRate + progress*(r.endRate-r.startRate)
}
