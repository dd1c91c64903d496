package pattern

import "time"

// Constant is a fixed rate.
type Constant struct {
	rate float64
}

// NewConstant creates a constant rate pattern.
func NewConstant(rate float64) *Constant {
	return &Constant{rate: rate}
}

func (c *Constant) Name() string { return NameConstant }

// Rate returns the constant rate regardless of elapsed time.
func (c *Constant) Rate(time.Duration) float64 {
	return c.rate
}
