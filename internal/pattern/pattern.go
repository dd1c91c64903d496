// Package pattern provides target-rate schedules for paced runs.
package pattern

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Pattern names.
const (
	NameConstant = "constant"
	NameRamp     = "ramp"
	NameSpike    = "spike"
)

// Pattern gives the target rate, in units per second, at a point of a run.
type Pattern interface {
	// Name returns the pattern identifier.
	Name() string

	// Rate returns the target rate after elapsed. Zero or less means
	// unbounded.
	Rate(elapsed time.Duration) float64
}

// Config holds pattern-specific configuration.
type Config struct {
	// Constant rate, and the baseline of the spike pattern.
	Rate float64

	// Ramp pattern
	RampStart    float64
	RampEnd      float64
	RampDuration time.Duration

	// Spike pattern
	SpikeRate     float64
	SpikeDuration time.Duration
	SpikeInterval time.Duration
}

// Registry manages pattern lookup by name.
type Registry struct {
	patterns map[string]func(Config) (Pattern, error)
}

// NewRegistry creates a registry with the built-in patterns.
func NewRegistry() *Registry {
	r := &Registry{
		patterns: make(map[string]func(Config) (Pattern, error)),
	}

	r.Register(NameConstant, func(cfg Config) (Pattern, error) {
		return NewConstant(cfg.Rate), nil
	})
	r.Register(NameRamp, func(cfg Config) (Pattern, error) {
		if cfg.RampDuration <= 0 {
			return nil, errors.New("ramp duration must be positive")
		}
		return NewRamp(cfg.RampStart, cfg.RampEnd, cfg.RampDuration), nil
	})
	r.Register(NameSpike, func(cfg Config) (Pattern, error) {
		if cfg.SpikeInterval <= 0 || cfg.SpikeDuration <= 0 || cfg.SpikeDuration > cfg.SpikeInterval {
			return nil, fmt.Errorf("spike needs 0 < duration <= interval, got %v and %v", cfg.SpikeDuration, cfg.SpikeInterval)
		}
		return NewSpike(cfg.Rate, cfg.SpikeRate, cfg.SpikeDuration, cfg.SpikeInterval), nil
	})

	return r
}

// Register adds a pattern factory to the registry.
func (r *Registry) Register(name string, factory func(Config) (Pattern, error)) {
	r.patterns[name] = factory
}

// Get returns a pattern instance for the given name and config.
func (r *Registry) Get(name string, cfg Config) (Pattern, error) {
	factory, ok := r.patterns[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown pattern: %s", name)
	}
	return factory(cfg)
}
