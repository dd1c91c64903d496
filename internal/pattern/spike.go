package pattern

import "time"

// Spike runs at a baseline rate with periodic bursts.
type Spike struct {
	baselineRate  float64
	spikeRate     float64
	spikeDuration time.Duration
	spikeInterval time.Duration
}

// NewSpike creates a spike pattern. It runs at baselineRate and switches
// to spikeRate for the last spikeDuration of every spikeInterval.
func NewSpike(baselineRate, spikeRate float64, spikeDuration, spikeInterval time.Duration) *Spike {
	return &Spike{
		baselineRate:  baselineRate,
		spikeRate:     spikeRate,
		spikeDuration: spikeDuration,
		spikeInterval: spikeInterval,
	}
}

func (s *Spike) Name() string { return NameSpike }

// Rate returns the spike rate inside a spike window, else the baseline.
func (s *Spike) Rate(elapsed time.Duration) float64 {
	if elapsed%s.spikeInterval >= s.spikeInterval-s.spikeDuration {
		return s.spikeRate
	}
	return s.baselineRate
}
