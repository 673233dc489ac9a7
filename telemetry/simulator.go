package telemetry

import (
	"math"
	"math/rand"
	"time"
)

const (
	fhrAmplitude = 5.0
	fhrPeriod    = 20.0
	fhrJitter    = 2.0

	ucBase      = 20.0
	ucAmplitude = 15.0
	ucPeriod    = 180.0
	ucJitter    = 3.0
)

// Sample is one bedside monitor reading.
type Sample struct {
	CaseID    string    `json:"case_id"`
	Timestamp time.Time `json:"timestamp"`
	Elapsed   float64   `json:"elapsed_seconds"`
	FHR       float64   `json:"fhr"`
	UC        float64   `json:"uc"`
}

// Simulator produces a synthetic FHR/UC trace around a baseline heart rate.
// It is not safe for concurrent use.
type Simulator struct {
	baseline float64
	rng      *rand.Rand
}

// NewSimulator centres the FHR trace on baseline bpm. Equal seeds replay equal traces.
func NewSimulator(baseline float64, seed int64) *Simulator {
	return &Simulator{baseline: baseline, rng: rand.New(rand.NewSource(seed))}
}

// At returns the reading elapsed into the trace. Jitter is drawn from the seeded source,
// so equal seeds and equal call sequences give equal traces.
func (s *Simulator) At(elapsed time.Duration) Sample {
	t := elapsed.Seconds()
	fhr := s.baseline + fhrAmplitude*math.Sin(2*math.Pi*t/fhrPeriod) + s.jitter(fhrJitter)
	uc := ucBase + ucAmplitude*math.Sin(2*math.Pi*t/ucPeriod) + s.jitter(ucJitter)
	if uc < 0 {
		uc = 0
	}
	return Sample{Elapsed: t, FHR: fhr, UC: uc}
}

func (s *Simulator) jitter(width float64) float64 {
	return (s.rng.Float64()*2 - 1) * width
}
