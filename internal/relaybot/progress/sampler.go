package progress

import (
	"sync"
	"time"
)

// DefaultSampleWindow bounds how far back rate samples count.
const DefaultSampleWindow = 6 * time.Second

type sample struct {
	at    time.Time
	bytes int64
}

// RateSampler turns (timestamp, cumulative bytes) observations into a
// smoothed transfer rate and an ETA. Samples older than the window,
// measured against the newest observation, fall out; the rate is the
// byte delta across the surviving window. A full-history average would
// understate current throughput after a slow start.
type RateSampler struct {
	window  time.Duration
	mu      sync.Mutex
	samples []sample
}

func NewRateSampler(window time.Duration) *RateSampler {
	if window <= 0 {
		window = DefaultSampleWindow
	}
	return &RateSampler{window: window}
}

// Observe records one cumulative byte count and prunes samples that
// aged out of the window.
func (s *RateSampler) Observe(at time.Time, cumulativeBytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = append(s.samples, sample{at: at, bytes: cumulativeBytes})

	oldest := at.Add(-s.window)
	cut := 0
	for cut < len(s.samples)-1 && s.samples[cut].at.Before(oldest) {
		cut++
	}
	if cut > 0 {
		s.samples = append(s.samples[:0], s.samples[cut:]...)
	}
}

// Rate returns the current transfer rate in bytes per second. With
// fewer than two samples in the window the rate is zero.
func (s *RateSampler) Rate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.samples) < 2 {
		return 0
	}

	first := s.samples[0]
	last := s.samples[len(s.samples)-1]
	span := last.at.Sub(first.at).Seconds()
	if span <= 0 {
		return 0
	}

	rate := float64(last.bytes-first.bytes) / span
	if rate < 0 {
		return 0
	}
	return rate
}

// ETA estimates how long the remaining bytes will take at the current
// rate. The second return is false while no estimate exists.
func (s *RateSampler) ETA(remainingBytes int64) (time.Duration, bool) {
	if remainingBytes <= 0 {
		return 0, true
	}

	rate := s.Rate()
	if rate <= 0 {
		return 0, false
	}

	return time.Duration(float64(remainingBytes) / rate * float64(time.Second)), true
}
