package job

import (
	"sync"
	"time"
)

type speedSample struct {
	at    time.Time
	bytes int64
}

// SpeedMeter computes instantaneous throughput from a short sliding
// window of byte-count samples rather than a lifetime average.
type SpeedMeter struct {
	mu      sync.Mutex
	window  time.Duration
	samples []speedSample
}

// NewSpeedMeter creates a meter with the given window size.
func NewSpeedMeter(window time.Duration) *SpeedMeter {
	if window <= 0 {
		window = 3 * time.Second
	}

	return &SpeedMeter{window: window}
}

// Add records n bytes received now. Safe for concurrent use.
func (s *SpeedMeter) Add(n int64) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = append(s.samples, speedSample{at: now, bytes: n})
	s.prune(now)
}

// Speed returns the current throughput in bytes per second.
func (s *SpeedMeter) Speed() int64 {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.prune(now)

	if len(s.samples) == 0 {
		return 0
	}

	var total int64
	for _, sample := range s.samples {
		total += sample.bytes
	}

	elapsed := now.Sub(s.samples[0].at)
	if elapsed < 100*time.Millisecond {
		elapsed = 100 * time.Millisecond
	}

	return int64(float64(total) / elapsed.Seconds())
}

// prune drops samples older than the window. Caller holds the lock.
func (s *SpeedMeter) prune(now time.Time) {
	cutoff := now.Add(-s.window)

	i := 0
	for i < len(s.samples) && s.samples[i].at.Before(cutoff) {
		i++
	}

	if i > 0 {
		s.samples = append(s.samples[:0], s.samples[i:]...)
	}
}
