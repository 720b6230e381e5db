package server

import (
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Stats tracks one session's pipeline counters and processing-latency
// moments. Sum-of-squares accumulators keep the variance calculation
// O(1) per sample.
type Stats struct {
	mu sync.Mutex

	received       int
	dropped        int
	decodeFailures int
	processed      int
	triggers       int

	latencySum  float64 // milliseconds
	latencySum2 float64
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) FrameReceived() {
	s.mu.Lock()
	s.received++
	s.mu.Unlock()
}

func (s *Stats) FrameDropped() {
	s.mu.Lock()
	s.dropped++
	s.mu.Unlock()
}

func (s *Stats) DecodeFailure() {
	s.mu.Lock()
	s.decodeFailures++
	s.mu.Unlock()
}

func (s *Stats) Trigger() {
	s.mu.Lock()
	s.triggers++
	s.mu.Unlock()
}

// FrameProcessed records one completed pipeline pass and returns the
// running processed count.
func (s *Stats) FrameProcessed(latency time.Duration) int {
	ms := float64(latency) / float64(time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
	s.latencySum += ms
	s.latencySum2 += ms * ms
	return s.processed
}

// Counts returns the headline counters.
func (s *Stats) Counts() (received, dropped, processed, triggers int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.received, s.dropped, s.processed, s.triggers
}

// DecodeFailures returns the count of undecodable frames skipped.
func (s *Stats) DecodeFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decodeFailures
}

// MeanLatency returns the mean pipeline latency in milliseconds.
func (s *Stats) MeanLatency() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meanLocked()
}

func (s *Stats) meanLocked() float64 {
	if s.processed == 0 {
		return 0
	}
	return s.latencySum / float64(s.processed)
}

// StdDevLatency returns the sample standard deviation of pipeline
// latency in milliseconds.
func (s *Stats) StdDevLatency() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processed < 2 {
		return 0
	}
	mean := s.meanLocked()
	variance := (s.latencySum2 - float64(s.processed)*mean*mean) / float64(s.processed-1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// LogSummary emits the end-of-session line.
func (s *Stats) LogSummary(logger *log.Logger) {
	received, dropped, processed, triggers := s.Counts()
	logger.Info("session summary",
		"frames", received,
		"processed", processed,
		"dropped", dropped,
		"decode_failures", s.DecodeFailures(),
		"triggers", triggers,
		"mean_latency_ms", s.MeanLatency(),
		"stddev_latency_ms", s.StdDevLatency(),
	)
}
