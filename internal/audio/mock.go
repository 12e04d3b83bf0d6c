package audio

import (
	"sync"
	"time"
)

// WriteRecord captures one frame written to a MockSink.
type WriteRecord struct {
	Samples int
	At      time.Time
}

// MockSink records writes for tests. It can delay writes to simulate a
// real device draining at playback speed, and fail after a set number of
// writes to exercise fatal sink error paths.
type MockSink struct {
	mu      sync.Mutex
	started bool
	closed  bool
	rate    int
	chans   int

	writes  []WriteRecord
	samples []float32

	// WriteDelay is applied to every Write before returning.
	WriteDelay time.Duration

	// FailAfter, when > 0, makes the nth Write (1-based) return FailErr.
	FailAfter int
	FailErr   error

	writeCount int
}

// NewMockSink creates a mock sink.
func NewMockSink() *MockSink {
	return &MockSink{}
}

// Start records the output format.
func (s *MockSink) Start(sampleRate, channels int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	if s.started {
		return ErrSinkStarted
	}
	s.started = true
	s.rate = sampleRate
	s.chans = channels
	return nil
}

// Write records the frame.
func (s *MockSink) Write(frame []float32) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSinkClosed
	}
	if !s.started {
		s.mu.Unlock()
		return ErrSinkNotStarted
	}
	s.writeCount++
	if s.FailAfter > 0 && s.writeCount >= s.FailAfter {
		err := s.FailErr
		s.mu.Unlock()
		return err
	}
	s.writes = append(s.writes, WriteRecord{Samples: len(frame), At: time.Now()})
	s.samples = append(s.samples, frame...)
	delay := s.WriteDelay
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	return nil
}

// Close marks the sink closed.
func (s *MockSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Started reports whether Start was called.
func (s *MockSink) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Closed reports whether Close was called.
func (s *MockSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// SampleRate returns the rate passed to Start.
func (s *MockSink) SampleRate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate
}

// Writes returns a copy of the recorded write log.
func (s *MockSink) Writes() []WriteRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]WriteRecord, len(s.writes))
	copy(out, s.writes)
	return out
}

// Samples returns a copy of all samples written, in write order.
func (s *MockSink) Samples() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float32, len(s.samples))
	copy(out, s.samples)
	return out
}
