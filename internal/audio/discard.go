package audio

import "sync"

// DiscardSink accepts and drops all audio. It is used when playback is
// not wanted, e.g. batch synthesis straight to a WAV file.
type DiscardSink struct {
	mu      sync.Mutex
	started bool
	closed  bool
}

func NewDiscardSink() *DiscardSink {
	return &DiscardSink{}
}

func (s *DiscardSink) Start(sampleRate, channels int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	s.started = true
	return nil
}

func (s *DiscardSink) Write(frame []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	if !s.started {
		return ErrSinkNotStarted
	}
	return nil
}

func (s *DiscardSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
