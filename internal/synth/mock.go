package synth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/readaloud-dev/readaloud/internal/config"
)

// Mock is a deterministic engine for tests and dry runs. It produces
// silence sized by word count at a fixed rate, after an optional delay.
type Mock struct {
	cfg config.MockConfig

	mu        sync.Mutex
	calls     int
	failOn    map[string]error
	perText   map[string]time.Duration
	onStart   func(text string)
	completed []string
}

// NewMock creates a mock engine.
func NewMock(cfg config.MockConfig) *Mock {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 24000
	}
	if cfg.WordsPerMinute <= 0 {
		cfg.WordsPerMinute = 150
	}
	return &Mock{
		cfg:     cfg,
		failOn:  make(map[string]error),
		perText: make(map[string]time.Duration),
	}
}

// Name returns "mock".
func (m *Mock) Name() string { return "mock" }

// FailOn makes synthesis of exactly this text return err.
func (m *Mock) FailOn(text string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[text] = err
}

// DelayFor overrides the configured delay for exactly this text.
func (m *Mock) DelayFor(text string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.perText[text] = d
}

// OnStart registers a callback invoked at the start of every call.
func (m *Mock) OnStart(fn func(text string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStart = fn
}

// Calls returns the number of Synthesize invocations.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Completed returns the texts synthesized so far, in completion order.
func (m *Mock) Completed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.completed))
	copy(out, m.completed)
	return out
}

// Synthesize returns silence proportional to the word count of text.
func (m *Mock) Synthesize(ctx context.Context, text string, opts Options) ([]float32, int, error) {
	m.mu.Lock()
	m.calls++
	delay := m.cfg.Delay
	if d, ok := m.perText[text]; ok {
		delay = d
	}
	failErr := m.failOn[text]
	onStart := m.onStart
	m.mu.Unlock()

	if onStart != nil {
		onStart(text)
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
	}

	if failErr != nil {
		return nil, 0, failErr
	}

	words := len(strings.Fields(text))
	if words == 0 {
		words = 1
	}
	speed := opts.Speed
	if speed <= 0 {
		speed = 1.0
	}
	seconds := float64(words) * 60.0 / float64(m.cfg.WordsPerMinute) / speed
	n := int(seconds * float64(m.cfg.SampleRate))
	if n < 1 {
		n = 1
	}

	m.mu.Lock()
	m.completed = append(m.completed, text)
	m.mu.Unlock()

	return make([]float32, n), m.cfg.SampleRate, nil
}
