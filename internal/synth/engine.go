// Package synth provides text-to-speech synthesis backends.
package synth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/readaloud-dev/readaloud/internal/config"
)

var (
	// ErrNoAudio is returned when an engine produces no samples.
	ErrNoAudio = errors.New("engine produced no audio")

	// ErrUnknownEngine is returned for an unrecognized engine name.
	ErrUnknownEngine = errors.New("unknown synthesis engine")
)

// Options carries the voice parameters for a synthesis call.
type Options struct {
	// Voice is the engine-specific voice identifier. Empty selects the
	// engine default.
	Voice string

	// Speed is the speech rate multiplier (1.0 = normal).
	Speed float64
}

// Engine converts a text chunk into raw mono audio samples.
type Engine interface {
	// Name returns the engine identifier.
	Name() string

	// Synthesize converts text to mono float32 samples, returning the
	// samples and their sample rate in Hz.
	Synthesize(ctx context.Context, text string, opts Options) ([]float32, int, error)
}

// New creates the engine selected by cfg.Engine.
func New(cfg config.Config) (Engine, error) {
	switch cfg.Engine {
	case "piper":
		return NewPiper(cfg.Piper), nil
	case "edge":
		return NewEdge(cfg.Edge), nil
	case "mock":
		return NewMock(cfg.Mock), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, cfg.Engine)
	}
}

// serialized wraps an engine that is not safely reentrant, forcing
// synthesis calls through a shared lock.
type serialized struct {
	mu    sync.Mutex
	inner Engine
}

// Serialize returns an Engine that allows only one concurrent Synthesize
// call on inner. Use for backends that are not safe to invoke from
// multiple workers at once.
func Serialize(inner Engine) Engine {
	return &serialized{inner: inner}
}

func (s *serialized) Name() string { return s.inner.Name() }

func (s *serialized) Synthesize(ctx context.Context, text string, opts Options) ([]float32, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Synthesize(ctx, text, opts)
}
