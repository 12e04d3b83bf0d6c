// Package audio provides audio output backends for the playback driver.
package audio

import "errors"

var (
	// ErrSinkClosed is returned when writing to a closed sink.
	ErrSinkClosed = errors.New("audio sink is closed")

	// ErrSinkNotStarted is returned when writing before Start.
	ErrSinkNotStarted = errors.New("audio sink is not started")

	// ErrSinkStarted is returned when starting an already started sink.
	ErrSinkStarted = errors.New("audio sink is already started")
)

// Sink accepts raw float32 sample frames for playback. Implementations are
// written to by a single goroutine; Start and Close may come from another.
type Sink interface {
	// Start opens the output device for the given format.
	Start(sampleRate, channels int) error

	// Write queues one frame of samples for playback. It may block while
	// the device drains earlier frames.
	Write(frame []float32) error

	// Close releases the device. Close is idempotent.
	Close() error
}
