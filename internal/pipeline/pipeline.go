// Package pipeline implements the streaming synthesis/playback pipeline:
// a bounded work queue feeding a pool of synthesis workers, a reorder
// buffer that releases completed chunks in text order, and a playback
// driver that writes frames to the audio sink with pause/resume/stop
// semantics. The Controller owns the lifecycle of all of it.
package pipeline

import (
	"errors"
	"fmt"
)

// Defaults for the pipeline configuration.
const (
	DefaultWorkers    = 4
	DefaultAheadLimit = 15
	DefaultFrameSize  = 1024
)

var (
	// ErrInvalidState is returned when a control call is issued in a
	// state that forbids it.
	ErrInvalidState = errors.New("invalid state for operation")

	// ErrNoChunks is returned when Start is given no text to play.
	ErrNoChunks = errors.New("no chunks to play")

	// ErrBufferClosed is returned from blocking buffer waits after the
	// buffer has been closed.
	ErrBufferClosed = errors.New("reorder buffer is closed")
)

// Chunk is one unit of text awaiting synthesis. Index is the chunk's
// position in the original text; indices are contiguous starting at 0.
type Chunk struct {
	Index int
	Text  string
}

// Result is the outcome of synthesizing one chunk. Either Samples (with
// SampleRate) or Err is set; an empty chunk yields both nil, a no-op
// success.
type Result struct {
	Index      int
	Samples    []float32
	SampleRate int
	Err        error
}

// SynthesisError reports a chunk that failed to synthesize. Per-chunk
// failures are isolated: the chunk is skipped in playback and the run
// continues.
type SynthesisError struct {
	Index int
	Err   error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("chunk %d: synthesis failed: %v", e.Index, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// SinkError reports an audio device failure. Sink errors are fatal for
// the run.
type SinkError struct {
	Err error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("audio sink failed: %v", e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }
