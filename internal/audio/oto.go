package audio

import (
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// otoContext wraps the process-wide oto context. oto allows only one
// context per process, so it is created once at the first Start and reused;
// the sample rate of the first run fixes the device rate.
var (
	otoCtx     *oto.Context
	otoCtxRate int
	otoCtxOnce sync.Once
	otoCtxErr  error
)

func getOtoContext(sampleRate, channels int) (*oto.Context, error) {
	otoCtxOnce.Do(func() {
		options := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatSignedInt16LE,
		}
		switch runtime.GOOS {
		case "darwin":
			options.BufferSize = 100 * time.Millisecond
		default:
			options.BufferSize = 50 * time.Millisecond
		}

		ctx, ready, err := oto.NewContext(options)
		if err != nil {
			otoCtxErr = fmt.Errorf("creating audio context: %w", err)
			return
		}
		<-ready
		otoCtx = ctx
		otoCtxRate = sampleRate
	})
	if otoCtxErr != nil {
		return nil, otoCtxErr
	}
	if sampleRate != otoCtxRate {
		return nil, fmt.Errorf("audio context already opened at %d Hz, cannot reopen at %d Hz", otoCtxRate, sampleRate)
	}
	return otoCtx, nil
}

// OtoSink plays frames through the default output device using oto.
// Frames are fed to the device through a pipe, so Write blocks once the
// device buffer is full, pacing the caller at playback speed.
type OtoSink struct {
	mu      sync.Mutex
	player  *oto.Player
	pw      *io.PipeWriter
	started bool
	closed  bool
}

// NewOtoSink creates an unstarted oto sink.
func NewOtoSink() *OtoSink {
	return &OtoSink{}
}

// Start opens the output device.
func (s *OtoSink) Start(sampleRate, channels int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}
	if s.started {
		return ErrSinkStarted
	}

	ctx, err := getOtoContext(sampleRate, channels)
	if err != nil {
		return err
	}

	pr, pw := io.Pipe()
	player := ctx.NewPlayer(pr)
	player.Play()

	s.player = player
	s.pw = pw
	s.started = true
	return nil
}

// Write queues one frame. Blocks while the device drains earlier frames.
func (s *OtoSink) Write(frame []float32) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSinkClosed
	}
	if !s.started {
		s.mu.Unlock()
		return ErrSinkNotStarted
	}
	pw := s.pw
	s.mu.Unlock()

	// Write outside the lock: the pipe blocks until the player consumes
	// the data, and Close must stay callable meanwhile.
	if _, err := pw.Write(Float32ToBytes(frame)); err != nil {
		if err == io.ErrClosedPipe {
			return ErrSinkClosed
		}
		return fmt.Errorf("writing audio frame: %w", err)
	}
	return nil
}

// Close stops playback and releases the player. The shared context stays
// open for later runs.
func (s *OtoSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.pw != nil {
		s.pw.Close()
	}
	if s.player != nil {
		if err := s.player.Close(); err != nil {
			return fmt.Errorf("closing audio player: %w", err)
		}
	}
	return nil
}
