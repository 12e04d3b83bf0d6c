package audio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// MalgoSink plays frames through a miniaudio playback device. Useful where
// oto's backend is unavailable. Frames are handed to the device callback
// through a bounded channel of PCM bytes; Write blocks when the channel is
// full, pacing the caller at playback speed.
type MalgoSink struct {
	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	frames  chan []byte
	done    chan struct{}
	pending []byte
	started bool
	closed  bool
}

// NewMalgoSink creates an unstarted miniaudio sink.
func NewMalgoSink() *MalgoSink {
	return &MalgoSink{}
}

// Start opens the default playback device.
func (s *MalgoSink) Start(sampleRate, channels int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}
	if s.started {
		return ErrSinkStarted
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("initializing audio context: %w", err)
	}

	s.frames = make(chan []byte, 4)
	s.done = make(chan struct{})

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.PeriodSizeInFrames = 512
	deviceConfig.Periods = 2

	callbacks := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, frameCount uint32) {
			s.fill(output)
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("initializing playback device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("starting playback device: %w", err)
	}

	s.ctx = ctx
	s.device = device
	s.started = true
	return nil
}

// fill copies queued PCM into the device buffer, zero-filling when no data
// is pending. Runs on the device thread.
func (s *MalgoSink) fill(output []byte) {
	pos := 0
	for pos < len(output) {
		if len(s.pending) == 0 {
			select {
			case b, ok := <-s.frames:
				if ok {
					s.pending = b
					continue
				}
			default:
			}
			// Underrun or drained: pad with silence.
			for i := pos; i < len(output); i++ {
				output[i] = 0
			}
			return
		}
		n := copy(output[pos:], s.pending)
		s.pending = s.pending[n:]
		pos += n
	}
}

// Write queues one frame for playback.
func (s *MalgoSink) Write(frame []float32) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSinkClosed
	}
	if !s.started {
		s.mu.Unlock()
		return ErrSinkNotStarted
	}
	frames, done := s.frames, s.done
	s.mu.Unlock()

	select {
	case frames <- Float32ToBytes(frame):
		return nil
	case <-done:
		return ErrSinkClosed
	}
}

// Close stops and releases the device.
func (s *MalgoSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.done != nil {
		close(s.done)
	}
	if s.device != nil {
		_ = s.device.Stop()
		s.device.Uninit()
		s.device = nil
	}
	if s.ctx != nil {
		_ = s.ctx.Uninit()
		s.ctx.Free()
		s.ctx = nil
	}
	return nil
}
