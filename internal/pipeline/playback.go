package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/readaloud-dev/readaloud/internal/audio"
)

// pauseGate blocks the playback driver between frames while paused.
type pauseGate struct {
	mu     sync.Mutex
	cond   *sync.Cond
	paused bool
}

func newPauseGate() *pauseGate {
	g := &pauseGate{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

func (g *pauseGate) setPaused(paused bool) {
	g.mu.Lock()
	g.paused = paused
	g.mu.Unlock()
	g.cond.Broadcast()
}

// wait blocks while the gate is paused. It returns ctx.Err() if the
// context is canceled while waiting.
func (g *pauseGate) wait(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		g.mu.Lock()
		g.cond.Broadcast()
		g.mu.Unlock()
	})
	defer stop()

	g.mu.Lock()
	defer g.mu.Unlock()

	for g.paused {
		if err := ctx.Err(); err != nil {
			return err
		}
		g.cond.Wait()
	}
	return ctx.Err()
}

// playbackDriver consumes results from the reorder buffer in order and
// writes them to the sink frame by frame. Pause and stop are observed
// at frame boundaries, so response latency is bounded by one frame.
type playbackDriver struct {
	sink      audio.Sink
	buf       *ReorderBuffer
	gate      *pauseGate
	frameSize int
	total     int
	gap       time.Duration
	onError   func(index int, err error)

	started  bool
	rate     int
	exported []float32
	export   bool
}

func newPlaybackDriver(sink audio.Sink, buf *ReorderBuffer, gate *pauseGate, frameSize, total int, gap time.Duration, export bool, onError func(int, error)) *playbackDriver {
	return &playbackDriver{
		sink:      sink,
		buf:       buf,
		gate:      gate,
		frameSize: frameSize,
		total:     total,
		gap:       gap,
		export:    export,
		onError:   onError,
	}
}

// run plays every chunk in order. It returns nil on completion, the
// context error on stop, and a *SinkError on device failure.
func (d *playbackDriver) run(ctx context.Context) error {
	for played := 0; played < d.total; played++ {
		res, err := d.buf.Await(ctx)
		if err != nil {
			return err
		}

		if res.Err != nil {
			log.Warn("skipping failed chunk", "chunk", res.Index, "error", res.Err)
			if d.onError != nil {
				d.onError(res.Index, res.Err)
			}
			continue
		}
		if len(res.Samples) == 0 {
			continue
		}

		if !d.started {
			if err := d.sink.Start(res.SampleRate, 1); err != nil {
				return &SinkError{Err: err}
			}
			d.started = true
			d.rate = res.SampleRate
		}

		if err := d.writeFrames(ctx, res.Samples); err != nil {
			return err
		}

		if d.gap > 0 && res.Index < d.total-1 {
			silence := make([]float32, int(float64(d.rate)*d.gap.Seconds()))
			if err := d.writeFrames(ctx, silence); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *playbackDriver) writeFrames(ctx context.Context, samples []float32) error {
	for off := 0; off < len(samples); off += d.frameSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.gate.wait(ctx); err != nil {
			return err
		}

		end := off + d.frameSize
		if end > len(samples) {
			end = len(samples)
		}
		frame := samples[off:end]
		if err := d.sink.Write(frame); err != nil {
			return &SinkError{Err: err}
		}
		if d.export {
			d.exported = append(d.exported, frame...)
		}
	}
	return nil
}
