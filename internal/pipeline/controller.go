package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/readaloud-dev/readaloud/internal/audio"
	"github.com/readaloud-dev/readaloud/internal/config"
	"github.com/readaloud-dev/readaloud/internal/synth"
)

// Controller owns one playback run at a time: it builds the work
// queue, starts the worker pool and playback driver, and exposes the
// Pause/Resume/Stop controls. A Controller is reusable; it returns to
// Idle after every run and Start may then be called again.
type Controller struct {
	engine  synth.Engine
	newSink func() audio.Sink
	cfg     config.PipelineConfig

	mu        sync.Mutex
	machine   *stateMachine
	buf       *ReorderBuffer
	gate      *pauseGate
	cancel    context.CancelFunc
	done      chan struct{}
	sink      audio.Sink
	total     int
	lastErr   error
	chunkErrs int

	capture      bool
	captured     []float32
	capturedRate int

	onStateChange func(State)
	onChunkError  func(index int, err error)
}

// New builds a Controller around an engine and a sink factory. A fresh
// sink is created for every run so that a stopped run's device handle
// is never reused.
func New(engine synth.Engine, newSink func() audio.Sink, cfg config.PipelineConfig) *Controller {
	if cfg.SerializeSynthesis {
		engine = synth.Serialize(engine)
	}
	return &Controller{
		engine:  engine,
		newSink: newSink,
		cfg:     cfg,
		machine: newStateMachine(),
	}
}

// OnStateChange registers a callback invoked after every state
// transition. Set it before calling Start.
func (c *Controller) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStateChange = fn
}

// OnChunkError registers a callback invoked once per chunk whose
// synthesis failed. Set it before calling Start.
func (c *Controller) OnChunkError(fn func(index int, err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChunkError = fn
}

// SetCapture enables recording of all played samples so they can be
// retrieved with Captured after a completed run.
func (c *Controller) SetCapture(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capture = enabled
}

// Captured returns the samples played during the last completed run
// and their sample rate. It is only populated when capture is enabled.
func (c *Controller) Captured() ([]float32, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.captured, c.capturedRate
}

// Start begins playing the given text chunks. It is only valid from
// Idle and returns ErrInvalidState otherwise. Start returns as soon as
// the pipeline is launched; completion is reported via OnStateChange.
func (c *Controller) Start(texts []string, opts synth.Options) error {
	if len(texts) == 0 {
		return ErrNoChunks
	}

	c.mu.Lock()
	if !c.machine.transition(StateRunning) {
		current := c.machine.current()
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot start while %s", ErrInvalidState, current)
	}

	c.total = len(texts)
	c.lastErr = nil
	c.chunkErrs = 0
	c.captured = nil
	c.capturedRate = 0
	c.buf = NewReorderBuffer()
	c.gate = newPauseGate()
	c.done = make(chan struct{})
	c.sink = c.newSink()

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	queue := make(chan Chunk, len(texts))
	for i, text := range texts {
		queue <- Chunk{Index: i, Text: text}
	}
	close(queue)

	ahead := c.cfg.AheadLimit
	gap := time.Duration(0)
	if c.cfg.BatchMode {
		// Batch mode synthesizes everything up front and inserts a
		// short silence between chunks.
		ahead = len(texts)
		gap = c.cfg.BatchGap
	}

	pool := newWorkerPool(c.engine, opts, c.buf, queue, c.cfg.Workers, ahead, c.cfg.SynthesisTimeout)
	driver := newPlaybackDriver(c.sink, c.buf, c.gate, c.cfg.FrameSize, len(texts), gap, c.capture, c.reportChunkError)

	buf, sink, done := c.buf, c.sink, c.done
	c.mu.Unlock()

	c.notify(StateRunning)

	pool.start(ctx)
	go c.supervise(ctx, cancel, pool, driver, buf, sink, done)
	return nil
}

// supervise runs the playback driver to completion, then tears down
// the run: workers are joined with a bounded timeout and the sink is
// closed before the terminal state is decided.
func (c *Controller) supervise(ctx context.Context, cancel context.CancelFunc, pool *workerPool, driver *playbackDriver, buf *ReorderBuffer, sink audio.Sink, done chan struct{}) {
	err := driver.run(ctx)

	cancel()
	buf.Close()
	if !pool.wait(c.cfg.JoinTimeout) {
		log.Warn("synthesis workers did not exit in time, abandoning them", "timeout", c.cfg.JoinTimeout)
	}
	if cerr := sink.Close(); cerr != nil {
		log.Warn("closing audio sink", "error", cerr)
	}
	close(done)

	c.finish(err, driver)
}

func (c *Controller) finish(err error, driver *playbackDriver) {
	c.mu.Lock()

	if errors.Is(err, context.Canceled) || errors.Is(err, ErrBufferClosed) {
		// Stopped: Stop owns the transition back to Idle.
		c.mu.Unlock()
		return
	}

	if err == nil {
		if c.capture {
			c.captured = driver.exported
			c.capturedRate = driver.rate
		}
		if !c.machine.transition(StateCompleted) {
			// A stop raced completion; let Stop finish the teardown.
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		c.notify(StateCompleted)
	} else {
		c.lastErr = err
		if !c.machine.transition(StateFailed) {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		c.notify(StateFailed)
	}

	c.mu.Lock()
	c.machine.transition(StateIdle)
	c.mu.Unlock()
	c.notify(StateIdle)
}

// Pause suspends playback at the next frame boundary. It is a no-op
// outside the Running state.
func (c *Controller) Pause() {
	c.mu.Lock()
	if c.machine.current() != StateRunning || !c.machine.transition(StatePaused) {
		c.mu.Unlock()
		return
	}
	gate := c.gate
	c.mu.Unlock()

	gate.setPaused(true)
	c.notify(StatePaused)
}

// Resume continues playback from where Pause left it, including
// mid-chunk. It is a no-op outside the Paused state.
func (c *Controller) Resume() {
	c.mu.Lock()
	if c.machine.current() != StatePaused || !c.machine.transition(StateRunning) {
		c.mu.Unlock()
		return
	}
	gate := c.gate
	c.mu.Unlock()

	gate.setPaused(false)
	c.notify(StateRunning)
}

// Stop aborts the current run. It cancels synthesis and playback,
// waits a bounded time for the pipeline to drain, and returns the
// controller to Idle. It is a no-op when nothing is running.
func (c *Controller) Stop() {
	c.mu.Lock()
	current := c.machine.current()
	if current != StateRunning && current != StatePaused {
		c.mu.Unlock()
		return
	}
	c.machine.transition(StateStopping)
	cancel, done, sink := c.cancel, c.done, c.sink
	timeout := c.cfg.JoinTimeout
	c.mu.Unlock()

	c.notify(StateStopping)
	cancel()

	select {
	case <-done:
	case <-time.After(timeout):
		log.Warn("pipeline did not shut down in time, forcing sink closed", "timeout", timeout)
		_ = sink.Close()
	}

	c.mu.Lock()
	c.machine.transition(StateIdle)
	c.mu.Unlock()
	c.notify(StateIdle)
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.current()
}

// Progress reports how many chunks have been released for playback
// and the total chunk count of the current or last run.
func (c *Controller) Progress() (played, total int) {
	c.mu.Lock()
	buf, total := c.buf, c.total
	c.mu.Unlock()

	if buf == nil {
		return 0, total
	}
	played = buf.NextIndex()
	if played > total {
		played = total
	}
	return played, total
}

// Status returns a short human-readable description of the pipeline.
func (c *Controller) Status() string {
	switch st := c.State(); st {
	case StateRunning, StatePaused, StateStopping:
		played, total := c.Progress()
		return fmt.Sprintf("%s %d/%d", st, played, total)
	default:
		return st.String()
	}
}

// LastError returns the fatal error of the last run, if any. Per-chunk
// synthesis failures are not fatal and are reported via OnChunkError.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// ChunkErrors returns how many chunks failed to synthesize during the
// current or last run.
func (c *Controller) ChunkErrors() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chunkErrs
}

func (c *Controller) reportChunkError(index int, err error) {
	c.mu.Lock()
	c.chunkErrs++
	fn := c.onChunkError
	c.mu.Unlock()

	if fn != nil {
		fn(index, err)
	}
}

func (c *Controller) notify(st State) {
	c.mu.Lock()
	fn := c.onStateChange
	c.mu.Unlock()

	if fn != nil {
		fn(st)
	}
}
