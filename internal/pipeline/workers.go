package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/readaloud-dev/readaloud/internal/synth"
)

// workerPool runs a fixed number of synthesis workers over a
// pre-populated chunk queue. Each worker pulls the next chunk, waits
// for its turn in the generation-ahead window, synthesizes it, and
// submits the result to the reorder buffer.
type workerPool struct {
	engine  synth.Engine
	opts    synth.Options
	buf     *ReorderBuffer
	queue   <-chan Chunk
	workers int
	ahead   int
	timeout time.Duration
	wg      sync.WaitGroup
}

func newWorkerPool(engine synth.Engine, opts synth.Options, buf *ReorderBuffer, queue <-chan Chunk, workers, ahead int, timeout time.Duration) *workerPool {
	return &workerPool{
		engine:  engine,
		opts:    opts,
		buf:     buf,
		queue:   queue,
		workers: workers,
		ahead:   ahead,
		timeout: timeout,
	}
}

func (p *workerPool) start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

func (p *workerPool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-p.queue:
			if !ok {
				return
			}
			if err := p.buf.WaitTurn(ctx, chunk.Index, p.ahead); err != nil {
				return
			}
			p.process(ctx, chunk, id)
		}
	}
}

func (p *workerPool) process(ctx context.Context, chunk Chunk, id int) {
	if strings.TrimSpace(chunk.Text) == "" {
		p.buf.Submit(Result{Index: chunk.Index})
		return
	}

	synthCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		synthCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	samples, rate, err := p.engine.Synthesize(synthCtx, chunk.Text, p.opts)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Warn("chunk synthesis failed", "worker", id, "chunk", chunk.Index, "error", err)
		p.buf.Submit(Result{Index: chunk.Index, Err: &SynthesisError{Index: chunk.Index, Err: err}})
		return
	}

	p.buf.Submit(Result{Index: chunk.Index, Samples: samples, SampleRate: rate})
}

// wait blocks until all workers have exited or the timeout elapses,
// reporting whether they all joined.
func (p *workerPool) wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
