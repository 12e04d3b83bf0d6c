package pipeline

import (
	"context"
	"sync"
)

// ReorderBuffer collects synthesis results that may arrive out of
// order and releases them strictly in chunk-index order. It also acts
// as the backpressure gate: workers call WaitTurn before synthesizing
// so that generation never runs more than the ahead limit past the
// playback cursor.
type ReorderBuffer struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending map[int]Result
	next    int
	closed  bool
}

func NewReorderBuffer() *ReorderBuffer {
	b := &ReorderBuffer{
		pending: make(map[int]Result),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Submit stores a completed result. Results for indices already
// released, duplicates, and submissions after Close are ignored.
func (b *ReorderBuffer) Submit(res Result) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || res.Index < b.next {
		return
	}
	if _, ok := b.pending[res.Index]; ok {
		return
	}
	b.pending[res.Index] = res
	b.cond.Broadcast()
}

// NextReady returns the result for the current playback cursor without
// blocking, advancing the cursor on success.
func (b *ReorderBuffer) NextReady() (Result, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	res, ok := b.pending[b.next]
	if !ok {
		return Result{}, false
	}
	delete(b.pending, b.next)
	b.next++
	b.cond.Broadcast()
	return res, true
}

// Await blocks until the result for the current playback cursor is
// available, then advances the cursor and returns it. It returns
// ctx.Err() if the context is canceled and ErrBufferClosed after
// Close.
func (b *ReorderBuffer) Await(ctx context.Context) (Result, error) {
	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		b.cond.Broadcast()
		b.mu.Unlock()
	})
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if b.closed {
			return Result{}, ErrBufferClosed
		}
		if res, ok := b.pending[b.next]; ok {
			delete(b.pending, b.next)
			b.next++
			b.cond.Broadcast()
			return res, nil
		}
		b.cond.Wait()
	}
}

// WaitTurn blocks until index is within the generation-ahead window,
// index <= cursor + ahead. Workers call this before starting
// synthesis, which bounds how far completions can run past playback.
func (b *ReorderBuffer) WaitTurn(ctx context.Context, index, ahead int) error {
	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		b.cond.Broadcast()
		b.mu.Unlock()
	})
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()

	for index > b.next+ahead {
		if err := ctx.Err(); err != nil {
			return err
		}
		if b.closed {
			return ErrBufferClosed
		}
		b.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.closed {
		return ErrBufferClosed
	}
	return nil
}

// NextIndex returns the current playback cursor.
func (b *ReorderBuffer) NextIndex() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.next
}

// Close discards pending results and wakes all waiters. It is
// idempotent.
func (b *ReorderBuffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	b.pending = make(map[int]Result)
	b.cond.Broadcast()
}
