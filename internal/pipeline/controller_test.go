package pipeline

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/readaloud-dev/readaloud/internal/audio"
	"github.com/readaloud-dev/readaloud/internal/config"
	"github.com/readaloud-dev/readaloud/internal/synth"
)

// indexEngine synthesizes the chunk's own index: the text must be a
// number n, and the output is samplesPer samples all valued n+1. That
// makes playback order visible in the sink's sample log.
type indexEngine struct {
	samplesPer int
	rate       int

	mu      sync.Mutex
	delays  map[string]time.Duration
	fail    map[string]error
	started []int
	calls   int
}

func newIndexEngine() *indexEngine {
	return &indexEngine{
		samplesPer: 4,
		rate:       8000,
		delays:     make(map[string]time.Duration),
		fail:       make(map[string]error),
	}
}

func (e *indexEngine) Name() string { return "index" }

func (e *indexEngine) Synthesize(ctx context.Context, text string, opts synth.Options) ([]float32, int, error) {
	idx, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return nil, 0, err
	}

	e.mu.Lock()
	e.calls++
	e.started = append(e.started, idx)
	delay := e.delays[text]
	failErr := e.fail[text]
	e.mu.Unlock()

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

	out := make([]float32, e.samplesPer)
	for i := range out {
		out[i] = float32(idx + 1)
	}
	return out, e.rate, nil
}

func (e *indexEngine) startedIndexes() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]int, len(e.started))
	copy(out, e.started)
	return out
}

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		Workers:          4,
		AheadLimit:       15,
		FrameSize:        4,
		SynthesisTimeout: 5 * time.Second,
		JoinTimeout:      time.Second,
	}
}

func chunkTexts(n int) []string {
	texts := make([]string, n)
	for i := range texts {
		texts[i] = strconv.Itoa(i)
	}
	return texts
}

func recordStates(ctl *Controller) <-chan State {
	ch := make(chan State, 64)
	ctl.OnStateChange(func(s State) { ch <- s })
	return ch
}

func awaitState(t *testing.T, states <-chan State, want State) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case s := <-states:
			if s == want {
				return
			}
			if s == StateFailed && want != StateFailed {
				t.Fatalf("pipeline failed while waiting for %s", want)
			}
		case <-timeout:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func TestStartRejectsEmptyInput(t *testing.T) {
	ctl := New(newIndexEngine(), func() audio.Sink { return audio.NewMockSink() }, testPipelineConfig())
	if err := ctl.Start(nil, synth.Options{}); !errors.Is(err, ErrNoChunks) {
		t.Fatalf("Start(nil) = %v, want ErrNoChunks", err)
	}
}

func TestStartWhileRunning(t *testing.T) {
	sink := audio.NewMockSink()
	sink.WriteDelay = 20 * time.Millisecond
	ctl := New(newIndexEngine(), func() audio.Sink { return sink }, testPipelineConfig())
	states := recordStates(ctl)

	if err := ctl.Start(chunkTexts(10), synth.Options{}); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	awaitState(t, states, StateRunning)

	if err := ctl.Start(chunkTexts(1), synth.Options{}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second Start() = %v, want ErrInvalidState", err)
	}
	ctl.Stop()
}

func TestPlaysInOrderDespiteOutOfOrderCompletion(t *testing.T) {
	engine := newIndexEngine()
	// The first chunk finishes last; playback must still begin with it.
	engine.delays["0"] = 40 * time.Millisecond
	sink := audio.NewMockSink()
	ctl := New(engine, func() audio.Sink { return sink }, testPipelineConfig())
	states := recordStates(ctl)

	texts := chunkTexts(4)
	if err := ctl.Start(texts, synth.Options{}); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	awaitState(t, states, StateCompleted)

	samples := sink.Samples()
	if len(samples) != len(texts)*engine.samplesPer {
		t.Fatalf("got %d samples, want %d", len(samples), len(texts)*engine.samplesPer)
	}
	for i := range texts {
		if got, want := samples[i*engine.samplesPer], float32(i+1); got != want {
			t.Errorf("chunk at playback position %d has value %v, want %v", i, got, want)
		}
	}
	if sink.SampleRate() != engine.rate {
		t.Errorf("sink started at %d Hz, want %d", sink.SampleRate(), engine.rate)
	}
}

func TestFailedChunkIsSkipped(t *testing.T) {
	engine := newIndexEngine()
	engine.fail["1"] = errors.New("synthesis exploded")
	sink := audio.NewMockSink()
	ctl := New(engine, func() audio.Sink { return sink }, testPipelineConfig())
	states := recordStates(ctl)

	var reported []int
	var mu sync.Mutex
	ctl.OnChunkError(func(index int, err error) {
		mu.Lock()
		reported = append(reported, index)
		mu.Unlock()
	})

	if err := ctl.Start(chunkTexts(3), synth.Options{}); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	awaitState(t, states, StateCompleted)

	samples := sink.Samples()
	want := []float32{1, 1, 1, 1, 3, 3, 3, 3}
	if len(samples) != len(want) {
		t.Fatalf("got %d samples, want %d (failed chunk must be skipped)", len(samples), len(want))
	}
	for i := range want {
		if samples[i] != want[i] {
			t.Fatalf("samples[%d] = %v, want %v", i, samples[i], want[i])
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(reported) != 1 || reported[0] != 1 {
		t.Errorf("reported chunk errors = %v, want [1]", reported)
	}
	if ctl.ChunkErrors() != 1 {
		t.Errorf("ChunkErrors() = %d, want 1", ctl.ChunkErrors())
	}
	if ctl.LastError() != nil {
		t.Errorf("LastError() = %v, chunk failures must not be fatal", ctl.LastError())
	}
}

func TestSynthesisTimeoutSkipsChunk(t *testing.T) {
	engine := newIndexEngine()
	engine.delays["1"] = 500 * time.Millisecond
	sink := audio.NewMockSink()
	cfg := testPipelineConfig()
	cfg.SynthesisTimeout = 30 * time.Millisecond
	ctl := New(engine, func() audio.Sink { return sink }, cfg)
	states := recordStates(ctl)

	if err := ctl.Start(chunkTexts(3), synth.Options{}); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	awaitState(t, states, StateCompleted)

	if ctl.ChunkErrors() != 1 {
		t.Errorf("ChunkErrors() = %d, want 1", ctl.ChunkErrors())
	}
	if got := len(sink.Samples()); got != 2*engine.samplesPer {
		t.Errorf("got %d samples, want %d", got, 2*engine.samplesPer)
	}
}

func TestEmptyChunksSkipSynthesis(t *testing.T) {
	engine := newIndexEngine()
	sink := audio.NewMockSink()
	ctl := New(engine, func() audio.Sink { return sink }, testPipelineConfig())
	states := recordStates(ctl)

	if err := ctl.Start([]string{"0", "   ", "2"}, synth.Options{}); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	awaitState(t, states, StateCompleted)

	if engine.calls != 2 {
		t.Errorf("engine called %d times, want 2 (blank chunk must be skipped)", engine.calls)
	}
	want := []float32{1, 1, 1, 1, 3, 3, 3, 3}
	if got := sink.Samples(); len(got) != len(want) {
		t.Errorf("got %d samples, want %d", len(got), len(want))
	}
}

func TestPauseResume(t *testing.T) {
	engine := newIndexEngine()
	sink := audio.NewMockSink()
	sink.WriteDelay = 10 * time.Millisecond
	ctl := New(engine, func() audio.Sink { return sink }, testPipelineConfig())
	states := recordStates(ctl)

	if err := ctl.Start(chunkTexts(6), synth.Options{}); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	awaitState(t, states, StateRunning)
	time.Sleep(25 * time.Millisecond)

	ctl.Pause()
	awaitState(t, states, StatePaused)
	ctl.Pause() // repeated pause is a no-op

	before := len(sink.Writes())
	time.Sleep(60 * time.Millisecond)
	after := len(sink.Writes())
	// At most one in-flight frame may land after Pause.
	if after > before+1 {
		t.Errorf("writes advanced from %d to %d while paused", before, after)
	}

	ctl.Resume()
	ctl.Resume() // repeated resume is a no-op
	awaitState(t, states, StateCompleted)

	if got := len(sink.Samples()); got != 6*engine.samplesPer {
		t.Errorf("got %d samples after resume, want %d", got, 6*engine.samplesPer)
	}
}

func TestPauseResumeStopNoOpWhenIdle(t *testing.T) {
	ctl := New(newIndexEngine(), func() audio.Sink { return audio.NewMockSink() }, testPipelineConfig())

	ctl.Pause()
	ctl.Resume()
	ctl.Stop()

	if ctl.State() != StateIdle {
		t.Errorf("State() = %s, want idle", ctl.State())
	}
}

func TestStopReturnsToIdle(t *testing.T) {
	engine := newIndexEngine()
	sink := audio.NewMockSink()
	sink.WriteDelay = 20 * time.Millisecond
	ctl := New(engine, func() audio.Sink { return sink }, testPipelineConfig())
	states := recordStates(ctl)

	if err := ctl.Start(chunkTexts(20), synth.Options{}); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	awaitState(t, states, StateRunning)
	time.Sleep(30 * time.Millisecond)

	begin := time.Now()
	ctl.Stop()
	elapsed := time.Since(begin)

	if elapsed > 1500*time.Millisecond {
		t.Errorf("Stop took %v, want a bounded shutdown", elapsed)
	}
	if ctl.State() != StateIdle {
		t.Errorf("State() after Stop = %s, want idle", ctl.State())
	}
	if !sink.Closed() {
		t.Error("sink must be closed after Stop")
	}
	if ctl.LastError() != nil {
		t.Errorf("LastError() after Stop = %v, want nil", ctl.LastError())
	}
}

func TestSinkErrorIsFatal(t *testing.T) {
	engine := newIndexEngine()
	sink := audio.NewMockSink()
	sink.FailAfter = 2
	sink.FailErr = errors.New("device gone")
	ctl := New(engine, func() audio.Sink { return sink }, testPipelineConfig())
	states := recordStates(ctl)

	if err := ctl.Start(chunkTexts(5), synth.Options{}); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	awaitState(t, states, StateFailed)
	awaitState(t, states, StateIdle)

	var sinkErr *SinkError
	if !errors.As(ctl.LastError(), &sinkErr) {
		t.Fatalf("LastError() = %v, want *SinkError", ctl.LastError())
	}
}

func TestGenerationAheadWindow(t *testing.T) {
	engine := newIndexEngine()
	sink := audio.NewMockSink()
	sink.WriteDelay = 150 * time.Millisecond
	cfg := testPipelineConfig()
	cfg.AheadLimit = 2
	ctl := New(engine, func() audio.Sink { return sink }, cfg)
	states := recordStates(ctl)

	if err := ctl.Start(chunkTexts(10), synth.Options{}); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	awaitState(t, states, StateRunning)
	time.Sleep(100 * time.Millisecond)

	// Read the started set before the cursor: the cursor only grows, so
	// every recorded start must satisfy index <= cursor + ahead.
	started := engine.startedIndexes()
	played, _ := ctl.Progress()
	for _, idx := range started {
		if idx > played+cfg.AheadLimit {
			t.Errorf("synthesis of chunk %d started with playback at %d, beyond ahead window %d", idx, played, cfg.AheadLimit)
		}
	}

	ctl.Stop()
}

func TestPlayedDurationMatchesDirectSynthesis(t *testing.T) {
	engine := newIndexEngine()
	engine.delays["1"] = 20 * time.Millisecond // force out-of-order completion
	sink := audio.NewMockSink()
	ctl := New(engine, func() audio.Sink { return sink }, testPipelineConfig())
	states := recordStates(ctl)

	texts := chunkTexts(5)
	if err := ctl.Start(texts, synth.Options{}); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	awaitState(t, states, StateCompleted)

	direct := 0
	ref := newIndexEngine()
	for _, text := range texts {
		samples, _, err := ref.Synthesize(context.Background(), text, synth.Options{})
		if err != nil {
			t.Fatal(err)
		}
		direct += len(samples)
	}

	if got := len(sink.Samples()); got != direct {
		t.Errorf("played %d samples, direct synthesis yields %d: gaps, drops or duplication", got, direct)
	}
}

func TestImmediateStop(t *testing.T) {
	engine := newIndexEngine()
	for i := 0; i < 5; i++ {
		engine.delays[strconv.Itoa(i)] = 30 * time.Millisecond
	}
	sink := audio.NewMockSink()
	cfg := testPipelineConfig()
	cfg.Workers = 2
	cfg.AheadLimit = 2
	ctl := New(engine, func() audio.Sink { return sink }, cfg)

	if err := ctl.Start(chunkTexts(5), synth.Options{}); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	ctl.Stop()

	if ctl.State() != StateIdle {
		t.Errorf("State() after immediate stop = %s, want idle", ctl.State())
	}
	if !sink.Closed() {
		t.Error("sink must be closed after an immediate stop")
	}
}

func TestCompletionStateSequence(t *testing.T) {
	ctl := New(newIndexEngine(), func() audio.Sink { return audio.NewMockSink() }, testPipelineConfig())
	states := recordStates(ctl)

	if err := ctl.Start(chunkTexts(3), synth.Options{}); err != nil {
		t.Fatalf("Start() = %v", err)
	}

	for _, want := range []State{StateRunning, StateCompleted, StateIdle} {
		awaitState(t, states, want)
	}

	played, total := ctl.Progress()
	if played != 3 || total != 3 {
		t.Errorf("Progress() = %d/%d, want 3/3", played, total)
	}
}

func TestControllerIsReusable(t *testing.T) {
	engine := newIndexEngine()
	ctl := New(engine, func() audio.Sink { return audio.NewMockSink() }, testPipelineConfig())
	states := recordStates(ctl)

	for run := 0; run < 2; run++ {
		if err := ctl.Start(chunkTexts(2), synth.Options{}); err != nil {
			t.Fatalf("Start() run %d = %v", run, err)
		}
		awaitState(t, states, StateCompleted)
		awaitState(t, states, StateIdle)
	}

	if engine.calls != 4 {
		t.Errorf("engine called %d times over two runs, want 4", engine.calls)
	}
}

func TestBatchModeCapture(t *testing.T) {
	engine := newIndexEngine()
	sink := audio.NewMockSink()
	cfg := testPipelineConfig()
	cfg.BatchMode = true
	cfg.BatchGap = 2 * time.Millisecond // one 16-sample gap at 8 kHz
	ctl := New(engine, func() audio.Sink { return sink }, cfg)
	ctl.SetCapture(true)
	states := recordStates(ctl)

	if err := ctl.Start(chunkTexts(2), synth.Options{}); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	awaitState(t, states, StateCompleted)
	awaitState(t, states, StateIdle)

	captured, rate := ctl.Captured()
	if rate != engine.rate {
		t.Errorf("captured rate = %d, want %d", rate, engine.rate)
	}
	gap := int(float64(engine.rate) * cfg.BatchGap.Seconds())
	want := 2*engine.samplesPer + gap
	if len(captured) != want {
		t.Errorf("captured %d samples, want %d (two chunks plus one gap)", len(captured), want)
	}
}
