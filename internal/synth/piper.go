package synth

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/readaloud-dev/readaloud/internal/audio"
	"github.com/readaloud-dev/readaloud/internal/config"
)

// Piper synthesizes speech by running the piper binary once per chunk,
// reading raw 16-bit PCM from its stdout. A fresh process per call keeps
// the engine reentrant, so multiple workers can synthesize concurrently.
type Piper struct {
	cfg config.PiperConfig
}

// NewPiper creates a piper subprocess engine.
func NewPiper(cfg config.PiperConfig) *Piper {
	return &Piper{cfg: cfg}
}

// Name returns "piper".
func (p *Piper) Name() string { return "piper" }

// Synthesize runs piper on the text and converts its raw PCM output to
// float32 samples. Speed maps to piper's length scale (inverse of rate).
func (p *Piper) Synthesize(ctx context.Context, text string, opts Options) ([]float32, int, error) {
	args := []string{"--output-raw"}
	model := p.cfg.ModelPath
	if opts.Voice != "" {
		model = opts.Voice
	}
	if model != "" {
		args = append(args, "--model", model)
	}
	if opts.Speed > 0 && opts.Speed != 1.0 {
		args = append(args, "--length-scale", strconv.FormatFloat(1.0/opts.Speed, 'f', 3, 64))
	}
	if p.cfg.SpeakerID > 0 {
		args = append(args, "--speaker", strconv.Itoa(p.cfg.SpeakerID))
	}

	cmd := exec.CommandContext(ctx, p.cfg.Binary, args...)
	cmd.Stdin = bytes.NewBufferString(text + "\n")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, fmt.Errorf("piper failed: %w (stderr: %s)", err, stderr.String())
	}
	if len(output) == 0 {
		return nil, 0, ErrNoAudio
	}

	samples := audio.BytesToFloat32(output)
	log.Debug("piper synthesis complete", "chars", len(text), "samples", len(samples))
	return samples, p.cfg.SampleRate, nil
}
