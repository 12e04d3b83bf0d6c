package synth

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/hajimehoshi/go-mp3"
	"github.com/pp-group/edge-tts-go/biz/service/tts/edge"

	"github.com/readaloud-dev/readaloud/internal/config"
)

// Edge synthesizes speech through the Microsoft Edge TTS service. The
// service streams MP3, which is decoded to PCM and downmixed to mono.
// Network-bound, so concurrent calls from multiple workers are fine.
type Edge struct {
	cfg config.EdgeConfig
}

// NewEdge creates an Edge TTS engine.
func NewEdge(cfg config.EdgeConfig) *Edge {
	return &Edge{cfg: cfg}
}

// Name returns "edge".
func (e *Edge) Name() string { return "edge" }

// Synthesize fetches MP3 audio for the text and decodes it to mono
// float32 samples. The service ignores the speed option; rate shaping is
// not supported by this backend.
func (e *Edge) Synthesize(ctx context.Context, text string, opts Options) ([]float32, int, error) {
	voice := opts.Voice
	if voice == "" {
		voice = e.cfg.Voice
	}

	comm, err := edge.NewCommunicate(text, edge.WithVoice(voice))
	if err != nil {
		return nil, 0, fmt.Errorf("edge-tts setup: %w", err)
	}

	ch, err := comm.Stream()
	if err != nil {
		return nil, 0, fmt.Errorf("edge-tts stream: %w", err)
	}

	var mp3Buf bytes.Buffer
	for msg := range ch {
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		default:
		}
		if msgType, ok := msg["type"].(string); ok && msgType == "audio" {
			if data, ok := msg["data"].([]byte); ok {
				mp3Buf.Write(data)
			}
		}
	}
	if mp3Buf.Len() == 0 {
		return nil, 0, ErrNoAudio
	}

	decoder, err := mp3.NewDecoder(bytes.NewReader(mp3Buf.Bytes()))
	if err != nil {
		return nil, 0, fmt.Errorf("decoding mp3: %w", err)
	}
	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return nil, 0, fmt.Errorf("reading pcm: %w", err)
	}

	// go-mp3 always outputs stereo signed 16-bit LE: 4 bytes per frame.
	const bytesPerFrame = 4
	pcm = pcm[:len(pcm)/bytesPerFrame*bytesPerFrame]
	numFrames := len(pcm) / bytesPerFrame
	samples := make([]float32, numFrames)
	for i := 0; i < numFrames; i++ {
		off := i * bytesPerFrame
		left := int16(binary.LittleEndian.Uint16(pcm[off : off+2]))
		right := int16(binary.LittleEndian.Uint16(pcm[off+2 : off+4]))
		samples[i] = (float32(left) + float32(right)) / 2.0 / 32768.0
	}

	log.Debug("edge synthesis complete", "voice", voice, "chars", len(text), "samples", len(samples), "rate", decoder.SampleRate())
	return samples, decoder.SampleRate(), nil
}
