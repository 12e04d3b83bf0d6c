// Package config defines readaloud's configuration and its loading rules.
// Precedence, lowest to highest: built-in defaults, config file, environment
// variables, command-line flags.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config contains all readaloud configuration options.
type Config struct {
	// Engine selects the synthesis backend.
	Engine string `yaml:"engine" env:"READALOUD_ENGINE"`

	// Voice is the engine-specific voice identifier.
	Voice string `yaml:"voice" env:"READALOUD_VOICE"`

	// Speed is the speech rate multiplier (1.0 = normal).
	Speed float64 `yaml:"speed" env:"READALOUD_SPEED"`

	// Sink selects the audio output backend.
	Sink string `yaml:"sink" env:"READALOUD_SINK"`

	// ChunkChars is the target chunk size in characters.
	ChunkChars int `yaml:"chunk_chars" env:"READALOUD_CHUNK_CHARS"`

	Pipeline PipelineConfig `yaml:"pipeline"`
	Piper    PiperConfig    `yaml:"piper"`
	Edge     EdgeConfig     `yaml:"edge"`
	Mock     MockConfig     `yaml:"mock"`

	// LogLevel sets the log verbosity: debug, info, warn, error.
	LogLevel string `yaml:"log_level" env:"READALOUD_LOG_LEVEL"`
}

// PipelineConfig controls the streaming synthesis/playback pipeline.
type PipelineConfig struct {
	// Workers is the number of concurrent synthesis workers.
	Workers int `yaml:"workers" env:"READALOUD_WORKERS"`

	// AheadLimit bounds how far beyond the playing chunk workers may
	// synthesize.
	AheadLimit int `yaml:"ahead_limit" env:"READALOUD_AHEAD_LIMIT"`

	// FrameSize is the playback frame size in samples. Pause and stop
	// latency is bounded by one frame's duration.
	FrameSize int `yaml:"frame_size" env:"READALOUD_FRAME_SIZE"`

	// SynthesisTimeout bounds a single synthesis call.
	SynthesisTimeout time.Duration `yaml:"synthesis_timeout" env:"READALOUD_SYNTHESIS_TIMEOUT"`

	// JoinTimeout bounds how long Stop waits for workers to finish.
	JoinTimeout time.Duration `yaml:"join_timeout" env:"READALOUD_JOIN_TIMEOUT"`

	// SerializeSynthesis forces synthesis calls through a shared lock for
	// engines that are not safely reentrant.
	SerializeSynthesis bool `yaml:"serialize_synthesis" env:"READALOUD_SERIALIZE_SYNTHESIS"`

	// BatchMode generates the whole text up front and inserts silence gaps
	// between chunks instead of streaming as chunks complete.
	BatchMode bool `yaml:"batch_mode" env:"READALOUD_BATCH_MODE"`

	// BatchGap is the silence inserted between chunks in batch mode.
	BatchGap time.Duration `yaml:"batch_gap" env:"READALOUD_BATCH_GAP"`
}

// PiperConfig contains Piper engine specific settings.
type PiperConfig struct {
	Binary     string `yaml:"binary" env:"READALOUD_PIPER_BINARY"`
	ModelPath  string `yaml:"model_path" env:"READALOUD_PIPER_MODEL_PATH"`
	SampleRate int    `yaml:"sample_rate" env:"READALOUD_PIPER_SAMPLE_RATE"`
	SpeakerID  int    `yaml:"speaker_id" env:"READALOUD_PIPER_SPEAKER_ID"`
}

// EdgeConfig contains Edge TTS engine specific settings.
type EdgeConfig struct {
	Voice string `yaml:"voice" env:"READALOUD_EDGE_VOICE"`
}

// MockConfig contains mock engine settings, used for tests and dry runs.
type MockConfig struct {
	Delay          time.Duration `yaml:"delay" env:"READALOUD_MOCK_DELAY"`
	SampleRate     int           `yaml:"sample_rate" env:"READALOUD_MOCK_SAMPLE_RATE"`
	WordsPerMinute int           `yaml:"words_per_minute" env:"READALOUD_MOCK_WPM"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Engine:     "piper",
		Speed:      1.1,
		Sink:       "oto",
		ChunkChars: 300,
		Pipeline: PipelineConfig{
			Workers:          4,
			AheadLimit:       15,
			FrameSize:        1024,
			SynthesisTimeout: 30 * time.Second,
			JoinTimeout:      2 * time.Second,
			BatchGap:         300 * time.Millisecond,
		},
		Piper: PiperConfig{
			Binary:     "piper",
			SampleRate: 22050,
		},
		Edge: EdgeConfig{
			Voice: "en-US-GuyNeural",
		},
		Mock: MockConfig{
			Delay:          50 * time.Millisecond,
			SampleRate:     24000,
			WordsPerMinute: 150,
		},
		LogLevel: "info",
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	validEngines := []string{"piper", "edge", "mock"}
	engineValid := false
	for _, e := range validEngines {
		if strings.EqualFold(c.Engine, e) {
			c.Engine = strings.ToLower(c.Engine)
			engineValid = true
			break
		}
	}
	if !engineValid {
		return fmt.Errorf("invalid engine %q: must be one of %v", c.Engine, validEngines)
	}

	validSinks := []string{"oto", "malgo", "none"}
	sinkValid := false
	for _, s := range validSinks {
		if strings.EqualFold(c.Sink, s) {
			c.Sink = strings.ToLower(c.Sink)
			sinkValid = true
			break
		}
	}
	if !sinkValid {
		return fmt.Errorf("invalid sink %q: must be one of %v", c.Sink, validSinks)
	}

	if c.Speed < 0.5 || c.Speed > 2.0 {
		return fmt.Errorf("speed must be between 0.5 and 2.0, got %g", c.Speed)
	}

	if c.ChunkChars < 50 || c.ChunkChars > 5000 {
		return fmt.Errorf("chunk_chars must be between 50 and 5000, got %d", c.ChunkChars)
	}

	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}

	if c.Engine == "piper" {
		if c.Piper.Binary == "" {
			return fmt.Errorf("piper binary path cannot be empty")
		}
		if c.Piper.SampleRate <= 0 {
			return fmt.Errorf("piper sample rate must be positive, got %d", c.Piper.SampleRate)
		}
	}

	return nil
}

// Validate checks if the pipeline configuration is valid.
func (c *PipelineConfig) Validate() error {
	if c.Workers < 1 || c.Workers > 32 {
		return fmt.Errorf("workers must be between 1 and 32, got %d", c.Workers)
	}
	if c.AheadLimit < 1 {
		return fmt.Errorf("ahead_limit must be at least 1, got %d", c.AheadLimit)
	}
	if c.FrameSize < 64 || c.FrameSize > 65536 {
		return fmt.Errorf("frame_size must be between 64 and 65536, got %d", c.FrameSize)
	}
	if c.SynthesisTimeout < time.Second {
		return fmt.Errorf("synthesis_timeout must be at least 1s, got %v", c.SynthesisTimeout)
	}
	if c.JoinTimeout < 100*time.Millisecond {
		return fmt.Errorf("join_timeout must be at least 100ms, got %v", c.JoinTimeout)
	}
	if c.BatchGap < 0 {
		return fmt.Errorf("batch_gap cannot be negative, got %v", c.BatchGap)
	}
	return nil
}
