// Package main provides the entry point for the readaloud CLI.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/readaloud-dev/readaloud/internal/audio"
	"github.com/readaloud-dev/readaloud/internal/chunker"
	"github.com/readaloud-dev/readaloud/internal/config"
	"github.com/readaloud-dev/readaloud/internal/extract"
	"github.com/readaloud-dev/readaloud/internal/pipeline"
	"github.com/readaloud-dev/readaloud/internal/synth"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	engineName string
	voice      string
	speed      float64
	sinkName   string
	chunkChars int
	workers    int
	aheadLimit int
	batchMode  bool
	exportPath string
	debug      bool

	rootCmd = &cobra.Command{
		Use:   "readaloud [FILE]",
		Short: "Read text, PDF and EPUB files aloud with streaming speech synthesis",
		Long: "Readaloud splits a document into chunks, synthesizes them concurrently\n" +
			"and plays them back in order, streaming: playback starts as soon as the\n" +
			"first chunk is ready. Reads from a file, or from stdin when piped.",
		SilenceUsage: true,
		Args:         cobra.MaximumNArgs(1),
		RunE:         execute,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is the platform config dir)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.Flags().StringVarP(&engineName, "engine", "e", "", "synthesis engine: piper, edge or mock")
	rootCmd.Flags().StringVar(&voice, "voice", "", "engine-specific voice identifier")
	rootCmd.Flags().Float64VarP(&speed, "speed", "s", 0, "speech rate multiplier")
	rootCmd.Flags().StringVar(&sinkName, "sink", "", "audio output: oto, malgo or none")
	rootCmd.Flags().IntVar(&chunkChars, "chunk-chars", 0, "target chunk size in characters")
	rootCmd.Flags().IntVarP(&workers, "workers", "w", 0, "number of concurrent synthesis workers")
	rootCmd.Flags().IntVar(&aheadLimit, "ahead", 0, "how many chunks past playback synthesis may run")
	rootCmd.Flags().BoolVarP(&batchMode, "batch", "b", false, "synthesize everything up front with silence gaps between chunks")
	rootCmd.Flags().StringVarP(&exportPath, "export", "o", "", "also write the spoken audio to a WAV file")

	rootCmd.AddCommand(configCmd)
	rootCmd.InitDefaultCompletionCmd()
}

// loadConfig layers command-line flags over the loaded configuration.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("engine") {
		cfg.Engine = engineName
	}
	if flags.Changed("voice") {
		cfg.Voice = voice
	}
	if flags.Changed("speed") {
		cfg.Speed = speed
	}
	if flags.Changed("sink") {
		cfg.Sink = sinkName
	}
	if flags.Changed("chunk-chars") {
		cfg.ChunkChars = chunkChars
	}
	if flags.Changed("workers") {
		cfg.Pipeline.Workers = workers
	}
	if flags.Changed("ahead") {
		cfg.Pipeline.AheadLimit = aheadLimit
	}
	if batchMode {
		cfg.Pipeline.BatchMode = true
	}
	if debug {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func setupLog(cfg config.Config) {
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	log.SetReportTimestamp(false)
}

// readInput returns the text to speak, either extracted from the file
// argument or read from stdin when piped (or when the argument is "-").
func readInput(args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return extract.Text(args[0])
	}

	stat, err := os.Stdin.Stat()
	if err != nil {
		return "", fmt.Errorf("unable to stat stdin: %w", err)
	}
	piped := stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0
	if len(args) == 0 && !piped {
		return "", errors.New("no input: pass a file or pipe text on stdin")
	}

	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("unable to read stdin: %w", err)
	}
	return string(b), nil
}

func newSink(name string) func() audio.Sink {
	return func() audio.Sink {
		switch name {
		case "malgo":
			return audio.NewMalgoSink()
		case "none":
			return audio.NewDiscardSink()
		default:
			return audio.NewOtoSink()
		}
	}
}

func execute(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLog(cfg)

	text, err := readInput(args)
	if err != nil {
		return err
	}

	chunks := chunker.New(cfg.ChunkChars).Split(text)
	if len(chunks) == 0 {
		return errors.New("no readable text found")
	}

	engine, err := synth.New(cfg)
	if err != nil {
		return err
	}

	ctl := pipeline.New(engine, newSink(cfg.Sink), cfg.Pipeline)
	ctl.SetCapture(exportPath != "")

	idle := make(chan struct{})
	var once sync.Once
	ctl.OnStateChange(func(st pipeline.State) {
		log.Debug("pipeline state", "state", st)
		if st == pipeline.StateIdle {
			once.Do(func() { close(idle) })
		}
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	opts := synth.Options{Voice: cfg.Voice, Speed: cfg.Speed}
	if err := ctl.Start(chunks, opts); err != nil {
		return err
	}
	log.Info("reading aloud",
		"chunks", len(chunks),
		"engine", engine.Name(),
		"workers", cfg.Pipeline.Workers,
		"ahead", cfg.Pipeline.AheadLimit)

	select {
	case <-sig:
		log.Info("interrupted, stopping")
		ctl.Stop()
		<-idle
	case <-idle:
	}

	if err := ctl.LastError(); err != nil {
		return err
	}
	if n := ctl.ChunkErrors(); n > 0 {
		log.Warn("some chunks could not be synthesized", "failed", n)
	}

	if exportPath != "" {
		samples, rate := ctl.Captured()
		if len(samples) == 0 {
			return errors.New("no audio captured to export")
		}
		if err := audio.WriteWAV(exportPath, samples, rate); err != nil {
			return fmt.Errorf("writing %s: %w", exportPath, err)
		}
		dur := time.Duration(float64(len(samples)) / float64(rate) * float64(time.Second))
		log.Info("wrote audio file", "path", exportPath, "duration", dur.Round(time.Millisecond))
	}

	return nil
}
