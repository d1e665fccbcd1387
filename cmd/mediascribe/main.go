// Command mediascribe transcribes media files from the command line. It
// accepts one or more video or audio paths and writes a transcript file per
// configured output format next to each input (or into -output-dir).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mediascribe/mediascribe/internal/app"
	"github.com/mediascribe/mediascribe/internal/config"
	"github.com/mediascribe/mediascribe/internal/observe"
	"github.com/mediascribe/mediascribe/internal/pipeline"
	"github.com/mediascribe/mediascribe/pkg/provider/asr"
	"github.com/mediascribe/mediascribe/pkg/transcript"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	outputDir := flag.String("output-dir", "", "directory for transcript files (default: next to each input)")
	formatsFlag := flag.String("formats", "", "comma-separated output formats, overriding the config (json, srt)")
	language := flag.String("language", "", "recognition language hint, overriding the config")
	taskFlag := flag.String("task", "", "recognition task (transcribe, translate), overriding the config")
	wordTimestamps := flag.Bool("word-timestamps", false, "request per-word timing (requires a capable backend and -max-words)")
	maxWords := flag.Int("max-words", 0, "chunk word-timestamped output into segments of at most this many words, overriding the config")
	keepAudio := flag.Bool("keep-audio", false, "keep the extracted intermediate WAV file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <media-file> [<media-file> ...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "mediascribe: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "mediascribe: %v\n", err)
		}
		return 1
	}

	logger := app.NewLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	formats := cfg.Output.Formats
	if *formatsFlag != "" {
		formats = nil
		for _, part := range strings.Split(*formatsFlag, ",") {
			f := transcript.Format(strings.TrimSpace(part))
			if !f.IsValid() {
				fmt.Fprintf(os.Stderr, "mediascribe: invalid format %q\n", part)
				return 2
			}
			formats = append(formats, f)
		}
	}
	if len(formats) == 0 {
		formats = []transcript.Format{transcript.FormatJSON, transcript.FormatSRT}
	}

	lang := cfg.ASR.Language
	if *language != "" {
		lang = *language
	}
	task := cfg.ASR.Task
	if *taskFlag != "" {
		task = asr.Task(*taskFlag)
		if !task.IsValid() {
			fmt.Fprintf(os.Stderr, "mediascribe: invalid task %q\n", *taskFlag)
			return 2
		}
	}
	dir := cfg.Output.Dir
	if *outputDir != "" {
		dir = *outputDir
	}
	words := cfg.ASR.MaxWords
	if *maxWords > 0 {
		words = *maxWords
	}
	withWords := cfg.ASR.WordTimestamps || *wordTimestamps
	if withWords && words <= 0 {
		fmt.Fprintln(os.Stderr, "mediascribe: -max-words is required when -word-timestamps is set")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, closeProvider, err := app.BuildProvider(cfg)
	if err != nil {
		slog.Error("failed to build recognition backend", "err", err)
		return 1
	}
	defer func() {
		if err := closeProvider(); err != nil {
			slog.Warn("backend close error", "err", err)
		}
	}()

	runner := pipeline.New(provider, observe.DefaultMetrics(), logger)
	opts := pipeline.Options{
		ASR: asr.Options{
			Language:       lang,
			Task:           task,
			WordTimestamps: withWords,
		},
		MaxWords:  words,
		Formats:   formats,
		OutputDir: dir,
		WorkDir:   cfg.Server.WorkDir,
		KeepAudio: cfg.Output.KeepAudio || *keepAudio,
	}

	failed := 0
	for _, input := range flag.Args() {
		if ctx.Err() != nil {
			slog.Warn("interrupted, stopping")
			return 1
		}
		res, err := runner.Run(ctx, input, opts)
		if err != nil {
			slog.Error("transcription failed", "input", input, "err", err)
			failed++
			continue
		}
		for f, path := range res.OutputPaths {
			fmt.Printf("%s: wrote %s (%s)\n", input, path, f)
		}
	}
	if failed > 0 {
		slog.Error("some files failed", "failed", failed, "total", flag.NArg())
		return 1
	}
	return 0
}
