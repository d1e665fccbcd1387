// Package pipeline orchestrates a full transcription job: audio extraction,
// speech recognition, optional word-level re-chunking, and output encoding.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/mediascribe/mediascribe/internal/media"
	"github.com/mediascribe/mediascribe/internal/observe"
	"github.com/mediascribe/mediascribe/pkg/provider/asr"
	"github.com/mediascribe/mediascribe/pkg/transcript"
)

// Stage identifies a pipeline phase reported through progress callbacks.
type Stage string

const (
	StageExtracting   Stage = "extracting"
	StageTranscribing Stage = "transcribing"
	StageFormatting   Stage = "formatting"
	StageDone         Stage = "done"
)

// ErrNoFormats is returned when a job is started without output formats.
var ErrNoFormats = errors.New("pipeline: no output formats configured")

// ErrMaxWordsRequired is returned when word timestamps are requested without
// a positive max-words setting to chunk them by.
var ErrMaxWordsRequired = errors.New("pipeline: max words must be > 0 when word timestamps are enabled")

// Options configures a single transcription job.
type Options struct {
	// ASR is passed through to the recognition backend.
	ASR asr.Options

	// MaxWords re-chunks word-timestamped segments into groups of at most
	// this many words. Required (> 0) when ASR.WordTimestamps is set.
	MaxWords int

	// Formats lists the outputs to write. Must not be empty.
	Formats []transcript.Format

	// OutputDir is where transcript files are written. Empty means the
	// directory of the input file.
	OutputDir string

	// WorkDir holds the intermediate extracted WAV. Empty means the system
	// temp directory.
	WorkDir string

	// KeepAudio retains the intermediate WAV after the job finishes.
	KeepAudio bool

	// OnProgress, when set, is invoked as the job moves through stages.
	// percent is in [0, 100]. Callbacks run on the job goroutine and must
	// return quickly.
	OnProgress func(stage Stage, percent int)
}

// Result describes a finished job.
type Result struct {
	// Transcript is the final (possibly re-chunked) transcript.
	Transcript *transcript.Transcript

	// OutputPaths maps each requested format to the file written for it.
	OutputPaths map[transcript.Format]string
}

// Runner executes transcription jobs against a fixed backend. Safe for
// concurrent use when the underlying provider is.
type Runner struct {
	provider  asr.Provider
	extractor *media.Extractor
	metrics   *observe.Metrics
	logger    *slog.Logger
}

// New creates a Runner. A nil metrics falls back to [observe.DefaultMetrics]
// and a nil logger to [slog.Default].
func New(provider asr.Provider, metrics *observe.Metrics, logger *slog.Logger) *Runner {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		provider:  provider,
		extractor: media.NewExtractor(logger),
		metrics:   metrics,
		logger:    logger,
	}
}

// Run executes a full job for inputPath and writes one output file per
// requested format. The input may be a video or audio file; video inputs are
// first run through ffmpeg to extract a mono 16 kHz WAV track.
func (r *Runner) Run(ctx context.Context, inputPath string, opts Options) (_ *Result, err error) {
	if len(opts.Formats) == 0 {
		return nil, ErrNoFormats
	}
	if opts.ASR.WordTimestamps && opts.MaxWords <= 0 {
		return nil, ErrMaxWordsRequired
	}
	if _, err := os.Stat(inputPath); err != nil {
		return nil, fmt.Errorf("pipeline: input file: %w", err)
	}

	jobStart := time.Now()
	ctx, span := observe.StartSpan(ctx, "pipeline.run")
	defer func() {
		observe.RecordError(span, err)
		span.End()
	}()
	log := observe.Logger(ctx).With("input", inputPath, "provider", r.provider.Name())

	// Extraction.
	report(opts.OnProgress, StageExtracting, 0)
	extractStart := time.Now()
	audioPath, cleanup, err := r.extractor.Extract(ctx, inputPath, opts.WorkDir)
	r.metrics.ExtractionDuration.Record(ctx, time.Since(extractStart).Seconds())
	if err != nil {
		return nil, err
	}
	if cleanup != nil && !opts.KeepAudio {
		defer cleanup()
	}
	report(opts.OnProgress, StageExtracting, 100)

	// Recognition.
	report(opts.OnProgress, StageTranscribing, 0)
	log.Info("starting transcription", "audio", audioPath)
	asrStart := time.Now()
	res, err := r.provider.Transcribe(ctx, audioPath, opts.ASR)
	r.metrics.TranscriptionDuration.Record(ctx, time.Since(asrStart).Seconds())
	if err != nil {
		r.metrics.RecordProviderError(ctx, r.provider.Name())
		r.metrics.RecordProviderRequest(ctx, r.provider.Name(), "error")
		return nil, fmt.Errorf("pipeline: transcribe %q: %w", inputPath, err)
	}
	r.metrics.RecordProviderRequest(ctx, r.provider.Name(), "ok")
	report(opts.OnProgress, StageTranscribing, 100)

	t := res.Transcript()

	// Optional word-level re-chunking.
	if opts.ASR.WordTimestamps {
		segments, err := transcript.SplitByMaxWords(t.Segments, opts.MaxWords)
		if err != nil {
			return nil, fmt.Errorf("pipeline: split segments: %w", err)
		}
		t.Segments = segments
	}

	// Encoding and output writes.
	report(opts.OnProgress, StageFormatting, 0)
	encodeStart := time.Now()
	paths := make(map[transcript.Format]string, len(opts.Formats))
	for _, f := range opts.Formats {
		outPath := outputPath(inputPath, opts.OutputDir, f)
		if err := transcript.WriteFile(t, outPath, f); err != nil {
			return nil, fmt.Errorf("pipeline: write %s output: %w", f, err)
		}
		paths[f] = outPath
		log.Info("wrote transcript", "format", string(f), "path", outPath)
	}
	r.metrics.EncodeDuration.Record(ctx, time.Since(encodeStart).Seconds())
	report(opts.OnProgress, StageFormatting, 100)

	r.metrics.SegmentsProduced.Add(ctx, int64(len(t.Segments)))
	r.metrics.JobDuration.Record(ctx, time.Since(jobStart).Seconds(),
		metric.WithAttributes(observe.Attr("provider", r.provider.Name())),
	)
	report(opts.OnProgress, StageDone, 100)

	return &Result{Transcript: t, OutputPaths: paths}, nil
}

// report invokes the progress callback when one is set.
func report(fn func(Stage, int), stage Stage, percent int) {
	if fn != nil {
		fn(stage, percent)
	}
}

// outputPath derives the transcript file path for the given format. The file
// is named after the input stem and placed in dir, or next to the input when
// dir is empty.
func outputPath(inputPath, dir string, f transcript.Format) string {
	base := filepath.Base(inputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if dir == "" {
		dir = filepath.Dir(inputPath)
	}
	return filepath.Join(dir, stem+f.Ext())
}
