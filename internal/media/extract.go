// Package media handles audio extraction from input media files via an
// ffmpeg subprocess. The transcription backends all expect mono 16 kHz WAV,
// so extraction always normalizes to that format; inputs that are already
// audio files are passed through untouched.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// videoExtensions and audioExtensions classify inputs by file extension.
// Classification is advisory; ffmpeg is the final authority on whether a
// container can actually be decoded.
var (
	videoExtensions = map[string]bool{
		".mp4": true, ".avi": true, ".mkv": true, ".mov": true,
		".wmv": true, ".flv": true, ".webm": true, ".m4v": true,
	}
	audioExtensions = map[string]bool{
		".mp3": true, ".wav": true, ".m4a": true, ".aac": true,
		".ogg": true, ".flac": true, ".wma": true,
	}
)

// ErrUnsupportedInput is returned by Extract for files whose extension is
// neither a known video nor a known audio format.
var ErrUnsupportedInput = errors.New("media: unsupported input file format")

// IsVideoFile reports whether path has a known video extension.
func IsVideoFile(path string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsAudioFile reports whether path has a known audio extension.
func IsAudioFile(path string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(path))]
}

// CheckFFmpeg verifies that the ffmpeg binary is runnable. Call it once at
// startup to fail fast instead of at the first extraction.
func CheckFFmpeg(ctx context.Context) error {
	if err := exec.CommandContext(ctx, "ffmpeg", "-version").Run(); err != nil {
		return fmt.Errorf("media: ffmpeg is not installed or not in PATH: %w", err)
	}
	return nil
}

// Extractor extracts audio tracks from video files. The zero value is not
// usable; construct with [NewExtractor].
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor returns an Extractor that logs through logger. A nil logger
// falls back to slog.Default.
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Extract returns a path to a mono 16 kHz WAV rendition of inputPath.
//
// Audio inputs are returned as-is with cleanup == nil. Video inputs are
// decoded into tmpDir (os.TempDir when empty) and the returned cleanup
// removes the intermediate file; removal failure is logged, never fatal.
// Inputs that are neither video nor audio fail with [ErrUnsupportedInput].
func (e *Extractor) Extract(ctx context.Context, inputPath, tmpDir string) (audioPath string, cleanup func(), err error) {
	if _, err := os.Stat(inputPath); err != nil {
		return "", nil, fmt.Errorf("media: input file: %w", err)
	}

	if IsAudioFile(inputPath) {
		return inputPath, nil, nil
	}
	if !IsVideoFile(inputPath) {
		return "", nil, fmt.Errorf("%w: %q", ErrUnsupportedInput, inputPath)
	}

	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	out := filepath.Join(tmpDir, base+"_audio_16k.wav")

	// 16 kHz mono PCM is the input format every whisper-family backend
	// recommends.
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-i", inputPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		out,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	e.logger.Debug("extracting audio", "input", inputPath, "output", out)
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", nil, fmt.Errorf("media: ffmpeg: %w", err)
		}
		return "", nil, fmt.Errorf("media: ffmpeg: %w: %s", err, lastLine(msg))
	}

	cleanup = func() {
		if err := os.Remove(out); err != nil && !errors.Is(err, os.ErrNotExist) {
			e.logger.Warn("failed to remove extracted audio", "path", out, "err", err)
		}
	}
	return out, cleanup, nil
}

// lastLine returns the final non-empty line of s. ffmpeg prints its actual
// error last, after pages of banner and stream info.
func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return s
}
