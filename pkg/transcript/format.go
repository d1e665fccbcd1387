package transcript

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Format identifies a transcript output encoding.
type Format string

const (
	// FormatJSON encodes the full transcript structure as indented JSON.
	FormatJSON Format = "json"

	// FormatSRT encodes the transcript as SubRip subtitles.
	FormatSRT Format = "srt"
)

// IsValid reports whether f is a recognised output format.
func (f Format) IsValid() bool {
	return f == FormatJSON || f == FormatSRT
}

// Ext returns the conventional file extension for the format, including the
// leading dot. Unknown formats return "".
func (f Format) Ext() string {
	switch f {
	case FormatJSON:
		return ".json"
	case FormatSRT:
		return ".srt"
	}
	return ""
}

// ErrUnsupportedFormat is returned by [Encode] and [WriteFile] for a format
// value that is neither [FormatJSON] nor [FormatSRT].
var ErrUnsupportedFormat = errors.New("transcript: unsupported output format")

// EncodeJSON renders the transcript as two-space-indented JSON. Non-ASCII
// text appears literally rather than as \u escape sequences, and the output
// carries no trailing newline.
func EncodeJSON(t *Transcript) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(t); err != nil {
		return nil, fmt.Errorf("transcript: encode json: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Encode renders the transcript in the requested format.
func Encode(t *Transcript, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return EncodeJSON(t)
	case FormatSRT:
		return EncodeSRT(t), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// WriteFile encodes the transcript and writes the complete result to path in
// a single write, replacing any existing file. Parent directories are not
// created; the caller owns directory layout.
func WriteFile(t *Transcript, path string, format Format) error {
	data, err := Encode(t, format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("transcript: write %q: %w", path, err)
	}
	return nil
}
