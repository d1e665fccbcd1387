// Package transcript defines the timed transcript model shared by all
// transcription backends and output encoders.
//
// A [Transcript] is an ordered list of [Segment] values, each spanning a
// contiguous stretch of playback time. When the backend produced word-level
// timestamps a segment additionally carries its [Word] values. Entities are
// assembled bottom-up (words → segments → transcript) once per transcription
// run and never mutated afterwards; [SplitByMaxWords] returns freshly built
// segments rather than rewriting its input.
//
// The JSON wire shape is asymmetric on purpose and must stay that way for
// compatibility with existing consumers: a segment without word data omits
// the "words" key entirely (an empty-but-present word list is encoded as
// "words": []), while a transcript without a detected language still emits
// "language" as an explicit null.
package transcript

import "encoding/json"

// Word is a single recognized word anchored to playback time. Start and End
// are seconds from the beginning of the media, with End >= Start. The text
// may carry surrounding whitespace from the recognition engine.
type Word struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Word  string  `json:"word"`
}

// Segment is a contiguous span of transcribed speech.
//
// Words is nil when the backend did not produce word-level timestamps. A
// non-nil empty slice means word timestamps were in play but no words
// survived; the two cases encode differently (see package doc).
type Segment struct {
	Start float64
	End   float64
	Text  string
	Words []Word
}

// MarshalJSON encodes the segment as {start, end, text} and includes a
// "words" key only when Words is non-nil.
func (s Segment) MarshalJSON() ([]byte, error) {
	if s.Words == nil {
		return json.Marshal(struct {
			Start float64 `json:"start"`
			End   float64 `json:"end"`
			Text  string  `json:"text"`
		}{s.Start, s.End, s.Text})
	}
	return json.Marshal(struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
		Words []Word  `json:"words"`
	}{s.Start, s.End, s.Text, s.Words})
}

// Transcript is the complete result of one transcription run. Segment order
// is chronological by construction upstream; the model itself does not
// enforce monotonicity or non-overlap.
type Transcript struct {
	// Language is the detected ISO 639-1-ish code, or nil when the engine
	// could not detect one.
	Language *string

	// Segments holds the transcript content in playback order.
	Segments []Segment
}

// MarshalJSON always emits both keys, with "language" as null when
// undetected and "segments" as [] rather than null when empty.
func (t Transcript) MarshalJSON() ([]byte, error) {
	segs := t.Segments
	if segs == nil {
		segs = []Segment{}
	}
	return json.Marshal(struct {
		Language *string   `json:"language"`
		Segments []Segment `json:"segments"`
	}{t.Language, segs})
}
