package transcript

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidMaxWords is returned by [SplitByMaxWords] when maxWords is
	// not a positive integer.
	ErrInvalidMaxWords = errors.New("transcript: max words per segment must be greater than zero")

	// ErrMissingWordTimestamps is returned by [SplitByMaxWords] when an
	// input segment carries no word-level timestamps. Splitting is
	// meaningless without word anchors, so the whole call fails rather than
	// skipping the segment.
	ErrMissingWordTimestamps = errors.New("transcript: word-level timestamps are required to split segments")
)

// SplitByMaxWords re-chunks word-timestamped segments into segments of at
// most maxWords words each.
//
// Every input segment must carry word timestamps. Words whose text is empty
// after trimming surrounding whitespace are discarded first; a segment left
// with no words contributes nothing to the output, so callers must not
// assume the output segment count matches the input. The remaining words are
// grouped into consecutive runs of exactly maxWords (the last run of a
// segment may be shorter) and runs never span two input segments.
//
// Each output segment starts at its first word's start, ends at its last
// word's end, and renders its text as the trimmed words joined by single
// spaces. Input segments and their word lists are never modified.
func SplitByMaxWords(segments []Segment, maxWords int) ([]Segment, error) {
	if maxWords <= 0 {
		return nil, ErrInvalidMaxWords
	}

	var out []Segment
	for _, seg := range segments {
		if len(seg.Words) == 0 {
			return nil, ErrMissingWordTimestamps
		}

		words := make([]Word, 0, len(seg.Words))
		for _, w := range seg.Words {
			text := strings.TrimSpace(w.Word)
			if text == "" {
				continue
			}
			words = append(words, Word{Start: w.Start, End: w.End, Word: text})
		}
		if len(words) == 0 {
			continue
		}

		for i := 0; i < len(words); i += maxWords {
			end := i + maxWords
			if end > len(words) {
				end = len(words)
			}
			chunk := words[i:end:end]

			texts := make([]string, len(chunk))
			for j, w := range chunk {
				texts[j] = w.Word
			}

			out = append(out, Segment{
				Start: chunk[0].Start,
				End:   chunk[len(chunk)-1].End,
				Text:  strings.Join(texts, " "),
				Words: chunk,
			})
		}
	}

	return out, nil
}
