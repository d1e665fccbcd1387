package transcript

import (
	"fmt"
	"math"
	"strings"
)

// EncodeSRT renders the transcript as SubRip subtitle text: for each segment
// in order, a 1-based sequential index, a "HH:MM:SS,mmm --> HH:MM:SS,mmm"
// range line, the segment text, and a blank separator line.
func EncodeSRT(t *Transcript) []byte {
	var b strings.Builder
	for i, seg := range t.Segments {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n",
			i+1, srtTimestamp(seg.Start), srtTimestamp(seg.End), seg.Text)
	}
	return []byte(b.String())
}

// srtTimestamp converts seconds to the SRT time format HH:MM:SS,mmm. Every
// field truncates rather than rounds, so a fraction of 0.9995 s becomes 999
// with no carry into the seconds field. Downstream consumers depend on this
// truncation; do not change it to rounding.
func srtTimestamp(seconds float64) string {
	whole := int(seconds)
	hours := whole / 3600
	minutes := (whole % 3600) / 60
	secs := whole % 60
	millis := int(math.Mod(seconds, 1) * 1000)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}
