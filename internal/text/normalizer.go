package text

import (
	"strings"
	"unicode"
)

// Normalize collapses extracted document text into a stable form before
// chunking: runs of whitespace become a single space, runs containing a
// newline become a single newline, and the ends are trimmed. Chunk offsets
// are always relative to the normalized text.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))

	inRun := false
	runHasNewline := false

	for _, r := range raw {
		if unicode.IsSpace(r) {
			inRun = true
			if r == '\n' || r == '\r' {
				runHasNewline = true
			}
			continue
		}
		if inRun {
			if b.Len() > 0 {
				if runHasNewline {
					b.WriteByte('\n')
				} else {
					b.WriteByte(' ')
				}
			}
			inRun = false
			runHasNewline = false
		}
		b.WriteRune(r)
	}

	return b.String()
}
