package text

import (
	"errors"
	"strings"
)

// Strategy selects how chunk boundaries are chosen. Both strategies honor the
// same target size and character-based overlap; they differ only in what they
// consider a natural break.
type Strategy string

const (
	// StrategySentence slides a fixed-size window over the text and snaps its
	// end backward to the nearest sentence terminator or newline. Suited to
	// unstructured extracted text (PDF brochures).
	StrategySentence Strategy = "sentence"

	// StrategyParagraph aggregates whole paragraphs up to the target size.
	// Suited to pre-structured text (markdown FAQs, pricing sheets).
	StrategyParagraph Strategy = "paragraph"
)

// ErrBadChunkConfig is returned when the overlap is not strictly smaller than
// the target size, which would prevent the window from advancing.
var ErrBadChunkConfig = errors.New("chunk overlap must be smaller than target size")

// Chunk is a contiguous slice of the normalized source text. Content always
// equals the source text between CharStart and CharEnd.
type Chunk struct {
	Content   string
	CharStart int
	CharEnd   int
}

type Chunker struct {
	strategy   Strategy
	targetSize int
	overlap    int
}

func NewChunker(strategy Strategy, targetSize, overlap int) (*Chunker, error) {
	if targetSize <= 0 || overlap < 0 || overlap >= targetSize {
		return nil, ErrBadChunkConfig
	}
	if strategy != StrategySentence && strategy != StrategyParagraph {
		return nil, ErrBadChunkConfig
	}
	return &Chunker{strategy: strategy, targetSize: targetSize, overlap: overlap}, nil
}

// Split chunks normalized text. Empty input yields no chunks; input at or
// under the target size yields exactly one.
func (c *Chunker) Split(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if c.strategy == StrategyParagraph {
		return c.splitParagraphs(text)
	}
	return c.splitWindow(text)
}

func (c *Chunker) splitWindow(text string) []Chunk {
	var chunks []Chunk

	start := 0
	for start < len(text) {
		end := start + c.targetSize
		if end >= len(text) {
			end = len(text)
		} else if b := lastBoundary(text, start, end); b > start+c.targetSize/2 {
			// Snap to the boundary only when it does not shrink the chunk
			// below half the target size.
			end = b
		}

		if chunk, ok := trimSpan(text, start, end); ok {
			chunks = append(chunks, chunk)
		}

		if end >= len(text) {
			break
		}
		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// lastBoundary finds the position just after the closest sentence terminator
// or newline preceding end, or -1 when the span has none.
func lastBoundary(text string, start, end int) int {
	for i := end - 1; i > start; i-- {
		switch text[i] {
		case '.', '!', '?', '\n':
			return i + 1
		}
	}
	return -1
}

func (c *Chunker) splitParagraphs(text string) []Chunk {
	var chunks []Chunk

	// Offsets come from a running cursor, never from a substring search, so
	// repeated boilerplate paragraphs cannot corrupt them.
	bufStart, bufEnd := -1, -1
	cursor := 0

	for _, para := range strings.Split(text, "\n") {
		paraStart := cursor
		cursor += len(para) + 1

		if strings.TrimSpace(para) == "" {
			continue
		}
		paraEnd := paraStart + len(para)

		if bufStart == -1 {
			bufStart, bufEnd = paraStart, paraEnd
			continue
		}

		if (bufEnd-bufStart)+1+len(para) > c.targetSize {
			chunks = append(chunks, Chunk{Content: text[bufStart:bufEnd], CharStart: bufStart, CharEnd: bufEnd})
			if seed := overlapStart(text, bufStart, bufEnd, c.overlap); seed < bufEnd {
				bufStart = seed
			} else {
				bufStart = paraStart
			}
			bufEnd = paraEnd
			continue
		}

		bufEnd = paraEnd
	}

	if bufStart != -1 {
		chunks = append(chunks, Chunk{Content: text[bufStart:bufEnd], CharStart: bufStart, CharEnd: bufEnd})
	}

	return chunks
}

// overlapStart seeds the next buffer with the trailing overlap characters of
// the flushed one, moved forward to a word boundary so chunks never begin
// mid-word. Zero overlap starts the next buffer at the flush point.
func overlapStart(text string, bufStart, bufEnd, overlap int) int {
	if overlap == 0 {
		return bufEnd
	}
	start := bufEnd - overlap
	if start <= bufStart {
		return bufStart
	}
	for start < bufEnd {
		prev := text[start-1]
		if prev == ' ' || prev == '\n' {
			return start
		}
		start++
	}
	return bufEnd
}

// trimSpan trims whitespace from a window span while keeping offsets pointing
// at the retained characters.
func trimSpan(text string, start, end int) (Chunk, bool) {
	for start < end && isSpaceByte(text[start]) {
		start++
	}
	for end > start && isSpaceByte(text[end-1]) {
		end--
	}
	if start >= end {
		return Chunk{}, false
	}
	return Chunk{Content: text[start:end], CharStart: start, CharEnd: end}, true
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}
