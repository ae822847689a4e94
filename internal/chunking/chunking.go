// Package chunking splits composite text into embedding-sized pieces.
// Boundaries are part of the observable contract: vector point ids
// embed chunk indices, so the split must be deterministic and must
// not depend on a real tokenizer.
package chunking

import "strings"

// charsPerToken is the deliberate approximation used throughout; a
// real tokenizer would move chunk boundaries between releases.
const charsPerToken = 4

var sentenceEnds = []string{". ", "! ", "? ", ".\n", "!\n", "?\n"}

// Split chunks text into pieces of roughly chunkSize tokens with
// chunkOverlap tokens of overlap. Break points prefer paragraph
// breaks, then single newlines, then sentence ends, then spaces, and
// hard-cut as a last resort. Whitespace-only chunks are dropped.
func Split(text string, chunkSize, chunkOverlap int) []string {
	if text == "" {
		return nil
	}

	charSize := chunkSize * charsPerToken
	charOverlap := chunkOverlap * charsPerToken

	if len(text) <= charSize {
		return []string{text}
	}

	var chunks []string
	start := 0

	for start < len(text) {
		end := start + charSize

		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}

		chunk := text[start:end]
		breakPoint := findBreak(chunk, charSize)

		chunks = append(chunks, strings.TrimSpace(text[start:start+breakPoint]))

		// The overlap must never swallow the whole advance: an early
		// break point combined with a large overlap would walk the
		// window backwards (or pin it in place). Fall back to advancing
		// past the break without overlap in that case.
		if next := start + breakPoint - charOverlap; next > start {
			start = next
		} else {
			start += breakPoint
		}
	}

	out := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	return out
}

// findBreak searches backwards from the nominal boundary for the best
// break point, returning an offset into chunk. Paragraph and newline
// breaks must land past 50% of the window; a space past 30%.
func findBreak(chunk string, charSize int) int {
	half := float64(charSize) * 0.5

	if pos := strings.LastIndex(chunk, "\n\n"); float64(pos) > half {
		return pos + 2
	}
	if pos := strings.LastIndex(chunk, "\n"); float64(pos) > half {
		return pos + 1
	}
	for _, sentEnd := range sentenceEnds {
		if pos := strings.LastIndex(chunk, sentEnd); float64(pos) > half {
			return pos + len(sentEnd)
		}
	}
	if pos := strings.LastIndex(chunk, " "); float64(pos) > float64(charSize)*0.3 {
		return pos + 1
	}
	return charSize
}
