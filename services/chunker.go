package services

import (
	"strings"
	"unicode/utf8"

	"grant-platform-backend/internal/config"
)

// chunkSeparators are tried in order when splitting text into atoms small
// enough to pack into chunks. The empty string is the terminal fallback
// and cuts at rune boundaries.
var chunkSeparators = []string{"\n\n", "\n", " ", ""}

// TextChunker splits extracted text into overlapping chunks sized for
// embedding. Splitting is deterministic and lossless: separators are kept
// with the fragment they terminate, so concatenating chunks with the
// overlap stripped reproduces the input.
type TextChunker struct {
	chunkSize int
	overlap   int
}

func NewTextChunker(cfg *config.Config) *TextChunker {
	return &TextChunker{
		chunkSize: cfg.MaxChunkSize,
		overlap:   cfg.ChunkOverlap,
	}
}

// Chunk splits text into pieces of at most the configured chunk size, each
// chunk after the first starting with the tail of its predecessor.
func (c *TextChunker) Chunk(text string) []string {
	if text == "" {
		return nil
	}
	if len(text) <= c.chunkSize {
		return []string{text}
	}

	atoms := splitBySeparators(text, chunkSeparators, c.chunkSize-c.overlap)

	var chunks []string
	var builder strings.Builder

	for _, atom := range atoms {
		if builder.Len() > 0 && builder.Len()+len(atom) > c.chunkSize {
			chunk := builder.String()
			chunks = append(chunks, chunk)
			builder.Reset()
			builder.WriteString(overlapTail(chunk, c.overlap))
		}
		builder.WriteString(atom)
	}
	if builder.Len() > 0 {
		chunks = append(chunks, builder.String())
	}

	return chunks
}

// splitBySeparators breaks text into fragments no longer than limit bytes,
// recursing through the separator list for fragments that are still too
// large. Separators stay attached so no bytes are lost.
func splitBySeparators(text string, separators []string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	sep := separators[0]
	if sep == "" {
		return splitRunes(text, limit)
	}

	var out []string
	for _, piece := range strings.SplitAfter(text, sep) {
		if piece == "" {
			continue
		}
		if len(piece) <= limit {
			out = append(out, piece)
			continue
		}
		out = append(out, splitBySeparators(piece, separators[1:], limit)...)
	}
	return out
}

// splitRunes cuts text into fragments of at most limit bytes without
// breaking UTF-8 sequences.
func splitRunes(text string, limit int) []string {
	var out []string
	for len(text) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if cut == 0 {
			cut = limit
		}
		out = append(out, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}

// overlapTail returns at most the last n bytes of chunk, trimmed forward to
// the nearest rune boundary so the tail never exceeds n or splits a rune.
func overlapTail(chunk string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(chunk) <= n {
		return chunk
	}
	start := len(chunk) - n
	for start < len(chunk) && !utf8.RuneStart(chunk[start]) {
		start++
	}
	return chunk[start:]
}
