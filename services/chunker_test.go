package services

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"grant-platform-backend/internal/config"
)

func newTestChunker(size, overlap int) *TextChunker {
	return NewTextChunker(&config.Config{MaxChunkSize: size, ChunkOverlap: overlap})
}

func buildSampleText(paragraphs int) string {
	var builder strings.Builder
	for i := 0; i < paragraphs; i++ {
		builder.WriteString(fmt.Sprintf("Paragraph %d of the grant narrative. ", i))
		builder.WriteString(strings.Repeat("Outcome measures and budget detail follow. ", 10))
		builder.WriteString("\n\n")
	}
	return builder.String()
}

func TestChunkEmptyText(t *testing.T) {
	c := newTestChunker(4000, 200)
	if chunks := c.Chunk(""); len(chunks) != 0 {
		t.Errorf("Expected no chunks for empty text, got %d", len(chunks))
	}
}

func TestChunkShortTextSingleChunk(t *testing.T) {
	c := newTestChunker(4000, 200)

	text := "A short eligibility statement."
	chunks := c.Chunk(text)
	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != text {
		t.Errorf("Expected chunk to equal input, got %q", chunks[0])
	}
}

func TestChunkSizeLimit(t *testing.T) {
	c := newTestChunker(4000, 200)

	chunks := c.Chunk(buildSampleText(120))
	if len(chunks) < 2 {
		t.Fatalf("Expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk) > 4000 {
			t.Errorf("Chunk %d exceeds size limit: %d bytes", i, len(chunk))
		}
		if chunk == "" {
			t.Errorf("Chunk %d is empty", i)
		}
	}
}

func TestChunkOverlapBetweenNeighbors(t *testing.T) {
	c := newTestChunker(4000, 200)

	chunks := c.Chunk(buildSampleText(120))
	if len(chunks) < 2 {
		t.Fatalf("Expected multiple chunks, got %d", len(chunks))
	}

	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		tail := prev[len(prev)-200:]
		if !strings.HasPrefix(chunks[i], tail) {
			t.Errorf("Chunk %d does not start with the 200-byte tail of chunk %d", i, i-1)
		}
	}
}

func TestChunkLosslessCoverage(t *testing.T) {
	c := newTestChunker(4000, 200)

	text := buildSampleText(120)
	chunks := c.Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("Expected multiple chunks, got %d", len(chunks))
	}

	var builder strings.Builder
	builder.WriteString(chunks[0])
	for i := 1; i < len(chunks); i++ {
		overlap := overlapTail(chunks[i-1], 200)
		builder.WriteString(chunks[i][len(overlap):])
	}

	if builder.String() != text {
		t.Error("Concatenating chunks with overlap stripped does not reproduce the input")
	}
}

func TestChunkDeterministic(t *testing.T) {
	c := newTestChunker(4000, 200)

	text := buildSampleText(60)
	first := c.Chunk(text)
	second := c.Chunk(text)

	if len(first) != len(second) {
		t.Fatalf("Chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("Chunk %d differs between runs", i)
		}
	}
}

func TestChunkMultibyteText(t *testing.T) {
	c := newTestChunker(1000, 200)

	text := strings.Repeat("世界", 1000)
	chunks := c.Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("Expected multiple chunks, got %d", len(chunks))
	}

	for i, chunk := range chunks {
		if len(chunk) > 1000 {
			t.Errorf("Chunk %d exceeds size limit: %d bytes", i, len(chunk))
		}
		if !utf8.ValidString(chunk) {
			t.Errorf("Chunk %d splits a rune", i)
		}
	}

	var builder strings.Builder
	builder.WriteString(chunks[0])
	for i := 1; i < len(chunks); i++ {
		overlap := overlapTail(chunks[i-1], 200)
		if len(overlap) > 200 {
			t.Errorf("Overlap before chunk %d exceeds 200 bytes: %d", i, len(overlap))
		}
		if !strings.HasPrefix(chunks[i], overlap) {
			t.Errorf("Chunk %d does not start with the tail of chunk %d", i, i-1)
		}
		rest := chunks[i][len(overlap):]
		if !utf8.ValidString(rest) {
			t.Errorf("Stripping the overlap from chunk %d cuts mid-rune", i)
		}
		builder.WriteString(rest)
	}

	if builder.String() != text {
		t.Error("Concatenating multibyte chunks with overlap stripped does not reproduce the input")
	}
}

func TestChunkLongUnbrokenText(t *testing.T) {
	c := newTestChunker(1000, 100)

	text := strings.Repeat("x", 5000)
	chunks := c.Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("Expected multiple chunks for unbroken text, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk) > 1000 {
			t.Errorf("Chunk %d exceeds size limit: %d bytes", i, len(chunk))
		}
	}
}
