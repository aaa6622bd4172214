package rag

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChunker(t *testing.T, size, overlap int) *Chunker {
	t.Helper()
	c, err := NewChunker(size, overlap)
	require.NoError(t, err)
	return c
}

func TestNewChunkerRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{name: "overlap equals size", size: 100, overlap: 100},
		{name: "overlap exceeds size", size: 100, overlap: 150},
		{name: "negative overlap", size: 100, overlap: -1},
		{name: "zero size", size: 0, overlap: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChunker(tt.size, tt.overlap)
			if !errors.Is(err, ErrInvalidChunkConfig) {
				t.Fatalf("expected ErrInvalidChunkConfig, got %v", err)
			}
		})
	}
}

func TestChunkEmptyText(t *testing.T) {
	c := newTestChunker(t, 1000, 200)
	assert.Empty(t, c.Chunk(""))
	assert.Empty(t, c.Chunk(" \r\n\n\t "))
}

func TestChunkShortTextIsSingleChunk(t *testing.T) {
	c := newTestChunker(t, 1000, 200)
	text := "  Hello world.\r\nSecond line.\n\n\n\n\nThird paragraph.  "

	chunks := c.Chunk(text)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "Hello world.\nSecond line.\n\nThird paragraph.", chunks[0].Text)
}

func TestChunkExactlyChunkSize(t *testing.T) {
	c := newTestChunker(t, 1000, 200)
	chunks := c.Chunk(strings.Repeat("x", 1000))
	require.Len(t, chunks, 1)
	assert.Len(t, chunks[0].Text, 1000)
}

func TestChunk2500CharsCoversTextInThreeChunks(t *testing.T) {
	c := newTestChunker(t, 1000, 200)
	text := strings.Repeat("a", 2500)

	// 第三块到达文本末尾后立即停止：[1600,2500) 已覆盖全部剩余字符，
	// 不会再产出只含重叠部分的 [2300,2500) 第四块
	chunks := c.Chunk(text)
	require.Len(t, chunks, 3)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len(text), chunks[len(chunks)-1].End, "last chunk reaches end of text")

	assert.Equal(t, [2]int{0, 1000}, [2]int{chunks[0].Start, chunks[0].End})
	assert.Equal(t, [2]int{800, 1800}, [2]int{chunks[1].Start, chunks[1].End})
	assert.Equal(t, [2]int{1600, 2500}, [2]int{chunks[2].Start, chunks[2].End})

	for i := 1; i < len(chunks); i++ {
		assert.Equal(t, 200, chunks[i-1].End-chunks[i].Start, "overlap between chunk %d and %d", i-1, i)
	}
}

func TestChunkPrefersParagraphBreak(t *testing.T) {
	c := newTestChunker(t, 100, 20)
	first := strings.Repeat("p", 70)
	second := strings.Repeat("q", 80)
	text := first + "\n\n" + second

	chunks := c.Chunk(text)
	require.NotEmpty(t, chunks)
	assert.Equal(t, first, chunks[0].Text)
	assert.Equal(t, 70, chunks[0].End)
}

func TestChunkFallsBackToSentenceBreak(t *testing.T) {
	c := newTestChunker(t, 100, 20)
	sentence := strings.Repeat("s", 69) + "."
	text := sentence + " " + strings.Repeat("t", 80)

	chunks := c.Chunk(text)
	require.NotEmpty(t, chunks)
	assert.Equal(t, sentence, chunks[0].Text)
	assert.Equal(t, 70, chunks[0].End)
}

func TestChunkIgnoresBreaksBeforeMidpoint(t *testing.T) {
	c := newTestChunker(t, 100, 20)
	text := strings.Repeat("a", 10) + ". " + strings.Repeat("b", 200)

	chunks := c.Chunk(text)
	require.NotEmpty(t, chunks)
	assert.Equal(t, 100, chunks[0].End)
}

func TestChunkCoversWholeText(t *testing.T) {
	c := newTestChunker(t, 120, 30)
	var sb strings.Builder
	for i := 0; i < 40; i++ {
		sb.WriteString("Sentence number ")
		sb.WriteString(strings.Repeat("w", i%7))
		sb.WriteString(" ends here. ")
		if i%9 == 0 {
			sb.WriteString("\n\n")
		}
	}
	normalized := []rune(Normalize(sb.String()))

	chunks := c.Chunk(sb.String())
	require.Greater(t, len(chunks), 1)

	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len(normalized), chunks[len(chunks)-1].End)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.NotEmpty(t, ch.Text)
		assert.LessOrEqual(t, ch.End-ch.Start, 120)
		assert.Equal(t, strings.TrimSpace(string(normalized[ch.Start:ch.End])), ch.Text)
		if i > 0 {
			assert.LessOrEqual(t, ch.Start, chunks[i-1].End, "gap before chunk %d", i)
			assert.Greater(t, ch.Start, chunks[i-1].Start, "chunk %d did not advance", i)
		}
	}
}

func TestChunkAlwaysProgressesWithLargeOverlap(t *testing.T) {
	c := newTestChunker(t, 100, 90)
	text := strings.Repeat(strings.Repeat("z", 55)+"\n\n", 10)

	chunks := c.Chunk(text)
	require.NotEmpty(t, chunks)
	for i := 1; i < len(chunks); i++ {
		assert.Greater(t, chunks[i].Start, chunks[i-1].Start)
	}
}

func TestChunkCountsRunesNotBytes(t *testing.T) {
	c := newTestChunker(t, 10, 2)
	chunks := c.Chunk(strings.Repeat("文", 10))
	require.Len(t, chunks, 1)
}
