package chunker

import (
	"strings"
	"testing"

	"pai-semantic-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contents(chunks []model.DocumentChunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Content
	}
	return out
}

func TestChunkSlidingWindow(t *testing.T) {
	c, err := New(4, 2)
	require.NoError(t, err)

	chunks := c.Chunk("doc", "one two three four five six")
	assert.Equal(t, []string{"one two three four", "three four five six"}, contents(chunks))
	assert.Equal(t, "doc_chunk_0", chunks[0].ID)
	assert.Equal(t, "doc_chunk_1", chunks[1].ID)
}

func TestChunkOffsets(t *testing.T) {
	c, err := New(4, 2)
	require.NoError(t, err)

	text := "one two three four five six"
	chunks := c.Chunk("doc", text)
	require.Len(t, chunks, 2)

	assert.Equal(t, 0, chunks[0].StartOffset)
	assert.Equal(t, len("one two three four"), chunks[0].EndOffset)
	assert.Equal(t, len("one two "), chunks[1].StartOffset)
	assert.Equal(t, len(text), chunks[1].EndOffset)

	for _, ch := range chunks {
		assert.Greater(t, ch.EndOffset, ch.StartOffset)
		assert.Equal(t, ch.Content, text[ch.StartOffset:ch.EndOffset])
	}
}

func TestChunkOffsetsNormalizeWhitespace(t *testing.T) {
	c, err := New(3, 1)
	require.NoError(t, err)

	chunks := c.Chunk("doc", "  alpha\tbeta\n\ngamma   delta  ")
	joined := "alpha beta gamma delta"
	for _, ch := range chunks {
		assert.Equal(t, ch.Content, joined[ch.StartOffset:ch.EndOffset])
	}
}

func TestChunkOverlapWordsShared(t *testing.T) {
	c, err := New(10, 3)
	require.NoError(t, err)

	words := make([]string, 57)
	for i := range words {
		words[i] = "w" + strings.Repeat("x", i%5) + string(rune('a'+i%26))
	}
	chunks := c.Chunk("doc", strings.Join(words, " "))
	require.Greater(t, len(chunks), 2)

	for i := 1; i < len(chunks); i++ {
		prev := strings.Fields(chunks[i-1].Content)
		cur := strings.Fields(chunks[i].Content)
		assert.Equal(t, prev[len(prev)-3:], cur[:3], "chunk %d", i)
		assert.GreaterOrEqual(t, chunks[i].StartOffset, chunks[i-1].StartOffset)
	}
	last := strings.Fields(chunks[len(chunks)-1].Content)
	assert.Equal(t, words[len(words)-1], last[len(last)-1])
}

func TestChunkShortText(t *testing.T) {
	c, err := New(50, 10)
	require.NoError(t, err)

	chunks := c.Chunk("doc", "just a few words")
	require.Len(t, chunks, 1)
	assert.Equal(t, "just a few words", chunks[0].Content)
	assert.Equal(t, 4, chunks[0].WordCount)
}

func TestChunkEmptyText(t *testing.T) {
	c, err := New(5, 1)
	require.NoError(t, err)
	assert.Empty(t, c.Chunk("doc", "   \n\t "))
}

func TestNewRejectsInvalidOverlap(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{"overlap equals size", 4, 4},
		{"overlap exceeds size", 4, 8},
		{"negative overlap", 4, -1},
		{"zero size", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.size, tt.overlap)
			assert.ErrorIs(t, err, model.ErrInvalidConfig)
		})
	}
}
