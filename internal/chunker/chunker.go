// Package chunker 将文本按词切分为带重叠的分块。
package chunker

import (
	"fmt"
	"strings"

	"pai-semantic-go/internal/model"
)

// Chunker 以 chunkSize 个词为窗口、每次前进 chunkSize-overlap 个词切分文本。
type Chunker struct {
	chunkSize int
	overlap   int
}

// New 创建 Chunker。overlap 必须小于 chunkSize，否则窗口无法前进。
func New(chunkSize, overlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", model.ErrInvalidConfig, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", model.ErrInvalidConfig, overlap, chunkSize)
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}, nil
}

// Size 返回窗口大小（词数）。
func (c *Chunker) Size() int { return c.chunkSize }

// Overlap 返回相邻分块共享的词数。
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk 切分文本。偏移量基于按单个空格重新拼接后的文本计算。
func (c *Chunker) Chunk(documentID, text string) []model.DocumentChunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	// offsets[i] 为第 i 个词在拼接文本中的起始位置
	offsets := make([]int, len(words))
	pos := 0
	for i, w := range words {
		offsets[i] = pos
		pos += len(w) + 1
	}

	step := c.chunkSize - c.overlap
	chunks := make([]model.DocumentChunk, 0, len(words)/step+1)
	for start := 0; ; start += step {
		end := start + c.chunkSize
		if end > len(words) {
			end = len(words)
		}
		content := strings.Join(words[start:end], " ")
		n := len(chunks)
		chunks = append(chunks, model.DocumentChunk{
			ID:          model.ChunkID(documentID, n),
			DocumentID:  documentID,
			Index:       n,
			Content:     content,
			StartOffset: offsets[start],
			EndOffset:   offsets[start] + len(content),
			WordCount:   end - start,
		})
		if end == len(words) {
			break
		}
	}
	return chunks
}
