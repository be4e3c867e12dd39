package model

import "time"

// EmbeddingMetadata 记录生成向量时的分块信息与预处理步骤。
type EmbeddingMetadata struct {
	ChunkIndex         int      `json:"chunkIndex"`
	ChunkSize          int      `json:"chunkSize"`
	WordCount          int      `json:"wordCount"`
	StartOffset        int      `json:"startOffset"`
	EndOffset          int      `json:"endOffset"`
	PreprocessingSteps []string `json:"preprocessingSteps,omitempty"`
	QualityScore       float64  `json:"qualityScore"`
}

// VectorEmbedding 是一个分块的向量表示，ID 与分块 ID 相同。
type VectorEmbedding struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"documentId"`
	Vector     []float32         `json:"vector"`
	Model      string            `json:"model"`
	CreatedAt  time.Time         `json:"createdAt"`
	Metadata   EmbeddingMetadata `json:"metadata"`
}
