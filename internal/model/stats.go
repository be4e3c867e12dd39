package model

import "time"

// IndexingStats 是累计的索引统计，只在重建索引时清零。
type IndexingStats struct {
	TotalDocuments          int       `json:"totalDocuments"`
	TotalChunks             int       `json:"totalChunks"`
	TotalEmbeddings         int       `json:"totalEmbeddings"`
	IndexOperations         int       `json:"indexOperations"`
	AverageProcessingTimeMs float64   `json:"averageProcessingTimeMs"`
	EmbeddingFailures       int       `json:"embeddingFailures"`
	IndexingErrors          int       `json:"indexingErrors"`
	LastIndexedAt           time.Time `json:"lastIndexedAt"`
}

// SearchAnalytics 是累计的检索统计。TopQueries 与 SearchTrends 有容量上限。
type SearchAnalytics struct {
	TotalSearches           int            `json:"totalSearches"`
	FailedSearches          int            `json:"failedSearches"`
	AverageResultsPerSearch float64        `json:"averageResultsPerSearch"`
	AverageExecutionTimeMs  float64        `json:"averageExecutionTimeMs"`
	TopQueries              map[string]int `json:"topQueries"`
	SearchTrends            map[string]int `json:"searchTrends"`
}

// SearchHistoryEntry 是一条检索历史。
type SearchHistoryEntry struct {
	Query       string    `json:"query"`
	UserID      string    `json:"userId,omitempty"`
	WorkContext string    `json:"workContext,omitempty"`
	ResultCount int       `json:"resultCount"`
	Timestamp   time.Time `json:"timestamp"`
}

// IndexingResult 是单个文档索引操作的结果对象。
type IndexingResult struct {
	Success             bool   `json:"success"`
	DocumentID          string `json:"documentId"`
	ChunksCreated       int    `json:"chunksCreated"`
	EmbeddingsGenerated int    `json:"embeddingsGenerated"`
	ProcessingTimeMs    int64  `json:"processingTimeMs"`
	Version             int    `json:"version,omitempty"`
	Error               string `json:"error,omitempty"`
}

// OptimizeReport 描述一次索引整理的结果。
type OptimizeReport struct {
	OrphansRemoved  int   `json:"orphansRemoved"`
	InvalidRemoved  int   `json:"invalidRemoved"`
	EmbeddingsAfter int   `json:"embeddingsAfter"`
	DurationMs      int64 `json:"durationMs"`
}
