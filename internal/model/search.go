package model

import "time"

// SearchQuery 是一次检索请求。Embedding 在执行时延迟填充。
type SearchQuery struct {
	Text       string    `json:"text"`
	Embedding  []float32 `json:"-"`
	Threshold  float64   `json:"threshold"`
	MaxResults int       `json:"maxResults"`
	Rerank     bool      `json:"rerank"`
	Explain    bool      `json:"explain"`
	Metric     string    `json:"metric,omitempty"`
}

// SearchContext 是调用方提供的工作上下文，用于查询扩展与重排序。
type SearchContext struct {
	WorkContext   string    `json:"workContext,omitempty"`
	UserID        string    `json:"userId,omitempty"`
	RecentQueries []string  `json:"recentQueries,omitempty"`
	Now           time.Time `json:"-"`
}

// ChunkMatch 是命中文档中贡献了相似度的分块。
type ChunkMatch struct {
	ChunkID    string  `json:"chunkId"`
	Similarity float64 `json:"similarity"`
}

// HitExplanation 说明一条命中的得分构成。
type HitExplanation struct {
	RawSimilarity  float64  `json:"rawSimilarity"`
	ContextBoost   float64  `json:"contextBoost"`
	RecencyBoost   float64  `json:"recencyBoost"`
	FinalScore     float64  `json:"finalScore"`
	MatchedChunks  int      `json:"matchedChunks"`
	AppliedSignals []string `json:"appliedSignals,omitempty"`
}

// SearchHit 是检索结果中的单个文档。
type SearchHit struct {
	Document    *IndexedDocument `json:"document"`
	Similarity  float64          `json:"similarity"`
	Distance    float64          `json:"distance"`
	Explanation *HitExplanation  `json:"explanation,omitempty"`
	Chunks      []ChunkMatch     `json:"chunks"`
}

// SearchResult 是检索的返回值。失败时 Hits 为空切片而非 nil。
type SearchResult struct {
	Hits            []SearchHit `json:"hits"`
	Query           SearchQuery `json:"query"`
	ExecutedQuery   string      `json:"executedQuery"`
	ExecutionTimeMs int64       `json:"executionTimeMs"`
	ModelUsed       string      `json:"modelUsed"`
	Error           string      `json:"error,omitempty"`
}

// RecommendationStrategy 标识推荐候选的来源。
type RecommendationStrategy string

const (
	StrategyRecentQueries RecommendationStrategy = "recent_queries"
	StrategyContextual    RecommendationStrategy = "contextual"
	StrategyTrending      RecommendationStrategy = "trending"
	StrategyCollaborative RecommendationStrategy = "collaborative"
)

// ContentRecommendation 是按请求即时计算的推荐项，不做持久化。
type ContentRecommendation struct {
	DocumentID     string                 `json:"documentId"`
	Title          string                 `json:"title"`
	Snippet        string                 `json:"snippet"`
	RelevanceScore float64                `json:"relevanceScore"`
	Reason         string                 `json:"reason"`
	Category       string                 `json:"category,omitempty"`
	Tags           []string               `json:"tags,omitempty"`
	Strategy       RecommendationStrategy `json:"strategy"`
}
