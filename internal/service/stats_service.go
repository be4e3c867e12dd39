// Package service 包含了索引、检索、推荐与统计的业务逻辑层。
package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"pai-semantic-go/internal/config"
	"pai-semantic-go/internal/model"
	"pai-semantic-go/internal/repository"
	"pai-semantic-go/pkg/log"
)

// IndexDelta 描述一次成功索引或删除对累计统计的影响。
type IndexDelta struct {
	Documents         int
	Chunks            int
	Embeddings        int
	EmbeddingFailures int
	Duration          time.Duration
}

// SearchRecord 是一次检索的统计输入。
type SearchRecord struct {
	Query       string
	UserID      string
	WorkContext string
	ResultCount int
	Duration    time.Duration
	Failed      bool
	At          time.Time
}

// StatsService 接口定义了统计数据的累计、查询与持久化。
// 持久化失败只记录日志，不影响调用方。
type StatsService interface {
	Load(ctx context.Context) error
	RecordIndexed(ctx context.Context, delta IndexDelta)
	RecordIndexError(ctx context.Context)
	RecordRemoved(ctx context.Context, delta IndexDelta)
	ResetIndexing(ctx context.Context) error
	IndexingStats() model.IndexingStats

	RecordSearch(ctx context.Context, rec SearchRecord)
	SearchAnalytics() model.SearchAnalytics
	// SearchHistory 返回检索历史，最新的在最后。
	SearchHistory() []model.SearchHistoryEntry
	ClearSearchData(ctx context.Context) error
}

type statsService struct {
	repo repository.StatsRepository
	cfg  config.StatsConfig
	now  func() time.Time

	mu        sync.Mutex
	indexing  model.IndexingStats
	analytics model.SearchAnalytics
	history   []model.SearchHistoryEntry
}

// NewStatsService 创建一个新的 StatsService 实例。
func NewStatsService(repo repository.StatsRepository, cfg config.StatsConfig) StatsService {
	return &statsService{
		repo:      repo,
		cfg:       cfg,
		now:       time.Now,
		analytics: emptyAnalytics(),
	}
}

func emptyAnalytics() model.SearchAnalytics {
	return model.SearchAnalytics{TopQueries: map[string]int{}, SearchTrends: map[string]int{}}
}

func (s *statsService) Load(ctx context.Context) error {
	indexing, err := s.repo.LoadIndexingStats(ctx)
	if err != nil {
		return err
	}
	analytics, err := s.repo.LoadSearchAnalytics(ctx)
	if err != nil {
		return err
	}
	history, err := s.repo.LoadSearchHistory(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexing = indexing
	s.analytics = analytics
	s.history = history
	log.Infof("[StatsService] 统计数据已加载, documents: %d, searches: %d, history: %d",
		indexing.TotalDocuments, analytics.TotalSearches, len(history))
	return nil
}

func (s *statsService) RecordIndexed(ctx context.Context, delta IndexDelta) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &s.indexing
	st.TotalDocuments = nonNegative(st.TotalDocuments + delta.Documents)
	st.TotalChunks = nonNegative(st.TotalChunks + delta.Chunks)
	st.TotalEmbeddings = nonNegative(st.TotalEmbeddings + delta.Embeddings)
	st.EmbeddingFailures += delta.EmbeddingFailures
	st.IndexOperations++
	ms := float64(delta.Duration) / float64(time.Millisecond)
	st.AverageProcessingTimeMs += (ms - st.AverageProcessingTimeMs) / float64(st.IndexOperations)
	st.LastIndexedAt = s.now()

	s.persistIndexing(ctx)
}

func (s *statsService) RecordIndexError(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexing.IndexingErrors++
	s.persistIndexing(ctx)
}

func (s *statsService) RecordRemoved(ctx context.Context, delta IndexDelta) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &s.indexing
	st.TotalDocuments = nonNegative(st.TotalDocuments - delta.Documents)
	st.TotalChunks = nonNegative(st.TotalChunks - delta.Chunks)
	st.TotalEmbeddings = nonNegative(st.TotalEmbeddings - delta.Embeddings)
	s.persistIndexing(ctx)
}

func (s *statsService) ResetIndexing(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexing = model.IndexingStats{}
	return s.repo.ResetIndexingStats(ctx)
}

func (s *statsService) IndexingStats() model.IndexingStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexing
}

// persistIndexing 调用方需持有 s.mu。
func (s *statsService) persistIndexing(ctx context.Context) {
	if err := s.repo.SaveIndexingStats(ctx, s.indexing); err != nil {
		log.Warnf("[StatsService] 保存索引统计失败: %v", err)
	}
}

func (s *statsService) RecordSearch(ctx context.Context, rec SearchRecord) {
	if rec.At.IsZero() {
		rec.At = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a := &s.analytics
	a.TotalSearches++
	if rec.Failed {
		a.FailedSearches++
	}
	n := float64(a.TotalSearches)
	a.AverageResultsPerSearch += (float64(rec.ResultCount) - a.AverageResultsPerSearch) / n
	ms := float64(rec.Duration) / float64(time.Millisecond)
	a.AverageExecutionTimeMs += (ms - a.AverageExecutionTimeMs) / n

	if rec.Query != "" {
		a.TopQueries[rec.Query]++
		trimCounts(a.TopQueries, s.cfg.TopQueriesLimit, rec.Query)
	}
	a.SearchTrends[rec.At.Format("2006-01-02")]++
	trimOldestDays(a.SearchTrends, s.cfg.TrendDays)

	s.history = append(s.history, model.SearchHistoryEntry{
		Query:       rec.Query,
		UserID:      rec.UserID,
		WorkContext: rec.WorkContext,
		ResultCount: rec.ResultCount,
		Timestamp:   rec.At,
	})
	if limit := s.cfg.HistorySize; limit > 0 && len(s.history) > limit {
		s.history = append([]model.SearchHistoryEntry(nil), s.history[len(s.history)-limit:]...)
	}

	if err := s.repo.SaveSearchAnalytics(ctx, *a); err != nil {
		log.Warnf("[StatsService] 保存检索统计失败: %v", err)
	}
	if err := s.repo.SaveSearchHistory(ctx, s.history, s.cfg.HistoryTTL); err != nil {
		log.Warnf("[StatsService] 保存检索历史失败: %v", err)
	}
}

func (s *statsService) SearchAnalytics() model.SearchAnalytics {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.analytics
	out.TopQueries = make(map[string]int, len(s.analytics.TopQueries))
	for k, v := range s.analytics.TopQueries {
		out.TopQueries[k] = v
	}
	out.SearchTrends = make(map[string]int, len(s.analytics.SearchTrends))
	for k, v := range s.analytics.SearchTrends {
		out.SearchTrends[k] = v
	}
	return out
}

func (s *statsService) SearchHistory() []model.SearchHistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.SearchHistoryEntry(nil), s.history...)
}

func (s *statsService) ClearSearchData(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analytics = emptyAnalytics()
	s.history = nil
	if err := s.repo.ClearSearchData(ctx); err != nil {
		return err
	}
	log.Info("[StatsService] 检索统计与历史已清空")
	return nil
}

// trimCounts 把 counts 限制在 limit 个以内，淘汰次数最少的 key（同次数淘汰字典序较大的），
// 不淘汰 keep。
func trimCounts(counts map[string]int, limit int, keep string) {
	if limit <= 0 {
		return
	}
	for len(counts) > limit {
		victim := ""
		for k, v := range counts {
			if k == keep {
				continue
			}
			if victim == "" || v < counts[victim] || (v == counts[victim] && k > victim) {
				victim = k
			}
		}
		if victim == "" {
			return
		}
		delete(counts, victim)
	}
}

// trimOldestDays 只保留最近 days 个日期。
func trimOldestDays(trends map[string]int, days int) {
	if days <= 0 || len(trends) <= days {
		return
	}
	keys := make([]string, 0, len(trends))
	for k := range trends {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys[:len(keys)-days] {
		delete(trends, k)
	}
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
