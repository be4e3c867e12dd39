package repository

import (
	"context"
	"errors"
	"time"

	"pai-semantic-go/internal/model"
	"pai-semantic-go/pkg/kv"
)

const (
	indexingStatsKey   = "indexing_stats"
	searchAnalyticsKey = "search_analytics"
	searchHistoryKey   = "search_history"
)

// StatsRepository 定义了统计数据和检索历史的持久化操作。
type StatsRepository interface {
	LoadIndexingStats(ctx context.Context) (model.IndexingStats, error)
	SaveIndexingStats(ctx context.Context, stats model.IndexingStats) error
	ResetIndexingStats(ctx context.Context) error

	LoadSearchAnalytics(ctx context.Context) (model.SearchAnalytics, error)
	SaveSearchAnalytics(ctx context.Context, analytics model.SearchAnalytics) error

	LoadSearchHistory(ctx context.Context) ([]model.SearchHistoryEntry, error)
	// SaveSearchHistory 整体覆盖检索历史，ttl 为 0 表示永不过期。
	SaveSearchHistory(ctx context.Context, entries []model.SearchHistoryEntry, ttl time.Duration) error

	// ClearSearchData 删除检索统计与检索历史。
	ClearSearchData(ctx context.Context) error
}

type kvStatsRepository struct {
	store kv.Store
}

// NewStatsRepository 创建一个基于 KV 的 StatsRepository。
func NewStatsRepository(store kv.Store) StatsRepository {
	return &kvStatsRepository{store: store}
}

func (r *kvStatsRepository) LoadIndexingStats(ctx context.Context) (model.IndexingStats, error) {
	var stats model.IndexingStats
	_, err := getJSON(ctx, r.store, indexingStatsKey, &stats)
	return stats, err
}

func (r *kvStatsRepository) SaveIndexingStats(ctx context.Context, stats model.IndexingStats) error {
	return setJSON(ctx, r.store, indexingStatsKey, stats, 0)
}

func (r *kvStatsRepository) ResetIndexingStats(ctx context.Context) error {
	_, err := removeKey(ctx, r.store, indexingStatsKey)
	return err
}

func (r *kvStatsRepository) LoadSearchAnalytics(ctx context.Context) (model.SearchAnalytics, error) {
	var analytics model.SearchAnalytics
	if _, err := getJSON(ctx, r.store, searchAnalyticsKey, &analytics); err != nil {
		return model.SearchAnalytics{}, err
	}
	if analytics.TopQueries == nil {
		analytics.TopQueries = make(map[string]int)
	}
	if analytics.SearchTrends == nil {
		analytics.SearchTrends = make(map[string]int)
	}
	return analytics, nil
}

func (r *kvStatsRepository) SaveSearchAnalytics(ctx context.Context, analytics model.SearchAnalytics) error {
	return setJSON(ctx, r.store, searchAnalyticsKey, analytics, 0)
}

func (r *kvStatsRepository) LoadSearchHistory(ctx context.Context) ([]model.SearchHistoryEntry, error) {
	entries := []model.SearchHistoryEntry{}
	if _, err := getJSON(ctx, r.store, searchHistoryKey, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *kvStatsRepository) SaveSearchHistory(ctx context.Context, entries []model.SearchHistoryEntry, ttl time.Duration) error {
	return setJSON(ctx, r.store, searchHistoryKey, entries, ttl)
}

func (r *kvStatsRepository) ClearSearchData(ctx context.Context) error {
	_, errHistory := removeKey(ctx, r.store, searchHistoryKey)
	_, errAnalytics := removeKey(ctx, r.store, searchAnalyticsKey)
	return errors.Join(errHistory, errAnalytics)
}
