package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"pai-semantic-go/internal/config"
	"pai-semantic-go/internal/model"
	"pai-semantic-go/internal/repository"
	"pai-semantic-go/pkg/log"
)

const (
	defaultRecommendations = 5
	snippetRunes           = 150
	collaborativeWeight    = 0.8
	trendingBase           = 0.5
	trendingStep           = 0.05
	trendingFloor          = 0.1
)

// RecommendationService 接口定义了内容推荐。推荐结果按请求即时计算，不做持久化。
type RecommendationService interface {
	Recommend(ctx context.Context, sc model.SearchContext, maxResults int) ([]model.ContentRecommendation, error)
	// SetTrending 设置外部提供的热门文档列表，按热度降序。
	SetTrending(documentIDs []string)
}

type recommendationService struct {
	search SearchService
	docs   repository.DocumentRepository
	stats  StatsService
	cfg    config.RecommendationConfig

	mu       sync.RWMutex
	trending []string
}

// NewRecommendationService 创建一个新的 RecommendationService 实例。
func NewRecommendationService(search SearchService, docs repository.DocumentRepository, stats StatsService, cfg config.RecommendationConfig) RecommendationService {
	return &recommendationService{search: search, docs: docs, stats: stats, cfg: cfg}
}

func (s *recommendationService) SetTrending(documentIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trending = append([]string(nil), documentIDs...)
}

func (s *recommendationService) Recommend(ctx context.Context, sc model.SearchContext, maxResults int) ([]model.ContentRecommendation, error) {
	if maxResults <= 0 {
		maxResults = defaultRecommendations
	}
	log.Infof("[RecommendationService] 开始生成推荐, user: '%s', context: '%s', max: %d", sc.UserID, sc.WorkContext, maxResults)

	var candidates []model.ContentRecommendation
	candidates = append(candidates, s.fromRecentQueries(ctx, sc, maxResults)...)
	candidates = append(candidates, s.contextual(ctx, sc, maxResults)...)
	trending, err := s.fromTrending(ctx)
	if err != nil {
		return nil, err
	}
	candidates = append(candidates, trending...)
	candidates = append(candidates, s.collaborative(ctx, sc, maxResults)...)

	out := rankRecommendations(dedupe(candidates), sc.WorkContext, s.cfg.TieWindow)
	if len(out) > maxResults {
		out = out[:maxResults]
	}
	log.Infof("[RecommendationService] 推荐生成完成, candidates: %d, returned: %d", len(candidates), len(out))
	return out, nil
}

// recentQueries 优先使用上下文中的最近查询（最新的在前），否则使用该用户的检索历史。
func (s *recommendationService) recentQueries(sc model.SearchContext) []string {
	limit := s.cfg.MaxRecentQueries
	if limit <= 0 {
		limit = 3
	}
	var queries []string
	seen := make(map[string]bool)
	add := func(q string) {
		q = strings.TrimSpace(q)
		if q == "" || seen[q] || len(queries) >= limit {
			return
		}
		seen[q] = true
		queries = append(queries, q)
	}

	if len(sc.RecentQueries) > 0 {
		for _, q := range sc.RecentQueries {
			add(q)
		}
		return queries
	}
	history := s.stats.SearchHistory()
	for i := len(history) - 1; i >= 0; i-- {
		if sc.UserID != "" && history[i].UserID != sc.UserID {
			continue
		}
		add(history[i].Query)
	}
	return queries
}

func (s *recommendationService) query(ctx context.Context, text string, sc model.SearchContext, maxResults int, rerank bool) []model.SearchHit {
	res := s.search.Retrieve(ctx, model.SearchQuery{
		Text:       text,
		Threshold:  s.cfg.Threshold,
		MaxResults: maxResults,
		Rerank:     rerank,
	}, sc)
	if res.Error != "" {
		log.Warnf("[RecommendationService] 辅助检索失败, query: '%s', error: %s", text, res.Error)
	}
	return res.Hits
}

func (s *recommendationService) fromRecentQueries(ctx context.Context, sc model.SearchContext, maxResults int) []model.ContentRecommendation {
	var out []model.ContentRecommendation
	for _, q := range s.recentQueries(sc) {
		for _, hit := range s.query(ctx, q, sc, maxResults, false) {
			out = append(out, toRecommendation(hit.Document, hit.Similarity,
				fmt.Sprintf("Similar to your recent search %q", q), model.StrategyRecentQueries))
		}
	}
	return out
}

func (s *recommendationService) contextual(ctx context.Context, sc model.SearchContext, maxResults int) []model.ContentRecommendation {
	keywords := ContextKeywords(sc.WorkContext)
	if keywords == "" {
		return nil
	}
	var out []model.ContentRecommendation
	for _, hit := range s.query(ctx, keywords, sc, maxResults, true) {
		out = append(out, toRecommendation(hit.Document, hit.Similarity,
			fmt.Sprintf("Relevant to your current %s work", sc.WorkContext), model.StrategyContextual))
	}
	return out
}

func (s *recommendationService) fromTrending(ctx context.Context) ([]model.ContentRecommendation, error) {
	s.mu.RLock()
	ids := append([]string(nil), s.trending...)
	s.mu.RUnlock()

	var out []model.ContentRecommendation
	for i, id := range ids {
		doc, err := s.docs.Get(ctx, id)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		score := math.Max(trendingFloor, trendingBase-trendingStep*float64(i))
		out = append(out, toRecommendation(doc, score, "Trending now", model.StrategyTrending))
	}
	return out, nil
}

// collaborative 使用其他用户检索最多的查询，没有 UserID 时不产生候选。
func (s *recommendationService) collaborative(ctx context.Context, sc model.SearchContext, maxResults int) []model.ContentRecommendation {
	if sc.UserID == "" {
		return nil
	}
	counts := make(map[string]int)
	last := make(map[string]int)
	for i, e := range s.stats.SearchHistory() {
		if e.UserID == "" || e.UserID == sc.UserID || strings.TrimSpace(e.Query) == "" {
			continue
		}
		counts[e.Query]++
		last[e.Query] = i
	}
	queries := make([]string, 0, len(counts))
	for q := range counts {
		queries = append(queries, q)
	}
	sort.Slice(queries, func(i, j int) bool {
		if counts[queries[i]] != counts[queries[j]] {
			return counts[queries[i]] > counts[queries[j]]
		}
		return last[queries[i]] > last[queries[j]]
	})
	limit := s.cfg.MaxRecentQueries
	if limit <= 0 {
		limit = 3
	}
	if len(queries) > limit {
		queries = queries[:limit]
	}

	var out []model.ContentRecommendation
	for _, q := range queries {
		for _, hit := range s.query(ctx, q, sc, maxResults, false) {
			out = append(out, toRecommendation(hit.Document, hit.Similarity*collaborativeWeight,
				fmt.Sprintf("Popular with other users searching %q", q), model.StrategyCollaborative))
		}
	}
	return out
}

func toRecommendation(doc *model.IndexedDocument, score float64, reason string, strategy model.RecommendationStrategy) model.ContentRecommendation {
	return model.ContentRecommendation{
		DocumentID:     doc.ID,
		Title:          doc.Content.Title,
		Snippet:        snippet(doc.Content),
		RelevanceScore: score,
		Reason:         reason,
		Category:       doc.Metadata.Category,
		Tags:           doc.Metadata.Tags,
		Strategy:       strategy,
	}
}

func snippet(d model.Document) string {
	text := strings.TrimSpace(d.Summary)
	if text == "" {
		text = strings.Join(strings.Fields(d.Body), " ")
	}
	if utf8.RuneCountInString(text) <= snippetRunes {
		return text
	}
	return string([]rune(text)[:snippetRunes-3]) + "..."
}

// dedupe 按文档 ID 去重，保留第一次出现的候选。
func dedupe(in []model.ContentRecommendation) []model.ContentRecommendation {
	seen := make(map[string]bool, len(in))
	out := make([]model.ContentRecommendation, 0, len(in))
	for _, r := range in {
		if seen[r.DocumentID] {
			continue
		}
		seen[r.DocumentID] = true
		out = append(out, r)
	}
	return out
}

// rankRecommendations 按相关度降序排序；相关度相差不超过 tieWindow 时，分类与工作上下文一致的排在前面。
func rankRecommendations(recs []model.ContentRecommendation, workContext string, tieWindow float64) []model.ContentRecommendation {
	matches := func(r model.ContentRecommendation) bool {
		return workContext != "" && strings.EqualFold(r.Category, workContext)
	}
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if math.Abs(a.RelevanceScore-b.RelevanceScore) <= tieWindow {
			if ma, mb := matches(a), matches(b); ma != mb {
				return ma
			}
		}
		return a.RelevanceScore > b.RelevanceScore
	})
	return recs
}
