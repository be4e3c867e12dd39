package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"pai-semantic-go/internal/config"
	"pai-semantic-go/internal/model"
	"pai-semantic-go/internal/repository"
	"pai-semantic-go/internal/vectorstore"
	"pai-semantic-go/pkg/embedding"
	"pai-semantic-go/pkg/log"
)

// 重排序中记录的信号名。
const (
	SignalContextMatch = "context_match"
	SignalRecent       = "recent"
)

// SearchService 接口定义了检索操作。
type SearchService interface {
	// Search 执行检索并记录检索统计与历史。失败时返回 Error 非空、Hits 为空的结果。
	Search(ctx context.Context, q model.SearchQuery, sc model.SearchContext) model.SearchResult
	// Retrieve 与 Search 相同，但不记录统计，供推荐等内部调用使用。
	Retrieve(ctx context.Context, q model.SearchQuery, sc model.SearchContext) model.SearchResult
}

type searchService struct {
	provider embedding.Provider
	store    *vectorstore.Store
	docs     repository.DocumentRepository
	qp       *QueryProcessor
	stats    StatsService
	cfg      config.SearchConfig
	now      func() time.Time
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(
	provider embedding.Provider,
	store *vectorstore.Store,
	docs repository.DocumentRepository,
	qp *QueryProcessor,
	stats StatsService,
	cfg config.SearchConfig,
) SearchService {
	return &searchService{
		provider: provider,
		store:    store,
		docs:     docs,
		qp:       qp,
		stats:    stats,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (s *searchService) Search(ctx context.Context, q model.SearchQuery, sc model.SearchContext) model.SearchResult {
	start := time.Now()
	result := s.Retrieve(ctx, q, sc)
	s.stats.RecordSearch(ctx, SearchRecord{
		Query:       strings.TrimSpace(q.Text),
		UserID:      sc.UserID,
		WorkContext: sc.WorkContext,
		ResultCount: len(result.Hits),
		Duration:    time.Since(start),
		Failed:      result.Error != "",
		At:          sc.Now,
	})
	return result
}

// normalize 填充默认值。Threshold 为 0 时使用配置的默认阈值，负数表示不过滤。
func (s *searchService) normalize(q model.SearchQuery) (model.SearchQuery, vectorstore.Metric, error) {
	if strings.TrimSpace(q.Text) == "" {
		return q, "", fmt.Errorf("%w: query text is empty", model.ErrValidation)
	}
	if q.Threshold == 0 {
		q.Threshold = s.cfg.DefaultThreshold
	}
	if q.Threshold > 1 {
		return q, "", fmt.Errorf("%w: threshold %.3f is greater than 1", model.ErrValidation, q.Threshold)
	}
	if q.MaxResults <= 0 {
		q.MaxResults = s.cfg.DefaultMaxResults
	}
	name := q.Metric
	if name == "" {
		name = s.cfg.Metric
	}
	metric, err := vectorstore.ParseMetric(name)
	if err != nil {
		return q, "", err
	}
	q.Metric = string(metric)
	return q, metric, nil
}

func (s *searchService) Retrieve(ctx context.Context, q model.SearchQuery, sc model.SearchContext) model.SearchResult {
	start := time.Now()
	result := model.SearchResult{Hits: []model.SearchHit{}, Query: q, ModelUsed: s.provider.Model()}
	finish := func(err error) model.SearchResult {
		if err != nil {
			result.Error = err.Error()
		}
		result.ExecutionTimeMs = time.Since(start).Milliseconds()
		return result
	}

	q, metric, err := s.normalize(q)
	result.Query = q
	if err != nil {
		return finish(err)
	}

	// 1. 扩展查询
	enhanced := s.qp.Enhance(q.Text, sc)
	result.ExecutedQuery = enhanced

	// 2. 向量化（只做一次）
	vec := q.Embedding
	if len(vec) == 0 {
		vec, err = s.provider.Embed(ctx, enhanced)
		if err != nil {
			log.Warnf("[SearchService] 向量化查询失败, query: '%s', error: %v", q.Text, err)
			return finish(fmt.Errorf("%w: %v", model.ErrEmbedding, err))
		}
	}

	// 3. 相似度检索，候选池按分块计。同一文档的分块可能占满候选池，
	// 聚合后不足 MaxResults 个文档时扩大候选池，直到候选覆盖全部满足阈值的分块。
	multiplier := s.cfg.CandidateMultiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	limit := q.MaxResults * multiplier
	var matches []vectorstore.Match
	var hits []model.SearchHit
	for {
		matches, err = s.store.SimilaritySearch(ctx, vec, vectorstore.SearchOptions{
			Metric:     metric,
			Threshold:  q.Threshold,
			MaxResults: limit,
		})
		if err != nil {
			log.Warnf("[SearchService] 相似度检索失败, query: '%s', error: %v", q.Text, err)
			return finish(err)
		}

		// 4. 按文档聚合并加载文档记录
		hits = s.hydrate(ctx, matches)
		if len(hits) >= q.MaxResults || len(matches) < limit {
			break
		}
		limit *= 2
	}

	// 5. 重排序
	now := sc.Now
	if now.IsZero() {
		now = s.now()
	}
	for i := range hits {
		raw := hits[i].Similarity
		ctxBoost, recencyBoost, signals := 1.0, 1.0, []string(nil)
		if q.Rerank {
			ctxBoost, recencyBoost, signals = s.boosts(hits[i].Document, sc.WorkContext, now)
			hits[i].Similarity = raw * ctxBoost * recencyBoost
		}
		if q.Explain {
			hits[i].Explanation = &model.HitExplanation{
				RawSimilarity:  raw,
				ContextBoost:   ctxBoost,
				RecencyBoost:   recencyBoost,
				FinalScore:     hits[i].Similarity,
				MatchedChunks:  len(hits[i].Chunks),
				AppliedSignals: signals,
			}
		}
	}
	if q.Rerank {
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	}
	if len(hits) > q.MaxResults {
		hits = hits[:q.MaxResults]
	}
	result.Hits = hits

	log.Infof("[SearchService] 检索完成, query: '%s', candidates: %d, hits: %d", q.Text, len(matches), len(hits))
	return finish(nil)
}

// hydrate 按文档聚合分块结果，文档相似度取其分块的最大值。找不到文档记录的结果被跳过。
func (s *searchService) hydrate(ctx context.Context, matches []vectorstore.Match) []model.SearchHit {
	var order []string
	grouped := make(map[string]*model.SearchHit)
	for _, m := range matches {
		hit, ok := grouped[m.DocumentID]
		if !ok {
			hit = &model.SearchHit{Similarity: m.Similarity, Distance: m.Distance}
			grouped[m.DocumentID] = hit
			order = append(order, m.DocumentID)
		}
		hit.Chunks = append(hit.Chunks, model.ChunkMatch{ChunkID: m.ChunkID, Similarity: m.Similarity})
	}

	hits := make([]model.SearchHit, 0, len(order))
	for _, id := range order {
		doc, err := s.docs.Get(ctx, id)
		if err != nil {
			if !errors.Is(err, model.ErrNotFound) {
				log.Warnf("[SearchService] 加载文档失败, DocumentID: %s, error: %v", id, err)
			}
			continue
		}
		hit := grouped[id]
		hit.Document = doc
		hits = append(hits, *hit)
	}
	return hits
}

// boosts 返回上下文匹配与时效两个独立的乘数。
func (s *searchService) boosts(doc *model.IndexedDocument, workContext string, now time.Time) (float64, float64, []string) {
	ctxBoost, recencyBoost := 1.0, 1.0
	var signals []string
	if workContext != "" && strings.EqualFold(doc.Metadata.Category, workContext) {
		ctxBoost = s.cfg.ContextBoost
		signals = append(signals, SignalContextMatch)
	}
	modified := doc.Metadata.ModifiedAt
	if !modified.IsZero() && now.Sub(modified) <= s.cfg.RecencyWindow {
		recencyBoost = s.cfg.RecencyBoost
		signals = append(signals, SignalRecent)
	}
	return ctxBoost, recencyBoost, signals
}
