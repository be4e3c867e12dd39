package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"pai-semantic-go/internal/chunker"
	"pai-semantic-go/internal/model"
	"pai-semantic-go/internal/pipeline"
	"pai-semantic-go/internal/repository"
	"pai-semantic-go/internal/vectorstore"
	"pai-semantic-go/pkg/embedding"
	"pai-semantic-go/pkg/log"
)

// ChunkMirror 是可选的外部分块镜像（例如 Elasticsearch）。镜像失败不影响索引结果。
type ChunkMirror interface {
	IndexChunks(ctx context.Context, chunks []model.DocumentChunk, embs []model.VectorEmbedding) error
	DeleteDocument(ctx context.Context, documentID string) error
}

// IndexService 接口定义了文档生命周期相关的业务操作。
type IndexService interface {
	IndexDocument(ctx context.Context, req model.IndexRequest) model.IndexingResult
	IndexDocuments(ctx context.Context, reqs []model.IndexRequest) []model.IndexingResult
	UpdateDocument(ctx context.Context, req model.IndexRequest) model.IndexingResult
	// RemoveDocument 级联删除文档、分块和向量；文档不存在时返回 false, nil。
	RemoveDocument(ctx context.Context, id string) (bool, error)
	GetDocument(ctx context.Context, id string) (*model.IndexedDocument, error)
	RebuildIndex(ctx context.Context) error
	OptimizeIndex(ctx context.Context) (model.OptimizeReport, error)
}

type indexService struct {
	provider     embedding.Provider
	store        *vectorstore.Store
	chunker      *chunker.Chunker
	preprocessor *pipeline.Preprocessor
	docs         repository.DocumentRepository
	chunks       repository.ChunkRepository
	stats        StatsService
	mirror       ChunkMirror
	now          func() time.Time

	// mu 串行化持久化阶段；向量化在锁外进行。
	mu sync.Mutex
}

// NewIndexService 创建一个新的 IndexService 实例。mirror 可以为 nil。
func NewIndexService(
	provider embedding.Provider,
	store *vectorstore.Store,
	textChunker *chunker.Chunker,
	preprocessor *pipeline.Preprocessor,
	docs repository.DocumentRepository,
	chunks repository.ChunkRepository,
	stats StatsService,
	mirror ChunkMirror,
) IndexService {
	return &indexService{
		provider:     provider,
		store:        store,
		chunker:      textChunker,
		preprocessor: preprocessor,
		docs:         docs,
		chunks:       chunks,
		stats:        stats,
		mirror:       mirror,
		now:          time.Now,
	}
}

func validateRequest(req model.IndexRequest) error {
	if strings.TrimSpace(req.ID) == "" {
		return fmt.Errorf("%w: document id is required", model.ErrValidation)
	}
	if strings.TrimSpace(req.Content.Title) == "" {
		return fmt.Errorf("%w: document %s has no title", model.ErrValidation, req.ID)
	}
	return nil
}

func (s *indexService) IndexDocument(ctx context.Context, req model.IndexRequest) model.IndexingResult {
	return s.index(ctx, req)
}

// index 执行完整的索引流程。同 ID 的旧文档存在时沿用其版本号与创建时间。
func (s *indexService) index(ctx context.Context, req model.IndexRequest) model.IndexingResult {
	start := time.Now()
	fail := func(err error) model.IndexingResult {
		s.stats.RecordIndexError(ctx)
		log.Errorf("[IndexService] 索引文档失败, DocumentID: %s, Error: %v", req.ID, err)
		return model.IndexingResult{
			Success:          false,
			DocumentID:       req.ID,
			ProcessingTimeMs: time.Since(start).Milliseconds(),
			Error:            err.Error(),
		}
	}

	log.Infof("[IndexService] 开始索引文档, DocumentID: %s", req.ID)
	if err := validateRequest(req); err != nil {
		return fail(err)
	}

	// 1. 预处理
	opts := s.preprocessor.Resolve(req.Options)
	pre := s.preprocessor.Process(req.Content, opts)
	log.Infof("[IndexService] 步骤1: 预处理完成, keywords: %d, entities: %d, topics: %d, quality: %.3f",
		len(pre.Document.Keywords), len(pre.Document.Entities), len(pre.Document.Topics), pre.Quality.Score)

	// 2. 分块
	chunks := s.chunker.Chunk(req.ID, pre.Document.FullText())
	log.Infof("[IndexService] 步骤2: 文本分块完成, 共生成 %d 个分块", len(chunks))

	// 3. 向量化，单个分块失败不中断
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	results := s.provider.EmbedMany(ctx, texts)
	now := s.now()
	embs := make([]model.VectorEmbedding, 0, len(chunks))
	failures := 0
	for i, r := range results {
		if r.Err != nil {
			failures++
			log.Warnf("[IndexService] 分块向量化失败, ChunkID: %s, Error: %v", chunks[i].ID, r.Err)
			continue
		}
		c := chunks[i]
		embs = append(embs, model.VectorEmbedding{
			ID:         c.ID,
			DocumentID: req.ID,
			Vector:     r.Vector,
			Model:      s.provider.Model(),
			CreatedAt:  now,
			Metadata: model.EmbeddingMetadata{
				ChunkIndex:         c.Index,
				ChunkSize:          s.chunker.Size(),
				WordCount:          c.WordCount,
				StartOffset:        c.StartOffset,
				EndOffset:          c.EndOffset,
				PreprocessingSteps: pre.Steps,
				QualityScore:       pre.Quality.Score,
			},
		})
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	log.Infof("[IndexService] 步骤3: 向量化完成, 成功 %d 个, 失败 %d 个", len(embs), failures)

	// 4. 持久化：向量 -> 分块 -> 文档记录（最后写入）
	s.mu.Lock()
	prev, err := s.docs.Get(ctx, req.ID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		s.mu.Unlock()
		return fail(err)
	}

	doc := &model.IndexedDocument{
		ID:             req.ID,
		Content:        pre.Document,
		Metadata:       req.Metadata,
		Quality:        pre.Quality,
		IndexedAt:      now,
		Version:        1,
		ChunkCount:     len(chunks),
		EmbeddingCount: len(embs),
	}
	doc.Metadata.QualityScore = pre.Quality.Score
	if doc.Metadata.ModifiedAt.IsZero() {
		doc.Metadata.ModifiedAt = now
	}
	if prev != nil {
		doc.Version = prev.Version + 1
		if doc.Metadata.CreatedAt.IsZero() {
			doc.Metadata.CreatedAt = prev.Metadata.CreatedAt
		}
	}
	if doc.Metadata.CreatedAt.IsZero() {
		doc.Metadata.CreatedAt = now
	}

	if err := s.persist(ctx, doc, chunks, embs); err != nil {
		s.mu.Unlock()
		return fail(err)
	}
	s.mu.Unlock()
	log.Infof("[IndexService] 步骤4: 持久化完成, DocumentID: %s, Version: %d", req.ID, doc.Version)

	if s.mirror != nil {
		if err := s.mirror.DeleteDocument(ctx, req.ID); err != nil {
			log.Warnf("[IndexService] 清理镜像旧分块失败, DocumentID: %s, Error: %v", req.ID, err)
		}
		if err := s.mirror.IndexChunks(ctx, chunks, embs); err != nil {
			log.Warnf("[IndexService] 同步分块到镜像失败, DocumentID: %s, Error: %v", req.ID, err)
		}
	}

	// 5. 统计
	elapsed := time.Since(start)
	delta := IndexDelta{
		Documents:         1,
		Chunks:            len(chunks),
		Embeddings:        len(embs),
		EmbeddingFailures: failures,
		Duration:          elapsed,
	}
	if prev != nil {
		delta.Documents = 0
		delta.Chunks -= prev.ChunkCount
		delta.Embeddings -= prev.EmbeddingCount
	}
	s.stats.RecordIndexed(ctx, delta)

	log.Infof("[IndexService] 文档索引成功, DocumentID: %s, chunks: %d, embeddings: %d, 耗时: %dms",
		req.ID, len(chunks), len(embs), elapsed.Milliseconds())
	return model.IndexingResult{
		Success:             true,
		DocumentID:          req.ID,
		ChunksCreated:       len(chunks),
		EmbeddingsGenerated: len(embs),
		ProcessingTimeMs:    elapsed.Milliseconds(),
		Version:             doc.Version,
	}
}

// persist 写入向量、分块和文档记录。任何一步失败都会恢复此前写入的内容。调用方需持有 s.mu。
func (s *indexService) persist(ctx context.Context, doc *model.IndexedDocument, chunks []model.DocumentChunk, embs []model.VectorEmbedding) error {
	prevEmbs := s.store.GetByDocument(doc.ID)
	prevChunks, err := s.chunks.FindByDocument(ctx, doc.ID)
	if err != nil {
		return err
	}

	if _, err := s.store.ReplaceDocument(ctx, doc.ID, embs); err != nil {
		return err
	}
	if err := s.chunks.Replace(ctx, doc.ID, chunks); err != nil {
		s.restoreEmbeddings(ctx, doc.ID, prevEmbs)
		return err
	}
	if err := s.docs.Save(ctx, doc); err != nil {
		s.restoreEmbeddings(ctx, doc.ID, prevEmbs)
		s.restoreChunks(ctx, doc.ID, prevChunks)
		return err
	}
	return nil
}

func (s *indexService) restoreEmbeddings(ctx context.Context, id string, embs []model.VectorEmbedding) {
	if _, err := s.store.ReplaceDocument(ctx, id, embs); err != nil {
		log.Errorf("[IndexService] 回滚向量失败, DocumentID: %s, Error: %v", id, err)
	}
}

func (s *indexService) restoreChunks(ctx context.Context, id string, chunks []model.DocumentChunk) {
	var err error
	if len(chunks) == 0 {
		err = s.chunks.DeleteByDocument(ctx, id)
	} else {
		err = s.chunks.Replace(ctx, id, chunks)
	}
	if err != nil {
		log.Errorf("[IndexService] 回滚分块失败, DocumentID: %s, Error: %v", id, err)
	}
}

// IndexDocuments 按顺序逐个索引，返回与输入一一对应的结果。
func (s *indexService) IndexDocuments(ctx context.Context, reqs []model.IndexRequest) []model.IndexingResult {
	results := make([]model.IndexingResult, len(reqs))
	for i, req := range reqs {
		results[i] = s.IndexDocument(ctx, req)
	}
	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	log.Infof("[IndexService] 批量索引完成, total: %d, succeeded: %d", len(reqs), succeeded)
	return results
}

// UpdateDocument 重新索引已有文档，版本号在旧版本基础上递增。
// 旧的向量、分块和文档记录在 persist 中整体替换，失败时保留旧版本；文档不存在时按新文档索引。
func (s *indexService) UpdateDocument(ctx context.Context, req model.IndexRequest) model.IndexingResult {
	return s.index(ctx, req)
}

func (s *indexService) RemoveDocument(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	prev, err := s.docs.Get(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		s.mu.Unlock()
		return false, nil
	}
	if err != nil {
		s.mu.Unlock()
		return false, err
	}

	embs := s.store.GetByDocument(id)
	prevChunks, err := s.chunks.FindByDocument(ctx, id)
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	removed, err := s.store.RemoveByDocument(ctx, id)
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	if err := s.chunks.DeleteByDocument(ctx, id); err != nil {
		s.restoreEmbeddings(ctx, id, embs)
		s.mu.Unlock()
		return false, err
	}
	if _, err := s.docs.Delete(ctx, id); err != nil {
		s.restoreEmbeddings(ctx, id, embs)
		s.restoreChunks(ctx, id, prevChunks)
		s.mu.Unlock()
		return false, err
	}
	s.mu.Unlock()

	if s.mirror != nil {
		if err := s.mirror.DeleteDocument(ctx, id); err != nil {
			log.Warnf("[IndexService] 删除镜像分块失败, DocumentID: %s, Error: %v", id, err)
		}
	}
	s.stats.RecordRemoved(ctx, IndexDelta{Documents: 1, Chunks: prev.ChunkCount, Embeddings: removed})
	log.Infof("[IndexService] 文档已删除, DocumentID: %s, embeddings: %d", id, removed)
	return true, nil
}

func (s *indexService) GetDocument(ctx context.Context, id string) (*model.IndexedDocument, error) {
	return s.docs.Get(ctx, id)
}

// RebuildIndex 清空全部文档、分块和向量，并重置索引统计。
func (s *indexService) RebuildIndex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.docs.IDs(ctx)
	if err != nil {
		return err
	}
	all := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		all[id] = struct{}{}
	}
	for _, id := range s.store.DocumentIDs() {
		all[id] = struct{}{}
	}

	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	var errs []error
	for id := range all {
		if err := s.chunks.DeleteByDocument(ctx, id); err != nil {
			errs = append(errs, err)
		}
		if _, err := s.docs.Delete(ctx, id); err != nil {
			errs = append(errs, err)
		}
		if s.mirror != nil {
			if err := s.mirror.DeleteDocument(ctx, id); err != nil {
				log.Warnf("[IndexService] 删除镜像分块失败, DocumentID: %s, Error: %v", id, err)
			}
		}
	}
	if err := s.stats.ResetIndexing(ctx); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("重建索引部分失败: %w", errors.Join(errs...))
	}
	log.Infof("[IndexService] 索引已重建, 清理文档 %d 个", len(all))
	return nil
}

// OptimizeIndex 删除没有文档记录的孤立向量和维度不符的向量。
func (s *indexService) OptimizeIndex(ctx context.Context) (model.OptimizeReport, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.docs.IDs(ctx)
	if err != nil {
		return model.OptimizeReport{}, err
	}
	known := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		known[id] = struct{}{}
	}

	var report model.OptimizeReport
	dim := s.store.Dimensions()
	if _, err := s.store.Prune(ctx, func(e model.VectorEmbedding) bool {
		if _, ok := known[e.DocumentID]; !ok {
			report.OrphansRemoved++
			return false
		}
		if len(e.Vector) != dim {
			report.InvalidRemoved++
			return false
		}
		return true
	}); err != nil {
		return model.OptimizeReport{}, err
	}
	report.EmbeddingsAfter = s.store.Len()
	report.DurationMs = time.Since(start).Milliseconds()
	log.Infof("[IndexService] 索引整理完成, orphans: %d, invalid: %d, remaining: %d",
		report.OrphansRemoved, report.InvalidRemoved, report.EmbeddingsAfter)
	return report, nil
}
