package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"pai-semantic-go/internal/chunker"
	"pai-semantic-go/internal/config"
	"pai-semantic-go/internal/model"
	"pai-semantic-go/internal/pipeline"
	"pai-semantic-go/internal/repository"
	"pai-semantic-go/internal/vectorstore"
	"pai-semantic-go/pkg/embedding"
	"pai-semantic-go/pkg/kv"

	"github.com/stretchr/testify/require"
)

var testVocab = []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta"}

// vocabProvider 按固定词表计数生成向量，含 "poison" 的文本返回错误。
type vocabProvider struct {
	calls int
	mu    sync.Mutex
}

func (p *vocabProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if strings.Contains(strings.ToLower(text), "poison") {
		return nil, embedding.ErrModelUnavailable
	}
	vec := make([]float32, len(testVocab))
	var norm float64
	for _, tok := range embedding.Tokenize(text) {
		for i, w := range testVocab {
			if tok == w {
				vec[i]++
			}
		}
	}
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm == 0 {
		return nil, embedding.ErrEmptyInput
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / math.Sqrt(norm))
	}
	return vec, nil
}

func (p *vocabProvider) EmbedMany(ctx context.Context, texts []string) []embedding.Result {
	out := make([]embedding.Result, len(texts))
	for i, t := range texts {
		v, err := p.Embed(ctx, t)
		out[i] = embedding.Result{Vector: v, Err: err}
	}
	return out
}

func (p *vocabProvider) Dimensions() int { return len(testVocab) }
func (p *vocabProvider) Model() string   { return "vocab-test" }

type recordingMirror struct {
	mu      sync.Mutex
	indexed map[string]int
	deleted []string
}

func (m *recordingMirror) IndexChunks(_ context.Context, chunks []model.DocumentChunk, _ []model.VectorEmbedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexed == nil {
		m.indexed = map[string]int{}
	}
	for _, c := range chunks {
		m.indexed[c.DocumentID]++
	}
	return nil
}

func (m *recordingMirror) DeleteDocument(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, id)
	return nil
}

// flakyDocs 可以让文档记录的写入或删除失败。
type flakyDocs struct {
	repository.DocumentRepository
	failSave   bool
	failDelete bool
}

func (f *flakyDocs) Save(ctx context.Context, doc *model.IndexedDocument) error {
	if f.failSave {
		return errors.New("metadata store unavailable")
	}
	return f.DocumentRepository.Save(ctx, doc)
}

func (f *flakyDocs) Delete(ctx context.Context, id string) (bool, error) {
	if f.failDelete {
		return false, errors.New("metadata store unavailable")
	}
	return f.DocumentRepository.Delete(ctx, id)
}

type fixture struct {
	kv       *kv.MemoryStore
	provider *vocabProvider
	store    *vectorstore.Store
	docs     *flakyDocs
	chunks   repository.ChunkRepository
	stats    StatsService
	mirror   *recordingMirror
	index    IndexService
	search   SearchService
	recs     RecommendationService
	now      time.Time
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Index.ChunkSize = 8
	cfg.Index.ChunkOverlap = 2
	cfg.Search.DefaultThreshold = 0.5
	return cfg
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testConfig()
	f := &fixture{
		kv:       kv.NewMemoryStore(),
		provider: &vocabProvider{},
		mirror:   &recordingMirror{},
		now:      time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
	}
	var err error
	f.store, err = vectorstore.New(f.kv, f.provider.Dimensions())
	require.NoError(t, err)
	ch, err := chunker.New(cfg.Index.ChunkSize, cfg.Index.ChunkOverlap)
	require.NoError(t, err)

	f.docs = &flakyDocs{DocumentRepository: repository.NewDocumentRepository(f.kv)}
	f.chunks = repository.NewChunkRepository(f.kv)
	f.stats = NewStatsService(repository.NewStatsRepository(f.kv), cfg.Stats)
	pre := pipeline.NewPreprocessor(pipeline.Options{MaxKeywords: cfg.Index.MaxKeywords, ExtractTopics: true, GenerateSummary: true})

	f.index = NewIndexService(f.provider, f.store, ch, pre, f.docs, f.chunks, f.stats, f.mirror)
	f.index.(*indexService).now = func() time.Time { return f.now }
	f.search = NewSearchService(f.provider, f.store, f.docs, NewQueryProcessor(func() time.Time { return f.now }), f.stats, cfg.Search)
	f.search.(*searchService).now = func() time.Time { return f.now }
	f.recs = NewRecommendationService(f.search, f.docs, f.stats, cfg.Recommendation)
	return f
}

func request(id, title, body string) model.IndexRequest {
	return model.IndexRequest{ID: id, Content: model.Document{Title: title, Body: body}}
}

func (f *fixture) mustIndex(t *testing.T, req model.IndexRequest) model.IndexingResult {
	t.Helper()
	res := f.index.IndexDocument(context.Background(), req)
	require.True(t, res.Success, res.Error)
	return res
}
