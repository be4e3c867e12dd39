package service

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"pai-semantic-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func categorized(id, title, body, category string, modified time.Time) model.IndexRequest {
	req := request(id, title, body)
	req.Metadata.Category = category
	req.Metadata.ModifiedAt = modified
	return req
}

func hitIDs(res model.SearchResult) []string {
	ids := make([]string, len(res.Hits))
	for i, h := range res.Hits {
		ids[i] = h.Document.ID
	}
	return ids
}

func TestSearchRerankContextBoost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mustIndex(t, categorized("a", "Alpha", "alpha beta", "research", f.now))
	f.mustIndex(t, categorized("b", "Alpha", "alpha beta", "coding", f.now))
	f.mustIndex(t, categorized("z", "Zeta", "zeta", "coding", f.now))

	sc := model.SearchContext{WorkContext: "coding", Now: f.now}
	plain := f.search.Search(ctx, model.SearchQuery{Text: "alpha beta"}, sc)
	require.Empty(t, plain.Error)
	assert.Equal(t, []string{"a", "b"}, hitIDs(plain), "ties keep insertion order, zeta is below threshold")
	raw := 3 / math.Sqrt(10)
	assert.InDelta(t, raw, plain.Hits[0].Similarity, 1e-6)
	assert.InDelta(t, 1-raw, plain.Hits[0].Distance, 1e-6)

	reranked := f.search.Search(ctx, model.SearchQuery{Text: "alpha beta", Rerank: true, Explain: true}, sc)
	require.Empty(t, reranked.Error)
	assert.Equal(t, []string{"b", "a"}, hitIDs(reranked))
	assert.InDelta(t, raw*1.2*1.1, reranked.Hits[0].Similarity, 1e-6)
	assert.InDelta(t, raw*1.1, reranked.Hits[1].Similarity, 1e-6)

	exp := reranked.Hits[0].Explanation
	require.NotNil(t, exp)
	assert.InDelta(t, raw, exp.RawSimilarity, 1e-6)
	assert.Equal(t, 1.2, exp.ContextBoost)
	assert.Equal(t, 1.1, exp.RecencyBoost)
	assert.Equal(t, []string{SignalContextMatch, SignalRecent}, exp.AppliedSignals)
	assert.Equal(t, 1, exp.MatchedChunks)

	again := f.search.Search(ctx, model.SearchQuery{Text: "alpha beta", Rerank: true, Explain: true}, sc)
	assert.Equal(t, hitIDs(reranked), hitIDs(again))
}

func TestSearchRerankRecencyBoost(t *testing.T) {
	f := newFixture(t)
	f.mustIndex(t, categorized("old", "Gamma", "gamma delta", "", f.now.Add(-30*24*time.Hour)))
	f.mustIndex(t, categorized("fresh", "Gamma", "gamma delta", "", f.now.Add(-24*time.Hour)))

	sc := model.SearchContext{Now: f.now}
	res := f.search.Search(context.Background(), model.SearchQuery{Text: "gamma delta"}, sc)
	assert.Equal(t, []string{"old", "fresh"}, hitIDs(res))

	res = f.search.Search(context.Background(), model.SearchQuery{Text: "gamma delta", Rerank: true}, sc)
	assert.Equal(t, []string{"fresh", "old"}, hitIDs(res))
}

func TestSearchThresholdAndMaxResults(t *testing.T) {
	f := newFixture(t)
	f.mustIndex(t, request("a", "Alpha", "alpha"))
	f.mustIndex(t, request("b", "Alpha", "alpha beta"))
	f.mustIndex(t, request("c", "Beta", "beta"))

	res := f.search.Search(context.Background(), model.SearchQuery{Text: "alpha", MaxResults: 1}, model.SearchContext{})
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "a", res.Hits[0].Document.ID)

	res = f.search.Search(context.Background(), model.SearchQuery{Text: "alpha", Threshold: 0.95}, model.SearchContext{})
	for _, h := range res.Hits {
		assert.GreaterOrEqual(t, h.Similarity, 0.95)
	}
	assert.Equal(t, []string{"a"}, hitIDs(res))

	res = f.search.Search(context.Background(), model.SearchQuery{Text: "alpha", Threshold: -1}, model.SearchContext{})
	assert.Len(t, res.Hits, 3, "negative threshold disables filtering")
}

func TestSearchEmbeddingFailureReturnsEmptyResult(t *testing.T) {
	f := newFixture(t)
	f.mustIndex(t, request("a", "Alpha", "alpha"))

	res := f.search.Search(context.Background(), model.SearchQuery{Text: "poison alpha"}, model.SearchContext{})
	assert.NotNil(t, res.Hits)
	assert.Empty(t, res.Hits)
	assert.Contains(t, res.Error, "embedding")
	assert.Equal(t, "vocab-test", res.ModelUsed)
	assert.Equal(t, "poison alpha", res.Query.Text)

	res = f.search.Search(context.Background(), model.SearchQuery{Text: "  "}, model.SearchContext{})
	assert.NotNil(t, res.Hits)
	assert.Contains(t, res.Error, "validation")

	res = f.search.Search(context.Background(), model.SearchQuery{Text: "alpha", Threshold: 1.5}, model.SearchContext{})
	assert.Contains(t, res.Error, "validation")

	analytics := f.stats.SearchAnalytics()
	assert.Equal(t, 3, analytics.TotalSearches)
	assert.Equal(t, 3, analytics.FailedSearches)
}

func TestSearchSkipsEmbeddingsWithoutDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mustIndex(t, request("a", "Alpha", "alpha"))
	require.NoError(t, f.store.Insert(ctx, model.VectorEmbedding{
		ID: "ghost_chunk_0", DocumentID: "ghost", Vector: []float32{1, 0, 0, 0, 0, 0},
	}))

	res := f.search.Search(ctx, model.SearchQuery{Text: "alpha"}, model.SearchContext{})
	assert.Equal(t, []string{"a"}, hitIDs(res))
}

func TestSearchGroupsChunksPerDocument(t *testing.T) {
	f := newFixture(t)
	f.mustIndex(t, request("long", "Alpha", "alpha alpha alpha alpha alpha alpha alpha alpha alpha alpha"))

	res := f.search.Search(context.Background(), model.SearchQuery{Text: "alpha"}, model.SearchContext{})
	require.Len(t, res.Hits, 1)
	assert.Len(t, res.Hits[0].Chunks, 2)
	assert.InDelta(t, 1.0, res.Hits[0].Similarity, 1e-6)
}

func TestSearchRecordsHistory(t *testing.T) {
	f := newFixture(t)
	f.mustIndex(t, request("a", "Alpha", "alpha"))

	res := f.search.Search(context.Background(), model.SearchQuery{Text: "alpha"},
		model.SearchContext{UserID: "u1", WorkContext: "coding", Now: f.now})
	assert.Equal(t, "alpha programming development software code morning", res.ExecutedQuery)

	history := f.stats.SearchHistory()
	require.Len(t, history, 1)
	assert.Equal(t, "alpha", history[0].Query)
	assert.Equal(t, "u1", history[0].UserID)
	assert.Equal(t, 1, history[0].ResultCount)
	assert.Equal(t, f.now, history[0].Timestamp)

	retrieved := f.search.Retrieve(context.Background(), model.SearchQuery{Text: "alpha"}, model.SearchContext{})
	assert.Len(t, retrieved.Hits, 1)
	assert.Len(t, f.stats.SearchHistory(), 1, "retrieve does not record history")
}

func TestSearchFillsResultsPastChunkHeavyDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	body := strings.TrimSpace(strings.Repeat("alpha ", 60))
	big := f.mustIndex(t, request("big", "Alpha", body))
	require.Greater(t, big.ChunksCreated, 2*f.search.(*searchService).cfg.CandidateMultiplier)
	f.mustIndex(t, request("small", "Small", "alpha beta"))

	res := f.search.Search(ctx, model.SearchQuery{Text: "alpha", MaxResults: 2}, model.SearchContext{Now: f.now})
	require.Empty(t, res.Error)
	assert.Equal(t, []string{"big", "small"}, hitIDs(res))
	assert.InDelta(t, 1/math.Sqrt(2), res.Hits[1].Similarity, 1e-6)

	res = f.search.Search(ctx, model.SearchQuery{Text: "alpha", MaxResults: 3}, model.SearchContext{Now: f.now})
	assert.Equal(t, []string{"big", "small"}, hitIDs(res), "store exhausted")
}
