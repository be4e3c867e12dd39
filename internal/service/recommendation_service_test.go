package service

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"pai-semantic-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recIDs(recs []model.ContentRecommendation) []string {
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.DocumentID
	}
	return ids
}

func seedRecommendationDocs(t *testing.T, f *fixture) {
	t.Helper()
	f.mustIndex(t, categorized("a", "Alpha", "alpha beta", "research", f.now))
	f.mustIndex(t, categorized("b", "Gamma", "gamma delta", "coding", f.now))
	f.mustIndex(t, categorized("z", "Zeta", "zeta", "", f.now))
}

func TestRecommendRecentQueriesAndTrending(t *testing.T) {
	f := newFixture(t)
	seedRecommendationDocs(t, f)
	f.recs.SetTrending([]string{"z", "missing", "a"})

	recs, err := f.recs.Recommend(context.Background(), model.SearchContext{RecentQueries: []string{"alpha"}, Now: f.now}, 5)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "z"}, recIDs(recs))

	assert.Equal(t, model.StrategyRecentQueries, recs[0].Strategy, "first occurrence wins over the trending duplicate")
	assert.Contains(t, recs[0].Reason, `"alpha"`)
	assert.Equal(t, "Alpha", recs[0].Title)
	assert.Equal(t, "research", recs[0].Category)

	assert.Equal(t, model.StrategyTrending, recs[1].Strategy)
	assert.InDelta(t, 0.5, recs[1].RelevanceScore, 1e-9)

	assert.Zero(t, f.stats.SearchAnalytics().TotalSearches, "recommendation lookups are not recorded")

	recs, err = f.recs.Recommend(context.Background(), model.SearchContext{RecentQueries: []string{"alpha"}, Now: f.now}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, recIDs(recs))
}

func TestRecommendCollaborative(t *testing.T) {
	f := newFixture(t)
	seedRecommendationDocs(t, f)
	ctx := context.Background()
	f.search.Search(ctx, model.SearchQuery{Text: "gamma"}, model.SearchContext{UserID: "u2", Now: f.now})
	f.search.Search(ctx, model.SearchQuery{Text: "alpha"}, model.SearchContext{UserID: "u1", Now: f.now})

	recs, err := f.recs.Recommend(ctx, model.SearchContext{UserID: "u1", Now: f.now}, 5)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, recIDs(recs))
	assert.Equal(t, model.StrategyRecentQueries, recs[0].Strategy)
	assert.Equal(t, model.StrategyCollaborative, recs[1].Strategy)
	assert.InDelta(t, recs[0].RelevanceScore*0.8, recs[1].RelevanceScore, 1e-6)

	recs, err = f.recs.Recommend(ctx, model.SearchContext{Now: f.now}, 5)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for _, r := range recs {
		assert.Equal(t, model.StrategyRecentQueries, r.Strategy, "without a user every history query is a recent query")
	}
}

func TestRecommendEmptyIndex(t *testing.T) {
	f := newFixture(t)
	recs, err := f.recs.Recommend(context.Background(), model.SearchContext{UserID: "u1", WorkContext: "coding"}, 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRankRecommendationsTieWindow(t *testing.T) {
	recs := []model.ContentRecommendation{
		{DocumentID: "a", RelevanceScore: 0.80, Category: "research"},
		{DocumentID: "b", RelevanceScore: 0.75, Category: "Coding"},
		{DocumentID: "c", RelevanceScore: 0.50, Category: "coding"},
	}
	assert.Equal(t, []string{"b", "a", "c"}, recIDs(rankRecommendations(recs, "coding", 0.1)))

	recs = []model.ContentRecommendation{
		{DocumentID: "a", RelevanceScore: 0.80, Category: "research"},
		{DocumentID: "b", RelevanceScore: 0.75, Category: "coding"},
	}
	assert.Equal(t, []string{"a", "b"}, recIDs(rankRecommendations(recs, "", 0.1)))
}

func TestDedupeKeepsFirst(t *testing.T) {
	out := dedupe([]model.ContentRecommendation{
		{DocumentID: "a", Strategy: model.StrategyContextual},
		{DocumentID: "b", Strategy: model.StrategyTrending},
		{DocumentID: "a", Strategy: model.StrategyTrending},
	})
	require.Len(t, out, 2)
	assert.Equal(t, model.StrategyContextual, out[0].Strategy)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "short summary", snippet(model.Document{Summary: " short summary ", Body: "ignored"}))
	long := snippet(model.Document{Body: strings.Repeat("word ", 100)})
	assert.Equal(t, 150, utf8.RuneCountInString(long))
	assert.True(t, strings.HasSuffix(long, "..."))
}
