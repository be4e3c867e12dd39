package service

import (
	"context"
	"testing"
	"time"

	"pai-semantic-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexDocumentPersistsEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.mustIndex(t, request("doc1", "Alpha", "alpha beta gamma delta epsilon zeta alpha beta gamma delta"))
	assert.Equal(t, 1, res.Version)
	assert.Equal(t, 2, res.ChunksCreated)
	assert.Equal(t, 2, res.EmbeddingsGenerated)

	doc, err := f.index.GetDocument(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Version)
	assert.Equal(t, 2, doc.ChunkCount)
	assert.Equal(t, f.now, doc.IndexedAt)
	assert.Equal(t, f.now, doc.Metadata.CreatedAt)
	assert.NotEmpty(t, doc.Content.Keywords)
	assert.Equal(t, doc.Quality.Score, doc.Metadata.QualityScore)

	embs := f.store.GetByDocument("doc1")
	require.Len(t, embs, 2)
	assert.Equal(t, "doc1_chunk_0", embs[0].ID)
	assert.Equal(t, 8, embs[0].Metadata.ChunkSize)
	assert.Contains(t, embs[0].Metadata.PreprocessingSteps, "quality_assessment")

	for _, key := range []string{"document_doc1", "chunks_doc1", "vector_embeddings", "indexing_stats"} {
		_, ok, err := f.kv.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok, key)
	}

	stats := f.stats.IndexingStats()
	assert.Equal(t, 1, stats.TotalDocuments)
	assert.Equal(t, 2, stats.TotalChunks)
	assert.Equal(t, 2, stats.TotalEmbeddings)
	assert.Equal(t, 1, stats.IndexOperations)
	assert.Equal(t, 2, f.mirror.indexed["doc1"])
}

func TestReindexIncrementsVersionNotDocumentCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mustIndex(t, request("doc1", "Alpha", "alpha beta"))
	res := f.mustIndex(t, request("doc1", "Alpha", "alpha beta gamma"))
	assert.Equal(t, 2, res.Version)
	res = f.mustIndex(t, request("doc1", "Alpha", "gamma"))
	assert.Equal(t, 3, res.Version)

	doc, err := f.index.GetDocument(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, 3, doc.Version)
	assert.Equal(t, 1, f.stats.IndexingStats().TotalDocuments)
	assert.Equal(t, 3, f.stats.IndexingStats().IndexOperations)
}

func TestIndexDocumentValidation(t *testing.T) {
	f := newFixture(t)

	res := f.index.IndexDocument(context.Background(), request("doc1", "  ", "alpha"))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "validation")
	assert.Zero(t, res.ChunksCreated)
	assert.Equal(t, 0, f.store.Len())
	assert.Zero(t, f.provider.calls, "fails before chunking and embedding")
	assert.Equal(t, 1, f.stats.IndexingStats().IndexingErrors)

	res = f.index.IndexDocument(context.Background(), request("", "Alpha", "alpha"))
	assert.False(t, res.Success)
}

func TestIndexDocumentToleratesEmbeddingFailures(t *testing.T) {
	f := newFixture(t)

	res := f.mustIndex(t, request("doc1", "Alpha", "poison alpha beta gamma delta epsilon zeta alpha beta gamma delta epsilon zeta"))
	assert.Equal(t, 2, res.ChunksCreated)
	assert.Equal(t, 1, res.EmbeddingsGenerated)
	assert.Equal(t, res.EmbeddingsGenerated, len(f.store.GetByDocument("doc1")))
	assert.Equal(t, res.ChunksCreated-res.EmbeddingsGenerated, f.stats.IndexingStats().EmbeddingFailures)
}

func TestIndexDocumentMetadataWriteFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mustIndex(t, request("doc1", "Alpha", "alpha beta"))
	before := f.store.GetByDocument("doc1")

	f.docs.failSave = true
	res := f.index.IndexDocument(ctx, request("doc1", "Gamma", "gamma delta epsilon"))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "metadata store unavailable")
	assert.Equal(t, before, f.store.GetByDocument("doc1"))

	chunks, err := f.chunks.FindByDocument(ctx, "doc1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Alpha alpha beta", chunks[0].Content)

	res = f.index.IndexDocument(ctx, request("doc2", "Beta", "beta"))
	assert.False(t, res.Success)
	assert.Empty(t, f.store.GetByDocument("doc2"), "no embeddings without a document record")
}

func TestRemoveDocumentCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mustIndex(t, request("doc1", "Alpha", "alpha beta gamma delta epsilon zeta alpha beta gamma delta"))
	f.mustIndex(t, request("doc2", "Beta", "beta gamma"))

	removed, err := f.index.RemoveDocument(ctx, "doc1")
	require.NoError(t, err)
	assert.True(t, removed)

	assert.Empty(t, f.store.GetByDocument("doc1"))
	assert.Len(t, f.store.GetByDocument("doc2"), 1)
	chunks, err := f.chunks.FindByDocument(ctx, "doc1")
	require.NoError(t, err)
	assert.Empty(t, chunks)
	_, err = f.index.GetDocument(ctx, "doc1")
	assert.ErrorIs(t, err, model.ErrNotFound)

	stats := f.stats.IndexingStats()
	assert.Equal(t, 1, stats.TotalDocuments)
	assert.Equal(t, 1, stats.TotalChunks)
	assert.Equal(t, 1, stats.TotalEmbeddings)
	assert.Contains(t, f.mirror.deleted, "doc1")

	removed, err = f.index.RemoveDocument(ctx, "doc1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRemoveDocumentFailureKeepsPriorState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mustIndex(t, request("doc1", "Alpha", "alpha beta"))
	f.docs.failDelete = true

	removed, err := f.index.RemoveDocument(ctx, "doc1")
	assert.Error(t, err)
	assert.False(t, removed)
	assert.Len(t, f.store.GetByDocument("doc1"), 1)
	chunks, err := f.chunks.FindByDocument(ctx, "doc1")
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
	_, err = f.index.GetDocument(ctx, "doc1")
	assert.NoError(t, err)
	assert.Equal(t, 1, f.stats.IndexingStats().TotalDocuments)
}

func TestUpdateDocumentCarriesVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := f.now
	f.mustIndex(t, request("doc1", "Alpha", "alpha beta"))
	f.now = f.now.Add(time.Hour)

	res := f.index.UpdateDocument(ctx, request("doc1", "Gamma", "gamma delta"))
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 2, res.Version)

	doc, err := f.index.GetDocument(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, "Gamma", doc.Content.Title)
	assert.Equal(t, created, doc.Metadata.CreatedAt)
	assert.Equal(t, f.now, doc.Metadata.ModifiedAt)
	assert.Equal(t, 1, f.stats.IndexingStats().TotalDocuments)

	res = f.index.UpdateDocument(ctx, request("doc9", "Delta", "delta"))
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 1, res.Version)
}

func TestUpdateDocumentFailureKeepsPriorVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mustIndex(t, request("doc1", "Alpha", "alpha beta"))
	before := f.store.GetByDocument("doc1")
	stats := f.stats.IndexingStats()

	f.docs.failSave = true
	res := f.index.UpdateDocument(ctx, request("doc1", "Gamma", "gamma delta"))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "metadata store unavailable")

	doc, err := f.index.GetDocument(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, "Alpha", doc.Content.Title)
	assert.Equal(t, 1, doc.Version)
	assert.Equal(t, before, f.store.GetByDocument("doc1"))
	chunks, err := f.chunks.FindByDocument(ctx, "doc1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Alpha alpha beta", chunks[0].Content)

	after := f.stats.IndexingStats()
	assert.Equal(t, stats.TotalDocuments, after.TotalDocuments)
	assert.Equal(t, stats.TotalEmbeddings, after.TotalEmbeddings)

	f.docs.failSave = false
	res = f.index.UpdateDocument(ctx, request("doc1", "Gamma", "gamma delta"))
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 2, res.Version)
}

func TestIndexDocumentsBatch(t *testing.T) {
	f := newFixture(t)
	results := f.index.IndexDocuments(context.Background(), []model.IndexRequest{
		request("a", "Alpha", "alpha"),
		request("b", "", "beta"),
		request("c", "Gamma", "gamma"),
	})
	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.True(t, results[2].Success)
	assert.Equal(t, 2, f.stats.IndexingStats().TotalDocuments)
}

func TestRebuildIndexClearsEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mustIndex(t, request("doc1", "Alpha", "alpha beta"))
	f.mustIndex(t, request("doc2", "Beta", "beta gamma"))

	require.NoError(t, f.index.RebuildIndex(ctx))
	assert.Equal(t, 0, f.store.Len())
	assert.Equal(t, 0, f.stats.IndexingStats().TotalDocuments)

	ids, err := f.docs.IDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
	for _, key := range []string{"document_doc1", "chunks_doc2"} {
		_, ok, err := f.kv.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, key)
	}
}

func TestOptimizeIndexRemovesOrphans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mustIndex(t, request("doc1", "Alpha", "alpha beta"))
	require.NoError(t, f.store.Insert(ctx, model.VectorEmbedding{
		ID: "ghost_chunk_0", DocumentID: "ghost", Vector: []float32{1, 0, 0, 0, 0, 0},
	}))

	report, err := f.index.OptimizeIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.OrphansRemoved)
	assert.Equal(t, 0, report.InvalidRemoved)
	assert.Equal(t, 1, report.EmbeddingsAfter)
	assert.Empty(t, f.store.GetByDocument("ghost"))
}
