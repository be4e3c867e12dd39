package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pai-semantic-go/internal/app"
	"pai-semantic-go/internal/config"
	"pai-semantic-go/pkg/kv"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	a, err := app.New(config.Default(), app.Options{KV: kv.NewMemoryStore()})
	require.NoError(t, err)
	require.NoError(t, a.Init(context.Background()))
	t.Cleanup(func() { _ = a.Close() })
	return NewRouter(a)
}

func do(t *testing.T, r *gin.Engine, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	assert.Equal(t, w.Code, env.Code)
	return w.Code, env
}

func doc(id, title, body string) map[string]interface{} {
	return map[string]interface{}{
		"id":      id,
		"content": map[string]interface{}{"title": title, "body": body},
	}
}

var mlBody = "Machine learning models learn patterns from data. Neural networks are machine learning models."

func TestDocumentLifecycle(t *testing.T) {
	r := newTestRouter(t)

	code, env := do(t, r, http.MethodPost, "/api/v1/documents", doc("doc1", "Machine learning notes", mlBody))
	require.Equal(t, http.StatusOK, code, env.Message)
	var res struct {
		Success bool `json:"success"`
		Version int  `json:"version"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Version)

	code, env = do(t, r, http.MethodGet, "/api/v1/documents/doc1", nil)
	require.Equal(t, http.StatusOK, code)
	var stored struct {
		ID      string `json:"id"`
		Content struct {
			Keywords []string `json:"keywords"`
		} `json:"content"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &stored))
	assert.Equal(t, "doc1", stored.ID)
	assert.Contains(t, stored.Content.Keywords, "machine")

	code, env = do(t, r, http.MethodPut, "/api/v1/documents/doc1", doc("ignored", "Machine learning notes", mlBody))
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 2, res.Version)

	code, _ = do(t, r, http.MethodDelete, "/api/v1/documents/doc1", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = do(t, r, http.MethodDelete, "/api/v1/documents/doc1", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = do(t, r, http.MethodGet, "/api/v1/documents/doc1", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestIndexValidationError(t *testing.T) {
	r := newTestRouter(t)

	code, env := do(t, r, http.MethodPost, "/api/v1/documents", doc("doc1", "", "body only"))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Message, "validation")

	code, _ = do(t, r, http.MethodPost, "/api/v1/documents/batch", map[string]interface{}{
		"documents": []interface{}{doc("a", "Title", "text"), doc("", "Title", "text")},
	})
	assert.Equal(t, http.StatusOK, code)
}

func TestSearchAndRecommendations(t *testing.T) {
	r := newTestRouter(t)
	do(t, r, http.MethodPost, "/api/v1/documents", doc("doc1", "Machine learning notes", mlBody))
	do(t, r, http.MethodPost, "/api/v1/documents", doc("doc2", "Cooking pasta", "Boil water, add salt, cook the pasta for ten minutes and drain it."))

	code, env := do(t, r, http.MethodGet, "/api/v1/search?q=machine+learning&threshold=0.3&explain=true&user_id=u1", nil)
	require.Equal(t, http.StatusOK, code, env.Message)
	var result struct {
		Hits []struct {
			Document struct {
				ID string `json:"id"`
			} `json:"document"`
			Explanation map[string]interface{} `json:"explanation"`
		} `json:"hits"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Len(t, result.Hits, 1)
	assert.Equal(t, "doc1", result.Hits[0].Document.ID)
	assert.NotNil(t, result.Hits[0].Explanation)

	code, _ = do(t, r, http.MethodGet, "/api/v1/search", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = do(t, r, http.MethodGet, "/api/v1/search?q=x&threshold=2", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = do(t, r, http.MethodGet, "/api/v1/recommendations?recent=machine+learning&max_results=3", nil)
	require.Equal(t, http.StatusOK, code)
	var recs []struct {
		DocumentID string `json:"documentId"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &recs))
	require.NotEmpty(t, recs)
	assert.Equal(t, "doc1", recs[0].DocumentID)
}

func TestStatsEndpoints(t *testing.T) {
	r := newTestRouter(t)
	do(t, r, http.MethodPost, "/api/v1/documents", doc("doc1", "Machine learning notes", mlBody))
	do(t, r, http.MethodGet, "/api/v1/search?q=machine&threshold=0.3", nil)

	code, env := do(t, r, http.MethodGet, "/api/v1/stats/indexing", nil)
	require.Equal(t, http.StatusOK, code)
	var indexing struct {
		TotalDocuments int `json:"totalDocuments"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &indexing))
	assert.Equal(t, 1, indexing.TotalDocuments)

	code, env = do(t, r, http.MethodGet, "/api/v1/stats/search", nil)
	require.Equal(t, http.StatusOK, code)
	var search struct {
		Analytics struct {
			TotalSearches int `json:"totalSearches"`
		} `json:"analytics"`
		History []interface{} `json:"history"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &search))
	assert.Equal(t, 1, search.Analytics.TotalSearches)
	assert.Len(t, search.History, 1)

	code, _ = do(t, r, http.MethodDelete, "/api/v1/stats/search", nil)
	assert.Equal(t, http.StatusOK, code)
	_, env = do(t, r, http.MethodGet, "/api/v1/stats/search", nil)
	require.NoError(t, json.Unmarshal(env.Data, &search))
	assert.Zero(t, search.Analytics.TotalSearches)
}

func TestQueueAndMaintenance(t *testing.T) {
	r := newTestRouter(t)

	code, env := do(t, r, http.MethodPost, "/api/v1/documents/queue", doc("doc1", "Machine learning notes", mlBody))
	require.Equal(t, http.StatusAccepted, code, env.Message)
	var accepted struct {
		JobID string `json:"jobId"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &accepted))
	assert.NotEmpty(t, accepted.JobID)

	require.Eventually(t, func() bool {
		code, _ := do(t, r, http.MethodGet, "/api/v1/documents/doc1", nil)
		return code == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	code, env = do(t, r, http.MethodPost, "/api/v1/index/optimize", nil)
	require.Equal(t, http.StatusOK, code)
	var report struct {
		EmbeddingsAfter int `json:"embeddingsAfter"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, 1, report.EmbeddingsAfter)

	code, _ = do(t, r, http.MethodPost, "/api/v1/index/rebuild", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = do(t, r, http.MethodGet, "/api/v1/documents/doc1", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, r, http.MethodPost, "/api/v1/documents/queue", doc("", "t", "b"))
	assert.Equal(t, http.StatusBadRequest, code)
}
