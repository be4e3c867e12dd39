package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"sync"
	"unicode"
)

type hashProvider struct {
	dim   int
	seed  int64
	model string
	cache sync.Map // word -> []float64
}

// NewHashProvider returns a deterministic bag-of-words provider: every word maps to a
// seeded pseudo-random vector, and a text embeds to the L2-normalized sum of its words.
// Texts sharing vocabulary end up close under cosine similarity.
func NewHashProvider(dim int, seed int64, model string) Provider {
	if model == "" {
		model = "hash-embedding-v1"
	}
	return &hashProvider{dim: dim, seed: seed, model: model}
}

func (h *hashProvider) Dimensions() int { return h.dim }

func (h *hashProvider) Model() string { return h.model }

func (h *hashProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil, ErrEmptyInput
	}

	sum := make([]float64, h.dim)
	for _, tok := range tokens {
		wv := h.wordVector(tok)
		for i := range sum {
			sum[i] += wv[i]
		}
	}

	var norm float64
	for _, v := range sum {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	if norm == 0 {
		return nil, ErrZeroVector
	}
	out := make([]float32, h.dim)
	for i, v := range sum {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func (h *hashProvider) EmbedMany(ctx context.Context, texts []string) []Result {
	return embedEach(ctx, h, texts)
}

func (h *hashProvider) wordVector(word string) []float64 {
	if v, ok := h.cache.Load(word); ok {
		return v.([]float64)
	}
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(word))
	rng := rand.New(rand.NewSource(int64(hasher.Sum64()) ^ h.seed))
	vec := make([]float64, h.dim)
	for i := range vec {
		vec[i] = rng.NormFloat64()
	}
	actual, _ := h.cache.LoadOrStore(word, vec)
	return actual.([]float64)
}

// Tokenize lowercases text and splits it into letter/digit runs.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
