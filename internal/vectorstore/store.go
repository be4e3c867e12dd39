// Package vectorstore 是内存向量索引，按 (文档 ID, 分块 ID) 保存向量并提供相似度检索。
package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"pai-semantic-go/internal/model"
	"pai-semantic-go/pkg/kv"
	"pai-semantic-go/pkg/log"
)

// SnapshotKey 是全量向量快照在 KV 中的 key。
const SnapshotKey = "vector_embeddings"

// DefaultMaxResults 在 SearchOptions.MaxResults 未设置时使用。
const DefaultMaxResults = 10

// SearchOptions 控制一次相似度检索。
type SearchOptions struct {
	Metric      Metric
	Threshold   float64
	MaxResults  int
	DocumentIDs []string // 非空时只在这些文档中检索
}

// Match 是一条分块级别的检索结果。
type Match struct {
	DocumentID string  `json:"documentId"`
	ChunkID    string  `json:"chunkId"`
	Similarity float64 `json:"similarity"`
	Distance   float64 `json:"distance"`
}

type entry struct {
	emb model.VectorEmbedding
	seq uint64
}

// state 一旦发布就不再修改，写操作复制后整体替换。
type state struct {
	entries map[string]*entry
	byDoc   map[string][]string
	seq     uint64
}

func newState() *state {
	return &state{entries: make(map[string]*entry), byDoc: make(map[string][]string)}
}

func (s *state) clone() *state {
	c := &state{
		entries: make(map[string]*entry, len(s.entries)),
		byDoc:   make(map[string][]string, len(s.byDoc)),
		seq:     s.seq,
	}
	for k, v := range s.entries {
		c.entries[k] = v
	}
	for k, v := range s.byDoc {
		c.byDoc[k] = v
	}
	return c
}

func (s *state) put(emb model.VectorEmbedding) {
	if old, ok := s.entries[emb.ID]; ok {
		s.detach(old.emb.DocumentID, emb.ID)
	}
	s.seq++
	s.entries[emb.ID] = &entry{emb: emb, seq: s.seq}
	ids := s.byDoc[emb.DocumentID]
	next := make([]string, len(ids), len(ids)+1)
	copy(next, ids)
	s.byDoc[emb.DocumentID] = append(next, emb.ID)
}

func (s *state) detach(documentID, id string) {
	ids := s.byDoc[documentID]
	next := make([]string, 0, len(ids))
	for _, x := range ids {
		if x != id {
			next = append(next, x)
		}
	}
	if len(next) == 0 {
		delete(s.byDoc, documentID)
		return
	}
	s.byDoc[documentID] = next
}

func (s *state) removeDocument(documentID string) int {
	ids := s.byDoc[documentID]
	for _, id := range ids {
		delete(s.entries, id)
	}
	delete(s.byDoc, documentID)
	return len(ids)
}

// Store 是并发安全的向量存储。读操作读取不可变快照，写操作串行执行，
// 修改在持久化成功后才对读者可见。
type Store struct {
	writeMu sync.Mutex
	current atomic.Pointer[state]
	dim     int
	kv      kv.Store
}

// New 创建一个维度为 dim 的空存储。kvStore 为 nil 时不做持久化。
func New(kvStore kv.Store, dim int) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: vector dimension must be positive, got %d", model.ErrInvalidConfig, dim)
	}
	s := &Store{dim: dim, kv: kvStore}
	s.current.Store(newState())
	return s, nil
}

// Dimensions 返回存储要求的向量维度。
func (s *Store) Dimensions() int { return s.dim }

func (s *Store) validate(emb model.VectorEmbedding) error {
	if emb.ID == "" || emb.DocumentID == "" {
		return fmt.Errorf("%w: embedding id and document id are required", model.ErrValidation)
	}
	if len(emb.Vector) != s.dim {
		return fmt.Errorf("%w: embedding %s has %d dimensions, want %d",
			model.ErrValidation, emb.ID, len(emb.Vector), s.dim)
	}
	return nil
}

// errNoChange 让 mutate 跳过持久化与发布。
var errNoChange = errors.New("no change")

// mutate 在副本上执行修改并持久化，成功后才发布新快照；持久化失败时旧快照保持不变。
func (s *Store) mutate(ctx context.Context, fn func(st *state) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := s.current.Load().clone()
	if err := fn(next); err != nil {
		if errors.Is(err, errNoChange) {
			return nil
		}
		return err
	}
	if err := s.flush(ctx, next); err != nil {
		return err
	}
	s.current.Store(next)
	return nil
}

type snapshot struct {
	Dimensions int                     `json:"dimensions"`
	Embeddings []model.VectorEmbedding `json:"embeddings"`
}

func (s *Store) flush(ctx context.Context, st *state) error {
	if s.kv == nil {
		return nil
	}
	entries := make([]*entry, 0, len(st.entries))
	for _, e := range st.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	snap := snapshot{Dimensions: s.dim, Embeddings: make([]model.VectorEmbedding, len(entries))}
	for i, e := range entries {
		snap.Embeddings[i] = e.emb
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("%w: encode vector snapshot: %v", model.ErrPersistence, err)
	}
	if err := s.kv.Set(ctx, SnapshotKey, data, 0); err != nil {
		log.Errorf("[VectorStore] 持久化向量快照失败, embeddings: %d, error: %v", len(entries), err)
		return fmt.Errorf("%w: flush vector snapshot: %v", model.ErrPersistence, err)
	}
	return nil
}

// Load 从 KV 恢复最近一次成功持久化的快照。维度不符的向量会被丢弃。
func (s *Store) Load(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}
	data, ok, err := s.kv.Get(ctx, SnapshotKey)
	if err != nil {
		return fmt.Errorf("%w: load vector snapshot: %v", model.ErrPersistence, err)
	}
	if !ok {
		return nil
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("%w: decode vector snapshot: %v", model.ErrPersistence, err)
	}

	st := newState()
	skipped := 0
	for _, emb := range snap.Embeddings {
		if s.validate(emb) != nil {
			skipped++
			continue
		}
		st.put(emb)
	}

	s.writeMu.Lock()
	s.current.Store(st)
	s.writeMu.Unlock()

	log.Infof("[VectorStore] 已加载向量快照, embeddings: %d, skipped: %d", len(st.entries), skipped)
	return nil
}

// Insert 插入或覆盖一个向量。
func (s *Store) Insert(ctx context.Context, emb model.VectorEmbedding) error {
	if err := s.validate(emb); err != nil {
		return err
	}
	return s.mutate(ctx, func(st *state) error {
		st.put(emb)
		return nil
	})
}

// InsertMany 批量插入，维度不合法的向量被跳过，只持久化一次。返回插入数量。
func (s *Store) InsertMany(ctx context.Context, embs []model.VectorEmbedding) (int, error) {
	inserted := 0
	err := s.mutate(ctx, func(st *state) error {
		for _, emb := range embs {
			if err := s.validate(emb); err != nil {
				log.Warnf("[VectorStore] 跳过不合法的向量: %v", err)
				continue
			}
			st.put(emb)
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// ReplaceDocument 原子地替换一个文档的全部向量：读者要么看到旧向量，要么看到新向量。
func (s *Store) ReplaceDocument(ctx context.Context, documentID string, embs []model.VectorEmbedding) (int, error) {
	for _, emb := range embs {
		if emb.DocumentID != documentID {
			return 0, fmt.Errorf("%w: embedding %s belongs to %s, not %s",
				model.ErrValidation, emb.ID, emb.DocumentID, documentID)
		}
		if err := s.validate(emb); err != nil {
			return 0, err
		}
	}
	err := s.mutate(ctx, func(st *state) error {
		st.removeDocument(documentID)
		for _, emb := range embs {
			st.put(emb)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(embs), nil
}

// RemoveByDocument 删除一个文档的全部向量，返回删除数量。
func (s *Store) RemoveByDocument(ctx context.Context, documentID string) (int, error) {
	removed := 0
	err := s.mutate(ctx, func(st *state) error {
		removed = st.removeDocument(documentID)
		if removed == 0 {
			return errNoChange
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Prune 删除 keep 返回 false 的向量，返回删除数量。
func (s *Store) Prune(ctx context.Context, keep func(model.VectorEmbedding) bool) (int, error) {
	removed := 0
	err := s.mutate(ctx, func(st *state) error {
		for id, e := range st.entries {
			if keep(e.emb) {
				continue
			}
			delete(st.entries, id)
			st.detach(e.emb.DocumentID, id)
			removed++
		}
		if removed == 0 {
			return errNoChange
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Clear 删除全部向量。
func (s *Store) Clear(ctx context.Context) error {
	return s.mutate(ctx, func(st *state) error {
		*st = *newState()
		return nil
	})
}

// GetByDocument 按插入顺序返回文档的全部向量。
func (s *Store) GetByDocument(documentID string) []model.VectorEmbedding {
	st := s.current.Load()
	ids := st.byDoc[documentID]
	out := make([]model.VectorEmbedding, 0, len(ids))
	for _, id := range ids {
		out = append(out, st.entries[id].emb)
	}
	return out
}

// Len 返回向量总数。
func (s *Store) Len() int {
	return len(s.current.Load().entries)
}

// DocumentIDs 返回拥有向量的文档 ID（已排序）。
func (s *Store) DocumentIDs() []string {
	st := s.current.Load()
	ids := make([]string, 0, len(st.byDoc))
	for id := range st.byDoc {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// All 按插入顺序返回全部向量。
func (s *Store) All() []model.VectorEmbedding {
	st := s.current.Load()
	entries := make([]*entry, 0, len(st.entries))
	for _, e := range st.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]model.VectorEmbedding, len(entries))
	for i, e := range entries {
		out[i] = e.emb
	}
	return out
}

// SimilaritySearch 返回相似度不低于阈值的前 MaxResults 个分块，按相似度降序，
// 相同相似度按插入顺序。
func (s *Store) SimilaritySearch(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	if len(query) != s.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, want %d", model.ErrValidation, len(query), s.dim)
	}
	metric := opts.Metric
	if metric == "" {
		metric = Cosine
	}
	k := opts.MaxResults
	if k <= 0 {
		k = DefaultMaxResults
	}

	var filter map[string]struct{}
	if len(opts.DocumentIDs) > 0 {
		filter = make(map[string]struct{}, len(opts.DocumentIDs))
		for _, id := range opts.DocumentIDs {
			filter[id] = struct{}{}
		}
	}

	st := s.current.Load()
	top := newTopK(k)
	scanned := 0
	for _, e := range st.entries {
		if filter != nil {
			if _, ok := filter[e.emb.DocumentID]; !ok {
				continue
			}
		}
		scanned++
		if scanned%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		sim, dist := Score(metric, query, e.emb.Vector)
		if sim < opts.Threshold {
			continue
		}
		top.offer(candidate{
			match: Match{DocumentID: e.emb.DocumentID, ChunkID: e.emb.ID, Similarity: sim, Distance: dist},
			seq:   e.seq,
		})
	}
	return top.sorted(), nil
}
