package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"pai-semantic-go/internal/model"
	"pai-semantic-go/pkg/kv"
)

const documentIDsKey = "document_ids"

func documentKey(id string) string { return "document_" + id }

// DocumentRepository 定义了 IndexedDocument 的持久化操作。
type DocumentRepository interface {
	// Get 返回文档；不存在时返回 model.ErrNotFound。
	Get(ctx context.Context, id string) (*model.IndexedDocument, error)
	Save(ctx context.Context, doc *model.IndexedDocument) error
	// Delete 删除文档，返回文档是否存在。
	Delete(ctx context.Context, id string) (bool, error)
	// IDs 返回已登记的全部文档 ID（已排序）。
	IDs(ctx context.Context) ([]string, error)
}

type kvDocumentRepository struct {
	store kv.Store
	// mu 串行化对 document_ids 登记表的读改写。
	mu sync.Mutex
}

// NewDocumentRepository 创建一个基于 KV 的 DocumentRepository。
func NewDocumentRepository(store kv.Store) DocumentRepository {
	return &kvDocumentRepository{store: store}
}

func (r *kvDocumentRepository) Get(ctx context.Context, id string) (*model.IndexedDocument, error) {
	var doc model.IndexedDocument
	ok, err := getJSON(ctx, r.store, documentKey(id), &doc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: document %s", model.ErrNotFound, id)
	}
	return &doc, nil
}

// Save 先登记 ID 再写文档，保证重建索引时能找到所有写入过的文档。
func (r *kvDocumentRepository) Save(ctx context.Context, doc *model.IndexedDocument) error {
	if err := r.register(ctx, doc.ID); err != nil {
		return err
	}
	return setJSON(ctx, r.store, documentKey(doc.ID), doc, 0)
}

// Delete 先注销 ID 再删除文档记录，删除失败时重新登记，文档记录不会脱离登记表。
func (r *kvDocumentRepository) Delete(ctx context.Context, id string) (bool, error) {
	if err := r.unregister(ctx, id); err != nil {
		return false, err
	}
	existed, err := removeKey(ctx, r.store, documentKey(id))
	if err != nil {
		if rerr := r.register(ctx, id); rerr != nil {
			return false, errors.Join(err, rerr)
		}
		return false, err
	}
	return existed, nil
}

func (r *kvDocumentRepository) IDs(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadIDs(ctx)
}

func (r *kvDocumentRepository) loadIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if _, err := getJSON(ctx, r.store, documentIDsKey, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *kvDocumentRepository) register(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids, err := r.loadIDs(ctx)
	if err != nil {
		return err
	}
	i := sort.SearchStrings(ids, id)
	if i < len(ids) && ids[i] == id {
		return nil
	}
	ids = append(ids, "")
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return setJSON(ctx, r.store, documentIDsKey, ids, 0)
}

func (r *kvDocumentRepository) unregister(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids, err := r.loadIDs(ctx)
	if err != nil {
		return err
	}
	i := sort.SearchStrings(ids, id)
	if i >= len(ids) || ids[i] != id {
		return nil
	}
	ids = append(ids[:i], ids[i+1:]...)
	if len(ids) == 0 {
		_, err := removeKey(ctx, r.store, documentIDsKey)
		return err
	}
	return setJSON(ctx, r.store, documentIDsKey, ids, 0)
}
