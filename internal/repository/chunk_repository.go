package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"pai-semantic-go/internal/model"
	"pai-semantic-go/pkg/kv"
)

func chunksKey(documentID string) string { return "chunks_" + documentID }

// ChunkRepository 定义了文档分块的持久化操作。一个文档的分块总是整体替换。
type ChunkRepository interface {
	Replace(ctx context.Context, documentID string, chunks []model.DocumentChunk) error
	FindByDocument(ctx context.Context, documentID string) ([]model.DocumentChunk, error)
	DeleteByDocument(ctx context.Context, documentID string) error
}

type kvChunkRepository struct {
	store kv.Store
}

// NewChunkRepository 创建一个基于 KV 的 ChunkRepository，分块整体保存在 chunks_{id}。
func NewChunkRepository(store kv.Store) ChunkRepository {
	return &kvChunkRepository{store: store}
}

func (r *kvChunkRepository) Replace(ctx context.Context, documentID string, chunks []model.DocumentChunk) error {
	return setJSON(ctx, r.store, chunksKey(documentID), chunks, 0)
}

func (r *kvChunkRepository) FindByDocument(ctx context.Context, documentID string) ([]model.DocumentChunk, error) {
	var chunks []model.DocumentChunk
	if _, err := getJSON(ctx, r.store, chunksKey(documentID), &chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *kvChunkRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := removeKey(ctx, r.store, chunksKey(documentID))
	return err
}

// ChunkRecord 对应 document_chunks 表。
type ChunkRecord struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	ChunkID     string `gorm:"type:varchar(255);uniqueIndex"`
	DocumentID  string `gorm:"type:varchar(191);index"`
	ChunkIndex  int
	Content     string `gorm:"type:text"`
	StartOffset int
	EndOffset   int
	WordCount   int
	CreatedAt   time.Time
}

// TableName 指定表名。
func (ChunkRecord) TableName() string {
	return "document_chunks"
}

func toChunkRecord(c model.DocumentChunk) ChunkRecord {
	return ChunkRecord{
		ChunkID:     c.ID,
		DocumentID:  c.DocumentID,
		ChunkIndex:  c.Index,
		Content:     c.Content,
		StartOffset: c.StartOffset,
		EndOffset:   c.EndOffset,
		WordCount:   c.WordCount,
	}
}

func (r ChunkRecord) toModel() model.DocumentChunk {
	return model.DocumentChunk{
		ID:          r.ChunkID,
		DocumentID:  r.DocumentID,
		Index:       r.ChunkIndex,
		Content:     r.Content,
		StartOffset: r.StartOffset,
		EndOffset:   r.EndOffset,
		WordCount:   r.WordCount,
	}
}

type gormChunkRepository struct {
	db *gorm.DB
}

// NewGormChunkRepository 创建一个基于 MySQL 的 ChunkRepository，并迁移 document_chunks 表。
func NewGormChunkRepository(db *gorm.DB) (ChunkRepository, error) {
	if err := db.AutoMigrate(&ChunkRecord{}); err != nil {
		return nil, fmt.Errorf("%w: migrate document_chunks: %v", model.ErrPersistence, err)
	}
	return &gormChunkRepository{db: db}, nil
}

// Replace 在一个事务内删除旧分块并批量写入新分块。
func (r *gormChunkRepository) Replace(ctx context.Context, documentID string, chunks []model.DocumentChunk) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&ChunkRecord{}).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		records := make([]ChunkRecord, len(chunks))
		for i, c := range chunks {
			records[i] = toChunkRecord(c)
		}
		return tx.CreateInBatches(records, 100).Error // 每100条记录一批
	})
	if err != nil {
		return fmt.Errorf("%w: replace chunks of %s: %v", model.ErrPersistence, documentID, err)
	}
	return nil
}

func (r *gormChunkRepository) FindByDocument(ctx context.Context, documentID string) ([]model.DocumentChunk, error) {
	var records []ChunkRecord
	err := r.db.WithContext(ctx).Where("document_id = ?", documentID).Order("chunk_index asc").Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("%w: find chunks of %s: %v", model.ErrPersistence, documentID, err)
	}
	chunks := make([]model.DocumentChunk, len(records))
	for i, rec := range records {
		chunks[i] = rec.toModel()
	}
	return chunks, nil
}

func (r *gormChunkRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	if err := r.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&ChunkRecord{}).Error; err != nil {
		return fmt.Errorf("%w: delete chunks of %s: %v", model.ErrPersistence, documentID, err)
	}
	return nil
}
