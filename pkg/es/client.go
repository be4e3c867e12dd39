// Package es 提供了把分块与向量镜像到 Elasticsearch 的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"pai-semantic-go/internal/config"
	"pai-semantic-go/internal/model"
	"pai-semantic-go/pkg/log"
)

// ChunkDocument 是写入 Elasticsearch 的单个分块文档。
type ChunkDocument struct {
	ChunkID    string    `json:"chunk_id"`
	DocumentID string    `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	Content    string    `json:"text_content"`
	Vector     []float32 `json:"vector,omitempty"`
	Model      string    `json:"model_version,omitempty"`
}

// Mirror 把已索引的分块同步到 Elasticsearch，供外部检索和看板使用。
// 进程内的向量索引仍是检索的唯一来源。
type Mirror struct {
	client *elasticsearch.Client
	index  string
}

// NewMirror 初始化 Elasticsearch 客户端，并在索引不存在时创建它。
func NewMirror(esCfg config.ElasticsearchConfig, dims int) (*Mirror, error) {
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	m := &Mirror{client: client, index: esCfg.IndexName}
	if err := m.createIndexIfNotExists(dims); err != nil {
		return nil, err
	}
	return m, nil
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func (m *Mirror) createIndexIfNotExists(dims int) error {
	res, err := m.client.Indices.Exists([]string{m.index})
	if err != nil {
		log.Errorf("[ES] 检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("[ES] 索引 '%s' 已存在", m.index)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("[ES] 检查索引 '%s' 是否存在时收到意外的状态码: %d", m.index, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"chunk_id": { "type": "keyword" },
				"document_id": { "type": "keyword" },
				"chunk_index": { "type": "integer" },
				"text_content": { "type": "text" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"model_version": { "type": "keyword" }
			}
		}
	}`, dims)

	res, err = m.client.Indices.Create(
		m.index,
		m.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("[ES] 创建索引 '%s' 失败: %v", m.index, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("[ES] 创建索引 '%s' 时 Elasticsearch 返回错误: %s", m.index, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("[ES] 索引 '%s' 创建成功", m.index)
	return nil
}

// IndexChunks 写入一个文档的分块。没有向量的分块只写文本。
func (m *Mirror) IndexChunks(ctx context.Context, chunks []model.DocumentChunk, embs []model.VectorEmbedding) error {
	vectors := make(map[string]model.VectorEmbedding, len(embs))
	for _, e := range embs {
		vectors[e.ID] = e
	}
	for _, c := range chunks {
		doc := ChunkDocument{ChunkID: c.ID, DocumentID: c.DocumentID, ChunkIndex: c.Index, Content: c.Content}
		if e, ok := vectors[c.ID]; ok {
			doc.Vector = e.Vector
			doc.Model = e.Model
		}
		if err := m.indexChunk(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mirror) indexChunk(ctx context.Context, doc ChunkDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      m.index,
		DocumentID: doc.ChunkID,
		Body:       bytes.NewReader(docBytes),
	}
	res, err := req.Do(ctx, m.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("[ES] 索引分块到 Elasticsearch 出错: %s", res.String())
		return fmt.Errorf("failed to index chunk %s", doc.ChunkID)
	}
	return nil
}

// DeleteDocument 删除一个文档在镜像索引中的全部分块。
func (m *Mirror) DeleteDocument(ctx context.Context, documentID string) error {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"document_id": documentID},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return err
	}

	res, err := m.client.DeleteByQuery([]string{m.index}, &buf, m.client.DeleteByQuery.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("[ES] 删除文档 %s 的分块失败: %s", documentID, res.String())
		return fmt.Errorf("failed to delete chunks of %s", documentID)
	}
	return nil
}
