// Package model 包含了索引与检索核心的数据模型定义。
package model

import (
	"fmt"
	"strings"
	"time"
)

// EntityType 标识命名实体的类别。
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityDate         EntityType = "date"
	EntityMoney        EntityType = "money"
)

// Entity 是通过规则从正文中抽取出的命名实体。Start/End 为正文中的字节偏移。
type Entity struct {
	Text  string     `json:"text"`
	Type  EntityType `json:"type"`
	Start int        `json:"start"`
	End   int        `json:"end"`
}

// TopicCategory 是主题分类表中的类别名。
type TopicCategory string

// Topic 是按关键词类别匹配得到的主题。
type Topic struct {
	Name            TopicCategory `json:"name"`
	Confidence      float64       `json:"confidence"`
	MatchedKeywords []string      `json:"matchedKeywords"`
}

// Document 是调用方提交的原始内容。
type Document struct {
	Title       string   `json:"title"`
	Body        string   `json:"body"`
	Summary     string   `json:"summary,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Entities    []Entity `json:"entities,omitempty"`
	Topics      []Topic  `json:"topics,omitempty"`
	Language    string   `json:"language,omitempty"`
	ContentType string   `json:"contentType,omitempty"`
}

// FullText 返回参与分块与向量化的标题加正文。
func (d Document) FullText() string {
	return strings.TrimSpace(d.Title + "\n" + d.Body)
}

// RelationType 描述两个文档之间的关系。
type RelationType string

const (
	RelationReferences RelationType = "references"
	RelationRelated    RelationType = "related"
	RelationSupersedes RelationType = "supersedes"
)

// Relationship 是指向另一个文档的链接。
type Relationship struct {
	TargetID string       `json:"targetId"`
	Type     RelationType `json:"type"`
}

// DocumentMetadata 是文档的来源、分类与时间信息。
type DocumentMetadata struct {
	Source        string         `json:"source,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	ModifiedAt    time.Time      `json:"modifiedAt"`
	Tags          []string       `json:"tags,omitempty"`
	Category      string         `json:"category,omitempty"`
	QualityScore  float64        `json:"qualityScore"`
	Relationships []Relationship `json:"relationships,omitempty"`
}

// QualityIssueType 标识质量问题的种类。
type QualityIssueType string

const (
	IssueMissingTitle  QualityIssueType = "missing_title"
	IssueShortBody     QualityIssueType = "short_body"
	IssueNoKeywords    QualityIssueType = "no_keywords"
	IssueLongSentences QualityIssueType = "long_sentences"
)

// Severity 为质量问题的严重程度。
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// QualityIssue 是质量评估发现的单个问题。
type QualityIssue struct {
	Type     QualityIssueType `json:"type"`
	Message  string           `json:"message"`
	Severity Severity         `json:"severity"`
}

// QualityAssessment 是预处理阶段计算出的质量评分。
type QualityAssessment struct {
	Score        float64        `json:"score"`
	Completeness float64        `json:"completeness"`
	Readability  float64        `json:"readability"`
	Issues       []QualityIssue `json:"issues,omitempty"`
}

// DocumentChunk 是文档按词切分后的一个连续片段。
// 偏移量是相对于按单个空格重新拼接后的文本的字符偏移。
type DocumentChunk struct {
	ID          string `json:"id"`
	DocumentID  string `json:"documentId"`
	Index       int    `json:"index"`
	Content     string `json:"content"`
	StartOffset int    `json:"startOffset"`
	EndOffset   int    `json:"endOffset"`
	WordCount   int    `json:"wordCount"`
}

// ChunkID 生成确定性的分块 ID。
func ChunkID(documentID string, n int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, n)
}

// IndexedDocument 是持久化的文档记录。
type IndexedDocument struct {
	ID             string            `json:"id"`
	Content        Document          `json:"content"`
	Metadata       DocumentMetadata  `json:"metadata"`
	Quality        QualityAssessment `json:"quality"`
	IndexedAt      time.Time         `json:"indexedAt"`
	Version        int               `json:"version"`
	ChunkCount     int               `json:"chunkCount"`
	EmbeddingCount int               `json:"embeddingCount"`
}
