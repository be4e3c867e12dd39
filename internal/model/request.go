package model

// IndexOptions 覆盖单次索引的预处理开关，nil 表示使用配置中的默认值。
type IndexOptions struct {
	MaxKeywords     int   `json:"maxKeywords,omitempty"`
	ExtractEntities *bool `json:"extractEntities,omitempty"`
	ExtractTopics   *bool `json:"extractTopics,omitempty"`
	GenerateSummary *bool `json:"generateSummary,omitempty"`
}

// IndexRequest 是一次文档索引请求。
type IndexRequest struct {
	ID       string           `json:"id"`
	Content  Document         `json:"content"`
	Metadata DocumentMetadata `json:"metadata"`
	Options  IndexOptions     `json:"options"`
}
