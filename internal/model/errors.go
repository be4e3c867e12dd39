package model

import "errors"

// 领域错误，调用方通过 errors.Is 判断类别。
var (
	// ErrValidation 表示文档内容或参数不合法，在分块之前直接失败。
	ErrValidation = errors.New("validation error")

	// ErrEmbedding 表示向量模型调用失败。
	ErrEmbedding = errors.New("embedding error")

	// ErrPersistence 表示持久化存储写入或读取失败。
	ErrPersistence = errors.New("persistence error")

	// ErrNotFound 表示引用了不存在的文档。
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig 表示构造期的配置错误，例如分块重叠不小于分块大小。
	ErrInvalidConfig = errors.New("invalid configuration")
)
