package pipeline

import (
	"context"
	"errors"
	"fmt"

	"pai-semantic-go/internal/model"
	"pai-semantic-go/pkg/log"
	"pai-semantic-go/pkg/tasks"
)

// Indexer 是后台任务最终调用的索引入口。
type Indexer interface {
	IndexDocument(ctx context.Context, req model.IndexRequest) model.IndexingResult
}

// Processor 把队列任务交给 Indexer，内存队列和 Kafka 消费者共用。
type Processor struct {
	indexer Indexer
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(indexer Indexer) *Processor {
	return &Processor{indexer: indexer}
}

// Process 是后台索引任务的主函数。
func (p *Processor) Process(ctx context.Context, task tasks.IndexTask) error {
	log.Infof("[Processor] 开始处理索引任务, JobID: %s, DocumentID: %s", task.JobID, task.Request.ID)
	if task.Request.ID == "" {
		return errors.New("任务缺少文档 ID")
	}

	result := p.indexer.IndexDocument(ctx, task.Request)
	if !result.Success {
		log.Errorf("[Processor] 索引任务失败, DocumentID: %s, Error: %s", task.Request.ID, result.Error)
		return fmt.Errorf("索引文档 %s 失败: %s", task.Request.ID, result.Error)
	}

	log.Infof("[Processor] 索引任务完成, DocumentID: %s, chunks: %d, embeddings: %d, 耗时: %dms",
		result.DocumentID, result.ChunksCreated, result.EmbeddingsGenerated, result.ProcessingTimeMs)
	return nil
}
