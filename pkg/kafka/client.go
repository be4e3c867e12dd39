// Package kafka 提供了基于 Kafka 的后台索引队列。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"pai-semantic-go/internal/config"
	"pai-semantic-go/internal/pipeline"
	"pai-semantic-go/pkg/log"
	"pai-semantic-go/pkg/tasks"
)

const (
	attemptsKeyPrefix = "kafka:attempts:"
	attemptsTTL       = 24 * time.Hour
	retryBackoff      = time.Second
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Queue 把索引任务写入 Kafka 主题，并由同一进程内的消费者组处理。
// 失败次数记录在 Redis 的 kafka:attempts:{JobID} 中，达到 MaxAttempts 后提交 offset 放弃该任务。
type Queue struct {
	cfg       config.KafkaConfig
	processor pipeline.TaskProcessor
	rdb       *redis.Client

	writer  messageWriter
	reader  messageReader
	backoff time.Duration

	// 本进程视角的未完成任务数
	pending atomic.Int64

	mu        sync.Mutex
	local     map[string]int
	started   bool
	closed    bool
	cancel    context.CancelFunc
	done      chan struct{}
	newReader func() messageReader
}

var _ pipeline.Queue = (*Queue)(nil)

// NewQueue 创建 Kafka 队列。rdb 为 nil 时失败次数只在进程内计数。
func NewQueue(cfg config.KafkaConfig, processor pipeline.TaskProcessor, rdb *redis.Client) *Queue {
	brokers := splitBrokers(cfg.Brokers)
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	q := &Queue{
		cfg:       cfg,
		processor: processor,
		rdb:       rdb,
		backoff:   retryBackoff,
		local:     make(map[string]int),
		done:      make(chan struct{}),
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    cfg.Topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
	q.newReader = func() messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    cfg.Topic,
			GroupID:  cfg.GroupID,
			MinBytes: 1,
			MaxBytes: 10e6, // 10MB
		})
	}
	log.Infof("[Kafka] 队列初始化成功, brokers: %v, topic: %s", brokers, cfg.Topic)
	return q
}

func splitBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Enqueue 发送一个索引任务到 Kafka，以 JobID 作为消息 key。
func (q *Queue) Enqueue(ctx context.Context, task tasks.IndexTask) (string, error) {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return "", pipeline.ErrQueueClosed
	}

	if task.JobID == "" {
		task.JobID = uuid.NewString()
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now()
	}
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return "", err
	}
	if err := q.writer.WriteMessages(ctx, kafka.Message{Key: []byte(task.JobID), Value: taskBytes}); err != nil {
		return "", fmt.Errorf("发送 Kafka 消息失败: %w", err)
	}
	q.pending.Add(1)
	log.Infof("[Kafka] 任务已发送, JobID: %s, DocumentID: %s", task.JobID, task.Request.ID)
	return task.JobID, nil
}

// Start 启动消费者。重复调用无效。
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started || q.closed {
		q.mu.Unlock()
		return
	}
	q.started = true
	ctx, q.cancel = context.WithCancel(ctx)
	if q.reader == nil {
		q.reader = q.newReader()
	}
	reader := q.reader
	q.mu.Unlock()

	go q.consume(ctx, reader)
}

func (q *Queue) consume(ctx context.Context, r messageReader) {
	defer close(q.done)
	log.Infof("[Kafka] 消费者已启动，正在监听主题 '%s'", q.cfg.Topic)
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
				log.Errorf("[Kafka] 从 Kafka 读取消息失败: %v", err)
			}
			break
		}
		log.Debugf("[Kafka] 收到消息: partition %d, offset %d", m.Partition, m.Offset)
		q.handle(ctx, r, m)
	}
	log.Info("[Kafka] 消费者已停止")
}

// handle 处理一条消息直到成功、达到最大尝试次数或 ctx 取消。
func (q *Queue) handle(ctx context.Context, r messageReader, m kafka.Message) {
	var task tasks.IndexTask
	if err := json.Unmarshal(m.Value, &task); err != nil {
		log.Errorf("[Kafka] 无法解析消息: %v, value: %s", err, string(m.Value))
		// 消息格式错误，直接提交，避免阻塞队列
		q.commit(ctx, r, m)
		return
	}

	for {
		err := q.processor.Process(ctx, task)
		if err == nil {
			log.Infof("[Kafka] 任务处理成功, JobID: %s", task.JobID)
			q.resetAttempts(ctx, task.JobID)
			q.commit(ctx, r, m)
			q.finish()
			return
		}
		log.Errorf("[Kafka] 任务处理失败, JobID: %s, Error: %v", task.JobID, err)

		attempts, incErr := q.incrAttempts(ctx, task.JobID)
		if incErr != nil {
			log.Warnf("[Kafka] 记录失败次数出错, JobID: %s, Error: %v", task.JobID, incErr)
		}
		if attempts >= q.cfg.MaxAttempts {
			log.Errorf("[Kafka] 任务多次失败(>=%d)，提交 offset 终止重试, JobID: %s", q.cfg.MaxAttempts, task.JobID)
			q.resetAttempts(ctx, task.JobID)
			q.commit(ctx, r, m)
			q.finish()
			return
		}

		select {
		case <-ctx.Done():
			// 未提交的消息在下次启动后重新投递
			return
		case <-time.After(q.backoff):
		}
	}
}

func (q *Queue) commit(ctx context.Context, r messageReader, m kafka.Message) {
	if err := r.CommitMessages(ctx, m); err != nil {
		log.Errorf("[Kafka] 提交消息 offset 失败: %v", err)
	}
}

func (q *Queue) finish() {
	if q.pending.Add(-1) < 0 {
		q.pending.Store(0)
	}
}

// incrAttempts 返回累加后的失败次数。Redis 出错时退回进程内计数。
func (q *Queue) incrAttempts(ctx context.Context, jobID string) (int, error) {
	key := attemptsKeyPrefix + jobID
	if q.rdb != nil {
		n, err := q.rdb.Incr(ctx, key).Result()
		if err == nil {
			_ = q.rdb.Expire(ctx, key, attemptsTTL).Err()
			return int(n), nil
		}
		q.mu.Lock()
		q.local[key]++
		local := q.local[key]
		q.mu.Unlock()
		return local, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.local[key]++
	return q.local[key], nil
}

func (q *Queue) resetAttempts(ctx context.Context, jobID string) {
	key := attemptsKeyPrefix + jobID
	q.mu.Lock()
	delete(q.local, key)
	q.mu.Unlock()
	if q.rdb != nil {
		_ = q.rdb.Del(ctx, key).Err()
	}
}

// Pending 返回本进程发送但尚未处理完成的任务数。
func (q *Queue) Pending() int {
	return int(q.pending.Load())
}

// Close 停止消费者并关闭连接。
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	started, cancel, reader := q.started, q.cancel, q.reader
	q.mu.Unlock()

	var errs []error
	if started {
		cancel()
		<-q.done
	}
	if reader != nil {
		errs = append(errs, reader.Close())
	}
	errs = append(errs, q.writer.Close())
	return errors.Join(errs...)
}
