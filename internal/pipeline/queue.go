package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"pai-semantic-go/pkg/log"
	"pai-semantic-go/pkg/tasks"
)

// ErrQueueFull 表示后台队列已达到容量上限。
var ErrQueueFull = errors.New("indexing queue is full")

// ErrQueueClosed 表示队列已关闭。
var ErrQueueClosed = errors.New("indexing queue is closed")

// TaskProcessor 处理一个后台索引任务。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.IndexTask) error
}

// Queue 是后台索引队列。
type Queue interface {
	// Enqueue 提交任务并返回任务 ID。
	Enqueue(ctx context.Context, task tasks.IndexTask) (string, error)
	// Start 启动消费者，ctx 取消后停止。
	Start(ctx context.Context)
	// Pending 返回尚未完成的任务数（包括正在处理的任务）。
	Pending() int
	Close() error
}

// MemoryQueue 是进程内队列：单个 worker 按提交顺序逐个处理，
// 每个任务完成后（无论成功失败）立即出队。
type MemoryQueue struct {
	processor TaskProcessor
	capacity  int

	mu      sync.Mutex
	items   []tasks.IndexTask
	closed  bool
	started bool
	wake    chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewMemoryQueue 创建容量为 capacity 的内存队列，capacity <= 0 表示不限。
func NewMemoryQueue(capacity int, processor TaskProcessor) *MemoryQueue {
	return &MemoryQueue{
		processor: processor,
		capacity:  capacity,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, task tasks.IndexTask) (string, error) {
	if task.JobID == "" {
		task.JobID = uuid.NewString()
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now()
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", ErrQueueClosed
	}
	if q.capacity > 0 && len(q.items) >= q.capacity {
		q.mu.Unlock()
		return "", ErrQueueFull
	}
	q.items = append(q.items, task)
	pending := len(q.items)
	q.mu.Unlock()

	q.signal()
	log.Infof("[Queue] 任务已入队, JobID: %s, DocumentID: %s, pending: %d", task.JobID, task.Request.ID, pending)
	return task.JobID, nil
}

func (q *MemoryQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Start 启动唯一的 worker。重复调用无效。
func (q *MemoryQueue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started || q.closed {
		q.mu.Unlock()
		return
	}
	q.started = true
	ctx, q.cancel = context.WithCancel(ctx)
	q.mu.Unlock()

	go q.run(ctx)
}

func (q *MemoryQueue) run(ctx context.Context) {
	defer close(q.done)
	log.Info("[Queue] 后台索引 worker 已启动")
	for {
		task, ok := q.peek()
		if !ok {
			select {
			case <-ctx.Done():
				log.Info("[Queue] 后台索引 worker 已停止")
				return
			case <-q.wake:
				continue
			}
		}
		if ctx.Err() != nil {
			log.Info("[Queue] 后台索引 worker 已停止")
			return
		}

		if err := q.processor.Process(ctx, task); err != nil {
			log.Errorf("[Queue] 任务处理失败, JobID: %s, DocumentID: %s, Error: %v", task.JobID, task.Request.ID, err)
		} else {
			log.Infof("[Queue] 任务处理成功, JobID: %s, DocumentID: %s", task.JobID, task.Request.ID)
		}
		q.pop()
	}
}

func (q *MemoryQueue) peek() (tasks.IndexTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return tasks.IndexTask{}, false
	}
	return q.items[0], true
}

func (q *MemoryQueue) pop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items[0] = tasks.IndexTask{}
	q.items = q.items[1:]
}

func (q *MemoryQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close 停止 worker 并等待正在处理的任务结束，未处理的任务被丢弃。
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	started := q.started
	cancel := q.cancel
	q.mu.Unlock()

	if started {
		cancel()
		<-q.done
	}
	if n := q.Pending(); n > 0 {
		log.Warnf("[Queue] 队列关闭时丢弃了 %d 个未处理的任务", n)
	}
	return nil
}
