// Package app 负责组装索引核心的所有组件，并管理它们的生命周期。
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"pai-semantic-go/internal/chunker"
	"pai-semantic-go/internal/config"
	"pai-semantic-go/internal/pipeline"
	"pai-semantic-go/internal/repository"
	"pai-semantic-go/internal/service"
	"pai-semantic-go/internal/vectorstore"
	"pai-semantic-go/pkg/database"
	"pai-semantic-go/pkg/embedding"
	"pai-semantic-go/pkg/es"
	"pai-semantic-go/pkg/kafka"
	"pai-semantic-go/pkg/kv"
	"pai-semantic-go/pkg/log"
)

const connectTimeout = 5 * time.Second

// Options 用于替换默认构造的外部依赖，字段为空时按配置创建。
type Options struct {
	// Redis 是 KV 底层的客户端，Kafka 队列用它记录重试次数；KV 不基于 Redis 时为 nil。
	Redis *redis.Client

	KV       kv.Store
	Provider embedding.Provider
	Mirror   service.ChunkMirror
	// Now 替换各服务使用的时钟。
	Now func() time.Time
}

// App 持有全部服务。New 只做构造，Init 加载持久化状态并启动后台队列，Close 释放资源。
type App struct {
	Config config.Config

	// Redis 是 KV 底层的客户端，Kafka 队列用它记录重试次数；KV 不基于 Redis 时为 nil。
	Redis *redis.Client

	KV       kv.Store
	Provider embedding.Provider
	Store    *vectorstore.Store
	Docs     repository.DocumentRepository
	Chunks   repository.ChunkRepository

	Stats           service.StatsService
	Index           service.IndexService
	Search          service.SearchService
	Recommendations service.RecommendationService
	Queue           pipeline.Queue

	closers []func() error
}

// New 按配置组装组件。配置不合法时返回 model.ErrInvalidConfig。
func New(cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			_ = a.closeAll()
		}
	}()

	// 1. 键值存储
	switch {
	case opts.KV != nil:
		a.KV = opts.KV
		if rs, isRedis := opts.KV.(*kv.RedisStore); isRedis {
			a.Redis = rs.Client()
		}
	case cfg.Database.Redis.Addr != "":
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		client, err := database.NewRedis(ctx, cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
		cancel()
		if err != nil {
			return nil, err
		}
		a.Redis = client
		a.KV = kv.NewRedisStore(client, "")
	default:
		log.Warnf("[App] 未配置 Redis，使用进程内存储，重启后数据丢失")
		a.KV = kv.NewMemoryStore()
	}
	a.closers = append(a.closers, a.KV.Close)

	// 2. 向量模型
	a.Provider = opts.Provider
	if a.Provider == nil {
		switch cfg.Embedding.Provider {
		case "openai":
			a.Provider = embedding.NewClient(cfg.Embedding)
		default:
			a.Provider = embedding.NewHashProvider(cfg.Embedding.Dimensions, cfg.Embedding.Seed, cfg.Embedding.Model)
		}
	}

	// 3. 向量索引、分块与预处理
	store, err := vectorstore.New(a.KV, a.Provider.Dimensions())
	if err != nil {
		return nil, err
	}
	a.Store = store
	textChunker, err := chunker.New(cfg.Index.ChunkSize, cfg.Index.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	preprocessor := pipeline.NewPreprocessor(pipeline.Options{
		MaxKeywords:     cfg.Index.MaxKeywords,
		ExtractEntities: cfg.Index.ExtractEntities,
		ExtractTopics:   cfg.Index.ExtractTopics,
		GenerateSummary: cfg.Index.GenerateSummary,
	})

	// 4. Repository
	a.Docs = repository.NewDocumentRepository(a.KV)
	if cfg.Index.ChunkBackend == "mysql" {
		db, err := database.NewMySQL(cfg.Database.MySQL.DSN)
		if err != nil {
			return nil, err
		}
		if sqlDB, err := db.DB(); err == nil {
			a.closers = append(a.closers, sqlDB.Close)
		}
		if a.Chunks, err = repository.NewGormChunkRepository(db); err != nil {
			return nil, err
		}
	} else {
		a.Chunks = repository.NewChunkRepository(a.KV)
	}

	// 5. 可选的 Elasticsearch 镜像
	mirror := opts.Mirror
	if mirror == nil && cfg.Elasticsearch.Addresses != "" {
		m, err := es.NewMirror(cfg.Elasticsearch, a.Provider.Dimensions())
		if err != nil {
			return nil, err
		}
		mirror = m
	}

	// 6. Service
	a.Stats = service.NewStatsService(repository.NewStatsRepository(a.KV), cfg.Stats)
	a.Index = service.NewIndexService(a.Provider, a.Store, textChunker, preprocessor, a.Docs, a.Chunks, a.Stats, mirror)
	a.Search = service.NewSearchService(a.Provider, a.Store, a.Docs, service.NewQueryProcessor(opts.Now), a.Stats, cfg.Search)
	a.Recommendations = service.NewRecommendationService(a.Search, a.Docs, a.Stats, cfg.Recommendation)
	if opts.Now != nil {
		service.SetClock(a.Index, a.Search, a.Stats, opts.Now)
	}

	// 7. 后台索引队列
	processor := pipeline.NewProcessor(a.Index)
	if cfg.Kafka.Brokers != "" {
		a.Queue = kafka.NewQueue(cfg.Kafka, processor, a.Redis)
	} else {
		a.Queue = pipeline.NewMemoryQueue(cfg.Index.QueueSize, processor)
	}

	ok = true
	log.Infof("[App] 组件初始化完成, provider: %s, dimensions: %d, chunk backend: %s",
		a.Provider.Model(), a.Provider.Dimensions(), cfg.Index.ChunkBackend)
	return a, nil
}

// Init 从持久化存储恢复向量索引和统计数据，然后启动后台队列。
func (a *App) Init(ctx context.Context) error {
	if err := a.Store.Load(ctx); err != nil {
		return fmt.Errorf("加载向量索引失败: %w", err)
	}
	if err := a.Stats.Load(ctx); err != nil {
		return fmt.Errorf("加载统计数据失败: %w", err)
	}
	a.Queue.Start(ctx)
	log.Infof("[App] 初始化完成, embeddings: %d", a.Store.Len())
	return nil
}

// Close 停止后台队列并关闭所有连接。
func (a *App) Close() error {
	var errs []error
	if a.Queue != nil {
		errs = append(errs, a.Queue.Close())
	}
	errs = append(errs, a.closeAll())
	return errors.Join(errs...)
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
