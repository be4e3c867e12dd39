// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"pai-semantic-go/internal/model"

	"github.com/spf13/viper"
)

// 全局配置变量，由 Init 填充，仅供 cmd/server 使用。
var Conf Config

// ErrInvalidConfig 表示配置值不合法，应在启动时直接失败。
var ErrInvalidConfig = model.ErrInvalidConfig

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Log            LogConfig            `mapstructure:"log"`
	Kafka          KafkaConfig          `mapstructure:"kafka"`
	Elasticsearch  ElasticsearchConfig  `mapstructure:"elasticsearch"`
	Embedding      EmbeddingConfig      `mapstructure:"embedding"`
	Index          IndexConfig          `mapstructure:"index"`
	Search         SearchConfig         `mapstructure:"search"`
	Recommendation RecommendationConfig `mapstructure:"recommendation"`
	Stats          StatsConfig          `mapstructure:"stats"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。DSN 为空时不启用。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。Addr 为空时使用进程内存储。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。Brokers 为空时使用内存队列。
type KafkaConfig struct {
	Brokers     string `mapstructure:"brokers"`
	Topic       string `mapstructure:"topic"`
	GroupID     string `mapstructure:"group_id"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

// ElasticsearchConfig 存储 Elasticsearch 镜像索引的配置。Addresses 为空时不启用。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
// Provider 取值 "hash"（确定性本地实现）或 "openai"（OpenAI 兼容接口）。
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
	Seed       int64  `mapstructure:"seed"`
}

// IndexConfig 存储文档索引流程的配置。
type IndexConfig struct {
	ChunkSize       int    `mapstructure:"chunk_size"`
	ChunkOverlap    int    `mapstructure:"chunk_overlap"`
	MaxKeywords     int    `mapstructure:"max_keywords"`
	ExtractEntities bool   `mapstructure:"extract_entities"`
	ExtractTopics   bool   `mapstructure:"extract_topics"`
	GenerateSummary bool   `mapstructure:"generate_summary"`
	ChunkBackend    string `mapstructure:"chunk_backend"` // "kv" 或 "mysql"
	QueueSize       int    `mapstructure:"queue_size"`
}

// SearchConfig 存储检索与重排序的配置。
type SearchConfig struct {
	Metric              string        `mapstructure:"metric"`
	DefaultThreshold    float64       `mapstructure:"default_threshold"`
	DefaultMaxResults   int           `mapstructure:"default_max_results"`
	CandidateMultiplier int           `mapstructure:"candidate_multiplier"`
	ContextBoost        float64       `mapstructure:"context_boost"`
	RecencyBoost        float64       `mapstructure:"recency_boost"`
	RecencyWindow       time.Duration `mapstructure:"recency_window"`
}

// RecommendationConfig 存储推荐引擎的配置。
type RecommendationConfig struct {
	MaxRecentQueries int     `mapstructure:"max_recent_queries"`
	TieWindow        float64 `mapstructure:"tie_window"`
	Threshold        float64 `mapstructure:"threshold"`
}

// StatsConfig 存储统计与搜索历史的配置。
type StatsConfig struct {
	HistorySize     int           `mapstructure:"history_size"`
	HistoryTTL      time.Duration `mapstructure:"history_ttl"`
	TopQueriesLimit int           `mapstructure:"top_queries_limit"`
	TrendDays       int           `mapstructure:"trend_days"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8081")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("kafka.topic", "document-indexing")
	v.SetDefault("kafka.group_id", "pai-semantic-go-indexer")
	v.SetDefault("kafka.max_attempts", 3)
	v.SetDefault("elasticsearch.index_name", "semantic_chunks")
	v.SetDefault("embedding.provider", "hash")
	v.SetDefault("embedding.model", "hash-embedding-v1")
	v.SetDefault("embedding.dimensions", 384)
	v.SetDefault("embedding.seed", 42)
	v.SetDefault("index.chunk_size", 200)
	v.SetDefault("index.chunk_overlap", 50)
	v.SetDefault("index.max_keywords", 10)
	v.SetDefault("index.extract_entities", true)
	v.SetDefault("index.extract_topics", true)
	v.SetDefault("index.generate_summary", true)
	v.SetDefault("index.chunk_backend", "kv")
	v.SetDefault("index.queue_size", 1000)
	v.SetDefault("search.metric", "cosine")
	v.SetDefault("search.default_threshold", 0.7)
	v.SetDefault("search.default_max_results", 10)
	v.SetDefault("search.candidate_multiplier", 4)
	v.SetDefault("search.context_boost", 1.2)
	v.SetDefault("search.recency_boost", 1.1)
	v.SetDefault("search.recency_window", 7*24*time.Hour)
	v.SetDefault("recommendation.max_recent_queries", 3)
	v.SetDefault("recommendation.tie_window", 0.1)
	v.SetDefault("recommendation.threshold", 0.3)
	v.SetDefault("stats.history_size", 100)
	v.SetDefault("stats.history_ttl", 30*24*time.Hour)
	v.SetDefault("stats.top_queries_limit", 50)
	v.SetDefault("stats.trend_days", 30)
}

// Load 从指定路径读取 YAML 配置；路径为空时只使用默认值。
// 环境变量 PAI_SECTION_KEY 可覆盖文件中的值。
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("PAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 返回只包含默认值的配置。
func Default() Config {
	cfg, err := Load("")
	if err != nil {
		panic(err)
	}
	return *cfg
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = *cfg
}

// Validate 校验会导致运行期错误的配置组合。
func (c Config) Validate() error {
	if c.Index.ChunkSize <= 0 {
		return fmt.Errorf("%w: index.chunk_size must be positive, got %d", ErrInvalidConfig, c.Index.ChunkSize)
	}
	if c.Index.ChunkOverlap < 0 || c.Index.ChunkOverlap >= c.Index.ChunkSize {
		return fmt.Errorf("%w: index.chunk_overlap (%d) must be in [0, chunk_size=%d)",
			ErrInvalidConfig, c.Index.ChunkOverlap, c.Index.ChunkSize)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("%w: embedding.dimensions must be positive", ErrInvalidConfig)
	}
	switch c.Embedding.Provider {
	case "hash", "openai":
	default:
		return fmt.Errorf("%w: unknown embedding.provider %q", ErrInvalidConfig, c.Embedding.Provider)
	}
	switch c.Index.ChunkBackend {
	case "kv", "mysql":
	default:
		return fmt.Errorf("%w: unknown index.chunk_backend %q", ErrInvalidConfig, c.Index.ChunkBackend)
	}
	if c.Index.ChunkBackend == "mysql" && c.Database.MySQL.DSN == "" {
		return fmt.Errorf("%w: index.chunk_backend=mysql requires database.mysql.dsn", ErrInvalidConfig)
	}
	if c.Search.DefaultThreshold < 0 || c.Search.DefaultThreshold > 1 {
		return fmt.Errorf("%w: search.default_threshold must be in [0,1]", ErrInvalidConfig)
	}
	switch strings.ToLower(strings.TrimSpace(c.Search.Metric)) {
	case "", "cosine", "euclidean", "dot", "dot_product", "manhattan":
	default:
		return fmt.Errorf("%w: unknown search.metric %q", ErrInvalidConfig, c.Search.Metric)
	}
	if c.Search.DefaultMaxResults <= 0 {
		return fmt.Errorf("%w: search.default_max_results must be positive", ErrInvalidConfig)
	}
	if c.Search.ContextBoost <= 0 || c.Search.RecencyBoost <= 0 {
		return fmt.Errorf("%w: search boosts must be positive", ErrInvalidConfig)
	}
	return nil
}
