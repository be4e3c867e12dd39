// Package kv 定义了索引核心依赖的键值持久化接口。
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrClosed 表示存储已关闭。
var ErrClosed = errors.New("kv store closed")

// Store 是简单的键值存储：get/set/remove，支持可选的过期时间。
// 不同 key 之间没有事务保证。
type Store interface {
	// Get 返回 key 对应的值；key 不存在时 ok 为 false。
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set 写入 key，ttl 为 0 表示永不过期。
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Remove 删除 key，返回 key 是否存在。
	Remove(ctx context.Context, key string) (bool, error)
	Close() error
}
