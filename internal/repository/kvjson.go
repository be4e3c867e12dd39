// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pai-semantic-go/internal/model"
	"pai-semantic-go/pkg/kv"
)

// getJSON 读取并解码 key。key 不存在时返回 false。
func getJSON(ctx context.Context, store kv.Store, key string, out interface{}) (bool, error) {
	data, ok, err := store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("%w: get %s: %v", model.ErrPersistence, key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("%w: decode %s: %v", model.ErrPersistence, key, err)
	}
	return true, nil
}

func setJSON(ctx context.Context, store kv.Store, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", model.ErrPersistence, key, err)
	}
	if err := store.Set(ctx, key, data, ttl); err != nil {
		return fmt.Errorf("%w: set %s: %v", model.ErrPersistence, key, err)
	}
	return nil
}

func removeKey(ctx context.Context, store kv.Store, key string) (bool, error) {
	ok, err := store.Remove(ctx, key)
	if err != nil {
		return false, fmt.Errorf("%w: remove %s: %v", model.ErrPersistence, key, err)
	}
	return ok, nil
}
