package jivecache

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ============================================================
// 批量操作配置
// ============================================================

var (
	// defaultConcurrency 限制 LoadAll 同时执行的加载数
	defaultConcurrency = 100
)

// ============================================================
// 批量操作实现
// ============================================================

// PutAll 将 items 中的每一对放入缓存
func (c *Cache) PutAll(items map[interface{}]interface{}) {
	for key, value := range items {
		c.Put(key, value)
	}
}

// LoadAll 批量获取 keys，未命中的 key 并发调用 load 加载
//
// 返回成功的值和失败的错误，两者按 key 索引。
// ctx 取消后尚未开始的加载直接记为 ctx.Err()。
func (c *Cache) LoadAll(ctx context.Context, keys []interface{}, load LoaderFunc) (map[interface{}]interface{}, map[interface{}]error) {
	values := make(map[interface{}]interface{}, len(keys))
	errs := make(map[interface{}]error)

	if len(keys) == 0 {
		return values, errs
	}

	// 使用互斥锁保护结果map
	var mu sync.Mutex
	record := func(key, value interface{}, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			errs[key] = err
			return
		}
		values[key] = value
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(defaultConcurrency)

	for _, key := range keys {
		key := key

		// 命中的 key 不占用并发名额
		if v, ok := c.Get(key); ok {
			record(key, v, nil)
			continue
		}
		if load == nil {
			record(key, nil, ErrNilLoader)
			continue
		}

		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				record(key, nil, err)
				return nil // 不返回错误，继续处理其他
			}
			v, err := c.load(egCtx, key, load)
			record(key, v, err)
			return nil
		})
	}

	// 各个 goroutine 都不返回错误
	_ = eg.Wait()
	return values, errs
}
