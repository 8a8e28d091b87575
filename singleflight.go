package jivecache

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ============================================================
// singleflight - 防止缓存击穿机制
// ============================================================

var (
	// ErrNilLoader 表示 GetOrLoad 没有传入加载函数
	ErrNilLoader = errors.New("jivecache: nil loader")
	// ErrLoaderPanic 表示加载过程中发生了 panic
	ErrLoaderPanic = errors.New("jivecache: loader panicked")
)

// LoaderFunc 在缓存未命中时加载 key 对应的值
type LoaderFunc func(ctx context.Context, key interface{}) (interface{}, error)

// singleflightGroup 确保对于相同的key，同时只有一个函数在执行
// 零值可以直接使用
type singleflightGroup struct {
	mu sync.Mutex
	m  map[interface{}]*call
}

// call 表示一个正在进行或已完成的函数调用
type call struct {
	done chan struct{}
	val  interface{}
	err  error

	// dups 是加入等待的调用者数量
	dups int
}

// Do 执行并返回给定函数的结果，确保对于给定的key同时只有一个执行
//
// fn 在独立的 goroutine 中运行，每个调用者只按自己的 ctx 放弃等待；
// 某个调用者取消不会影响其他调用者，也不会中断 fn。
// fn 发生 panic 时所有调用者都得到 ErrLoaderPanic。
func (g *singleflightGroup) Do(ctx context.Context, key interface{}, fn func() (interface{}, error)) (interface{}, error) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[interface{}]*call)
	}

	c, ok := g.m[key]
	if ok {
		c.dups++
	} else {
		c = &call{done: make(chan struct{})}
		g.m[key] = c
		go g.doCall(c, key, fn)
	}
	g.mu.Unlock()

	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// doCall 执行 fn，无论正常返回还是 panic 都会移除 key 并唤醒等待者
func (g *singleflightGroup) doCall(c *call, key interface{}, fn func() (interface{}, error)) {
	defer func() {
		if r := recover(); r != nil {
			c.val = nil
			c.err = fmt.Errorf("%w: %v", ErrLoaderPanic, r)
		}

		g.mu.Lock()
		delete(g.m, key)
		g.mu.Unlock()

		close(c.done)
	}()

	c.val, c.err = fn()
}

// GetOrLoad 返回 key 对应的值，未命中时调用 load 加载并放入缓存
//
// 并发的相同 key 只会调用一次 load。加载失败的结果不会被缓存。
// load 收到的 ctx 保留调用方的值，但不随任何一个调用方取消。
func (c *Cache) GetOrLoad(ctx context.Context, key interface{}, load LoaderFunc) (interface{}, error) {
	if load == nil {
		return nil, ErrNilLoader
	}
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	return c.load(ctx, key, load)
}

// load 通过 singleflight 加载 key 并放入缓存
func (c *Cache) load(ctx context.Context, key interface{}, load LoaderFunc) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	loadCtx := context.WithoutCancel(ctx)
	v, err := c.loader.Do(ctx, key, func() (interface{}, error) {
		v, err := load(loadCtx, key)
		if err != nil {
			return nil, err
		}
		return c.Put(key, v), nil
	})
	if errors.Is(err, ErrLoaderPanic) {
		c.log.WithError(err).WithField("key", key).Error("cache loader panicked")
	}
	return v, err
}
