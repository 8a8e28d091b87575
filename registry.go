package jivecache

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ============================================================
// Registry - 命名缓存注册表
// ============================================================

// Registry 按名字创建和查找缓存
// 同一个名字只会创建一个缓存实例，不同实例之间互不共享锁
type Registry struct {
	mu     sync.RWMutex
	caches map[string]*Cache

	source PropertySource
	opts   *Options
	log    *logrus.Entry
}

// NewRegistry 创建注册表
// source 为 nil 时只使用内置默认配置；o 应用于所有新建的缓存
func NewRegistry(source PropertySource, o *Options) *Registry {
	log := logrus.NewEntry(logrus.StandardLogger())
	if o != nil && o.Logger != nil {
		log = o.Logger
	}
	return &Registry{
		caches: make(map[string]*Cache),
		source: source,
		opts:   o,
		log:    log,
	}
}

// Cache 返回名为 name 的缓存，不存在时按配置创建
func (r *Registry) Cache(ctx context.Context, name string) (*Cache, error) {
	if c, ok := r.Lookup(name); ok {
		return c, nil
	}
	return r.create(name, r.MaxCacheSize(ctx, name), r.MaxLifetime(ctx, name))
}

// GetOrCreate 返回名为 name 的缓存，不存在时创建
// 配置来源中显式设置的属性优先于参数
func (r *Registry) GetOrCreate(ctx context.Context, name string, maxSize int64, maxLifetime time.Duration) (*Cache, error) {
	if c, ok := r.Lookup(name); ok {
		return c, nil
	}
	if v, ok := r.lookupProperty(ctx, name, sizeSuffix); ok {
		maxSize = sizeFromProperty(v)
	}
	if v, ok := r.lookupProperty(ctx, name, lifetimeSuffix); ok {
		maxLifetime = lifetimeFromProperty(v)
	}
	return r.create(name, maxSize, maxLifetime)
}

func (r *Registry) create(name string, maxSize int64, maxLifetime time.Duration) (*Cache, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// 可能已被并发创建
	if c, ok := r.caches[name]; ok {
		return c, nil
	}

	c, err := NewCacheOpts(name, maxSize, maxLifetime, r.opts)
	if err != nil {
		return nil, fmt.Errorf("create cache %q: %w", name, err)
	}
	r.caches[name] = c

	r.log.WithFields(logrus.Fields{
		"cache":       name,
		"maxSize":     maxSize,
		"maxLifetime": maxLifetime,
	}).Debug("created cache")
	return c, nil
}

// Lookup 返回已创建的缓存
func (r *Registry) Lookup(name string) (*Cache, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.caches[name]
	return c, ok
}

// Names 返回所有缓存名，按字母排序
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.caches))
	for name := range r.caches {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Caches 返回所有缓存，按名字排序
func (r *Registry) Caches() []*Cache {
	names := r.Names()
	caches := make([]*Cache, 0, len(names))
	for _, name := range names {
		if c, ok := r.Lookup(name); ok {
			caches = append(caches, c)
		}
	}
	return caches
}

// Stats 返回所有缓存的统计快照，按名字排序
func (r *Registry) Stats() []CacheStats {
	caches := r.Caches()
	stats := make([]CacheStats, 0, len(caches))
	for _, c := range caches {
		stats = append(stats, c.Stats())
	}
	return stats
}

// ClearAll 清空所有缓存
func (r *Registry) ClearAll() {
	for _, c := range r.Caches() {
		c.Clear()
	}
}

// ============================================================
// 配置解析
// ============================================================

// MaxCacheSize 返回名为 name 的缓存应使用的字节数上限
func (r *Registry) MaxCacheSize(ctx context.Context, name string) int64 {
	return sizeFromProperty(r.cacheProperty(ctx, name, sizeSuffix, DefaultMaxCacheSize))
}

// MaxLifetime 返回名为 name 的缓存应使用的最长存活时间
func (r *Registry) MaxLifetime(ctx context.Context, name string) time.Duration {
	return lifetimeFromProperty(r.cacheProperty(ctx, name, lifetimeSuffix, int64(DefaultMaxLifetime/time.Millisecond)))
}

// cacheProperty 依次查找：配置来源、内置默认表、defaultValue
func (r *Registry) cacheProperty(ctx context.Context, name, suffix string, defaultValue int64) int64 {
	if v, ok := r.lookupProperty(ctx, name, suffix); ok {
		return v
	}
	if v, ok := defaultProps[propertyName(name, suffix)]; ok {
		return v
	}
	if short, ok := shortNames[name]; ok {
		if v, ok := defaultProps[propertyName(short, suffix)]; ok {
			return v
		}
	}
	return defaultValue
}

// lookupProperty 在配置来源中查找属性
// 先用完整缓存名，找不到时再用短名；无法解析的值记录警告并视为未配置
func (r *Registry) lookupProperty(ctx context.Context, name, suffix string) (int64, bool) {
	if r.source == nil {
		return 0, false
	}

	tokens := []string{name}
	if short, ok := shortNames[name]; ok {
		tokens = append(tokens, short)
	}

	for _, token := range tokens {
		prop := propertyName(token, suffix)
		raw, ok, err := r.source.Property(ctx, prop)
		if err != nil {
			r.log.WithError(err).WithField("property", prop).Warn("unable to read cache property")
			continue
		}
		if !ok {
			continue
		}
		v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			r.log.WithField("property", prop).Warn("unable to parse cache property, using default value")
			return 0, false
		}
		return v, true
	}
	return 0, false
}

// ============================================================
// 配置变更
// ============================================================

// ApplyProperty 在属性变更后重新计算对应缓存的配置
//
// property 形如 "cache.userCache.size" 或 "cache.User.maxLifetime"。
// 不属于任何已创建缓存的属性会被忽略，返回 false。
func (r *Registry) ApplyProperty(ctx context.Context, property string) bool {
	c := r.cacheByProperty(property)
	if c == nil {
		return false
	}

	switch {
	case strings.HasSuffix(property, sizeSuffix):
		size := r.MaxCacheSize(ctx, c.Name())
		if err := c.SetMaxCacheSize(size); err != nil {
			r.log.WithError(err).WithField("property", property).Warn("unable to apply cache property")
			return false
		}
	case strings.HasSuffix(property, lifetimeSuffix):
		lifetime := r.MaxLifetime(ctx, c.Name())
		if err := c.SetMaxLifetime(lifetime); err != nil {
			r.log.WithError(err).WithField("property", property).Warn("unable to apply cache property")
			return false
		}
	default:
		return false
	}

	r.log.WithFields(logrus.Fields{
		"cache":    c.Name(),
		"property": property,
	}).Info("applied cache property")
	return true
}

// cacheByProperty 找到属性名所指的缓存
func (r *Registry) cacheByProperty(property string) *Cache {
	if !strings.HasPrefix(property, propertyPrefix) {
		return nil
	}
	token := strings.TrimPrefix(property, propertyPrefix)
	i := strings.LastIndexByte(token, '.')
	if i <= 0 {
		return nil
	}
	token = token[:i]

	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, c := range r.caches {
		if strings.ReplaceAll(name, " ", "") == token {
			return c
		}
		if short, ok := shortNames[name]; ok && short == token {
			return c
		}
	}
	return nil
}
