// Package jivecache 实现了按字节大小和存活时间限制的进程内对象缓存
// 核心：两条双向链表（访问顺序、加入顺序）+ map，LRU 淘汰与 TTL 过期都是 O(1) 摊还
package jivecache

import (
	"errors"
	"reflect"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/SuperJinggg/jivecache/linkedlist"
)

// Unlimited 表示不限制缓存大小或对象存活时间
const Unlimited = -1

var (
	ErrInvalidMaxSize     = errors.New("jivecache: max cache size must be positive or Unlimited")
	ErrInvalidMaxLifetime = errors.New("jivecache: max lifetime must be positive or Unlimited")
	ErrInvalidOptions     = errors.New("jivecache: invalid cache options")
)

// 默认的淘汰策略参数
const (
	defaultRejectRatio = 0.90
	defaultCullTrigger = 0.97
	defaultCullTarget  = 0.90
)

// ============================================================
// Options - 缓存配置选项
// ============================================================
type Options struct {
	// RejectRatio 单个对象超过 maxSize*RejectRatio 时不会被缓存
	// 如果为零，默认为 0.90
	RejectRatio float64

	// CullTrigger 缓存大小达到 maxSize*CullTrigger 时开始淘汰
	// 如果为零，默认为 0.97
	CullTrigger float64

	// CullTarget 淘汰会一直进行到缓存大小不超过 maxSize*CullTarget
	// 如果为零，默认为 0.90
	CullTarget float64

	// Sizer 可选地替换默认的大小估算策略
	Sizer SizerFunc

	// NoEncodingFallback 为 true 时，无法识别的类型不再编码估算，
	// 而是按估算失败处理（记录错误，大小记为 1）
	NoEncodingFallback bool

	// Logger 可选地指定日志输出，默认使用 logrus 标准 logger
	Logger *logrus.Entry

	// Now 可选地指定时钟，默认为 time.Now
	Now func() time.Time
}

// withDefaults 填充默认值并校验参数
func (o *Options) withDefaults() (Options, error) {
	var opts Options
	if o != nil {
		opts = *o
	}
	if opts.RejectRatio == 0 {
		opts.RejectRatio = defaultRejectRatio
	}
	if opts.CullTrigger == 0 {
		opts.CullTrigger = defaultCullTrigger
	}
	if opts.CullTarget == 0 {
		opts.CullTarget = defaultCullTarget
	}
	if !validRatio(opts.RejectRatio) || !validRatio(opts.CullTrigger) || !validRatio(opts.CullTarget) ||
		opts.CullTarget > opts.CullTrigger {
		return Options{}, ErrInvalidOptions
	}
	if opts.Sizer == nil {
		if opts.NoEncodingFallback {
			opts.Sizer = SizeOfKnown
		} else {
			opts.Sizer = SizeOf
		}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return opts, nil
}

func validRatio(r float64) bool {
	return r > 0 && r <= 1
}

func validMaxSize(n int64) bool {
	return n == Unlimited || n > 0
}

func validMaxLifetime(d time.Duration) bool {
	return d == Unlimited || d > 0
}

// ============================================================
// Cache - 按字节大小和存活时间限制的缓存
// ============================================================
// Cache 是一个并发安全的缓存，同时维护三个数据结构：
// - map：key 到 cacheObject 的 O(1) 查找
// - lastAccessed 链表：按访问顺序排列，表头最近使用，表尾最久未使用
// - ages 链表：按加入顺序排列，表头最新加入，表尾最早加入
//
// 三者在同一把锁下一起更新：对象在 map 中，当且仅当它在两个链表中各有一个节点。
//
// 过期和淘汰都在调用方的 goroutine 中同步完成，没有后台清理协程。
type Cache struct {
	mu sync.Mutex

	name        string
	maxSize     int64
	maxLifetime time.Duration

	size         int64
	hits, misses int64

	objects      map[interface{}]*cacheObject
	lastAccessed *linkedlist.List
	ages         *linkedlist.List

	opts   Options
	log    *logrus.Entry
	loader singleflightGroup
}

// cacheObject 包装缓存中的每个值
//
// 大小只在加入时计算一次，假定对象加入缓存后基本只读。
// 两个节点引用只属于这个对象，借此 O(1) 地从链表中摘除，不需要扫描。
type cacheObject struct {
	value            interface{}
	size             int
	lastAccessedNode *linkedlist.Node
	ageNode          *linkedlist.Node
	readCount        int
}

// NewCache 创建一个缓存
// maxSize 是字节数上限，maxLifetime 是对象最长存活时间，二者都可以是 Unlimited
func NewCache(name string, maxSize int64, maxLifetime time.Duration) (*Cache, error) {
	return NewCacheOpts(name, maxSize, maxLifetime, nil)
}

// NewCacheOpts 使用给定选项创建缓存
func NewCacheOpts(name string, maxSize int64, maxLifetime time.Duration, o *Options) (*Cache, error) {
	if !validMaxSize(maxSize) {
		return nil, ErrInvalidMaxSize
	}
	if !validMaxLifetime(maxLifetime) {
		return nil, ErrInvalidMaxLifetime
	}
	opts, err := o.withDefaults()
	if err != nil {
		return nil, err
	}

	return &Cache{
		name:         name,
		maxSize:      maxSize,
		maxLifetime:  maxLifetime,
		objects:      make(map[interface{}]*cacheObject, 103),
		lastAccessed: linkedlist.New(),
		ages:         linkedlist.New(),
		opts:         opts,
		log:          opts.Logger.WithField("cache", name),
	}, nil
}

// ============================================================
// 读写操作
// ============================================================

// Put 将 value 放入缓存并返回 value 本身
//
// key 必须是可比较的类型。已存在的同名对象会先被移除。
// 如果对象本身就接近整个缓存的容量，它不会被缓存，只记录一条警告。
func (c *Cache) Put(key, value interface{}) interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeLocked(key)

	size := c.sizeOf(key, value)
	if c.maxSize != Unlimited && float64(size) > float64(c.maxSize)*c.opts.RejectRatio {
		c.log.WithFields(logrus.Fields{
			"key":  key,
			"size": size,
		}).Warn("object is too large to fit in cache")
		return value
	}

	c.size += int64(size)
	obj := &cacheObject{value: value, size: size}
	c.objects[key] = obj

	obj.lastAccessedNode = c.lastAccessed.AddFirst(key)
	obj.ageNode = c.ages.AddFirst(key)
	obj.ageNode.Timestamp = c.opts.Now()

	c.cullCacheLocked()
	return value
}

// Get 返回 key 对应的值
// 命中时对象被移到访问链表的表头。已过期的对象视为未命中。
func (c *Cache) Get(key interface{}) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deleteExpiredLocked()

	obj, ok := c.objects[key]
	if !ok {
		c.misses++
		return nil, false
	}

	c.hits++
	obj.readCount++
	obj.lastAccessedNode.Remove()
	c.lastAccessed.AddFirstNode(obj.lastAccessedNode)
	return obj.value, true
}

// Remove 移除 key 并返回被移除的值
func (c *Cache) Remove(key interface{}) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	obj := c.removeLocked(key)
	if obj == nil {
		return nil, false
	}
	return obj.value, true
}

// Clear 清空缓存并重置统计，配置保持不变
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.objects {
		c.removeLocked(key)
	}
	c.objects = make(map[interface{}]*cacheObject, 103)
	c.lastAccessed.Clear()
	c.ages.Clear()
	c.size = 0
	c.hits = 0
	c.misses = 0
}

// Len 返回未过期的对象数
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deleteExpiredLocked()
	return len(c.objects)
}

// IsEmpty 判断缓存中是否没有未过期的对象
func (c *Cache) IsEmpty() bool {
	return c.Len() == 0
}

// ContainsKey 判断 key 是否在缓存中，不影响访问顺序和命中统计
func (c *Cache) ContainsKey(key interface{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deleteExpiredLocked()
	_, ok := c.objects[key]
	return ok
}

// ContainsValue 判断缓存中是否有与 value 深度相等的值
func (c *Cache) ContainsValue(value interface{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deleteExpiredLocked()
	for _, obj := range c.objects {
		if reflect.DeepEqual(obj.value, value) {
			return true
		}
	}
	return false
}

// Keys 按最近使用到最久未使用的顺序返回所有 key 的副本
func (c *Cache) Keys() []interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deleteExpiredLocked()
	keys := make([]interface{}, 0, len(c.objects))
	for n := c.lastAccessed.First(); n != nil; n = n.Next() {
		keys = append(keys, n.Value)
	}
	return keys
}

// Values 按最近使用到最久未使用的顺序返回所有值的副本
func (c *Cache) Values() []interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deleteExpiredLocked()
	values := make([]interface{}, 0, len(c.objects))
	for n := c.lastAccessed.First(); n != nil; n = n.Next() {
		values = append(values, c.objects[n.Value].value)
	}
	return values
}

// Entries 返回缓存内容的只读快照
func (c *Cache) Entries() map[interface{}]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deleteExpiredLocked()
	entries := make(map[interface{}]interface{}, len(c.objects))
	for key, obj := range c.objects {
		entries[key] = obj.value
	}
	return entries
}

// ReadCount 返回 key 被 Get 命中的次数
func (c *Cache) ReadCount(key interface{}) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	obj, ok := c.objects[key]
	if !ok {
		return 0, false
	}
	return obj.readCount, true
}

// ============================================================
// 配置和统计
// ============================================================

// Name 返回缓存名，仅用于展示
func (c *Cache) Name() string {
	return c.name
}

// MaxCacheSize 返回字节数上限，Unlimited 表示不限制
func (c *Cache) MaxCacheSize() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxSize
}

// SetMaxCacheSize 修改字节数上限
// 新上限小于当前大小时立即淘汰，不等到下一次 Put
func (c *Cache) SetMaxCacheSize(maxSize int64) error {
	if !validMaxSize(maxSize) {
		return ErrInvalidMaxSize
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.maxSize = maxSize
	c.cullCacheLocked()
	return nil
}

// MaxLifetime 返回对象最长存活时间，Unlimited 表示永不过期
func (c *Cache) MaxLifetime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxLifetime
}

// SetMaxLifetime 修改对象最长存活时间，已超时的对象立即过期
func (c *Cache) SetMaxLifetime(maxLifetime time.Duration) error {
	if !validMaxLifetime(maxLifetime) {
		return ErrInvalidMaxLifetime
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.maxLifetime = maxLifetime
	c.deleteExpiredLocked()
	return nil
}

// CacheSize 返回缓存内容的近似字节数
// 这只是估算值，实际内存占用可能明显更高
func (c *Cache) CacheSize() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// CacheHits 返回命中次数
func (c *Cache) CacheHits() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits
}

// CacheMisses 返回未命中次数
func (c *Cache) CacheMisses() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.misses
}

// Stats 返回缓存统计快照
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Name:        c.name,
		MaxSize:     c.maxSize,
		MaxLifetime: c.maxLifetime,
		Size:        c.size,
		Items:       int64(len(c.objects)),
		Hits:        c.hits,
		Misses:      c.misses,
	}
	if gets := stats.Hits + stats.Misses; gets > 0 {
		stats.HitRate = float64(stats.Hits) / float64(gets) * 100
	}
	return stats
}

// ============================================================
// 内部实现（调用方必须持有 c.mu）
// ============================================================

// removeLocked 从 map 和两个链表中移除 key，返回被移除的对象
func (c *Cache) removeLocked(key interface{}) *cacheObject {
	obj, ok := c.objects[key]
	if !ok {
		return nil
	}
	delete(c.objects, key)

	obj.lastAccessedNode.Remove()
	obj.ageNode.Remove()
	obj.lastAccessedNode = nil
	obj.ageNode = nil

	c.size -= int64(obj.size)
	return obj
}

// sizeOf 估算对象大小，估算失败时记录错误并按 1 字节计
func (c *Cache) sizeOf(key, value interface{}) int {
	size, err := c.opts.Sizer(value)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Error("cannot calculate size of cached object")
		return 1
	}
	if size < 1 {
		return 1
	}
	return size
}

// deleteExpiredLocked 移除存活时间超过 maxLifetime 的对象
//
// 对象按加入顺序挂在 ages 链表的表头，所以表尾总是最早加入的。
// 从表尾向前删除，遇到第一个未过期的对象就停止。
func (c *Cache) deleteExpiredLocked() int {
	if c.maxLifetime <= 0 {
		return 0
	}

	expireTime := c.opts.Now().Add(-c.maxLifetime)
	removed := 0
	for node := c.ages.Last(); node != nil && node.Timestamp.Before(expireTime); node = c.ages.Last() {
		c.removeLocked(node.Value)
		removed++
	}

	if removed > 0 {
		c.log.WithField("expired", removed).Debug("deleted expired cache entries")
	}
	return removed
}

// cullCacheLocked 在缓存接近上限时淘汰最久未使用的对象
//
// 大小达到 CullTrigger（默认 97%）才开始，先清理过期对象，
// 再从访问链表表尾淘汰，直到不超过 CullTarget（默认 90%）。
func (c *Cache) cullCacheLocked() {
	if c.maxSize == Unlimited {
		return
	}

	maxSize := float64(c.maxSize)
	if float64(c.size) < maxSize*c.opts.CullTrigger {
		return
	}

	c.deleteExpiredLocked()

	target := maxSize * c.opts.CullTarget
	if float64(c.size) <= target {
		return
	}

	start := time.Now()
	evicted := 0
	for float64(c.size) > target {
		node := c.lastAccessed.Last()
		if node == nil {
			break
		}
		c.removeLocked(node.Value)
		evicted++
	}

	c.log.WithFields(logrus.Fields{
		"evicted": evicted,
		"size":    c.size,
		"elapsed": time.Since(start),
	}).Warn("cache was full, shrunk to target size")
}
