package jivecache

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// sized 是报告固定大小的缓存值
type sized int

func (s sized) CachedSize() int { return int(s) }

// fakeClock 是可以手动推进的时钟
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(t *testing.T, maxSize int64, maxLifetime time.Duration, clock *fakeClock) (*Cache, *test.Hook) {
	t.Helper()

	logger, hook := test.NewNullLogger()
	o := &Options{Logger: logrus.NewEntry(logger)}
	if clock != nil {
		o.Now = clock.Now
	}
	c, err := NewCacheOpts("test", maxSize, maxLifetime, o)
	require.NoError(t, err)
	return c, hook
}

// checkInvariants 校验 map 与两个链表之间的一致性
func checkInvariants(t *testing.T, c *Cache) {
	t.Helper()

	c.mu.Lock()
	defer c.mu.Unlock()

	require.Equal(t, len(c.objects), c.lastAccessed.Len())
	require.Equal(t, len(c.objects), c.ages.Len())

	var total int64
	for key, obj := range c.objects {
		require.NotNil(t, obj.lastAccessedNode)
		require.NotNil(t, obj.ageNode)
		require.Equal(t, key, obj.lastAccessedNode.Value)
		require.Equal(t, key, obj.ageNode.Value)
		total += int64(obj.size)
	}
	require.Equal(t, total, c.size)

	// ages 链表从表头到表尾时间戳不增
	for n := c.ages.First(); n != nil && n.Next() != nil; n = n.Next() {
		require.False(t, n.Timestamp.Before(n.Next().Timestamp))
	}
}

func TestNewCacheValidation(t *testing.T) {
	_, err := NewCache("bad", 0, Unlimited)
	require.ErrorIs(t, err, ErrInvalidMaxSize)

	_, err = NewCache("bad", -2, Unlimited)
	require.ErrorIs(t, err, ErrInvalidMaxSize)

	_, err = NewCache("bad", Unlimited, 0)
	require.ErrorIs(t, err, ErrInvalidMaxLifetime)

	_, err = NewCacheOpts("bad", 1000, Unlimited, &Options{CullTrigger: 0.5, CullTarget: 0.8})
	require.ErrorIs(t, err, ErrInvalidOptions)

	_, err = NewCacheOpts("bad", 1000, Unlimited, &Options{RejectRatio: 1.5})
	require.ErrorIs(t, err, ErrInvalidOptions)

	c, err := NewCache("ok", Unlimited, Unlimited)
	require.NoError(t, err)
	require.Equal(t, "ok", c.Name())
	require.Equal(t, int64(Unlimited), c.MaxCacheSize())
	require.Equal(t, time.Duration(Unlimited), c.MaxLifetime())
}

func TestPutGetRoundTrip(t *testing.T) {
	c, _ := newTestCache(t, 1000, Unlimited, nil)

	got := c.Put("k", "v")
	require.Equal(t, "v", got)

	v, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, "v", v)
	require.Equal(t, int64(sizeOfString+1), c.CacheSize())
	checkInvariants(t, c)
}

func TestPutReplacesExisting(t *testing.T) {
	c, _ := newTestCache(t, 1000, Unlimited, nil)

	c.Put("k", sized(100))
	c.Put("k", sized(300))

	require.Equal(t, 1, c.Len())
	require.Equal(t, int64(300), c.CacheSize())
	v, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, sized(300), v)
	checkInvariants(t, c)
}

func TestLRUOrdering(t *testing.T) {
	c, _ := newTestCache(t, Unlimited, Unlimited, nil)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)
	require.Equal(t, []interface{}{"c", "b", "a"}, c.Keys())

	_, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, []interface{}{"a", "c", "b"}, c.Keys())

	c.Put("b", 20)
	require.Equal(t, []interface{}{"b", "a", "c"}, c.Keys())
	require.Equal(t, []interface{}{20, 1, 3}, c.Values())

	// ContainsKey 不改变访问顺序
	require.True(t, c.ContainsKey("c"))
	require.Equal(t, []interface{}{"b", "a", "c"}, c.Keys())
	checkInvariants(t, c)
}

func TestCullEvictsLeastRecentlyUsed(t *testing.T) {
	c, hook := newTestCache(t, 1000, Unlimited, nil)

	for i := 1; i <= 5; i++ {
		c.Put(fmt.Sprintf("k%d", i), sized(250))
		require.LessOrEqual(t, c.CacheSize(), int64(1000))
	}

	require.False(t, c.ContainsKey("k1"))
	require.LessOrEqual(t, c.CacheSize(), int64(900))
	for _, k := range []string{"k3", "k4", "k5"} {
		require.True(t, c.ContainsKey(k), k)
	}
	require.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	checkInvariants(t, c)
}

func TestGetProtectsFromEviction(t *testing.T) {
	c, _ := newTestCache(t, 1000, Unlimited, nil)

	c.Put("a", sized(250))
	c.Put("b", sized(250))
	c.Put("c", sized(250))
	_, ok := c.Get("a")
	require.True(t, ok)

	// 达到 1000 字节，淘汰访问链表表尾的 b
	c.Put("d", sized(250))

	require.False(t, c.ContainsKey("b"))
	require.True(t, c.ContainsKey("a"))
	require.Equal(t, []interface{}{"d", "a", "c"}, c.Keys())
	require.Equal(t, int64(750), c.CacheSize())
}

func TestCullStopsAtTarget(t *testing.T) {
	c, _ := newTestCache(t, 1000, Unlimited, nil)

	for i := 0; i < 9; i++ {
		c.Put(i, sized(100))
	}
	require.Equal(t, int64(900), c.CacheSize())

	// 980 字节触发淘汰，从表尾淘汰到不超过 900
	c.Put("x", sized(80))
	require.Equal(t, int64(880), c.CacheSize())
	require.False(t, c.ContainsKey(0))
	require.True(t, c.ContainsKey(1))
	require.True(t, c.ContainsKey("x"))
}

func TestSizeBoundHoldsForRandomPuts(t *testing.T) {
	c, _ := newTestCache(t, 1000, Unlimited, nil)
	rnd := rand.New(rand.NewSource(42))

	for i := 0; i < 2000; i++ {
		key := rnd.Intn(50)
		switch rnd.Intn(3) {
		case 0, 1:
			c.Put(key, sized(1+rnd.Intn(400)))
			require.LessOrEqual(t, c.CacheSize(), int64(1000))
		case 2:
			c.Get(key)
		}
	}
	checkInvariants(t, c)
}

func TestOversizedValueRejected(t *testing.T) {
	c, hook := newTestCache(t, 1000, Unlimited, nil)

	got := c.Put("big", sized(901))
	require.Equal(t, sized(901), got)
	require.False(t, c.ContainsKey("big"))
	require.Equal(t, int64(0), c.CacheSize())

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	require.Equal(t, logrus.WarnLevel, entry.Level)
	require.Equal(t, "big", entry.Data["key"])

	// 恰好 90% 可以放入
	c.Put("edge", sized(900))
	require.True(t, c.ContainsKey("edge"))
}

func TestOversizedPutRemovesPreviousValue(t *testing.T) {
	c, _ := newTestCache(t, 1000, Unlimited, nil)

	c.Put("k", sized(10))
	c.Put("k", sized(950))

	_, ok := c.Get("k")
	require.False(t, ok)
	require.Equal(t, int64(0), c.CacheSize())
	checkInvariants(t, c)
}

func TestUnlimitedSizeNeverCulls(t *testing.T) {
	c, _ := newTestCache(t, Unlimited, Unlimited, nil)

	for i := 0; i < 100; i++ {
		c.Put(i, sized(1<<20))
	}
	require.Equal(t, 100, c.Len())
	require.Equal(t, int64(100<<20), c.CacheSize())
}

func TestExpirationWithClock(t *testing.T) {
	clock := newFakeClock()
	c, _ := newTestCache(t, Unlimited, 100*time.Millisecond, clock)

	c.Put("k", "v")
	clock.Advance(150 * time.Millisecond)

	_, ok := c.Get("k")
	require.False(t, ok)
	require.Equal(t, int64(1), c.CacheMisses())
	require.False(t, c.ContainsKey("k"))
	require.Empty(t, c.Keys())
	require.Equal(t, int64(0), c.CacheSize())
	checkInvariants(t, c)
}

func TestExpirationOnlyRemovesExpiredPrefix(t *testing.T) {
	clock := newFakeClock()
	c, _ := newTestCache(t, Unlimited, 100*time.Millisecond, clock)

	c.Put("a", 1)
	clock.Advance(60 * time.Millisecond)
	c.Put("b", 2)
	clock.Advance(60 * time.Millisecond)

	// a 已存活 120ms，b 只有 60ms
	require.Equal(t, []interface{}{"b"}, c.Keys())
	require.Equal(t, 1, c.Len())

	// 恰好到达 maxLifetime 的对象还没有过期
	clock.Advance(40 * time.Millisecond)
	require.True(t, c.ContainsKey("b"))
	clock.Advance(time.Millisecond)
	require.False(t, c.ContainsKey("b"))
	require.True(t, c.IsEmpty())
}

func TestGetDoesNotRefreshAge(t *testing.T) {
	clock := newFakeClock()
	c, _ := newTestCache(t, Unlimited, 100*time.Millisecond, clock)

	c.Put("k", "v")
	clock.Advance(80 * time.Millisecond)
	_, ok := c.Get("k")
	require.True(t, ok)

	clock.Advance(80 * time.Millisecond)
	_, ok = c.Get("k")
	require.False(t, ok)
}

func TestPutRefreshesAge(t *testing.T) {
	clock := newFakeClock()
	c, _ := newTestCache(t, Unlimited, 100*time.Millisecond, clock)

	c.Put("k", "v1")
	clock.Advance(80 * time.Millisecond)
	c.Put("k", "v2")
	clock.Advance(80 * time.Millisecond)

	v, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, "v2", v)
}

func TestExpirationWithSleep(t *testing.T) {
	c, _ := newTestCache(t, Unlimited, 100*time.Millisecond, nil)

	c.Put("k", "v")
	misses := c.CacheMisses()

	time.Sleep(150 * time.Millisecond)

	_, ok := c.Get("k")
	require.False(t, ok)
	require.Equal(t, misses+1, c.CacheMisses())
	require.False(t, c.ContainsKey("k"))
}

func TestCullReclaimsExpiredFirst(t *testing.T) {
	clock := newFakeClock()
	c, _ := newTestCache(t, 1000, 100*time.Millisecond, clock)

	c.Put("old", sized(400))
	clock.Advance(150 * time.Millisecond)
	c.Put("a", sized(300))
	// ReadCount 不触发过期，old 仍在缓存中
	_, ok := c.ReadCount("old")
	require.True(t, ok)

	// 总计 1000 字节触发淘汰：先清理过期的 old，之后 600 字节无需再淘汰
	c.Put("b", sized(300))
	require.False(t, c.ContainsKey("old"))
	require.True(t, c.ContainsKey("a"))
	require.True(t, c.ContainsKey("b"))
	require.Equal(t, int64(600), c.CacheSize())
}

func TestHitMissAccounting(t *testing.T) {
	c, _ := newTestCache(t, Unlimited, Unlimited, nil)

	c.Put("a", 1)
	gets := 0
	for i := 0; i < 5; i++ {
		c.Get("a")
		gets++
	}
	for i := 0; i < 3; i++ {
		c.Get("missing")
		gets++
	}

	require.Equal(t, int64(5), c.CacheHits())
	require.Equal(t, int64(3), c.CacheMisses())
	require.Equal(t, int64(gets), c.CacheHits()+c.CacheMisses())

	n, ok := c.ReadCount("a")
	require.True(t, ok)
	require.Equal(t, 5, n)

	_, ok = c.ReadCount("missing")
	require.False(t, ok)

	stats := c.Stats()
	require.Equal(t, int64(5), stats.Hits)
	require.Equal(t, int64(3), stats.Misses)
	require.Equal(t, int64(1), stats.Items)
	require.InDelta(t, 62.5, stats.HitRate, 0.001)
}

func TestRemoveIdempotent(t *testing.T) {
	c, _ := newTestCache(t, Unlimited, Unlimited, nil)

	c.Put("a", "x")
	c.Put("b", "y")
	require.Equal(t, 2, c.Len())

	v, ok := c.Remove("a")
	require.True(t, ok)
	require.Equal(t, "x", v)
	require.Equal(t, 1, c.Len())

	v, ok = c.Remove("a")
	require.False(t, ok)
	require.Nil(t, v)
	require.Equal(t, 1, c.Len())
	checkInvariants(t, c)
}

func TestClearResetsState(t *testing.T) {
	c, _ := newTestCache(t, 1000, time.Hour, nil)

	c.Put("a", sized(100))
	c.Put("b", sized(100))
	c.Get("a")
	c.Get("zzz")

	c.Clear()
	require.True(t, c.IsEmpty())
	require.Equal(t, int64(0), c.CacheSize())
	require.Equal(t, int64(0), c.CacheHits())
	require.Equal(t, int64(0), c.CacheMisses())
	require.Equal(t, int64(1000), c.MaxCacheSize())
	require.Equal(t, time.Hour, c.MaxLifetime())
	checkInvariants(t, c)

	c.Put("c", sized(100))
	v, ok := c.Get("c")
	require.True(t, ok)
	require.Equal(t, sized(100), v)
}

func TestSetMaxCacheSizeCullsImmediately(t *testing.T) {
	c, _ := newTestCache(t, Unlimited, Unlimited, nil)

	for i := 0; i < 10; i++ {
		c.Put(i, sized(100))
	}
	require.Equal(t, int64(1000), c.CacheSize())

	require.NoError(t, c.SetMaxCacheSize(500))
	require.Equal(t, int64(500), c.MaxCacheSize())
	require.LessOrEqual(t, c.CacheSize(), int64(450))
	// 最早放入且未被访问的先被淘汰
	require.False(t, c.ContainsKey(0))
	require.True(t, c.ContainsKey(9))

	require.ErrorIs(t, c.SetMaxCacheSize(0), ErrInvalidMaxSize)
	require.ErrorIs(t, c.SetMaxCacheSize(-5), ErrInvalidMaxSize)
	require.Equal(t, int64(500), c.MaxCacheSize())

	require.NoError(t, c.SetMaxCacheSize(Unlimited))
	checkInvariants(t, c)
}

func TestSetMaxLifetime(t *testing.T) {
	clock := newFakeClock()
	c, _ := newTestCache(t, Unlimited, Unlimited, clock)

	c.Put("k", "v")
	clock.Advance(time.Minute)
	require.True(t, c.ContainsKey("k"))

	require.ErrorIs(t, c.SetMaxLifetime(0), ErrInvalidMaxLifetime)
	require.ErrorIs(t, c.SetMaxLifetime(-time.Second), ErrInvalidMaxLifetime)

	require.NoError(t, c.SetMaxLifetime(30*time.Second))
	require.Equal(t, 30*time.Second, c.MaxLifetime())
	require.Equal(t, int64(0), c.CacheSize())
	require.False(t, c.ContainsKey("k"))
}

func TestViews(t *testing.T) {
	c, _ := newTestCache(t, Unlimited, Unlimited, nil)

	c.Put("a", []string{"x", "y"})
	c.Put("b", 2)

	require.True(t, c.ContainsValue([]string{"x", "y"}))
	require.True(t, c.ContainsValue(2))
	require.False(t, c.ContainsValue(3))

	entries := c.Entries()
	require.Equal(t, map[interface{}]interface{}{"a": []string{"x", "y"}, "b": 2}, entries)

	// 快照与缓存互不影响
	delete(entries, "a")
	require.True(t, c.ContainsKey("a"))
}

func TestSizeEstimationFailure(t *testing.T) {
	c, hook := newTestCache(t, 1000, Unlimited, nil)

	c.Put("ch", make(chan int))
	require.True(t, c.ContainsKey("ch"))
	require.Equal(t, int64(1), c.CacheSize())

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	require.Equal(t, logrus.ErrorLevel, entry.Level)
}

func TestNoEncodingFallback(t *testing.T) {
	type profile struct {
		Name string
		Age  int
	}

	logger, hook := test.NewNullLogger()
	c, err := NewCacheOpts("strict", 1000, Unlimited, &Options{
		NoEncodingFallback: true,
		Logger:             logrus.NewEntry(logger),
	})
	require.NoError(t, err)

	c.Put("p", profile{Name: "tom", Age: 18})
	require.Equal(t, int64(1), c.CacheSize())
	require.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)

	// 默认策略会编码估算
	d, _ := newTestCache(t, 1000, Unlimited, nil)
	d.Put("p", profile{Name: "tom", Age: 18})
	require.Greater(t, d.CacheSize(), int64(sizeOfObject))
}

func TestCustomPolicy(t *testing.T) {
	c, err := NewCacheOpts("policy", 1000, Unlimited, &Options{
		RejectRatio: 0.5,
		CullTrigger: 0.8,
		CullTarget:  0.5,
		Logger:      logrus.NewEntry(logrus.New()),
	})
	require.NoError(t, err)

	c.Put("big", sized(600))
	require.False(t, c.ContainsKey("big"))

	for i := 0; i < 3; i++ {
		c.Put(i, sized(300))
	}
	// 900 字节触发淘汰，淘汰到不超过 500
	require.Equal(t, int64(300), c.CacheSize())
	require.True(t, c.ContainsKey(2))
}

func TestConcurrentAccess(t *testing.T) {
	c, _ := newTestCache(t, 10000, time.Hour, nil)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(int64(g)))
			for i := 0; i < 1000; i++ {
				key := rnd.Intn(100)
				switch rnd.Intn(4) {
				case 0:
					c.Put(key, sized(1+rnd.Intn(500)))
				case 1:
					c.Get(key)
				case 2:
					c.Remove(key)
				case 3:
					c.Keys()
				}
			}
		}(g)
	}
	wg.Wait()

	checkInvariants(t, c)
	require.LessOrEqual(t, c.CacheSize(), int64(10000))
}
