package jivecache

import (
	"fmt"
	"time"
)

// ============================================================
// CacheStats - 缓存统计信息
// ============================================================

// CacheStats 是某个缓存在某一时刻的统计快照
type CacheStats struct {
	Name        string        `json:"name"`
	MaxSize     int64         `json:"maxSize"`     // 字节数上限，-1 表示不限制
	MaxLifetime time.Duration `json:"maxLifetime"` // 最长存活时间，-1 表示永不过期
	Size        int64         `json:"size"`        // 当前近似字节数
	Items       int64         `json:"items"`       // 当前条目数
	Hits        int64         `json:"hits"`        // 命中数
	Misses      int64         `json:"misses"`      // 未命中数
	HitRate     float64       `json:"hitRate"`     // 命中率（百分比）
}

// String 返回便于日志输出的单行描述
func (s CacheStats) String() string {
	return fmt.Sprintf("%s: %d/%d bytes, %d items, %d hits, %d misses (%.1f%%)",
		s.Name, s.Size, s.MaxSize, s.Items, s.Hits, s.Misses, s.HitRate)
}
