package jivecache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ============================================================
// Metrics - Prometheus 指标
// ============================================================

var (
	sizeDesc = prometheus.NewDesc(
		"jivecache_size_bytes",
		"Approximate size of the cache contents in bytes",
		[]string{"cache"}, nil,
	)
	maxSizeDesc = prometheus.NewDesc(
		"jivecache_max_size_bytes",
		"Configured maximum cache size in bytes, -1 if unlimited",
		[]string{"cache"}, nil,
	)
	itemsDesc = prometheus.NewDesc(
		"jivecache_items",
		"Number of entries in the cache",
		[]string{"cache"}, nil,
	)
	hitsDesc = prometheus.NewDesc(
		"jivecache_hits_total",
		"Total cache hits",
		[]string{"cache"}, nil,
	)
	missesDesc = prometheus.NewDesc(
		"jivecache_misses_total",
		"Total cache misses",
		[]string{"cache"}, nil,
	)
)

// collector 在每次采集时读取注册表中所有缓存的统计
type collector struct {
	registry *Registry
}

// NewCollector 返回导出注册表中所有缓存统计的 prometheus.Collector
func NewCollector(r *Registry) prometheus.Collector {
	return &collector{registry: r}
}

// RegisterMetrics 将注册表的 Collector 注册到 reg
func RegisterMetrics(reg prometheus.Registerer, r *Registry) error {
	return reg.Register(NewCollector(r))
}

// Describe 实现 prometheus.Collector
func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- sizeDesc
	ch <- maxSizeDesc
	ch <- itemsDesc
	ch <- hitsDesc
	ch <- missesDesc
}

// Collect 实现 prometheus.Collector
func (c *collector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.registry.Stats() {
		ch <- prometheus.MustNewConstMetric(sizeDesc, prometheus.GaugeValue, float64(s.Size), s.Name)
		ch <- prometheus.MustNewConstMetric(maxSizeDesc, prometheus.GaugeValue, float64(s.MaxSize), s.Name)
		ch <- prometheus.MustNewConstMetric(itemsDesc, prometheus.GaugeValue, float64(s.Items), s.Name)
		ch <- prometheus.MustNewConstMetric(hitsDesc, prometheus.CounterValue, float64(s.Hits), s.Name)
		ch <- prometheus.MustNewConstMetric(missesDesc, prometheus.CounterValue, float64(s.Misses), s.Name)
	}
}
