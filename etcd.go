package jivecache

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// ============================================================
// EtcdSource - 基于 etcd 的缓存配置
// ============================================================

// EtcdSource 从 etcd 中读取缓存属性
// 属性 "cache.userCache.size" 存放在 key "<prefix>cache.userCache.size" 下
type EtcdSource struct {
	kv      clientv3.KV
	watcher clientv3.Watcher
	prefix  string
	log     *logrus.Entry
}

// NewEtcdSource 创建 EtcdSource
// 通常传入同一个 *clientv3.Client 作为 kv 和 w；log 为 nil 时使用 logrus 标准 logger
func NewEtcdSource(kv clientv3.KV, w clientv3.Watcher, prefix string, log *logrus.Entry) *EtcdSource {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &EtcdSource{
		kv:      kv,
		watcher: w,
		prefix:  prefix,
		log:     log.WithField("source", "etcd"),
	}
}

// Property 实现 PropertySource
func (s *EtcdSource) Property(ctx context.Context, key string) (string, bool, error) {
	resp, err := s.kv.Get(ctx, s.prefix+key)
	if err != nil {
		return "", false, fmt.Errorf("etcd get %s: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return "", false, nil
	}
	return string(resp.Kvs[0].Value), true, nil
}

// Watch 监听 prefix 下的属性变更，并通知注册表重新计算对应缓存的配置
// 删除属性会使缓存回到默认配置。阻塞直到 ctx 取消或监听被关闭。
func (s *EtcdSource) Watch(ctx context.Context, r *Registry) error {
	if s.watcher == nil {
		return fmt.Errorf("etcd source has no watcher")
	}

	wch := s.watcher.Watch(ctx, s.prefix+propertyPrefix, clientv3.WithPrefix())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case resp, ok := <-wch:
			if !ok {
				return ctx.Err()
			}
			if err := resp.Err(); err != nil {
				return fmt.Errorf("etcd watch: %w", err)
			}
			for _, ev := range resp.Events {
				property := strings.TrimPrefix(string(ev.Kv.Key), s.prefix)
				s.log.WithFields(logrus.Fields{
					"property": property,
					"type":     ev.Type.String(),
				}).Debug("cache property changed")
				r.ApplyProperty(ctx, property)
			}
		}
	}
}
