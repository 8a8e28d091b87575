package jivecache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// ============================================================
// PropertySource - 缓存配置来源
// ============================================================

// PropertySource 提供按名字查找的缓存配置
//
// 属性名的格式为 "cache.<缓存名去掉空格>.size" 和 "cache.<缓存名去掉空格>.maxLifetime"，
// 值是十进制整数：size 以字节计，maxLifetime 以毫秒计，-1 表示不限制。
type PropertySource interface {
	// Property 返回属性值，属性不存在时 ok 为 false
	Property(ctx context.Context, key string) (value string, ok bool, err error)
}

// 属性名后缀
const (
	sizeSuffix     = ".size"
	lifetimeSuffix = ".maxLifetime"
	propertyPrefix = "cache."
)

// 默认值
const (
	DefaultMaxCacheSize int64 = 256 * 1024
	DefaultMaxLifetime        = 6 * time.Hour
)

// propertyName 返回缓存属性的完整名字
func propertyName(token, suffix string) string {
	return propertyPrefix + strings.ReplaceAll(token, " ", "") + suffix
}

// ============================================================
// MapSource - 内存中的配置
// ============================================================

// MapSource 是基于 map 的 PropertySource，并发安全
// 零值可以直接使用
type MapSource struct {
	mu    sync.RWMutex
	props map[string]string
}

// NewMapSource 使用初始属性创建 MapSource
func NewMapSource(props map[string]string) *MapSource {
	s := &MapSource{props: make(map[string]string, len(props))}
	for k, v := range props {
		s.props[k] = v
	}
	return s
}

// Property 实现 PropertySource
func (s *MapSource) Property(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.props[key]
	return v, ok, nil
}

// Set 设置属性
func (s *MapSource) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.props == nil {
		s.props = make(map[string]string)
	}
	s.props[key] = value
}

// Delete 删除属性
func (s *MapSource) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.props, key)
}

// ============================================================
// 内置的缓存名和默认配置
// ============================================================

const (
	minute = int64(time.Minute / time.Millisecond)
	hour   = 60 * minute
	day    = 24 * hour
)

// shortNames 将展示用的缓存名映射到属性使用的短名
var shortNames = map[string]string{
	"Favicon Hits":                 "faviconHits",
	"Favicon Misses":               "faviconMisses",
	"Group":                        "group",
	"Group Metadata Cache":         "groupMeta",
	"Javascript Cache":             "javascript",
	"Last Activity Cache":          "lastActivity",
	"Multicast Service":            "multicast",
	"Offline Message Size":         "offlinemessage",
	"Offline Presence Cache":       "offlinePresence",
	"Privacy Lists":                "listsCache",
	"Remote Users Existence":       "remoteUsersCache",
	"Roster":                       "username2roster",
	"User":                         "userCache",
	"Locked Out Accounts":          "lockOutCache",
	"VCard":                        "vcardCache",
	"File Transfer Cache":          "fileTransfer",
	"File Transfer":                "transferProxy",
	"POP3 Authentication":          "pop3",
	"LDAP Authentication":          "ldap",
	"Routing Servers Cache":        "routeServer",
	"Routing Components Cache":     "routeComponent",
	"Routing Users Cache":          "routeUser",
	"Routing AnonymousUsers Cache": "routeAnonymousUser",
	"Routing User Sessions":        "routeUserSessions",
	"Components Sessions":          "componentsSessions",
	"Connection Managers Sessions": "connManagerSessions",
	"Incoming Server Sessions":     "incServerSessions",
	"Sessions by Hostname":         "sessionsHostname",
	"Secret Keys Cache":            "secretKeys",
	"Validated Domains":            "validatedDomains",
	"Directed Presences":           "directedPresences",
	"Disco Server Features":        "serverFeatures",
	"Disco Server Items":           "serverItems",
	"Remote Server Configurations": "serversConfigurations",
	"Entity Capabilities":          "entityCapabilities",
	"Entity Capabilities Users":    "entityCapabilitiesUsers",
	"PEPServiceManager":            "pepServiceManager",
	"Published Items":              "publishedItems",
}

// defaultProps 是未配置时使用的默认属性值
var defaultProps = map[string]int64{
	"cache.fileTransfer.size":                   128 * 1024,
	"cache.fileTransfer.maxLifetime":            10 * minute,
	"cache.multicast.size":                      128 * 1024,
	"cache.multicast.maxLifetime":               day,
	"cache.offlinemessage.size":                 100 * 1024,
	"cache.offlinemessage.maxLifetime":          12 * hour,
	"cache.pop3.size":                           512 * 1024,
	"cache.pop3.maxLifetime":                    hour,
	"cache.transferProxy.size":                  Unlimited,
	"cache.transferProxy.maxLifetime":           10 * minute,
	"cache.group.size":                          1024 * 1024,
	"cache.group.maxLifetime":                   15 * minute,
	"cache.lockOutCache.size":                   1024 * 1024,
	"cache.lockOutCache.maxLifetime":            15 * minute,
	"cache.groupMeta.size":                      512 * 1024,
	"cache.groupMeta.maxLifetime":               15 * minute,
	"cache.username2roster.size":                1024 * 1024,
	"cache.username2roster.maxLifetime":         30 * minute,
	"cache.javascript.size":                     128 * 1024,
	"cache.javascript.maxLifetime":              10 * day,
	"cache.ldap.size":                           512 * 1024,
	"cache.ldap.maxLifetime":                    2 * hour,
	"cache.listsCache.size":                     512 * 1024,
	"cache.offlinePresence.size":                512 * 1024,
	"cache.lastActivity.size":                   128 * 1024,
	"cache.userCache.size":                      512 * 1024,
	"cache.userCache.maxLifetime":               30 * minute,
	"cache.remoteUsersCache.size":               512 * 1024,
	"cache.remoteUsersCache.maxLifetime":        30 * minute,
	"cache.vcardCache.size":                     512 * 1024,
	"cache.faviconHits.size":                    128 * 1024,
	"cache.faviconMisses.size":                  128 * 1024,
	"cache.routeServer.size":                    Unlimited,
	"cache.routeServer.maxLifetime":             Unlimited,
	"cache.routeComponent.size":                 Unlimited,
	"cache.routeComponent.maxLifetime":          Unlimited,
	"cache.routeUser.size":                      Unlimited,
	"cache.routeUser.maxLifetime":               Unlimited,
	"cache.routeAnonymousUser.size":             Unlimited,
	"cache.routeAnonymousUser.maxLifetime":      Unlimited,
	"cache.routeUserSessions.size":              Unlimited,
	"cache.routeUserSessions.maxLifetime":       Unlimited,
	"cache.componentsSessions.size":             Unlimited,
	"cache.componentsSessions.maxLifetime":      Unlimited,
	"cache.connManagerSessions.size":            Unlimited,
	"cache.connManagerSessions.maxLifetime":     Unlimited,
	"cache.incServerSessions.size":              Unlimited,
	"cache.incServerSessions.maxLifetime":       Unlimited,
	"cache.sessionsHostname.size":               Unlimited,
	"cache.sessionsHostname.maxLifetime":        Unlimited,
	"cache.secretKeys.size":                     Unlimited,
	"cache.secretKeys.maxLifetime":              Unlimited,
	"cache.validatedDomains.size":               Unlimited,
	"cache.validatedDomains.maxLifetime":        Unlimited,
	"cache.directedPresences.size":              Unlimited,
	"cache.directedPresences.maxLifetime":       Unlimited,
	"cache.serverFeatures.size":                 Unlimited,
	"cache.serverFeatures.maxLifetime":          Unlimited,
	"cache.serverItems.size":                    Unlimited,
	"cache.serverItems.maxLifetime":             Unlimited,
	"cache.serversConfigurations.size":          128 * 1024,
	"cache.serversConfigurations.maxLifetime":   30 * minute,
	"cache.entityCapabilities.size":             Unlimited,
	"cache.entityCapabilities.maxLifetime":      2 * day,
	"cache.entityCapabilitiesUsers.size":        Unlimited,
	"cache.entityCapabilitiesUsers.maxLifetime": 2 * day,
	"cache.pluginCacheInfo.size":                Unlimited,
	"cache.pluginCacheInfo.maxLifetime":         Unlimited,
	"cache.pepServiceManager.size":              10 * 1024 * 1024,
	"cache.pepServiceManager.maxLifetime":       30 * minute,
	"cache.publishedItems.size":                 10 * 1024 * 1024,
	"cache.publishedItems.maxLifetime":          15 * minute,
}

// sizeFromProperty 将属性中的字节数转换为缓存上限，非正数视为不限制
func sizeFromProperty(v int64) int64 {
	if v <= 0 {
		return Unlimited
	}
	return v
}

// lifetimeFromProperty 将属性中的毫秒数转换为存活时间，非正数视为永不过期
func lifetimeFromProperty(v int64) time.Duration {
	if v <= 0 {
		return Unlimited
	}
	return time.Duration(v) * time.Millisecond
}
