// Package cache 提供装配结果的进程内预测性缓存。
//
// 缓存按指纹键存储装配好的上下文，支持可配置的淘汰策略
// （LRU、LFU、TTL、预测混合）、标签批量失效、惰性+周期性
// 过期清理，以及由访问模式驱动的后台预热。
// 任何内部故障都退化为未命中/操作失败，从不向调用方抛出。
package cache

import (
	"container/list"
	"time"
)

// Cloner 表示可复制的缓存值。
// 命中时返回独立副本，调用方无法修改缓存内的实例。
type Cloner interface {
	// CloneValue 返回值的深拷贝。
	CloneValue() interface{}
}

// Sizer 表示可报告自身字节大小的缓存值。
type Sizer interface {
	// SizeBytes 返回值的估算字节大小。
	SizeBytes() int64
}

// Entry 是一个缓存条目。
type Entry struct {
	key   string
	value interface{}

	createdAt  time.Time
	lastAccess time.Time
	expiresAt  time.Time

	accessCount int64
	hitCount    int64
	sizeBytes   int64

	tags map[string]struct{}

	// predictiveScore 仅用于淘汰/预热排序，不绕过 TTL 和容量规则。
	predictiveScore float64

	// warmed 标记条目由预热写入，用于统计预热有效性。
	warmed bool

	// 策略索引钩子
	lruElement *list.Element
	heapIndex  int
	frequency  int
}

// Key 返回条目键。
func (e *Entry) Key() string {
	return e.key
}

// AccessCount 返回访问次数。
func (e *Entry) AccessCount() int64 {
	return e.accessCount
}

// HasTag 判断条目是否带有给定标签。
func (e *Entry) HasTag(tag string) bool {
	_, ok := e.tags[tag]
	return ok
}

// expired 判断条目在给定时间点是否已过期。
func (e *Entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// estimateSize 估算值的字节大小。
func estimateSize(value interface{}) int64 {
	switch v := value.(type) {
	case Sizer:
		return v.SizeBytes()
	case string:
		return int64(len(v))
	case []byte:
		return int64(len(v))
	default:
		// 未知类型的保守估计
		return 512
	}
}
