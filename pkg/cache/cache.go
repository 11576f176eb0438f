package cache

import (
	"context"
	"sync"
	"time"

	"github.com/easyops/agentcontext-go/pkg/otel"
)

// Stats 是缓存的聚合统计。
type Stats struct {
	// Hits 是命中次数。
	Hits int64
	// Misses 是未命中次数。
	Misses int64
	// Evictions 是容量淘汰次数。
	Evictions int64
	// Expirations 是过期清理次数。
	Expirations int64
	// Invalidations 是显式失效次数。
	Invalidations int64
	// Entries 是当前条目数。
	Entries int
	// Bytes 是当前占用字节数。
	Bytes int64
	// WarmHits 是命中预热条目的次数。
	WarmHits int64
	// WarmLoads 是预热写入次数。
	WarmLoads int64
	// Degraded 是内部故障退化为未命中的次数。
	Degraded int64
}

// HitRate 返回命中率；无访问时返回 0。
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// WarmingEffectiveness 返回命中中来自预热条目的比例。
func (s Stats) WarmingEffectiveness() float64 {
	if s.Hits == 0 {
		return 0
	}
	return float64(s.WarmHits) / float64(s.Hits)
}

// DetailedMetrics 是含模式信息的详细指标快照。
type DetailedMetrics struct {
	Stats

	// HitRate 是命中率。
	HitRate float64
	// WarmingEffectiveness 是预热有效性。
	WarmingEffectiveness float64
	// Patterns 是当前学习到的访问模式。
	Patterns []PredictionPattern
	// WarmQueueLength 是预热队列当前长度。
	WarmQueueLength int
}

// Cache 是进程内预测性缓存。
//
// 所有公开方法都是并发安全的。内部 panic 一律被捕获并
// 退化为未命中或失败返回，缓存故障不会中断调用方。
type Cache struct {
	cfg *Config

	mu       sync.Mutex
	entries  map[string]*Entry
	evict    evictor
	bytes    int64
	stats    Stats
	patterns map[string]*PredictionPattern

	// accessLog 是模式分析的环形访问历史
	accessLog []accessRecord

	warmQueue *warmQueue

	logger  otel.Logger
	metrics otel.Metrics

	lifecycle sync.WaitGroup
	stop      chan struct{}
	started   bool
	closed    bool
}

// New 创建缓存。
func New(opts ...Option) *Cache {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = otel.NewNoopLogger()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = otel.NewNoopMetrics()
	}

	c := &Cache{
		cfg:      cfg,
		entries:  make(map[string]*Entry),
		patterns: make(map[string]*PredictionPattern),
		logger:   logger,
		metrics:  metrics,
		stop:     make(chan struct{}),
	}
	c.evict = newEvictor(cfg.Strategy, c.entries)
	c.warmQueue = newWarmQueue(cfg.WarmQueueDepth)
	return c
}

// Put 写入条目。tags 用于批量失效。
func (c *Cache) Put(key string, value interface{}, tags ...string) {
	c.put(key, value, false, 0, tags)
}

// put 是 Put 和预热写入的公共路径。
func (c *Cache) put(key string, value interface{}, warmed bool, score float64, tags []string) {
	defer c.recover("put")

	now := time.Now()
	size := estimateSize(value)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	if old, ok := c.entries[key]; ok {
		c.removeLocked(old)
	}

	e := &Entry{
		key:             key,
		value:           value,
		createdAt:       now,
		lastAccess:      now,
		sizeBytes:       size,
		warmed:          warmed,
		predictiveScore: score,
		heapIndex:       -1,
	}
	if c.cfg.TTL > 0 {
		e.expiresAt = now.Add(c.cfg.TTL)
	}
	if len(tags) > 0 {
		e.tags = make(map[string]struct{}, len(tags))
		for _, tag := range tags {
			e.tags[tag] = struct{}{}
		}
	}

	c.entries[key] = e
	c.evict.add(e)
	c.bytes += size
	if warmed {
		c.stats.WarmLoads++
	}

	c.enforceLimitsLocked()
}

// Get 读取条目。命中时若值实现 Cloner 则返回独立副本。
// 过期条目按未命中处理并立即清除。
func (c *Cache) Get(key string) (interface{}, bool) {
	return c.get(key, "")
}

// GetForRole 与 Get 相同，另将访问记入角色相关的模式历史。
func (c *Cache) GetForRole(key, role string) (interface{}, bool) {
	return c.get(key, role)
}

func (c *Cache) get(key, role string) (value interface{}, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.degrade("get", r)
			value, ok = nil, false
		}
	}()

	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, false
	}

	c.logAccessLocked(key, role, now)

	e, found := c.entries[key]
	if !found {
		c.stats.Misses++
		c.metrics.Counter(otel.MetricCacheMisses).Add(context.Background(), 1)
		return nil, false
	}

	if e.expired(now) {
		c.removeLocked(e)
		c.stats.Expirations++
		c.stats.Misses++
		c.metrics.Counter(otel.MetricCacheMisses).Add(context.Background(), 1)
		return nil, false
	}

	e.lastAccess = now
	e.accessCount++
	e.hitCount++
	c.evict.touch(e)

	c.stats.Hits++
	if e.warmed {
		c.stats.WarmHits++
	}
	c.metrics.Counter(otel.MetricCacheHits).Add(context.Background(), 1)

	c.markPredictionHitLocked(key)

	if cloner, isCloner := e.value.(Cloner); isCloner {
		return cloner.CloneValue(), true
	}
	return e.value, true
}

// Invalidate 删除指定键，返回条目是否存在。
func (c *Cache) Invalidate(key string) bool {
	defer c.recover("invalidate")

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeLocked(e)
	c.stats.Invalidations++
	return true
}

// InvalidateByTags 删除带有任一给定标签的条目，返回删除数量。
func (c *Cache) InvalidateByTags(tags ...string) int {
	defer c.recover("invalidate_by_tags")

	c.mu.Lock()
	defer c.mu.Unlock()

	var victims []*Entry
	for _, e := range c.entries {
		for _, tag := range tags {
			if e.HasTag(tag) {
				victims = append(victims, e)
				break
			}
		}
	}

	for _, e := range victims {
		c.removeLocked(e)
	}
	c.stats.Invalidations += int64(len(victims))
	return len(victims)
}

// Len 返回当前条目数。
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats 返回聚合统计快照。
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Entries = len(c.entries)
	s.Bytes = c.bytes
	return s
}

// Metrics 返回含模式信息的详细指标快照。
func (c *Cache) Metrics() DetailedMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Entries = len(c.entries)
	s.Bytes = c.bytes

	patterns := make([]PredictionPattern, 0, len(c.patterns))
	for _, p := range c.patterns {
		patterns = append(patterns, *p)
	}

	return DetailedMetrics{
		Stats:                s,
		HitRate:              s.HitRate(),
		WarmingEffectiveness: s.WarmingEffectiveness(),
		Patterns:             patterns,
		WarmQueueLength:      c.warmQueue.len(),
	}
}

// Start 启动后台工作协程：过期清理、预热消费和模式分析。
// 重复调用无效果。
func (c *Cache) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	c.lifecycle.Add(1)
	go c.sweepLoop(ctx)

	if c.cfg.Warming == WarmingPattern {
		c.lifecycle.Add(2)
		go c.warmLoop(ctx)
		go c.analyzeLoop(ctx)
	}
}

// Stop 停止后台协程并等待退出。缓存之后只拒绝新操作。
func (c *Cache) Stop() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.stop)
	c.warmQueue.close()
	c.lifecycle.Wait()
}

// sweepLoop 周期性清除过期条目。
func (c *Cache) sweepLoop(ctx context.Context) {
	defer c.lifecycle.Done()

	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep 扫描并清除所有已过期的条目。
func (c *Cache) sweep() {
	defer c.recover("sweep")

	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []*Entry
	for _, e := range c.entries {
		if e.expired(now) {
			expired = append(expired, e)
		}
	}
	for _, e := range expired {
		c.removeLocked(e)
		c.stats.Expirations++
	}

	if len(expired) > 0 {
		c.logger.Debug("cache sweep removed expired entries", "count", len(expired))
	}
}

// analyzeLoop 周期性从访问历史中挖掘模式并排定预热。
func (c *Cache) analyzeLoop(ctx context.Context) {
	defer c.lifecycle.Done()

	ticker := time.NewTicker(c.cfg.AnalyzeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.Analyze()
		}
	}
}

// Analyze 立即执行一轮模式分析，并刷新预测分。
// 后台分析协程周期性调用；测试中可直接调用。
func (c *Cache) Analyze() {
	defer c.recover("analyze")

	c.mu.Lock()
	defer c.mu.Unlock()

	log := make([]accessRecord, len(c.accessLog))
	copy(log, c.accessLog)

	fresh := analyzePatterns(log)

	// 保留旧模式的成功率计数
	for id, p := range fresh {
		if old, ok := c.patterns[id]; ok {
			p.attempts = old.attempts
			p.successes = old.successes
		}
	}
	c.patterns = fresh

	// 把预测置信度回写为条目的预测分
	for _, e := range c.entries {
		e.predictiveScore = 0
	}
	for _, p := range c.patterns {
		if e, ok := c.entries[p.Predicts]; ok && p.Confidence > e.predictiveScore {
			e.predictiveScore = p.Confidence
		}
	}
}

// PredictSuccessors 返回键的后继预测，按置信度降序。
func (c *Cache) PredictSuccessors(key string, limit int) []PredictionPattern {
	c.mu.Lock()
	defer c.mu.Unlock()

	matched := successorsOf(c.patterns, key, limit)
	result := make([]PredictionPattern, 0, len(matched))
	for _, p := range matched {
		result = append(result, *p)
	}
	return result
}

// logAccessLocked 追加访问历史，超出上限时丢弃最旧的一半。
func (c *Cache) logAccessLocked(key, role string, now time.Time) {
	if c.cfg.AccessLogSize <= 0 {
		return
	}
	c.accessLog = append(c.accessLog, accessRecord{key: key, role: role, at: now})
	if len(c.accessLog) > c.cfg.AccessLogSize {
		keep := c.cfg.AccessLogSize / 2
		c.accessLog = append(c.accessLog[:0], c.accessLog[len(c.accessLog)-keep:]...)
	}
}

// markPredictionHitLocked 把命中计入触发过预热的模式。
func (c *Cache) markPredictionHitLocked(key string) {
	for _, p := range c.patterns {
		if p.Predicts == key && p.attempts > p.successes {
			p.recordSuccess()
		}
	}
}

// enforceLimitsLocked 按容量上限淘汰，直到满足条目数和字节数限制。
func (c *Cache) enforceLimitsLocked() {
	for c.overLimitLocked() {
		victim := c.evict.victim()
		if victim == nil {
			return
		}
		c.removeLocked(victim)
		c.stats.Evictions++
		c.metrics.Counter(otel.MetricCacheEvictions).Add(context.Background(), 1,
			otel.NewAttr("strategy", string(c.cfg.Strategy)))
	}
}

func (c *Cache) overLimitLocked() bool {
	if c.cfg.MaxEntries > 0 && len(c.entries) > c.cfg.MaxEntries {
		return true
	}
	if c.cfg.MaxBytes > 0 && c.bytes > c.cfg.MaxBytes {
		return true
	}
	return false
}

// removeLocked 把条目从主表和策略索引中移除。
func (c *Cache) removeLocked(e *Entry) {
	delete(c.entries, e.key)
	c.evict.remove(e)
	c.bytes -= e.sizeBytes
	if c.bytes < 0 {
		c.bytes = 0
	}
}

// recover 捕获内部 panic 并记录退化。
func (c *Cache) recover(op string) {
	if r := recover(); r != nil {
		c.degrade(op, r)
	}
}

func (c *Cache) degrade(op string, cause interface{}) {
	c.logger.Error("cache operation degraded",
		"op", op,
		"cause", cause)
	c.mu.Lock()
	c.stats.Degraded++
	c.mu.Unlock()
}
