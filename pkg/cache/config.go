package cache

import (
	"time"

	"github.com/easyops/agentcontext-go/pkg/otel"
)

// Strategy 表示淘汰策略。
type Strategy string

const (
	// StrategyLRU 淘汰最久未访问的条目
	StrategyLRU Strategy = "lru"
	// StrategyLFU 淘汰访问次数最少的条目
	StrategyLFU Strategy = "lfu"
	// StrategyTTL 淘汰最接近过期的条目
	StrategyTTL Strategy = "ttl"
	// StrategyPredictive 淘汰年龄/命中率/预测分混合最差的条目
	StrategyPredictive Strategy = "predictive"
)

// WarmingStrategy 表示预热策略。
type WarmingStrategy string

const (
	// WarmingNone 不预热
	WarmingNone WarmingStrategy = "none"
	// WarmingPattern 由学习到的访问模式驱动预热
	WarmingPattern WarmingStrategy = "pattern"
)

// Config 保存缓存配置。
type Config struct {
	// MaxEntries 是条目数上限（0 表示不限制）。
	MaxEntries int `koanf:"max_entries"`

	// MaxBytes 是内存字节上限（0 表示不限制）。
	MaxBytes int64 `koanf:"max_bytes"`

	// TTL 是条目存活时间（0 表示不过期）。
	TTL time.Duration `koanf:"ttl"`

	// Strategy 是淘汰策略。
	Strategy Strategy `koanf:"strategy"`

	// Warming 是预热策略。
	Warming WarmingStrategy `koanf:"warming"`

	// WarmQueueDepth 是预热队列深度上限。
	WarmQueueDepth int `koanf:"warm_queue_depth"`

	// SweepInterval 是周期性过期清理间隔。
	SweepInterval time.Duration `koanf:"sweep_interval"`

	// AnalyzeInterval 是访问模式分析间隔。
	AnalyzeInterval time.Duration `koanf:"analyze_interval"`

	// AccessLogSize 是模式分析保留的访问历史长度。
	AccessLogSize int `koanf:"access_log_size"`

	// Logger 是日志输出。
	Logger otel.Logger `koanf:"-"`

	// Metrics 是指标输出。
	Metrics otel.Metrics `koanf:"-"`
}

// DefaultConfig 返回带合理默认值的 Config。
func DefaultConfig() *Config {
	return &Config{
		MaxEntries:      1000,
		MaxBytes:        100 * 1024 * 1024, // 100MB
		TTL:             time.Hour,
		Strategy:        StrategyLRU,
		Warming:         WarmingNone,
		WarmQueueDepth:  64,
		SweepInterval:   time.Minute,
		AnalyzeInterval: 5 * time.Minute,
		AccessLogSize:   2048,
	}
}

// Option 配置 Cache。
type Option func(*Config)

// WithMaxEntries 设置条目数上限。
func WithMaxEntries(n int) Option {
	return func(c *Config) {
		c.MaxEntries = n
	}
}

// WithMaxBytes 设置内存字节上限。
func WithMaxBytes(n int64) Option {
	return func(c *Config) {
		c.MaxBytes = n
	}
}

// WithTTL 设置条目存活时间。
func WithTTL(ttl time.Duration) Option {
	return func(c *Config) {
		c.TTL = ttl
	}
}

// WithStrategy 设置淘汰策略。
func WithStrategy(strategy Strategy) Option {
	return func(c *Config) {
		c.Strategy = strategy
	}
}

// WithWarming 设置预热策略。
func WithWarming(strategy WarmingStrategy) Option {
	return func(c *Config) {
		c.Warming = strategy
	}
}

// WithWarmQueueDepth 设置预热队列深度。
func WithWarmQueueDepth(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.WarmQueueDepth = n
		}
	}
}

// WithSweepInterval 设置过期清理间隔。
func WithSweepInterval(interval time.Duration) Option {
	return func(c *Config) {
		if interval > 0 {
			c.SweepInterval = interval
		}
	}
}

// WithAnalyzeInterval 设置模式分析间隔。
func WithAnalyzeInterval(interval time.Duration) Option {
	return func(c *Config) {
		if interval > 0 {
			c.AnalyzeInterval = interval
		}
	}
}

// WithLogger 设置日志输出。
func WithLogger(logger otel.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMetrics 设置指标输出。
func WithMetrics(metrics otel.Metrics) Option {
	return func(c *Config) {
		c.Metrics = metrics
	}
}
