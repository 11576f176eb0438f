// Package config 提供配置加载和管理功能
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"
)

// Config 全局配置结构
type Config struct {
	// Engine 装配引擎配置
	Engine EngineConfig `koanf:"engine"`
	// Cache 缓存配置
	Cache CacheConfig `koanf:"cache"`
	// Observability 可观测性配置
	Observability ObservabilityConfig `koanf:"observability"`
}

// EngineConfig 装配引擎配置
type EngineConfig struct {
	// DefaultCeiling 默认 Token 上限
	DefaultCeiling int `koanf:"default_ceiling"`
	// Timeout 单次装配截止时间
	Timeout time.Duration `koanf:"timeout"`
	// MaxCandidates 筛选保留的候选数上限
	MaxCandidates int `koanf:"max_candidates"`
	// MinScore 候选入选的最低相关性分数
	MinScore float64 `koanf:"min_score"`
	// CompressionLevel 首选压缩级别 (none, low, moderate, high, extreme)
	CompressionLevel string `koanf:"compression_level"`
	// TokenizerModel Token 估算使用的模型名
	TokenizerModel string `koanf:"tokenizer_model"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	// MaxEntries 条目数上限
	MaxEntries int `koanf:"max_entries"`
	// MaxBytes 内存字节上限
	MaxBytes int64 `koanf:"max_bytes"`
	// TTL 条目存活时间
	TTL time.Duration `koanf:"ttl"`
	// Strategy 淘汰策略 (lru, lfu, ttl, predictive)
	Strategy string `koanf:"strategy"`
	// Warming 预热策略 (none, pattern)
	Warming string `koanf:"warming"`
	// WarmQueueDepth 预热队列深度
	WarmQueueDepth int `koanf:"warm_queue_depth"`
	// SweepInterval 过期清理间隔
	SweepInterval time.Duration `koanf:"sweep_interval"`
	// AnalyzeInterval 访问模式分析间隔
	AnalyzeInterval time.Duration `koanf:"analyze_interval"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	// Enabled 是否启用
	Enabled bool `koanf:"enabled"`
	// ServiceName 服务名称
	ServiceName string `koanf:"service_name"`
	// MetricsEndpoint 指标端点
	MetricsEndpoint string `koanf:"metrics_endpoint"`
	// SampleRate 采样率 [0, 1]
	SampleRate float64 `koanf:"sample_rate"`
}

// Loader 配置加载器
type Loader struct {
	k *koanf.Koanf
}

// NewLoader 创建配置加载器
func NewLoader() *Loader {
	return &Loader{
		k: koanf.New("."),
	}
}

// LoadFile 从 YAML 文件加载配置
func (l *Loader) LoadFile(path string) error {
	// 文件不存在不报错，使用默认值
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var parsed map[string]interface{}
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return l.setAll("", parsed)
}

// setAll 把嵌套映射展平为点号分隔的键写入。
func (l *Loader) setAll(prefix string, values map[string]interface{}) error {
	for key, value := range values {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := value.(map[string]interface{}); ok {
			if err := l.setAll(full, nested); err != nil {
				return err
			}
			continue
		}
		if err := l.k.Set(full, value); err != nil {
			return err
		}
	}
	return nil
}

// LoadEnv 从环境变量加载配置
func (l *Loader) LoadEnv(prefix string) error {
	return l.k.Load(env.Provider(prefix, ".", func(s string) string {
		// 转换环境变量名: AGENTCONTEXT_CACHE_MAX_ENTRIES -> cache.max_entries
		// 顶层节名不含下划线，只把第一个下划线换成分隔符，
		// 其余保留以匹配 max_entries 这类多词键。
		s = strings.TrimPrefix(s, prefix)
		s = strings.ToLower(s)
		s = strings.Replace(s, "_", ".", 1)
		return s
	}), nil)
}

// Unmarshal 解析配置到结构体
func (l *Loader) Unmarshal(cfg *Config) error {
	return l.k.Unmarshal("", cfg)
}

// Get 获取配置值
func (l *Loader) Get(key string) interface{} {
	return l.k.Get(key)
}

// GetString 获取字符串配置值
func (l *Loader) GetString(key string) string {
	return l.k.String(key)
}

// GetInt 获取整数配置值
func (l *Loader) GetInt(key string) int {
	return l.k.Int(key)
}

// GetBool 获取布尔配置值
func (l *Loader) GetBool(key string) bool {
	return l.k.Bool(key)
}

// GetDuration 获取时间间隔配置值
func (l *Loader) GetDuration(key string) time.Duration {
	return l.k.Duration(key)
}

// Load 加载完整配置（文件 + 环境变量）
func Load(configPath string) (*Config, error) {
	loader := NewLoader()

	if configPath != "" {
		if err := loader.LoadFile(configPath); err != nil {
			return nil, err
		}
	}

	// 环境变量优先级更高
	if err := loader.LoadEnv("AGENTCONTEXT_"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := loader.Unmarshal(cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	return cfg, nil
}

// applyDefaults 应用默认配置值
func applyDefaults(cfg *Config) {
	// Engine 默认值
	if cfg.Engine.DefaultCeiling == 0 {
		cfg.Engine.DefaultCeiling = 8000
	}
	if cfg.Engine.Timeout == 0 {
		cfg.Engine.Timeout = 30 * time.Second
	}
	if cfg.Engine.MaxCandidates == 0 {
		cfg.Engine.MaxCandidates = 10
	}
	if cfg.Engine.MinScore == 0 {
		cfg.Engine.MinScore = 0.1
	}
	if cfg.Engine.CompressionLevel == "" {
		cfg.Engine.CompressionLevel = "moderate"
	}
	if cfg.Engine.TokenizerModel == "" {
		cfg.Engine.TokenizerModel = "gpt-4o"
	}

	// Cache 默认值
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 1000
	}
	if cfg.Cache.MaxBytes == 0 {
		cfg.Cache.MaxBytes = 100 * 1024 * 1024
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = time.Hour
	}
	if cfg.Cache.Strategy == "" {
		cfg.Cache.Strategy = "lru"
	}
	if cfg.Cache.Warming == "" {
		cfg.Cache.Warming = "none"
	}
	if cfg.Cache.WarmQueueDepth == 0 {
		cfg.Cache.WarmQueueDepth = 64
	}
	if cfg.Cache.SweepInterval == 0 {
		cfg.Cache.SweepInterval = time.Minute
	}
	if cfg.Cache.AnalyzeInterval == 0 {
		cfg.Cache.AnalyzeInterval = 5 * time.Minute
	}

	// Observability 默认值
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "agentcontext"
	}
	if cfg.Observability.SampleRate == 0 {
		cfg.Observability.SampleRate = 1.0
	}
}
