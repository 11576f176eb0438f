package assembler

import (
	"strings"
	"time"

	"github.com/easyops/agentcontext-go/pkg/budget"
	"github.com/easyops/agentcontext-go/pkg/compress"
	"github.com/easyops/agentcontext-go/pkg/relevance"
)

// Sections 是装配产物的五个文本小节。
type Sections struct {
	// Primary 是主要任务内容。
	Primary string

	// Historical 是历史上下文。
	Historical string

	// Dependency 是依赖上下文。
	Dependency string

	// AgentMemory 是 Agent 记忆上下文。
	AgentMemory string

	// Metadata 是元信息头。
	Metadata string
}

// AssembledContext 是装配完成的上下文。
// 返回后归调用方所有，缓存持有独立副本。
type AssembledContext struct {
	// RequestID 是产生本结果的请求标识。
	RequestID string

	// Fingerprint 是请求指纹，同时是缓存键和失效句柄。
	Fingerprint string

	// Role 是请求的 Agent 角色。
	Role string

	// StoryID 是工作项标识。
	StoryID string

	// Sections 是分节文本。
	Sections Sections

	// Budget 是本次装配使用的预算。
	Budget *budget.TokenBudget

	// Usage 是各小节的实际 Token 用量。
	Usage *budget.TokenUsage

	// Scores 是入选候选的相关性评分。
	Scores []*relevance.Score

	// Compressed 标记是否发生过压缩。
	Compressed bool

	// CompressionLevel 是最终生效的压缩级别。
	CompressionLevel compress.Level

	// Recompressed 标记是否触发过超限二次压缩。
	Recompressed bool

	// Truncated 标记是否发生过字符级兜底截断。
	Truncated bool

	// CacheHit 标记结果是否来自缓存。
	CacheHit bool

	// PreparedIn 是装配耗时。
	PreparedIn time.Duration

	// PreparedAt 是装配完成时间。
	PreparedAt time.Time
}

// Text 返回按固定顺序拼接的完整上下文文本。
func (c *AssembledContext) Text() string {
	var parts []string
	for _, section := range []string{
		c.Sections.Metadata,
		c.Sections.Primary,
		c.Sections.Historical,
		c.Sections.Dependency,
		c.Sections.AgentMemory,
	} {
		if strings.TrimSpace(section) != "" {
			parts = append(parts, section)
		}
	}
	return strings.Join(parts, "\n\n")
}

// CloneValue 返回可安全交给调用方的深拷贝。
func (c *AssembledContext) CloneValue() interface{} {
	clone := *c

	if c.Usage != nil {
		clone.Usage = c.Usage.Clone()
	}

	if c.Scores != nil {
		clone.Scores = make([]*relevance.Score, len(c.Scores))
		for i, score := range c.Scores {
			copied := *score
			copied.SubScores = make(map[string]float64, len(score.SubScores))
			for k, v := range score.SubScores {
				copied.SubScores[k] = v
			}
			copied.Reasons = append([]string(nil), score.Reasons...)
			clone.Scores[i] = &copied
		}
	}

	return &clone
}

// SizeBytes 返回文本小节的字节大小估计。
func (c *AssembledContext) SizeBytes() int64 {
	size := len(c.Sections.Primary) +
		len(c.Sections.Historical) +
		len(c.Sections.Dependency) +
		len(c.Sections.AgentMemory) +
		len(c.Sections.Metadata)
	// 评分等结构化元数据的固定开销
	return int64(size) + 1024
}
