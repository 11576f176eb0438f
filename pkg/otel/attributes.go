package otel

import "go.opentelemetry.io/otel/attribute"

// 预定义的语义属性键
// 遵循 OpenTelemetry 语义约定
const (
	// 请求相关属性
	AttrRequestID   = "request.id"
	AttrAgentRole   = "agent.role"
	AttrTaskPhase   = "task.phase"
	AttrStoryID     = "story.id"
	AttrTokenBudget = "token.budget"

	// 流水线相关属性
	AttrStage       = "pipeline.stage"
	AttrCacheHit    = "cache.hit"
	AttrDegraded    = "pipeline.degraded"
	AttrTruncated   = "pipeline.truncated"
	AttrTokensUsed  = "tokens.used"
	AttrTokensLimit = "tokens.limit"

	// 压缩相关属性
	AttrCompressionLevel = "compression.level"
	AttrContentType      = "content.type"

	// 缓存相关属性
	AttrCacheStrategy = "cache.strategy"
	AttrCacheKey      = "cache.key"

	// Error 相关属性
	AttrErrorType      = "error.type"
	AttrErrorMessage   = "error.message"
	AttrErrorRetryable = "error.retryable"
)

// RequestID 创建请求 ID 属性
func RequestID(id string) attribute.KeyValue {
	return attribute.String(AttrRequestID, id)
}

// AgentRole 创建 Agent 角色属性
func AgentRole(role string) attribute.KeyValue {
	return attribute.String(AttrAgentRole, role)
}

// TaskPhase 创建任务阶段属性
func TaskPhase(phase string) attribute.KeyValue {
	return attribute.String(AttrTaskPhase, phase)
}

// StoryID 创建故事 ID 属性
func StoryID(id string) attribute.KeyValue {
	return attribute.String(AttrStoryID, id)
}

// Stage 创建流水线阶段属性
func Stage(stage string) attribute.KeyValue {
	return attribute.String(AttrStage, stage)
}

// CacheHit 创建缓存命中属性
func CacheHit(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheHit, hit)
}

// TokenCounts 创建 Token 用量属性
func TokenCounts(used, limit int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrTokensUsed, used),
		attribute.Int(AttrTokensLimit, limit),
	}
}

// CompressionLevel 创建压缩级别属性
func CompressionLevel(level string) attribute.KeyValue {
	return attribute.String(AttrCompressionLevel, level)
}

// ErrorAttrs 创建错误属性
func ErrorAttrs(errType, message string, retryable bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrErrorType, errType),
		attribute.String(AttrErrorMessage, message),
		attribute.Bool(AttrErrorRetryable, retryable),
	}
}
