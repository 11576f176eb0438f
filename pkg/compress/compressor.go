package compress

import (
	"fmt"
	"strings"

	"github.com/easyops/agentcontext-go/pkg/token"
)

// TruncationMarker 是截断结果末尾的显式标记，任何截断都不得省略它。
const TruncationMarker = "... [truncated]"

// Result 是一次压缩的结果。
type Result struct {
	// Content 是压缩后的内容。
	Content string

	// Tokens 是压缩后内容的估算 Token 数。
	Tokens int

	// Ratio 是达到的压缩比（输出 Token / 输入 Token）。
	Ratio float64

	// Level 是实际使用的压缩等级。
	Level Level

	// Truncated 表示是否发生了目标截断。
	Truncated bool

	// Fallback 表示结构化提取失败、使用了通用文本策略。
	Fallback bool
}

// Compressor 按内容类型和等级压缩内容。
type Compressor struct {
	estimator token.Estimator
	registry  *registry
}

// CompressorOption 配置 Compressor。
type CompressorOption func(*Compressor)

// WithEstimator 设置 Token 估算器。
func WithEstimator(estimator token.Estimator) CompressorOption {
	return func(c *Compressor) {
		c.estimator = estimator
	}
}

// WithExtractor 注册或覆盖内容类型的结构化提取器。
func WithExtractor(contentType token.ContentType, extractor Extractor) CompressorOption {
	return func(c *Compressor) {
		c.registry.register(contentType, extractor)
	}
}

// NewCompressor 创建新的 Compressor。
func NewCompressor(opts ...CompressorOption) *Compressor {
	c := &Compressor{
		registry: newRegistry(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.estimator == nil {
		c.estimator = token.NewHeuristicEstimator()
	}

	return c
}

// Compress 把内容压缩到给定等级，targetTokens > 0 时进一步截断到目标。
// 压缩从不失败：结构化提取失败降级到通用文本策略。
//
// 单调性：对同一输入，更高的等级不会产生更多的 Token。
func (c *Compressor) Compress(content string, contentType token.ContentType, level Level, targetTokens int) Result {
	inputTokens := c.estimator.EstimateTyped(content, contentType)

	result := Result{Content: content, Level: level}

	if level == LevelNone {
		result.Tokens = inputTokens
		result.Ratio = 1.0
	} else {
		renderings, fallback := c.renderings(content, contentType, level)
		result.Fallback = fallback

		// 取等级链上估算最小的渲染结果，保证等级单调性
		best := renderings[0]
		bestTokens := c.estimator.EstimateTyped(best, contentType)
		for _, rendering := range renderings[1:] {
			tokens := c.estimator.EstimateTyped(rendering, contentType)
			if tokens <= bestTokens {
				best = rendering
				bestTokens = tokens
			}
		}

		result.Content = best
		result.Tokens = bestTokens
	}

	if targetTokens > 0 && result.Tokens > targetTokens {
		result.Content = c.truncateToTarget(result.Content, targetTokens)
		result.Tokens = c.estimator.EstimateTyped(result.Content, contentType)
		result.Truncated = true
	}

	if inputTokens > 0 {
		result.Ratio = float64(result.Tokens) / float64(inputTokens)
	} else {
		result.Ratio = 1.0
	}

	return result
}

// renderings 返回从 LevelLow 到请求等级（含）的所有渲染结果。
// 第二个返回值表示是否使用了文本降级策略。
func (c *Compressor) renderings(content string, contentType token.ContentType, level Level) ([]string, bool) {
	extractor := c.registry.lookup(contentType)

	var structure *Structure
	if extractor != nil {
		if extracted, err := extractor.Extract(content); err == nil {
			structure = extracted
		}
	}

	var renderings []string
	for _, candidate := range []Level{LevelLow, LevelModerate, LevelHigh, LevelExtreme} {
		if candidate > level {
			break
		}
		if structure != nil {
			renderings = append(renderings, renderStructure(content, structure, candidate))
		} else {
			renderings = append(renderings, renderText(content, candidate))
		}
	}

	return renderings, structure == nil
}

// renderStructure 按等级渲染结构化提取结果。
func renderStructure(original string, structure *Structure, level Level) string {
	switch level {
	case LevelLow:
		// 低等级不需要结构：仅去除空行和注释
		return stripBlanksAndComments(original)

	case LevelModerate:
		var parts []string
		parts = append(parts, structure.Preamble...)
		for _, unit := range structure.Units {
			parts = append(parts, unit.Header)
			parts = append(parts, unit.Summary...)
			parts = append(parts, "")
		}
		return strings.TrimRight(strings.Join(parts, "\n"), "\n")

	case LevelHigh:
		var parts []string
		parts = append(parts, structure.Preamble...)
		for _, unit := range structure.Units {
			parts = append(parts, annotatedHeader(unit))
		}
		return strings.Join(parts, "\n")

	default: // LevelExtreme
		parts := make([]string, 0, len(structure.Units))
		for _, unit := range structure.Units {
			parts = append(parts, annotatedHeader(unit))
		}
		return strings.Join(parts, "\n")
	}
}

// annotatedHeader 返回带细节计数注记的单元标题。
func annotatedHeader(unit Unit) string {
	if unit.DetailCount <= 0 || unit.DetailLabel == "" {
		return unit.Header
	}
	return fmt.Sprintf("%s  (%d %s)", unit.Header, unit.DetailCount, unit.DetailLabel)
}

// renderText 是通用文本策略：按等级保留开头部分。
func renderText(content string, level Level) string {
	stripped := stripBlanksAndComments(content)
	lines := strings.Split(stripped, "\n")

	var keep int
	switch level {
	case LevelLow:
		return stripped
	case LevelModerate:
		keep = len(lines) / 2
	case LevelHigh:
		keep = len(lines) / 4
	default: // LevelExtreme
		keep = len(lines) / 10
	}

	if keep < 1 {
		keep = 1
	}
	if keep >= len(lines) {
		return stripped
	}

	return strings.Join(lines[:keep], "\n") + "\n" + TruncationMarker
}

// commentPrefixes 是各语言常见的整行注释前缀。
var commentPrefixes = []string{"//", "#", "--", ";", "*", "/*"}

// stripBlanksAndComments 去除空行和整行注释。
func stripBlanksAndComments(content string) string {
	lines := strings.Split(content, "\n")
	result := make([]string, 0, len(lines))

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		isComment := false
		for _, prefix := range commentPrefixes {
			if strings.HasPrefix(trimmed, prefix) {
				isComment = true
				break
			}
		}
		if isComment {
			continue
		}
		result = append(result, strings.TrimRight(line, " \t"))
	}

	return strings.Join(result, "\n")
}

// truncateToTarget 在最近的行边界截断到目标 Token 数，并附加截断标记。
func (c *Compressor) truncateToTarget(content string, targetTokens int) string {
	markerTokens := c.estimator.Estimate(TruncationMarker)
	budget := targetTokens - markerTokens
	if budget < 0 {
		budget = 0
	}

	lines := strings.Split(content, "\n")
	kept := make([]string, 0, len(lines))
	used := 0

	for _, line := range lines {
		lineTokens := c.estimator.Estimate(line + "\n")
		if used+lineTokens > budget {
			break
		}
		kept = append(kept, line)
		used += lineTokens
	}

	// 标记永远保留，即使预算容不下任何内容行
	kept = append(kept, TruncationMarker)
	return strings.Join(kept, "\n")
}
