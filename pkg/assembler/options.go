package assembler

import (
	"sort"
	"strings"

	"github.com/easyops/agentcontext-go/pkg/budget"
	"github.com/easyops/agentcontext-go/pkg/compress"
)

// Options 是单次装配请求的可选项。
// 零值表示全部使用默认行为。
type Options struct {
	// CompressionLevel 是首选压缩级别，零值表示 Moderate。
	CompressionLevel compress.Level

	// ExplicitLevel 为 true 时 CompressionLevel 的零值（None）生效，
	// 否则零值被解释为未设置。
	ExplicitLevel bool

	// IncludeHistory 控制是否装配历史上下文小节。
	IncludeHistory bool

	// IncludeDependencies 控制是否装配依赖上下文小节。
	IncludeDependencies bool

	// IncludeAgentMemory 控制是否装配 Agent 记忆小节。
	IncludeAgentMemory bool

	// FocusAreas 是预算倾斜的类别提示。
	FocusAreas []budget.Category

	// ComplexityHint 是任务复杂度提示（"low"、"normal"、"high"）。
	ComplexityHint string

	// MaxCandidates 是筛选保留的候选数上限，零值表示 10。
	MaxCandidates int

	// MinScore 是候选入选的最低相关性分数，零值表示 0.1。
	MinScore float64

	// ExcludePatterns 是按路径子串排除候选的模式。
	ExcludePatterns []string

	// Extra 是向前兼容的不透明扩展项，参与指纹计算。
	Extra map[string]string
}

// DefaultOptions 返回包含全部小节的默认选项。
func DefaultOptions() Options {
	return Options{
		IncludeHistory:      true,
		IncludeDependencies: true,
		IncludeAgentMemory:  true,
	}
}

// level 返回生效的压缩级别。
func (o *Options) level() compress.Level {
	if o.CompressionLevel == compress.LevelNone && !o.ExplicitLevel {
		return compress.LevelModerate
	}
	return o.CompressionLevel
}

// maxCandidates 返回生效的候选数上限。
func (o *Options) maxCandidates() int {
	if o.MaxCandidates <= 0 {
		return 10
	}
	return o.MaxCandidates
}

// minScore 返回生效的最低分数。
func (o *Options) minScore() float64 {
	if o.MinScore <= 0 {
		return 0.1
	}
	return o.MinScore
}

// canonical 返回选项的确定性文本形式，用于指纹计算。
func (o *Options) canonical() string {
	var b strings.Builder

	b.WriteString("level=")
	b.WriteString(o.level().String())
	b.WriteString(";history=")
	b.WriteString(boolString(o.IncludeHistory))
	b.WriteString(";deps=")
	b.WriteString(boolString(o.IncludeDependencies))
	b.WriteString(";memory=")
	b.WriteString(boolString(o.IncludeAgentMemory))
	b.WriteString(";complexity=")
	b.WriteString(o.ComplexityHint)

	focus := make([]string, 0, len(o.FocusAreas))
	for _, category := range o.FocusAreas {
		focus = append(focus, string(category))
	}
	sort.Strings(focus)
	b.WriteString(";focus=")
	b.WriteString(strings.Join(focus, ","))

	exclude := make([]string, len(o.ExcludePatterns))
	copy(exclude, o.ExcludePatterns)
	sort.Strings(exclude)
	b.WriteString(";exclude=")
	b.WriteString(strings.Join(exclude, ","))

	extraKeys := make([]string, 0, len(o.Extra))
	for k := range o.Extra {
		extraKeys = append(extraKeys, k)
	}
	sort.Strings(extraKeys)
	for _, k := range extraKeys {
		b.WriteString(";x:")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(o.Extra[k])
	}

	return b.String()
}

func boolString(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// excluded 判断路径是否命中排除模式。
func (o *Options) excluded(path string) bool {
	for _, pattern := range o.ExcludePatterns {
		if pattern != "" && strings.Contains(path, pattern) {
			return true
		}
	}
	return false
}
