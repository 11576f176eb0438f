// Package budget 提供上下文装配的 Token 预算分配能力。
//
// 预算把请求的 Token 上限拆分为五个命名类别：主任务内容、
// 历史上下文、依赖上下文、Agent 记忆上下文和安全缓冲。
// 不变量：各类别之和不超过总量，在构造时强制检查。
package budget

import (
	"fmt"

	coreerrors "github.com/easyops/agentcontext-go/pkg/core/errors"
)

// Category 表示预算类别。
type Category string

const (
	// CategoryPrimary 主任务内容
	CategoryPrimary Category = "primary_task"
	// CategoryHistory 历史上下文
	CategoryHistory Category = "historical"
	// CategoryDependency 依赖上下文
	CategoryDependency Category = "dependency"
	// CategoryAgentMemory Agent 记忆上下文
	CategoryAgentMemory Category = "agent_memory"
	// CategoryBuffer 安全缓冲
	CategoryBuffer Category = "buffer"
)

// Categories 按固定顺序列出所有预算类别。
var Categories = []Category{
	CategoryPrimary,
	CategoryHistory,
	CategoryDependency,
	CategoryAgentMemory,
	CategoryBuffer,
}

// TokenBudget 表示一次请求的 Token 预算。
type TokenBudget struct {
	// Total 是预算总量（请求的 Token 上限）。
	Total int

	// Allocations 是各类别的分配量。
	Allocations map[Category]int
}

// NewTokenBudget 创建并校验 TokenBudget。
// 各类别之和超过总量是硬错误。
func NewTokenBudget(total int, allocations map[Category]int) (*TokenBudget, error) {
	if total <= 0 {
		return nil, fmt.Errorf("%w: total=%d", coreerrors.ErrInvalidCeiling, total)
	}

	sum := 0
	for _, category := range Categories {
		amount := allocations[category]
		if amount < 0 {
			return nil, fmt.Errorf("negative allocation for %s: %d", category, amount)
		}
		sum += amount
	}

	if sum > total {
		return nil, fmt.Errorf("allocations sum %d exceeds total %d", sum, total)
	}

	copied := make(map[Category]int, len(Categories))
	for _, category := range Categories {
		copied[category] = allocations[category]
	}

	return &TokenBudget{Total: total, Allocations: copied}, nil
}

// Get 返回类别的分配量。
func (b *TokenBudget) Get(category Category) int {
	return b.Allocations[category]
}

// Allocated 返回所有类别分配量之和。
func (b *TokenBudget) Allocated() int {
	sum := 0
	for _, amount := range b.Allocations {
		sum += amount
	}
	return sum
}

// TokenUsage 记录一次装配后各类别的实际用量。
type TokenUsage struct {
	// Used 是各类别的实际 Token 用量。
	Used map[Category]int
}

// NewTokenUsage 创建空的 TokenUsage。
func NewTokenUsage() *TokenUsage {
	return &TokenUsage{Used: make(map[Category]int, len(Categories))}
}

// Set 设置类别的实际用量。
func (u *TokenUsage) Set(category Category, tokens int) {
	if u.Used == nil {
		u.Used = make(map[Category]int, len(Categories))
	}
	if tokens < 0 {
		tokens = 0
	}
	u.Used[category] = tokens
}

// Get 返回类别的实际用量。
func (u *TokenUsage) Get(category Category) int {
	return u.Used[category]
}

// Total 返回所有类别实际用量之和。
func (u *TokenUsage) Total() int {
	sum := 0
	for _, tokens := range u.Used {
		sum += tokens
	}
	return sum
}

// Efficiency 返回相对预算的使用效率（0.0-1.0+）。
// 超过 1.0 表示实际用量超出了分配。
func (u *TokenUsage) Efficiency(b *TokenBudget) float64 {
	if b == nil {
		return 0
	}
	allocated := b.Allocated()
	if allocated == 0 {
		return 0
	}
	return float64(u.Total()) / float64(allocated)
}

// Clone 创建用量的拷贝。
func (u *TokenUsage) Clone() *TokenUsage {
	clone := NewTokenUsage()
	for category, tokens := range u.Used {
		clone.Used[category] = tokens
	}
	return clone
}
