package budget

import (
	"fmt"
	"sync"

	coreerrors "github.com/easyops/agentcontext-go/pkg/core/errors"
)

// Hints 是分配时的显式元数据提示。
// 未识别的提示放入 Extra，分配算法不解释它们。
type Hints struct {
	// FocusAreas 列出需要加权的类别（如 "dependency"、"historical"）。
	FocusAreas []Category

	// ComplexityHint 是任务复杂度提示（"low"、"normal"、"high"）。
	ComplexityHint string

	// Extra 是向前兼容的不透明扩展提示。
	Extra map[string]interface{}
}

// usageRecord 是一次完成请求的预算/用量快照。
type usageRecord struct {
	budget *TokenBudget
	usage  *TokenUsage
}

// Allocator 负责把 Token 上限拆分为有效的 TokenBudget。
//
// 分配是确定性的：同样的角色、阶段、提示和历史记录
// 总是产生同样的预算。
type Allocator struct {
	profiles map[string]*RoleProfile

	mu      sync.Mutex
	history map[string][]usageRecord

	// historyWindow 限制每个角色保留的历史记录条数。
	historyWindow int

	// maxAdjustment 限制反馈调整幅度（0.3 表示 ±30%）。
	maxAdjustment float64
}

// AllocatorOption 配置 Allocator。
type AllocatorOption func(*Allocator)

// WithProfile 注册或覆盖角色画像。
func WithProfile(role string, profile *RoleProfile) AllocatorOption {
	return func(a *Allocator) {
		a.profiles[role] = profile
	}
}

// WithHistoryWindow 设置反馈历史窗口大小。
func WithHistoryWindow(n int) AllocatorOption {
	return func(a *Allocator) {
		if n > 0 {
			a.historyWindow = n
		}
	}
}

// NewAllocator 创建新的 Allocator。
func NewAllocator(opts ...AllocatorOption) *Allocator {
	a := &Allocator{
		profiles:      make(map[string]*RoleProfile),
		history:       make(map[string][]usageRecord),
		historyWindow: 20,
		maxAdjustment: 0.3,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Allocate 为给定角色和阶段分配预算。
// 上限无效是输入错误；其余情况总能收敛到有效预算。
func (a *Allocator) Allocate(total int, role string, phase Phase, hints *Hints) (*TokenBudget, error) {
	if total <= 0 {
		return nil, fmt.Errorf("%w: total=%d", coreerrors.ErrInvalidCeiling, total)
	}

	profile := a.profileFor(role)
	split := copySplit(profile.BaseSplit)

	// 1. 阶段乘数
	if multipliers, ok := profile.PhaseMultipliers[phase]; ok {
		for category, multiplier := range multipliers {
			split[category] *= multiplier
		}
	}

	// 2. 元数据提示
	applyHints(split, hints)

	// 3. 历史反馈（有界、确定性）
	a.applyFeedback(role, split)

	// 4. 归一化，保证比例之和不超过 1
	normalizeSplit(split)

	// 5. 转换为绝对 Token 并强制下限
	allocations := toTokens(split, total)
	enforceMinimums(allocations, profile.Minimums, total)

	tokenBudget, err := NewTokenBudget(total, allocations)
	if err != nil {
		// 正常计算失败时回退到固定默认分配
		return a.fallback(total)
	}
	return tokenBudget, nil
}

// RecordUsage 记录一次完成请求的实际用量，供后续分配参考。
func (a *Allocator) RecordUsage(role string, tokenBudget *TokenBudget, usage *TokenUsage) {
	if tokenBudget == nil || usage == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	records := append(a.history[role], usageRecord{budget: tokenBudget, usage: usage.Clone()})
	if len(records) > a.historyWindow {
		records = records[len(records)-a.historyWindow:]
	}
	a.history[role] = records
}

// HistoryLen 返回角色当前的历史记录条数。
func (a *Allocator) HistoryLen(role string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.history[role])
}

func (a *Allocator) profileFor(role string) *RoleProfile {
	if profile, ok := a.profiles[role]; ok {
		return profile
	}
	return ProfileFor(role)
}

// applyFeedback 按历史平均用量对比例做有界调整。
// 实际用量低于分配的类别收缩，高于分配的类别增长，
// 调整幅度限制在 ±maxAdjustment 内。
func (a *Allocator) applyFeedback(role string, split map[Category]float64) {
	a.mu.Lock()
	records := a.history[role]
	a.mu.Unlock()

	if len(records) == 0 {
		return
	}

	for _, category := range Categories {
		var usedSum, allocatedSum int
		for _, record := range records {
			usedSum += record.usage.Get(category)
			allocatedSum += record.budget.Get(category)
		}
		if allocatedSum == 0 {
			continue
		}

		factor := float64(usedSum) / float64(allocatedSum)
		if factor < 1-a.maxAdjustment {
			factor = 1 - a.maxAdjustment
		}
		if factor > 1+a.maxAdjustment {
			factor = 1 + a.maxAdjustment
		}
		split[category] *= factor
	}
}

// fallback 使用固定默认分配（40/25/20/10/5）构造预算。
func (a *Allocator) fallback(total int) (*TokenBudget, error) {
	allocations := toTokens(defaultSplit, total)
	return NewTokenBudget(total, allocations)
}

// applyHints 把显式提示折算为比例调整。
func applyHints(split map[Category]float64, hints *Hints) {
	if hints == nil {
		return
	}

	for _, focus := range hints.FocusAreas {
		if _, ok := split[focus]; ok {
			split[focus] *= 1.25
		}
	}

	switch hints.ComplexityHint {
	case "high":
		split[CategoryPrimary] *= 1.1
	case "low":
		split[CategoryPrimary] *= 0.9
	}
}

// normalizeSplit 在比例之和超过 1 时等比缩小。
func normalizeSplit(split map[Category]float64) {
	sum := 0.0
	for _, fraction := range split {
		sum += fraction
	}
	if sum <= 1.0 || sum == 0 {
		return
	}
	for category := range split {
		split[category] /= sum
	}
}

// toTokens 把比例转换为绝对 Token 数。
func toTokens(split map[Category]float64, total int) map[Category]int {
	allocations := make(map[Category]int, len(Categories))
	for _, category := range Categories {
		allocations[category] = int(split[category] * float64(total))
	}
	return allocations
}

// enforceMinimums 强制各类别下限。
// 缺口优先从缓冲类别补足，其次从高于自身下限的类别等比扣除；
// 若总量仍超出上限，则对所有类别等比缩小。
func enforceMinimums(allocations map[Category]int, minimums map[Category]int, total int) {
	floorFor := func(category Category) int {
		floor := minimums[category]
		// 上限本身很小时，下限同步收缩，保证算法收敛
		if floor > total/len(Categories) {
			floor = total / len(Categories)
		}
		return floor
	}

	for _, category := range Categories {
		floor := floorFor(category)
		if allocations[category] >= floor {
			continue
		}
		shortfall := floor - allocations[category]

		// 先从缓冲取
		if category != CategoryBuffer {
			bufferFloor := floorFor(CategoryBuffer)
			available := allocations[CategoryBuffer] - bufferFloor
			if available > 0 {
				take := shortfall
				if take > available {
					take = available
				}
				allocations[CategoryBuffer] -= take
				allocations[category] += take
				shortfall -= take
			}
		}

		// 再从高于下限的类别等比取
		if shortfall > 0 {
			surplus := 0
			for _, other := range Categories {
				if other == category {
					continue
				}
				if extra := allocations[other] - floorFor(other); extra > 0 {
					surplus += extra
				}
			}
			if surplus > 0 {
				for _, other := range Categories {
					if other == category {
						continue
					}
					extra := allocations[other] - floorFor(other)
					if extra <= 0 {
						continue
					}
					take := shortfall * extra / surplus
					allocations[other] -= take
					allocations[category] += take
				}
			}
			allocations[category] = floor
		}
	}

	// 总量仍超出上限时等比缩小
	sum := 0
	for _, amount := range allocations {
		sum += amount
	}
	if sum > total {
		for category := range allocations {
			allocations[category] = allocations[category] * total / sum
		}
	}
}

func copySplit(split map[Category]float64) map[Category]float64 {
	copied := make(map[Category]float64, len(split))
	for category, fraction := range split {
		copied[category] = fraction
	}
	return copied
}
