package budget

// Phase 表示工作流阶段。
type Phase string

const (
	// PhaseNone 未指定阶段
	PhaseNone Phase = ""
	// PhaseRed 测试先行阶段（编写失败测试）
	PhaseRed Phase = "red"
	// PhaseGreen 实现阶段（让测试通过）
	PhaseGreen Phase = "green"
	// PhaseRefactor 重构阶段
	PhaseRefactor Phase = "refactor"
	// PhaseDesign 设计阶段
	PhaseDesign Phase = "design"
	// PhaseReview 评审阶段
	PhaseReview Phase = "review"
)

// RoleProfile 描述一个 Agent 角色的预算画像。
type RoleProfile struct {
	// BaseSplit 是各类别的基础百分比（之和应为 1.0）。
	BaseSplit map[Category]float64

	// PhaseMultipliers 是阶段相关的类别乘数。
	// 未列出的阶段/类别使用乘数 1.0。
	PhaseMultipliers map[Phase]map[Category]float64

	// Minimums 是各类别的最低 Token 下限。
	Minimums map[Category]int
}

// defaultSplit 是计算失败时的固定降级分配比例。
var defaultSplit = map[Category]float64{
	CategoryPrimary:     0.40,
	CategoryHistory:     0.25,
	CategoryDependency:  0.20,
	CategoryAgentMemory: 0.10,
	CategoryBuffer:      0.05,
}

// defaultMinimums 是通用的类别下限。
var defaultMinimums = map[Category]int{
	CategoryPrimary:     200,
	CategoryHistory:     50,
	CategoryDependency:  50,
	CategoryAgentMemory: 25,
	CategoryBuffer:      25,
}

// builtinProfiles 是内置角色画像。
var builtinProfiles = map[string]*RoleProfile{
	"code": {
		BaseSplit: map[Category]float64{
			CategoryPrimary:     0.45,
			CategoryHistory:     0.20,
			CategoryDependency:  0.20,
			CategoryAgentMemory: 0.10,
			CategoryBuffer:      0.05,
		},
		PhaseMultipliers: map[Phase]map[Category]float64{
			PhaseRed: {
				CategoryPrimary:    1.1,
				CategoryDependency: 0.9,
			},
			PhaseGreen: {
				CategoryPrimary: 1.15,
				CategoryHistory: 0.85,
			},
			PhaseRefactor: {
				CategoryDependency: 1.2,
				CategoryHistory:    0.9,
			},
		},
		Minimums: defaultMinimums,
	},
	"test": {
		BaseSplit: map[Category]float64{
			CategoryPrimary:     0.40,
			CategoryHistory:     0.15,
			CategoryDependency:  0.25,
			CategoryAgentMemory: 0.15,
			CategoryBuffer:      0.05,
		},
		PhaseMultipliers: map[Phase]map[Category]float64{
			PhaseRed: {
				CategoryPrimary:    1.2,
				CategoryDependency: 1.1,
				CategoryHistory:    0.7,
			},
		},
		Minimums: defaultMinimums,
	},
	"design": {
		BaseSplit: map[Category]float64{
			CategoryPrimary:     0.35,
			CategoryHistory:     0.30,
			CategoryDependency:  0.15,
			CategoryAgentMemory: 0.15,
			CategoryBuffer:      0.05,
		},
		PhaseMultipliers: map[Phase]map[Category]float64{
			PhaseDesign: {
				CategoryHistory:     1.15,
				CategoryAgentMemory: 1.1,
			},
		},
		Minimums: defaultMinimums,
	},
	"review": {
		BaseSplit: map[Category]float64{
			CategoryPrimary:     0.40,
			CategoryHistory:     0.30,
			CategoryDependency:  0.15,
			CategoryAgentMemory: 0.10,
			CategoryBuffer:      0.05,
		},
		PhaseMultipliers: map[Phase]map[Category]float64{
			PhaseReview: {
				CategoryHistory: 1.2,
				CategoryPrimary: 0.95,
			},
		},
		Minimums: defaultMinimums,
	},
}

// ProfileFor 返回角色的预算画像，未知角色使用降级画像。
func ProfileFor(role string) *RoleProfile {
	if profile, ok := builtinProfiles[role]; ok {
		return profile
	}
	return &RoleProfile{
		BaseSplit: defaultSplit,
		Minimums:  defaultMinimums,
	}
}
