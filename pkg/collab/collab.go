// Package collab 提供装配引擎对协作数据源的访问。
//
// 三类数据源都以接口呈现：Loader 提供候选内容，Index 提供
// 代码依赖关系，Memory 提供历史采用记录和协作决策。
// 包内自带内存实现（测试和小规模场景）和 SQLite 持久化
// 实现（生产场景）。
package collab

import (
	"context"
	"time"

	"github.com/easyops/agentcontext-go/pkg/relevance"
)

// Loader 提供某工作项下的候选内容单元。
type Loader interface {
	// Load 返回工作项的全部候选内容。
	Load(ctx context.Context, storyID string) ([]relevance.Candidate, error)
}

// Index 提供代码依赖关系和检索能力。
type Index interface {
	// DependenciesOf 返回给定内容单元依赖的其他单元。
	DependenciesOf(ctx context.Context, unit string) ([]string, error)

	// Search 按查询词检索内容单元，返回路径列表。
	Search(ctx context.Context, query string, limit int) ([]string, error)
}

// Decision 是一条协作决策记录。
type Decision struct {
	// Role 是做出决策的 Agent 角色。
	Role string

	// StoryID 是决策所属的工作项。
	StoryID string

	// Summary 是决策内容摘要。
	Summary string

	// DecidedAt 是决策时间。
	DecidedAt time.Time
}

// Memory 提供 Agent 维度的历史记录。
type Memory interface {
	// Inclusions 返回角色在某工作项上过去采用过的内容单元。
	Inclusions(ctx context.Context, role, storyID string) ([]relevance.InclusionRecord, error)

	// RecordInclusion 登记一条采用记录。
	RecordInclusion(ctx context.Context, role, storyID, path string, at time.Time) error

	// RecentDecisions 返回工作项下最近的协作决策，按时间倒序。
	RecentDecisions(ctx context.Context, storyID string, limit int) ([]Decision, error)

	// RecordDecision 登记一条协作决策。
	RecordDecision(ctx context.Context, decision Decision) error
}
