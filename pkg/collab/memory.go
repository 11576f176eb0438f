package collab

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/easyops/agentcontext-go/pkg/relevance"
)

// InMemoryMemory 是内存历史记录实现。
type InMemoryMemory struct {
	mu         sync.RWMutex
	inclusions map[string][]relevance.InclusionRecord // role + "\x00" + storyID
	decisions  map[string][]Decision                  // storyID
}

// NewInMemoryMemory 创建内存历史记录
func NewInMemoryMemory() *InMemoryMemory {
	return &InMemoryMemory{
		inclusions: make(map[string][]relevance.InclusionRecord),
		decisions:  make(map[string][]Decision),
	}
}

func inclusionKey(role, storyID string) string {
	return role + "\x00" + storyID
}

// Inclusions 返回角色在某工作项上过去采用过的内容单元。
func (m *InMemoryMemory) Inclusions(ctx context.Context, role, storyID string) ([]relevance.InclusionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.inclusions[inclusionKey(role, storyID)]
	out := make([]relevance.InclusionRecord, len(records))
	copy(out, records)
	return out, nil
}

// RecordInclusion 登记一条采用记录。
func (m *InMemoryMemory) RecordInclusion(ctx context.Context, role, storyID, path string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := inclusionKey(role, storyID)
	m.inclusions[key] = append(m.inclusions[key], relevance.InclusionRecord{
		Path:       path,
		IncludedAt: at,
	})
	return nil
}

// RecentDecisions 返回工作项下最近的协作决策，按时间倒序。
func (m *InMemoryMemory) RecentDecisions(ctx context.Context, storyID string, limit int) ([]Decision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	decisions := make([]Decision, len(m.decisions[storyID]))
	copy(decisions, m.decisions[storyID])

	sort.Slice(decisions, func(i, j int) bool {
		return decisions[i].DecidedAt.After(decisions[j].DecidedAt)
	})

	if limit > 0 && len(decisions) > limit {
		decisions = decisions[:limit]
	}
	return decisions, nil
}

// RecordDecision 登记一条协作决策。
func (m *InMemoryMemory) RecordDecision(ctx context.Context, decision Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if decision.DecidedAt.IsZero() {
		decision.DecidedAt = time.Now()
	}
	m.decisions[decision.StoryID] = append(m.decisions[decision.StoryID], decision)
	return nil
}

// 编译时接口检查
var _ Memory = (*InMemoryMemory)(nil)
