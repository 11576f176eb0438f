package collab

import (
	"context"
	"sync"

	"github.com/easyops/agentcontext-go/pkg/relevance"
)

// StaticLoader 返回预先登记的候选集合。
// 适用于测试和候选集不随请求变化的场景。
type StaticLoader struct {
	mu         sync.RWMutex
	byStory    map[string][]relevance.Candidate
	candidates []relevance.Candidate
}

// NewStaticLoader 创建静态候选加载器
func NewStaticLoader(candidates ...relevance.Candidate) *StaticLoader {
	return &StaticLoader{
		byStory:    make(map[string][]relevance.Candidate),
		candidates: candidates,
	}
}

// AddForStory 登记工作项专属的候选。
func (l *StaticLoader) AddForStory(storyID string, candidates ...relevance.Candidate) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byStory[storyID] = append(l.byStory[storyID], candidates...)
}

// Load 返回工作项专属候选与全局候选的并集。
func (l *StaticLoader) Load(ctx context.Context, storyID string) ([]relevance.Candidate, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]relevance.Candidate, 0, len(l.candidates)+len(l.byStory[storyID]))
	out = append(out, l.byStory[storyID]...)
	out = append(out, l.candidates...)
	return out, nil
}

// 编译时接口检查
var _ Loader = (*StaticLoader)(nil)
