package collab

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// InMemoryIndex 是内存依赖索引。
// 依赖边显式登记，检索基于路径和内容的子串匹配。
type InMemoryIndex struct {
	mu       sync.RWMutex
	deps     map[string][]string
	contents map[string]string
}

// NewInMemoryIndex 创建内存依赖索引
func NewInMemoryIndex() *InMemoryIndex {
	return &InMemoryIndex{
		deps:     make(map[string][]string),
		contents: make(map[string]string),
	}
}

// AddUnit 登记内容单元及其依赖。
func (i *InMemoryIndex) AddUnit(path, content string, dependencies ...string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.contents[path] = content
	if len(dependencies) > 0 {
		i.deps[path] = append(i.deps[path], dependencies...)
	}
}

// DependenciesOf 返回给定内容单元依赖的其他单元。
func (i *InMemoryIndex) DependenciesOf(ctx context.Context, unit string) ([]string, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	deps := i.deps[unit]
	out := make([]string, len(deps))
	copy(out, deps)
	return out, nil
}

// Search 按查询词做子串匹配，路径命中优先于内容命中。
func (i *InMemoryIndex) Search(ctx context.Context, query string, limit int) ([]string, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	lowered := strings.ToLower(query)

	var pathHits, contentHits []string
	for path, content := range i.contents {
		switch {
		case strings.Contains(strings.ToLower(path), lowered):
			pathHits = append(pathHits, path)
		case strings.Contains(strings.ToLower(content), lowered):
			contentHits = append(contentHits, path)
		}
	}

	sort.Strings(pathHits)
	sort.Strings(contentHits)

	results := append(pathHits, contentHits...)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// 编译时接口检查
var _ Index = (*InMemoryIndex)(nil)
