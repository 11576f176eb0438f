package cache

import (
	"container/heap"
	"context"
	"sync"

	coreerrors "github.com/easyops/agentcontext-go/pkg/core/errors"
)

// WarmRequest 是一条预热请求。
type WarmRequest struct {
	// Key 是要预热的缓存键。
	Key string

	// Priority 是队列优先级，数值越大越先处理。
	Priority float64

	// Compute 构建要缓存的值。
	Compute func(ctx context.Context) (interface{}, error)

	// Tags 写入时附加的失效标签。
	Tags []string
}

// warmQueue 是按优先级排序的有界队列。
type warmQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  warmHeap
	depth  int
	closed bool
}

func newWarmQueue(depth int) *warmQueue {
	q := &warmQueue{depth: depth}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push 入队；队列已满或已关闭时返回错误。
func (q *warmQueue) push(req WarmRequest) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return coreerrors.ErrCacheClosed
	}
	if q.depth > 0 && len(q.items) >= q.depth {
		return coreerrors.ErrWarmQueueFull
	}

	heap.Push(&q.items, req)
	q.cond.Signal()
	return nil
}

// pop 阻塞等待下一条最高优先级的请求；关闭且队列耗尽时返回 false。
func (q *warmQueue) pop() (WarmRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return WarmRequest{}, false
	}
	return heap.Pop(&q.items).(WarmRequest), true
}

func (q *warmQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *warmQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// warmHeap 按 Priority 降序的堆。
type warmHeap []WarmRequest

func (h warmHeap) Len() int            { return len(h) }
func (h warmHeap) Less(i, j int) bool  { return h[i].Priority > h[j].Priority }
func (h warmHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *warmHeap) Push(x interface{}) { *h = append(*h, x.(WarmRequest)) }
func (h *warmHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Warm 提交预热请求。请求在后台按优先级执行，
// 已缓存的键会被跳过。队列满时返回 ErrWarmQueueFull。
func (c *Cache) Warm(req WarmRequest) error {
	if req.Key == "" || req.Compute == nil {
		return coreerrors.ErrInvalidRequest
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return coreerrors.ErrCacheClosed
	}
	_, exists := c.entries[req.Key]
	c.mu.Unlock()

	if exists {
		return nil
	}
	return c.warmQueue.push(req)
}

// WarmPredicted 根据刚访问的键把预测后继排入预热队列。
// compute 负责按键构建值；没有可用预测时不做任何事。
func (c *Cache) WarmPredicted(justAccessed string, compute func(ctx context.Context, key string) (interface{}, error)) {
	if compute == nil || c.cfg.Warming != WarmingPattern {
		return
	}

	c.mu.Lock()
	matched := successorsOf(c.patterns, justAccessed, 3)
	for _, p := range matched {
		p.recordAttempt()
	}
	c.mu.Unlock()

	for _, p := range matched {
		key := p.Predicts
		err := c.Warm(WarmRequest{
			Key:      key,
			Priority: p.Confidence,
			Compute: func(ctx context.Context) (interface{}, error) {
				return compute(ctx, key)
			},
		})
		if err != nil && err != coreerrors.ErrWarmQueueFull {
			return
		}
	}
}

// warmLoop 消费预热队列并把计算结果写入缓存。
func (c *Cache) warmLoop(ctx context.Context) {
	defer c.lifecycle.Done()

	for {
		req, ok := c.warmQueue.pop()
		if !ok {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		default:
		}

		c.serveWarmRequest(ctx, req)
	}
}

// serveWarmRequest 执行单条预热请求，计算失败只记录日志。
func (c *Cache) serveWarmRequest(ctx context.Context, req WarmRequest) {
	defer c.recover("warm")

	value, err := req.Compute(ctx)
	if err != nil {
		c.logger.Warn("cache warm compute failed", "key", req.Key, "error", err)
		return
	}

	c.put(req.Key, value, true, req.Priority, req.Tags)
	c.logger.Debug("cache warmed entry", "key", req.Key, "priority", req.Priority)
}
