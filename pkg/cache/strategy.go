package cache

import (
	"container/heap"
	"container/list"
	"math"
	"time"
)

// evictor 是策略相关的淘汰索引。
// 所有方法都在缓存锁内调用。
type evictor interface {
	// add 登记新条目。
	add(e *Entry)
	// touch 在条目被访问后更新索引。
	touch(e *Entry)
	// remove 从索引中移除条目。
	remove(e *Entry)
	// victim 返回下一个淘汰候选，索引为空时返回 nil。
	victim() *Entry
}

// newEvictor 创建策略对应的淘汰索引。
func newEvictor(strategy Strategy, entries map[string]*Entry) evictor {
	switch strategy {
	case StrategyLFU:
		return newLFUEvictor()
	case StrategyTTL:
		return newTTLEvictor()
	case StrategyPredictive:
		return &predictiveEvictor{entries: entries}
	default:
		return newLRUEvictor()
	}
}

// lruEvictor 用侵入式双向链表维护访问顺序，O(1) 淘汰。
type lruEvictor struct {
	order *list.List // 头部最新，尾部最旧
}

func newLRUEvictor() *lruEvictor {
	return &lruEvictor{order: list.New()}
}

func (v *lruEvictor) add(e *Entry) {
	e.lruElement = v.order.PushFront(e)
}

func (v *lruEvictor) touch(e *Entry) {
	if e.lruElement != nil {
		v.order.MoveToFront(e.lruElement)
	}
}

func (v *lruEvictor) remove(e *Entry) {
	if e.lruElement != nil {
		v.order.Remove(e.lruElement)
		e.lruElement = nil
	}
}

func (v *lruEvictor) victim() *Entry {
	back := v.order.Back()
	if back == nil {
		return nil
	}
	return back.Value.(*Entry)
}

// lfuEvictor 用频次桶维护访问次数，O(1) 淘汰。
// 每个桶内部按插入顺序排列，保证同频次时淘汰最旧的。
type lfuEvictor struct {
	buckets map[int]*list.List
	minFreq int
}

func newLFUEvictor() *lfuEvictor {
	return &lfuEvictor{buckets: make(map[int]*list.List)}
}

func (v *lfuEvictor) bucket(freq int) *list.List {
	b, ok := v.buckets[freq]
	if !ok {
		b = list.New()
		v.buckets[freq] = b
	}
	return b
}

func (v *lfuEvictor) add(e *Entry) {
	e.frequency = 1
	e.lruElement = v.bucket(1).PushBack(e)
	v.minFreq = 1
}

func (v *lfuEvictor) touch(e *Entry) {
	v.detach(e)
	e.frequency++
	e.lruElement = v.bucket(e.frequency).PushBack(e)
	if v.buckets[v.minFreq] == nil || v.buckets[v.minFreq].Len() == 0 {
		v.minFreq = e.frequency
	}
}

func (v *lfuEvictor) remove(e *Entry) {
	v.detach(e)
}

func (v *lfuEvictor) detach(e *Entry) {
	if e.lruElement == nil {
		return
	}
	if b, ok := v.buckets[e.frequency]; ok {
		b.Remove(e.lruElement)
		if b.Len() == 0 {
			delete(v.buckets, e.frequency)
		}
	}
	e.lruElement = nil
}

func (v *lfuEvictor) victim() *Entry {
	// minFreq 可能因删除而失效，向上查找第一个非空桶
	for freq := v.minFreq; ; freq++ {
		if b, ok := v.buckets[freq]; ok && b.Len() > 0 {
			v.minFreq = freq
			return b.Front().Value.(*Entry)
		}
		if len(v.buckets) == 0 {
			return nil
		}
		if freq > 1<<30 {
			return nil
		}
	}
}

// ttlEvictor 用最小堆按过期时间排序，O(log n) 淘汰。
type ttlEvictor struct {
	heap expiryHeap
}

func newTTLEvictor() *ttlEvictor {
	return &ttlEvictor{}
}

func (v *ttlEvictor) add(e *Entry) {
	heap.Push(&v.heap, e)
}

func (v *ttlEvictor) touch(_ *Entry) {
	// 访问不改变过期时间
}

func (v *ttlEvictor) remove(e *Entry) {
	if e.heapIndex >= 0 && e.heapIndex < len(v.heap) {
		heap.Remove(&v.heap, e.heapIndex)
	}
	e.heapIndex = -1
}

func (v *ttlEvictor) victim() *Entry {
	if len(v.heap) == 0 {
		return nil
	}
	return v.heap[0]
}

// expiryHeap 按 expiresAt 升序的最小堆，零值过期时间排在最后。
type expiryHeap []*Entry

func (h expiryHeap) Len() int { return len(h) }

func (h expiryHeap) Less(i, j int) bool {
	a, b := h[i].expiresAt, h[j].expiresAt
	if a.IsZero() {
		return false
	}
	if b.IsZero() {
		return true
	}
	return a.Before(b)
}

func (h expiryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *expiryHeap) Push(x interface{}) {
	e := x.(*Entry)
	e.heapIndex = len(*h)
	*h = append(*h, e)
}

func (h *expiryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.heapIndex = -1
	*h = old[:n-1]
	return e
}

// predictiveEvictor 淘汰年龄、命中率和预测分混合最差的条目。
// 预测分是动态的，这里接受线性扫描以换取实现的简单。
type predictiveEvictor struct {
	entries map[string]*Entry
}

func (v *predictiveEvictor) add(_ *Entry)    {}
func (v *predictiveEvictor) touch(_ *Entry)  {}
func (v *predictiveEvictor) remove(_ *Entry) {}

func (v *predictiveEvictor) victim() *Entry {
	now := time.Now()

	var worst *Entry
	worstScore := math.Inf(1)

	for _, e := range v.entries {
		score := blendedScore(e, now)
		// 同分时按键序保证确定性
		if score < worstScore || (score == worstScore && worst != nil && e.key < worst.key) {
			worst = e
			worstScore = score
		}
	}

	return worst
}

// blendedScore 混合新鲜度、命中率和预测分，分值越低越先淘汰。
func blendedScore(e *Entry, now time.Time) float64 {
	age := now.Sub(e.lastAccess).Seconds()
	if age < 0 {
		age = 0
	}
	freshness := math.Exp(-age / 3600)

	hitRatio := 0.0
	if e.accessCount > 0 {
		hitRatio = float64(e.hitCount) / float64(e.accessCount)
	}

	return 0.3*freshness + 0.3*hitRatio + 0.4*e.predictiveScore
}
