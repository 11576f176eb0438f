package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	coreerrors "github.com/easyops/agentcontext-go/pkg/core/errors"
)

func TestPutGetRoundTrip(t *testing.T) {
	c := New()

	c.Put("k1", "value-1")

	got, ok := c.Get("k1")
	if !ok {
		t.Fatal("expected hit for k1")
	}
	if got != "value-1" {
		t.Errorf("Get(k1) = %v, want value-1", got)
	}

	if _, ok := c.Get("absent"); ok {
		t.Error("expected miss for absent key")
	}
}

type cloneValue struct {
	data []string
}

func (v *cloneValue) CloneValue() interface{} {
	out := make([]string, len(v.data))
	copy(out, v.data)
	return &cloneValue{data: out}
}

func TestGetReturnsIndependentCopy(t *testing.T) {
	c := New()
	c.Put("k1", &cloneValue{data: []string{"a", "b"}})

	first, _ := c.Get("k1")
	first.(*cloneValue).data[0] = "mutated"

	second, _ := c.Get("k1")
	if second.(*cloneValue).data[0] != "a" {
		t.Error("cached value was mutated through a returned copy")
	}
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(WithMaxEntries(3), WithStrategy(StrategyLRU))

	c.Put("k1", "v1")
	c.Put("k2", "v2")
	c.Put("k3", "v3")

	// 访问 k1，让 k2 成为最久未访问
	if _, ok := c.Get("k1"); !ok {
		t.Fatal("expected hit for k1")
	}

	c.Put("k4", "v4")

	if _, ok := c.Get("k2"); ok {
		t.Error("k2 should have been evicted")
	}
	for _, key := range []string{"k1", "k3", "k4"} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("%s should still be cached", key)
		}
	}
	if got := c.Stats().Evictions; got != 1 {
		t.Errorf("Evictions = %d, want 1", got)
	}
}

func TestLFUEvictsLeastFrequentlyUsed(t *testing.T) {
	c := New(WithMaxEntries(3), WithStrategy(StrategyLFU))

	c.Put("k1", "v1")
	c.Put("k2", "v2")
	c.Put("k3", "v3")

	c.Get("k1")
	c.Get("k1")
	c.Get("k3")

	c.Put("k4", "v4")

	if _, ok := c.Get("k2"); ok {
		t.Error("k2 should have been evicted as least frequently used")
	}
	for _, key := range []string{"k1", "k3", "k4"} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("%s should still be cached", key)
		}
	}
}

func TestTTLExpiry(t *testing.T) {
	c := New(WithTTL(20 * time.Millisecond))

	c.Put("k1", "v1")
	if _, ok := c.Get("k1"); !ok {
		t.Fatal("expected hit before expiry")
	}

	time.Sleep(40 * time.Millisecond)

	if _, ok := c.Get("k1"); ok {
		t.Error("expected miss after TTL expiry")
	}
	if got := c.Stats().Expirations; got != 1 {
		t.Errorf("Expirations = %d, want 1", got)
	}
}

func TestTTLStrategyEvictsClosestToExpiry(t *testing.T) {
	c := New(WithMaxEntries(2), WithStrategy(StrategyTTL), WithTTL(time.Hour))

	c.Put("k1", "v1")
	time.Sleep(2 * time.Millisecond)
	c.Put("k2", "v2")
	c.Put("k3", "v3")

	// k1 最早写入，过期时间最近
	if _, ok := c.Get("k1"); ok {
		t.Error("k1 should have been evicted as closest to expiry")
	}
	if _, ok := c.Get("k3"); !ok {
		t.Error("k3 should still be cached")
	}
}

func TestInvalidate(t *testing.T) {
	c := New()
	c.Put("k1", "v1")

	if !c.Invalidate("k1") {
		t.Error("Invalidate(k1) = false, want true")
	}
	if c.Invalidate("k1") {
		t.Error("second Invalidate(k1) = true, want false")
	}
	if _, ok := c.Get("k1"); ok {
		t.Error("k1 should be gone after invalidation")
	}
}

func TestInvalidateByTags(t *testing.T) {
	c := New()

	c.Put("k1", "v1", "a")
	c.Put("k2", "v2", "b")
	c.Put("k3", "v3", "a", "c")

	removed := c.InvalidateByTags("a")
	if removed != 2 {
		t.Fatalf("InvalidateByTags(a) = %d, want 2", removed)
	}

	if _, ok := c.Get("k2"); !ok {
		t.Error("k2 should survive invalidation by tag a")
	}
	for _, key := range []string{"k1", "k3"} {
		if _, ok := c.Get(key); ok {
			t.Errorf("%s should be gone after invalidation by tag a", key)
		}
	}
}

func TestMaxBytesEviction(t *testing.T) {
	c := New(WithMaxBytes(1024), WithStrategy(StrategyLRU))

	c.Put("k1", string(make([]byte, 600)))
	c.Put("k2", string(make([]byte, 600)))

	if _, ok := c.Get("k1"); ok {
		t.Error("k1 should have been evicted to satisfy the byte limit")
	}
	if _, ok := c.Get("k2"); !ok {
		t.Error("k2 should still be cached")
	}
}

func TestStatsHitRate(t *testing.T) {
	c := New()
	c.Put("k1", "v1")

	c.Get("k1")
	c.Get("k1")
	c.Get("absent")

	s := c.Stats()
	if s.Hits != 2 || s.Misses != 1 {
		t.Fatalf("hits/misses = %d/%d, want 2/1", s.Hits, s.Misses)
	}
	if got := s.HitRate(); got < 0.66 || got > 0.67 {
		t.Errorf("HitRate() = %v, want ~0.667", got)
	}
}

func TestWarmingEffectivenessIsShareOfHits(t *testing.T) {
	s := Stats{Hits: 10, WarmHits: 2, WarmLoads: 1}
	if got := s.WarmingEffectiveness(); got != 0.2 {
		t.Errorf("WarmingEffectiveness() = %v, want 0.2", got)
	}
	if got := (Stats{WarmLoads: 3}).WarmingEffectiveness(); got != 0 {
		t.Errorf("WarmingEffectiveness() with no hits = %v, want 0", got)
	}
}

func TestPatternAnalysisFindsSequences(t *testing.T) {
	c := New(WithWarming(WarmingPattern))

	// 重复 a→b 序列
	for i := 0; i < 5; i++ {
		c.Put("a", "va")
		c.Put("b", "vb")
		c.Get("a")
		c.Get("b")
	}
	c.Analyze()

	successors := c.PredictSuccessors("a", 3)
	if len(successors) == 0 {
		t.Fatal("expected at least one predicted successor of a")
	}
	if successors[0].Predicts != "b" {
		t.Errorf("top successor = %s, want b", successors[0].Predicts)
	}
	if successors[0].Confidence <= 0 || successors[0].Confidence > 1 {
		t.Errorf("confidence = %v, want (0,1]", successors[0].Confidence)
	}
}

func TestWarmingPopulatesCache(t *testing.T) {
	c := New(WithWarming(WarmingPattern))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.Start(ctx)
	defer c.Stop()

	err := c.Warm(WarmRequest{
		Key:      "warm-key",
		Priority: 1.0,
		Compute: func(context.Context) (interface{}, error) {
			return "warm-value", nil
		},
	})
	if err != nil {
		t.Fatalf("Warm() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if v, ok := c.Get("warm-key"); ok {
			if v != "warm-value" {
				t.Fatalf("warmed value = %v, want warm-value", v)
			}
			if c.Stats().WarmLoads != 1 {
				t.Errorf("WarmLoads = %d, want 1", c.Stats().WarmLoads)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("warmed entry never appeared")
}

func TestWarmQueueBounded(t *testing.T) {
	// 不启动消费者，队列只进不出
	c := New(WithWarming(WarmingPattern), WithWarmQueueDepth(2))

	compute := func(context.Context) (interface{}, error) { return "v", nil }
	for i, key := range []string{"w1", "w2"} {
		if err := c.Warm(WarmRequest{Key: key, Priority: float64(i), Compute: compute}); err != nil {
			t.Fatalf("Warm(%s) error = %v", key, err)
		}
	}

	err := c.Warm(WarmRequest{Key: "w3", Priority: 9, Compute: compute})
	if !errors.Is(err, coreerrors.ErrWarmQueueFull) {
		t.Errorf("Warm on full queue error = %v, want ErrWarmQueueFull", err)
	}
}

func TestWarmRejectsInvalidRequest(t *testing.T) {
	c := New()

	if err := c.Warm(WarmRequest{Key: ""}); !errors.Is(err, coreerrors.ErrInvalidRequest) {
		t.Errorf("Warm with empty key error = %v, want ErrInvalidRequest", err)
	}
}

func TestStopRejectsFurtherWarms(t *testing.T) {
	c := New(WithWarming(WarmingPattern))
	c.Start(context.Background())
	c.Stop()

	err := c.Warm(WarmRequest{
		Key:     "late",
		Compute: func(context.Context) (interface{}, error) { return "v", nil },
	})
	if !errors.Is(err, coreerrors.ErrCacheClosed) {
		t.Errorf("Warm after Stop error = %v, want ErrCacheClosed", err)
	}
}

func TestDetailedMetricsSnapshot(t *testing.T) {
	c := New(WithWarming(WarmingPattern))
	c.Put("k1", "v1")
	c.Get("k1")
	c.Get("miss")
	c.Analyze()

	m := c.Metrics()
	if m.Entries != 1 {
		t.Errorf("Entries = %d, want 1", m.Entries)
	}
	if m.HitRate != m.Stats.HitRate() {
		t.Error("HitRate field should match Stats.HitRate()")
	}
}
