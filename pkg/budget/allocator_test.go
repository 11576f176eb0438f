package budget

import (
	"errors"
	"testing"

	coreerrors "github.com/easyops/agentcontext-go/pkg/core/errors"
)

func TestNewTokenBudget_Invariant(t *testing.T) {
	_, err := NewTokenBudget(100, map[Category]int{
		CategoryPrimary: 80,
		CategoryHistory: 40,
	})
	if err == nil {
		t.Fatal("expected error when allocations exceed total")
	}

	b, err := NewTokenBudget(100, map[Category]int{
		CategoryPrimary: 60,
		CategoryHistory: 30,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Allocated() != 90 {
		t.Errorf("Allocated() = %d, want 90", b.Allocated())
	}
}

func TestNewTokenBudget_InvalidTotal(t *testing.T) {
	_, err := NewTokenBudget(0, nil)
	if !errors.Is(err, coreerrors.ErrInvalidCeiling) {
		t.Errorf("expected ErrInvalidCeiling, got %v", err)
	}
}

func TestAllocator_CodeAgentSplit(t *testing.T) {
	allocator := NewAllocator()

	b, err := allocator.Allocate(1000, "code", PhaseNone, nil)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	// code 角色基础分配 45/20/20/10/5：主任务约 450
	primary := b.Get(CategoryPrimary)
	if primary < 400 || primary > 500 {
		t.Errorf("primary allocation = %d, want ~450", primary)
	}

	if b.Allocated() > b.Total {
		t.Errorf("allocations sum %d exceeds total %d", b.Allocated(), b.Total)
	}
}

func TestAllocator_SumNeverExceedsTotal(t *testing.T) {
	allocator := NewAllocator()

	totals := []int{100, 500, 1000, 8000, 100000}
	roles := []string{"code", "test", "design", "review", "unknown"}
	phases := []Phase{PhaseNone, PhaseRed, PhaseGreen, PhaseRefactor}

	for _, total := range totals {
		for _, role := range roles {
			for _, phase := range phases {
				b, err := allocator.Allocate(total, role, phase, nil)
				if err != nil {
					t.Fatalf("Allocate(%d, %s, %s) failed: %v", total, role, phase, err)
				}
				if b.Allocated() > b.Total {
					t.Errorf("Allocate(%d, %s, %s): sum %d > total %d",
						total, role, phase, b.Allocated(), b.Total)
				}
			}
		}
	}
}

func TestAllocator_InvalidCeiling(t *testing.T) {
	allocator := NewAllocator()

	for _, total := range []int{0, -1, -1000} {
		_, err := allocator.Allocate(total, "code", PhaseNone, nil)
		if !errors.Is(err, coreerrors.ErrInvalidCeiling) {
			t.Errorf("Allocate(%d): expected ErrInvalidCeiling, got %v", total, err)
		}
	}
}

func TestAllocator_FocusHint(t *testing.T) {
	allocator := NewAllocator()

	plain, err := allocator.Allocate(10000, "code", PhaseNone, nil)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	focused, err := allocator.Allocate(10000, "code", PhaseNone, &Hints{
		FocusAreas: []Category{CategoryDependency},
	})
	if err != nil {
		t.Fatalf("Allocate with hints failed: %v", err)
	}

	if focused.Get(CategoryDependency) <= plain.Get(CategoryDependency) {
		t.Errorf("focus hint should increase dependency allocation: %d <= %d",
			focused.Get(CategoryDependency), plain.Get(CategoryDependency))
	}
	if focused.Allocated() > focused.Total {
		t.Errorf("focused allocations exceed total")
	}
}

func TestAllocator_MinimumsEnforced(t *testing.T) {
	allocator := NewAllocator(WithProfile("tiny", &RoleProfile{
		BaseSplit: map[Category]float64{
			CategoryPrimary:     0.95,
			CategoryHistory:     0.01,
			CategoryDependency:  0.01,
			CategoryAgentMemory: 0.01,
			CategoryBuffer:      0.02,
		},
		Minimums: map[Category]int{
			CategoryPrimary:     200,
			CategoryHistory:     100,
			CategoryDependency:  100,
			CategoryAgentMemory: 50,
			CategoryBuffer:      25,
		},
	}))

	b, err := allocator.Allocate(10000, "tiny", PhaseNone, nil)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	if b.Get(CategoryHistory) < 100 {
		t.Errorf("history %d below floor 100", b.Get(CategoryHistory))
	}
	if b.Get(CategoryDependency) < 100 {
		t.Errorf("dependency %d below floor 100", b.Get(CategoryDependency))
	}
	if b.Allocated() > b.Total {
		t.Errorf("allocations sum %d exceeds total %d", b.Allocated(), b.Total)
	}
}

func TestAllocator_FeedbackIsBoundedAndDeterministic(t *testing.T) {
	makeAllocator := func() *Allocator {
		allocator := NewAllocator()
		b, err := allocator.Allocate(10000, "code", PhaseNone, nil)
		if err != nil {
			t.Fatalf("Allocate failed: %v", err)
		}
		// 历史类别几乎没用，主任务类别用满
		usage := NewTokenUsage()
		usage.Set(CategoryPrimary, b.Get(CategoryPrimary))
		usage.Set(CategoryHistory, b.Get(CategoryHistory)/10)
		usage.Set(CategoryDependency, b.Get(CategoryDependency)/2)
		allocator.RecordUsage("code", b, usage)
		return allocator
	}

	first := makeAllocator()
	second := makeAllocator()

	baseline := NewAllocator()
	base, _ := baseline.Allocate(10000, "code", PhaseNone, nil)

	adjusted1, err := first.Allocate(10000, "code", PhaseNone, nil)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	adjusted2, err := second.Allocate(10000, "code", PhaseNone, nil)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	// 确定性：同样的历史产生同样的分配
	for _, category := range Categories {
		if adjusted1.Get(category) != adjusted2.Get(category) {
			t.Errorf("feedback not deterministic for %s: %d vs %d",
				category, adjusted1.Get(category), adjusted2.Get(category))
		}
	}

	// 低用量类别收缩
	if adjusted1.Get(CategoryHistory) >= base.Get(CategoryHistory) {
		t.Errorf("under-used history should shrink: %d >= %d",
			adjusted1.Get(CategoryHistory), base.Get(CategoryHistory))
	}

	// 调整幅度不超过 ±30%（忽略下限修正的边界）
	lowest := int(float64(base.Get(CategoryHistory)) * 0.65)
	if adjusted1.Get(CategoryHistory) < lowest && adjusted1.Get(CategoryHistory) > defaultMinimums[CategoryHistory] {
		t.Errorf("history shrank more than 30%%: %d < %d", adjusted1.Get(CategoryHistory), lowest)
	}
}

func TestTokenUsage_Efficiency(t *testing.T) {
	b, err := NewTokenBudget(1000, map[Category]int{
		CategoryPrimary: 500,
		CategoryHistory: 300,
		CategoryBuffer:  100,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	usage := NewTokenUsage()
	usage.Set(CategoryPrimary, 450)
	usage.Set(CategoryHistory, 0)

	got := usage.Efficiency(b)
	want := 450.0 / 900.0
	if got < want-0.001 || got > want+0.001 {
		t.Errorf("Efficiency() = %f, want %f", got, want)
	}
}

func TestAllocator_HistoryWindow(t *testing.T) {
	allocator := NewAllocator(WithHistoryWindow(3))
	b, _ := allocator.Allocate(1000, "code", PhaseNone, nil)

	for i := 0; i < 10; i++ {
		usage := NewTokenUsage()
		usage.Set(CategoryPrimary, 100)
		allocator.RecordUsage("code", b, usage)
	}

	if got := allocator.HistoryLen("code"); got != 3 {
		t.Errorf("HistoryLen = %d, want 3", got)
	}
}
