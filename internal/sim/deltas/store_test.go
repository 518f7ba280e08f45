package deltas

import (
	"sync"
	"testing"

	"aetherlib.ai/internal/sim/aspects"
)

var (
	plains = aspects.MustID("minecraft:plains")
	desert = aspects.MustID("minecraft:desert")
	terra  = aspects.MustID("terra")
	aqua   = aspects.MustID("aqua")
	ignis  = aspects.MustID("ignis")
)

func TestStore_AddModificationSums(t *testing.T) {
	s := NewStore()
	s.AddModification(plains, terra, 2)
	s.AddModification(plains, terra, -0.5)
	if got := s.Modification(plains, terra); got != 1.5 {
		t.Fatalf("got %v want 1.5", got)
	}
	if _, ok := s.Modifications(desert); ok {
		t.Fatalf("untouched region should be absent")
	}
}

func TestStore_AddModificationOrderIndependent(t *testing.T) {
	amounts := []float64{1, -3, 0.25, 7, -2}

	a := NewStore()
	for _, n := range amounts {
		a.AddModification(plains, terra, n)
	}
	b := NewStore()
	for i := len(amounts) - 1; i >= 0; i-- {
		b.AddModification(plains, terra, amounts[i])
	}
	if a.Modification(plains, terra) != b.Modification(plains, terra) {
		t.Fatalf("order changed result: %v vs %v", a.Modification(plains, terra), b.Modification(plains, terra))
	}
}

func TestStore_DrainAllOnlyTrackedAspects(t *testing.T) {
	s := NewStore()
	s.AddModification(plains, terra, 10)
	s.AddModification(plains, aqua, 1)
	s.AddModification(desert, terra, 10)

	s.DrainAll(plains, 5)

	if got := s.Modification(plains, terra); got != 5 {
		t.Fatalf("terra: got %v want 5", got)
	}
	if got := s.Modification(plains, aqua); got != -4 {
		t.Fatalf("aqua: got %v want -4", got)
	}
	m, _ := s.Modifications(plains)
	if m.Has(ignis) {
		t.Fatalf("drain must not create untracked aspects")
	}
	if got := s.Modification(desert, terra); got != 10 {
		t.Fatalf("other region touched: %v", got)
	}

	s.DrainAll(aspects.MustID("minecraft:ocean"), 5)
	if _, ok := s.Modifications(aspects.MustID("minecraft:ocean")); ok {
		t.Fatalf("drain must not create regions")
	}
}

func TestStore_ConcurrentAdds(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			region := plains
			if i%2 == 1 {
				region = desert
			}
			for k := 0; k < 1000; k++ {
				s.AddModification(region, terra, 1)
			}
		}(i)
	}
	wg.Wait()
	if got := s.Modification(plains, terra); got != 8000 {
		t.Fatalf("plains: got %v want 8000", got)
	}
	if got := s.Modification(desert, terra); got != 8000 {
		t.Fatalf("desert: got %v want 8000", got)
	}
}

func TestStore_ResetAndRestore(t *testing.T) {
	s := NewStore()
	s.AddModification(plains, terra, 3)
	exported := s.Export()

	s.Reset()
	if len(s.Regions()) != 0 {
		t.Fatalf("reset left regions behind")
	}

	for id, v := range exported {
		s.Restore(id, v)
	}
	if got := s.Modification(plains, terra); got != 3 {
		t.Fatalf("restore: got %v", got)
	}
}
