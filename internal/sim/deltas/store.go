// Package deltas holds the runtime-mutable per-region aspect offsets layered
// on top of static density. The store lives for the whole process and is only
// cleared by an explicit Reset; rule reloads never touch it.
package deltas

import (
	"sort"
	"sync"

	"aetherlib.ai/internal/sim/aspects"
)

type regionDeltas struct {
	mu sync.Mutex
	m  map[aspects.ID]float64
}

// Store is safe for concurrent use. Each region has its own lock, so callers
// working on distinct regions never contend.
type Store struct {
	regions sync.Map // aspects.ID -> *regionDeltas
}

func NewStore() *Store { return &Store{} }

func (s *Store) region(id aspects.ID, create bool) *regionDeltas {
	if v, ok := s.regions.Load(id); ok {
		return v.(*regionDeltas)
	}
	if !create {
		return nil
	}
	v, _ := s.regions.LoadOrStore(id, &regionDeltas{m: map[aspects.ID]float64{}})
	return v.(*regionDeltas)
}

// AddModification sum-merges amount (which may be negative).
func (s *Store) AddModification(region, aspect aspects.ID, amount float64) {
	r := s.region(region, true)
	r.mu.Lock()
	r.m[aspect] += amount
	r.mu.Unlock()
}

// DrainAll subtracts amount from every aspect already tracked for region.
func (s *Store) DrainAll(region aspects.ID, amount float64) {
	r := s.region(region, false)
	if r == nil {
		return
	}
	r.mu.Lock()
	for id := range r.m {
		r.m[id] -= amount
	}
	r.mu.Unlock()
}

func (s *Store) Modification(region, aspect aspects.ID) float64 {
	r := s.region(region, false)
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m[aspect]
}

// Modifications returns a copy of the region's deltas, or false when the
// region has never been touched.
func (s *Store) Modifications(region aspects.ID) (aspects.Density, bool) {
	r := s.region(region, false)
	if r == nil {
		return aspects.Density{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return aspects.VectorOf(r.m), true
}

// Update runs fn against the region's live deltas while holding the region
// lock. fn must not call back into the store.
func (s *Store) Update(region aspects.ID, fn func(m map[aspects.ID]float64)) bool {
	r := s.region(region, false)
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.m)
	return true
}

// Regions lists tracked regions in a stable order.
func (s *Store) Regions() []aspects.ID {
	var out []aspects.ID
	s.regions.Range(func(k, _ any) bool {
		out = append(out, k.(aspects.ID))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return aspects.Less(out[i], out[j]) })
	return out
}

func (s *Store) Reset() {
	s.regions.Range(func(k, _ any) bool {
		s.regions.Delete(k)
		return true
	})
}

// Restore replaces a region's deltas wholesale (snapshot import).
func (s *Store) Restore(region aspects.ID, v aspects.Density) {
	r := s.region(region, true)
	r.mu.Lock()
	r.m = v.Map()
	r.mu.Unlock()
}

// Export copies every region's deltas.
func (s *Store) Export() map[aspects.ID]aspects.Density {
	out := map[aspects.ID]aspects.Density{}
	for _, id := range s.Regions() {
		if v, ok := s.Modifications(id); ok {
			out[id] = v
		}
	}
	return out
}
