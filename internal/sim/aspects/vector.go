package aspects

import "sort"

// Number covers world densities (float64) and entity/item levels (int).
type Number interface {
	~int | ~float64
}

// Combinator merges an existing amount with an incoming delta.
type Combinator[N Number] func(old, delta N) N

func Sum[N Number](old, delta N) N     { return old + delta }
func Product[N Number](old, delta N) N { return old * delta }
func Replace[N Number](_, delta N) N   { return delta }

// Vector is a sparse aspect -> amount mapping. The zero value is an empty
// vector ready for use.
type Vector[N Number] struct {
	m map[ID]N
}

// Density is the world-density flavour of Vector.
type Density = Vector[float64]

// Levels is the entity/item flavour of Vector.
type Levels = Vector[int]

func NewVector[N Number](capacity int) Vector[N] {
	return Vector[N]{m: make(map[ID]N, capacity)}
}

// VectorOf copies src.
func VectorOf[N Number](src map[ID]N) Vector[N] {
	v := NewVector[N](len(src))
	for id, n := range src {
		v.m[id] = n
	}
	return v
}

func (v Vector[N]) Get(id ID) N {
	return v.m[id]
}

func (v Vector[N]) Has(id ID) bool {
	_, ok := v.m[id]
	return ok
}

func (v Vector[N]) Len() int      { return len(v.m) }
func (v Vector[N]) IsEmpty() bool { return len(v.m) == 0 }

func (v *Vector[N]) ensure() {
	if v.m == nil {
		v.m = make(map[ID]N)
	}
}

// Merge combines delta into id. Missing entries start at zero; the result is
// stored even when non-positive.
func (v *Vector[N]) Merge(id ID, delta N, combine Combinator[N]) {
	v.ensure()
	old, ok := v.m[id]
	if !ok {
		v.m[id] = delta
		return
	}
	v.m[id] = combine(old, delta)
}

// Set stores n, removing the entry when n <= 0.
func (v *Vector[N]) Set(id ID, n N) {
	if n <= 0 {
		delete(v.m, id)
		return
	}
	v.ensure()
	v.m[id] = n
}

// Put stores n unconditionally.
func (v *Vector[N]) Put(id ID, n N) {
	v.ensure()
	v.m[id] = n
}

func (v *Vector[N]) Delete(id ID) {
	delete(v.m, id)
}

// Update applies fn to id only when it is present.
func (v *Vector[N]) Update(id ID, fn func(N) N) bool {
	old, ok := v.m[id]
	if !ok {
		return false
	}
	v.m[id] = fn(old)
	return true
}

// Range stops when fn returns false.
func (v Vector[N]) Range(fn func(id ID, n N) bool) {
	for id, n := range v.m {
		if !fn(id, n) {
			return
		}
	}
}

// IDs returns the keys in a stable order.
func (v Vector[N]) IDs() []ID {
	out := make([]ID, 0, len(v.m))
	for id := range v.m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out
}

func (v Vector[N]) Total() N {
	var t N
	for _, n := range v.m {
		t += n
	}
	return t
}

func (v Vector[N]) Clone() Vector[N] {
	return VectorOf(v.m)
}

// Map returns a copy of the underlying mapping.
func (v Vector[N]) Map() map[ID]N {
	out := make(map[ID]N, len(v.m))
	for id, n := range v.m {
		out[id] = n
	}
	return out
}

func (v Vector[N]) Equal(o Vector[N]) bool {
	if len(v.m) != len(o.m) {
		return false
	}
	for id, n := range v.m {
		on, ok := o.m[id]
		if !ok || on != n {
			return false
		}
	}
	return true
}

// Prune drops every non-positive entry.
func (v *Vector[N]) Prune() {
	for id, n := range v.m {
		if n <= 0 {
			delete(v.m, id)
		}
	}
}

// StringKeys renders the vector with string keys, for JSON output.
func (v Vector[N]) StringKeys() map[string]N {
	out := make(map[string]N, len(v.m))
	for id, n := range v.m {
		out[id.String()] = n
	}
	return out
}
