package aspects

import "sort"

// Def describes a loaded aspect.
type Def struct {
	Name            string
	TextureLocation string
	Tier            Tier
}

// Texture falls back to the conventional icon path under the aspect's namespace.
func (d Def) Texture(id ID) string {
	if d.TextureLocation != "" {
		return d.TextureLocation
	}
	return id.Namespace() + ":textures/aspects_icons/" + id.Path() + ".png"
}

// Entry is one registry row.
type Entry struct {
	ID  ID
	Def Def
}

// Registry maps display names and ids to definitions. It is immutable once
// built and safe for concurrent reads.
type Registry struct {
	byID   map[ID]Def
	byName map[string]ID
}

func NewRegistry(entries []Entry) *Registry {
	r := &Registry{
		byID:   make(map[ID]Def, len(entries)),
		byName: make(map[string]ID, len(entries)),
	}
	for _, e := range entries {
		if e.ID.IsZero() {
			continue
		}
		r.byID[e.ID] = e.Def
		if e.Def.Name != "" {
			r.byName[e.Def.Name] = e.ID
		}
	}
	return r
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.byID)
}

func (r *Registry) Lookup(name string) (ID, bool) {
	if r == nil {
		return ID{}, false
	}
	id, ok := r.byName[name]
	return id, ok
}

func (r *Registry) Def(id ID) (Def, bool) {
	if r == nil {
		return Def{}, false
	}
	d, ok := r.byID[id]
	return d, ok
}

// Names returns the name mapping ordered by name.
func (r *Registry) Names() []NameEntry {
	if r == nil {
		return nil
	}
	out := make([]NameEntry, 0, len(r.byName))
	for name, id := range r.byName {
		out = append(out, NameEntry{Name: name, ID: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Entries returns definitions ordered by id.
func (r *Registry) Entries() []Entry {
	if r == nil {
		return nil
	}
	out := make([]Entry, 0, len(r.byID))
	for id, d := range r.byID {
		out = append(out, Entry{ID: id, Def: d})
	}
	sort.Slice(out, func(i, j int) bool { return Less(out[i].ID, out[j].ID) })
	return out
}

// Tiers groups the registered aspects by tier. Aspects without a tier are
// left out.
func (r *Registry) Tiers() TierTable {
	var t TierTable
	for _, e := range r.Entries() {
		if e.Def.Tier == TierNone {
			continue
		}
		t[e.Def.Tier-1] = append(t[e.Def.Tier-1], e.ID)
	}
	return t
}

type NameEntry struct {
	Name string
	ID   ID
}
