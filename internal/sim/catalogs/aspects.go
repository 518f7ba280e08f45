package catalogs

import (
	"encoding/json"

	"go.uber.org/zap"

	"aetherlib.ai/internal/sim/aspects"
)

type aspectJSON struct {
	Name            string `json:"name"`
	TextureLocation string `json:"texture_location,omitempty"`
	Tier            string `json:"tier,omitempty"`
}

func (l *loader) loadAspects(dir string, out *AspectCatalog) error {
	files, err := readTree(dir)
	if err != nil {
		return fileErr(dir, err)
	}
	out.Digest = digestOf(files)
	out.Entries = make([]aspects.Entry, 0, len(files))

	for _, f := range files {
		id, err := idFromRel(f.rel)
		if err != nil {
			l.skip(f.path, err)
			continue
		}
		if err := validate(schemaAspect, f.raw); err != nil {
			l.skip(f.path, err)
			continue
		}
		var a aspectJSON
		if err := json.Unmarshal(f.raw, &a); err != nil {
			l.skip(f.path, err)
			continue
		}
		tier, err := aspects.ParseTier(a.Tier)
		if err != nil {
			l.skip(f.path, err)
			continue
		}
		out.Entries = append(out.Entries, aspects.Entry{
			ID:  id,
			Def: aspects.Def{Name: a.Name, TextureLocation: a.TextureLocation, Tier: tier},
		})
		l.log.Debug("aspect loaded", zap.Stringer("id", id), zap.String("name", a.Name))
	}
	return nil
}
