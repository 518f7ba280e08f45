package catalogs

import (
	"bytes"
	"encoding/json"
	"fmt"

	"aetherlib.ai/internal/sim/aspects"
	"aetherlib.ai/internal/sim/resonance"
)

type resonanceJSON struct {
	Aspect1 string   `json:"aspect1"`
	Aspect2 string   `json:"aspect2"`
	Type    string   `json:"type"`
	Factor  *float64 `json:"factor,omitempty"`
}

func (r resonanceJSON) rule() (resonance.Rule, error) {
	a, err := aspects.ParseID(r.Aspect1)
	if err != nil {
		return resonance.Rule{}, fmt.Errorf("aspect1: %w", err)
	}
	b, err := aspects.ParseID(r.Aspect2)
	if err != nil {
		return resonance.Rule{}, fmt.Errorf("aspect2: %w", err)
	}
	kind, err := resonance.ParseKind(r.Type)
	if err != nil {
		return resonance.Rule{}, err
	}
	factor := resonance.DefaultFactor
	if r.Factor != nil {
		factor = *r.Factor
	}
	return resonance.Rule{A: a, B: b, Kind: kind, Factor: factor}, nil
}

func (l *loader) loadResonance(dir string, out *ResonanceCatalog) error {
	files, err := readTree(dir)
	if err != nil {
		return fileErr(dir, err)
	}
	out.Digest = digestOf(files)
	out.Rules = nil

	for _, f := range files {
		if err := validate(schemaResonance, f.raw); err != nil {
			l.skip(f.path, err)
			continue
		}
		var entries []resonanceJSON
		if trimmed := bytes.TrimSpace(f.raw); len(trimmed) > 0 && trimmed[0] == '[' {
			err = json.Unmarshal(trimmed, &entries)
		} else {
			var one resonanceJSON
			err = json.Unmarshal(trimmed, &one)
			entries = []resonanceJSON{one}
		}
		if err != nil {
			l.skip(f.path, err)
			continue
		}
		for i, e := range entries {
			r, err := e.rule()
			if err != nil {
				l.skip(fmt.Sprintf("%s#%d", f.path, i), err)
				continue
			}
			out.Rules = append(out.Rules, r)
		}
	}
	return nil
}
