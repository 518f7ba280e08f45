package catalogs

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"aetherlib.ai/internal/sim/aspects"
	"aetherlib.ai/internal/sim/density"
)

func (l *loader) loadRegions(dir string, out *DensityCatalog) error {
	files, err := readTree(dir)
	if err != nil {
		return fileErr(dir, err)
	}
	out.RegionDigest = digestOf(files)
	out.Regions = density.Table{}

	for _, f := range files {
		id, err := idFromRel(f.rel)
		if err != nil {
			l.skip(f.path, err)
			continue
		}
		if err := validate(schemaRegion, f.raw); err != nil {
			l.skip(f.path, err)
			continue
		}
		_, values, err := l.decodeValues(f.path, f.raw)
		if err != nil {
			l.skip(f.path, err)
			continue
		}
		out.Regions[id] = values
	}
	return nil
}

func (l *loader) loadStructures(dir string, out *DensityCatalog) error {
	files, err := readTree(dir)
	if err != nil {
		return fileErr(dir, err)
	}
	out.StructureDigest = digestOf(files)
	out.Structures = density.ModifierTable{}

	for _, f := range files {
		id, err := idFromRel(f.rel)
		if err != nil {
			l.skip(f.path, err)
			continue
		}
		if err := validate(schemaStructure, f.raw); err != nil {
			l.skip(f.path, err)
			continue
		}
		opName, values, err := l.decodeValues(f.path, f.raw)
		if err != nil {
			l.skip(f.path, err)
			continue
		}
		op, err := density.ParseOperation(opName)
		if err != nil {
			l.log.Warn("unknown modifier operation, using add",
				zap.String("file", f.path), zap.String("operation", opName))
			op = density.OpAdd
		}
		out.Structures[id] = density.Modifier{Operation: op, Values: values}
	}
	return nil
}

// decodeValues accepts values either under "values" or inline beside an
// optional "operation" key. Keys that are not valid aspect ids are dropped.
func (l *loader) decodeValues(file string, raw []byte) (string, aspects.Density, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", aspects.Density{}, err
	}
	var op string
	if b, ok := obj["operation"]; ok {
		if err := json.Unmarshal(b, &op); err != nil {
			return "", aspects.Density{}, fmt.Errorf("operation: %w", err)
		}
		delete(obj, "operation")
	}
	nums := map[string]float64{}
	if b, ok := obj["values"]; ok {
		if err := json.Unmarshal(b, &nums); err != nil {
			return "", aspects.Density{}, fmt.Errorf("values: %w", err)
		}
	} else {
		for k, b := range obj {
			var n float64
			if err := json.Unmarshal(b, &n); err != nil {
				return "", aspects.Density{}, fmt.Errorf("%s: %w", k, err)
			}
			nums[k] = n
		}
	}

	out := aspects.NewVector[float64](len(nums))
	for k, n := range nums {
		id, err := aspects.ParseID(k)
		if err != nil {
			l.log.Warn("dropping invalid aspect id", zap.String("file", file), zap.String("key", k), zap.Error(err))
			continue
		}
		out.Put(id, n)
	}
	return op, out, nil
}
