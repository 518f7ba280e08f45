// Package catalogs loads the aspect, density and resonance rule files from a
// config directory. Malformed entries are logged and skipped; only I/O
// failures abort a load.
package catalogs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"aetherlib.ai/internal/sim/aspects"
	"aetherlib.ai/internal/sim/density"
	"aetherlib.ai/internal/sim/resonance"
)

const (
	dirAspects    = "aspects"
	dirRegions    = "densities/region"
	dirStructures = "densities/structure"
	dirResonance  = "resonance"
)

type Catalogs struct {
	Aspects   AspectCatalog
	Densities DensityCatalog
	Resonance ResonanceCatalog

	// Skipped lists entries that failed validation or decoding.
	Skipped []EntryError
	Digest  string
}

type AspectCatalog struct {
	Entries []aspects.Entry
	Digest  string
}

type DensityCatalog struct {
	Regions         density.Table
	Structures      density.ModifierTable
	RegionDigest    string
	StructureDigest string
}

type ResonanceCatalog struct {
	Rules  []resonance.Rule
	Digest string
}

// EntryError describes one skipped catalog entry.
type EntryError struct {
	File string
	Err  error
}

func (e EntryError) Error() string { return e.File + ": " + e.Err.Error() }
func (e EntryError) Unwrap() error { return e.Err }

func Load(configDir string, log *zap.Logger) (*Catalogs, error) {
	if log == nil {
		log = zap.NewNop()
	}
	l := &loader{log: log}
	var c Catalogs

	if err := l.loadAspects(filepath.Join(configDir, dirAspects), &c.Aspects); err != nil {
		return nil, err
	}
	if err := l.loadRegions(filepath.Join(configDir, filepath.FromSlash(dirRegions)), &c.Densities); err != nil {
		return nil, err
	}
	if err := l.loadStructures(filepath.Join(configDir, filepath.FromSlash(dirStructures)), &c.Densities); err != nil {
		return nil, err
	}
	if err := l.loadResonance(filepath.Join(configDir, dirResonance), &c.Resonance); err != nil {
		return nil, err
	}

	c.Skipped = l.skipped
	c.Digest = sha256Hex([]byte(strings.Join([]string{
		c.Aspects.Digest,
		c.Densities.RegionDigest,
		c.Densities.StructureDigest,
		c.Resonance.Digest,
	}, "\n")))

	log.Info("catalogs loaded",
		zap.String("dir", configDir),
		zap.Int("aspects", len(c.Aspects.Entries)),
		zap.Int("regions", len(c.Densities.Regions)),
		zap.Int("structures", len(c.Densities.Structures)),
		zap.Int("resonance_rules", len(c.Resonance.Rules)),
		zap.Int("skipped", len(c.Skipped)),
	)
	return &c, nil
}

// Registry builds the aspect registry for this generation.
func (c *Catalogs) Registry() *aspects.Registry {
	return aspects.NewRegistry(c.Aspects.Entries)
}

// Rules builds the density rule snapshot for this generation.
func (c *Catalogs) Rules() *density.Rules {
	return &density.Rules{
		Densities: c.Densities.Regions,
		Modifiers: c.Densities.Structures,
		Digest:    c.Digest,
	}
}

func (c *Catalogs) ResonanceTable() *resonance.Table {
	return resonance.NewTable(c.Resonance.Rules)
}

type loader struct {
	log     *zap.Logger
	skipped []EntryError
}

func (l *loader) skip(file string, err error) {
	l.log.Warn("skipping catalog entry", zap.String("file", file), zap.Error(err))
	l.skipped = append(l.skipped, EntryError{File: file, Err: err})
}

type jsonFile struct {
	path string
	rel  string
	raw  []byte
}

// readTree returns every .json file under dir in path order. A missing dir
// yields no files.
func readTree(dir string) ([]jsonFile, error) {
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), ".json") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	out := make([]jsonFile, 0, len(paths))
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return nil, err
		}
		out = append(out, jsonFile{path: p, rel: filepath.ToSlash(rel), raw: b})
	}
	return out, nil
}

func digestOf(files []jsonFile) string {
	var concat bytes.Buffer
	for _, f := range files {
		concat.WriteString(f.rel)
		concat.WriteByte('\n')
		concat.Write(f.raw)
		concat.WriteByte('\n')
	}
	return sha256Hex(concat.Bytes())
}

// idFromRel maps "<ns>/<path>.json" to ns:path. Files directly under the
// root take the default namespace.
func idFromRel(rel string) (aspects.ID, error) {
	rel = strings.TrimSuffix(rel, ".json")
	ns, path, ok := strings.Cut(rel, "/")
	if !ok {
		ns, path = aspects.DefaultNamespace, rel
	}
	return aspects.NewID(ns, path)
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func fileErr(rel string, err error) error {
	return fmt.Errorf("%s: %w", rel, err)
}
