package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const (
	Version = 1
	Ext     = ".snap.zst"
)

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed        int64  `json:"seed"`
	TickRate    int    `json:"tick_rate_hz"`
	RulesDigest string `json:"rules_digest"`

	Deltas  []RegionDeltasV1     `json:"deltas"`
	Sources []CorruptionSourceV1 `json:"sources"`
	Nodes   []NodeV1             `json:"nodes"`
}

type AspectAmountV1 struct {
	Aspect string  `json:"aspect"`
	Amount float64 `json:"amount"`
}

type RegionDeltasV1 struct {
	Region  string           `json:"region"`
	Aspects []AspectAmountV1 `json:"aspects"`
}

type CorruptionSourceV1 struct {
	Region   string `json:"region"`
	Pos      [3]int `json:"pos"`
	Strength int    `json:"strength"`
}

type NodeAspectV1 struct {
	ID       string `json:"id"`
	Original int    `json:"original"`
	Current  int    `json:"current"`
}

type RegenCarryV1 struct {
	ID    string  `json:"id"`
	Carry float64 `json:"carry"`
}

type NodeV1 struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Pos         [3]int         `json:"pos"`
	Aspects     []NodeAspectV1 `json:"aspects"`
	Instability int            `json:"instability"`
	Hunger      int            `json:"hunger"`
	Age         int64          `json:"age"`
	Aggressive  bool           `json:"aggressive,omitempty"`
	Regen       []RegenCarryV1 `json:"regen,omitempty"`
}

// FileName is the canonical snapshot file name for tick.
func FileName(tick uint64) string { return fmt.Sprintf("%d%s", tick, Ext) }

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("header: %w", err)
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the leading JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	return h, nil
}

// List returns the ticks of every snapshot in dir, ascending.
func List(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ticks []uint64
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, Ext) {
			continue
		}
		t, err := strconv.ParseUint(strings.TrimSuffix(name, Ext), 10, 64)
		if err != nil {
			continue
		}
		ticks = append(ticks, t)
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })
	return ticks, nil
}

// Latest returns the path of the highest-tick snapshot in dir.
func Latest(dir string) (string, bool, error) {
	ticks, err := List(dir)
	if err != nil || len(ticks) == 0 {
		return "", false, err
	}
	return filepath.Join(dir, FileName(ticks[len(ticks)-1])), true, nil
}
