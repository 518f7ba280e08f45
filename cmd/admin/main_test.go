package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	persistlog "aetherlib.ai/internal/persistence/log"
	"aetherlib.ai/internal/persistence/snapshot"
	"aetherlib.ai/internal/sim/aether"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("%v: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func TestSnapshotsInspect_Latest(t *testing.T) {
	data := t.TempDir()
	dir := filepath.Join(data, "worlds", "w1", "snapshots")
	for _, tick := range []uint64{10, 20} {
		snap := snapshot.SnapshotV1{
			Header: snapshot.Header{Version: 1, WorldID: "w1", Tick: tick},
			Seed:   7,
			Deltas: []snapshot.RegionDeltasV1{{
				Region:  "aetherlib:plains",
				Aspects: []snapshot.AspectAmountV1{{Aspect: "aetherlib:vitium", Amount: 3}},
			}},
		}
		if err := snapshot.WriteSnapshot(filepath.Join(dir, snapshot.FileName(tick)), snap); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	out := run(t, "snapshots", "inspect", "--data", data, "--world", "w1")
	if !strings.Contains(out, "tick=20") || !strings.Contains(out, "aetherlib:vitium=3") {
		t.Fatalf("unexpected inspect output:\n%s", out)
	}
}

func TestEvents_FiltersKind(t *testing.T) {
	data := t.TempDir()
	wd := filepath.Join(data, "worlds", "w2")
	tl := persistlog.NewTickLogger(wd)
	entries := []aether.TickLogEntry{
		{Tick: 1, Events: []aether.Event{{Kind: "EXPLOSION", NodeID: "n1"}}},
		{Tick: 2, Events: []aether.Event{{Kind: "NODE_TERMINATED", NodeID: "n1", Reason: "exploded"}}},
	}
	for _, e := range entries {
		if err := tl.WriteTick(e); err != nil {
			t.Fatalf("write tick: %v", err)
		}
	}
	if err := tl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	out := run(t, "events", "--data", data, "--world", "w2", "--kind", "explosion")
	if !strings.Contains(out, "EXPLOSION") || strings.Contains(out, "NODE_TERMINATED") {
		t.Fatalf("unexpected events output:\n%s", out)
	}
}

func TestHTTPCommands_BuildRequests(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		got = append(got, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)
		_, _ = rw.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	run(t, "report", "--url", srv.URL, "--x", "5", "--y", "70", "--z", "-3")
	run(t, "inject", "--url", srv.URL, "--x", "1", "--y", "64", "--z", "1", "--amount", "2.5")
	run(t, "nodes", "remove", "n9", "--url", srv.URL)

	want := []string{
		"GET /admin/v1/density?x=5&y=70&z=-3",
		"POST /admin/v1/corruption?amount=2.5&x=1&y=64&z=1",
		"DELETE /admin/v1/nodes?id=n9",
	}
	if len(got) != len(want) {
		t.Fatalf("requests=%v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("request %d: got %q want %q", i, got[i], want[i])
		}
	}
}
