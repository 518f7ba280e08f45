package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"aetherlib.ai/internal/sim/aether"
)

func TestServerEnv_AdminEnabled(t *testing.T) {
	on, off := true, false
	cases := []struct {
		name string
		env  serverEnv
		want bool
	}{
		{"dev default", serverEnv{}, true},
		{"production default", serverEnv{DeployEnv: "Production"}, false},
		{"staging default", serverEnv{DeployEnv: "staging"}, false},
		{"explicit on", serverEnv{DeployEnv: "production", AdminHTTP: &on}, true},
		{"explicit off", serverEnv{AdminHTTP: &off}, false},
	}
	for _, tc := range cases {
		if got := tc.env.adminEnabled(); got != tc.want {
			t.Fatalf("%s: adminEnabled=%v want %v", tc.name, got, tc.want)
		}
	}
}

func TestOpenRuntimeIndex(t *testing.T) {
	dir := t.TempDir()
	if idx, err := openRuntimeIndex(dir, "sqlite", true, zap.NewNop()); err != nil || idx != nil {
		t.Fatalf("disabled: idx=%v err=%v", idx, err)
	}
	if idx, err := openRuntimeIndex(dir, "none", false, zap.NewNop()); err != nil || idx != nil {
		t.Fatalf("none: idx=%v err=%v", idx, err)
	}
	if _, err := openRuntimeIndex(dir, "d1", false, zap.NewNop()); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	idx, err := openRuntimeIndex(dir, "", false, zap.NewNop())
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	defer idx.Close()
	if idx == nil {
		t.Fatalf("expected sqlite index")
	}
	if _, err := os.Stat(filepath.Join(dir, "index", "world.sqlite")); err != nil {
		t.Fatalf("stat index: %v", err)
	}
}

type countingLogger struct {
	ticks, audits int
	err           error
}

func (c *countingLogger) WriteTick(aether.TickLogEntry) error { c.ticks++; return c.err }
func (c *countingLogger) WriteAudit(aether.AuditEntry) error  { c.audits++; return c.err }

func TestMultiLoggers_FanOut(t *testing.T) {
	a := &countingLogger{}
	boom := errors.New("boom")
	b := &countingLogger{err: boom}

	ml := multiTickLogger{a: a, b: b}
	if err := ml.WriteTick(aether.TickLogEntry{Tick: 1}); !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	ma := multiAuditLogger{a: a, b: indexOrNil(nil)}
	if err := ma.WriteAudit(aether.AuditEntry{Tick: 1}); err != nil {
		t.Fatalf("audit: %v", err)
	}
	if a.ticks != 1 || b.ticks != 1 || a.audits != 1 {
		t.Fatalf("counts a=%+v b=%+v", a, b)
	}
}
