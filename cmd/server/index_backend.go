package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"aetherlib.ai/internal/persistence/indexdb"
	"aetherlib.ai/internal/sim/aether"
)

func openRuntimeIndex(worldDir, backend string, disableDB bool, logger *zap.Logger) (*indexdb.SQLiteIndex, error) {
	if disableDB {
		return nil, nil
	}
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "none", "off", "disabled":
		return nil, nil
	case "", "sqlite":
		return indexdb.OpenSQLite(filepath.Join(worldDir, "index", "world.sqlite"), logger)
	default:
		return nil, fmt.Errorf("unsupported AETHER_INDEX_BACKEND: %s", backend)
	}
}

// indexOrNil avoids handing a typed nil pointer to the fan-out loggers.
func indexOrNil(idx *indexdb.SQLiteIndex) interface {
	aether.TickLogger
	aether.AuditLogger
} {
	if idx == nil {
		return nil
	}
	return idx
}

type multiTickLogger struct {
	a, b aether.TickLogger
}

func (m multiTickLogger) WriteTick(e aether.TickLogEntry) error {
	var errs []error
	for _, l := range []aether.TickLogger{m.a, m.b} {
		if l != nil {
			errs = append(errs, l.WriteTick(e))
		}
	}
	return errors.Join(errs...)
}

type multiAuditLogger struct {
	a, b aether.AuditLogger
}

func (m multiAuditLogger) WriteAudit(e aether.AuditEntry) error {
	var errs []error
	for _, l := range []aether.AuditLogger{m.a, m.b} {
		if l != nil {
			errs = append(errs, l.WriteAudit(e))
		}
	}
	return errors.Join(errs...)
}
