package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"citydev.io/internal/persistence/indexdb"
	"citydev.io/internal/sim/world"
)

// openIndex picks the read-model backend. A nil *Index is valid and every
// method on it is a no-op.
func openIndex(ctx context.Context, worldDir string, disableDB bool) (*indexdb.Index, error) {
	if disableDB {
		return nil, nil
	}
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("CD_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}
	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(worldDir, "index", "world.sqlite"))
	case "postgres", "pg":
		dsn := strings.TrimSpace(os.Getenv("CD_INDEX_POSTGRES_DSN"))
		if dsn == "" {
			return nil, fmt.Errorf("CD_INDEX_BACKEND=postgres but CD_INDEX_POSTGRES_DSN is empty")
		}
		return indexdb.OpenPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported CD_INDEX_BACKEND: %s", backend)
	}
}

type multiTickLogger []world.TickLogger

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	var first error
	for _, l := range m {
		if l == nil {
			continue
		}
		if err := l.WriteTick(entry); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type multiAuditLogger []world.AuditLogger

func (m multiAuditLogger) WriteAudit(entry world.AuditEntry) error {
	var first error
	for _, l := range m {
		if l == nil {
			continue
		}
		if err := l.WriteAudit(entry); err != nil && first == nil {
			first = err
		}
	}
	return first
}
