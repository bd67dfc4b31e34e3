package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"colonycraft.ai/internal/persistence/indexdb"
	"colonycraft.ai/internal/persistence/pgstore"
	"colonycraft.ai/internal/sim/catalogs"
	"colonycraft.ai/internal/sim/colony"
	"colonycraft.ai/internal/sim/tuning"
)

// runtimeIndex is the secondary read model: audits, snapshot metadata and
// catalogs. It never holds the only copy of anything.
type runtimeIndex interface {
	colony.AuditSink
	colony.SnapshotRecorder
	Close() error
	UpsertCatalogs(ctx context.Context, configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error
}

func openRuntimeIndex(colonyDir, colonyID string, disableDB bool, logger *log.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("CC_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(colonyDir, "index", "colony.sqlite"))
	case "ingest":
		endpoint := strings.TrimSpace(os.Getenv("CC_INDEX_INGEST_URL"))
		if endpoint == "" {
			return nil, fmt.Errorf("CC_INDEX_BACKEND=ingest but CC_INDEX_INGEST_URL is empty")
		}
		return indexdb.OpenIngest(indexdb.IngestConfig{
			Endpoint:      endpoint,
			Token:         strings.TrimSpace(os.Getenv("CC_INDEX_INGEST_TOKEN")),
			ColonyID:      colonyID,
			BatchSize:     envInt("CC_INDEX_INGEST_BATCH_SIZE", 128),
			FlushInterval: time.Duration(envInt("CC_INDEX_INGEST_FLUSH_MS", 500)) * time.Millisecond,
			Logger:        logger,
		})
	default:
		return nil, fmt.Errorf("unsupported CC_INDEX_BACKEND: %s", backend)
	}
}

// citizenStore is where durable citizen documents live.
type citizenStore interface {
	colony.Store
	Close() error
}

// openCitizenStore picks the durable store. The sqlite store shares the
// index database when the index is sqlite too.
func openCitizenStore(ctx context.Context, backend, dsn, colonyDir string, idx runtimeIndex) (citizenStore, bool, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "none", "off", "":
		return nil, false, nil
	case "sqlite":
		if s, ok := idx.(*indexdb.SQLiteIndex); ok {
			return s, false, nil
		}
		s, err := indexdb.OpenSQLite(filepath.Join(colonyDir, "index", "citizens.sqlite"))
		return s, true, err
	case "postgres", "pg":
		if dsn == "" {
			dsn = strings.TrimSpace(os.Getenv("CC_PG_DSN"))
		}
		s, err := pgstore.Open(ctx, dsn)
		return s, true, err
	default:
		return nil, false, fmt.Errorf("unsupported store backend: %s", backend)
	}
}
