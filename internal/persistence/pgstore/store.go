// Package pgstore keeps durable citizen documents in Postgres for colonies
// that share one database.
package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"colonycraft.ai/internal/sim/colony"
)

const driverName = "pgx"

var _ colony.Store = (*Store)(nil)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

type Store struct {
	db *sql.DB
}

// Open connects, pings and makes sure the citizens table exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pgstore: empty dsn")
	}
	openMu.Lock()
	db, err := sqlOpen(driverName, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS citizens (
		colony_id    TEXT   NOT NULL,
		id           TEXT   NOT NULL,
		name         TEXT   NOT NULL,
		doc          JSONB  NOT NULL,
		updated_tick BIGINT NOT NULL,
		PRIMARY KEY (colony_id, id)
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure citizens table: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the pool for integration tests.
func (s *Store) DB() *sql.DB { return s.db }

// SaveCitizens implements colony.Store in a single transaction.
func (s *Store) SaveCitizens(ctx context.Context, colonyID string, tick uint64, docs []colony.CitizenDoc) error {
	if len(docs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO citizens(colony_id,id,name,doc,updated_tick)
		VALUES($1,$2,$3,$4::jsonb,$5)
		ON CONFLICT (colony_id,id) DO UPDATE
		SET name=EXCLUDED.name, doc=EXCLUDED.doc, updated_tick=EXCLUDED.updated_tick`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, d := range docs {
		if _, err := stmt.ExecContext(ctx, colonyID, d.ID.String(), d.Name, string(d.Doc), int64(tick)); err != nil {
			return fmt.Errorf("save citizen %s: %w", d.ID, err)
		}
	}
	return tx.Commit()
}

// LoadCitizens implements colony.Store. Rows whose key is not a uuid come
// back with a nil ID and their raw Key for the colony to quarantine.
func (s *Store) LoadCitizens(ctx context.Context, colonyID string) ([]colony.CitizenDoc, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,name,doc::text FROM citizens WHERE colony_id=$1 ORDER BY id`, colonyID)
	if err != nil {
		return nil, fmt.Errorf("select citizens: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []colony.CitizenDoc
	for rows.Next() {
		var key, name, doc string
		if err := rows.Scan(&key, &name, &doc); err != nil {
			return nil, err
		}
		id, _ := uuid.Parse(key)
		out = append(out, colony.CitizenDoc{ID: id, Name: name, Doc: []byte(doc), Key: key})
	}
	return out, rows.Err()
}

func (s *Store) DeleteCitizen(ctx context.Context, colonyID string, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM citizens WHERE colony_id=$1 AND id=$2`, colonyID, id.String())
	return err
}
