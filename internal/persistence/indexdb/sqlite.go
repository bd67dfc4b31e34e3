package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"colonycraft.ai/internal/sim/catalogs"
	"colonycraft.ai/internal/sim/colony"
	"colonycraft.ai/internal/sim/tuning"
)

var ErrClosed = errors.New("indexdb: closed")

// SQLiteIndex is the citizen store plus a secondary index of audits and
// snapshots. Every statement runs on one writer goroutine; citizen saves and
// loads wait for their result, audit and snapshot rows are fire-and-forget.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once
	mu   sync.RWMutex // guards sends on ch against Close

	closed atomic.Bool

	dropAudit    atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqAudit reqKind = iota + 1
	reqSnapshot
	reqExec
)

type req struct {
	kind reqKind

	audit    colony.AuditEntry
	snapshot snapshotRow

	// reqExec: fn runs in its own transaction after any batched writes are
	// committed; the result goes to resp.
	fn   func(*sql.Tx) error
	resp chan error
}

type snapshotRow struct {
	ColonyID  string
	Tick      uint64
	Path      string
	Citizens  int
	Buildings int
}

// Stats reports queue pressure on the async side of the index.
type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropAuditTotal    uint64 `json:"drop_audit_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS citizens (
			colony_id TEXT NOT NULL,
			id TEXT NOT NULL,
			name TEXT NOT NULL,
			doc TEXT NOT NULL,
			updated_tick INTEGER NOT NULL,
			PRIMARY KEY (colony_id, id)
		);`,
		auditsTable,
		`CREATE INDEX IF NOT EXISTS idx_audits_citizen_tick ON audits(citizen_id, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			colony_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			path TEXT NOT NULL,
			citizens INTEGER NOT NULL,
			buildings INTEGER NOT NULL,
			PRIMARY KEY (colony_id, tick)
		);`,
	}
	if err := migrateAudits(db); err != nil {
		return fmt.Errorf("migrate audits: %w", err)
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Audit rows are keyed by an autoincrement id so entries written by a later
// process never overwrite earlier ones at the same tick.
const auditsTable = `CREATE TABLE IF NOT EXISTS audits (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			colony_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			action TEXT NOT NULL,
			citizen_id TEXT,
			building TEXT,
			reason TEXT,
			raw_json TEXT NOT NULL
		);`

// migrateAudits rewrites an audits table from the (colony_id, tick, seq)
// layout into the id layout, keeping row order.
func migrateAudits(db *sql.DB) error {
	rows, err := db.Query(`SELECT name FROM pragma_table_info('audits')`)
	if err != nil {
		return err
	}
	hasSeq := false
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return err
		}
		if name == "seq" {
			hasSeq = true
		}
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if !hasSeq {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	for _, stmt := range []string{
		`DROP INDEX IF EXISTS idx_audits_citizen_tick;`,
		`ALTER TABLE audits RENAME TO audits_seq;`,
		auditsTable,
		`INSERT INTO audits(colony_id,tick,action,citizen_id,building,reason,raw_json)
			SELECT colony_id,tick,action,citizen_id,building,reason,raw_json FROM audits_seq ORDER BY tick, seq;`,
		`DROP TABLE audits_seq;`,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed.Store(true)
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropAuditTotal:    s.dropAudit.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

// trySend enqueues without blocking. It reports false when the queue is full
// or the index is closed.
func (s *SQLiteIndex) trySend(r req) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() {
		return false
	}
	select {
	case s.ch <- r:
		return true
	default:
		return false
	}
}

// exec runs fn on the writer goroutine inside a transaction and waits for
// the commit.
func (s *SQLiteIndex) exec(ctx context.Context, fn func(*sql.Tx) error) error {
	r := req{kind: reqExec, fn: fn, resp: make(chan error, 1)}
	s.mu.RLock()
	if s.closed.Load() {
		s.mu.RUnlock()
		return ErrClosed
	}
	select {
	case s.ch <- r:
		s.mu.RUnlock()
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}
	select {
	case err := <-r.resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WriteAudit implements colony.AuditSink. Entries are dropped if the indexer
// falls behind; the JSONL audit log remains the source of truth.
func (s *SQLiteIndex) WriteAudit(entry colony.AuditEntry) error {
	if s == nil {
		return nil
	}
	if !s.trySend(req{kind: reqAudit, audit: entry}) && !s.closed.Load() {
		s.dropAudit.Add(1)
	}
	return nil
}

// RecordSnapshot implements colony.SnapshotRecorder.
func (s *SQLiteIndex) RecordSnapshot(path string, colonyID string, tick uint64, citizens, buildings int) {
	if s == nil {
		return
	}
	r := snapshotRow{ColonyID: colonyID, Tick: tick, Path: path, Citizens: citizens, Buildings: buildings}
	if !s.trySend(req{kind: reqSnapshot, snapshot: r}) && !s.closed.Load() {
		s.dropSnapshot.Add(1)
	}
}

// SaveCitizens implements colony.Store. All rows land in one transaction.
func (s *SQLiteIndex) SaveCitizens(ctx context.Context, colonyID string, tick uint64, docs []colony.CitizenDoc) error {
	if len(docs) == 0 {
		return nil
	}
	return s.exec(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT OR REPLACE INTO citizens(colony_id,id,name,doc,updated_tick) VALUES(?,?,?,?,?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, d := range docs {
			if _, err := stmt.Exec(colonyID, d.ID.String(), d.Name, string(d.Doc), int64(tick)); err != nil {
				return fmt.Errorf("save citizen %s: %w", d.ID, err)
			}
		}
		return nil
	})
}

// LoadCitizens implements colony.Store. Rows come back ordered by id. A row
// whose key is not a uuid is returned with a nil ID and its raw Key so the
// colony can quarantine it like any other malformed record.
func (s *SQLiteIndex) LoadCitizens(ctx context.Context, colonyID string) ([]colony.CitizenDoc, error) {
	var out []colony.CitizenDoc
	err := s.exec(ctx, func(tx *sql.Tx) error {
		rows, err := tx.Query(`SELECT id,name,doc FROM citizens WHERE colony_id=? ORDER BY id`, colonyID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var key, name, doc string
			if err := rows.Scan(&key, &name, &doc); err != nil {
				return err
			}
			id, _ := uuid.Parse(key)
			out = append(out, colony.CitizenDoc{ID: id, Name: name, Doc: []byte(doc), Key: key})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteCitizen removes a stored citizen row.
func (s *SQLiteIndex) DeleteCitizen(ctx context.Context, colonyID string, id uuid.UUID) error {
	return s.exec(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM citizens WHERE colony_id=? AND id=?`, colonyID, id.String())
		return err
	})
}

// CitizenAudits returns the newest audit entries for one citizen, newest
// first.
func (s *SQLiteIndex) CitizenAudits(ctx context.Context, colonyID string, id uuid.UUID, limit int) ([]colony.AuditEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var out []colony.AuditEntry
	err := s.exec(ctx, func(tx *sql.Tx) error {
		rows, err := tx.Query(`SELECT raw_json FROM audits WHERE colony_id=? AND citizen_id=? ORDER BY tick DESC, id DESC LIMIT ?`,
			colonyID, id.String(), limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var raw string
			if err := rows.Scan(&raw); err != nil {
				return err
			}
			var e colony.AuditEntry
			if err := json.Unmarshal([]byte(raw), &e); err != nil {
				return err
			}
			out = append(out, e)
		}
		return rows.Err()
	})
	return out, err
}

// UpsertCatalogs records the catalogs and tuning the server started with.
func (s *SQLiteIndex) UpsertCatalogs(ctx context.Context, configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil || cats == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	read := func(name, file, digest string) {
		if configDir == "" {
			return
		}
		b, err := os.ReadFile(filepath.Join(configDir, file))
		if err != nil {
			return
		}
		rows = append(rows, kv{name: name, digest: digest, json: b})
	}
	read("names", "names.json", cats.Names.Digest)
	read("buildings", "buildings.json", cats.Buildings.Digest)
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	return s.exec(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
			return err
		}
		stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range rows {
			if r.name == "" || r.digest == "" || len(r.json) == 0 {
				continue
			}
			if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertAudit, _ := s.db.Prepare(`INSERT INTO audits(colony_id,tick,action,citizen_id,building,reason,raw_json) VALUES(?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(colony_id,tick,path,citizens,buildings) VALUES(?,?,?,?,?)`)
	defer func() {
		if insertAudit != nil {
			_ = insertAudit.Close()
		}
		if insertSnapshot != nil {
			_ = insertSnapshot.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		if r.kind == reqExec {
			commit()
			r.resp <- s.runExec(ctx, r.fn)
			continue
		}

		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqAudit:
			a := r.audit
			raw, _ := json.Marshal(a)
			if insertAudit != nil {
				if _, err := tx.Stmt(insertAudit).Exec(
					a.ColonyID,
					int64(a.Tick),
					a.Action,
					a.Citizen,
					a.Building,
					a.Reason,
					string(raw),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot != nil {
				if _, err := tx.Stmt(insertSnapshot).Exec(
					sn.ColonyID,
					int64(sn.Tick),
					sn.Path,
					sn.Citizens,
					sn.Buildings,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}

func (s *SQLiteIndex) runExec(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
