package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"colonycraft.ai/internal/sim/colony"
)

func openTestIndex(t *testing.T) (*SQLiteIndex, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index", "colony.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return idx, path
}

func TestSQLiteIndex_SaveAndLoadCitizens(t *testing.T) {
	idx, _ := openTestIndex(t)
	defer idx.Close()
	ctx := context.Background()

	a, b := uuid.New(), uuid.New()
	docs := []colony.CitizenDoc{
		{ID: a, Name: "Ada B. Smith", Doc: []byte(`{"id":"a"}`)},
		{ID: b, Name: "Tom C. Cooper", Doc: []byte(`{"id":"b"}`)},
	}
	if err := idx.SaveCitizens(ctx, "c1", 5, docs); err != nil {
		t.Fatalf("save: %v", err)
	}
	// Overwrite one row, and write the same id under another colony.
	if err := idx.SaveCitizens(ctx, "c1", 6, []colony.CitizenDoc{{ID: a, Name: "Ada B. Smith", Doc: []byte(`{"id":"a2"}`)}}); err != nil {
		t.Fatalf("resave: %v", err)
	}
	if err := idx.SaveCitizens(ctx, "c2", 6, []colony.CitizenDoc{{ID: a, Name: "x", Doc: []byte(`{}`)}}); err != nil {
		t.Fatalf("save c2: %v", err)
	}

	got, err := idx.LoadCitizens(ctx, "c1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rows: got %d want 2", len(got))
	}
	byID := map[uuid.UUID]colony.CitizenDoc{}
	for _, d := range got {
		byID[d.ID] = d
	}
	if string(byID[a].Doc) != `{"id":"a2"}` {
		t.Fatalf("row a not overwritten: %s", byID[a].Doc)
	}
	if byID[b].Name != "Tom C. Cooper" {
		t.Fatalf("row b: %+v", byID[b])
	}

	if err := idx.DeleteCitizen(ctx, "c1", b); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, _ = idx.LoadCitizens(ctx, "c1")
	if len(got) != 1 || got[0].ID != a {
		t.Fatalf("after delete: %+v", got)
	}
}

func TestSQLiteIndex_AuditsAreQueryableAfterClose(t *testing.T) {
	idx, path := openTestIndex(t)
	citizen := uuid.New()
	for i := 0; i < 3; i++ {
		_ = idx.WriteAudit(colony.AuditEntry{Tick: 7, ColonyID: "c1", Action: colony.AuditAssignHome, Citizen: citizen.String(), Building: "HUT_CITIZEN@0,64,0"})
	}
	_ = idx.WriteAudit(colony.AuditEntry{Tick: 8, ColonyID: "c1", Action: colony.AuditClearHome, Citizen: citizen.String()})
	idx.RecordSnapshot("/tmp/8.snap.zst", "c1", 8, 1, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	entries, err := idx.CitizenAudits(ctx, "c1", citizen, 10)
	if err != nil {
		t.Fatalf("audits: %v", err)
	}
	if len(entries) != 4 || entries[0].Action != colony.AuditClearHome {
		t.Fatalf("audits: %+v", entries)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM snapshots WHERE colony_id='c1' AND tick=8`).Scan(&n); err != nil {
		t.Fatalf("query: %v", err)
	}
	if n != 1 {
		t.Fatalf("snapshot rows: %d", n)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqAudit}

	_ = s.WriteAudit(colony.AuditEntry{Tick: 2})
	s.RecordSnapshot("/tmp/2.snap.zst", "c1", 2, 0, 0)

	st := s.Stats()
	if st.DropAuditTotal != 1 {
		t.Fatalf("DropAuditTotal=%d want=1", st.DropAuditTotal)
	}
	if st.DropSnapshotTotal != 1 {
		t.Fatalf("DropSnapshotTotal=%d want=1", st.DropSnapshotTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_ClosedRejectsCalls(t *testing.T) {
	idx, _ := openTestIndex(t)
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := idx.LoadCitizens(context.Background(), "c1"); err != ErrClosed {
		t.Fatalf("load after close: %v", err)
	}
	_ = idx.WriteAudit(colony.AuditEntry{Tick: 1})
	if st := idx.Stats(); st.DropAuditTotal != 0 {
		t.Fatalf("closed index counted a drop: %+v", st)
	}
}

func TestSQLiteIndex_AuditsSurviveRestartAtSameTick(t *testing.T) {
	idx, path := openTestIndex(t)
	citizen := uuid.New()
	for _, action := range []string{colony.AuditSpawn, colony.AuditAssignHome} {
		_ = idx.WriteAudit(colony.AuditEntry{Tick: 0, ColonyID: "c1", Action: action, Citizen: citizen.String()})
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()
	_ = idx.WriteAudit(colony.AuditEntry{Tick: 0, ColonyID: "c1", Action: colony.AuditClearHome, Citizen: citizen.String()})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	entries, err := idx.CitizenAudits(ctx, "c1", citizen, 10)
	if err != nil {
		t.Fatalf("audits: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("audits after restart: %+v", entries)
	}
	want := []string{colony.AuditClearHome, colony.AuditAssignHome, colony.AuditSpawn}
	for i, e := range entries {
		if e.Action != want[i] {
			t.Fatalf("entry %d: got %s want %s", i, e.Action, want[i])
		}
	}
}

func TestOpenSQLite_MigratesSeqKeyedAudits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "colony.sqlite")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	citizen := uuid.New().String()
	for _, stmt := range []string{
		`CREATE TABLE audits (
			colony_id TEXT NOT NULL, tick INTEGER NOT NULL, seq INTEGER NOT NULL,
			action TEXT NOT NULL, citizen_id TEXT, building TEXT, reason TEXT,
			raw_json TEXT NOT NULL, PRIMARY KEY (colony_id, tick, seq));`,
		`INSERT INTO audits VALUES('c1',3,1,'ASSIGN_HOME','` + citizen + `','','','{"tick":3,"colony_id":"c1","action":"ASSIGN_HOME","citizen_id":"` + citizen + `"}');`,
		`INSERT INTO audits VALUES('c1',3,0,'SPAWN','` + citizen + `','','','{"tick":3,"colony_id":"c1","action":"SPAWN","citizen_id":"` + citizen + `"}');`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	_ = db.Close()

	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	defer idx.Close()
	_ = idx.WriteAudit(colony.AuditEntry{Tick: 3, ColonyID: "c1", Action: colony.AuditClearHome, Citizen: citizen})

	entries, err := idx.CitizenAudits(context.Background(), "c1", uuid.MustParse(citizen), 10)
	if err != nil {
		t.Fatalf("audits: %v", err)
	}
	want := []string{colony.AuditClearHome, colony.AuditAssignHome, colony.AuditSpawn}
	if len(entries) != len(want) {
		t.Fatalf("audits: %+v", entries)
	}
	for i, e := range entries {
		if e.Action != want[i] {
			t.Fatalf("entry %d: got %s want %s", i, e.Action, want[i])
		}
	}
}

func TestSQLiteIndex_LoadCitizensKeepsRawKey(t *testing.T) {
	idx, _ := openTestIndex(t)
	defer idx.Close()
	ctx := context.Background()

	err := idx.exec(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO citizens(colony_id,id,name,doc,updated_tick) VALUES('c1','legacy-7','x','{}',1)`)
		return err
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := idx.LoadCitizens(ctx, "c1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[0].ID != uuid.Nil || got[0].Key != "legacy-7" {
		t.Fatalf("rows: %+v", got)
	}
}
