package colony

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/google/uuid"

	"colonycraft.ai/internal/protocol"
	"colonycraft.ai/internal/sim/catalogs"
)

func testCatalogs() *catalogs.Catalogs {
	defs := map[string]catalogs.BuildingDef{
		"HUT_CITIZEN":    {ID: "HUT_CITIZEN", Role: catalogs.RoleHome, DisplayName: "Citizen Hut", MaxInhabitants: 2},
		"HUT_LUMBERJACK": {ID: "HUT_LUMBERJACK", Role: catalogs.RoleWork, DisplayName: "Lumberjack Hut", JobName: "Lumberjack", MaxInhabitants: 1},
	}
	return &catalogs.Catalogs{
		Names: catalogs.NameCatalog{
			NameTables: catalogs.NameTables{
				MaleFirst:   []string{"Tom", "Will", "Hugh"},
				FemaleFirst: []string{"Ada", "Mia", "Rose"},
				Last:        []string{"Smith", "Cooper", "Fletcher"},
			},
			Digest: "names-digest",
		},
		Buildings: catalogs.BuildingCatalog{
			Kinds:  []string{"HUT_CITIZEN", "HUT_LUMBERJACK"},
			Defs:   defs,
			Digest: "buildings-digest",
		},
	}
}

type memStore struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]CitizenDoc
	raw   []CitizenDoc // rows whose key is not a uuid
	saves int
	fail  bool
}

func newMemStore() *memStore { return &memStore{rows: map[uuid.UUID]CitizenDoc{}} }

func (s *memStore) SaveCitizens(_ context.Context, _ string, _ uint64, docs []CitizenDoc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("store offline")
	}
	s.saves++
	for _, d := range docs {
		s.rows[d.ID] = d
	}
	return nil
}

func (s *memStore) LoadCitizens(_ context.Context, _ string) ([]CitizenDoc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CitizenDoc, 0, len(s.rows)+len(s.raw))
	for _, d := range s.rows {
		out = append(out, d)
	}
	return append(out, s.raw...), nil
}

type capturePublisher struct {
	mu   sync.Mutex
	msgs []protocol.CitizenViewsMsg
}

func (p *capturePublisher) Publish(msg protocol.CitizenViewsMsg) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

type captureAudit struct {
	entries []AuditEntry
}

func (a *captureAudit) WriteAudit(e AuditEntry) error {
	a.entries = append(a.entries, e)
	return nil
}

func (a *captureAudit) actions() []string {
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

func newTestColony(t *testing.T, cfg Config, deps Deps) *Colony {
	t.Helper()
	if cfg.ID == "" {
		cfg.ID = "test-colony"
	}
	c, err := New(cfg, testCatalogs(), log.New(io.Discard, "", 0), deps)
	if err != nil {
		t.Fatalf("new colony: %v", err)
	}
	return c
}
