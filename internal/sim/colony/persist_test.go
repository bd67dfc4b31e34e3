package colony

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"colonycraft.ai/internal/sim/citizen"
	"colonycraft.ai/internal/sim/ids"
)

func TestPersist_WritesDirtyCitizensOnce(t *testing.T) {
	store := newMemStore()
	c := newTestColony(t, Config{}, Deps{Store: store})
	a, _ := c.SpawnCitizen(1)
	b, _ := c.SpawnCitizen(2)
	ctx := context.Background()

	n, err := c.Persist(ctx)
	if err != nil || n != 2 {
		t.Fatalf("first persist: n=%d err=%v", n, err)
	}
	if a.IsDirty() || b.IsDirty() || c.CitizensDirty() {
		t.Fatalf("citizens still dirty after persist")
	}
	if n, _ := c.Persist(ctx); n != 0 || store.saves != 1 {
		t.Fatalf("clean persist wrote: n=%d saves=%d", n, store.saves)
	}

	s := a.Skills()
	s.Charisma++
	a.SetSkills(s)
	if n, _ := c.Persist(ctx); n != 1 {
		t.Fatalf("expected only the changed citizen, got %d", n)
	}
	if got := store.rows[a.ID()].Name; got != a.Name() {
		t.Fatalf("stored name: got %q want %q", got, a.Name())
	}
}

func TestPersist_StoreFailureKeepsDirty(t *testing.T) {
	store := newMemStore()
	store.fail = true
	c := newTestColony(t, Config{}, Deps{Store: store})
	cz, _ := c.SpawnCitizen(3)

	if _, err := c.Persist(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if !cz.IsDirty() || !c.CitizensDirty() {
		t.Fatalf("failed persist cleared dirty state")
	}
	store.fail = false
	if n, err := c.Persist(context.Background()); err != nil || n != 1 {
		t.Fatalf("retry: n=%d err=%v", n, err)
	}
}

func TestLoadFromStore_RestoresAndQuarantines(t *testing.T) {
	store := newMemStore()
	src := newTestColony(t, Config{}, Deps{Store: store})
	good, _ := src.SpawnCitizen(4)
	if _, err := src.Persist(context.Background()); err != nil {
		t.Fatalf("persist: %v", err)
	}
	bad := uuid.New()
	store.rows[bad] = CitizenDoc{ID: bad, Doc: []byte(`{"id":"` + bad.String() + `","name":"x"}`)}
	stray := uuid.New()
	store.rows[stray] = CitizenDoc{ID: stray, Doc: store.rows[good.ID()].Doc}

	audit := &captureAudit{}
	dst := newTestColony(t, Config{}, Deps{Store: store, Audit: audit})
	n, err := dst.LoadFromStore(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if n != 1 {
		t.Fatalf("loaded: got %d want 1", n)
	}
	got, ok := dst.Citizen(good.ID())
	if !ok || got.Name() != good.Name() || got.Skills() != good.Skills() {
		t.Fatalf("restored citizen mismatch")
	}
	if got.IsDirty() {
		t.Fatalf("restored citizen should be clean")
	}
	if _, ok := got.Entity(); ok {
		t.Fatalf("restored citizen should have no entity")
	}
	if dst.quarantinedTotal != 2 {
		t.Fatalf("quarantined: got %d want 2", dst.quarantinedTotal)
	}
	quarantined := 0
	for _, e := range audit.entries {
		if e.Action == AuditQuarantined {
			quarantined++
		}
	}
	if quarantined != 2 {
		t.Fatalf("quarantine audits: %v", audit.actions())
	}
}

func TestPersist_AssociationsAreNotDurable(t *testing.T) {
	store := newMemStore()
	src := newTestColony(t, Config{}, Deps{Store: store})
	cz, _ := src.SpawnCitizen(5)
	pos := ids.BlockPos{X: 4, Y: 64, Z: 4}
	if _, err := src.AddBuilding("HUT_CITIZEN", pos); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := src.AssignHome(cz.ID(), pos); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := src.Persist(context.Background()); err != nil {
		t.Fatalf("persist: %v", err)
	}

	dst := newTestColony(t, Config{}, Deps{Store: store})
	if _, err := dst.LoadFromStore(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	got, _ := dst.Citizen(cz.ID())
	if _, ok := got.HomePos(); ok {
		t.Fatalf("home survived a durable round trip")
	}
}

func TestLoadFromStore_RefreshesSnapshotCitizens(t *testing.T) {
	dir := t.TempDir()
	store := newMemStore()
	src := newTestColony(t, Config{SnapshotDir: dir}, Deps{Store: store})
	cz, _ := src.SpawnCitizen(6)
	if _, err := src.SaveSnapshot(); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	newer := citizen.Skills{Strength: 9, Stamina: 9, Wisdom: 9, Intelligence: 9, Charisma: 9}
	cz.SetSkills(newer)
	if _, err := src.Persist(context.Background()); err != nil {
		t.Fatalf("persist: %v", err)
	}

	dst := newTestColony(t, Config{SnapshotDir: dir}, Deps{Store: store})
	if ok, err := dst.RestoreLatestSnapshot(); err != nil || !ok {
		t.Fatalf("restore: %v %v", ok, err)
	}
	n, err := dst.LoadFromStore(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("load: n=%d err=%v", n, err)
	}
	got, _ := dst.Citizen(cz.ID())
	if got.Skills() != newer {
		t.Fatalf("skills not refreshed: %+v", got.Skills())
	}
	if dst.quarantinedTotal != 0 || len(dst.Citizens()) != 1 {
		t.Fatalf("quarantined=%d citizens=%d", dst.quarantinedTotal, len(dst.Citizens()))
	}
}

func TestLoadFromStore_QuarantinesNonUUIDKeyUnderRawKey(t *testing.T) {
	store := newMemStore()
	src := newTestColony(t, Config{}, Deps{Store: store})
	good, _ := src.SpawnCitizen(6)
	if _, err := src.Persist(context.Background()); err != nil {
		t.Fatalf("persist: %v", err)
	}
	doc := store.rows[good.ID()].Doc
	delete(store.rows, good.ID())
	store.raw = []CitizenDoc{{Key: "citizen-7", Doc: doc}}

	audit := &captureAudit{}
	dst := newTestColony(t, Config{}, Deps{Store: store, Audit: audit})
	if n, err := dst.LoadFromStore(context.Background()); err != nil || n != 0 {
		t.Fatalf("load: n=%d err=%v", n, err)
	}
	if len(audit.entries) != 1 || audit.entries[0].Action != AuditQuarantined || audit.entries[0].Citizen != "citizen-7" {
		t.Fatalf("audits: %+v", audit.entries)
	}
}
