package citizen

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"

	"colonycraft.ai/internal/sim/catalogs"
	"colonycraft.ai/internal/sim/ids"
)

type testRand struct{ r *rand.Rand }

func (t testRand) Bool() bool     { return t.r.Intn(2) == 1 }
func (t testRand) Intn(n int) int { return t.r.Intn(n) }

type testEntity struct {
	id        uuid.UUID
	runtimeID int
	texture   int
	rng       Rand
}

func (e *testEntity) ID() uuid.UUID  { return e.id }
func (e *testEntity) RuntimeID() int { return e.runtimeID }
func (e *testEntity) TextureID() int { return e.texture }
func (e *testEntity) Rand() Rand     { return e.rng }

type testBuilding struct {
	pos  ids.BlockPos
	role catalogs.BuildingRole
}

func (b *testBuilding) Pos() ids.BlockPos           { return b.pos }
func (b *testBuilding) Role() catalogs.BuildingRole { return b.role }

type testWorld struct {
	entities  map[uuid.UUID]*testEntity
	buildings map[ids.BlockPos]*testBuilding
	dirtyHits int
}

func newTestWorld() *testWorld {
	return &testWorld{
		entities:  map[uuid.UUID]*testEntity{},
		buildings: map[ids.BlockPos]*testBuilding{},
	}
}

func (w *testWorld) Entity(id uuid.UUID) (Entity, bool) {
	e, ok := w.entities[id]
	if !ok {
		return nil, false
	}
	return e, true
}

func (w *testWorld) Building(pos ids.BlockPos) (Building, bool) {
	b, ok := w.buildings[pos]
	if !ok {
		return nil, false
	}
	return b, true
}

func (w *testWorld) links() Links {
	return Links{Entities: w, Buildings: w, Dirty: func() { w.dirtyHits++ }}
}

func (w *testWorld) spawn(seed int64, runtimeID int) *testEntity {
	e := &testEntity{
		id:        uuid.New(),
		runtimeID: runtimeID,
		texture:   int(seed % 4),
		rng:       testRand{r: rand.New(rand.NewSource(seed))},
	}
	w.entities[e.id] = e
	return e
}

func (w *testWorld) addBuilding(role catalogs.BuildingRole, x, y, z int) *testBuilding {
	b := &testBuilding{pos: ids.BlockPos{X: x, Y: y, Z: z}, role: role}
	w.buildings[b.pos] = b
	return b
}

var testNames = catalogs.NameTables{
	MaleFirst:   []string{"Arthur", "Bernard", "Cedric"},
	FemaleFirst: []string{"Ada", "Beatrice", "Cecily"},
	Last:        []string{"Baker", "Smith"},
}

func newTestCitizen(t *testing.T, w *testWorld, seed int64) *Citizen {
	t.Helper()
	c, err := New(w.spawn(seed, int(seed)), testNames, w.links())
	if err != nil {
		t.Fatalf("new citizen: %v", err)
	}
	return c
}
