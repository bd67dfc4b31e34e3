package colony

import (
	"bytes"
	"sort"
	"sync"

	"github.com/google/uuid"

	"colonycraft.ai/internal/sim/catalogs"
	"colonycraft.ai/internal/sim/citizen"
	"colonycraft.ai/internal/sim/ids"
)

// Building is a standing home or work structure. Occupants is the building's
// own view of who is bound to it; citizens keep the authoritative binding.
type Building struct {
	pos       ids.BlockPos
	def       catalogs.BuildingDef
	occupants map[uuid.UUID]struct{}
}

func (b *Building) Pos() ids.BlockPos           { return b.pos }
func (b *Building) Role() catalogs.BuildingRole { return b.def.Role }
func (b *Building) Kind() string                { return b.def.ID }
func (b *Building) Def() catalogs.BuildingDef   { return b.def }
func (b *Building) ID() string                  { return ids.BuildingID(b.def.ID, b.pos) }

func (b *Building) Occupants() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(b.occupants))
	for id := range b.occupants {
		out = append(out, id)
	}
	sortIDs(out)
	return out
}

// BuildingRegistry owns the colony's buildings, keyed by anchor position.
type BuildingRegistry struct {
	mu    sync.RWMutex
	byPos map[ids.BlockPos]*Building
}

func NewBuildingRegistry() *BuildingRegistry {
	return &BuildingRegistry{byPos: map[ids.BlockPos]*Building{}}
}

func (r *BuildingRegistry) Lookup(pos ids.BlockPos) (*Building, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byPos[pos]
	return b, ok
}

// Building implements citizen.BuildingLookup.
func (r *BuildingRegistry) Building(pos ids.BlockPos) (citizen.Building, bool) {
	b, ok := r.Lookup(pos)
	if !ok {
		return nil, false
	}
	return b, true
}

func (r *BuildingRegistry) add(b *Building) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byPos[b.pos]; ok {
		return false
	}
	r.byPos[b.pos] = b
	return true
}

func (r *BuildingRegistry) remove(pos ids.BlockPos) (*Building, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byPos[pos]
	if ok {
		delete(r.byPos, pos)
	}
	return b, ok
}

func (r *BuildingRegistry) List() []*Building {
	r.mu.RLock()
	out := make([]*Building, 0, len(r.byPos))
	for _, b := range r.byPos {
		out = append(out, b)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return lessPos(out[i].pos, out[j].pos) })
	return out
}

func (r *BuildingRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byPos)
}

func lessPos(a, b ids.BlockPos) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.Z < b.Z
}

func sortIDs(s []uuid.UUID) {
	sort.Slice(s, func(i, j int) bool { return bytes.Compare(s[i][:], s[j][:]) < 0 })
}
