package citizen

import (
	"github.com/google/uuid"

	"colonycraft.ai/internal/sim/catalogs"
	"colonycraft.ai/internal/sim/ids"
)

// Rand is the randomness source a live entity carries.
type Rand interface {
	Bool() bool
	// Intn returns a uniform int in [0,n).
	Intn(n int) int
}

// Entity is the live, simulated representation of a citizen. It may be
// unloaded at any time while the Citizen persists.
type Entity interface {
	ID() uuid.UUID
	RuntimeID() int
	TextureID() int
	Rand() Rand
}

// Building is a home or work structure a citizen can be bound to. Identity is
// the anchor position.
type Building interface {
	Pos() ids.BlockPos
	Role() catalogs.BuildingRole
}

// EntityLookup resolves a loaded entity by citizen id. A single call either
// returns the entity or reports it absent.
type EntityLookup interface {
	Entity(id uuid.UUID) (Entity, bool)
}

// BuildingLookup resolves a standing building by anchor position.
type BuildingLookup interface {
	Building(pos ids.BlockPos) (Building, bool)
}

// Links connects a citizen to the registries that own its referents and to
// the owning colony's dirty aggregate. Any field may be nil.
type Links struct {
	Entities  EntityLookup
	Buildings BuildingLookup
	Dirty     func()
}
