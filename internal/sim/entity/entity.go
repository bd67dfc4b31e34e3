package entity

import (
	"math/rand"
	"sync"

	"github.com/google/uuid"

	"colonycraft.ai/internal/sim/citizen"
)

// Rand is a seeded randomness source owned by one entity.
type Rand struct {
	r *rand.Rand
}

func NewRand(seed int64) *Rand {
	return &Rand{r: rand.New(rand.NewSource(seed))}
}

func (r *Rand) Bool() bool     { return r.r.Intn(2) == 1 }
func (r *Rand) Intn(n int) int { return r.r.Intn(n) }

// Entity is a loaded citizen body. The colony loop is its only user, so its
// Rand is not shared across goroutines.
type Entity struct {
	id        uuid.UUID
	runtimeID int
	textureID int
	rng       *Rand
}

func (e *Entity) ID() uuid.UUID      { return e.id }
func (e *Entity) RuntimeID() int     { return e.runtimeID }
func (e *Entity) TextureID() int     { return e.textureID }
func (e *Entity) Rand() citizen.Rand { return e.rng }

const textureCount = 4

// Registry owns every loaded entity. Citizens hold only ids and resolve
// through Lookup, so an unloaded entity is simply absent.
type Registry struct {
	mu            sync.RWMutex
	byID          map[uuid.UUID]*Entity
	nextRuntimeID int
}

func NewRegistry() *Registry {
	return &Registry{byID: map[uuid.UUID]*Entity{}}
}

// Spawn creates and registers a brand-new entity with a fresh id.
func (r *Registry) Spawn(seed int64) *Entity {
	return r.Load(uuid.New(), seed)
}

// Load registers an entity for an existing citizen id, replacing any entity
// previously loaded for it. Runtime ids are never reused.
func (r *Registry) Load(id uuid.UUID, seed int64) *Entity {
	rng := NewRand(seed)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextRuntimeID++
	e := &Entity{
		id:        id,
		runtimeID: r.nextRuntimeID,
		textureID: rng.Intn(textureCount),
		rng:       rng,
	}
	r.byID[id] = e
	return e
}

func (r *Registry) Unload(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	return true
}

func (r *Registry) Lookup(id uuid.UUID) (*Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[id]
	return e, ok
}

// Entity implements citizen.EntityLookup.
func (r *Registry) Entity(id uuid.UUID) (citizen.Entity, bool) {
	e, ok := r.Lookup(id)
	if !ok {
		return nil, false
	}
	return e, true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
