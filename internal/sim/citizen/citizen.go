package citizen

import (
	"fmt"

	"github.com/google/uuid"

	"colonycraft.ai/internal/sim/catalogs"
	"colonycraft.ai/internal/sim/ids"
)

// Skills are placeholder attributes; the simulation owns their meaning.
type Skills struct {
	Strength     int `json:"strength" cbor:"strength"`
	Stamina      int `json:"stamina" cbor:"stamina"`
	Wisdom       int `json:"wisdom" cbor:"wisdom"`
	Intelligence int `json:"intelligence" cbor:"intelligence"`
	Charisma     int `json:"charisma" cbor:"charisma"`
}

const (
	skillMax      = 10
	initialLetter = 'A'
	letterCount   = 26
)

// Citizen is the authoritative record of one colony agent. It is mutated only
// from the colony loop.
type Citizen struct {
	id        uuid.UUID
	name      string
	female    bool
	textureID int

	level  int
	skills Skills

	// Keys into the building registry; nil when unbound.
	home *ids.BlockPos
	work *ids.BlockPos

	// The entity is keyed by id; this only records that it was attached.
	attached bool

	dirty bool
	links Links
}

// New creates a citizen for a freshly spawned entity, drawing gender, name,
// and skills from the entity's randomness source.
func New(e Entity, names catalogs.NameTables, links Links) (*Citizen, error) {
	if e == nil {
		return nil, fmt.Errorf("citizen: nil entity")
	}
	if len(names.MaleFirst) == 0 || len(names.FemaleFirst) == 0 || len(names.Last) == 0 {
		return nil, fmt.Errorf("citizen: empty name tables")
	}
	c := &Citizen{id: e.ID(), links: links}
	rng := e.Rand()

	// Gender first: the first-name table depends on it.
	c.female = rng.Bool()
	c.name = generateName(rng, names, c.female)
	c.textureID = e.TextureID()

	c.skills = Skills{
		Strength:     rng.Intn(skillMax) + 1,
		Stamina:      rng.Intn(skillMax) + 1,
		Wisdom:       rng.Intn(skillMax) + 1,
		Intelligence: rng.Intn(skillMax) + 1,
		Charisma:     rng.Intn(skillMax) + 1,
	}
	c.attached = true

	c.markDirty()
	return c, nil
}

// FromDurable restores a citizen saved with WriteDurable.
func FromDurable(id uuid.UUID, links Links, blob []byte) (*Citizen, error) {
	c := &Citizen{id: id, links: links}
	if err := c.RestoreDurable(blob); err != nil {
		return nil, err
	}
	return c, nil
}

func generateName(rng Rand, names catalogs.NameTables, female bool) string {
	first := names.MaleFirst
	if female {
		first = names.FemaleFirst
	}
	firstName := randomElement(rng, first)
	initial := rune(initialLetter + rng.Intn(letterCount))
	return fmt.Sprintf("%s %c. %s", firstName, initial, randomElement(rng, names.Last))
}

func randomElement(rng Rand, vals []string) string {
	return vals[rng.Intn(len(vals))]
}

func (c *Citizen) ID() uuid.UUID  { return c.id }
func (c *Citizen) Name() string   { return c.name }
func (c *Citizen) IsFemale() bool { return c.female }
func (c *Citizen) TextureID() int { return c.textureID }
func (c *Citizen) Level() int     { return c.level }
func (c *Citizen) Skills() Skills { return c.skills }

// SetSkills replaces the skill block, marking the citizen dirty on change.
func (c *Citizen) SetSkills(s Skills) {
	if s == c.skills {
		return
	}
	c.skills = s
	c.markDirty()
}

func (c *Citizen) IsDirty() bool { return c.dirty }

// ClearDirty is called by the persistence layer after a successful write-out.
func (c *Citizen) ClearDirty() { c.dirty = false }

func (c *Citizen) markDirty() {
	c.dirty = true
	if c.links.Dirty != nil {
		c.links.Dirty()
	}
}
