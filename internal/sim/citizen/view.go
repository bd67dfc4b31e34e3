package citizen

import (
	"fmt"

	"github.com/google/uuid"

	"colonycraft.ai/internal/codec"
	"colonycraft.ai/internal/sim/ids"
)

// NoEntity is View.EntityID when the citizen had no loaded entity.
const NoEntity = -1

// viewWire is the network form. Pointers distinguish "absent" from zero on
// decode; optional fields are omitted on encode.
type viewWire struct {
	Name   *string     `cbor:"name"`
	Female *bool       `cbor:"female"`
	Level  *int        `cbor:"level"`
	Skills *skillsWire `cbor:"skills"`

	Entity       *int          `cbor:"entity,omitempty"`
	HomeBuilding *ids.BlockPos `cbor:"homeBuilding,omitempty"`
	WorkBuilding *ids.BlockPos `cbor:"workBuilding,omitempty"`
}

type skillsWire struct {
	Strength     *int `cbor:"strength"`
	Stamina      *int `cbor:"stamina"`
	Wisdom       *int `cbor:"wisdom"`
	Intelligence *int `cbor:"intelligence"`
	Charisma     *int `cbor:"charisma"`
}

// WriteView encodes the replicated view of the citizen.
func (c *Citizen) WriteView() ([]byte, error) {
	s := c.skills
	w := viewWire{
		Name:   &c.name,
		Female: &c.female,
		Level:  &c.level,
		Skills: &skillsWire{
			Strength:     &s.Strength,
			Stamina:      &s.Stamina,
			Wisdom:       &s.Wisdom,
			Intelligence: &s.Intelligence,
			Charisma:     &s.Charisma,
		},
		HomeBuilding: c.home,
		WorkBuilding: c.work,
	}
	if e, ok := c.Entity(); ok {
		rid := e.RuntimeID()
		w.Entity = &rid
	}
	return codec.Marshal(w)
}

// View is the read-only, client-side projection of a citizen, rebuilt from
// each replicated blob.
type View struct {
	id       uuid.UUID
	entityID int
	name     string
	female   bool
	level    int
	skills   Skills
	home     *ids.BlockPos
	work     *ids.BlockPos
}

// ParseView builds a View from a blob written by WriteView. It returns either
// a complete View or an error wrapping ErrMalformedRecord, never both.
func ParseView(id uuid.UUID, blob []byte) (*View, error) {
	var w viewWire
	if err := codec.Unmarshal(blob, &w); err != nil {
		return nil, fmt.Errorf("%w: citizen view %s: %v", ErrMalformedRecord, id, err)
	}
	if w.Name == nil || w.Female == nil || w.Level == nil {
		return nil, fmt.Errorf("%w: citizen view %s: missing name, female, or level", ErrMalformedRecord, id)
	}
	skills, err := w.Skills.skills()
	if err != nil {
		return nil, fmt.Errorf("%w: citizen view %s: %v", ErrMalformedRecord, id, err)
	}

	v := &View{
		id:       id,
		entityID: NoEntity,
		name:     *w.Name,
		female:   *w.Female,
		level:    *w.Level,
		skills:   skills,
		home:     w.HomeBuilding,
		work:     w.WorkBuilding,
	}
	if w.Entity != nil {
		v.entityID = *w.Entity
	}
	return v, nil
}

func (s *skillsWire) skills() (Skills, error) {
	if s == nil {
		return Skills{}, fmt.Errorf("missing skills")
	}
	if s.Strength == nil || s.Stamina == nil || s.Wisdom == nil || s.Intelligence == nil || s.Charisma == nil {
		return Skills{}, fmt.Errorf("incomplete skills")
	}
	return Skills{
		Strength:     *s.Strength,
		Stamina:      *s.Stamina,
		Wisdom:       *s.Wisdom,
		Intelligence: *s.Intelligence,
		Charisma:     *s.Charisma,
	}, nil
}

func (v *View) ID() uuid.UUID  { return v.id }
func (v *View) Name() string   { return v.name }
func (v *View) IsFemale() bool { return v.female }
func (v *View) Level() int     { return v.level }
func (v *View) Skills() Skills { return v.skills }

// EntityID is the runtime handle of the loaded entity, or NoEntity.
func (v *View) EntityID() int { return v.entityID }

func (v *View) Home() (ids.BlockPos, bool) { return derefPos(v.home) }
func (v *View) Work() (ids.BlockPos, bool) { return derefPos(v.work) }
