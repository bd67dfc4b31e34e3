package citizen

import "fmt"

// AttachEntity binds the live entity for this citizen.
func (c *Citizen) AttachEntity(e Entity) error {
	if e == nil {
		return fmt.Errorf("citizen %s: nil entity", c.id)
	}
	if e.ID() != c.id {
		return fmt.Errorf("%w: entity %s registered to citizen %s", ErrMismatchedIdentity, e.ID(), c.id)
	}
	c.attached = true
	c.markDirty()
	return nil
}

// DetachEntity forgets the live entity. Unloading is a runtime event, so the
// citizen is not marked dirty.
func (c *Citizen) DetachEntity() {
	c.attached = false
}

// Entity returns the live entity if it is attached and still loaded.
// Absence means "not currently loaded", not an error.
func (c *Citizen) Entity() (Entity, bool) {
	if !c.attached || c.links.Entities == nil {
		return nil, false
	}
	return c.links.Entities.Entity(c.id)
}
