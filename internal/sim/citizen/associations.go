package citizen

import (
	"fmt"

	"colonycraft.ai/internal/sim/catalogs"
	"colonycraft.ai/internal/sim/ids"
)

// SetHomeBuilding binds, keeps, or clears (b == nil) the home association.
// Replacing a bound home with a different building is ErrInvariantViolation.
func (c *Citizen) SetHomeBuilding(b Building) error {
	return c.setBuilding(&c.home, b, catalogs.RoleHome)
}

// SetWorkBuilding follows the same rules as SetHomeBuilding.
func (c *Citizen) SetWorkBuilding(b Building) error {
	return c.setBuilding(&c.work, b, catalogs.RoleWork)
}

func (c *Citizen) setBuilding(slot **ids.BlockPos, b Building, role catalogs.BuildingRole) error {
	if b == nil {
		if *slot == nil {
			return nil
		}
		*slot = nil
		c.markDirty()
		return nil
	}
	if got := b.Role(); got != role {
		return fmt.Errorf("%w: citizen %s: building at %s is %s, want %s", ErrWrongBuildingRole, c.id, b.Pos(), got, role)
	}
	pos := b.Pos()
	if cur := *slot; cur != nil {
		if *cur == pos {
			return nil
		}
		return fmt.Errorf("%w: citizen %s already has a %s building at %s, cannot bind %s", ErrInvariantViolation, c.id, role, *cur, pos)
	}
	*slot = &pos
	c.markDirty()
	return nil
}

// OnRemoveBuilding clears every association with the building at pos. It is
// called when a building is torn down, possibly more than once for the same
// building, and reports whether anything changed.
func (c *Citizen) OnRemoveBuilding(pos ids.BlockPos) bool {
	changed := false
	if c.home != nil && *c.home == pos {
		c.home = nil
		changed = true
	}
	if c.work != nil && *c.work == pos {
		c.work = nil
		changed = true
	}
	if changed {
		c.markDirty()
	}
	return changed
}

func (c *Citizen) HomePos() (ids.BlockPos, bool) { return derefPos(c.home) }
func (c *Citizen) WorkPos() (ids.BlockPos, bool) { return derefPos(c.work) }

// HomeBuilding resolves the home association. It reports false when unbound
// or when the building is no longer registered.
func (c *Citizen) HomeBuilding() (Building, bool) { return c.resolveBuilding(c.home) }

func (c *Citizen) WorkBuilding() (Building, bool) { return c.resolveBuilding(c.work) }

func (c *Citizen) resolveBuilding(key *ids.BlockPos) (Building, bool) {
	if key == nil || c.links.Buildings == nil {
		return nil, false
	}
	return c.links.Buildings.Building(*key)
}

func derefPos(p *ids.BlockPos) (ids.BlockPos, bool) {
	if p == nil {
		return ids.BlockPos{}, false
	}
	return *p, true
}
