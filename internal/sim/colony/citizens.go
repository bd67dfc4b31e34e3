package colony

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"colonycraft.ai/internal/sim/catalogs"
	"colonycraft.ai/internal/sim/citizen"
	"colonycraft.ai/internal/sim/ids"
)

// SpawnCitizen spawns a new entity and creates its citizen record.
func (c *Colony) SpawnCitizen(seed int64) (*citizen.Citizen, error) {
	e := c.entities.Spawn(seed)
	cz, err := citizen.New(e, c.cats.Names.NameTables, c.links())
	if err != nil {
		c.entities.Unload(e.ID())
		return nil, err
	}
	c.citizens[cz.ID()] = cz
	c.recordAudit(AuditSpawn, cz.ID().String(), "", cz.Name())
	return cz, nil
}

// RemoveCitizen retires a citizen for good. The stored row is deleted first,
// so a store failure leaves the colony untouched. Its associations are then
// released, its body unloaded and a fresh snapshot written so a restart
// does not bring it back.
func (c *Colony) RemoveCitizen(ctx context.Context, id uuid.UUID) error {
	cz, ok := c.citizens[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCitizenNotFound, id)
	}
	if d, ok := c.store.(CitizenDeleter); ok {
		if err := d.DeleteCitizen(ctx, c.cfg.ID, id); err != nil {
			return fmt.Errorf("delete stored citizen %s: %w", id, err)
		}
	}
	if err := c.ClearHome(id); err != nil {
		c.log.Printf("remove citizen %s: clear home: %v", id, err)
	}
	if err := c.ClearWork(id); err != nil {
		c.log.Printf("remove citizen %s: clear work: %v", id, err)
	}
	cz.DetachEntity()
	c.entities.Unload(id)
	delete(c.citizens, id)
	c.viewsDirty = true
	c.recordAudit(AuditCitizenRemoved, id.String(), "", cz.Name())

	if c.cfg.SnapshotDir != "" {
		if _, err := c.SaveSnapshot(); err != nil {
			c.log.Printf("remove citizen %s: snapshot: %v", id, err)
		}
	}
	return nil
}

// LoadEntity brings a citizen's body back into the world and attaches it.
func (c *Colony) LoadEntity(id uuid.UUID, seed int64) error {
	cz, ok := c.citizens[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCitizenNotFound, id)
	}
	e := c.entities.Load(id, seed)
	if err := cz.AttachEntity(e); err != nil {
		c.entities.Unload(id)
		c.recordAudit(AuditRejected, id.String(), "", err.Error())
		return err
	}
	c.recordAudit(AuditEntityLoaded, id.String(), "", fmt.Sprintf("runtime_id=%d", e.RuntimeID()))
	return nil
}

// UnloadEntity removes a citizen's body. The record stays; only the
// replicated view changes.
func (c *Colony) UnloadEntity(id uuid.UUID) error {
	cz, ok := c.citizens[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCitizenNotFound, id)
	}
	cz.DetachEntity()
	if c.entities.Unload(id) {
		c.viewsDirty = true
		c.recordAudit(AuditEntityUnloaded, id.String(), "", "")
	}
	return nil
}

func (c *Colony) AddBuilding(kind string, pos ids.BlockPos) (*Building, error) {
	b, err := c.placeBuilding(kind, pos)
	if err != nil {
		return nil, err
	}
	c.recordAudit(AuditBuildingAdded, "", b.ID(), "")
	return b, nil
}

// placeBuilding registers a building without auditing it. Restores use it
// directly since the original placement is already in the audit trail.
func (c *Colony) placeBuilding(kind string, pos ids.BlockPos) (*Building, error) {
	def, ok := c.cats.Buildings.Defs[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBuildingKind, kind)
	}
	b := &Building{pos: pos, def: def, occupants: map[uuid.UUID]struct{}{}}
	if !c.buildings.add(b) {
		return nil, fmt.Errorf("%w: %s", ErrBuildingExists, pos)
	}
	return b, nil
}

// RemoveBuilding tears a building down. The building first releases the
// occupants it knows about, then every citizen is told about the removal so
// associations the building lost track of are cleared as well.
func (c *Colony) RemoveBuilding(pos ids.BlockPos) error {
	b, ok := c.buildings.remove(pos)
	if !ok {
		return fmt.Errorf("%w: %s", ErrBuildingNotFound, pos)
	}
	for _, id := range b.Occupants() {
		cz, ok := c.citizens[id]
		if !ok {
			continue
		}
		var err error
		if b.Role() == catalogs.RoleHome {
			err = cz.SetHomeBuilding(nil)
		} else {
			err = cz.SetWorkBuilding(nil)
		}
		if err != nil {
			c.log.Printf("building %s teardown: release %s: %v", b.ID(), id, err)
		}
	}
	b.occupants = map[uuid.UUID]struct{}{}

	for _, cz := range c.Citizens() {
		if cz.OnRemoveBuilding(pos) {
			c.log.Printf("building %s teardown: citizen %s still bound, cleared", b.ID(), cz.ID())
		}
	}
	c.recordAudit(AuditBuildingRemoved, "", b.ID(), "")
	return nil
}

func (c *Colony) AssignHome(id uuid.UUID, pos ids.BlockPos) error {
	return c.assign(id, pos, catalogs.RoleHome)
}

func (c *Colony) AssignWork(id uuid.UUID, pos ids.BlockPos) error {
	return c.assign(id, pos, catalogs.RoleWork)
}

func (c *Colony) ClearHome(id uuid.UUID) error {
	return c.clear(id, catalogs.RoleHome)
}

func (c *Colony) ClearWork(id uuid.UUID) error {
	return c.clear(id, catalogs.RoleWork)
}

func (c *Colony) assign(id uuid.UUID, pos ids.BlockPos, role catalogs.BuildingRole) error {
	cz, ok := c.citizens[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCitizenNotFound, id)
	}
	b, ok := c.buildings.Lookup(pos)
	if !ok {
		return fmt.Errorf("%w: %s", ErrBuildingNotFound, pos)
	}

	var err error
	action := AuditAssignHome
	if role == catalogs.RoleHome {
		err = cz.SetHomeBuilding(b)
	} else {
		action = AuditAssignWork
		err = cz.SetWorkBuilding(b)
	}
	if err != nil {
		if errors.Is(err, citizen.ErrInvariantViolation) {
			c.log.Printf("assign %s: %v", role, err)
		}
		c.recordAudit(AuditRejected, id.String(), b.ID(), err.Error())
		return err
	}
	if _, already := b.occupants[id]; !already {
		b.occupants[id] = struct{}{}
		c.recordAudit(action, id.String(), b.ID(), "")
	}
	return nil
}

func (c *Colony) clear(id uuid.UUID, role catalogs.BuildingRole) error {
	cz, ok := c.citizens[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCitizenNotFound, id)
	}

	var (
		pos    ids.BlockPos
		bound  bool
		err    error
		action = AuditClearHome
	)
	if role == catalogs.RoleHome {
		pos, bound = cz.HomePos()
		err = cz.SetHomeBuilding(nil)
	} else {
		action = AuditClearWork
		pos, bound = cz.WorkPos()
		err = cz.SetWorkBuilding(nil)
	}
	if err != nil {
		return err
	}
	if !bound {
		return nil
	}
	building := ids.PosKey(pos)
	if b, ok := c.buildings.Lookup(pos); ok {
		delete(b.occupants, id)
		building = b.ID()
	}
	c.recordAudit(action, id.String(), building, "")
	return nil
}
