package colony

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"colonycraft.ai/internal/sim/citizen"
)

// Persist writes every dirty citizen to the store. Citizens stay dirty if the
// store fails so the next attempt retries them.
func (c *Colony) Persist(ctx context.Context) (int, error) {
	if c.store == nil || !c.citizensDirty {
		return 0, nil
	}

	var (
		docs  []CitizenDoc
		dirty []*citizen.Citizen
	)
	for _, cz := range c.Citizens() {
		if !cz.IsDirty() {
			continue
		}
		blob, err := cz.WriteDurable()
		if err != nil {
			return 0, fmt.Errorf("persist citizen %s: %w", cz.ID(), err)
		}
		docs = append(docs, CitizenDoc{ID: cz.ID(), Name: cz.Name(), Doc: blob})
		dirty = append(dirty, cz)
	}
	if len(docs) > 0 {
		if err := c.store.SaveCitizens(ctx, c.cfg.ID, c.tick.Load(), docs); err != nil {
			return 0, err
		}
	}
	for _, cz := range dirty {
		cz.ClearDirty()
	}
	c.citizensDirty = false
	c.persistedTotal += uint64(len(docs))
	return len(docs), nil
}

// LoadFromStore restores every stored citizen. A citizen already present
// (restored from a snapshot) is refreshed from its row, since the store is
// written more often than snapshots. Rows that fail to parse are quarantined:
// logged, audited and skipped, so one bad document cannot keep the colony
// from starting.
func (c *Colony) LoadFromStore(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}
	rows, err := c.store.LoadCitizens(ctx, c.cfg.ID)
	if err != nil {
		return 0, err
	}
	loaded := 0
	for _, row := range rows {
		key := row.Key
		if key == "" {
			key = row.ID.String()
		}
		var err error
		if cz, ok := c.citizens[row.ID]; ok && row.ID != uuid.Nil {
			err = cz.RestoreDurable(row.Doc)
		} else {
			err = c.restoreCitizen(key, row.Doc)
		}
		if err != nil {
			if !errors.Is(err, citizen.ErrMalformedRecord) {
				return loaded, err
			}
			c.quarantine(key, err)
			continue
		}
		loaded++
	}
	if loaded > 0 {
		c.viewsDirty = true
	}
	c.log.Printf("restored %d citizens from store (%d rows)", loaded, len(rows))
	return loaded, nil
}

// restoreCitizen adds a citizen from its durable document. The document's own
// id must match key when key is non-empty.
func (c *Colony) restoreCitizen(key string, doc []byte) error {
	id, err := citizen.DurableID(doc)
	if err != nil {
		return err
	}
	if key != "" && key != id.String() {
		return fmt.Errorf("%w: row %s holds citizen %s", citizen.ErrMalformedRecord, key, id)
	}
	if _, ok := c.citizens[id]; ok {
		return fmt.Errorf("%w: duplicate citizen %s", citizen.ErrMalformedRecord, id)
	}
	cz, err := citizen.FromDurable(id, c.links(), doc)
	if err != nil {
		return err
	}
	c.citizens[id] = cz
	return nil
}

func (c *Colony) quarantine(key string, err error) {
	c.quarantinedTotal++
	c.log.Printf("quarantine citizen %s: %v", key, err)
	c.recordAudit(AuditQuarantined, key, "", err.Error())
}
