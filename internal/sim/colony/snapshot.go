package colony

import (
	"errors"
	"fmt"
	"path/filepath"

	"colonycraft.ai/internal/persistence/snapshot"
	"colonycraft.ai/internal/sim/citizen"
	"colonycraft.ai/internal/sim/ids"
)

const snapshotVersion = 1

// ExportSnapshot captures citizens (as durable documents) and buildings.
func (c *Colony) ExportSnapshot() (snapshot.ColonySnapshotV1, error) {
	snap := snapshot.ColonySnapshotV1{
		Header: snapshot.Header{
			Version:  snapshotVersion,
			ColonyID: c.cfg.ID,
			Tick:     c.tick.Load(),
		},
		NamesDigest:     c.cats.Names.Digest,
		BuildingsDigest: c.cats.Buildings.Digest,
	}
	for _, cz := range c.Citizens() {
		blob, err := cz.WriteDurable()
		if err != nil {
			return snapshot.ColonySnapshotV1{}, fmt.Errorf("snapshot citizen %s: %w", cz.ID(), err)
		}
		snap.Citizens = append(snap.Citizens, blob)
	}
	for _, b := range c.buildings.List() {
		p := b.Pos()
		snap.Buildings = append(snap.Buildings, snapshot.BuildingV1{Kind: b.Kind(), Pos: [3]int{p.X, p.Y, p.Z}})
	}
	return snap, nil
}

// ImportSnapshot loads a snapshot into an empty colony. Malformed citizen
// documents are quarantined; everything else must match this colony.
func (c *Colony) ImportSnapshot(snap snapshot.ColonySnapshotV1) error {
	if snap.Header.Version != snapshotVersion {
		return fmt.Errorf("snapshot: unsupported version %d", snap.Header.Version)
	}
	if snap.Header.ColonyID != c.cfg.ID {
		return fmt.Errorf("snapshot: colony %q, want %q", snap.Header.ColonyID, c.cfg.ID)
	}
	if len(c.citizens) > 0 || c.buildings.Len() > 0 {
		return errors.New("snapshot: colony not empty")
	}
	if snap.NamesDigest != "" && snap.NamesDigest != c.cats.Names.Digest {
		c.log.Printf("snapshot names digest %s differs from loaded catalog %s", snap.NamesDigest, c.cats.Names.Digest)
	}

	// Restore audits (quarantines) carry the snapshot tick.
	c.tick.Store(snap.Header.Tick)
	for _, bv := range snap.Buildings {
		pos := ids.BlockPos{X: bv.Pos[0], Y: bv.Pos[1], Z: bv.Pos[2]}
		if _, err := c.placeBuilding(bv.Kind, pos); err != nil {
			return fmt.Errorf("snapshot building %s: %w", ids.BuildingID(bv.Kind, pos), err)
		}
	}
	for i, doc := range snap.Citizens {
		if err := c.restoreCitizen("", doc); err != nil {
			if !errors.Is(err, citizen.ErrMalformedRecord) {
				return err
			}
			c.quarantine(fmt.Sprintf("snapshot[%d]", i), err)
		}
	}
	c.viewsDirty = true
	return nil
}

// SaveSnapshot writes a snapshot file under the configured directory and
// returns its path.
func (c *Colony) SaveSnapshot() (string, error) {
	if c.cfg.SnapshotDir == "" {
		return "", errors.New("snapshot dir not configured")
	}
	snap, err := c.ExportSnapshot()
	if err != nil {
		return "", err
	}
	path := filepath.Join(c.cfg.SnapshotDir, snapshot.FileName(snap.Header.Tick))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return "", err
	}
	if c.snapshots != nil {
		c.snapshots.RecordSnapshot(path, c.cfg.ID, snap.Header.Tick, len(snap.Citizens), len(snap.Buildings))
	}
	c.log.Printf("snapshot tick=%d citizens=%d buildings=%d -> %s", snap.Header.Tick, len(snap.Citizens), len(snap.Buildings), path)
	return path, nil
}

// RestoreLatestSnapshot imports the newest snapshot in the configured
// directory. It reports false when there is none.
func (c *Colony) RestoreLatestSnapshot() (bool, error) {
	if c.cfg.SnapshotDir == "" {
		return false, nil
	}
	path, err := snapshot.Latest(c.cfg.SnapshotDir)
	if err != nil || path == "" {
		return false, err
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := c.ImportSnapshot(snap); err != nil {
		return false, fmt.Errorf("import %s: %w", path, err)
	}
	c.log.Printf("restored snapshot %s (tick %d)", path, snap.Header.Tick)
	return true, nil
}
