package colony

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"colonycraft.ai/internal/protocol"
	"colonycraft.ai/internal/sim/catalogs"
	"colonycraft.ai/internal/sim/citizen"
	"colonycraft.ai/internal/sim/entity"
	"colonycraft.ai/internal/sim/tuning"
)

type Config struct {
	ID string

	TickRateHz          int
	PersistEveryTicks   int
	ReplicateEveryTicks int
	SnapshotEveryTicks  int // 0 disables periodic snapshots

	// SnapshotDir receives "<tick>.snap.zst" files. Empty disables snapshots.
	SnapshotDir string
}

func ConfigFromTuning(id, snapshotDir string, t tuning.Tuning) Config {
	return Config{
		ID:                  id,
		TickRateHz:          t.TickRateHz,
		PersistEveryTicks:   t.PersistEveryTicks,
		ReplicateEveryTicks: t.ReplicateEveryTicks,
		SnapshotEveryTicks:  t.SnapshotEveryTicks,
		SnapshotDir:         snapshotDir,
	}
}

// CitizenDoc is one durable citizen row.
type CitizenDoc struct {
	ID   uuid.UUID
	Name string
	Doc  []byte

	// Key is the row key as stored. Loaders set it so a key that is not a
	// uuid (ID is then nil) can still be reported.
	Key string
}

// CitizenDeleter is implemented by stores that can drop a citizen row.
type CitizenDeleter interface {
	DeleteCitizen(ctx context.Context, colonyID string, id uuid.UUID) error
}

// Store persists durable citizen documents.
type Store interface {
	SaveCitizens(ctx context.Context, colonyID string, tick uint64, docs []CitizenDoc) error
	LoadCitizens(ctx context.Context, colonyID string) ([]CitizenDoc, error)
}

// Publisher fans replicated view snapshots out to remote observers.
type Publisher interface {
	Publish(msg protocol.CitizenViewsMsg)
}

// SnapshotRecorder is told about every snapshot file written.
type SnapshotRecorder interface {
	RecordSnapshot(path string, colonyID string, tick uint64, citizens, buildings int)
}

// SnapshotRecorders fans one snapshot notice out to several recorders.
type SnapshotRecorders []SnapshotRecorder

func (s SnapshotRecorders) RecordSnapshot(path string, colonyID string, tick uint64, citizens, buildings int) {
	for _, r := range s {
		if r != nil {
			r.RecordSnapshot(path, colonyID, tick, citizens, buildings)
		}
	}
}

// Deps are the optional collaborators of a colony. Nil fields disable the
// corresponding feature.
type Deps struct {
	Store     Store
	Publisher Publisher
	Audit     AuditSink
	Snapshots SnapshotRecorder
}

// Colony owns a set of citizen records, the buildings they can be bound to,
// and the entities that represent them while loaded. All mutation happens on
// the goroutine running Run (or the caller's goroutine when Run is not used).
type Colony struct {
	cfg  Config
	cats *catalogs.Catalogs
	log  *log.Logger

	tick atomic.Uint64

	citizens  map[uuid.UUID]*citizen.Citizen
	entities  *entity.Registry
	buildings *BuildingRegistry

	// citizensDirty: some record needs persisting. viewsDirty: the replicated
	// snapshot is stale.
	citizensDirty bool
	viewsDirty    bool

	store     Store
	pub       Publisher
	audit     AuditSink
	snapshots SnapshotRecorder

	cmds chan command
	stop chan struct{}

	persistedTotal   uint64
	publishedTotal   uint64
	quarantinedTotal uint64
	stepDur          time.Duration

	metrics atomic.Value
}

func New(cfg Config, cats *catalogs.Catalogs, logger *log.Logger, deps Deps) (*Colony, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("colony: empty id")
	}
	if cats == nil {
		return nil, fmt.Errorf("colony: nil catalogs")
	}
	if err := cats.Names.Validate(); err != nil {
		return nil, err
	}
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 5
	}
	if cfg.PersistEveryTicks <= 0 {
		cfg.PersistEveryTicks = 1
	}
	if cfg.ReplicateEveryTicks <= 0 {
		cfg.ReplicateEveryTicks = 1
	}
	if logger == nil {
		logger = log.New(os.Stdout, "[colony] ", log.LstdFlags|log.Lmicroseconds)
	}
	c := &Colony{
		cfg:       cfg,
		cats:      cats,
		log:       logger,
		citizens:  map[uuid.UUID]*citizen.Citizen{},
		entities:  entity.NewRegistry(),
		buildings: NewBuildingRegistry(),
		store:     deps.Store,
		pub:       deps.Publisher,
		audit:     deps.Audit,
		snapshots: deps.Snapshots,
		cmds:      make(chan command, 256),
		stop:      make(chan struct{}),
	}
	c.updateMetrics()
	return c, nil
}

func (c *Colony) ID() string                   { return c.cfg.ID }
func (c *Colony) Config() Config               { return c.cfg }
func (c *Colony) CurrentTick() uint64          { return c.tick.Load() }
func (c *Colony) Entities() *entity.Registry   { return c.entities }
func (c *Colony) Buildings() *BuildingRegistry { return c.buildings }
func (c *Colony) Catalogs() *catalogs.Catalogs { return c.cats }
func (c *Colony) CitizensDirty() bool          { return c.citizensDirty }

func (c *Colony) Citizen(id uuid.UUID) (*citizen.Citizen, bool) {
	cz, ok := c.citizens[id]
	return cz, ok
}

// MarkCitizensDirty is the dirty callback handed to every citizen.
func (c *Colony) MarkCitizensDirty() {
	c.citizensDirty = true
	c.viewsDirty = true
}

func (c *Colony) links() citizen.Links {
	return citizen.Links{
		Entities:  c.entities,
		Buildings: c.buildings,
		Dirty:     c.MarkCitizensDirty,
	}
}

// Citizens returns every citizen ordered by id.
func (c *Colony) Citizens() []*citizen.Citizen {
	out := make([]*citizen.Citizen, 0, len(c.citizens))
	for _, cz := range c.citizens {
		out = append(out, cz)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].ID(), out[j].ID()
		return string(a[:]) < string(b[:])
	})
	return out
}
