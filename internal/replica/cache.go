package replica

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"

	"colonycraft.ai/internal/protocol"
	"colonycraft.ai/internal/sim/citizen"
)

// Cache is an observer's copy of one colony's citizen views. Each applied
// snapshot replaces the set of citizens; a blob that fails to parse keeps the
// previous View for that citizen so one bad record never blanks the roster.
type Cache struct {
	colonyID string
	log      *log.Logger

	mu    sync.RWMutex
	tick  uint64
	views map[uuid.UUID]*citizen.View

	rejected uint64
}

type ApplyResult struct {
	Updated int
	Kept    int // stale views kept after a parse failure
	Removed int
	Skipped int // parse failures with no previous view
}

func NewCache(colonyID string, logger *log.Logger) *Cache {
	return &Cache{colonyID: colonyID, log: logger, views: map[uuid.UUID]*citizen.View{}}
}

// Apply installs a snapshot. Snapshots for another colony, or older than the
// one already applied, are ignored.
func (c *Cache) Apply(msg protocol.CitizenViewsMsg) (ApplyResult, error) {
	var res ApplyResult
	if msg.ColonyID != c.colonyID {
		return res, fmt.Errorf("replica: snapshot for colony %q, want %q", msg.ColonyID, c.colonyID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if msg.Tick < c.tick {
		return res, nil
	}

	next := make(map[uuid.UUID]*citizen.View, len(msg.Citizens))
	for _, cb := range msg.Citizens {
		id, err := uuid.Parse(cb.ID)
		if err != nil {
			c.rejected++
			res.Skipped++
			c.printf("citizen view %q: bad id: %v", cb.ID, err)
			continue
		}
		v, err := citizen.ParseView(id, cb.Blob)
		if err != nil {
			c.rejected++
			c.printf("%v", err)
			if old, ok := c.views[id]; ok {
				next[id] = old
				res.Kept++
			} else {
				res.Skipped++
			}
			continue
		}
		next[id] = v
		res.Updated++
	}
	for id := range c.views {
		if _, ok := next[id]; !ok {
			res.Removed++
		}
	}
	c.views = next
	c.tick = msg.Tick
	return res, nil
}

func (c *Cache) Get(id uuid.UUID) (*citizen.View, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.views[id]
	return v, ok
}

// List returns every view ordered by name, then id.
func (c *Cache) List() []*citizen.View {
	c.mu.RLock()
	out := make([]*citizen.View, 0, len(c.views))
	for _, v := range c.views {
		out = append(out, v)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name() != out[j].Name() {
			return out[i].Name() < out[j].Name()
		}
		return out[i].ID().String() < out[j].ID().String()
	})
	return out
}

func (c *Cache) Tick() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tick
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.views)
}

// Rejected counts blobs that failed to parse since the cache was created.
func (c *Cache) Rejected() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rejected
}

func (c *Cache) printf(format string, args ...any) {
	if c.log != nil {
		c.log.Printf(format, args...)
	}
}
