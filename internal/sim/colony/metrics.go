package colony

// ColonyMetrics is a read-only view of colony runtime signals. It is updated
// from the colony goroutine and read from HTTP handlers and tests.
type ColonyMetrics struct {
	Tick uint64 `json:"tick"`

	Citizens        int `json:"citizens"`
	LoadedEntities  int `json:"loaded_entities"`
	Buildings       int `json:"buildings"`
	DirtyCitizens   int `json:"dirty_citizens"`
	PendingCommands int `json:"pending_commands"`

	PersistedTotal   uint64 `json:"persisted_total"`
	PublishedTotal   uint64 `json:"published_total"`
	QuarantinedTotal uint64 `json:"quarantined_total"`

	StepMS float64 `json:"step_ms"`
}

func (c *Colony) Metrics() ColonyMetrics {
	if c == nil {
		return ColonyMetrics{}
	}
	m, _ := c.metrics.Load().(ColonyMetrics)
	return m
}

func (c *Colony) updateMetrics() {
	dirty := 0
	for _, cz := range c.citizens {
		if cz.IsDirty() {
			dirty++
		}
	}
	c.metrics.Store(ColonyMetrics{
		Tick:             c.tick.Load(),
		Citizens:         len(c.citizens),
		LoadedEntities:   c.entities.Len(),
		Buildings:        c.buildings.Len(),
		DirtyCitizens:    dirty,
		PendingCommands:  len(c.cmds),
		PersistedTotal:   c.persistedTotal,
		PublishedTotal:   c.publishedTotal,
		QuarantinedTotal: c.quarantinedTotal,
		StepMS:           float64(c.stepDur.Microseconds()) / 1000,
	})
}
