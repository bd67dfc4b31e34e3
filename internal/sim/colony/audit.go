package colony

// Audit actions.
const (
	AuditSpawn           = "SPAWN"
	AuditCitizenRemoved  = "CITIZEN_REMOVED"
	AuditEntityLoaded    = "ENTITY_LOADED"
	AuditEntityUnloaded  = "ENTITY_UNLOADED"
	AuditAssignHome      = "ASSIGN_HOME"
	AuditAssignWork      = "ASSIGN_WORK"
	AuditClearHome       = "CLEAR_HOME"
	AuditClearWork       = "CLEAR_WORK"
	AuditBuildingAdded   = "BUILDING_ADDED"
	AuditBuildingRemoved = "BUILDING_REMOVED"
	AuditRejected        = "REJECTED"
	AuditQuarantined     = "QUARANTINED"
)

type AuditEntry struct {
	Tick     uint64 `json:"tick"`
	ColonyID string `json:"colony_id"`
	Action   string `json:"action"`
	Citizen  string `json:"citizen_id,omitempty"`
	Building string `json:"building,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type AuditSink interface {
	WriteAudit(AuditEntry) error
}

// AuditSinks fans one entry out to several sinks.
type AuditSinks []AuditSink

func (s AuditSinks) WriteAudit(e AuditEntry) error {
	var first error
	for _, sink := range s {
		if sink == nil {
			continue
		}
		if err := sink.WriteAudit(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (c *Colony) recordAudit(action, citizenID, building, reason string) {
	if c.audit == nil {
		return
	}
	e := AuditEntry{
		Tick:     c.tick.Load(),
		ColonyID: c.cfg.ID,
		Action:   action,
		Citizen:  citizenID,
		Building: building,
		Reason:   reason,
	}
	if err := c.audit.WriteAudit(e); err != nil {
		c.log.Printf("audit %s: %v", action, err)
	}
}
