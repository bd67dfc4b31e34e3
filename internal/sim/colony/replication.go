package colony

import (
	"fmt"

	"colonycraft.ai/internal/protocol"
)

// BuildViews serializes every citizen's network view into one message.
func (c *Colony) BuildViews() (protocol.CitizenViewsMsg, error) {
	msg := protocol.CitizenViewsMsg{
		Type:            protocol.TypeCitizenViews,
		ProtocolVersion: protocol.Version,
		ColonyID:        c.cfg.ID,
		Tick:            c.tick.Load(),
	}
	all := c.Citizens()
	msg.Citizens = make([]protocol.CitizenBlob, 0, len(all))
	for _, cz := range all {
		blob, err := cz.WriteView()
		if err != nil {
			return protocol.CitizenViewsMsg{}, fmt.Errorf("view citizen %s: %w", cz.ID(), err)
		}
		msg.Citizens = append(msg.Citizens, protocol.CitizenBlob{ID: cz.ID().String(), Blob: blob})
	}
	return msg, nil
}

// PublishViews sends a fresh snapshot to the publisher when anything visible
// changed since the last one.
func (c *Colony) PublishViews() (bool, error) {
	if c.pub == nil || !c.viewsDirty {
		return false, nil
	}
	msg, err := c.BuildViews()
	if err != nil {
		return false, err
	}
	c.pub.Publish(msg)
	c.viewsDirty = false
	c.publishedTotal++
	return true, nil
}
