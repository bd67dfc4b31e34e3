package citizen

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed citizen.schema.json
var durableSchemaJSON string

const durableSchemaURL = "https://colonycraft.ai/schemas/citizen.schema.json"

var durableSchema = jsonschema.MustCompileString(durableSchemaURL, durableSchemaJSON)

// DurableV1 is the saved form of a citizen. Building and entity bindings are
// not part of it; the simulation re-establishes them after load.
type DurableV1 struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Female  bool   `json:"female"`
	Texture int    `json:"texture"`
	Level   int    `json:"level"`
	Skills  Skills `json:"skills"`
}

func (c *Citizen) WriteDurable() ([]byte, error) {
	return json.Marshal(DurableV1{
		ID:      c.id.String(),
		Name:    c.name,
		Female:  c.female,
		Texture: c.textureID,
		Level:   c.level,
		Skills:  c.skills,
	})
}

// RestoreDurable loads a document written by WriteDurable. Missing fields are
// ErrMalformedRecord; nothing is defaulted. The citizen is unchanged on error.
func (c *Citizen) RestoreDurable(blob []byte) error {
	doc, err := decodeDurable(blob)
	if err != nil {
		return fmt.Errorf("citizen %s: %w", c.id, err)
	}
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return fmt.Errorf("%w: citizen %s: id %q: %v", ErrMalformedRecord, c.id, doc.ID, err)
	}
	if id != c.id {
		return fmt.Errorf("%w: citizen %s: document belongs to %s", ErrMalformedRecord, c.id, id)
	}

	c.name = doc.Name
	c.female = doc.Female
	c.textureID = doc.Texture
	c.level = doc.Level
	c.skills = doc.Skills
	return nil
}

// DurableID reads the id of a durable document.
func DurableID(blob []byte) (uuid.UUID, error) {
	doc, err := decodeDurable(blob)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: id %q: %v", ErrMalformedRecord, doc.ID, err)
	}
	return id, nil
}

func decodeDurable(blob []byte) (DurableV1, error) {
	var doc DurableV1

	dec := json.NewDecoder(bytes.NewReader(blob))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return doc, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if err := durableSchema.Validate(raw); err != nil {
		return doc, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if err := json.Unmarshal(blob, &doc); err != nil {
		return doc, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return doc, nil
}
