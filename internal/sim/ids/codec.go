package ids

import (
	"fmt"

	"colonycraft.ai/internal/codec"
)

type posWire struct {
	X int `cbor:"x"`
	Y int `cbor:"y"`
	Z int `cbor:"z"`
}

type posWireIn struct {
	X *int `cbor:"x"`
	Y *int `cbor:"y"`
	Z *int `cbor:"z"`
}

// MarshalCBOR writes the position as a {x,y,z} map, the coordinate form
// replicated views carry for building associations.
func (p BlockPos) MarshalCBOR() ([]byte, error) {
	return codec.Marshal(posWire{X: p.X, Y: p.Y, Z: p.Z})
}

// UnmarshalCBOR requires all three coordinates.
func (p *BlockPos) UnmarshalCBOR(data []byte) error {
	var w posWireIn
	if err := codec.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.X == nil || w.Y == nil || w.Z == nil {
		return fmt.Errorf("block pos: missing coordinate")
	}
	*p = BlockPos{X: *w.X, Y: *w.Y, Z: *w.Z}
	return nil
}
