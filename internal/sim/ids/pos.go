package ids

import (
	"fmt"
	"strconv"
	"strings"
)

// BlockPos is the anchor block of a colony building. Buildings are keyed by it,
// so two buildings are the same building iff their positions are equal.
type BlockPos struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (p BlockPos) String() string { return PosKey(p) }

// PosKey is the stable text key used by storage and admin requests.
func PosKey(p BlockPos) string {
	return fmt.Sprintf("%d,%d,%d", p.X, p.Y, p.Z)
}

func ParsePosKey(key string) (BlockPos, bool) {
	coord := strings.Split(strings.TrimSpace(key), ",")
	if len(coord) != 3 {
		return BlockPos{}, false
	}
	x, err1 := strconv.Atoi(strings.TrimSpace(coord[0]))
	y, err2 := strconv.Atoi(strings.TrimSpace(coord[1]))
	z, err3 := strconv.Atoi(strings.TrimSpace(coord[2]))
	if err1 != nil || err2 != nil || err3 != nil {
		return BlockPos{}, false
	}
	return BlockPos{X: x, Y: y, Z: z}, true
}

// BuildingID is the typed building id used in audit entries and logs.
func BuildingID(kind string, p BlockPos) string {
	return fmt.Sprintf("%s@%s", kind, PosKey(p))
}

func ParseBuildingID(id string) (kind string, p BlockPos, ok bool) {
	parts := strings.SplitN(id, "@", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "", BlockPos{}, false
	}
	p, ok = ParsePosKey(parts[1])
	if !ok {
		return "", BlockPos{}, false
	}
	return parts[0], p, true
}
