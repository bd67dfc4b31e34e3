package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type Catalogs struct {
	Names     NameCatalog
	Buildings BuildingCatalog
}

// NameTables are the tables citizen names are drawn from. First names are
// partitioned by gender; last names are shared.
type NameTables struct {
	MaleFirst   []string `json:"male_first"`
	FemaleFirst []string `json:"female_first"`
	Last        []string `json:"last"`
}

type NameCatalog struct {
	NameTables
	Digest string
}

type BuildingRole string

const (
	RoleHome BuildingRole = "HOME"
	RoleWork BuildingRole = "WORK"
)

type BuildingDef struct {
	ID             string       `json:"id"`
	Role           BuildingRole `json:"role"`
	DisplayName    string       `json:"display_name"`
	JobName        string       `json:"job_name,omitempty"`
	MaxInhabitants int          `json:"max_inhabitants"`
}

type BuildingCatalog struct {
	Kinds  []string
	Defs   map[string]BuildingDef
	Digest string
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadNames(filepath.Join(configDir, "names.json"), &c.Names); err != nil {
		return nil, err
	}
	if err := loadBuildings(filepath.Join(configDir, "buildings.json"), &c.Buildings); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadNames(path string, out *NameCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	if err := json.Unmarshal(raw, &out.NameTables); err != nil {
		return fmt.Errorf("names.json: %w", err)
	}
	return out.NameTables.Validate()
}

// Validate rejects tables a name cannot be drawn from.
func (t NameTables) Validate() error {
	tables := []struct {
		key  string
		vals []string
	}{
		{"male_first", t.MaleFirst},
		{"female_first", t.FemaleFirst},
		{"last", t.Last},
	}
	for _, tb := range tables {
		if len(tb.vals) == 0 {
			return fmt.Errorf("names.json: %s is empty", tb.key)
		}
		for i, v := range tb.vals {
			if strings.TrimSpace(v) == "" {
				return fmt.Errorf("names.json: %s[%d] is blank", tb.key, i)
			}
		}
	}
	return nil
}

func loadBuildings(path string, out *BuildingCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []BuildingDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("buildings.json: %w", err)
	}
	out.Defs = map[string]BuildingDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("buildings.json: empty id")
		}
		if d.Role != RoleHome && d.Role != RoleWork {
			return fmt.Errorf("buildings.json: %s: unknown role %q", d.ID, d.Role)
		}
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("buildings.json: duplicate id %s", d.ID)
		}
		out.Defs[d.ID] = d
	}

	out.Kinds = make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		out.Kinds = append(out.Kinds, id)
	}
	sort.Strings(out.Kinds)
	return nil
}
