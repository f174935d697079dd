package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/ecs"
)

type Catalogs struct {
	Blocks   BlockCatalog
	Entities EntityCatalog
}

type BlockCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]BlockDef
	PaletteDigest string
	DefsDigest    string
}

type BlockDef struct {
	ID    string `json:"id"`
	Solid bool   `json:"solid"`
}

type EntityCatalog struct {
	Defs   map[string]EntityDef
	Digest string
}

// EntityDef describes an archetype. Controllable entities receive a Movement
// attribute; physical ones get Velocity so the physics step moves them.
type EntityDef struct {
	ID           string `json:"id"`
	Controllable bool   `json:"controllable"`
	Physical     bool   `json:"physical"`
	Spawnable    bool   `json:"spawnable"`
}

func (d EntityDef) Archetype() ecs.Archetype {
	attrs := []ecs.Attribute{ecs.Position{}}
	if d.Physical {
		attrs = append(attrs, ecs.Velocity{})
	}
	if d.Controllable {
		attrs = append(attrs, ecs.Movement{})
	}
	return ecs.NewArchetype(d.ID, attrs...)
}

func Load(configDir string) (*Catalogs, error) {
	blocks, err := os.ReadFile(filepath.Join(configDir, "blocks.json"))
	if err != nil {
		return nil, err
	}
	entities, err := os.ReadFile(filepath.Join(configDir, "entities.json"))
	if err != nil {
		return nil, err
	}
	return Parse(blocks, entities)
}

// Parse builds catalogs from raw blocks.json and entities.json contents.
func Parse(blocksJSON, entitiesJSON []byte) (*Catalogs, error) {
	var c Catalogs
	if err := parseBlocks(blocksJSON, &c.Blocks); err != nil {
		return nil, err
	}
	if err := parseEntities(entitiesJSON, &c.Entities); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func parseBlocks(raw []byte, out *BlockCatalog) error {
	out.DefsDigest = sha256Hex(raw)

	var defs []BlockDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("blocks.json: %w", err)
	}
	out.Defs = map[string]BlockDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("blocks.json: empty id")
		}
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("blocks.json: duplicate id %q", d.ID)
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// AIR is palette id 0.
	if _, ok := out.Defs["AIR"]; !ok {
		return fmt.Errorf("blocks.json: missing AIR")
	}
	ids = append([]string{"AIR"}, filterOut(ids, "AIR")...)

	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func parseEntities(raw []byte, out *EntityCatalog) error {
	out.Digest = sha256Hex(raw)

	var defs []EntityDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("entities.json: %w", err)
	}
	out.Defs = map[string]EntityDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("entities.json: empty id")
		}
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("entities.json: duplicate id %q", d.ID)
		}
		out.Defs[d.ID] = d
	}
	return nil
}

func filterOut(ids []string, drop string) []string {
	out := ids[:0:0]
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}

// BlockID resolves a block name to its palette index.
func (c *Catalogs) BlockID(name string) (uint16, bool) {
	id, ok := c.Blocks.Index[name]
	return id, ok
}

// BlockName is the inverse of BlockID.
func (c *Catalogs) BlockName(id uint16) (string, bool) {
	if int(id) >= len(c.Blocks.Palette) {
		return "", false
	}
	return c.Blocks.Palette[id], true
}

// Solid reports whether the block with palette index id collides.
func (c *Catalogs) Solid(id uint16) bool {
	name, ok := c.BlockName(id)
	if !ok {
		return false
	}
	return c.Blocks.Defs[name].Solid
}

func (c *Catalogs) Archetype(name string) (ecs.Archetype, bool) {
	d, ok := c.Entities.Defs[name]
	if !ok {
		return ecs.Archetype{}, false
	}
	return d.Archetype(), true
}
