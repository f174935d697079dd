package catalogs

import (
	"testing"

	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/ecs"
)

func TestLoad_RepoConfigs(t *testing.T) {
	c, err := Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	if id, ok := c.BlockID("AIR"); !ok || id != 0 {
		t.Fatalf("AIR id=%d ok=%v", id, ok)
	}
	dirt, ok := c.BlockID("DIRT")
	if !ok || !c.Solid(dirt) {
		t.Fatalf("DIRT should exist and be solid")
	}
	arch, ok := c.Archetype("player")
	if !ok {
		t.Fatalf("missing player archetype")
	}
	kinds := map[ecs.Kind]bool{}
	for _, a := range arch.Attributes {
		kinds[a.Kind()] = true
	}
	for _, k := range []ecs.Kind{ecs.KindPosition, ecs.KindVelocity, ecs.KindMovement, ecs.KindIdentity} {
		if !kinds[k] {
			t.Fatalf("player archetype missing %s", k)
		}
	}
}

func TestParse_PaletteOrder(t *testing.T) {
	c, err := Parse(
		[]byte(`[{"id":"STONE","solid":true},{"id":"AIR"},{"id":"DIRT","solid":true}]`),
		[]byte(`[{"id":"slime","physical":true,"spawnable":true}]`),
	)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []string{"AIR", "DIRT", "STONE"}
	for i, id := range want {
		if c.Blocks.Palette[i] != id {
			t.Fatalf("palette=%v", c.Blocks.Palette)
		}
	}
	if name, ok := c.BlockName(2); !ok || name != "STONE" {
		t.Fatalf("BlockName(2)=%q", name)
	}
	if c.Solid(0) || c.Solid(99) {
		t.Fatalf("AIR and unknown ids are not solid")
	}
	arch, _ := c.Archetype("slime")
	for _, a := range arch.Attributes {
		if a.Kind() == ecs.KindMovement {
			t.Fatalf("non-controllable archetype got Movement")
		}
	}
}

func TestParse_Errors(t *testing.T) {
	cases := []struct {
		name     string
		blocks   string
		entities string
	}{
		{"missing air", `[{"id":"DIRT"}]`, `[]`},
		{"empty block id", `[{"id":"AIR"},{"id":""}]`, `[]`},
		{"duplicate entity", `[{"id":"AIR"}]`, `[{"id":"a"},{"id":"a"}]`},
		{"bad json", `{`, `[]`},
	}
	for _, tc := range cases {
		if _, err := Parse([]byte(tc.blocks), []byte(tc.entities)); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}
