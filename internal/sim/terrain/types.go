package terrain

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// ChunkSize is the edge length of a square chunk, in tiles.
const ChunkSize = 16

// Layer selects which tile plane a block lives on. Only the foreground
// collides.
type Layer uint8

const (
	Foreground Layer = iota
	Background

	layerCount
)

func (l Layer) String() string {
	switch l {
	case Foreground:
		return "FOREGROUND"
	case Background:
		return "BACKGROUND"
	}
	return "UNKNOWN"
}

// ParseLayer is the inverse of Layer.String.
func ParseLayer(s string) (Layer, bool) {
	switch s {
	case "FOREGROUND", "":
		return Foreground, true
	case "BACKGROUND":
		return Background, true
	}
	return 0, false
}

type ChunkKey struct {
	CX int
	CY int
}

type TilePos struct {
	X int
	Y int
}

type Chunk struct {
	CX, CY int
	Blocks [layerCount][]uint16 // each len = ChunkSize*ChunkSize

	dirty bool
	hash  [32]byte
}

func newChunk(cx, cy int) *Chunk {
	ch := &Chunk{CX: cx, CY: cy}
	for i := range ch.Blocks {
		ch.Blocks[i] = make([]uint16, ChunkSize*ChunkSize)
	}
	return ch
}

func (c *Chunk) index(x, y int) int {
	return x + y*ChunkSize
}

func (c *Chunk) Get(l Layer, x, y int) uint16 {
	return c.Blocks[l][c.index(x, y)]
}

func (c *Chunk) Set(l Layer, x, y int, b uint16) {
	i := c.index(x, y)
	if c.Blocks[l][i] == b {
		return
	}
	c.Blocks[l][i] = b
	c.dirty = true
}

func (c *Chunk) Digest() [32]byte {
	if c.dirty || c.hash == ([32]byte{}) {
		h := sha256.New()
		var tmp [2]byte
		for _, layer := range c.Blocks {
			for _, v := range layer {
				binary.LittleEndian.PutUint16(tmp[:], v)
				h.Write(tmp[:])
			}
		}
		copy(c.hash[:], h.Sum(nil))
		c.dirty = false
	}
	return c.hash
}

// Gen describes how unloaded chunks are filled in. Tiles with y < GroundY are
// Ground, everything above is Air.
type Gen struct {
	GroundY int

	Air    uint16
	Ground uint16

	// Solid reports whether a foreground block collides. Nil means every
	// non-Air block is solid.
	Solid func(b uint16) bool
}

type ChunkStore struct {
	Gen    Gen
	Chunks map[ChunkKey]*Chunk
}

func NewChunkStore(gen Gen) *ChunkStore {
	return &ChunkStore{
		Gen:    gen,
		Chunks: map[ChunkKey]*Chunk{},
	}
}

// Palette is the part of the block catalog a generator needs.
type Palette interface {
	BlockID(name string) (uint16, bool)
	Solid(id uint16) bool
}

// NewFlat builds a store filled with groundBlock below groundY. Air is
// palette id 0.
func NewFlat(p Palette, groundY int, groundBlock string) (*ChunkStore, error) {
	ground, ok := p.BlockID(groundBlock)
	if !ok {
		return nil, fmt.Errorf("terrain: unknown ground block %q", groundBlock)
	}
	return NewChunkStore(Gen{
		GroundY: groundY,
		Air:     0,
		Ground:  ground,
		Solid:   p.Solid,
	}), nil
}
