package terrain

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
)

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// TileAt returns the tile containing world point p.
func TileAt(p mgl64.Vec2) TilePos {
	return TilePos{X: int(math.Floor(p[0])), Y: int(math.Floor(p[1]))}
}

func (s *ChunkStore) LoadedChunkKeys() []ChunkKey {
	keys := make([]ChunkKey, 0, len(s.Chunks))
	for k := range s.Chunks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CY < keys[j].CY
	})
	return keys
}

func (s *ChunkStore) Block(p TilePos, l Layer) uint16 {
	if l >= layerCount {
		return s.Gen.Air
	}
	ch := s.GetOrGenChunk(floorDiv(p.X, ChunkSize), floorDiv(p.Y, ChunkSize))
	return ch.Get(l, mod(p.X, ChunkSize), mod(p.Y, ChunkSize))
}

// PlaceBlock writes kind at p on layer l. Placing Air removes the block.
func (s *ChunkStore) PlaceBlock(p TilePos, l Layer, kind uint16) {
	if l >= layerCount {
		return
	}
	ch := s.GetOrGenChunk(floorDiv(p.X, ChunkSize), floorDiv(p.Y, ChunkSize))
	ch.Set(l, mod(p.X, ChunkSize), mod(p.Y, ChunkSize), kind)
}

// Solid reports whether the foreground tile at (x, y) collides.
func (s *ChunkStore) Solid(x, y int) bool {
	b := s.Block(TilePos{X: x, Y: y}, Foreground)
	if b == s.Gen.Air {
		return false
	}
	if s.Gen.Solid == nil {
		return true
	}
	return s.Gen.Solid(b)
}

func (s *ChunkStore) GetOrGenChunk(cx, cy int) *Chunk {
	k := ChunkKey{CX: cx, CY: cy}
	if ch, ok := s.Chunks[k]; ok {
		return ch
	}
	ch := newChunk(cx, cy)
	s.GenerateChunk(ch)
	ch.dirty = true
	_ = ch.Digest()
	s.Chunks[k] = ch
	return ch
}

func (s *ChunkStore) GenerateChunk(ch *Chunk) {
	for y := 0; y < ChunkSize; y++ {
		wy := ch.CY*ChunkSize + y
		b := s.Gen.Air
		if wy < s.Gen.GroundY {
			b = s.Gen.Ground
		}
		for x := 0; x < ChunkSize; x++ {
			ch.Blocks[Foreground][ch.index(x, y)] = b
			ch.Blocks[Background][ch.index(x, y)] = s.Gen.Air
		}
	}
}

// Digest hashes every loaded chunk in key order.
func (s *ChunkStore) Digest() string {
	h := sha256.New()
	for _, k := range s.LoadedChunkKeys() {
		d := s.Chunks[k].Digest()
		h.Write(d[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
