package devserver

import (
	"errors"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/catalogs"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/ecs"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/physics"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/terrain"
)

var (
	errStale        = errors.New("tick not newer than last command")
	errNoEntity     = errors.New("no such entity")
	errNotSpawnable = errors.New("kind is not spawnable")
)

// world is the authoritative simulation shared by every connection. Players
// are stepped one command at a time, never by wall clock, so a client that
// runs the same physics lands on the same position.
type world struct {
	mu sync.Mutex

	cats    *catalogs.Catalogs
	ents    *ecs.World
	terrain *terrain.ChunkStore
	engine  *physics.Engine

	lastTick map[ecs.Handle]uint32
	next     ecs.Handle
}

func newWorld(cats *catalogs.Catalogs, params physics.Params, groundY int, groundBlock string) (*world, error) {
	store, err := terrain.NewFlat(cats, groundY, groundBlock)
	if err != nil {
		return nil, err
	}
	return &world{
		cats:     cats,
		ents:     ecs.NewWorld("server"),
		terrain:  store,
		engine:   physics.NewEngine(params),
		lastTick: map[ecs.Handle]uint32{},
		next:     1,
	}, nil
}

func (w *world) alloc() ecs.Handle {
	h := w.next
	w.next++
	return h
}

// join inserts a fresh player at spawn.
func (w *world) join(arch ecs.Archetype, spawn mgl64.Vec2) ecs.Handle {
	w.mu.Lock()
	defer w.mu.Unlock()
	h := w.alloc()
	w.ents.Insert(h, arch)
	ecs.MustWrite(w.ents, h, ecs.Position{Vec: spawn})
	return h
}

// resume rebinds an existing player. The new connection numbers its ticks
// from scratch.
func (w *world) resume(h ecs.Handle) (mgl64.Vec2, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	pos, ok := ecs.Read[ecs.Position](w.ents, h)
	if !ok {
		return mgl64.Vec2{}, false
	}
	delete(w.lastTick, h)
	return pos.Vec, true
}

// move applies one command for h and returns the resulting position.
func (w *world) move(h ecs.Handle, tick uint32, dir mgl64.Vec2, jumping bool) (mgl64.Vec2, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.ents.Has(h) {
		return mgl64.Vec2{}, errNoEntity
	}
	if last, ok := w.lastTick[h]; ok && tick <= last {
		return mgl64.Vec2{}, errStale
	}
	w.lastTick[h] = tick

	mv := ecs.Movement{Direction: dir, Jumping: jumping}
	ecs.MustWrite(w.ents, h, mv)
	pos := ecs.MustRead[ecs.Position](w.ents, h)
	vel := ecs.MustRead[ecs.Velocity](w.ents, h)
	pos, vel = w.engine.Step(pos, vel, mv, physics.Context{Tiles: w.terrain})
	ecs.MustWrite(w.ents, h, pos)
	ecs.MustWrite(w.ents, h, vel)
	return pos.Vec, nil
}

func (w *world) place(p terrain.TilePos, l terrain.Layer, block uint16) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.terrain.PlaceBlock(p, l, block)
}

func (w *world) block(p terrain.TilePos, l terrain.Layer) uint16 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.terrain.Block(p, l)
}

// spawn inserts a catalog entity at pos under a server handle.
func (w *world) spawn(kind string, pos mgl64.Vec2) (ecs.Handle, error) {
	def, ok := w.cats.Entities.Defs[kind]
	if !ok || !def.Spawnable {
		return 0, errNotSpawnable
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	h := w.alloc()
	w.ents.Insert(h, def.Archetype())
	ecs.MustWrite(w.ents, h, ecs.Position{Vec: pos})
	return h, nil
}

func (w *world) remove(h ecs.Handle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ents.Remove(h)
	delete(w.lastTick, h)
}

func (w *world) position(h ecs.Handle) (mgl64.Vec2, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	pos, ok := ecs.Read[ecs.Position](w.ents, h)
	return pos.Vec, ok
}

type entityState struct {
	Handle ecs.Handle
	Kind   string
	Pos    mgl64.Vec2
}

// snapshot lists every entity except skip, ordered by handle.
func (w *world) snapshot(skip ecs.Handle) []entityState {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []entityState
	for _, h := range w.ents.Handles() {
		if h == skip {
			continue
		}
		pos, _ := ecs.Read[ecs.Position](w.ents, h)
		id, _ := ecs.Read[ecs.Identity](w.ents, h)
		out = append(out, entityState{Handle: h, Kind: id.Archetype, Pos: pos.Vec})
	}
	return out
}
