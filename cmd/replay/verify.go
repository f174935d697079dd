package main

import (
	"fmt"

	persistlog "github.com/TeamQuantumFusion/rustaria-sub000/internal/persistence/log"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/catalogs"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/physics"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/terrain"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/tuning"
)

// checker re-simulates every journaled reconciliation from its recorded
// Mirror state and compares the result with what the client ended up with.
// Block entries are applied to a per-session copy of the terrain so walls
// placed mid-session collide during replay.
type checker struct {
	cats   *catalogs.Catalogs
	tune   tuning.Tuning
	engine *physics.Engine
	eps    float64
	only   string

	terrain map[string]*terrain.ChunkStore

	reconciled int
	commands   int
	blocks     int
}

func newChecker(cats *catalogs.Catalogs, tune tuning.Tuning, eps float64) *checker {
	return &checker{
		cats:    cats,
		tune:    tune,
		engine:  physics.NewEngine(tune.Physics.Params()),
		eps:     eps,
		terrain: map[string]*terrain.ChunkStore{},
	}
}

func (c *checker) store(session string) (*terrain.ChunkStore, error) {
	if s, ok := c.terrain[session]; ok {
		return s, nil
	}
	s, err := terrain.NewFlat(c.cats, c.tune.Terrain.GroundY, c.tune.Terrain.GroundBlock)
	if err != nil {
		return nil, err
	}
	c.terrain[session] = s
	return s, nil
}

func (c *checker) apply(e persistlog.Entry) error {
	if c.only != "" && e.Session != c.only {
		return nil
	}
	store, err := c.store(e.Session)
	if err != nil {
		return err
	}

	switch e.Kind {
	case persistlog.KindCommand:
		c.commands++
	case persistlog.KindBlock:
		if e.Block == nil {
			return fmt.Errorf("block entry without payload")
		}
		l, ok := terrain.ParseLayer(e.Block.Layer)
		if !ok {
			return fmt.Errorf("unknown layer %q", e.Block.Layer)
		}
		store.PlaceBlock(terrain.TilePos{X: e.Block.X, Y: e.Block.Y}, l, e.Block.Block)
		c.blocks++
	case persistlog.KindReconcile:
		if e.Reconcile == nil {
			return fmt.Errorf("reconcile entry without payload")
		}
		if err := c.verify(store, e); err != nil {
			return err
		}
		c.reconciled++
	}
	return nil
}

func (c *checker) verify(store *terrain.ChunkStore, e persistlog.Entry) error {
	rec := e.Reconcile
	pos, vel := rec.Before.Attributes()
	ctx := physics.Context{Tiles: store}
	for _, pc := range rec.Replayed {
		pos, vel = c.engine.Step(pos, vel, pc.Command.Command().Movement(), ctx)
	}
	want, wantVel := rec.After.Attributes()
	if d := pos.Vec.Sub(want.Vec).Len(); d > c.eps {
		return fmt.Errorf("session %s ack %d: replayed pos %v, journal has %v (off by %g)",
			e.Session, rec.AckTick, pos.Vec, want.Vec, d)
	}
	if c.eps == 0 && (vel.Vec != wantVel.Vec || vel.Grounded != wantVel.Grounded) {
		return fmt.Errorf("session %s ack %d: replayed vel %+v, journal has %+v",
			e.Session, rec.AckTick, vel, wantVel)
	}
	return nil
}
