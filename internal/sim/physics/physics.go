// Package physics is the deterministic per-tick movement step shared by every
// world snapshot. Given the same world state, context and parameters it always
// produces the same result: no clocks, no randomness, fixed iteration order.
package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/ecs"
)

// TileQuery answers collision questions about the terrain.
type TileQuery interface {
	Solid(x, y int) bool
}

// Context is the state shared by all worlds during a step.
type Context struct {
	Tiles TileQuery
}

func (c Context) solid(x, y float64) bool {
	if c.Tiles == nil {
		return false
	}
	return c.Tiles.Solid(int(math.Floor(x)), int(math.Floor(y)))
}

// Params are per-tick quantities in world units.
type Params struct {
	WalkSpeed    float64
	JumpSpeed    float64
	Gravity      float64
	MaxFallSpeed float64
}

func DefaultParams() Params {
	return Params{
		WalkSpeed:    0.125,
		JumpSpeed:    0.45,
		Gravity:      0.025,
		MaxFallSpeed: 0.8,
	}
}

// Stepper advances one world by one tick.
type Stepper interface {
	Advance(w *ecs.World, ctx Context)
}

type Engine struct {
	Params Params
}

func NewEngine(p Params) *Engine {
	return &Engine{Params: p}
}

// Advance moves every entity that has both Position and Velocity. Movement is
// optional; a missing intent means standing still.
func (e *Engine) Advance(w *ecs.World, ctx Context) {
	for _, h := range w.Handles() {
		pos, ok := ecs.Read[ecs.Position](w, h)
		if !ok {
			continue
		}
		vel, ok := ecs.Read[ecs.Velocity](w, h)
		if !ok {
			continue
		}
		mv, _ := ecs.Read[ecs.Movement](w, h)

		pos, vel = e.step(pos, vel, mv, ctx)
		ecs.MustWrite(w, h, pos)
		ecs.MustWrite(w, h, vel)
	}
}

// Step applies one tick to a single entity state without touching a world.
func (e *Engine) Step(pos ecs.Position, vel ecs.Velocity, mv ecs.Movement, ctx Context) (ecs.Position, ecs.Velocity) {
	return e.step(pos, vel, mv, ctx)
}

func (e *Engine) step(pos ecs.Position, vel ecs.Velocity, mv ecs.Movement, ctx Context) (ecs.Position, ecs.Velocity) {
	p := e.Params
	v := vel.Vec
	v[0] = mv.Direction.X() * p.WalkSpeed

	if p.Gravity == 0 {
		// Free flight: vertical input drives vertical speed directly.
		v[1] = mv.Direction.Y() * p.WalkSpeed
	} else {
		if mv.Jumping && vel.Grounded {
			v[1] = p.JumpSpeed
		}
		v[1] -= p.Gravity
		if v[1] < -p.MaxFallSpeed {
			v[1] = -p.MaxFallSpeed
		}
	}

	x, y := pos.Vec.X(), pos.Vec.Y()
	grounded := false

	if v[0] != 0 {
		nx := x + v[0]
		if ctx.solid(nx, y) {
			v[0] = 0
		} else {
			x = nx
		}
	}

	if v[1] != 0 {
		ny := y + v[1]
		switch {
		case v[1] < 0 && ctx.solid(x, ny):
			y = math.Floor(ny) + 1
			v[1] = 0
			grounded = true
		case v[1] > 0 && ctx.solid(x, ny):
			v[1] = 0
		default:
			y = ny
		}
	}

	return ecs.Position{Vec: mgl64.Vec2{x, y}}, ecs.Velocity{Vec: v, Grounded: grounded}
}
