package predict

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/ecs"
)

// Binding is either unbound or bound to one controllable handle.
type Binding struct {
	handle ecs.Handle
	bound  bool
}

func Bound(h ecs.Handle) Binding { return Binding{handle: h, bound: true} }

func (b Binding) Handle() (ecs.Handle, bool) { return b.handle, b.bound }

func (b Binding) IsBound() bool { return b.bound }

func (b Binding) String() string {
	if !b.bound {
		return "unbound"
	}
	return fmt.Sprintf("bound(%d)", b.handle)
}

// OnJoined binds h. A previous binding to another handle is released first.
// The spawn position, or LocalView's existing position for h, seeds every
// world.
func (c *Controller) OnJoined(h ecs.Handle, pos *mgl64.Vec2) {
	if old, ok := c.binding.Handle(); ok && old != h {
		c.unbind(old)
	}

	c.worlds.InsertBound(h, c.reg.player)
	c.binding = Bound(h)

	var seed mgl64.Vec2
	if pos != nil {
		seed = *pos
		ecs.MustWriteAttr(c.worlds, ecs.LocalView, h, ecs.Position{Vec: seed})
	} else {
		seed = ecs.MustReadAttr[ecs.Position](c.worlds, ecs.LocalView, h).Vec
	}
	ecs.MustWriteAttr(c.worlds, ecs.Mirror, h, ecs.Position{Vec: seed})
	ecs.MustWriteAttr(c.worlds, ecs.Prediction, h, ecs.Position{Vec: seed})

	c.logger.Printf("bound handle=%d pos=%v tick=%d", h, seed, c.tick)
	c.obs.Bound(h)
}

// CheckDespawn releases the binding when LocalView no longer holds the bound
// handle. It is a no-op while unbound.
func (c *Controller) CheckDespawn() bool {
	h, ok := c.binding.Handle()
	if !ok {
		return false
	}
	if c.worlds.World(ecs.LocalView).Has(h) {
		return false
	}
	c.unbind(h)
	return true
}

func (c *Controller) unbind(h ecs.Handle) {
	c.worlds.RemoveBound(h)
	c.binding = Binding{}
	c.logger.Printf("unbound handle=%d tick=%d pending=%d", h, c.tick, c.log.Len())
	c.obs.Unbound(h)
}
