package predict

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/ecs"
)

// OnServerAck reconciles against an acknowledgment of every command up to and
// including ack. pos, when present, is the authoritative LocalView position.
// Acks while unbound are ignored. An ack past the local tick drains the whole
// log.
func (c *Controller) OnServerAck(ack uint32, pos *mgl64.Vec2) {
	h, ok := c.binding.Handle()
	if !ok {
		return
	}
	if ack > c.tick {
		c.logger.Printf("ack %d ahead of local tick %d", ack, c.tick)
	}

	if pos != nil {
		// LocalView may already have lost h to a DESPAWN; the next tick unbinds.
		ecs.WriteAttr(c.worlds, ecs.LocalView, h, ecs.Position{Vec: *pos})
	}

	rep := Reconciliation{
		LocalTick:     c.tick,
		AckTick:       ack,
		Handle:        h,
		Authoritative: pos,
		Before:        ecs.MustReadAttr[ecs.Position](c.worlds, ecs.Mirror, h),
		BeforeVel:     ecs.MustReadAttr[ecs.Velocity](c.worlds, ecs.Mirror, h),
	}

	for {
		oldest, ok := c.log.PeekOldest()
		if !ok || oldest.Tick > ack {
			break
		}
		c.log.PopOldest()
		ecs.MustWriteAttr(c.worlds, ecs.Mirror, h, oldest.Command.Movement())
		c.worlds.Advance(ecs.Mirror, c.step)
		rep.Replayed = append(rep.Replayed, oldest)
		if oldest.Tick == ack {
			break
		}
	}

	c.rebuildPrediction(h)

	rep.After = ecs.MustReadAttr[ecs.Position](c.worlds, ecs.Mirror, h)
	rep.AfterVel = ecs.MustReadAttr[ecs.Velocity](c.worlds, ecs.Mirror, h)
	rep.Remaining = c.log.Len()
	rep.Prediction = ecs.MustReadAttr[ecs.Position](c.worlds, ecs.Prediction, h).Vec
	c.obs.Reconciled(rep)
}

// rebuildPrediction restarts Prediction from Mirror, replays the unacknowledged
// commands and overlays the live input without advancing.
func (c *Controller) rebuildPrediction(h ecs.Handle) {
	c.worlds.CloneAttributes(h, ecs.Mirror, ecs.Prediction)
	for _, pc := range c.log.All() {
		ecs.MustWriteAttr(c.worlds, ecs.Prediction, h, pc.Command.Movement())
		c.worlds.Advance(ecs.Prediction, c.step)
	}
	ecs.MustWriteAttr(c.worlds, ecs.Prediction, h, c.sampler.Command().Movement())
}
