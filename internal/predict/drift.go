package predict

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/ecs"
)

// Drift computes the correction that moves mirror toward local. Beyond
// teleport the full offset is returned with snap set; otherwise the offset is
// clamped to maxStep.
func Drift(local, mirror mgl64.Vec2, teleport, maxStep float64) (delta mgl64.Vec2, snap bool) {
	offset := local.Sub(mirror)
	dist := offset.Len()
	switch {
	case dist > teleport:
		return offset, true
	case dist > 0:
		if dist > maxStep {
			return offset.Mul(maxStep / dist), false
		}
		return offset, false
	}
	return mgl64.Vec2{}, false
}

func (c *Controller) correctDrift(h ecs.Handle) {
	local := ecs.MustReadAttr[ecs.Position](c.worlds, ecs.LocalView, h).Vec
	mirror := ecs.MustReadAttr[ecs.Position](c.worlds, ecs.Mirror, h).Vec

	delta, snap := Drift(local, mirror, c.cfg.TeleportThreshold, c.cfg.MaxCorrection)
	if !snap && delta.Len() == 0 {
		return
	}

	if snap {
		ecs.MustWriteAttr(c.worlds, ecs.Mirror, h, ecs.Position{Vec: local})
		ecs.MustWriteAttr(c.worlds, ecs.Prediction, h, ecs.Position{Vec: local})
		c.logger.Printf("snap handle=%d dist=%.3f", h, delta.Len())
	} else {
		pred := ecs.MustReadAttr[ecs.Position](c.worlds, ecs.Prediction, h).Vec
		ecs.MustWriteAttr(c.worlds, ecs.Mirror, h, ecs.Position{Vec: mirror.Add(delta)})
		ecs.MustWriteAttr(c.worlds, ecs.Prediction, h, ecs.Position{Vec: pred.Add(delta)})
	}

	c.obs.Corrected(Correction{
		Tick:    c.tick,
		Handle:  h,
		Offset:  local.Sub(mirror),
		Applied: delta,
		Snapped: snap,
	})
}
