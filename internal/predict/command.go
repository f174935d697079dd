package predict

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/ecs"
)

// Command is the movement input sampled for one tick.
type Command struct {
	Direction mgl64.Vec2
	Jumping   bool
}

func (c Command) Movement() ecs.Movement {
	return ecs.Movement{Direction: c.Direction, Jumping: c.Jumping}
}

// PendingCommand is a command sent to the server and not yet acknowledged.
type PendingCommand struct {
	Tick    uint32
	Command Command
}
