package predict

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/ecs"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/terrain"
)

// Reconciliation describes one processed acknowledgment.
type Reconciliation struct {
	LocalTick     uint32
	AckTick       uint32
	Handle        ecs.Handle
	Authoritative *mgl64.Vec2

	// Mirror state before and after replaying Replayed.
	Before    ecs.Position
	BeforeVel ecs.Velocity
	After     ecs.Position
	AfterVel  ecs.Velocity
	Replayed  []PendingCommand

	Remaining  int
	Prediction mgl64.Vec2
}

type Correction struct {
	Tick    uint32
	Handle  ecs.Handle
	Offset  mgl64.Vec2
	Applied mgl64.Vec2
	Snapped bool
}

// Observer receives notifications from the controller. Calls happen on the
// controller's goroutine and must not block.
type Observer interface {
	CommandLogged(pc PendingCommand)
	Reconciled(r Reconciliation)
	Corrected(c Correction)
	BlockPlaced(p terrain.TilePos, l terrain.Layer, block uint16)
	Bound(h ecs.Handle)
	Unbound(h ecs.Handle)
}

type NopObserver struct{}

func (NopObserver) CommandLogged(PendingCommand)                       {}
func (NopObserver) Reconciled(Reconciliation)                          {}
func (NopObserver) Corrected(Correction)                               {}
func (NopObserver) BlockPlaced(terrain.TilePos, terrain.Layer, uint16) {}
func (NopObserver) Bound(ecs.Handle)                                   {}
func (NopObserver) Unbound(ecs.Handle)                                 {}

// Observers fans out to every member.
type Observers []Observer

func (os Observers) CommandLogged(pc PendingCommand) {
	for _, o := range os {
		o.CommandLogged(pc)
	}
}

func (os Observers) Reconciled(r Reconciliation) {
	for _, o := range os {
		o.Reconciled(r)
	}
}

func (os Observers) Corrected(c Correction) {
	for _, o := range os {
		o.Corrected(c)
	}
}

func (os Observers) BlockPlaced(p terrain.TilePos, l terrain.Layer, block uint16) {
	for _, o := range os {
		o.BlockPlaced(p, l, block)
	}
}

func (os Observers) Bound(h ecs.Handle) {
	for _, o := range os {
		o.Bound(h)
	}
}

func (os Observers) Unbound(h ecs.Handle) {
	for _, o := range os {
		o.Unbound(h)
	}
}
