// Package predict is the client side of movement prediction. It keeps three
// world snapshots (the rendered LocalView, the ack-driven Mirror and the
// Prediction that is drawn as the camera anchor), logs every sent command
// until the server acknowledges it, and pulls the predicted state toward the
// authoritative one a little every tick.
//
// A Controller is driven from a single goroutine and is not safe for
// concurrent use.
package predict

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/TeamQuantumFusion/rustaria-sub000/internal/protocol"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/ecs"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/physics"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/terrain"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/tuning"
)

// ErrSend wraps every failure of the egress collaborator.
var ErrSend = errors.New("predict: send failed")

// Egress delivers messages to the server without waiting for a reply.
type Egress interface {
	Send(msg any) error
}

// Terrain is the block mutation surface used by intents and server updates.
type Terrain interface {
	PlaceBlock(p terrain.TilePos, l terrain.Layer, kind uint16)
}

// Registry resolves names from the block and entity catalogs.
type Registry interface {
	Archetype(name string) (ecs.Archetype, bool)
	BlockID(name string) (uint16, bool)
}

// Defaults names the registry entries resolved once at construction.
type Defaults struct {
	Player      string
	PlaceBlock  string
	RemoveBlock string
	SpawnKind   string
}

// DefaultNames matches the entries shipped in configs/.
func DefaultNames() Defaults {
	return Defaults{
		Player:      "player",
		PlaceBlock:  "DIRT",
		RemoveBlock: "AIR",
		SpawnKind:   "slime",
	}
}

// Config holds the controller's tunables.
type Config struct {
	TeleportThreshold float64
	MaxCorrection     float64
	// MaxPending caps the log; beyond it the oldest entry is replayed into
	// Mirror and dropped. Zero means unbounded.
	MaxPending int

	Zoom   float64
	Aspect float64

	Names Defaults
}

// ConfigFromTuning copies the prediction and viewport settings out of t.
func ConfigFromTuning(t tuning.Tuning) Config {
	return Config{
		TeleportThreshold: t.Prediction.TeleportThreshold,
		MaxCorrection:     t.Prediction.MaxCorrection,
		MaxPending:        t.Prediction.MaxPending,
		Zoom:              t.Viewport.Zoom,
		Aspect:            t.Viewport.Aspect,
		Names:             DefaultNames(),
	}
}

// Env carries the controller's collaborators. Observer and Logger are optional.
type Env struct {
	Stepper  physics.Stepper
	Egress   Egress
	Terrain  Terrain
	Registry Registry
	Observer Observer
	Logger   *log.Logger
}

type resolved struct {
	player ecs.Archetype
	spawn  ecs.Archetype

	placeName  string
	placeID    uint16
	removeName string
	removeID   uint16
}

// Controller owns the three worlds, the pending log and the binding for one
// client. It is not safe for concurrent use.
type Controller struct {
	cfg    Config
	env    Env
	logger *log.Logger
	obs    Observer
	reg    resolved

	worlds  *ecs.Triple
	sampler *Sampler
	log     *PendingLog
	intents []Intent
	binding Binding

	tick      uint32
	shared    physics.Context
	nextLocal ecs.Handle
	spawned   map[string]ecs.Handle
}

// New resolves the registry names in cfg and returns an unbound controller.
func New(cfg Config, env Env) (*Controller, error) {
	if env.Stepper == nil {
		return nil, fmt.Errorf("predict: missing stepper")
	}
	if env.Egress == nil {
		return nil, fmt.Errorf("predict: missing egress")
	}
	if env.Terrain == nil {
		return nil, fmt.Errorf("predict: missing terrain")
	}
	if env.Registry == nil {
		return nil, fmt.Errorf("predict: missing registry")
	}
	if cfg.TeleportThreshold <= 0 || cfg.MaxCorrection <= 0 {
		return nil, fmt.Errorf("predict: drift thresholds must be > 0")
	}
	reg, err := resolve(env.Registry, cfg.Names)
	if err != nil {
		return nil, err
	}

	logger := env.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	obs := env.Observer
	if obs == nil {
		obs = NopObserver{}
	}

	return &Controller{
		cfg:       cfg,
		env:       env,
		logger:    logger,
		obs:       obs,
		reg:       reg,
		worlds:    ecs.NewTriple(),
		sampler:   NewSampler(cfg.Zoom, cfg.Aspect),
		log:       NewPendingLog(64),
		nextLocal: ecs.LocalHandleBase,
		spawned:   map[string]ecs.Handle{},
	}, nil
}

func resolve(r Registry, n Defaults) (resolved, error) {
	var out resolved
	var ok bool
	if out.player, ok = r.Archetype(n.Player); !ok {
		return out, fmt.Errorf("predict: unknown player archetype %q", n.Player)
	}
	if out.spawn, ok = r.Archetype(n.SpawnKind); !ok {
		return out, fmt.Errorf("predict: unknown spawn archetype %q", n.SpawnKind)
	}
	if out.placeID, ok = r.BlockID(n.PlaceBlock); !ok {
		return out, fmt.Errorf("predict: unknown place block %q", n.PlaceBlock)
	}
	if out.removeID, ok = r.BlockID(n.RemoveBlock); !ok {
		return out, fmt.Errorf("predict: unknown remove block %q", n.RemoveBlock)
	}
	out.placeName = n.PlaceBlock
	out.removeName = n.RemoveBlock
	return out, nil
}

func (c *Controller) Tick() uint32      { return c.tick }
func (c *Controller) Binding() Binding  { return c.binding }
func (c *Controller) Sampler() *Sampler { return c.sampler }

// Pending returns a copy of the unacknowledged commands, oldest first.
func (c *Controller) Pending() []PendingCommand { return c.log.All() }

// Worlds exposes the snapshots for inspection. Callers must not mutate them.
func (c *Controller) Worlds() *ecs.Triple { return c.worlds }

// OnInputEvent feeds the sampler. Pointer events are unprojected around the
// rendered position.
func (c *Controller) OnInputEvent(ev InputEvent) {
	c.sampler.Handle(ev, c.RenderedPosition())
}

// OnTick runs one client tick. A send failure aborts the rest of the tick and
// is returned wrapped in ErrSend; the tick number and log entry are kept.
func (c *Controller) OnTick(sc physics.Context) error {
	c.shared = sc
	c.CheckDespawn()

	c.worlds.Advance(ecs.Prediction, c.step)

	h, bound := c.binding.Handle()
	if !bound {
		if dropped := c.sampler.Drain(); len(dropped) > 0 {
			c.logger.Printf("dropping %d intents while unbound", len(dropped))
		}
		c.intents = nil
		return nil
	}

	cmd := c.sampler.Command()
	c.tick++
	if c.cfg.MaxPending > 0 && c.log.Len() >= c.cfg.MaxPending {
		// The evicted command is folded into Mirror so a later ack covering it
		// still lands on the right state.
		old, _ := c.log.PopOldest()
		ecs.MustWriteAttr(c.worlds, ecs.Mirror, h, old.Command.Movement())
		c.worlds.Advance(ecs.Mirror, c.step)
		c.logger.Printf("pending log full, folded tick %d into mirror", old.Tick)
	}
	if err := c.log.Append(c.tick, cmd); err != nil {
		return fmt.Errorf("tick %d: %w", c.tick, err)
	}
	c.obs.CommandLogged(PendingCommand{Tick: c.tick, Command: cmd})
	ecs.MustWriteAttr(c.worlds, ecs.Prediction, h, cmd.Movement())

	err := c.env.Egress.Send(&protocol.SetMoveMsg{
		Type:            protocol.TypeSetMove,
		ProtocolVersion: protocol.Version,
		Tick:            c.tick,
		Direction:       protocol.FromVec(cmd.Direction),
		Jumping:         cmd.Jumping,
	})
	if err != nil {
		return fmt.Errorf("%w: set_move tick %d: %w", ErrSend, c.tick, err)
	}

	c.intents = append(c.intents, c.sampler.Drain()...)
	if err := c.dispatchIntents(); err != nil {
		return err
	}

	c.correctDrift(h)
	return nil
}

func (c *Controller) step(w *ecs.World) {
	c.env.Stepper.Advance(w, c.shared)
}

// RenderedPosition is the bound entity's predicted position, or the origin
// when nothing is bound.
func (c *Controller) RenderedPosition() mgl64.Vec2 {
	h, ok := c.binding.Handle()
	if !ok {
		return mgl64.Vec2{}
	}
	return ecs.MustReadAttr[ecs.Position](c.worlds, ecs.Prediction, h).Vec
}

// BoundAttribute reads an attribute of the bound entity from Prediction.
func BoundAttribute[T ecs.Attribute](c *Controller) (T, bool) {
	h, ok := c.binding.Handle()
	if !ok {
		var zero T
		return zero, false
	}
	return ecs.ReadAttr[T](c.worlds, ecs.Prediction, h)
}

// OnEntitySync writes a server-reported position into LocalView, inserting the
// entity first if it is new.
func (c *Controller) OnEntitySync(h ecs.Handle, kind string, pos mgl64.Vec2) {
	lv := c.worlds.World(ecs.LocalView)
	if !lv.Has(h) {
		arch, ok := c.env.Registry.Archetype(kind)
		if !ok {
			arch = ecs.NewArchetype(kind, ecs.Position{})
		}
		lv.Insert(h, arch)
	}
	ecs.Write(lv, h, ecs.Position{Vec: pos})
}

// OnDespawn removes h from LocalView. A bound entity is released by the next
// tick's despawn check.
func (c *Controller) OnDespawn(h ecs.Handle) {
	c.worlds.World(ecs.LocalView).Remove(h)
}

// OnBlockChange applies a server terrain update.
func (c *Controller) OnBlockChange(p terrain.TilePos, l terrain.Layer, block uint16) {
	c.env.Terrain.PlaceBlock(p, l, block)
	c.obs.BlockPlaced(p, l, block)
}
