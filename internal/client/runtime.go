// Package client drives a predict.Controller from a transport connection.
// Everything runs on the goroutine that calls Step or Run: inbound messages
// are drained before each tick so an ACK is always applied before the next
// command is sampled.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/TeamQuantumFusion/rustaria-sub000/internal/predict"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/protocol"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/catalogs"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/ecs"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/physics"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/terrain"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/tuning"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/transport"
)

var (
	ErrCatalogMismatch = errors.New("client: server catalogs differ from local")
	ErrRejected        = errors.New("client: rejected by server")
)

type Config struct {
	Tuning   tuning.Tuning
	Catalogs *catalogs.Catalogs

	Name        string
	ResumeToken string

	Observer predict.Observer
	Logger   *log.Logger
}

type Runtime struct {
	cfg     Config
	conn    transport.Conn
	ctrl    *predict.Controller
	terrain *terrain.ChunkStore
	log     *log.Logger
	input   chan predict.InputEvent

	sessionID  string
	token      string
	tickRateHz int
}

func New(conn transport.Conn, cfg Config) (*Runtime, error) {
	if cfg.Catalogs == nil {
		return nil, fmt.Errorf("client: missing catalogs")
	}
	if cfg.Name == "" {
		cfg.Name = "client"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	t := cfg.Tuning
	store, err := terrain.NewFlat(cfg.Catalogs, t.Terrain.GroundY, t.Terrain.GroundBlock)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	ctrl, err := predict.New(predict.ConfigFromTuning(t), predict.Env{
		Stepper:  physics.NewEngine(t.Physics.Params()),
		Egress:   conn,
		Terrain:  store,
		Registry: cfg.Catalogs,
		Observer: cfg.Observer,
		Logger:   log.New(logger.Writer(), "[predict] ", logger.Flags()),
	})
	if err != nil {
		return nil, err
	}
	return &Runtime{
		cfg:        cfg,
		conn:       conn,
		ctrl:       ctrl,
		terrain:    store,
		log:        logger,
		input:      make(chan predict.InputEvent, 64),
		token:      cfg.ResumeToken,
		tickRateHz: t.TickRateHz,
	}, nil
}

func (r *Runtime) Controller() *predict.Controller { return r.ctrl }
func (r *Runtime) Terrain() *terrain.ChunkStore     { return r.terrain }
func (r *Runtime) SessionID() string                { return r.sessionID }
func (r *Runtime) ResumeToken() string              { return r.token }

// Start sends HELLO, carrying the resume token when there is one.
func (r *Runtime) Start() error {
	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      r.cfg.Name,
	}
	if r.token != "" {
		hello.Auth = &protocol.HelloAuth{ResumeToken: r.token}
	}
	if err := r.conn.Send(hello); err != nil {
		return fmt.Errorf("hello: %w", err)
	}
	return nil
}

// Input queues an event for the next tick. It never blocks; a full queue
// drops the event and reports false.
func (r *Runtime) Input(ev predict.InputEvent) bool {
	select {
	case r.input <- ev:
		return true
	default:
		return false
	}
}

// Drain applies every inbound message that has already arrived.
func (r *Runtime) Drain() error {
	for {
		select {
		case msg, ok := <-r.conn.Inbound():
			if !ok {
				if err := r.conn.Err(); err != nil {
					return err
				}
				return transport.ErrClosed
			}
			if err := r.apply(msg); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// Step drains inbound messages and queued input, then runs one controller
// tick.
func (r *Runtime) Step() error {
	if err := r.Drain(); err != nil {
		return err
	}
	for len(r.input) > 0 {
		r.ctrl.OnInputEvent(<-r.input)
	}
	return r.ctrl.OnTick(physics.Context{Tiles: r.terrain})
}

// Run sends HELLO and ticks at the server's rate until ctx ends or the
// connection fails. Send failures inside a tick are logged and the loop keeps
// going.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(); err != nil {
		return err
	}
	period := time.Second / time.Duration(r.tickRateHz)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			err := r.Step()
			switch {
			case err == nil:
			case errors.Is(err, predict.ErrSend):
				r.log.Printf("tick %d: %v", r.ctrl.Tick(), err)
			default:
				return err
			}
			if p := time.Second / time.Duration(r.tickRateHz); p != period {
				period = p
				ticker.Reset(period)
			}
		}
	}
}

func (r *Runtime) apply(msg any) error {
	switch m := msg.(type) {
	case *protocol.WelcomeMsg:
		return r.onWelcome(m)
	case *protocol.JoinedMsg:
		r.ctrl.OnJoined(ecs.Handle(m.Handle), vecPtr(m.Pos))
	case *protocol.AckMsg:
		r.ctrl.OnServerAck(m.Tick, vecPtr(m.Pos))
	case *protocol.EntitySyncMsg:
		r.ctrl.OnEntitySync(ecs.Handle(m.Handle), m.Kind, m.Pos.Vec())
		if m.Spawn != "" {
			r.ctrl.OnSpawnConfirmed(m.Spawn)
		}
	case *protocol.DespawnMsg:
		r.ctrl.OnDespawn(ecs.Handle(m.Handle))
	case *protocol.BlockChangeMsg:
		layer, ok := terrain.ParseLayer(m.Layer)
		if !ok {
			r.log.Printf("block change: unknown layer %q", m.Layer)
			return nil
		}
		id, ok := r.cfg.Catalogs.BlockID(m.Block)
		if !ok {
			r.log.Printf("block change: unknown block %q", m.Block)
			return nil
		}
		r.ctrl.OnBlockChange(terrain.TilePos{X: m.Pos[0], Y: m.Pos[1]}, layer, id)
	case *protocol.ErrorMsg:
		r.log.Printf("server error %s: %s", m.Code, m.Message)
		if m.Code == protocol.ErrProtoVersion {
			return fmt.Errorf("%w: %s", ErrRejected, m.Code)
		}
	default:
		r.log.Printf("ignoring %T", msg)
	}
	return nil
}

func (r *Runtime) onWelcome(m *protocol.WelcomeMsg) error {
	cats := r.cfg.Catalogs
	if m.Catalogs.BlockPalette.Digest != cats.Blocks.PaletteDigest {
		return fmt.Errorf("%w: block palette %s", ErrCatalogMismatch, m.Catalogs.BlockPalette.Digest)
	}
	if m.Catalogs.EntitiesDigest != cats.Entities.Digest {
		return fmt.Errorf("%w: entities %s", ErrCatalogMismatch, m.Catalogs.EntitiesDigest)
	}
	r.sessionID = m.SessionID
	r.token = m.ResumeToken
	if m.TickRateHz > 0 {
		r.tickRateHz = m.TickRateHz
	}
	r.log.Printf("welcome session=%s tick_rate_hz=%d", m.SessionID, m.TickRateHz)
	return nil
}

func vecPtr(v *protocol.Vec2) *mgl64.Vec2 {
	if v == nil {
		return nil
	}
	out := v.Vec()
	return &out
}
