// Package devserver is a small authoritative server for exercising the client
// prediction loop. It steps each player once per SET_MOVE with the shared
// physics and acknowledges with the resulting position.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/TeamQuantumFusion/rustaria-sub000/internal/protocol"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/catalogs"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/ecs"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/terrain"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/tuning"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/transport"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/transport/kcp"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/transport/ws"
)

type Config struct {
	Tuning   tuning.Tuning
	Catalogs *catalogs.Catalogs

	Secret   string
	TokenTTL time.Duration

	// AckEvery acknowledges every Nth SET_MOVE. Values below 2 ack each one.
	AckEvery int

	// MsgRate bounds inbound messages per second per connection. Zero means
	// four times the tick rate.
	MsgRate  float64
	MsgBurst int

	HelloTimeout time.Duration
	Logger       *log.Logger
}

type Server struct {
	cfg    Config
	log    *log.Logger
	tokens *Tokens
	world  *world
	player ecs.Archetype
	spawn  mgl64.Vec2

	mu       sync.Mutex
	conns    map[ecs.Handle]transport.Conn
	sessions map[string]ecs.Handle
}

func New(cfg Config) (*Server, error) {
	if cfg.Catalogs == nil {
		return nil, fmt.Errorf("devserver: missing catalogs")
	}
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("devserver: %w", err)
	}
	player, ok := cfg.Catalogs.Archetype("player")
	if !ok {
		return nil, fmt.Errorf("devserver: no player entity in catalog")
	}
	t := cfg.Tuning
	w, err := newWorld(cfg.Catalogs, t.Physics.Params(), t.Terrain.GroundY, t.Terrain.GroundBlock)
	if err != nil {
		return nil, fmt.Errorf("devserver: %w", err)
	}
	if cfg.Secret == "" {
		cfg.Secret = uuid.NewString()
	}
	if cfg.AckEvery < 1 {
		cfg.AckEvery = 1
	}
	if cfg.MsgRate <= 0 {
		cfg.MsgRate = float64(4 * t.TickRateHz)
	}
	if cfg.MsgBurst <= 0 {
		cfg.MsgBurst = t.TickRateHz
	}
	if cfg.HelloTimeout <= 0 {
		cfg.HelloTimeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		cfg:      cfg,
		log:      logger,
		tokens:   NewTokens(cfg.Secret, cfg.TokenTTL),
		world:    w,
		player:   player,
		spawn:    mgl64.Vec2{0.5, float64(t.Terrain.GroundY)},
		conns:    map[ecs.Handle]transport.Conn{},
		sessions: map[string]ecs.Handle{},
	}, nil
}

func (s *Server) sessionOptions() transport.Options {
	return transport.Options{
		SendQueue:  s.cfg.Tuning.Net.SendQueue,
		InboxQueue: s.cfg.Tuning.Net.InboxQueue,
		Logger:     s.log,
	}
}

func (s *Server) writeWait() time.Duration {
	return time.Duration(s.cfg.Tuning.Net.WriteWaitMs) * time.Millisecond
}

// WSHandler upgrades the request and serves the connection until it closes.
func (s *Server) WSHandler() http.HandlerFunc {
	up := ws.Upgrader()
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		sess := transport.NewSession(ws.Wrap(conn, s.writeWait()), protocol.DecodeOutbound, s.sessionOptions())
		if err := s.Serve(r.Context(), sess); err != nil {
			s.log.Printf("ws %s: %v", r.RemoteAddr, err)
		}
	}
}

// ServeKCP accepts sessions from l until ctx is done.
func (s *Server) ServeKCP(ctx context.Context, l *kcp.Listener) error {
	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()
	for {
		c, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		remote := c.RemoteAddr().String()
		sess := transport.NewSession(kcp.Wrap(c, s.writeWait()), protocol.DecodeOutbound, s.sessionOptions())
		go func() {
			if err := s.Serve(ctx, sess); err != nil {
				s.log.Printf("kcp %s: %v", remote, err)
			}
		}()
	}
}

// Serve runs one client connection: HELLO, WELCOME and JOINED, then the
// command loop. It closes conn before returning.
func (s *Server) Serve(ctx context.Context, conn transport.Conn) error {
	defer conn.Close()

	hello, err := s.awaitHello(ctx, conn)
	if err != nil {
		return err
	}
	sessionID, h, pos := s.attach(hello)

	token, err := s.tokens.Issue(sessionID, uint32(h))
	if err != nil {
		s.reject(conn, protocol.ErrInternal, "token")
		return fmt.Errorf("issue token: %w", err)
	}
	cats := s.cfg.Catalogs
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		ResumeToken:     token,
		TickRateHz:      s.cfg.Tuning.TickRateHz,
		Catalogs: protocol.CatalogDigests{
			BlockPalette:   protocol.DigestRef{Digest: cats.Blocks.PaletteDigest, Count: len(cats.Blocks.Palette)},
			EntitiesDigest: cats.Entities.Digest,
		},
	}
	if err := conn.Send(welcome); err != nil {
		return fmt.Errorf("welcome: %w", err)
	}
	for _, e := range s.world.snapshot(h) {
		_ = conn.Send(entitySync(e.Handle, e.Kind, e.Pos))
	}
	wire := protocol.FromVec(pos)
	joined := protocol.JoinedMsg{
		Type:            protocol.TypeJoined,
		ProtocolVersion: protocol.Version,
		Handle:          uint32(h),
		Pos:             &wire,
	}
	if err := conn.Send(joined); err != nil {
		return fmt.Errorf("joined: %w", err)
	}
	s.log.Printf("joined session=%s handle=%d client=%q", sessionID, h, hello.ClientName)

	s.register(h, conn)
	defer s.unregister(h, conn)
	s.broadcast(h, entitySync(h, s.player.Name, pos))

	st := &connState{
		handle:  h,
		limiter: rate.NewLimiter(rate.Limit(s.cfg.MsgRate), s.cfg.MsgBurst),
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-conn.Inbound():
			if !ok {
				return conn.Err()
			}
			if !st.limiter.Allow() {
				s.sendError(conn, protocol.ErrRateLimit, "slow down")
				continue
			}
			s.handle(conn, st, msg)
		}
	}
}

type connState struct {
	handle  ecs.Handle
	limiter *rate.Limiter
	unacked int
}

func (s *Server) awaitHello(ctx context.Context, conn transport.Conn) (*protocol.HelloMsg, error) {
	timer := time.NewTimer(s.cfg.HelloTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, errors.New("no HELLO before timeout")
	case msg, ok := <-conn.Inbound():
		if !ok {
			return nil, fmt.Errorf("closed before HELLO: %w", conn.Err())
		}
		hello, isHello := msg.(*protocol.HelloMsg)
		if !isHello {
			s.reject(conn, protocol.ErrProtoBadRequest, "expected HELLO")
			return nil, fmt.Errorf("expected HELLO, got %T", msg)
		}
		if hello.ProtocolVersion != protocol.Version {
			s.reject(conn, protocol.ErrProtoVersion, "want protocol_version "+protocol.Version)
			return nil, fmt.Errorf("bad protocol_version %q", hello.ProtocolVersion)
		}
		return hello, nil
	}
}

// attach resumes the session named by the HELLO token, falling back to a
// fresh join when there is no usable token.
func (s *Server) attach(hello *protocol.HelloMsg) (string, ecs.Handle, mgl64.Vec2) {
	token := ""
	if hello.Auth != nil {
		token = strings.TrimSpace(hello.Auth.ResumeToken)
	}
	if token != "" {
		sessionID, h, pos, err := s.resume(token)
		if err == nil {
			return sessionID, h, pos
		}
		s.log.Printf("resume rejected, joining fresh: %v", err)
	}

	sessionID := uuid.NewString()
	h := s.world.join(s.player, s.spawn)
	s.mu.Lock()
	s.sessions[sessionID] = h
	s.mu.Unlock()
	return sessionID, h, s.spawn
}

func (s *Server) resume(token string) (string, ecs.Handle, mgl64.Vec2, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return "", 0, mgl64.Vec2{}, err
	}
	s.mu.Lock()
	h, known := s.sessions[claims.SessionID]
	s.mu.Unlock()
	if !known || uint32(h) != claims.Handle {
		return "", 0, mgl64.Vec2{}, fmt.Errorf("%w: unknown session %s", ErrBadToken, claims.SessionID)
	}
	pos, ok := s.world.resume(h)
	if !ok {
		return "", 0, mgl64.Vec2{}, fmt.Errorf("%w: handle %d gone", ErrBadToken, h)
	}
	return claims.SessionID, h, pos, nil
}

func (s *Server) handle(conn transport.Conn, st *connState, msg any) {
	switch m := msg.(type) {
	case *protocol.SetMoveMsg:
		if m.ProtocolVersion != protocol.Version {
			s.sendError(conn, protocol.ErrProtoVersion, "bad protocol_version")
			return
		}
		pos, err := s.world.move(st.handle, m.Tick, m.Direction.Vec(), m.Jumping)
		switch {
		case errors.Is(err, errStale):
			s.sendError(conn, protocol.ErrStale, fmt.Sprintf("tick %d", m.Tick))
			return
		case err != nil:
			s.sendError(conn, protocol.ErrInternal, err.Error())
			return
		}
		st.unacked++
		if st.unacked >= s.cfg.AckEvery {
			st.unacked = 0
			wire := protocol.FromVec(pos)
			_ = conn.Send(protocol.AckMsg{
				Type:            protocol.TypeAck,
				ProtocolVersion: protocol.Version,
				Tick:            m.Tick,
				Pos:             &wire,
			})
		}
		s.broadcast(st.handle, entitySync(st.handle, s.player.Name, pos))

	case *protocol.PlaceMsg:
		layer, ok := terrain.ParseLayer(m.Layer)
		if !ok {
			s.sendError(conn, protocol.ErrBadRequest, "unknown layer "+m.Layer)
			return
		}
		id, ok := s.cfg.Catalogs.BlockID(m.Block)
		if !ok {
			s.sendError(conn, protocol.ErrInvalidTarget, "unknown block "+m.Block)
			return
		}
		p := terrain.TilePos{X: m.Pos[0], Y: m.Pos[1]}
		s.world.place(p, layer, id)
		s.broadcast(0, protocol.BlockChangeMsg{
			Type:            protocol.TypeBlockChange,
			ProtocolVersion: protocol.Version,
			Pos:             m.Pos,
			Layer:           layer.String(),
			Block:           m.Block,
		})

	case *protocol.SpawnMsg:
		h, err := s.world.spawn(m.Kind, m.Pos.Vec())
		if err != nil {
			s.sendError(conn, protocol.ErrInvalidTarget, fmt.Sprintf("spawn %q: %v", m.Kind, err))
			return
		}
		es := entitySync(h, m.Kind, m.Pos.Vec())
		es.Spawn = m.ID
		s.broadcast(0, es)

	case *protocol.HelloMsg:
		s.sendError(conn, protocol.ErrBadRequest, "already joined")
	}
}

func (s *Server) register(h ecs.Handle, conn transport.Conn) {
	s.mu.Lock()
	old := s.conns[h]
	s.conns[h] = conn
	s.mu.Unlock()
	if old != nil && old != conn {
		_ = old.Close()
	}
}

// unregister drops conn and tells the others the player left. The entity
// stays in the world so the session can resume.
func (s *Server) unregister(h ecs.Handle, conn transport.Conn) {
	s.mu.Lock()
	if s.conns[h] != conn {
		s.mu.Unlock()
		return
	}
	delete(s.conns, h)
	s.mu.Unlock()
	s.broadcast(h, protocol.DespawnMsg{
		Type:            protocol.TypeDespawn,
		ProtocolVersion: protocol.Version,
		Handle:          uint32(h),
	})
}

// broadcast sends msg to every connection except the one bound to skip.
func (s *Server) broadcast(skip ecs.Handle, msg any) {
	s.mu.Lock()
	targets := make([]transport.Conn, 0, len(s.conns))
	for h, c := range s.conns {
		if h != skip {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()
	for _, c := range targets {
		if err := c.Send(msg); err != nil && !errors.Is(err, transport.ErrClosed) {
			s.log.Printf("broadcast: %v", err)
		}
	}
}

func (s *Server) sendError(conn transport.Conn, code, message string) {
	_ = conn.Send(protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
	})
}

// reject sends a final error and gives the writer a moment to flush it
// before the caller closes conn.
func (s *Server) reject(conn transport.Conn, code, message string) {
	s.sendError(conn, code, message)
	select {
	case <-conn.Done():
	case <-time.After(time.Second):
	}
}

func entitySync(h ecs.Handle, kind string, pos mgl64.Vec2) protocol.EntitySyncMsg {
	return protocol.EntitySyncMsg{
		Type:            protocol.TypeEntitySync,
		ProtocolVersion: protocol.Version,
		Handle:          uint32(h),
		Kind:            kind,
		Pos:             protocol.FromVec(pos),
	}
}
