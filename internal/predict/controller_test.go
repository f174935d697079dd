package predict

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/TeamQuantumFusion/rustaria-sub000/internal/protocol"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/catalogs"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/ecs"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/physics"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/terrain"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/tuning"
)

type sendRecorder struct {
	msgs []any
	fail error
}

func (r *sendRecorder) Send(msg any) error {
	if r.fail != nil {
		return r.fail
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *sendRecorder) ofType(typ string) []any {
	var out []any
	for _, m := range r.msgs {
		switch v := m.(type) {
		case *protocol.SetMoveMsg:
			if v.Type == typ {
				out = append(out, v)
			}
		case *protocol.PlaceMsg:
			if v.Type == typ {
				out = append(out, v)
			}
		case *protocol.SpawnMsg:
			if v.Type == typ {
				out = append(out, v)
			}
		}
	}
	return out
}

type countingObserver struct {
	NopObserver
	logged     int
	reconciled int
	corrected  int
	bound      int
	unbound    int
	last       Reconciliation
}

func (o *countingObserver) CommandLogged(PendingCommand) { o.logged++ }
func (o *countingObserver) Corrected(Correction)         { o.corrected++ }
func (o *countingObserver) Bound(ecs.Handle)             { o.bound++ }
func (o *countingObserver) Unbound(ecs.Handle)           { o.unbound++ }
func (o *countingObserver) Reconciled(r Reconciliation) {
	o.reconciled++
	o.last = r
}

type harness struct {
	c      *Controller
	net    *sendRecorder
	store  *terrain.ChunkStore
	cats   *catalogs.Catalogs
	engine *physics.Engine
	obs    *countingObserver
}

// newHarness builds a controller with free-flight physics so positions move by
// exactly WalkSpeed per tick.
func newHarness(t *testing.T, gravity bool) *harness {
	t.Helper()
	cats, err := catalogs.Load("../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	dirt, _ := cats.BlockID("DIRT")
	store := terrain.NewChunkStore(terrain.Gen{GroundY: 0, Air: 0, Ground: dirt, Solid: cats.Solid})

	params := physics.DefaultParams()
	if !gravity {
		params.Gravity = 0
	}
	engine := physics.NewEngine(params)
	net := &sendRecorder{}
	obs := &countingObserver{}

	c, err := New(ConfigFromTuning(tuning.Defaults()), Env{
		Stepper:  engine,
		Egress:   net,
		Terrain:  store,
		Registry: cats,
		Observer: obs,
	})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	return &harness{c: c, net: net, store: store, cats: cats, engine: engine, obs: obs}
}

func (h *harness) pos(which ecs.Which, handle ecs.Handle) mgl64.Vec2 {
	return ecs.MustReadAttr[ecs.Position](h.c.worlds, which, handle).Vec
}

func (h *harness) tick(t *testing.T) {
	t.Helper()
	if err := h.c.OnTick(physics.Context{}); err != nil {
		t.Fatalf("tick: %v", err)
	}
}

func near(a, b mgl64.Vec2) bool {
	return a.Sub(b).Len() < 1e-9
}

func TestNew_RejectsUnknownRegistryNames(t *testing.T) {
	cats, err := catalogs.Load("../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	cfg := ConfigFromTuning(tuning.Defaults())
	cfg.Names.SpawnKind = "dragon"
	_, err = New(cfg, Env{
		Stepper:  physics.NewEngine(physics.DefaultParams()),
		Egress:   &sendRecorder{},
		Terrain:  terrain.NewChunkStore(terrain.Gen{}),
		Registry: cats,
	})
	if err == nil {
		t.Fatalf("expected unknown spawn kind rejected")
	}
}

func TestController_ScenarioSingleAck(t *testing.T) {
	h := newHarness(t, false)
	h.c.OnJoined(1, &mgl64.Vec2{0, 0})
	h.c.OnInputEvent(KeyEvent{Key: KeyRight, Pressed: true})
	h.tick(t)

	pending := h.c.Pending()
	if len(pending) != 1 || pending[0].Tick != 1 || pending[0].Command != (Command{Direction: mgl64.Vec2{1, 0}}) {
		t.Fatalf("pending=%+v", pending)
	}
	moves := h.net.ofType(protocol.TypeSetMove)
	if len(moves) != 1 || moves[0].(*protocol.SetMoveMsg).Tick != 1 {
		t.Fatalf("set_move=%+v", moves)
	}

	beforePos := ecs.MustReadAttr[ecs.Position](h.c.worlds, ecs.Mirror, 1)
	beforeVel := ecs.MustReadAttr[ecs.Velocity](h.c.worlds, ecs.Mirror, 1)
	wantPos, _ := h.engine.Step(beforePos, beforeVel, ecs.Movement{Direction: mgl64.Vec2{1, 0}}, physics.Context{})

	h.c.OnServerAck(1, &mgl64.Vec2{5, 0})

	if h.c.log.Len() != 0 {
		t.Fatalf("log not empty: %v", h.c.Pending())
	}
	if got := h.pos(ecs.Mirror, 1); got != wantPos.Vec {
		t.Fatalf("mirror=%v want %v", got, wantPos.Vec)
	}
	if got := h.pos(ecs.LocalView, 1); got != (mgl64.Vec2{5, 0}) {
		t.Fatalf("local=%v", got)
	}
	if h.obs.reconciled != 1 || len(h.obs.last.Replayed) != 1 {
		t.Fatalf("observer saw %+v", h.obs.last)
	}
}

func TestController_ScenarioPartialAck(t *testing.T) {
	h := newHarness(t, false)
	h.c.OnJoined(1, &mgl64.Vec2{0, 0})
	h.c.OnInputEvent(KeyEvent{Key: KeyRight, Pressed: true})
	for i := 0; i < 3; i++ {
		h.tick(t)
	}
	// Live input that has not been sampled into a command yet.
	h.c.OnInputEvent(KeyEvent{Key: KeyUp, Pressed: true})

	h.c.OnServerAck(2, nil)

	pending := h.c.Pending()
	if len(pending) != 1 || pending[0].Tick != 3 {
		t.Fatalf("pending=%+v", pending)
	}
	if got := h.pos(ecs.Mirror, 1); !near(got, mgl64.Vec2{0.25, 0}) {
		t.Fatalf("mirror=%v", got)
	}
	if ticks := h.obs.last.Replayed; len(ticks) != 2 || ticks[0].Tick != 1 || ticks[1].Tick != 2 {
		t.Fatalf("replayed=%+v", ticks)
	}
	if got := h.pos(ecs.Prediction, 1); !near(got, mgl64.Vec2{0.375, 0}) {
		t.Fatalf("prediction=%v", got)
	}
	mv := ecs.MustReadAttr[ecs.Movement](h.c.worlds, ecs.Prediction, 1)
	if mv != h.c.Sampler().Command().Movement() || mv.Direction.Y() == 0 {
		t.Fatalf("prediction movement=%+v, want live input", mv)
	}
	if got := h.pos(ecs.LocalView, 1); got != (mgl64.Vec2{}) {
		t.Fatalf("local view moved without authoritative position: %v", got)
	}
}

func TestController_ScenarioDriftThreshold(t *testing.T) {
	h := newHarness(t, false)
	h.c.OnJoined(1, &mgl64.Vec2{0, 0})

	h.c.OnEntitySync(1, "player", mgl64.Vec2{10, 0})
	h.tick(t)
	mirror := h.pos(ecs.Mirror, 1)
	if !near(mirror, mgl64.Vec2{0.025, 0}) {
		t.Fatalf("distance 10 should correct by 0.025, mirror=%v", mirror)
	}
	if got := h.pos(ecs.Prediction, 1); !near(got, mgl64.Vec2{0.025, 0}) {
		t.Fatalf("prediction=%v", got)
	}

	target := mirror.Add(mgl64.Vec2{10.0001, 0})
	h.c.OnEntitySync(1, "player", target)
	h.tick(t)
	if got := h.pos(ecs.Mirror, 1); got != target {
		t.Fatalf("expected snap to %v, mirror=%v", target, got)
	}
	if got := h.pos(ecs.Prediction, 1); got != target {
		t.Fatalf("expected snap to %v, prediction=%v", target, got)
	}
	if h.obs.corrected != 2 {
		t.Fatalf("corrections=%d", h.obs.corrected)
	}
}

func TestController_ReconcileKeepsNewerEntries(t *testing.T) {
	h := newHarness(t, false)
	h.c.OnJoined(1, nil)
	keys := []Key{KeyRight, KeyUp, KeyLeft, KeyDown}
	for i := 0; i < 10; i++ {
		k := keys[i%len(keys)]
		h.c.OnInputEvent(KeyEvent{Key: k, Pressed: true})
		h.tick(t)
		h.c.OnInputEvent(KeyEvent{Key: k, Pressed: false})
	}
	before := h.c.Pending()

	h.c.OnServerAck(4, nil)
	after := h.c.Pending()
	if len(after) != 6 {
		t.Fatalf("len=%d want 6", len(after))
	}
	for i, pc := range after {
		if pc != before[i+4] {
			t.Fatalf("entry %d changed: %+v vs %+v", i, pc, before[i+4])
		}
	}

	// Stale and duplicate acks pop nothing.
	h.c.OnServerAck(4, nil)
	if len(h.c.Pending()) != 6 {
		t.Fatalf("log changed: %+v", h.c.Pending())
	}
}

func TestController_AckAheadOfLocalTickDrainsLog(t *testing.T) {
	h := newHarness(t, false)
	h.c.OnJoined(7, &mgl64.Vec2{0, 0})
	h.c.OnInputEvent(KeyEvent{Key: KeyRight, Pressed: true})
	for i := 0; i < 3; i++ {
		h.tick(t)
	}

	h.c.OnServerAck(10, &mgl64.Vec2{5, 0})

	if n := h.c.log.Len(); n != 0 {
		t.Fatalf("log not drained: %+v", h.c.Pending())
	}
	if got := h.pos(ecs.LocalView, 7); got != (mgl64.Vec2{5, 0}) {
		t.Fatalf("local=%v want authoritative (5, 0)", got)
	}
	want := 3 * physics.DefaultParams().WalkSpeed
	if got := h.pos(ecs.Mirror, 7); got != (mgl64.Vec2{want, 0}) {
		t.Fatalf("mirror=%v want (%v, 0)", got, want)
	}
	if h.obs.reconciled != 1 || len(h.obs.last.Replayed) != 3 {
		t.Fatalf("observer saw %+v", h.obs.last)
	}
}

func TestController_AckWhileUnboundIgnored(t *testing.T) {
	h := newHarness(t, false)
	h.c.OnServerAck(1, &mgl64.Vec2{1, 1})
	if h.obs.reconciled != 0 || h.c.worlds.World(ecs.LocalView).Len() != 0 {
		t.Fatalf("unbound ack had effects")
	}
}

func TestController_ReplayIsDeterministic(t *testing.T) {
	run := func() (ecs.Position, ecs.Velocity) {
		h := newHarness(t, true)
		h.c.OnJoined(7, &mgl64.Vec2{0.5, 0})
		ctx := physics.Context{Tiles: h.store}
		script := []KeyEvent{
			{KeyRight, true}, {KeyJump, true}, {KeyJump, false}, {KeyRight, false},
			{KeyLeft, true}, {KeyJump, true}, {KeyLeft, false}, {KeyJump, false},
		}
		for i, ev := range script {
			h.c.OnInputEvent(ev)
			for j := 0; j < 5; j++ {
				if err := h.c.OnTick(ctx); err != nil {
					t.Fatalf("tick: %v", err)
				}
			}
			h.c.OnServerAck(uint32(i*5+2), nil)
		}
		h.c.OnServerAck(h.c.Tick(), nil)
		return ecs.MustReadAttr[ecs.Position](h.c.worlds, ecs.Mirror, 7),
			ecs.MustReadAttr[ecs.Velocity](h.c.worlds, ecs.Mirror, 7)
	}

	p1, v1 := run()
	p2, v2 := run()
	if p1 != p2 || v1 != v2 {
		t.Fatalf("replay diverged: %+v/%+v vs %+v/%+v", p1, v1, p2, v2)
	}
	if p1.Vec.Y() < 0 {
		t.Fatalf("fell through the ground: %v", p1.Vec)
	}
}

func TestController_DespawnUnbindsAndIsIdempotent(t *testing.T) {
	h := newHarness(t, false)
	if h.c.CheckDespawn() {
		t.Fatalf("despawn check while unbound reported a change")
	}

	h.c.OnJoined(3, &mgl64.Vec2{2, 2})
	h.c.OnInputEvent(KeyEvent{Key: KeyRight, Pressed: true})
	h.tick(t)
	h.tick(t)

	h.c.OnDespawn(3)
	h.tick(t)

	if h.c.Binding().IsBound() {
		t.Fatalf("still bound: %v", h.c.Binding())
	}
	for _, w := range []ecs.Which{ecs.LocalView, ecs.Mirror, ecs.Prediction} {
		if h.c.worlds.World(w).Has(3) {
			t.Fatalf("%s still holds handle 3", w)
		}
	}
	if h.c.Tick() != 2 || len(h.c.Pending()) != 2 {
		t.Fatalf("tick=%d pending=%d; both should survive unbinding", h.c.Tick(), len(h.c.Pending()))
	}
	if h.c.RenderedPosition() != (mgl64.Vec2{}) {
		t.Fatalf("rendered position while unbound: %v", h.c.RenderedPosition())
	}
	if _, ok := BoundAttribute[ecs.Position](h.c); ok {
		t.Fatalf("bound attribute while unbound")
	}
	if h.c.CheckDespawn() {
		t.Fatalf("second despawn check reported a change")
	}
	if h.obs.unbound != 1 {
		t.Fatalf("unbound events=%d", h.obs.unbound)
	}

	h.c.OnJoined(4, nil)
	h.tick(t)
	if h.c.Tick() != 3 {
		t.Fatalf("tick after rebind=%d want 3", h.c.Tick())
	}
}

func TestController_RebindReleasesPreviousHandle(t *testing.T) {
	h := newHarness(t, false)
	h.c.OnJoined(1, &mgl64.Vec2{1, 0})
	h.c.OnEntitySync(2, "player", mgl64.Vec2{4, 4})
	h.c.OnJoined(2, nil)

	if hd, _ := h.c.Binding().Handle(); hd != 2 {
		t.Fatalf("binding=%v", h.c.Binding())
	}
	if h.c.worlds.World(ecs.Mirror).Has(1) || h.c.worlds.World(ecs.Prediction).Has(1) {
		t.Fatalf("old handle left in mirror/prediction")
	}
	// LocalView's known position seeds the new binding.
	if got := h.c.RenderedPosition(); got != (mgl64.Vec2{4, 4}) {
		t.Fatalf("rendered=%v", got)
	}
	if got, ok := BoundAttribute[ecs.Identity](h.c); !ok || got.Archetype != "player" {
		t.Fatalf("identity=%+v ok=%v", got, ok)
	}
}

func TestController_SendFailureAbortsTick(t *testing.T) {
	h := newHarness(t, false)
	h.c.OnJoined(1, &mgl64.Vec2{0, 0})
	h.c.OnEntitySync(1, "player", mgl64.Vec2{1, 0})
	h.c.OnInputEvent(KeyEvent{Key: KeyRight, Pressed: true})
	h.net.fail = errors.New("link down")

	err := h.c.OnTick(physics.Context{})
	if !errors.Is(err, ErrSend) {
		t.Fatalf("expected ErrSend, got %v", err)
	}
	if h.c.Tick() != 1 || len(h.c.Pending()) != 1 {
		t.Fatalf("tick=%d pending=%d; command must stay logged", h.c.Tick(), len(h.c.Pending()))
	}
	if h.obs.corrected != 0 {
		t.Fatalf("drift correction ran after a failed send")
	}
	mv := ecs.MustReadAttr[ecs.Movement](h.c.worlds, ecs.Prediction, 1)
	if mv.Direction != (mgl64.Vec2{1, 0}) {
		t.Fatalf("prediction movement=%+v", mv)
	}

	h.net.fail = nil
	h.tick(t)
	if h.c.Tick() != 2 || h.obs.corrected != 1 {
		t.Fatalf("tick=%d corrected=%d", h.c.Tick(), h.obs.corrected)
	}
}

func TestController_IntentsApplyLocallyAndForward(t *testing.T) {
	h := newHarness(t, false)
	h.c.OnJoined(1, &mgl64.Vec2{0.5, 5.5})

	// The camera sits on the rendered position, so the viewport center maps to
	// the player's tile.
	h.c.OnInputEvent(PointerEvent{Button: ButtonLeft, X: 0.5, Y: 0.5})
	h.tick(t)

	dirt, _ := h.cats.BlockID("DIRT")
	if got := h.store.Block(terrain.TilePos{X: 0, Y: 5}, terrain.Foreground); got != dirt {
		t.Fatalf("block=%d want DIRT", got)
	}
	places := h.net.ofType(protocol.TypePlace)
	if len(places) != 1 {
		t.Fatalf("place msgs=%d", len(places))
	}
	if p := places[0].(*protocol.PlaceMsg); p.Pos != [2]int{0, 5} || p.Block != "DIRT" || p.Layer != "FOREGROUND" {
		t.Fatalf("place=%+v", p)
	}

	h.c.OnInputEvent(PointerEvent{Button: ButtonRight, X: 0.5, Y: 0.5})
	h.c.OnInputEvent(PointerEvent{Button: ButtonMiddle, X: 0.5, Y: 0.5})
	h.tick(t)

	if got := h.store.Block(terrain.TilePos{X: 0, Y: 5}, terrain.Foreground); got != 0 {
		t.Fatalf("block=%d want AIR", got)
	}
	lv := h.c.worlds.World(ecs.LocalView)
	if !lv.Has(ecs.LocalHandleBase) {
		t.Fatalf("spawned entity missing from local view")
	}
	if p := ecs.MustRead[ecs.Position](lv, ecs.LocalHandleBase).Vec; p != (mgl64.Vec2{0.5, 5.5}) {
		t.Fatalf("spawn pos=%v", p)
	}
	if h.c.worlds.World(ecs.Mirror).Has(ecs.LocalHandleBase) {
		t.Fatalf("spawned entity leaked into mirror")
	}
	spawns := h.net.ofType(protocol.TypeSpawn)
	if len(spawns) != 1 || spawns[0].(*protocol.SpawnMsg).Kind != "slime" {
		t.Fatalf("spawn msgs=%+v", spawns)
	}
}

func TestController_SpawnConfirmedReplacesLocalCopy(t *testing.T) {
	h := newHarness(t, false)
	h.c.OnJoined(1, &mgl64.Vec2{0.5, 5.5})
	h.c.OnInputEvent(PointerEvent{Button: ButtonMiddle, X: 0.5, Y: 0.5})
	h.tick(t)

	spawns := h.net.ofType(protocol.TypeSpawn)
	if len(spawns) != 1 {
		t.Fatalf("spawn msgs=%d", len(spawns))
	}
	id := spawns[0].(*protocol.SpawnMsg).ID

	h.c.OnSpawnConfirmed("unknown")
	lv := h.c.worlds.World(ecs.LocalView)
	if !lv.Has(ecs.LocalHandleBase) {
		t.Fatalf("unrelated confirmation removed the local copy")
	}

	h.c.OnEntitySync(9, "slime", mgl64.Vec2{0.5, 5.5})
	h.c.OnSpawnConfirmed(id)
	if lv.Has(ecs.LocalHandleBase) {
		t.Fatalf("local copy kept after server entity arrived")
	}
	if !lv.Has(9) {
		t.Fatalf("server entity missing")
	}

	// A repeated confirmation is a no-op.
	h.c.OnSpawnConfirmed(id)
	if !lv.Has(9) || len(h.c.spawned) != 0 {
		t.Fatalf("repeat confirmation changed state")
	}
}

func TestController_IntentSendFailureKeepsRemaining(t *testing.T) {
	h := newHarness(t, false)
	h.c.OnJoined(1, &mgl64.Vec2{0.5, 5.5})
	h.c.OnInputEvent(PointerEvent{Button: ButtonLeft, X: 0.5, Y: 0.5})
	h.c.OnInputEvent(PointerEvent{Button: ButtonMiddle, X: 0.5, Y: 0.5})

	failing := &failAfter{inner: h.net, left: 1}
	h.c.env.Egress = failing

	if err := h.c.OnTick(physics.Context{}); !errors.Is(err, ErrSend) {
		t.Fatalf("expected ErrSend, got %v", err)
	}
	if len(h.c.intents) != 1 || h.c.intents[0].Kind != IntentSpawn {
		t.Fatalf("queued=%+v", h.c.intents)
	}

	h.c.env.Egress = h.net
	h.tick(t)
	if len(h.c.intents) != 0 || len(h.net.ofType(protocol.TypeSpawn)) != 1 {
		t.Fatalf("spawn not retried: queued=%d", len(h.c.intents))
	}
}

func TestController_IntentsDroppedWhileUnbound(t *testing.T) {
	h := newHarness(t, false)
	h.c.OnInputEvent(PointerEvent{Button: ButtonLeft, X: 0.5, Y: 0.5})
	h.tick(t)
	if len(h.net.msgs) != 0 || h.c.Tick() != 0 {
		t.Fatalf("unbound tick sent %d msgs, tick=%d", len(h.net.msgs), h.c.Tick())
	}
	h.c.OnJoined(1, nil)
	h.tick(t)
	if len(h.net.ofType(protocol.TypePlace)) != 0 {
		t.Fatalf("intent from unbound period was dispatched")
	}
}

func TestController_MaxPendingDropsOldest(t *testing.T) {
	h := newHarness(t, false)
	h.c.cfg.MaxPending = 3
	h.c.OnJoined(1, &mgl64.Vec2{0, 0})
	h.c.OnInputEvent(KeyEvent{Key: KeyRight, Pressed: true})
	walk := physics.DefaultParams().WalkSpeed
	for i := 1; i <= 5; i++ {
		// Keep LocalView on the evicted state so drift correction stays idle.
		evicted := 0
		if i > 3 {
			evicted = i - 3
		}
		ecs.WriteAttr(h.c.worlds, ecs.LocalView, 1, ecs.Position{Vec: mgl64.Vec2{float64(evicted) * walk, 0}})
		h.tick(t)
	}
	p := h.c.Pending()
	if len(p) != 3 || p[0].Tick != 3 || p[2].Tick != 5 {
		t.Fatalf("pending=%+v", p)
	}

	// Ticks 1 and 2 left the log through Mirror.
	if got := h.pos(ecs.Mirror, 1); got != (mgl64.Vec2{2 * walk, 0}) {
		t.Fatalf("mirror=%v after eviction", got)
	}
	h.c.OnServerAck(5, nil)
	if got := h.pos(ecs.Mirror, 1); got != (mgl64.Vec2{5 * walk, 0}) {
		t.Fatalf("mirror=%v after ack, want (%v, 0)", got, 5*walk)
	}
}

func TestController_BlockChangeAppliesToTerrain(t *testing.T) {
	h := newHarness(t, false)
	stone, _ := h.cats.BlockID("STONE")
	h.c.OnBlockChange(terrain.TilePos{X: -3, Y: 2}, terrain.Background, stone)
	if got := h.store.Block(terrain.TilePos{X: -3, Y: 2}, terrain.Background); got != stone {
		t.Fatalf("block=%d", got)
	}
	if h.store.Solid(-3, 2) {
		t.Fatalf("background block should not collide")
	}
}

type failAfter struct {
	inner *sendRecorder
	left  int
}

func (f *failAfter) Send(msg any) error {
	if f.left > 0 {
		f.left--
		return f.inner.Send(msg)
	}
	return errors.New("queue full")
}
