package log

import (
	"io"
	stdlog "log"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/TeamQuantumFusion/rustaria-sub000/internal/predict"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/ecs"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/terrain"
)

// Journal entry kinds.
const (
	KindCommand   = "command"
	KindReconcile = "reconcile"
	KindCorrect   = "correct"
	KindBlock     = "block"
	KindBind      = "bind"
	KindUnbind    = "unbind"
)

type Entry struct {
	Time    string `json:"t"`
	Session string `json:"session"`
	Kind    string `json:"kind"`
	Tick    uint32 `json:"tick,omitempty"`
	Handle  uint32 `json:"handle,omitempty"`

	Command    *CommandRec    `json:"command,omitempty"`
	Reconcile  *ReconcileRec  `json:"reconcile,omitempty"`
	Correction *CorrectionRec `json:"correction,omitempty"`
	Block      *BlockRec      `json:"block,omitempty"`
}

type CommandRec struct {
	Direction mgl64.Vec2 `json:"direction"`
	Jumping   bool       `json:"jumping,omitempty"`
}

type PendingRec struct {
	Tick    uint32     `json:"tick"`
	Command CommandRec `json:"command"`
}

// BodyRec is the Mirror state the physics step depends on.
type BodyRec struct {
	Pos      mgl64.Vec2 `json:"pos"`
	Vel      mgl64.Vec2 `json:"vel"`
	Grounded bool       `json:"grounded,omitempty"`
}

type ReconcileRec struct {
	AckTick       uint32       `json:"ack_tick"`
	Authoritative *mgl64.Vec2  `json:"authoritative,omitempty"`
	Before        BodyRec      `json:"before"`
	After         BodyRec      `json:"after"`
	Replayed      []PendingRec `json:"replayed,omitempty"`
	Remaining     int          `json:"remaining"`
}

type CorrectionRec struct {
	Offset  mgl64.Vec2 `json:"offset"`
	Applied mgl64.Vec2 `json:"applied"`
	Snapped bool       `json:"snapped,omitempty"`
}

type BlockRec struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Layer string `json:"layer"`
	Block uint16 `json:"block"`
}

func commandRec(c predict.Command) CommandRec {
	return CommandRec{Direction: c.Direction, Jumping: c.Jumping}
}

// Command converts the record back to a predict.Command.
func (c CommandRec) Command() predict.Command {
	return predict.Command{Direction: c.Direction, Jumping: c.Jumping}
}

func bodyRec(p ecs.Position, v ecs.Velocity) BodyRec {
	return BodyRec{Pos: p.Vec, Vel: v.Vec, Grounded: v.Grounded}
}

func (b BodyRec) Attributes() (ecs.Position, ecs.Velocity) {
	return ecs.Position{Vec: b.Pos}, ecs.Velocity{Vec: b.Vel, Grounded: b.Grounded}
}

// Journal records controller activity as hourly-rotated JSONL. It implements
// predict.Observer; write failures are logged and counted, never returned to
// the controller.
type Journal struct {
	w       *JSONLZstdWriter
	session string
	log     *stdlog.Logger

	mu     sync.Mutex
	tick   uint32
	failed int
}

var _ predict.Observer = (*Journal)(nil)

func NewJournal(dataDir, session string, logger *stdlog.Logger) *Journal {
	if logger == nil {
		logger = stdlog.New(io.Discard, "", 0)
	}
	return &Journal{
		w:       NewJSONLZstdWriter(filepath.Join(dataDir, "journal"), "journal"),
		session: session,
		log:     logger,
	}
}

func (j *Journal) Close() error { return j.w.Close() }
func (j *Journal) Flush() error { return j.w.Flush() }

// Failed reports how many entries could not be written.
func (j *Journal) Failed() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.failed
}

func (j *Journal) write(e Entry) {
	e.Time = time.Now().UTC().Format(time.RFC3339Nano)
	e.Session = j.session
	if err := j.w.Write(e); err != nil {
		j.mu.Lock()
		j.failed++
		n := j.failed
		j.mu.Unlock()
		if n == 1 || n%1000 == 0 {
			j.log.Printf("journal write failed (%d so far): %v", n, err)
		}
	}
}

func (j *Journal) currentTick() uint32 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.tick
}

func (j *Journal) CommandLogged(pc predict.PendingCommand) {
	j.mu.Lock()
	j.tick = pc.Tick
	j.mu.Unlock()
	c := commandRec(pc.Command)
	j.write(Entry{Kind: KindCommand, Tick: pc.Tick, Command: &c})
}

func (j *Journal) Reconciled(r predict.Reconciliation) {
	rec := &ReconcileRec{
		AckTick:       r.AckTick,
		Authoritative: r.Authoritative,
		Before:        bodyRec(r.Before, r.BeforeVel),
		After:         bodyRec(r.After, r.AfterVel),
		Remaining:     r.Remaining,
	}
	for _, pc := range r.Replayed {
		rec.Replayed = append(rec.Replayed, PendingRec{Tick: pc.Tick, Command: commandRec(pc.Command)})
	}
	j.write(Entry{Kind: KindReconcile, Tick: r.LocalTick, Handle: uint32(r.Handle), Reconcile: rec})
}

func (j *Journal) Corrected(c predict.Correction) {
	j.write(Entry{
		Kind:   KindCorrect,
		Tick:   c.Tick,
		Handle: uint32(c.Handle),
		Correction: &CorrectionRec{
			Offset:  c.Offset,
			Applied: c.Applied,
			Snapped: c.Snapped,
		},
	})
}

func (j *Journal) BlockPlaced(p terrain.TilePos, l terrain.Layer, block uint16) {
	j.write(Entry{
		Kind:  KindBlock,
		Tick:  j.currentTick(),
		Block: &BlockRec{X: p.X, Y: p.Y, Layer: l.String(), Block: block},
	})
}

func (j *Journal) Bound(h ecs.Handle) {
	j.write(Entry{Kind: KindBind, Tick: j.currentTick(), Handle: uint32(h)})
}

func (j *Journal) Unbound(h ecs.Handle) {
	j.write(Entry{Kind: KindUnbind, Tick: j.currentTick(), Handle: uint32(h)})
}

// Files lists journal files under dataDir in name (hence time) order.
func Files(dataDir string) ([]string, error) {
	return filepath.Glob(filepath.Join(dataDir, "journal", "journal-*.jsonl.zst"))
}
