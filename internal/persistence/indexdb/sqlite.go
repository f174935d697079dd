package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/TeamQuantumFusion/rustaria-sub000/internal/predict"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/ecs"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/terrain"
)

// SQLiteIndex is a queryable index of reconciliation activity. Writes are
// queued to a single writer goroutine and dropped when the queue is full; the
// journal stays the source of truth.
type SQLiteIndex struct {
	db      *sql.DB
	session string

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropReconcile atomic.Uint64
	dropCorrect   atomic.Uint64
	dropBinding   atomic.Uint64
}

var _ predict.Observer = (*SQLiteIndex)(nil)

type reqKind int

const (
	reqReconcile reqKind = iota + 1
	reqCorrect
	reqBinding
)

type req struct {
	kind reqKind

	reconcile reconcileRow
	correct   correctRow
	binding   bindingRow
}

type reconcileRow struct {
	LocalTick uint32
	AckTick   uint32
	Handle    uint32
	Replayed  int
	Remaining int
	HasAuth   bool
	Error     float64
}

type correctRow struct {
	Tick    uint32
	Handle  uint32
	Dist    float64
	Applied float64
	Snapped bool
}

type bindingRow struct {
	Handle uint32
	Event  string
	At     string
}

type Stats struct {
	QueueDepth         int
	QueueCapacity      int
	DropReconcileTotal uint64
	DropCorrectTotal   uint64
	DropBindingTotal   uint64
}

func OpenSQLite(path, session string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if session != "" {
		if _, err := db.Exec(`INSERT OR IGNORE INTO sessions(session_id, started_at) VALUES(?, ?)`,
			session, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	s := &SQLiteIndex{
		db:      db,
		session: session,
		ch:      make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS reconciliations (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			local_tick INTEGER NOT NULL,
			ack_tick INTEGER NOT NULL,
			handle INTEGER NOT NULL,
			replayed INTEGER NOT NULL,
			remaining INTEGER NOT NULL,
			has_auth INTEGER NOT NULL,
			auth_error REAL NOT NULL,
			PRIMARY KEY (session_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_reconciliations_ack ON reconciliations(session_id, ack_tick);`,
		`CREATE TABLE IF NOT EXISTS corrections (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			handle INTEGER NOT NULL,
			dist REAL NOT NULL,
			applied REAL NOT NULL,
			snapped INTEGER NOT NULL,
			PRIMARY KEY (session_id, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS bindings (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			handle INTEGER NOT NULL,
			event TEXT NOT NULL,
			at TEXT NOT NULL,
			PRIMARY KEY (session_id, seq)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:         len(s.ch),
		QueueCapacity:      cap(s.ch),
		DropReconcileTotal: s.dropReconcile.Load(),
		DropCorrectTotal:   s.dropCorrect.Load(),
		DropBindingTotal:   s.dropBinding.Load(),
	}
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

func (s *SQLiteIndex) CommandLogged(predict.PendingCommand) {}

func (s *SQLiteIndex) BlockPlaced(terrain.TilePos, terrain.Layer, uint16) {}

func (s *SQLiteIndex) Reconciled(r predict.Reconciliation) {
	row := reconcileRow{
		LocalTick: r.LocalTick,
		AckTick:   r.AckTick,
		Handle:    uint32(r.Handle),
		Replayed:  len(r.Replayed),
		Remaining: r.Remaining,
	}
	if r.Authoritative != nil {
		row.HasAuth = true
		row.Error = r.Authoritative.Sub(r.After.Vec).Len()
	}
	s.enqueue(req{kind: reqReconcile, reconcile: row}, &s.dropReconcile)
}

func (s *SQLiteIndex) Corrected(c predict.Correction) {
	s.enqueue(req{kind: reqCorrect, correct: correctRow{
		Tick:    c.Tick,
		Handle:  uint32(c.Handle),
		Dist:    c.Offset.Len(),
		Applied: c.Applied.Len(),
		Snapped: c.Snapped,
	}}, &s.dropCorrect)
}

func (s *SQLiteIndex) Bound(h ecs.Handle)   { s.binding(h, "bind") }
func (s *SQLiteIndex) Unbound(h ecs.Handle) { s.binding(h, "unbind") }

func (s *SQLiteIndex) binding(h ecs.Handle, event string) {
	s.enqueue(req{kind: reqBinding, binding: bindingRow{
		Handle: uint32(h),
		Event:  event,
		At:     time.Now().UTC().Format(time.RFC3339Nano),
	}}, &s.dropBinding)
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertReconcile, _ := s.db.Prepare(`INSERT OR REPLACE INTO reconciliations(session_id,seq,local_tick,ack_tick,handle,replayed,remaining,has_auth,auth_error) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertCorrect, _ := s.db.Prepare(`INSERT OR REPLACE INTO corrections(session_id,seq,tick,handle,dist,applied,snapped) VALUES(?,?,?,?,?,?,?)`)
	insertBinding, _ := s.db.Prepare(`INSERT OR REPLACE INTO bindings(session_id,seq,handle,event,at) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertReconcile, insertCorrect, insertBinding} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	// Sequence numbers continue from what a previous run of the same session
	// already stored.
	seqs := map[reqKind]int64{}
	for kind, table := range map[reqKind]string{
		reqReconcile: "reconciliations",
		reqCorrect:   "corrections",
		reqBinding:   "bindings",
	} {
		var last sql.NullInt64
		_ = s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM `+table+` WHERE session_id = ?`, s.session).Scan(&last)
		seqs[kind] = last.Int64
	}

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		seqs[r.kind]++
		seq := seqs[r.kind]
		var err error
		switch r.kind {
		case reqReconcile:
			if insertReconcile == nil {
				continue
			}
			row := r.reconcile
			_, err = tx.Stmt(insertReconcile).Exec(s.session, seq, int64(row.LocalTick), int64(row.AckTick),
				int64(row.Handle), row.Replayed, row.Remaining, boolInt(row.HasAuth), row.Error)
		case reqCorrect:
			if insertCorrect == nil {
				continue
			}
			row := r.correct
			_, err = tx.Stmt(insertCorrect).Exec(s.session, seq, int64(row.Tick), int64(row.Handle),
				row.Dist, row.Applied, boolInt(row.Snapped))
		case reqBinding:
			if insertBinding == nil {
				continue
			}
			row := r.binding
			_, err = tx.Stmt(insertBinding).Exec(s.session, seq, int64(row.Handle), row.Event, row.At)
		}
		if err != nil {
			_ = tx.Rollback()
			tx = nil
			continue
		}
		opCount++
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}
	commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
