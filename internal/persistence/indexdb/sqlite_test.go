package indexdb

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/TeamQuantumFusion/rustaria-sub000/internal/predict"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/ecs"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqBinding}

	s.Reconciled(predict.Reconciliation{AckTick: 1})
	s.Corrected(predict.Correction{Tick: 1})
	s.Bound(1)

	st := s.Stats()
	if st.DropReconcileTotal != 1 || st.DropCorrectTotal != 1 || st.DropBindingTotal != 1 {
		t.Fatalf("drops=%+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_SummaryAfterReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "predict.sqlite")
	s, err := OpenSQLite(path, "S1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	auth := mgl64.Vec2{3, 4}
	s.Bound(1)
	s.Reconciled(predict.Reconciliation{
		LocalTick:     3,
		AckTick:       2,
		Handle:        1,
		Authoritative: &auth,
		After:         ecs.Position{},
		Replayed:      make([]predict.PendingCommand, 2),
		Remaining:     1,
	})
	s.Reconciled(predict.Reconciliation{LocalTick: 4, AckTick: 3, Handle: 1, Replayed: make([]predict.PendingCommand, 1), Remaining: 4})
	s.Corrected(predict.Correction{Tick: 3, Handle: 1, Offset: mgl64.Vec2{0, 2}, Applied: mgl64.Vec2{0, 0.025}})
	s.Corrected(predict.Correction{Tick: 4, Handle: 1, Offset: mgl64.Vec2{20, 0}, Applied: mgl64.Vec2{20, 0}, Snapped: true})
	s.Unbound(1)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = OpenSQLite(path, "S2")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	sum, err := s.Summary(context.Background(), "S1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Reconciliations != 2 || sum.Replayed != 3 || sum.MaxRemaining != 4 {
		t.Fatalf("reconcile summary=%+v", sum)
	}
	if math.Abs(sum.MeanAuthError-5) > 1e-9 {
		t.Fatalf("mean auth error=%v want 5", sum.MeanAuthError)
	}
	if sum.Corrections != 2 || sum.Snaps != 1 || sum.MaxDrift != 20 {
		t.Fatalf("correction summary=%+v", sum)
	}
	if sum.Binds != 1 || sum.Unbinds != 1 {
		t.Fatalf("binding summary=%+v", sum)
	}

	ids, err := s.Sessions(context.Background())
	if err != nil || len(ids) != 2 || ids[0] != "S1" {
		t.Fatalf("sessions=%v err=%v", ids, err)
	}

	empty, err := s.Summary(context.Background(), "S2")
	if err != nil || empty.Reconciliations != 0 || empty.MaxDrift != 0 {
		t.Fatalf("empty summary=%+v err=%v", empty, err)
	}
}
