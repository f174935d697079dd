package predict

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestPendingLog_StrictlyIncreasing(t *testing.T) {
	l := NewPendingLog(2)
	for _, tick := range []uint32{1, 2, 5} {
		if err := l.Append(tick, Command{}); err != nil {
			t.Fatalf("append %d: %v", tick, err)
		}
	}
	for _, tick := range []uint32{5, 4} {
		if err := l.Append(tick, Command{}); !errors.Is(err, ErrTickNotIncreasing) {
			t.Fatalf("append %d: expected ErrTickNotIncreasing, got %v", tick, err)
		}
	}
	if l.Len() != 3 {
		t.Fatalf("len=%d want 3", l.Len())
	}
}

func TestPendingLog_PopReturnsSmallestAcrossGrowth(t *testing.T) {
	l := NewPendingLog(2)
	next := uint32(1)
	// Interleave pops and appends so the ring wraps before it grows.
	for round := 0; round < 5; round++ {
		for i := 0; i < 3; i++ {
			_ = l.Append(next, Command{Direction: mgl64.Vec2{float64(next), 0}})
			next++
		}
		want, _ := l.PeekOldest()
		got, ok := l.PopOldest()
		if !ok || got != want {
			t.Fatalf("pop=%+v peek=%+v", got, want)
		}
	}

	all := l.All()
	if len(all) != l.Len() {
		t.Fatalf("All len=%d Len=%d", len(all), l.Len())
	}
	for i := 1; i < len(all); i++ {
		if all[i].Tick <= all[i-1].Tick {
			t.Fatalf("not ascending at %d: %v", i, all)
		}
	}
	for l.Len() > 0 {
		prev, _ := l.PeekOldest()
		pc, _ := l.PopOldest()
		if pc.Tick != prev.Tick || pc.Command.Direction.X() != float64(pc.Tick) {
			t.Fatalf("entry mismatch: %+v", pc)
		}
	}
	if _, ok := l.PopOldest(); ok {
		t.Fatalf("pop on empty log")
	}
}
