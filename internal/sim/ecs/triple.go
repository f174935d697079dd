package ecs

import "fmt"

// Which selects one of the three snapshots held by a Triple.
type Which uint8

const (
	// LocalView is rendered and receives out-of-band server corrections.
	LocalView Which = iota
	// Mirror replays acknowledged commands only.
	Mirror
	// Prediction is Mirror plus unacknowledged commands plus live input.
	Prediction

	whichCount
)

func (w Which) String() string {
	switch w {
	case LocalView:
		return "local"
	case Mirror:
		return "mirror"
	case Prediction:
		return "prediction"
	}
	return fmt.Sprintf("Which(%d)", uint8(w))
}

// StepFunc advances a single world by one tick.
type StepFunc func(w *World)

// Triple owns three independent worlds sharing one handle numbering.
type Triple struct {
	worlds [whichCount]*World
}

func NewTriple() *Triple {
	t := &Triple{}
	for i := range t.worlds {
		t.worlds[i] = NewWorld(Which(i).String())
	}
	return t
}

func (t *Triple) World(which Which) *World { return t.worlds[which] }

// Advance runs step against exactly one world.
func (t *Triple) Advance(which Which, step StepFunc) {
	step(t.worlds[which])
}

// InsertBound inserts h into all three worlds using arch.
func (t *Triple) InsertBound(h Handle, arch Archetype) {
	for _, w := range t.worlds {
		w.Insert(h, arch)
	}
}

// RemoveBound removes h from Mirror and Prediction. LocalView is owned by the
// server stream and is left alone.
func (t *Triple) RemoveBound(h Handle) {
	t.worlds[Mirror].Remove(h)
	t.worlds[Prediction].Remove(h)
}

// CloneAttributes value-copies every attribute h owns in from into to.
func (t *Triple) CloneAttributes(h Handle, from, to Which) {
	if from == to {
		return
	}
	copyEntity(t.worlds[to], t.worlds[from], h)
}

func ReadAttr[T Attribute](t *Triple, which Which, h Handle) (T, bool) {
	return Read[T](t.worlds[which], h)
}

func MustReadAttr[T Attribute](t *Triple, which Which, h Handle) T {
	return MustRead[T](t.worlds[which], h)
}

func WriteAttr[T Attribute](t *Triple, which Which, h Handle, v T) bool {
	return Write(t.worlds[which], h, v)
}

func MustWriteAttr[T Attribute](t *Triple, which Which, h Handle, v T) {
	MustWrite(t.worlds[which], h, v)
}
