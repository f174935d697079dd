package predict

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

type Key uint8

const (
	KeyLeft Key = iota
	KeyRight
	KeyUp
	KeyDown
	KeyJump

	keyCount
)

type Button uint8

const (
	ButtonLeft Button = iota
	ButtonRight
	ButtonMiddle
)

// InputEvent is a raw input event delivered by the window layer.
type InputEvent interface {
	inputEvent()
}

type KeyEvent struct {
	Key     Key
	Pressed bool
}

// PointerEvent is a click at viewport-normalized coordinates: (0,0) is the
// top-left corner, (1,1) the bottom-right.
type PointerEvent struct {
	Button Button
	X, Y   float64
}

func (KeyEvent) inputEvent()     {}
func (PointerEvent) inputEvent() {}

type IntentKind uint8

const (
	IntentPlace IntentKind = iota
	IntentRemove
	IntentSpawn
)

func (k IntentKind) String() string {
	switch k {
	case IntentPlace:
		return "place"
	case IntentRemove:
		return "remove"
	case IntentSpawn:
		return "spawn"
	}
	return "unknown"
}

// Intent is a one-shot action queued by a pointer event.
type Intent struct {
	ID   string
	Kind IntentKind
	Pos  mgl64.Vec2
}

// Sampler folds key transitions into the current Command and queues pointer
// clicks as intents.
type Sampler struct {
	pressed [keyCount]bool
	cmd     Command

	zoom   float64
	aspect float64

	queue []Intent
	newID func() string
}

func NewSampler(zoom, aspect float64) *Sampler {
	return &Sampler{zoom: zoom, aspect: aspect, newID: uuid.NewString}
}

func (s *Sampler) SetViewport(zoom, aspect float64) {
	s.zoom = zoom
	s.aspect = aspect
}

// Handle applies one event. camera is the world position the view is
// centered on.
func (s *Sampler) Handle(ev InputEvent, camera mgl64.Vec2) {
	switch e := ev.(type) {
	case KeyEvent:
		if e.Key >= keyCount {
			return
		}
		s.pressed[e.Key] = e.Pressed
		s.recompute()
	case PointerEvent:
		kind, ok := intentFor(e.Button)
		if !ok {
			return
		}
		s.queue = append(s.queue, Intent{
			ID:   s.newID(),
			Kind: kind,
			Pos:  s.Unproject(e.X, e.Y, camera),
		})
	}
}

func intentFor(b Button) (IntentKind, bool) {
	switch b {
	case ButtonLeft:
		return IntentPlace, true
	case ButtonRight:
		return IntentRemove, true
	case ButtonMiddle:
		return IntentSpawn, true
	}
	return 0, false
}

// Unproject maps viewport-normalized coordinates to world space. zoom is the
// half-height of the view in world units; y grows upward in the world.
func (s *Sampler) Unproject(x, y float64, camera mgl64.Vec2) mgl64.Vec2 {
	return camera.Add(mgl64.Vec2{
		(2*x - 1) * s.zoom * s.aspect,
		(1 - 2*y) * s.zoom,
	})
}

func (s *Sampler) recompute() {
	axis := func(pos, neg Key) float64 {
		v := 0.0
		if s.pressed[pos] {
			v++
		}
		if s.pressed[neg] {
			v--
		}
		return v
	}
	dir := mgl64.Vec2{axis(KeyRight, KeyLeft), axis(KeyUp, KeyDown)}
	if dir.Len() > 0 {
		dir = dir.Normalize()
	}
	s.cmd = Command{Direction: dir, Jumping: s.pressed[KeyJump]}
}

// Command returns the command for the current key state.
func (s *Sampler) Command() Command { return s.cmd }

// Drain returns and clears the queued intents.
func (s *Sampler) Drain() []Intent {
	out := s.queue
	s.queue = nil
	return out
}
