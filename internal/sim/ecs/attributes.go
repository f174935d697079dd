package ecs

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// Handle identifies an entity. The same value names the same entity in every
// world of a Triple; it never points into any storage.
type Handle uint32

// LocalHandleBase is the first handle used for entities spawned on the client.
// Server-assigned handles stay below it.
const LocalHandleBase Handle = 1 << 31

// Kind tags an attribute type. The set is closed: every storage a World owns is
// indexed by one of these.
type Kind uint8

const (
	KindPosition Kind = iota
	KindVelocity
	KindMovement
	KindIdentity

	kindCount
)

func (k Kind) String() string {
	switch k {
	case KindPosition:
		return "Position"
	case KindVelocity:
		return "Velocity"
	case KindMovement:
		return "Movement"
	case KindIdentity:
		return "Identity"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Attribute is implemented by the value types stored in a World.
type Attribute interface {
	Kind() Kind
	attribute()
}

// Position is the entity location in world units (x right, y up).
type Position struct {
	Vec mgl64.Vec2
}

// Velocity is in world units per tick.
type Velocity struct {
	Vec      mgl64.Vec2
	Grounded bool
}

// Movement is the intent consumed by the physics step.
type Movement struct {
	Direction mgl64.Vec2
	Jumping   bool
}

// Identity records which archetype an entity was created from.
type Identity struct {
	Archetype string
}

func (Position) Kind() Kind { return KindPosition }
func (Velocity) Kind() Kind { return KindVelocity }
func (Movement) Kind() Kind { return KindMovement }
func (Identity) Kind() Kind { return KindIdentity }

func (Position) attribute() {}
func (Velocity) attribute() {}
func (Movement) attribute() {}
func (Identity) attribute() {}

// Archetype is a named attribute template used when inserting entities.
type Archetype struct {
	Name       string
	Attributes []Attribute
}

// NewArchetype builds an archetype whose Identity attribute carries name.
func NewArchetype(name string, attrs ...Attribute) Archetype {
	out := make([]Attribute, 0, len(attrs)+1)
	out = append(out, Identity{Archetype: name})
	for _, a := range attrs {
		if a.Kind() == KindIdentity {
			continue
		}
		out = append(out, a)
	}
	return Archetype{Name: name, Attributes: out}
}
