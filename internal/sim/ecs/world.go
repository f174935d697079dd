package ecs

import (
	"fmt"
	"sort"
)

// World is one simulation snapshot: a set of live handles plus one keyed
// storage per attribute kind. Worlds never share attribute values; every read
// returns a copy.
type World struct {
	name   string
	alive  map[Handle]struct{}
	stores [kindCount]map[Handle]Attribute
}

func NewWorld(name string) *World {
	w := &World{
		name:  name,
		alive: map[Handle]struct{}{},
	}
	for i := range w.stores {
		w.stores[i] = map[Handle]Attribute{}
	}
	return w
}

func (w *World) Name() string { return w.name }

func (w *World) Has(h Handle) bool {
	_, ok := w.alive[h]
	return ok
}

func (w *World) Len() int { return len(w.alive) }

// Handles returns the live handles in ascending order so that systems iterate
// deterministically.
func (w *World) Handles() []Handle {
	out := make([]Handle, 0, len(w.alive))
	for h := range w.alive {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Insert makes h live and adds the archetype's attributes. Attributes the
// entity already owns are kept.
func (w *World) Insert(h Handle, arch Archetype) {
	w.alive[h] = struct{}{}
	for _, a := range arch.Attributes {
		s := w.stores[a.Kind()]
		if _, ok := s[h]; ok {
			continue
		}
		s[h] = a
	}
}

// Remove drops h and all of its attributes. Removing an absent handle is a no-op.
func (w *World) Remove(h Handle) {
	delete(w.alive, h)
	for _, s := range w.stores {
		delete(s, h)
	}
}

func (w *World) HasAttr(h Handle, k Kind) bool {
	_, ok := w.stores[k][h]
	return ok
}

// Kinds lists the attribute kinds h owns, in Kind order.
func (w *World) Kinds(h Handle) []Kind {
	var out []Kind
	for k := Kind(0); k < kindCount; k++ {
		if _, ok := w.stores[k][h]; ok {
			out = append(out, k)
		}
	}
	return out
}

// Read returns a copy of h's attribute of type T.
func Read[T Attribute](w *World, h Handle) (T, bool) {
	var zero T
	v, ok := w.stores[zero.Kind()][h]
	if !ok {
		return zero, false
	}
	return v.(T), true
}

// MustRead is Read for handles whose attributes are known to exist. A miss means
// the caller's bookkeeping is out of sync with the world, so it panics.
func MustRead[T Attribute](w *World, h Handle) T {
	v, ok := Read[T](w, h)
	if !ok {
		var zero T
		panic(fmt.Sprintf("ecs: %s world: entity %d has no %s attribute", w.name, h, zero.Kind()))
	}
	return v
}

// Write stores v for h. It reports false when h is not live.
func Write[T Attribute](w *World, h Handle, v T) bool {
	if !w.Has(h) {
		return false
	}
	w.stores[v.Kind()][h] = v
	return true
}

// MustWrite is Write for handles known to be live.
func MustWrite[T Attribute](w *World, h Handle, v T) {
	if !Write(w, h, v) {
		panic(fmt.Sprintf("ecs: %s world: write %s to missing entity %d", w.name, v.Kind(), h))
	}
}

// copyEntity copies every attribute h owns in src into dst, making h live in
// dst. Attribute values are plain structs, so assignment is a deep copy.
func copyEntity(dst, src *World, h Handle) {
	if !src.Has(h) {
		return
	}
	dst.alive[h] = struct{}{}
	for k := range src.stores {
		if v, ok := src.stores[k][h]; ok {
			dst.stores[k][h] = v
		}
	}
}
