package predict

import (
	"fmt"

	"github.com/TeamQuantumFusion/rustaria-sub000/internal/protocol"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/ecs"
	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/terrain"
)

// dispatchIntents applies queued intents locally and forwards them. On a send
// failure the failing intent is dropped and the rest stay queued.
func (c *Controller) dispatchIntents() error {
	for len(c.intents) > 0 {
		in := c.intents[0]
		c.intents = c.intents[1:]
		if err := c.dispatch(in); err != nil {
			return fmt.Errorf("%w: %s intent %s: %w", ErrSend, in.Kind, in.ID, err)
		}
	}
	c.intents = nil
	return nil
}

func (c *Controller) dispatch(in Intent) error {
	switch in.Kind {
	case IntentPlace:
		return c.placeBlock(in, c.reg.placeID, c.reg.placeName)
	case IntentRemove:
		return c.placeBlock(in, c.reg.removeID, c.reg.removeName)
	case IntentSpawn:
		return c.spawn(in)
	}
	return nil
}

func (c *Controller) placeBlock(in Intent, id uint16, name string) error {
	tile := terrain.TileAt(in.Pos)
	c.env.Terrain.PlaceBlock(tile, terrain.Foreground, id)
	c.obs.BlockPlaced(tile, terrain.Foreground, id)
	return c.env.Egress.Send(&protocol.PlaceMsg{
		Type:            protocol.TypePlace,
		ProtocolVersion: protocol.Version,
		Pos:             [2]int{tile.X, tile.Y},
		Layer:           terrain.Foreground.String(),
		Block:           name,
	})
}

func (c *Controller) spawn(in Intent) error {
	h := c.nextLocal
	c.nextLocal++
	lv := c.worlds.World(ecs.LocalView)
	lv.Insert(h, c.reg.spawn)
	ecs.Write(lv, h, ecs.Position{Vec: in.Pos})
	c.spawned[in.ID] = h
	return c.env.Egress.Send(&protocol.SpawnMsg{
		Type:            protocol.TypeSpawn,
		ProtocolVersion: protocol.Version,
		ID:              in.ID,
		Kind:            c.reg.spawn.Name,
		Pos:             protocol.FromVec(in.Pos),
	})
}

// OnSpawnConfirmed removes the local stand-in for spawn intent id once the
// server's entity for it has been synced.
func (c *Controller) OnSpawnConfirmed(id string) {
	h, ok := c.spawned[id]
	if !ok {
		return
	}
	delete(c.spawned, id)
	c.worlds.World(ecs.LocalView).Remove(h)
}
