package protocol

import "github.com/go-gl/mathgl/mgl64"

// Vec2 is the wire form of a 2D vector.
type Vec2 [2]float64

func FromVec(v mgl64.Vec2) Vec2 { return Vec2{v[0], v[1]} }

func (v Vec2) Vec() mgl64.Vec2 { return mgl64.Vec2{v[0], v[1]} }

// HELLO (client -> server)
type HelloMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	ClientName      string     `json:"client_name"`
	Auth            *HelloAuth `json:"auth,omitempty"`
}

type HelloAuth struct {
	ResumeToken string `json:"resume_token,omitempty"`
}

// SET_MOVE carries the movement command sampled for Tick.
type SetMoveMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint32 `json:"tick"`
	Direction       Vec2   `json:"direction"`
	Jumping         bool   `json:"jumping"`
}

type PlaceMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Pos             [2]int `json:"pos"`
	Layer           string `json:"layer"`
	Block           string `json:"block"`
}

type SpawnMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
	Kind            string `json:"kind"`
	Pos             Vec2   `json:"pos"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	ResumeToken     string         `json:"resume_token"`
	TickRateHz      int            `json:"tick_rate_hz"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type CatalogDigests struct {
	BlockPalette   DigestRef `json:"block_palette"`
	EntitiesDigest string    `json:"entities_digest"`
}

type DigestRef struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// JOINED binds the client to Handle. Pos is the spawn position when known.
type JoinedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Handle          uint32 `json:"handle"`
	Pos             *Vec2  `json:"pos,omitempty"`
}

// ACK acknowledges every command up to and including Tick.
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint32 `json:"tick"`
	Pos             *Vec2  `json:"pos,omitempty"`
}

type EntitySyncMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Handle          uint32 `json:"handle"`
	Kind            string `json:"kind,omitempty"`
	Pos             Vec2   `json:"pos"`
	// Spawn echoes the SPAWN id that created the entity.
	Spawn           string `json:"spawn,omitempty"`
}

type DespawnMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Handle          uint32 `json:"handle"`
}

type BlockChangeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Pos             [2]int `json:"pos"`
	Layer           string `json:"layer"`
	Block           string `json:"block"`
}

type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}
