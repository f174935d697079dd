package protocol

import (
	"encoding/json"
	"fmt"
)

const Version = "1.0"

// Message types.
const (
	// client -> server
	TypeHello   = "HELLO"
	TypeSetMove = "SET_MOVE"
	TypePlace   = "PLACE"
	TypeSpawn   = "SPAWN"

	// server -> client
	TypeWelcome     = "WELCOME"
	TypeJoined      = "JOINED"
	TypeAck         = "ACK"
	TypeEntitySync  = "ENTITY_SYNC"
	TypeDespawn     = "DESPAWN"
	TypeBlockChange = "BLOCK_CHANGE"
	TypeError       = "ERROR"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// DecodeInbound decodes a server -> client message into its concrete type.
func DecodeInbound(b []byte) (any, error) {
	base, err := DecodeBase(b)
	if err != nil {
		return nil, err
	}
	var msg any
	switch base.Type {
	case TypeWelcome:
		msg = &WelcomeMsg{}
	case TypeJoined:
		msg = &JoinedMsg{}
	case TypeAck:
		msg = &AckMsg{}
	case TypeEntitySync:
		msg = &EntitySyncMsg{}
	case TypeDespawn:
		msg = &DespawnMsg{}
	case TypeBlockChange:
		msg = &BlockChangeMsg{}
	case TypeError:
		msg = &ErrorMsg{}
	default:
		return nil, fmt.Errorf("unknown inbound type %q", base.Type)
	}
	if err := json.Unmarshal(b, msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", base.Type, err)
	}
	return msg, nil
}

// DecodeOutbound decodes a client -> server message; the dev server uses it.
func DecodeOutbound(b []byte) (any, error) {
	base, err := DecodeBase(b)
	if err != nil {
		return nil, err
	}
	var msg any
	switch base.Type {
	case TypeHello:
		msg = &HelloMsg{}
	case TypeSetMove:
		msg = &SetMoveMsg{}
	case TypePlace:
		msg = &PlaceMsg{}
	case TypeSpawn:
		msg = &SpawnMsg{}
	default:
		return nil, fmt.Errorf("unknown outbound type %q", base.Type)
	}
	if err := json.Unmarshal(b, msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", base.Type, err)
	}
	return msg, nil
}
