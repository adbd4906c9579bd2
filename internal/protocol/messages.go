package protocol

import (
	"encoding/json"

	"publicpixel-server/internal/grid"
)

// Message type constants for the persistent channel. Every frame in either
// direction is a Type plus a JSON payload.
const (
	// client -> server
	TypePing        = "ping"
	TypeRequestSync = "requestSync"
	TypeIdentify    = "identify"

	// server -> client
	TypePong                = "pong"
	TypeConnectionConfirmed = "connectionConfirmed"
	TypeFullSync            = "fullSync"
	TypePixelUpdate         = "pixelUpdate"
	TypeNotification        = "notification"
)

type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type ServerMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// tygo:generate
type ConnectionConfirmed struct {
	Email string `json:"email"`
}

// tygo:generate
type FullSync struct {
	Pixels []grid.Cell `json:"pixels"`
}

// tygo:generate
type PixelUpdate struct {
	Position int       `json:"position"`
	Pixel    grid.Cell `json:"pixel"`
}

// tygo:generate
type Notification struct {
	Message string `json:"message"`
}

// tygo:generate
type IdentifyRequest struct {
	Email string `json:"email"`
}
