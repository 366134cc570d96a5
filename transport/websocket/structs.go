package websocket

import (
	"encoding/json"

	"github.com/stanley-fork/variant-go-server/internal/entity"
)

// Message is the wire envelope in both directions: an action tag and a
// payload specific to it.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type identifyPayload struct {
	Token string `json:"token,omitempty"`
	Nick  string `json:"nick,omitempty"`
}

type createRoomPayload struct {
	Name string `json:"name"`
}

type joinRoomPayload struct {
	RoomID uint32 `json:"room_id"`
}

type gameActionPayload struct {
	RoomID uint32        `json:"room_id"`
	Action entity.Action `json:"action"`
}
