package client

import (
	"encoding/json"

	"github.com/snapbooth/booth/internal/session"
	"github.com/snapbooth/booth/internal/ws"
)

// WSMessage is the envelope as it arrives on the wire; the payload is
// decoded once its type is known.
type WSMessage struct {
	Type    ws.MessageType  `json:"type"`
	Seq     uint64          `json:"seq"`
	Payload json.RawMessage `json:"payload"`
}

type (
	SnapshotPayload    = ws.SnapshotPayload
	PresentationConfig = ws.PresentationConfig
	StatusResponse     = ws.StatusResponse
	Event              = session.Event
)
