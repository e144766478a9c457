package ws

import (
	"github.com/snapbooth/booth/internal/booth"
	"github.com/snapbooth/booth/internal/monitor"
	"github.com/snapbooth/booth/internal/session"
)

type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
	MsgEvent    MessageType = "event"
)

// WSMessage is the envelope for every frame sent to presentation clients.
// Seq increases by one per message so clients can spot gaps.
type WSMessage struct {
	Type    MessageType `json:"type"`
	Seq     uint64      `json:"seq"`
	Payload interface{} `json:"payload"`
}

type SnapshotPayload struct {
	Booth  booth.Status   `json:"booth"`
	Health monitor.Health `json:"health"`
}

type EventPayload = session.Event
