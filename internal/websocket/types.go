package websocket

import "time"

// MessageType names a push message sent to monitor clients.
type MessageType string

const (
	TypeStatus            MessageType = "status"
	TypePage              MessageType = "page"
	TypeCaptured          MessageType = "captured"
	TypeSnapshot          MessageType = "snapshot"
	TypeEndpoints         MessageType = "endpoints"
	TypeComplete          MessageType = "complete"
	TypeError             MessageType = "error"
	TypeTwoFactorRequired MessageType = "2fa_required"
)

// Message is one push to every connected client.
type Message struct {
	Type      MessageType `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// ClientMessage is something a client sent to the hub, such as a 2FA code.
type ClientMessage struct {
	Type string            `json:"type"`
	Data map[string]string `json:"data,omitempty"`
}
