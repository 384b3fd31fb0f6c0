package websocket

import "time"

// Envelope - конверт сообщения; по Type фронтенд решает, как его показать.
type Envelope struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}
