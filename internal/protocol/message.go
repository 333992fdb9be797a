package protocol

// MessageType defines the type of a status feed message
type MessageType string

const (
	// TypeState carries a full connection manager snapshot
	TypeState MessageType = "state"

	// TypePing asks the server to resend the current state
	TypePing MessageType = "ping"
)

// Message is the generic container for all status feed messages
type Message struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}
