package models

import "time"

// Sender identifies the origin of a message. There is no third value.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Status tracks the optimistic-update lifecycle of a message on the client.
// It is derived state and never persisted remotely.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Message is the canonical message shape shared by the server and the client
// engine. The backend wire format differs (it reports sender as "user"/"bot");
// translation happens at the transport boundary, not here.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`

	// Status and Synthetic are client-side only. Synthetic marks the apology
	// message fabricated after a failed send; it is never sent to the backend
	// and is excluded from message counts.
	Status    Status `json:"-"`
	Synthetic bool   `json:"-"`
}
