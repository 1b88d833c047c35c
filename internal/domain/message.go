package domain

import "time"

// Message is a delivered chat message between two users. Messages are
// immutable once created; only live-path sends are ever persisted.
type Message struct {
	ID          uint64    `json:"id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp"`
}
