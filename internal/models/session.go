package models

import "time"

// ChatSession is a named conversation thread. Sessions are always minted by the
// backend, so an instance only exists once it has a server-assigned id.
//
// Messages is lazily populated: a session obtained from the list endpoint
// carries only metadata until its history is explicitly loaded.
type ChatSession struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	LastMessage string    `json:"last_message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	UserID      string    `json:"user_id,omitempty"`
	Messages    []Message `json:"messages,omitempty"`
}

// DisplayTitle falls back to the last message when the session has no title.
func (s *ChatSession) DisplayTitle() string {
	if s.Title != "" {
		return s.Title
	}
	return s.LastMessage
}
