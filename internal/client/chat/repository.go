package chat

import (
	"sync"
	"time"

	"smartchat/internal/models"
)

// Repository is the in-memory store of chat sessions and their messages. It
// owns the most-recent-first ordering and the current-session pointer. All
// methods are safe for concurrent use; reads return copies so callers can
// never mutate internal state.
type Repository struct {
	mu        sync.RWMutex
	order     []string
	sessions  map[string]*models.ChatSession
	currentID string
}

func NewRepository() *Repository {
	return &Repository{sessions: make(map[string]*models.ChatSession)}
}

// Sessions returns all sessions most-recent-first.
func (r *Repository) Sessions() []models.ChatSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ChatSession, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, copySession(r.sessions[id]))
	}
	return out
}

// Current returns the currently selected session, or false when none is
// selected.
func (r *Repository) Current() (models.ChatSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[r.currentID]
	if !ok {
		return models.ChatSession{}, false
	}
	return copySession(s), true
}

// CurrentID returns the id of the selected session, empty when none.
func (r *Repository) CurrentID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentID
}

// Session looks up one session by id.
func (r *Repository) Session(id string) (models.ChatSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return models.ChatSession{}, false
	}
	return copySession(s), true
}

// ReplaceAll swaps the whole session list, preserving the given order. The
// current selection survives only if its session is still present.
func (r *Repository) ReplaceAll(sessions []models.ChatSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = r.order[:0]
	r.sessions = make(map[string]*models.ChatSession, len(sessions))
	for i := range sessions {
		s := copySession(&sessions[i])
		r.order = append(r.order, s.ID)
		r.sessions[s.ID] = &s
	}
	if _, ok := r.sessions[r.currentID]; !ok {
		r.currentID = ""
	}
}

// UpsertSession inserts a new session at the head of the list, or updates an
// existing one in place without reordering.
func (r *Repository) UpsertSession(session models.ChatSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := copySession(&session)
	if _, ok := r.sessions[s.ID]; ok {
		r.sessions[s.ID] = &s
		return
	}
	r.order = append([]string{s.ID}, r.order...)
	r.sessions[s.ID] = &s
}

// SetCurrent selects a session; it reports false when the id is unknown.
func (r *Repository) SetCurrent(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id == "" {
		r.currentID = ""
		return true
	}
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	r.currentID = id
	return true
}

// AppendMessage adds a message to the tail of a session's history. Appends
// never reorder or drop earlier messages.
func (r *Repository) AppendMessage(sessionID string, msg models.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	s.Messages = append(s.Messages, msg)
	return true
}

// ReplaceMessages swaps a session's entire message history. Loads are
// full-replace, never merges.
func (r *Repository) ReplaceMessages(sessionID string, msgs []models.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	s.Messages = append([]models.Message(nil), msgs...)
	return true
}

// MarkMessage updates the delivery status of a single message.
func (r *Repository) MarkMessage(sessionID, messageID string, status models.Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	for i := range s.Messages {
		if s.Messages[i].ID == messageID {
			s.Messages[i].Status = status
			return true
		}
	}
	return false
}

// TouchSession refreshes a session's preview and activity time and moves it
// to the head of the ordering.
func (r *Repository) TouchSession(sessionID, lastMessage string, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	s.LastMessage = lastMessage
	s.Timestamp = at
	for i, id := range r.order {
		if id == sessionID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.order = append([]string{sessionID}, r.order...)
	return true
}

// MessageCount reports the number of real messages in a session. Synthetic
// placeholders are excluded.
func (r *Repository) MessageCount(sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return 0
	}
	n := 0
	for i := range s.Messages {
		if !s.Messages[i].Synthetic {
			n++
		}
	}
	return n
}

// Reset drops all state, for logout.
func (r *Repository) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = nil
	r.sessions = make(map[string]*models.ChatSession)
	r.currentID = ""
}

func copySession(s *models.ChatSession) models.ChatSession {
	out := *s
	out.Messages = append([]models.Message(nil), s.Messages...)
	return out
}
