package chat

import (
	"strings"

	"smartchat/internal/models"
)

// FilterSessions returns the sessions whose title or last message contains
// the query, case-insensitively, preserving the input order. An empty or
// whitespace query returns everything. Pure function, recomputed on every
// call.
func FilterSessions(sessions []models.ChatSession, query string) []models.ChatSession {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return sessions
	}
	out := make([]models.ChatSession, 0, len(sessions))
	for _, s := range sessions {
		if strings.Contains(strings.ToLower(s.Title), q) ||
			strings.Contains(strings.ToLower(s.LastMessage), q) {
			out = append(out, s)
		}
	}
	return out
}
