package chat

import (
	"context"
	"errors"
	"sort"
	"sync"

	"smartchat/internal/client/transport"
	"smartchat/internal/models"
	"smartchat/pkg/logger"
)

// LoadState tracks message-history loading per session.
type LoadState int

const (
	LoadStateUnloaded LoadState = iota
	LoadStateLoading
	LoadStateLoaded
	LoadStateError
)

func (s LoadState) String() string {
	switch s {
	case LoadStateLoading:
		return "loading"
	case LoadStateLoaded:
		return "loaded"
	case LoadStateError:
		return "error"
	default:
		return "unloaded"
	}
}

// ErrNoCurrentSession reports a send attempted with nothing selected.
var ErrNoCurrentSession = errors.New("no chat session selected")

// SessionTransport is the slice of the backend API the synchronizer needs.
type SessionTransport interface {
	ListSessions(ctx context.Context) ([]models.ChatSession, error)
	CreateSession(ctx context.Context) (*models.ChatSession, error)
	LoadMessages(ctx context.Context, sessionID string) ([]models.Message, error)
}

// AuthChecker reports whether stored credentials are still usable. The
// synchronizer refuses to bootstrap without a valid login.
type AuthChecker interface {
	Valid() bool
}

// Synchronizer orchestrates session lifecycle operations against the
// repository and transport: bootstrap, list refresh, selection with lazy
// history loading, creation, and sends via the reconciler.
type Synchronizer struct {
	repo       *Repository
	transport  SessionTransport
	reconciler *Reconciler
	auth       AuthChecker

	mu     sync.Mutex
	states map[string]LoadState
}

func NewSynchronizer(repo *Repository, tr SessionTransport, rc *Reconciler, auth AuthChecker) *Synchronizer {
	return &Synchronizer{
		repo:       repo,
		transport:  tr,
		reconciler: rc,
		auth:       auth,
		states:     make(map[string]LoadState),
	}
}

// State reports the load state for a session id.
func (s *Synchronizer) State(sessionID string) LoadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[sessionID]
}

func (s *Synchronizer) setState(sessionID string, st LoadState) {
	s.mu.Lock()
	s.states[sessionID] = st
	s.mu.Unlock()
}

// Bootstrap establishes an initial current session: refresh the list, select
// the most recent session, or create one when the account has none. Without
// valid credentials it does nothing.
func (s *Synchronizer) Bootstrap(ctx context.Context) error {
	if s.auth != nil && !s.auth.Valid() {
		logger.Debugf("bootstrap skipped: no valid credentials")
		return nil
	}
	if err := s.RefreshSessions(ctx); err != nil {
		return err
	}
	sessions := s.repo.Sessions()
	if len(sessions) == 0 {
		_, err := s.CreateNewChat(ctx)
		return err
	}
	return s.Select(ctx, sessions[0].ID)
}

// RefreshSessions replaces the repository's session list from the backend,
// ordered most-recent-first.
func (s *Synchronizer) RefreshSessions(ctx context.Context) error {
	sessions, err := s.transport.ListSessions(ctx)
	if err != nil {
		return err
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].Timestamp.After(sessions[j].Timestamp)
	})
	s.repo.ReplaceAll(sessions)
	s.mu.Lock()
	for id := range s.states {
		if _, ok := s.repo.Session(id); !ok {
			delete(s.states, id)
		}
	}
	s.mu.Unlock()
	return nil
}

// Select makes a session current, loading its history on first visit. A
// select while a send is pending on either the current or the target session
// is rejected so a full-replace load cannot race a provisional insert.
func (s *Synchronizer) Select(ctx context.Context, sessionID string) error {
	if s.reconciler.Sending(sessionID) || s.reconciler.Sending(s.repo.CurrentID()) {
		return ErrSendInFlight
	}
	if _, ok := s.repo.Session(sessionID); !ok {
		return transport.ErrSessionNotFound
	}
	if !s.repo.SetCurrent(sessionID) {
		return transport.ErrSessionNotFound
	}
	if s.State(sessionID) == LoadStateLoaded {
		return nil
	}

	s.setState(sessionID, LoadStateLoading)
	msgs, err := s.transport.LoadMessages(ctx, sessionID)

	// A slow load may resolve after the user moved on or the session was
	// pruned; its result must be discarded, not applied.
	if _, ok := s.repo.Session(sessionID); !ok {
		s.mu.Lock()
		delete(s.states, sessionID)
		s.mu.Unlock()
		logger.WithField("session_id", sessionID).Debugf("discarding load for removed session")
		return transport.ErrSessionNotFound
	}
	if s.repo.CurrentID() != sessionID {
		s.setState(sessionID, LoadStateUnloaded)
		logger.WithField("session_id", sessionID).Debugf("discarding superseded load")
		return nil
	}

	if err != nil {
		s.setState(sessionID, LoadStateError)
		return err
	}
	s.repo.ReplaceMessages(sessionID, msgs)
	s.setState(sessionID, LoadStateLoaded)
	return nil
}

// CreateNewChat mints a session through the backend, inserts it at the head
// of the list, and selects it. The fresh session starts loaded with whatever
// messages the backend seeded it with.
func (s *Synchronizer) CreateNewChat(ctx context.Context) (models.ChatSession, error) {
	session, err := s.transport.CreateSession(ctx)
	if err != nil {
		return models.ChatSession{}, err
	}
	s.repo.UpsertSession(*session)
	s.repo.SetCurrent(session.ID)
	s.setState(session.ID, LoadStateLoaded)
	return *session, nil
}

// SendMessage runs an optimistic send against the current session.
func (s *Synchronizer) SendMessage(ctx context.Context, text string) (SendOutcome, error) {
	current := s.repo.CurrentID()
	if current == "" {
		return SendOutcome{}, ErrNoCurrentSession
	}
	return s.reconciler.Send(ctx, current, text)
}

// Teardown drops all client chat state, for logout.
func (s *Synchronizer) Teardown() {
	s.repo.Reset()
	s.mu.Lock()
	s.states = make(map[string]LoadState)
	s.mu.Unlock()
}
