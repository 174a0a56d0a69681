package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"smartchat/internal/client/transport"
	"smartchat/internal/models"
	"smartchat/pkg/logger"
)

// apologyText is shown in place of an assistant reply when delivery fails.
const apologyText = "Sorry, I encountered an error. Please try again."

var (
	// ErrSendInFlight reports that a send is already pending for the session.
	ErrSendInFlight = errors.New("send already in flight for session")
	// ErrEmptyMessage reports a blank or whitespace-only send.
	ErrEmptyMessage = errors.New("message text cannot be empty")
)

// Transport is the slice of the backend API the reconciler needs.
type Transport interface {
	SendMessage(ctx context.Context, sessionID, text string) (*models.Message, error)
}

// SendOutcome describes how a send resolved.
type SendOutcome struct {
	// Provisional is the optimistic user message, with its final status.
	Provisional models.Message
	// Reply is the confirmed assistant reply, nil when the send failed.
	Reply *models.Message
	// Err is the transport failure, nil on success.
	Err error
}

// Reconciler runs the optimistic send protocol: append a provisional user
// message immediately, dispatch it, then reconcile the local history with the
// server's verdict. At most one send is in flight per session.
type Reconciler struct {
	repo      *Repository
	transport Transport

	mu       sync.Mutex
	inflight map[string]bool

	now   func() time.Time
	newID func() string
}

func NewReconciler(repo *Repository, tr Transport) *Reconciler {
	return &Reconciler{
		repo:      repo,
		transport: tr,
		inflight:  make(map[string]bool),
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
}

// Sending reports whether a send is pending for the session.
func (rc *Reconciler) Sending(sessionID string) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.inflight[sessionID]
}

// Send runs one optimistic send against the session. A second Send while one
// is pending for the same session returns ErrSendInFlight without touching
// the history.
func (rc *Reconciler) Send(ctx context.Context, sessionID, text string) (SendOutcome, error) {
	if strings.TrimSpace(text) == "" {
		return SendOutcome{}, ErrEmptyMessage
	}
	rc.mu.Lock()
	if rc.inflight[sessionID] {
		rc.mu.Unlock()
		return SendOutcome{}, ErrSendInFlight
	}
	rc.inflight[sessionID] = true
	rc.mu.Unlock()
	defer func() {
		rc.mu.Lock()
		delete(rc.inflight, sessionID)
		rc.mu.Unlock()
	}()

	provisional := models.Message{
		ID:        rc.newID(),
		Text:      text,
		Sender:    models.SenderUser,
		Timestamp: rc.now(),
		SessionID: sessionID,
		Status:    models.StatusPending,
	}
	if !rc.repo.AppendMessage(sessionID, provisional) {
		return SendOutcome{}, transport.ErrSessionNotFound
	}

	reply, err := rc.transport.SendMessage(ctx, sessionID, text)
	if err != nil {
		logger.WithField("session_id", sessionID).Warnf("send failed: %v", err)
		rc.repo.MarkMessage(sessionID, provisional.ID, models.StatusFailed)
		provisional.Status = models.StatusFailed
		rc.repo.AppendMessage(sessionID, models.Message{
			ID:        rc.newID(),
			Text:      apologyText,
			Sender:    models.SenderAssistant,
			Timestamp: rc.now(),
			SessionID: sessionID,
			Status:    models.StatusFailed,
			Synthetic: true,
		})
		return SendOutcome{Provisional: provisional, Err: err}, nil
	}

	rc.repo.MarkMessage(sessionID, provisional.ID, models.StatusConfirmed)
	provisional.Status = models.StatusConfirmed
	rc.repo.AppendMessage(sessionID, *reply)
	rc.repo.TouchSession(sessionID, reply.Text, reply.Timestamp)
	return SendOutcome{Provisional: provisional, Reply: reply}, nil
}
