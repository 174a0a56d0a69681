package chat

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"smartchat/internal/models"
	"smartchat/internal/redis"
	"smartchat/internal/service/ai"
	"smartchat/internal/worker"
	"smartchat/pkg/logger"
)

const (
	// New sessions are seeded the way the product greets users.
	defaultSessionTitle = "New Analysis"
	greetingText        = "Hello! How can I help you with supply chain analysis today?"

	sessionCachePrefix = "chat:sessions:"
)

var (
	ErrSessionNotFound    = errors.New("chat session not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrEmptyMessage       = errors.New("message text cannot be empty")
)

// Service owns users, sessions, and messages on the server side. Assistant
// replies go through the worker dispatcher so concurrent completions stay
// bounded.
type Service struct {
	db        *sql.DB
	cache     *redis.Client
	cacheTTL  time.Duration
	responder ai.Responder
	workers   *worker.Dispatcher

	now   func() time.Time
	newID func() string
}

// NewService wires the chat service. cache may be nil; caching then degrades
// to direct database reads.
func NewService(db *sql.DB, cache *redis.Client, cacheTTL time.Duration, responder ai.Responder, workers *worker.Dispatcher) *Service {
	return &Service{
		db:        db,
		cache:     cache,
		cacheTTL:  cacheTTL,
		responder: responder,
		workers:   workers,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// RegisterUser creates an account with a unique email.
func (s *Service) RegisterUser(ctx context.Context, email, password, fullName string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	password = strings.TrimSpace(password)
	fullName = strings.TrimSpace(fullName)
	if email == "" || password == "" {
		return nil, errors.New("email and password are required")
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`, email,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return nil, ErrEmailTaken
	}

	passwordHash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		ID:           s.newID(),
		Email:        email,
		FullName:     fullName,
		PasswordHash: passwordHash,
		CreatedAt:    s.now(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, full_name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.FullName, user.PasswordHash, user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Login validates credentials and returns the user profile.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	password = strings.TrimSpace(password)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, full_name, password_hash, created_at FROM users WHERE email = ?`, email,
	)
	var user models.User
	if err := row.Scan(&user.ID, &user.Email, &user.FullName, &user.PasswordHash, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	if !verifyPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// CreateSession mints a session for the user, seeded with the assistant
// greeting so a fresh chat is never empty.
func (s *Service) CreateSession(ctx context.Context, userID string) (*models.ChatSession, error) {
	if userID == "" {
		return nil, errors.New("user id required")
	}
	now := s.now()
	session := &models.ChatSession{
		ID:        s.newID(),
		Title:     defaultSessionTitle,
		Timestamp: now,
		UserID:    userID,
	}
	greeting := models.Message{
		ID:        s.newID(),
		Text:      greetingText,
		Sender:    models.SenderAssistant,
		Timestamp: now,
		SessionID: session.ID,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, user_id, title, last_message, timestamp) VALUES (?, ?, ?, '', ?)`,
		session.ID, userID, session.Title, session.Timestamp,
	); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if err := insertMessage(ctx, tx, &greeting, now.UnixNano()); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit session: %w", err)
	}

	session.Messages = []models.Message{greeting}
	s.invalidateSessionCache(ctx, userID)
	return session, nil
}

// ListSessions returns the user's sessions most-recent-first, metadata only.
// Results are served from redis when possible.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]models.ChatSession, error) {
	if userID == "" {
		return nil, errors.New("user id required")
	}

	cacheKey := sessionCachePrefix + userID
	var cached []models.ChatSession
	if err := s.cache.GetJSON(ctx, cacheKey, &cached); err == nil {
		return cached, nil
	} else if !errors.Is(err, redis.ErrCacheMiss) {
		logger.Warnf("session cache read failed: %v", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, last_message, timestamp FROM chat_sessions WHERE user_id = ? ORDER BY timestamp DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]models.ChatSession, 0)
	for rows.Next() {
		var se models.ChatSession
		if err := rows.Scan(&se.ID, &se.UserID, &se.Title, &se.LastMessage, &se.Timestamp); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, se)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	if err := s.cache.SetJSON(ctx, cacheKey, sessions, s.cacheTTL); err != nil {
		logger.Warnf("session cache write failed: %v", err)
	}
	return sessions, nil
}

// SessionMessages returns a session's full history in insertion order.
func (s *Service) SessionMessages(ctx context.Context, userID, sessionID string) ([]models.Message, error) {
	if err := s.verifySession(ctx, userID, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, sender, text, timestamp FROM chat_messages WHERE session_id = ? ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Sender, &m.Text, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// ProcessMessage persists the user's message, obtains the assistant reply, and
// bumps the session's activity. The returned message is the assistant reply.
func (s *Service) ProcessMessage(ctx context.Context, userID, sessionID, text string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if err := s.verifySession(ctx, userID, sessionID); err != nil {
		return nil, err
	}

	history, err := s.SessionMessages(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	userMsg := &models.Message{
		ID:        s.newID(),
		Text:      text,
		Sender:    models.SenderUser,
		Timestamp: now,
		SessionID: sessionID,
	}
	if err := insertMessage(ctx, s.db, userMsg, now.UnixNano()); err != nil {
		return nil, err
	}

	histPtrs := make([]*models.Message, len(history))
	for i := range history {
		histPtrs[i] = &history[i]
	}
	var replyText string
	err = s.workers.Do(ctx, func() error {
		var replyErr error
		replyText, replyErr = s.responder.Reply(ctx, histPtrs, text)
		return replyErr
	})
	if err != nil {
		return nil, fmt.Errorf("assistant reply: %w", err)
	}

	replyAt := s.now()
	reply := &models.Message{
		ID:        s.newID(),
		Text:      replyText,
		Sender:    models.SenderAssistant,
		Timestamp: replyAt,
		SessionID: sessionID,
	}
	if err := insertMessage(ctx, s.db, reply, replyAt.UnixNano()); err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET last_message = ?, timestamp = ? WHERE id = ?`,
		reply.Text, replyAt, sessionID,
	); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}

	s.invalidateSessionCache(ctx, userID)
	return reply, nil
}

func (s *Service) verifySession(ctx context.Context, userID, sessionID string) error {
	if userID == "" || sessionID == "" {
		return ErrSessionNotFound
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM chat_sessions WHERE id = ? AND user_id = ?)`,
		sessionID, userID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("verify session: %w", err)
	}
	if !exists {
		return ErrSessionNotFound
	}
	return nil
}

func (s *Service) invalidateSessionCache(ctx context.Context, userID string) {
	if err := s.cache.Del(ctx, sessionCachePrefix+userID); err != nil {
		logger.Warnf("session cache invalidation failed: %v", err)
	}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertMessage(ctx context.Context, db execer, msg *models.Message, seq int64) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO chat_messages (id, session_id, sender, text, timestamp, seq) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.Sender, msg.Text, msg.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// hashPassword stores a per-user random salt next to the digest as
// "salt$digest", both hex. Identical passwords never share a stored hash.
func hashPassword(password string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	sum := sha256.Sum256(append(salt, []byte(password)...))
	return hex.EncodeToString(salt) + "$" + hex.EncodeToString(sum[:]), nil
}

func verifyPassword(stored, password string) bool {
	saltHex, digestHex, ok := strings.Cut(stored, "$")
	if !ok {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}
	sum := sha256.Sum256(append(salt, []byte(password)...))
	return hex.EncodeToString(sum[:]) == digestHex
}
