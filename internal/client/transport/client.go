package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"smartchat/internal/models"
)

// TokenSource supplies the bearer token for each request, so the transport
// never caches credentials of its own.
type TokenSource func() string

// Client is a thin request/response gateway to the backend chat API. It holds
// no session state and applies no retry policy; failures surface to the
// caller typed per the error taxonomy in errors.go.
type Client struct {
	baseURL string
	http    *http.Client
	token   TokenSource
}

// NewClient builds a transport client for the API at baseURL.
func NewClient(baseURL string, timeout time.Duration, token TokenSource) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    NewHTTPClient(timeout),
		token:   token,
	}
}

// NewHTTPClient returns a tuned http.Client shared by the transport and the
// auth calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// ListSessions fetches session metadata; message lists may be empty until
// explicitly loaded.
func (c *Client) ListSessions(ctx context.Context) ([]models.ChatSession, error) {
	var wire []wireSession
	if err := c.do(ctx, http.MethodGet, "/api/chat/sessions", nil, &wire, "Failed to fetch chat history"); err != nil {
		return nil, err
	}
	sessions := make([]models.ChatSession, 0, len(wire))
	for _, ws := range wire {
		sessions = append(sessions, ws.toModel())
	}
	return sessions, nil
}

// CreateSession asks the backend to mint a new session.
func (c *Client) CreateSession(ctx context.Context) (*models.ChatSession, error) {
	var wire wireSession
	if err := c.do(ctx, http.MethodPost, "/api/chat/sessions", nil, &wire, "Failed to create new chat"); err != nil {
		return nil, err
	}
	session := wire.toModel()
	return &session, nil
}

// LoadMessages fetches the full history of a session.
func (c *Client) LoadMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	path := fmt.Sprintf("/api/chat/%s/messages", sessionID)
	var wire []wireMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &wire, "Failed to fetch session messages"); err != nil {
		return nil, err
	}
	messages := make([]models.Message, 0, len(wire))
	for _, wm := range wire {
		messages = append(messages, wm.toModel())
	}
	return messages, nil
}

// SendMessage submits text and returns the server-confirmed assistant reply.
func (c *Client) SendMessage(ctx context.Context, sessionID, text string) (*models.Message, error) {
	path := fmt.Sprintf("/api/chat/%s/send", sessionID)
	var wire wireMessage
	err := c.do(ctx, http.MethodPost, path, map[string]string{"text": text}, &wire, "Failed to send message")
	if err != nil {
		return nil, err
	}
	msg := wire.toModel()
	return &msg, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, dest interface{}, fallback string) error {
	var reqBody bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&reqBody).Encode(body); err != nil {
			return &TransportError{Op: fallback, Err: err}
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &reqBody)
	if err != nil {
		return &TransportError{Op: fallback, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != nil {
		if tok := c.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: fallback, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if dest == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return &TransportError{Op: fallback, Status: resp.StatusCode, Err: err}
		}
		return nil
	}

	detail := decodeDetail(resp)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrSessionNotFound
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		if detail == "" {
			detail = fallback
		}
		return &ValidationError{Detail: detail}
	default:
		return &TransportError{Op: fallback, Status: resp.StatusCode, Detail: detail}
	}
}

func decodeDetail(resp *http.Response) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return ""
	}
	return payload.Detail
}

// Wire shapes. The backend reports the assistant as "bot"; the canonical
// in-memory enum is assistant, so the translation lives here at the boundary.

type wireMessage struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
}

func (w wireMessage) toModel() models.Message {
	sender := models.SenderUser
	if w.Sender == "bot" || w.Sender == "assistant" {
		sender = models.SenderAssistant
	}
	return models.Message{
		ID:        w.ID,
		Text:      w.Text,
		Sender:    sender,
		Timestamp: w.Timestamp,
		SessionID: w.SessionID,
		Status:    models.StatusConfirmed,
	}
}

type wireSession struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	LastMessage string        `json:"last_message"`
	Timestamp   time.Time     `json:"timestamp"`
	UserID      string        `json:"user_id"`
	Messages    []wireMessage `json:"messages"`
}

func (w wireSession) toModel() models.ChatSession {
	msgs := make([]models.Message, 0, len(w.Messages))
	for _, wm := range w.Messages {
		msgs = append(msgs, wm.toModel())
	}
	return models.ChatSession{
		ID:          w.ID,
		Title:       w.Title,
		LastMessage: w.LastMessage,
		Timestamp:   w.Timestamp,
		UserID:      w.UserID,
		Messages:    msgs,
	}
}
