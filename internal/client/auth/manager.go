package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"smartchat/internal/models"
	"smartchat/pkg/logger"
)

// Manager owns the client login lifecycle: authenticating against the
// backend, persisting credentials through the Store, and answering validity
// checks for the synchronization layer.
type Manager struct {
	baseURL string
	http    *http.Client
	store   *Store
	creds   Credentials
	now     func() time.Time
}

func NewManager(baseURL string, httpClient *http.Client, store *Store) (*Manager, error) {
	m := &Manager{
		baseURL: baseURL,
		http:    httpClient,
		store:   store,
		now:     time.Now,
	}
	creds, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	if creds.Valid(m.now()) {
		m.creds = creds
	} else if creds.Token != "" {
		logger.Debugf("stored credentials expired, clearing")
		if err := m.store.Clear(); err != nil {
			logger.Warnf("clear expired credentials: %v", err)
		}
	}
	return m, nil
}

// Valid reports whether a usable login is held right now.
func (m *Manager) Valid() bool {
	return m.creds.Valid(m.now())
}

// Token returns the current bearer token, empty when logged out or expired.
func (m *Manager) Token() string {
	if !m.Valid() {
		return ""
	}
	return m.creds.Token
}

// CurrentUser returns the logged-in user record.
func (m *Manager) CurrentUser() (models.User, bool) {
	if !m.Valid() {
		return models.User{}, false
	}
	return m.creds.User, true
}

type loginResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresAt   time.Time   `json:"expires_at"`
	User        models.User `json:"user"`
}

// Login authenticates and persists the resulting credentials.
func (m *Manager) Login(ctx context.Context, email, password string) (models.User, error) {
	var resp loginResponse
	err := m.post(ctx, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return models.User{}, err
	}
	m.creds = Credentials{Token: resp.AccessToken, User: resp.User, ExpiresAt: resp.ExpiresAt}
	if err := m.store.Save(m.creds); err != nil {
		logger.Warnf("persist credentials: %v", err)
	}
	return resp.User, nil
}

// Register creates an account. It does not log in; callers follow with Login.
func (m *Manager) Register(ctx context.Context, email, password, fullName string) (models.User, error) {
	var user models.User
	err := m.post(ctx, "/api/auth/register", map[string]string{
		"email":     email,
		"password":  password,
		"full_name": fullName,
	}, &user)
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

// Logout revokes the token server-side best-effort and clears local state
// regardless of the network outcome.
func (m *Manager) Logout(ctx context.Context) error {
	if m.creds.Token != "" {
		if err := m.post(ctx, "/api/auth/logout", nil, nil); err != nil {
			logger.Warnf("server-side logout failed, clearing local state anyway: %v", err)
		}
	}
	m.creds = Credentials{}
	return m.store.Clear()
}

func (m *Manager) post(ctx context.Context, path string, body, dest interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.creds.Token != "" {
		req.Header.Set("Authorization", "Bearer "+m.creds.Token)
	}

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var payload struct {
			Detail string `json:"detail"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&payload); decodeErr == nil && payload.Detail != "" {
			return fmt.Errorf("%s", payload.Detail)
		}
		return fmt.Errorf("request %s failed with status %d", path, resp.StatusCode)
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
