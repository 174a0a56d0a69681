package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"smartchat/internal/auth"
	"smartchat/internal/config"
	"smartchat/internal/service/ai"
	"smartchat/internal/service/chat"
	"smartchat/internal/storage"
	"smartchat/internal/worker"
)

func TestHandlersEndToEndFlow(t *testing.T) {
	router, db := newTestServer(t)
	defer db.Close()

	// Register a user.
	regResp := doJSONRequest(t, router, http.MethodPost, "/api/auth/register", map[string]string{
		"email":     "tester@example.com",
		"password":  "pass123",
		"full_name": "Tester",
	}, nil)
	assertStatus(t, regResp, http.StatusCreated)

	// Login to fetch the bearer token.
	loginResp := doJSONRequest(t, router, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "tester@example.com",
		"password": "pass123",
	}, nil)
	assertStatus(t, loginResp, http.StatusOK)
	var loginBody struct {
		AccessToken string    `json:"access_token"`
		ExpiresAt   time.Time `json:"expires_at"`
		User        struct {
			Email string `json:"email"`
		} `json:"user"`
	}
	decodeJSON(t, loginResp.Body.Bytes(), &loginBody)
	if loginBody.AccessToken == "" {
		t.Fatalf("expected access token from login")
	}
	if !loginBody.ExpiresAt.After(time.Now()) {
		t.Fatalf("expected future token expiry")
	}
	authHeader := map[string]string{"Authorization": "Bearer " + loginBody.AccessToken}

	// A fresh account has no sessions.
	listResp := doJSONRequest(t, router, http.MethodGet, "/api/chat/sessions", nil, authHeader)
	assertStatus(t, listResp, http.StatusOK)
	var sessions []wireSession
	decodeJSON(t, listResp.Body.Bytes(), &sessions)
	if len(sessions) != 0 {
		t.Fatalf("expected empty session list, got %d", len(sessions))
	}

	// Create a session; it comes seeded with the greeting.
	createResp := doJSONRequest(t, router, http.MethodPost, "/api/chat/sessions", nil, authHeader)
	assertStatus(t, createResp, http.StatusOK)
	var created wireSession
	decodeJSON(t, createResp.Body.Bytes(), &created)
	if created.ID == "" || created.Title != "New Analysis" {
		t.Fatalf("unexpected created session: %+v", created)
	}
	if len(created.Messages) != 1 || created.Messages[0].Sender != "bot" {
		t.Fatalf("expected greeting bot message, got %+v", created.Messages)
	}

	// Send a message and get the assistant reply.
	sendResp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/chat/%s/send", created.ID),
		map[string]string{"text": "analyze my supplier delays"},
		authHeader)
	assertStatus(t, sendResp, http.StatusOK)
	var reply wireMessage
	decodeJSON(t, sendResp.Body.Bytes(), &reply)
	if reply.Sender != "bot" || reply.SessionID != created.ID {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	// History now holds greeting + user message + reply, in order.
	msgResp := doJSONRequest(t, router, http.MethodGet,
		fmt.Sprintf("/api/chat/%s/messages", created.ID), nil, authHeader)
	assertStatus(t, msgResp, http.StatusOK)
	var messages []wireMessage
	decodeJSON(t, msgResp.Body.Bytes(), &messages)
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	if messages[1].Sender != "user" || messages[1].Text != "analyze my supplier delays" {
		t.Fatalf("unexpected user message: %+v", messages[1])
	}

	// Session list preview reflects the reply.
	listResp = doJSONRequest(t, router, http.MethodGet, "/api/chat/sessions", nil, authHeader)
	assertStatus(t, listResp, http.StatusOK)
	decodeJSON(t, listResp.Body.Bytes(), &sessions)
	if len(sessions) != 1 || sessions[0].LastMessage != reply.Text {
		t.Fatalf("expected last_message preview %q, got %+v", reply.Text, sessions)
	}

	// A second login simulates another device holding its own token.
	secondLogin := doJSONRequest(t, router, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "tester@example.com",
		"password": "pass123",
	}, nil)
	assertStatus(t, secondLogin, http.StatusOK)
	var secondBody struct {
		AccessToken string `json:"access_token"`
	}
	decodeJSON(t, secondLogin.Body.Bytes(), &secondBody)
	secondHeader := map[string]string{"Authorization": "Bearer " + secondBody.AccessToken}

	// Logout revokes every token for the user, not just the caller's.
	logoutResp := doJSONRequest(t, router, http.MethodPost, "/api/auth/logout", nil, authHeader)
	assertStatus(t, logoutResp, http.StatusNoContent)
	listResp = doJSONRequest(t, router, http.MethodGet, "/api/chat/sessions", nil, authHeader)
	assertStatus(t, listResp, http.StatusUnauthorized)
	listResp = doJSONRequest(t, router, http.MethodGet, "/api/chat/sessions", nil, secondHeader)
	assertStatus(t, listResp, http.StatusUnauthorized)
}

func TestHandlersErrorDetails(t *testing.T) {
	router, db := newTestServer(t)
	defer db.Close()

	doJSONRequest(t, router, http.MethodPost, "/api/auth/register", map[string]string{
		"email": "dup@example.com", "password": "x", "full_name": "Dup",
	}, nil)
	dupResp := doJSONRequest(t, router, http.MethodPost, "/api/auth/register", map[string]string{
		"email": "dup@example.com", "password": "y", "full_name": "Dup",
	}, nil)
	assertStatus(t, dupResp, http.StatusBadRequest)
	assertDetail(t, dupResp, "Email already registered")

	badLogin := doJSONRequest(t, router, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "dup@example.com", "password": "wrong",
	}, nil)
	assertStatus(t, badLogin, http.StatusUnauthorized)
	assertDetail(t, badLogin, "Invalid email or password")

	loginResp := doJSONRequest(t, router, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "dup@example.com", "password": "x",
	}, nil)
	assertStatus(t, loginResp, http.StatusOK)
	var loginBody struct {
		AccessToken string `json:"access_token"`
	}
	decodeJSON(t, loginResp.Body.Bytes(), &loginBody)
	authHeader := map[string]string{"Authorization": "Bearer " + loginBody.AccessToken}

	missing := doJSONRequest(t, router, http.MethodGet, "/api/chat/nope/messages", nil, authHeader)
	assertStatus(t, missing, http.StatusNotFound)
	assertDetail(t, missing, "Chat session not found")

	createResp := doJSONRequest(t, router, http.MethodPost, "/api/chat/sessions", nil, authHeader)
	assertStatus(t, createResp, http.StatusOK)
	var created wireSession
	decodeJSON(t, createResp.Body.Bytes(), &created)

	empty := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/chat/%s/send", created.ID),
		map[string]string{"text": "   "}, authHeader)
	assertStatus(t, empty, http.StatusUnprocessableEntity)

	noAuth := doJSONRequest(t, router, http.MethodGet, "/api/chat/sessions", nil, nil)
	assertStatus(t, noAuth, http.StatusUnauthorized)
}

func newTestServer(t *testing.T) (*gin.Engine, *sql.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: filepath.Join(t.TempDir(), "api_test.db")},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate database: %v", err)
	}

	workers := worker.NewDispatcher(worker.DispatcherConfig{MinWorkers: 1, MaxWorkers: 2, QueueSize: 4})
	t.Cleanup(workers.Stop)
	chatService := chat.NewService(db, nil, time.Minute, ai.LocalResponder{}, workers)
	authService := auth.NewService(db, time.Hour)

	router := gin.New()
	NewHandler(chatService, authService).RegisterRoutes(router)
	return router, db
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func assertDetail(t *testing.T, rec *httptest.ResponseRecorder, want string) {
	t.Helper()
	var body struct {
		Detail string `json:"detail"`
	}
	decodeJSON(t, rec.Body.Bytes(), &body)
	if body.Detail != want {
		t.Fatalf("expected detail %q, got %q", want, body.Detail)
	}
}

func decodeJSON(t *testing.T, data []byte, dest interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, dest); err != nil {
		t.Fatalf("decode json: %v (%s)", err, string(data))
	}
}
