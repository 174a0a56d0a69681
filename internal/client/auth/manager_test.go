package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"smartchat/internal/models"
)

func TestCredentialsValid(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		name  string
		creds Credentials
		want  bool
	}{
		{"live token", Credentials{Token: "t", ExpiresAt: now.Add(time.Hour)}, true},
		{"expired", Credentials{Token: "t", ExpiresAt: now.Add(-time.Second)}, false},
		{"expires exactly now", Credentials{Token: "t", ExpiresAt: now}, false},
		{"no token", Credentials{ExpiresAt: now.Add(time.Hour)}, false},
		{"zero value", Credentials{}, false},
	}
	for _, tc := range cases {
		if got := tc.creds.Valid(now); got != tc.want {
			t.Errorf("%s: Valid = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	store := NewStore(path)

	creds, err := store.Load()
	if err != nil {
		t.Fatalf("Load missing file: %v", err)
	}
	if creds.Token != "" {
		t.Error("missing file should yield empty credentials")
	}

	want := Credentials{
		Token:     "abc123",
		User:      models.User{ID: "u1", Email: "a@b.com", FullName: "Ana"},
		ExpiresAt: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
	}
	if err := store.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Token != want.Token || got.User.Email != want.User.Email || !got.ExpiresAt.Equal(want.ExpiresAt) {
		t.Errorf("round trip mismatch: %+v", got)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Clear should remove the file")
	}
	if err := store.Clear(); err != nil {
		t.Errorf("Clear on absent file: %v", err)
	}
}

func TestManagerLoginPersistsCredentials(t *testing.T) {
	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/login" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "a@b.com" || body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"detail": "Invalid email or password"})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "tok-1",
			"token_type":   "bearer",
			"expires_at":   expires,
			"user":         map[string]string{"id": "u1", "email": "a@b.com", "full_name": "Ana"},
		})
	}))
	t.Cleanup(srv.Close)

	path := filepath.Join(t.TempDir(), "credentials.json")
	mgr, err := NewManager(srv.URL, srv.Client(), NewStore(path))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if mgr.Valid() {
		t.Error("fresh manager should not be valid")
	}

	user, err := mgr.Login(context.Background(), "a@b.com", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if user.ID != "u1" || !mgr.Valid() || mgr.Token() != "tok-1" {
		t.Errorf("post-login state: user=%+v valid=%v token=%q", user, mgr.Valid(), mgr.Token())
	}

	// A second manager picks up the persisted credentials.
	again, err := NewManager(srv.URL, srv.Client(), NewStore(path))
	if err != nil {
		t.Fatalf("NewManager reload: %v", err)
	}
	if !again.Valid() || again.Token() != "tok-1" {
		t.Error("credentials should survive a restart")
	}
	if u, ok := again.CurrentUser(); !ok || u.Email != "a@b.com" {
		t.Errorf("CurrentUser = %+v, %v", u, ok)
	}
}

func TestManagerLoginSurfacesDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"detail": "Invalid email or password"})
	}))
	t.Cleanup(srv.Close)

	mgr, err := NewManager(srv.URL, srv.Client(), NewStore(filepath.Join(t.TempDir(), "c.json")))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := mgr.Login(context.Background(), "a@b.com", "wrong"); err == nil || err.Error() != "Invalid email or password" {
		t.Fatalf("err = %v, want backend detail", err)
	}
}

func TestManagerExpiredCredentialsClearedOnLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store := NewStore(path)
	store.Save(Credentials{Token: "stale", ExpiresAt: time.Now().Add(-time.Hour)})

	mgr, err := NewManager("http://unused", http.DefaultClient, store)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if mgr.Valid() {
		t.Error("expired credentials must not validate")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expired credentials file should be cleared")
	}
}

func TestManagerLogoutClearsDespiteServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "tok-1",
				"token_type":   "bearer",
				"expires_at":   time.Now().Add(time.Hour),
				"user":         map[string]string{"id": "u1", "email": "a@b.com"},
			})
		case "/api/auth/logout":
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	t.Cleanup(srv.Close)

	path := filepath.Join(t.TempDir(), "credentials.json")
	mgr, err := NewManager(srv.URL, srv.Client(), NewStore(path))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := mgr.Login(context.Background(), "a@b.com", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := mgr.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if mgr.Valid() || mgr.Token() != "" {
		t.Error("logout must clear local state even when the server errors")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("logout should remove the credentials file")
	}
}
