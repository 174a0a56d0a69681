package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists credentials as a JSON file. Reads and writes are wholesale:
// logout or expiry clears the file entirely.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads stored credentials. A missing file yields empty credentials and
// no error.
func (s *Store) Load() (Credentials, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Credentials{}, nil
		}
		return Credentials{}, fmt.Errorf("open credentials file: %w", err)
	}
	defer f.Close()

	var creds Credentials
	if err := json.NewDecoder(f).Decode(&creds); err != nil {
		return Credentials{}, fmt.Errorf("decode credentials file: %w", err)
	}
	return creds, nil
}

// Save writes credentials, creating parent directories as needed. The file
// is owner-readable only.
func (s *Store) Save(creds Credentials) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials file: %w", err)
	}
	return nil
}

// Clear removes the credentials file. Clearing an already-absent file is not
// an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credentials file: %w", err)
	}
	return nil
}
