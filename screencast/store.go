package screencast

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"go2tv.app/screenshot/internal/fsx"
)

const restoreTokenFile = "restore_token"

// TokenStore persists the portal restore token between runs.
type TokenStore struct {
	Dir string
}

// DefaultTokenStore uses $XDG_STATE_HOME/go2tv-screenshot, falling back to
// ~/.local/state/go2tv-screenshot.
func DefaultTokenStore() (*TokenStore, error) {
	base := strings.TrimSpace(os.Getenv("XDG_STATE_HOME"))
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".local", "state")
	}
	return &TokenStore{Dir: filepath.Join(base, "go2tv-screenshot")}, nil
}

func (s *TokenStore) Path() string {
	return filepath.Join(s.Dir, restoreTokenFile)
}

// Load returns the stored token, or "" when none is stored.
func (s *TokenStore) Load() (string, error) {
	if s == nil {
		return "", nil
	}
	b, err := os.ReadFile(s.Path())
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func (s *TokenStore) Save(token string) error {
	if s == nil {
		return nil
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return s.Delete()
	}
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(s.Dir, restoreTokenFile, []byte(token+"\n"), 0o600)
}

// Delete removes the stored token. A missing token is not an error.
func (s *TokenStore) Delete() error {
	if s == nil {
		return nil
	}
	err := os.Remove(s.Path())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
