package tgclient

import (
	"context"
	"os"
	"path/filepath"

	"github.com/gotd/td/session"
)

const sessionFileName = "session.json"

// SessionStorage implements session.Storage over a single file under the
// data directory. The blob itself is opaque, owned by gotd.
type SessionStorage struct {
	path string
}

// NewSessionStorage creates file-based session storage under dataDir.
func NewSessionStorage(dataDir string) *SessionStorage {
	if dataDir == "" {
		dataDir = "./data"
	}
	return &SessionStorage{path: filepath.Join(dataDir, sessionFileName)}
}

// Path returns the session file location.
func (s *SessionStorage) Path() string {
	return s.path
}

// Exists reports whether a non-empty session file is present.
func (s *SessionStorage) Exists() bool {
	info, err := os.Stat(s.path)
	return err == nil && info.Size() > 0
}

// LoadSession loads session data from the file.
func (s *SessionStorage) LoadSession(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, session.ErrNotFound
	}
	return data, nil
}

// StoreSession stores session data, creating parent directories on demand.
func (s *SessionStorage) StoreSession(_ context.Context, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

// DeleteSession removes the session file.
func (s *SessionStorage) DeleteSession() error {
	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
