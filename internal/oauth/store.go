package oauth

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
)

// Store persists a single OAuth2 credential as JSON on disk.
type Store struct {
	path   string
	logger *slog.Logger
}

// NewStore creates a credential store backed by the given file path.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, logger: logger}
}

// tokenFile wraps the OAuth2 token with bookkeeping metadata.
type tokenFile struct {
	oauth2.Token
	RetrievedAt time.Time `json:"retrieved_at,omitempty"`
}

// Load returns the stored credential, or nil when none exists. A
// corrupt or empty token file is deleted and treated as absent, so a
// fresh authorization flow replaces it.
func (s *Store) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var tf tokenFile
	if len(bytes.TrimSpace(data)) == 0 || json.Unmarshal(data, &tf) != nil {
		s.logger.Warn("discarding corrupt token file", "path", s.path)
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, nil
	}
	if tf.AccessToken == "" {
		return nil, nil
	}

	return &tf.Token, nil
}

// Save writes the credential with owner-only permissions.
func (s *Store) Save(tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(tokenFile{Token: *tok, RetrievedAt: time.Now()}, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0600)
}

// Delete removes the stored credential. A missing file is not an error.
func (s *Store) Delete() error {
	err := os.Remove(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Path returns the location of the credential file.
func (s *Store) Path() string { return s.path }
