// Package credstore persists per-session authentication material on
// disk: one directory per session id holding a creds.json file. The
// presence of the file alone does not mean a session is authenticated;
// it must also carry a populated identity. That distinction drives the
// restore-on-startup and lazy-reconnect decisions.
package credstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

const credsFileName = "creds.json"

// Credentials is the persisted authentication material for one session.
// Keys is opaque to the bridge; only the protocol sidecar interprets it.
type Credentials struct {
	Identity string          `json:"identity,omitempty"`
	Keys     json.RawMessage `json:"keys,omitempty"`
}

// Store manages the on-disk session root.
type Store struct {
	root string
}

// New creates a store rooted at root, creating the directory if needed.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("credential store root is required")
	}
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("failed to create credential store root: %w", err)
	}
	return &Store{root: root}, nil
}

// validateID rejects ids that could escape the session root.
func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("session id cannot contain '..'")
	}
	if strings.ContainsAny(id, "/\\") {
		return fmt.Errorf("session id cannot contain path separators")
	}
	if strings.Contains(id, "\x00") {
		return fmt.Errorf("session id cannot contain null bytes")
	}
	return nil
}

// Root returns the session root directory.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) sessionDir(id string) string {
	return filepath.Join(s.root, id)
}

func (s *Store) credsPath(id string) string {
	return filepath.Join(s.sessionDir(id), credsFileName)
}

// Save writes raw credential material for id atomically.
func (s *Store) Save(id string, creds json.RawMessage) error {
	if err := validateID(id); err != nil {
		return err
	}
	if !json.Valid(creds) {
		return fmt.Errorf("refusing to persist malformed credentials for %s", id)
	}
	if err := os.MkdirAll(s.sessionDir(id), 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tmp := s.credsPath(id) + ".tmp"
	if err := os.WriteFile(tmp, creds, 0600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := os.Rename(tmp, s.credsPath(id)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace credentials: %w", err)
	}
	return nil
}

// Load returns the raw credential material for id, or nil when none is
// persisted.
func (s *Store) Load(id string) (json.RawMessage, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.credsPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	return data, nil
}

// SetIdentity records the authenticated identity alongside the stored
// keys, creating a minimal credential file when none exists yet.
func (s *Store) SetIdentity(id, identity string) error {
	if err := validateID(id); err != nil {
		return err
	}
	raw, err := s.Load(id)
	if err != nil {
		return err
	}
	var creds Credentials
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &creds); err != nil {
			log.Warn().Str("session_id", id).Err(err).Msg("Replacing unparseable credentials")
			creds = Credentials{}
		}
	}
	creds.Identity = identity

	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	return s.Save(id, data)
}

// Exists reports whether any credential file is present for id,
// regardless of its contents.
func (s *Store) Exists(id string) bool {
	if err := validateID(id); err != nil {
		return false
	}
	_, err := os.Stat(s.credsPath(id))
	return err == nil
}

// HasValid reports whether id has persisted credentials with a populated
// identity, i.e. the session completed pairing at least once. Malformed
// files never count as valid.
func (s *Store) HasValid(id string) bool {
	raw, err := s.Load(id)
	if err != nil || len(raw) == 0 {
		return false
	}
	var creds Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return false
	}
	return creds.Identity != ""
}

// Wipe erases the credential material for id but leaves the session
// directory in place so a fresh pairing can reuse the same id. Used on
// logout, where the persisted material is permanently invalid.
func (s *Store) Wipe(id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := os.Remove(s.credsPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to wipe credentials: %w", err)
	}
	return nil
}

// Delete removes the whole session directory recursively.
func (s *Store) Delete(id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := os.RemoveAll(s.sessionDir(id)); err != nil {
		return fmt.Errorf("failed to delete session directory: %w", err)
	}
	return nil
}

// List returns every session id with a credential file on disk.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read session root: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id := entry.Name()
		if s.Exists(id) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
