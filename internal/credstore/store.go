// Package credstore persists the pairing credential to a small JSON file,
// the local analog of the extension storage area the viewer token used to
// live in. Writes are atomic so the pairing invariant (agent id and token
// both present or both absent) holds even across a crash mid-write.
package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/lasersell/viewer/internal/model"
)

const (
	defaultFileMode = 0600
	defaultDirMode  = 0755
)

// record is the on-disk shape. PreferredCurrency rides along in the same
// file but sits outside the pairing invariant.
type record struct {
	AgentID           string `json:"agent_id,omitempty"`
	ViewerToken       string `json:"viewer_token,omitempty"`
	ExpiresAt         string `json:"expires_at,omitempty"`
	PreferredCurrency string `json:"preferred_currency,omitempty"`
}

// Store reads and writes the credential file at a fixed path.
type Store struct {
	mu   sync.Mutex
	path string
}

// New creates a store rooted at path. The containing directory is created
// eagerly so the watcher has something to watch before the first Set.
func New(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("credstore: path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), defaultDirMode); err != nil {
		return nil, fmt.Errorf("credstore: mkdir: %w", err)
	}
	return &Store{path: path}, nil
}

// DefaultPath returns the conventional credential file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("credstore: finding home directory: %w", err)
	}
	return filepath.Join(home, ".local", "state", "lasersell", "credentials.json"), nil
}

// Get reads the current credential. It never fails: a missing file, an
// unreadable file, or a record with only one of the two required fields
// all read as "no credential".
func (s *Store) Get() (model.Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.read()
	if err != nil {
		return model.Credential{}, false
	}
	cred := rec.credential()
	if !cred.Valid() {
		return model.Credential{}, false
	}
	return cred, true
}

// Set persists the credential atomically. Both fields are required; a
// partial credential is rejected rather than written.
func (s *Store) Set(cred model.Credential) error {
	if !cred.Valid() {
		return errors.New("credstore: partial credential (agent id and viewer token are both required)")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, _ := s.read() // keep preferred currency on re-pair
	rec.AgentID = cred.AgentID
	rec.ViewerToken = cred.ViewerToken
	rec.ExpiresAt = ""
	if !cred.ExpiresAt.IsZero() {
		rec.ExpiresAt = cred.ExpiresAt.UTC().Format(timeLayout)
	}
	return s.write(rec)
}

// Clear removes both credential fields atomically. The display preference
// survives so a re-pair keeps the user's currency. Idempotent.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.read()
	if err != nil || rec == (record{}) {
		// Nothing readable to preserve; removing the file clears everything.
		if rmErr := os.Remove(s.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return fmt.Errorf("credstore: remove: %w", rmErr)
		}
		return nil
	}
	if rec.PreferredCurrency == "" {
		if rmErr := os.Remove(s.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return fmt.Errorf("credstore: remove: %w", rmErr)
		}
		return nil
	}
	rec.AgentID = ""
	rec.ViewerToken = ""
	rec.ExpiresAt = ""
	return s.write(rec)
}

// PreferredCurrency returns the stored display currency, or fallback when
// none is set.
func (s *Store) PreferredCurrency(fallback string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.read()
	if err != nil || rec.PreferredCurrency == "" {
		return fallback
	}
	return rec.PreferredCurrency
}

// SetPreferredCurrency persists the display currency without touching the
// credential fields.
func (s *Store) SetPreferredCurrency(currency string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, _ := s.read()
	rec.PreferredCurrency = strings.ToLower(strings.TrimSpace(currency))
	return s.write(rec)
}

const timeLayout = "2006-01-02T15:04:05Z07:00" // RFC 3339

func (r record) credential() model.Credential {
	cred := model.Credential{
		AgentID:     r.AgentID,
		ViewerToken: r.ViewerToken,
	}
	if r.ExpiresAt != "" {
		if t, err := parseTime(r.ExpiresAt); err == nil {
			cred.ExpiresAt = t
		}
	}
	return cred
}

func (s *Store) read() (record, error) {
	var rec record
	data, err := os.ReadFile(s.path)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return record{}, fmt.Errorf("credstore: parse: %w", err)
	}
	return rec, nil
}

// write lands the record with write-tmp, fsync, rename so a reader never
// observes a half-written file.
func (s *Store) write(rec record) error {
	payload, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("credstore: marshal: %w", err)
	}
	payload = append(payload, '\n')

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, defaultFileMode)
	if err != nil {
		return fmt.Errorf("credstore: open tmp: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("credstore: write tmp: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("credstore: sync tmp: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("credstore: close tmp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("credstore: rename: %w", err)
	}
	return nil
}
