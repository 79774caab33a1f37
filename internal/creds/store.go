// Package creds persists per-account browser session credentials. Each
// account owns exactly one cookie file; a flock lease guards it for the
// duration of a publish job so a future multi-worker dispatcher cannot race
// on the same account.
package creds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// Cookie is one persisted session cookie. The JSON shape matches what the
// browser session exports and re-imports.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// FileStore reads and writes one account's credential file.
type FileStore struct {
	path string
}

// NewFileStore builds a FileStore rooted at the provided path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the credential file location.
func (s *FileStore) Path() string { return s.path }

// Exists reports whether a credential file is present on disk.
func (s *FileStore) Exists() bool {
	info, err := os.Stat(s.path)
	return err == nil && !info.IsDir()
}

// Load reads the persisted cookies. A missing file resolves to nil, nil.
func (s *FileStore) Load() ([]Cookie, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read credential file: %w", err)
	}

	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("decode credential file: %w", err)
	}
	return cookies, nil
}

// Save overwrites the credential file with restricted permissions.
func (s *FileStore) Save(cookies []Cookie) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("ensure credential directory: %w", err)
	}

	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write credential file: %w", err)
	}
	return nil
}

// Lease is an exclusive hold on one account's credential file.
type Lease struct {
	lock *flock.Flock
}

// Acquire takes the account lease, retrying until the context expires.
func (s *FileStore) Acquire(ctx context.Context) (*Lease, error) {
	lock := flock.New(s.path + ".lock")
	ok, err := lock.TryLockContext(ctx, 250*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("acquire credential lease: %w", err)
	}
	if !ok {
		return nil, errors.New("credential lease unavailable")
	}
	return &Lease{lock: lock}, nil
}

// Release drops the lease. Safe to call on a nil lease.
func (l *Lease) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
