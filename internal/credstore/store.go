// Package credstore manages on-disk credential material, one directory
// per session. The directory name is the session id. A session's
// durable credential file is the only artifact that must survive once
// the session is verified good; everything else in the directory is
// disposable protocol state.
package credstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// DurableFile is the single credential file required to re-authenticate
// a session without repeating the challenge flow.
const DurableFile = "creds.json"

// Store is the credential directory root.
type Store struct {
	root   string
	logger *logrus.Entry
}

// New creates a Store rooted at the given directory.
func New(root string, logger *logrus.Entry) *Store {
	return &Store{root: root, logger: logger}
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// Dir returns the credential directory path for a session id.
func (s *Store) Dir(id string) string {
	return filepath.Join(s.root, id)
}

// Allocate creates the credential directory for a new session and
// returns its path.
func (s *Store) Allocate(id string) (string, error) {
	dir := s.Dir(id)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create credential directory: %w", err)
	}
	return dir, nil
}

// Exists reports whether a session's credential directory is on disk.
func (s *Store) Exists(id string) bool {
	info, err := os.Stat(s.Dir(id))
	return err == nil && info.IsDir()
}

// Remove deletes a session's credential directory and everything in it.
func (s *Store) Remove(id string) error {
	if err := os.RemoveAll(s.Dir(id)); err != nil {
		return fmt.Errorf("remove credential directory: %w", err)
	}
	return nil
}

// List returns the session ids that have a directory on disk.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read credential root: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			ids = append(ids, entry.Name())
		}
	}
	return ids, nil
}

// credentials is the subset of the durable file checked for validity.
type credentials struct {
	Me struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"me"`
}

// Valid is the single validity predicate for a credential directory:
// the durable file exists, parses as JSON, and carries a non-empty
// identity. All "is this session worth keeping" decisions go through
// here.
func (s *Store) Valid(id string) bool {
	_, err := s.readCredentials(id)
	return err == nil
}

// Identity returns the authenticated identity stored in the durable
// file.
func (s *Store) Identity(id string) (string, error) {
	creds, err := s.readCredentials(id)
	if err != nil {
		return "", err
	}
	return creds.Me.ID, nil
}

func (s *Store) readCredentials(id string) (*credentials, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir(id), DurableFile))
	if err != nil {
		return nil, err
	}

	var creds credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("malformed credential file: %w", err)
	}
	if creds.Me.ID == "" {
		return nil, fmt.Errorf("credential file missing identity")
	}
	return &creds, nil
}

// WriteCredentials persists new credential state into the durable file.
// Called when the protocol socket reports changed credentials.
func (s *Store) WriteCredentials(id string, data []byte) error {
	if _, err := s.Allocate(id); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(s.Dir(id), DurableFile), data, 0600); err != nil {
		return fmt.Errorf("write credential file: %w", err)
	}
	return nil
}

// Prune deletes every file in the session directory except the durable
// credential file, and returns how many entries were removed. It never
// touches the durable file itself, so it is safe to run while a
// just-closed socket flushes its final credential state.
func (s *Store) Prune(id string) (int, error) {
	dir := s.Dir(id)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read credential directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.Name() == DurableFile {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			s.logger.WithError(err).WithField("path", path).Warn("Failed to prune credential artifact")
			continue
		}
		removed++
	}
	return removed, nil
}

// FileInfo describes one file in a credential directory.
type FileInfo struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Files lists the files in a session's credential directory.
func (s *Store) Files(id string) ([]FileInfo, error) {
	entries, err := os.ReadDir(s.Dir(id))
	if err != nil {
		return nil, fmt.Errorf("read credential directory: %w", err)
	}

	var files []FileInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Name:    entry.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return files, nil
}

// ReadFile returns the contents of a single file in the session's
// directory. The name is sanitized so callers cannot escape it.
func (s *Store) ReadFile(id, name string) ([]byte, error) {
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, fmt.Errorf("invalid file name %q", name)
	}
	return os.ReadFile(filepath.Join(s.Dir(id), name))
}

// ModTime returns the last modification time of the session directory.
// Used as the age signal for untracked directories.
func (s *Store) ModTime(id string) (time.Time, error) {
	info, err := os.Stat(s.Dir(id))
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}
