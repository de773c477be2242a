// Package registry persists session records as a single JSON document.
//
// The document is deliberately simple: every mutation is a whole-file
// read → modify → write, serialized through one mutex. The orchestrator
// and the four sweep loops all funnel through Update, so no writer can
// lose another's update, and nobody holds the document open across
// awaited I/O.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pairlink/core/errors"
)

// Document is the full registry contents.
type Document struct {
	Sessions map[string]*Session `json:"sessions"`
}

// Registry provides serialized access to the session document on disk.
type Registry struct {
	path string
	mu   sync.Mutex
}

// New creates a Registry persisting to the given path.
func New(path string) *Registry {
	return &Registry{path: path}
}

// Update runs fn against the current document and writes the result
// back. The whole operation holds the registry lock: concurrent callers
// serialize, and partial writes are impossible.
func (r *Registry) Update(fn func(*Document) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.read()
	if err != nil {
		return err
	}

	if err := fn(doc); err != nil {
		return err
	}

	return r.write(doc)
}

// Snapshot returns a copy of the current document.
func (r *Registry) Snapshot() (*Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read()
}

// Get returns the record for id, or a NOT_FOUND error.
func (r *Registry) Get(id string) (*Session, error) {
	doc, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	sess, ok := doc.Sessions[id]
	if !ok {
		return nil, errors.SessionNotFound(id)
	}
	return sess, nil
}

// Upsert inserts or replaces a record.
func (r *Registry) Upsert(sess *Session) error {
	return r.Update(func(doc *Document) error {
		doc.Sessions[sess.ID] = sess
		return nil
	})
}

// Delete removes a record. Deleting an absent id is not an error: sweeps
// must be idempotent.
func (r *Registry) Delete(id string) error {
	return r.Update(func(doc *Document) error {
		delete(doc.Sessions, id)
		return nil
	})
}

// All returns every record ordered by creation time.
func (r *Registry) All() ([]*Session, error) {
	doc, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	out := make([]*Session, 0, len(doc.Sessions))
	for _, s := range doc.Sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// read loads the document. A missing file yields an empty document.
// Callers hold r.mu.
func (r *Registry) read() (*Document, error) {
	doc := &Document{Sessions: make(map[string]*Session)}

	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return nil, fmt.Errorf("read registry: %w", err)
	}

	if len(data) == 0 {
		return doc, nil
	}

	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	if doc.Sessions == nil {
		doc.Sessions = make(map[string]*Session)
	}
	return doc, nil
}

// write persists the document atomically (temp file + rename) so a
// crash mid-write never corrupts the registry. Callers hold r.mu.
func (r *Registry) write(doc *Document) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("create registry directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replace registry: %w", err)
	}
	return nil
}
