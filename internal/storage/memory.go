// Package storage contains the in-memory submission journal used when no
// database is configured.
package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dharsanguruparan/pdfsummarizer/internal/model"
)

var (
	// ErrNotFound is returned for unknown submission ids.
	ErrNotFound = errors.New("submission not found")
)

// MemoryStore keeps submission records behind an RWMutex.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*model.SubmissionRecord
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*model.SubmissionRecord),
	}
}

// Save inserts or replaces a record, keeping the original CreatedAt.
func (m *MemoryStore) Save(_ context.Context, record *model.SubmissionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	rec := *record
	if prev, ok := m.records[rec.ID]; ok {
		rec.CreatedAt = prev.CreatedAt
		if rec.ArchiveKey == "" {
			rec.ArchiveKey = prev.ArchiveKey
		}
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	m.records[rec.ID] = &rec
	return nil
}

// Get returns a copy of the record.
func (m *MemoryStore) Get(_ context.Context, id string) (*model.SubmissionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *rec
	return &copy, nil
}
