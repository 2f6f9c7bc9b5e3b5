package documents

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps documents in process memory.
// Data survives across requests but not process restarts.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*Document
}

// NewMemoryStore creates an empty in-memory document store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]*Document),
	}
}

// Create stores a new document.
func (s *MemoryStore) Create(_ context.Context, doc *Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[doc.ID]; exists {
		return fmt.Errorf("document already exists: %s", doc.ID)
	}
	s.items[doc.ID] = cloneDocument(doc)
	return nil
}

// Get retrieves one document by id.
func (s *MemoryStore) Get(_ context.Context, id string) (*Document, error) {
	s.mu.RLock()
	d, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDocument(d), nil
}

// List returns matching documents ordered by updated_at desc, id desc.
func (s *MemoryStore) List(_ context.Context, params ListParams) ([]*Document, error) {
	limit := normalizeLimit(params.Limit)
	query := strings.ToLower(params.Query)

	s.mu.RLock()
	all := make([]*Document, 0, len(s.items))
	for _, d := range s.items {
		if matches(d, params, query) {
			all = append(all, cloneDocument(d))
		}
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].UpdatedAt.After(all[j].UpdatedAt)
	})

	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func matches(d *Document, params ListParams, query string) bool {
	if len(params.Statuses) > 0 && !slices.Contains(params.Statuses, d.Status) {
		return false
	}
	if params.DueBefore != nil && (d.Deadline == nil || d.Deadline.After(*params.DueBefore)) {
		return false
	}
	if query != "" &&
		!strings.Contains(strings.ToLower(d.Title), query) &&
		!strings.Contains(strings.ToLower(d.Content), query) {
		return false
	}
	return true
}

// Update replaces an existing document.
func (s *MemoryStore) Update(_ context.Context, doc *Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.items[doc.ID]
	if !ok {
		return ErrNotFound
	}
	c := cloneDocument(doc)
	c.CreatedAt = existing.CreatedAt
	s.items[doc.ID] = c
	return nil
}

// Delete removes a document.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ErrNotFound
	}
	delete(s.items, id)
	return nil
}

// Close releases resources (no-op for memory store).
func (s *MemoryStore) Close() error {
	return nil
}
