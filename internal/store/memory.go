package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"slotcal/internal/models"
)

// MemoryStore is an in-process fallback with the same contract as the Redis
// store, including the push feed. It also backs deterministic tests.
type MemoryStore struct {
	mu          sync.RWMutex
	docs        map[string]*models.Document
	subscribers map[int]chan struct{}
	nextSub     int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:        make(map[string]*models.Document),
		subscribers: make(map[int]chan struct{}),
	}
}

func (s *MemoryStore) PutEvent(ctx context.Context, doc *models.Document) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("document id is required")
	}
	cp := *doc
	s.mu.Lock()
	s.docs[doc.ID] = &cp
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *MemoryStore) GetEvent(ctx context.Context, id string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *doc
	return &cp, nil
}

func (s *MemoryStore) DeleteEvent(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.docs, id)
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *MemoryStore) ListEvents(ctx context.Context) ([]*models.Document, error) {
	s.mu.RLock()
	docs := make([]*models.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		cp := *doc
		docs = append(docs, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		ti, ei := time.Parse(time.RFC3339, docs[i].Start)
		tj, ej := time.Parse(time.RFC3339, docs[j].Start)
		if ei != nil || ej != nil {
			return docs[i].ID < docs[j].ID
		}
		return ti.Before(tj)
	})
	return docs, nil
}

func (s *MemoryStore) Subscribe(ctx context.Context) (<-chan struct{}, func(), error) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = ch
	s.mu.Unlock()

	stop := func() {
		s.mu.Lock()
		if sub, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(sub)
		}
		s.mu.Unlock()
	}
	return ch, stop, nil
}

func (s *MemoryStore) notify() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
