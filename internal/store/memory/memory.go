// Package memory is an in-process calendar store for single-node runs and
// tests. Contents are lost on restart.
package memory

import (
	"context"
	"sync"
	"time"

	"dayplan/backend/internal/domain"
	"dayplan/backend/internal/store"
)

type Store struct {
	mu   sync.RWMutex
	docs map[domain.CapabilityID]domain.CalendarDocument
	now  func() time.Time
}

func New() *Store {
	return &Store{
		docs: make(map[domain.CapabilityID]domain.CalendarDocument),
		now:  time.Now,
	}
}

var _ store.CalendarRepository = (*Store)(nil)

func (s *Store) Save(ctx context.Context, id domain.CapabilityID, body []byte) error {
	if err := ctx.Err(); err != nil {
		return store.Wrap("save", err, false)
	}
	doc := domain.CalendarDocument{
		ID:        id,
		Body:      append([]byte(nil), body...),
		UpdatedAt: s.now().UTC(),
	}
	s.mu.Lock()
	s.docs[id] = doc
	s.mu.Unlock()
	return nil
}

func (s *Store) Load(ctx context.Context, id domain.CapabilityID) (domain.CalendarDocument, error) {
	if err := ctx.Err(); err != nil {
		return domain.CalendarDocument{}, store.Wrap("load", err, false)
	}
	s.mu.RLock()
	doc, ok := s.docs[id]
	s.mu.RUnlock()
	if !ok {
		return domain.CalendarDocument{}, store.ErrNotFound
	}
	doc.Body = append([]byte(nil), doc.Body...)
	return doc, nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
