package cart

import (
	"context"
	"sync"

	"github.com/safar/pickle-storefront/internal/models"
)

// Store persists cart bags. A bag is the ordered list of lines saved under a
// key; loading an unknown key yields an empty bag.
type Store interface {
	Load(ctx context.Context, bagKey string) ([]models.CartLine, error)
	Save(ctx context.Context, bagKey string, lines []models.CartLine) error
	Clear(ctx context.Context, bagKey string) error
}

type MemoryStore struct {
	mu   sync.RWMutex
	bags map[string][]models.CartLine
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bags: make(map[string][]models.CartLine)}
}

func (s *MemoryStore) Load(ctx context.Context, bagKey string) ([]models.CartLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneLines(s.bags[bagKey]), nil
}

func (s *MemoryStore) Save(ctx context.Context, bagKey string, lines []models.CartLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(lines) == 0 {
		delete(s.bags, bagKey)
		return nil
	}
	s.bags[bagKey] = cloneLines(lines)
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context, bagKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bags, bagKey)
	return nil
}

func cloneLines(lines []models.CartLine) []models.CartLine {
	out := make([]models.CartLine, len(lines))
	copy(out, lines)
	return out
}
