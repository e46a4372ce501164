package questions

import (
	"context"
	"errors"
	"sync"
)

var ErrSetNotFound = errors.New("questions: set not found")

// MemoryRepo keeps question sets in memory for tests.
type MemoryRepo struct {
	mu   sync.Mutex
	sets map[string]Set
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{sets: map[string]Set{}}
}

func (r *MemoryRepo) Save(ctx context.Context, set Set) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sets[set.UserID] = set
	return nil
}

func (r *MemoryRepo) ByUser(ctx context.Context, userID string) (Set, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sets[userID]
	if !ok {
		return Set{}, ErrSetNotFound
	}
	return set, nil
}
