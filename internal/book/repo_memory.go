package book

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryRepo keeps books in memory for tests.
type MemoryRepo struct {
	mu    sync.Mutex
	next  int
	books map[string]map[string]*Book // userID -> bookID
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{books: map[string]map[string]*Book{}}
}

func (r *MemoryRepo) CreateDraft(_ context.Context, userID string, now time.Time) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	id := fmt.Sprintf("book_%d", r.next)
	if r.books[userID] == nil {
		r.books[userID] = map[string]*Book{}
	}
	r.books[userID][id] = &Book{
		ID:        id,
		UserID:    userID,
		Status:    StatusInProgress,
		CreatedAt: now,
	}
	return id, nil
}

func (r *MemoryRepo) Complete(_ context.Context, userID, bookID, title, imageURL string, chapters []Chapter, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := r.locked(userID, bookID)
	if err != nil {
		return err
	}
	b.Status = StatusCompleted
	b.Title = title
	b.ImageURL = imageURL
	b.Chapters = append([]Chapter(nil), chapters...)
	b.Error = nil
	b.UpdatedAt = now
	return nil
}

func (r *MemoryRepo) Fail(_ context.Context, userID, bookID, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := r.locked(userID, bookID)
	if err != nil {
		return err
	}
	b.Status = StatusError
	b.Error = &message
	return nil
}

func (r *MemoryRepo) Book(_ context.Context, userID, bookID string) (Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := r.locked(userID, bookID)
	if err != nil {
		return Book{}, err
	}
	cp := *b
	cp.Chapters = append([]Chapter(nil), b.Chapters...)
	return cp, nil
}

func (r *MemoryRepo) locked(userID, bookID string) (*Book, error) {
	b, ok := r.books[userID][bookID]
	if !ok {
		return nil, ErrBookNotFound
	}
	return b, nil
}
