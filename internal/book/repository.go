package book

import (
	"context"
	"errors"
	"time"
)

var ErrBookNotFound = errors.New("book: not found")

// Repository persists books under their owning user. Drafts are written
// first so a crashed build leaves an inspectable error record instead of
// nothing.
type Repository interface {
	CreateDraft(ctx context.Context, userID string, now time.Time) (string, error)
	Complete(ctx context.Context, userID, bookID, title, imageURL string, chapters []Chapter, now time.Time) error
	Fail(ctx context.Context, userID, bookID, message string) error
	Book(ctx context.Context, userID, bookID string) (Book, error)
}
