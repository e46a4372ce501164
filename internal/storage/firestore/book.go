package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"talkmubio-backend/internal/book"
)

// Books live in a per-user subcollection, users/{id}/books.
func (s *Store) booksCol(userID string) *firestore.CollectionRef {
	return s.client.Collection("users").Doc(userID).Collection("books")
}

func (s *Store) CreateDraft(ctx context.Context, userID string, now time.Time) (string, error) {
	ref := s.booksCol(userID).NewDoc()
	_, err := ref.Create(ctx, map[string]interface{}{
		"userId":    userID,
		"status":    book.StatusInProgress,
		"createdAt": now,
	})
	if err != nil {
		return "", fmt.Errorf("firestore book CreateDraft: %w", err)
	}
	return ref.ID, nil
}

func (s *Store) Complete(ctx context.Context, userID, bookID, title, imageURL string, chapters []book.Chapter, now time.Time) error {
	_, err := s.booksCol(userID).Doc(bookID).Update(ctx, []firestore.Update{
		{Path: "status", Value: book.StatusCompleted},
		{Path: "title", Value: title},
		{Path: "imageUrl", Value: imageURL},
		{Path: "chapters", Value: chapters},
		{Path: "error", Value: nil},
		{Path: "updatedAt", Value: now},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return book.ErrBookNotFound
		}
		return fmt.Errorf("firestore book Complete: %w", err)
	}
	return nil
}

func (s *Store) Fail(ctx context.Context, userID, bookID, message string) error {
	_, err := s.booksCol(userID).Doc(bookID).Update(ctx, []firestore.Update{
		{Path: "status", Value: book.StatusError},
		{Path: "error", Value: message},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return book.ErrBookNotFound
		}
		return fmt.Errorf("firestore book Fail: %w", err)
	}
	return nil
}

func (s *Store) Book(ctx context.Context, userID, bookID string) (book.Book, error) {
	snap, err := s.booksCol(userID).Doc(bookID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return book.Book{}, book.ErrBookNotFound
		}
		return book.Book{}, fmt.Errorf("firestore Book: %w", err)
	}
	var b book.Book
	if err := snap.DataTo(&b); err != nil {
		return book.Book{}, fmt.Errorf("firestore Book decode: %w", err)
	}
	b.ID = snap.Ref.ID
	return b, nil
}
