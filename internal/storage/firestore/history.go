package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"talkmubio-backend/internal/history"
)

// HistoryRepo implements history.Repository over the call_history collection.
type HistoryRepo struct {
	s *Store
}

func (s *Store) History() *HistoryRepo { return &HistoryRepo{s: s} }

func (r *HistoryRepo) col() *firestore.CollectionRef {
	return r.s.client.Collection("call_history")
}

// Append is insert-only; entries are never updated or deleted.
func (r *HistoryRepo) Append(ctx context.Context, e history.Entry) error {
	if _, err := r.col().Doc(e.ID).Create(ctx, e); err != nil {
		return fmt.Errorf("firestore history Append: %w", err)
	}
	return nil
}

// ByUser lists an account's history, most recent first.
func (r *HistoryRepo) ByUser(ctx context.Context, userID string) ([]history.Entry, error) {
	iter := r.col().
		Where("userId", "==", userID).
		OrderBy("createdAt", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	var out []history.Entry
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore history ByUser: %w", err)
		}
		var e history.Entry
		if err := snap.DataTo(&e); err != nil {
			return nil, fmt.Errorf("decode history entry %s: %w", snap.Ref.ID, err)
		}
		out = append(out, e)
	}
	return out, nil
}
