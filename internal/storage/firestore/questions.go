package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"talkmubio-backend/internal/questions"
)

// QuestionsRepo implements questions.Repository. One document per account,
// keyed by user id.
type QuestionsRepo struct {
	s *Store
}

func (s *Store) Questions() *QuestionsRepo { return &QuestionsRepo{s: s} }

func (r *QuestionsRepo) doc(userID string) *firestore.DocumentRef {
	return r.s.client.Collection("upcoming_questions").Doc(userID)
}

func (r *QuestionsRepo) Save(ctx context.Context, set questions.Set) error {
	if _, err := r.doc(set.UserID).Set(ctx, set); err != nil {
		return fmt.Errorf("firestore questions Save: %w", err)
	}
	return nil
}

func (r *QuestionsRepo) ByUser(ctx context.Context, userID string) (questions.Set, error) {
	snap, err := r.doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return questions.Set{}, questions.ErrSetNotFound
		}
		return questions.Set{}, fmt.Errorf("firestore questions ByUser: %w", err)
	}
	var set questions.Set
	if err := snap.DataTo(&set); err != nil {
		return questions.Set{}, fmt.Errorf("firestore questions decode: %w", err)
	}
	return set, nil
}
