package history

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"talkmubio-backend/internal/reconcile"
)

// Repository is the persistence contract for call-history entries.
//
// It MUST be append-only.
// No Update/Delete methods are provided.

type Repository interface {
	Append(ctx context.Context, e Entry) error
	ByUser(ctx context.Context, userID string) ([]Entry, error)
}

// Service records which calls each account has completed. It is wired into
// the reconciliation engine as a post-completion hook; failures are logged
// and never surface to the caller.

type Service struct {
	repo  Repository
	log   *slog.Logger
	clock func() time.Time
}

func NewService(repo Repository, log *slog.Logger) *Service {
	return &Service{repo: repo, log: log, clock: time.Now}
}

var ErrInvalidEntry = errors.New("history: invalid entry")

func (s *Service) Append(ctx context.Context, e Entry) error {
	if e.UserID == "" {
		return ErrInvalidEntry
	}
	if e.Kind == "" {
		return ErrInvalidEntry
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// ByUser lists an account's history, most recent first.
func (s *Service) ByUser(ctx context.Context, userID string) ([]Entry, error) {
	return s.repo.ByUser(ctx, userID)
}

// AfterCompletion implements reconcile.Hook.
func (s *Service) AfterCompletion(ctx context.Context, ev reconcile.HookEvent) {
	err := s.Append(ctx, Entry{
		UserID:    ev.UserID,
		Kind:      KindWebCall,
		StoryID:   ev.StoryID,
		SessionID: ev.SessionID,
		CallID:    ev.CallID,
	})
	if err != nil {
		s.log.Warn("call history append failed",
			"user_id", ev.UserID, "call_id", ev.CallID, "error", err)
	}
}
