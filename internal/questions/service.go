package questions

import (
	"context"
	"log/slog"
	"time"

	"talkmubio-backend/internal/narrative"
	"talkmubio-backend/internal/reconcile"
	"talkmubio-backend/internal/story"
)

// Set is the per-account list of suggested follow-up questions, rebuilt
// after each completed call.
type Set struct {
	UserID    string    `json:"userId" firestore:"userId"`
	Questions []string  `json:"questions" firestore:"questions"`
	UpdatedAt time.Time `json:"updatedAt" firestore:"updatedAt"`
}

// Repository persists question sets keyed by user id.
type Repository interface {
	Save(ctx context.Context, set Set) error
	ByUser(ctx context.Context, userID string) (Set, error)
}

// StoryLister is the slice of the story repository this service reads.
type StoryLister interface {
	UserStories(ctx context.Context, userID string) ([]*story.Story, error)
}

// Suggester produces new questions from the ground already covered.
type Suggester interface {
	UpcomingQuestions(ctx context.Context, covered []narrative.CoveredStory) ([]string, error)
}

// Service rebuilds an account's upcoming questions after each call. Wired
// into the reconciliation engine as a hook; failures are logged only.

type Service struct {
	stories   StoryLister
	suggester Suggester
	repo      Repository
	log       *slog.Logger
	clock     func() time.Time
}

func NewService(stories StoryLister, suggester Suggester, repo Repository, log *slog.Logger) *Service {
	return &Service{stories: stories, suggester: suggester, repo: repo, log: log, clock: time.Now}
}

// Refresh regenerates and stores the question set for one account.
func (s *Service) Refresh(ctx context.Context, userID string) error {
	stories, err := s.stories.UserStories(ctx, userID)
	if err != nil {
		return err
	}

	covered := make([]narrative.CoveredStory, 0, len(stories))
	for _, st := range stories {
		if st.StorySummary == nil {
			continue
		}
		covered = append(covered, narrative.CoveredStory{
			InitialQuestion: st.InitialQuestion,
			StorySummary:    *st.StorySummary,
		})
	}

	qs, err := s.suggester.UpcomingQuestions(ctx, covered)
	if err != nil {
		return err
	}

	return s.repo.Save(ctx, Set{
		UserID:    userID,
		Questions: qs,
		UpdatedAt: s.clock().UTC(),
	})
}

// AfterCompletion implements reconcile.Hook.
func (s *Service) AfterCompletion(ctx context.Context, ev reconcile.HookEvent) {
	if err := s.Refresh(ctx, ev.UserID); err != nil {
		s.log.Warn("upcoming questions refresh failed", "user_id", ev.UserID, "error", err)
	}
}
