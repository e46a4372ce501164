package story

import (
	"context"
	"errors"
	"time"
)

var (
	ErrStoryNotFound    = errors.New("story: story not found")
	ErrSessionNotFound  = errors.New("story: session not found")
	ErrCategoryNotFound = errors.New("story: category not found")
	ErrUserNotFound     = errors.New("story: user not found")
	ErrAgentNotFound    = errors.New("story: no agent found for this user and category")
)

// SessionPatch carries the session sub-fields refreshed on webhook delivery.
// Nil pointers mean "leave the stored value alone"; implementations must
// update only the named sub-fields of the one session and never rewrite the
// sessions map as a whole.
type SessionPatch struct {
	Transcript    *string
	Turns         []TranscriptTurn
	RecordingURL  *string
	Updated       *bool
	LastUpdatedAt time.Time
}

// StoryPatch carries the story-level fields written by generative
// processing, persisted in the same update as the session merge.
type StoryPatch struct {
	StorySummary     *string
	StoryText        *string
	Title            *string
	Description      *string
	ImageURL         *string
	LastUpdationTime time.Time
}

// Repository is the persistence contract for story documents.
//
// Rules:
// - The call-id secondary index is maintained by AttachSession; lookups go
//   through the index first and fall back to a collection scan.
// - Merge methods touch only the named fields (no blind document overwrite).
type Repository interface {
	CreateStory(ctx context.Context, s *Story) (string, error)
	Story(ctx context.Context, id string) (*Story, error)

	// StoryByCallID resolves the story and session owning an external call id.
	// Returns ErrStoryNotFound when no session matches.
	StoryByCallID(ctx context.Context, callID string) (*Story, string, error)

	// AttachSession records a new session under the story and registers the
	// session's call id in the lookup index in the same write. When
	// clearSchedule is set, nextSchedule is reset to null (scheduled
	// dispatch succeeded).
	AttachSession(ctx context.Context, storyID, sessionID string, sess Session, clearSchedule bool, now time.Time) error

	// MergeSession applies a targeted update to one session's sub-fields plus
	// optional story-level fields, leaving sibling sessions untouched.
	MergeSession(ctx context.Context, storyID, sessionID string, sp SessionPatch, stp *StoryPatch) error

	// MarkScheduleFailed records a dispatch failure on the story's pending
	// schedule without clearing it.
	MarkScheduleFailed(ctx context.Context, storyID string, cause error, now time.Time) error

	// ScheduledStories returns every story holding a schedule in
	// "scheduled" status. Window filtering is the dispatcher's concern.
	ScheduledStories(ctx context.Context) ([]*Story, error)

	// UserStories lists a user's stories, excluding the onboarding story.
	UserStories(ctx context.Context, userID string) ([]*Story, error)

	Category(ctx context.Context, id string) (*Category, error)
	User(ctx context.Context, id string) (*User, error)

	// AgentID resolves the call-platform agent for a (user, category) pair.
	// Returns ErrAgentNotFound when no mapping exists.
	AgentID(ctx context.Context, userID, categoryID string) (string, error)
}
