package story

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository useful for tests.
// It mirrors the firestore adapter's merge semantics, including the call-id
// index maintained on session attachment with a scan fallback.
type MemoryRepo struct {
	mu        sync.Mutex
	stories   map[string]*Story
	callIndex map[string]string // callId -> storyId
	seq       int

	Categories map[string]*Category
	Users      map[string]*User
	Agents     []Agent
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		stories:    make(map[string]*Story),
		callIndex:  make(map[string]string),
		Categories: make(map[string]*Category),
		Users:      make(map[string]*User),
	}
}

func (r *MemoryRepo) CreateStory(ctx context.Context, s *Story) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	id := fmt.Sprintf("story-%d", r.seq)
	cp := cloneStory(s)
	cp.ID = id
	if cp.Sessions == nil {
		cp.Sessions = make(map[string]Session)
	}
	r.stories[id] = cp
	return id, nil
}

// PutStory seeds a story under a fixed id. Test helper.
func (r *MemoryRepo) PutStory(s *Story) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := cloneStory(s)
	if cp.Sessions == nil {
		cp.Sessions = make(map[string]Session)
	}
	r.stories[cp.ID] = cp
	for _, sess := range cp.Sessions {
		r.callIndex[sess.CallID] = cp.ID
	}
}

func (r *MemoryRepo) Story(ctx context.Context, id string) (*Story, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stories[id]
	if !ok {
		return nil, ErrStoryNotFound
	}
	return cloneStory(s), nil
}

func (r *MemoryRepo) StoryByCallID(ctx context.Context, callID string) (*Story, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if storyID, ok := r.callIndex[callID]; ok {
		if s, ok := r.stories[storyID]; ok {
			for sessionID, sess := range s.Sessions {
				if sess.CallID == callID {
					return cloneStory(s), sessionID, nil
				}
			}
		}
	}

	// Index miss: fall back to a full scan, as the firestore adapter does for
	// sessions created before the index existed.
	for _, s := range r.stories {
		for sessionID, sess := range s.Sessions {
			if sess.CallID == callID {
				return cloneStory(s), sessionID, nil
			}
		}
	}
	return nil, "", ErrStoryNotFound
}

func (r *MemoryRepo) AttachSession(ctx context.Context, storyID, sessionID string, sess Session, clearSchedule bool, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stories[storyID]
	if !ok {
		return ErrStoryNotFound
	}
	if s.Sessions == nil {
		s.Sessions = make(map[string]Session)
	}
	s.Sessions[sessionID] = sess
	r.callIndex[sess.CallID] = storyID
	if clearSchedule {
		s.NextSchedule = nil
	}
	s.LastUpdationTime = now
	return nil
}

func (r *MemoryRepo) MergeSession(ctx context.Context, storyID, sessionID string, sp SessionPatch, stp *StoryPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stories[storyID]
	if !ok {
		return ErrStoryNotFound
	}
	sess, ok := s.Sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}

	if sp.Transcript != nil {
		sess.Transcript = sp.Transcript
	}
	if sp.Turns != nil {
		sess.Turns = sp.Turns
	}
	if sp.RecordingURL != nil {
		sess.RecordingURL = sp.RecordingURL
	}
	if sp.Updated != nil {
		sess.Updated = *sp.Updated
	}
	sess.LastUpdatedAt = sp.LastUpdatedAt
	s.Sessions[sessionID] = sess

	if stp != nil {
		if stp.StorySummary != nil {
			s.StorySummary = stp.StorySummary
		}
		if stp.StoryText != nil {
			s.StoryText = stp.StoryText
		}
		if stp.Title != nil {
			s.Title = stp.Title
		}
		if stp.Description != nil {
			s.Description = stp.Description
		}
		if stp.ImageURL != nil {
			s.ImageURL = stp.ImageURL
		}
		s.LastUpdationTime = stp.LastUpdationTime
	}
	return nil
}

func (r *MemoryRepo) MarkScheduleFailed(ctx context.Context, storyID string, cause error, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stories[storyID]
	if !ok {
		return ErrStoryNotFound
	}
	if s.NextSchedule == nil {
		return nil
	}
	s.NextSchedule.Status = ScheduleStatusFailed
	msg := cause.Error()
	s.NextSchedule.Error = &msg
	s.LastUpdationTime = now
	return nil
}

func (r *MemoryRepo) ScheduledStories(ctx context.Context) ([]*Story, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Story
	for _, s := range r.stories {
		if s.NextSchedule != nil && s.NextSchedule.Status == ScheduleStatusScheduled {
			out = append(out, cloneStory(s))
		}
	}
	return out, nil
}

func (r *MemoryRepo) UserStories(ctx context.Context, userID string) ([]*Story, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Story
	for _, s := range r.stories {
		if s.UserID == userID && !s.IsOnboardingStory {
			out = append(out, cloneStory(s))
		}
	}
	return out, nil
}

func (r *MemoryRepo) Category(ctx context.Context, id string) (*Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.Categories[id]
	if !ok {
		return nil, ErrCategoryNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryRepo) User(ctx context.Context, id string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.Users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *MemoryRepo) AgentID(ctx context.Context, userID, categoryID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.Agents {
		if a.UserID == userID && a.CategoryID == categoryID {
			return a.AgentID, nil
		}
	}
	return "", ErrAgentNotFound
}

func cloneStory(s *Story) *Story {
	cp := *s
	if s.NextSchedule != nil {
		ns := *s.NextSchedule
		cp.NextSchedule = &ns
	}
	if s.Sessions != nil {
		cp.Sessions = make(map[string]Session, len(s.Sessions))
		for k, v := range s.Sessions {
			cp.Sessions[k] = v
		}
	}
	return &cp
}
