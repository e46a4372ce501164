package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"talkmubio-backend/internal/story"
)

// Store backs the domain repositories with Firestore. One Store serves the
// story, call-history, book, and upcoming-question collections.
type Store struct {
	client *firestore.Client
}

func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) storiesCol() *firestore.CollectionRef {
	return s.client.Collection("stories")
}

func (s *Store) storyDoc(id string) *firestore.DocumentRef {
	return s.storiesCol().Doc(id)
}

// callIndexCol maps a call id to its owning story and session so webhook
// lookups avoid a collection scan.
func (s *Store) callIndexCol() *firestore.CollectionRef {
	return s.client.Collection("call_index")
}

type callIndexDoc struct {
	StoryID   string `firestore:"storyId"`
	SessionID string `firestore:"sessionId"`
}

// CreateStory persists a new story document and returns its generated id.
func (s *Store) CreateStory(ctx context.Context, sty *story.Story) (string, error) {
	ref := s.storiesCol().NewDoc()
	if _, err := ref.Create(ctx, sty); err != nil {
		return "", fmt.Errorf("firestore CreateStory: %w", err)
	}
	return ref.ID, nil
}

func (s *Store) Story(ctx context.Context, id string) (*story.Story, error) {
	snap, err := s.storyDoc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, story.ErrStoryNotFound
		}
		return nil, fmt.Errorf("firestore Story: %w", err)
	}
	return decodeStory(snap)
}

// StoryByCallID resolves a call id through the index, falling back to a
// collection scan for stories written before the index existed.
func (s *Store) StoryByCallID(ctx context.Context, callID string) (*story.Story, string, error) {
	snap, err := s.callIndexCol().Doc(callID).Get(ctx)
	switch {
	case err == nil:
		var idx callIndexDoc
		if err := snap.DataTo(&idx); err != nil {
			return nil, "", fmt.Errorf("firestore StoryByCallID decode index: %w", err)
		}
		sty, err := s.Story(ctx, idx.StoryID)
		if err != nil {
			return nil, "", err
		}
		return sty, idx.SessionID, nil
	case status.Code(err) != codes.NotFound:
		return nil, "", fmt.Errorf("firestore StoryByCallID: %w", err)
	}

	iter := s.storiesCol().Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("firestore StoryByCallID scan: %w", err)
		}
		sty, err := decodeStory(snap)
		if err != nil {
			return nil, "", err
		}
		for sessionID, sess := range sty.Sessions {
			if sess.CallID == callID {
				return sty, sessionID, nil
			}
		}
	}
	return nil, "", story.ErrStoryNotFound
}

func (s *Store) AttachSession(ctx context.Context, storyID, sessionID string, sess story.Session, clearSchedule bool, now time.Time) error {
	ref := s.storyDoc(storyID)
	idxRef := s.callIndexCol().Doc(sess.CallID)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			if status.Code(err) == codes.NotFound {
				return story.ErrStoryNotFound
			}
			return err
		}

		updates := []firestore.Update{
			{FieldPath: firestore.FieldPath{"sessions", sessionID}, Value: sess},
			{Path: "lastUpdationTime", Value: now},
		}
		if clearSchedule {
			updates = append(updates, firestore.Update{Path: "nextSchedule", Value: nil})
		}
		if err := tx.Update(ref, updates); err != nil {
			return err
		}
		return tx.Set(idxRef, callIndexDoc{StoryID: storyID, SessionID: sessionID})
	})
	if err != nil {
		if err == story.ErrStoryNotFound {
			return err
		}
		return fmt.Errorf("firestore AttachSession: %w", err)
	}
	return nil
}

// MergeSession updates only the named sub-fields of one session plus any
// story-level fields, leaving sibling sessions untouched.
func (s *Store) MergeSession(ctx context.Context, storyID, sessionID string, sp story.SessionPatch, stp *story.StoryPatch) error {
	ref := s.storyDoc(storyID)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return story.ErrStoryNotFound
			}
			return err
		}
		sty, err := decodeStory(snap)
		if err != nil {
			return err
		}
		if _, ok := sty.Sessions[sessionID]; !ok {
			return story.ErrSessionNotFound
		}

		sessPath := func(field string) firestore.FieldPath {
			return firestore.FieldPath{"sessions", sessionID, field}
		}

		updates := []firestore.Update{
			{FieldPath: sessPath("lastUpdatedAt"), Value: sp.LastUpdatedAt},
		}
		if sp.Transcript != nil {
			updates = append(updates, firestore.Update{FieldPath: sessPath("transcript"), Value: *sp.Transcript})
		}
		if sp.Turns != nil {
			updates = append(updates, firestore.Update{FieldPath: sessPath("transcript_object"), Value: sp.Turns})
		}
		if sp.RecordingURL != nil {
			updates = append(updates, firestore.Update{FieldPath: sessPath("recording_url"), Value: *sp.RecordingURL})
		}
		if sp.Updated != nil {
			updates = append(updates, firestore.Update{FieldPath: sessPath("updated"), Value: *sp.Updated})
		}

		if stp != nil {
			if stp.StorySummary != nil {
				updates = append(updates, firestore.Update{Path: "storySummary", Value: *stp.StorySummary})
			}
			if stp.StoryText != nil {
				updates = append(updates, firestore.Update{Path: "storyText", Value: *stp.StoryText})
			}
			if stp.Title != nil {
				updates = append(updates, firestore.Update{Path: "title", Value: *stp.Title})
			}
			if stp.Description != nil {
				updates = append(updates, firestore.Update{Path: "description", Value: *stp.Description})
			}
			if stp.ImageURL != nil {
				updates = append(updates, firestore.Update{Path: "imageUrl", Value: *stp.ImageURL})
			}
			updates = append(updates, firestore.Update{Path: "lastUpdationTime", Value: stp.LastUpdationTime})
		}

		return tx.Update(ref, updates)
	})
	if err != nil {
		if err == story.ErrStoryNotFound || err == story.ErrSessionNotFound {
			return err
		}
		return fmt.Errorf("firestore MergeSession: %w", err)
	}
	return nil
}

func (s *Store) MarkScheduleFailed(ctx context.Context, storyID string, cause error, now time.Time) error {
	_, err := s.storyDoc(storyID).Update(ctx, []firestore.Update{
		{FieldPath: firestore.FieldPath{"nextSchedule", "status"}, Value: story.ScheduleStatusFailed},
		{FieldPath: firestore.FieldPath{"nextSchedule", "error"}, Value: cause.Error()},
		{Path: "lastUpdationTime", Value: now},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return story.ErrStoryNotFound
		}
		return fmt.Errorf("firestore MarkScheduleFailed: %w", err)
	}
	return nil
}

func (s *Store) ScheduledStories(ctx context.Context) ([]*story.Story, error) {
	iter := s.storiesCol().
		Where("nextSchedule.status", "==", story.ScheduleStatusScheduled).
		Documents(ctx)
	defer iter.Stop()

	var out []*story.Story
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore ScheduledStories: %w", err)
		}
		sty, err := decodeStory(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, sty)
	}
	return out, nil
}

func (s *Store) UserStories(ctx context.Context, userID string) ([]*story.Story, error) {
	iter := s.storiesCol().
		Where("userId", "==", userID).
		Where("isOnboardingStory", "in", []interface{}{false, nil}).
		Documents(ctx)
	defer iter.Stop()

	var out []*story.Story
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore UserStories: %w", err)
		}
		sty, err := decodeStory(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, sty)
	}
	return out, nil
}

func (s *Store) Category(ctx context.Context, id string) (*story.Category, error) {
	snap, err := s.client.Collection("categories").Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, story.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("firestore Category: %w", err)
	}
	var cat story.Category
	if err := snap.DataTo(&cat); err != nil {
		return nil, fmt.Errorf("firestore Category decode: %w", err)
	}
	cat.ID = snap.Ref.ID
	return &cat, nil
}

func (s *Store) User(ctx context.Context, id string) (*story.User, error) {
	snap, err := s.client.Collection("users").Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, story.ErrUserNotFound
		}
		return nil, fmt.Errorf("firestore User: %w", err)
	}
	var usr story.User
	if err := snap.DataTo(&usr); err != nil {
		return nil, fmt.Errorf("firestore User decode: %w", err)
	}
	usr.ID = snap.Ref.ID
	return &usr, nil
}

func (s *Store) AgentID(ctx context.Context, userID, categoryID string) (string, error) {
	iter := s.client.Collection("agents").
		Where("userId", "==", userID).
		Where("categoryId", "==", categoryID).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if err == iterator.Done {
		return "", story.ErrAgentNotFound
	}
	if err != nil {
		return "", fmt.Errorf("firestore AgentID: %w", err)
	}
	var ag story.Agent
	if err := snap.DataTo(&ag); err != nil {
		return "", fmt.Errorf("firestore AgentID decode: %w", err)
	}
	if ag.AgentID == "" {
		return "", story.ErrAgentNotFound
	}
	return ag.AgentID, nil
}

func decodeStory(snap *firestore.DocumentSnapshot) (*story.Story, error) {
	var sty story.Story
	if err := snap.DataTo(&sty); err != nil {
		return nil, fmt.Errorf("decode story %s: %w", snap.Ref.ID, err)
	}
	sty.ID = snap.Ref.ID
	if sty.Sessions == nil {
		sty.Sessions = map[string]story.Session{}
	}
	return &sty, nil
}
