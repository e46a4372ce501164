package book

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"talkmubio-backend/internal/openai"
	"talkmubio-backend/internal/story"
)

const chatModel = "gpt-4o"

var ErrNoStories = errors.New("book: no stories for user")

// ChatClient is the completion surface the book builder needs.
type ChatClient interface {
	Chat(ctx context.Context, model string, messages []openai.ChatMessage, jsonObject bool) (string, error)
}

// CoverRenderer produces a hosted cover-image URL from a description.
type CoverRenderer interface {
	CoverImage(ctx context.Context, coverDescription string) (string, error)
}

// StoryReader is the slice of the story repository the builder reads.
type StoryReader interface {
	UserStories(ctx context.Context, userID string) ([]*story.Story, error)
	User(ctx context.Context, id string) (*story.User, error)
}

// Service assembles a user's stories into a memory book: an index with
// chapter structure, a cover image, and per-chapter narrative generated
// while threading earlier chapter summaries through the prompt.
type Service struct {
	llm     ChatClient
	covers  CoverRenderer
	stories StoryReader
	books   Repository
	log     *slog.Logger
	clock   func() time.Time
}

func NewService(llm ChatClient, covers CoverRenderer, stories StoryReader, books Repository, log *slog.Logger) *Service {
	return &Service{
		llm:     llm,
		covers:  covers,
		stories: stories,
		books:   books,
		log:     log,
		clock:   time.Now,
	}
}

// Result summarizes a completed build.
type Result struct {
	BookID        string
	Title         string
	ChaptersCount int
}

// index is the structured JSON the model is asked to emit for the book plan.
type index struct {
	Title            string `json:"title"`
	CoverDescription string `json:"coverDescription"`
	Chapters         []struct {
		Number     int    `json:"number"`
		Title      string `json:"title"`
		StoryIndex int    `json:"storyIndex"`
	} `json:"chapters"`
}

// Build creates a book for the user. A draft record is written up front so
// any later failure can be marked on it.
func (s *Service) Build(ctx context.Context, userID string) (Result, error) {
	prefs := story.DefaultPreferences()
	if usr, err := s.stories.User(ctx, userID); err == nil && usr.StoryPreferences != nil {
		prefs = *usr.StoryPreferences
	}

	bookID, err := s.books.CreateDraft(ctx, userID, s.clock().UTC())
	if err != nil {
		return Result{}, fmt.Errorf("book: create draft: %w", err)
	}

	res, err := s.build(ctx, userID, bookID, prefs)
	if err != nil {
		if failErr := s.books.Fail(ctx, userID, bookID, err.Error()); failErr != nil {
			s.log.Error("marking book failed", "user_id", userID, "book_id", bookID, "error", failErr)
		}
		return Result{}, err
	}
	return res, nil
}

func (s *Service) build(ctx context.Context, userID, bookID string, prefs story.StoryPreferences) (Result, error) {
	stories, err := s.stories.UserStories(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("book: list stories: %w", err)
	}
	if len(stories) == 0 {
		return Result{}, ErrNoStories
	}

	content, err := s.llm.Chat(ctx, chatModel, []openai.ChatMessage{
		{Role: "system", Content: indexPrompt(stories)},
	}, true)
	if err != nil {
		return Result{}, fmt.Errorf("book: generate index: %w", err)
	}
	var idx index
	if err := json.Unmarshal([]byte(content), &idx); err != nil {
		return Result{}, fmt.Errorf("book: decode index: %w", err)
	}
	if len(idx.Chapters) == 0 {
		return Result{}, fmt.Errorf("book: index has no chapters")
	}

	coverURL, err := s.covers.CoverImage(ctx, idx.CoverDescription)
	if err != nil {
		return Result{}, fmt.Errorf("book: cover image: %w", err)
	}

	chapters := make([]Chapter, 0, len(idx.Chapters))
	summariesSoFar := ""
	for i, ch := range idx.Chapters {
		if ch.StoryIndex < 0 || ch.StoryIndex >= len(stories) {
			return Result{}, fmt.Errorf("book: chapter %d references story index %d out of range", i+1, ch.StoryIndex)
		}
		st := stories[ch.StoryIndex]

		text, err := s.llm.Chat(ctx, chatModel, []openai.ChatMessage{
			{Role: "system", Content: chapterPrompt(st, ch.Title, summariesSoFar, prefs)},
		}, false)
		if err != nil {
			return Result{}, fmt.Errorf("book: generate chapter %d: %w", i+1, err)
		}

		chapters = append(chapters, Chapter{
			Order:    i + 1,
			Title:    ch.Title,
			StoryID:  st.ID,
			Story:    text,
			ImageURL: st.ImageURL,
		})

		summary := "(No summary available)"
		if st.StorySummary != nil && *st.StorySummary != "" {
			summary = *st.StorySummary
		}
		summariesSoFar += fmt.Sprintf("\n\nTitle: %s\nSummary: %s", ch.Title, summary)
	}

	if err := s.books.Complete(ctx, userID, bookID, idx.Title, coverURL, chapters, s.clock().UTC()); err != nil {
		return Result{}, fmt.Errorf("book: persist book: %w", err)
	}

	return Result{BookID: bookID, Title: idx.Title, ChaptersCount: len(chapters)}, nil
}
