package narrative

import (
	"context"
	"encoding/json"
	"fmt"

	"talkmubio-backend/internal/openai"
	"talkmubio-backend/internal/reconcile"
)

const chatModel = "gpt-4o"

// ChatClient is the completion surface the narrative service needs.
type ChatClient interface {
	Chat(ctx context.Context, model string, messages []openai.ChatMessage, jsonObject bool) (string, error)
}

// Service turns finished conversations into narrative updates. It implements
// reconcile.Generator.
type Service struct {
	llm   ChatClient
	model string
}

func NewService(llm ChatClient) *Service {
	return &Service{llm: llm, model: chatModel}
}

// storyUpdateResponse is the structured JSON the model is asked to emit.
type storyUpdateResponse struct {
	StorySummary string `json:"storySummary"`
	StoryText    string `json:"storyText"`
	Title        string `json:"title"`
	Description  string `json:"description"`
}

func (s *Service) StoryUpdate(ctx context.Context, in reconcile.GenerateInput) (reconcile.StoryUpdate, error) {
	content, err := s.llm.Chat(ctx, s.model, []openai.ChatMessage{
		{Role: "system", Content: storyUpdatePrompt(in)},
	}, true)
	if err != nil {
		return reconcile.StoryUpdate{}, fmt.Errorf("narrative: story update completion: %w", err)
	}

	var resp storyUpdateResponse
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return reconcile.StoryUpdate{}, fmt.Errorf("narrative: decode story update: %w", err)
	}
	if resp.StorySummary == "" {
		return reconcile.StoryUpdate{}, fmt.Errorf("narrative: model returned empty storySummary")
	}

	return reconcile.StoryUpdate{
		StorySummary: resp.StorySummary,
		StoryText:    resp.StoryText,
		Title:        resp.Title,
		Description:  resp.Description,
	}, nil
}

// upcomingQuestionsResponse is the structured JSON for question regeneration.
type upcomingQuestionsResponse struct {
	Questions []string `json:"questions"`
}

// UpcomingQuestions suggests the next conversation starters for a user based
// on the ground already covered. Invoked as an optional post-reconciliation
// hook, never as part of the reconciliation contract.
func (s *Service) UpcomingQuestions(ctx context.Context, covered []CoveredStory) ([]string, error) {
	content, err := s.llm.Chat(ctx, s.model, []openai.ChatMessage{
		{Role: "system", Content: upcomingQuestionsPrompt(covered)},
	}, true)
	if err != nil {
		return nil, fmt.Errorf("narrative: questions completion: %w", err)
	}

	var resp upcomingQuestionsResponse
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return nil, fmt.Errorf("narrative: decode questions: %w", err)
	}
	return resp.Questions, nil
}

// CoveredStory is the minimal view of a story the question generator needs.
type CoveredStory struct {
	InitialQuestion string
	StorySummary    string
}
