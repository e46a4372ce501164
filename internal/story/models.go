package story

import (
	"fmt"
	"time"
)

// Story is a user's evolving narrative record built from one or more recorded
// conversations. Nullable fields stay nil until generative processing fills
// them; title and description are never overwritten once set (they may have
// been curated by the user).
//
// The sessions map is keyed by session id and must never be replaced
// wholesale on update; see Repository.MergeSession.
type Story struct {
	ID                string             `firestore:"-"`
	UserID            string             `firestore:"userId"`
	CategoryID        string             `firestore:"categoryId"`
	Title             *string            `firestore:"title"`
	Description       *string            `firestore:"description"`
	StoryText         *string            `firestore:"storyText"`
	StorySummary      *string            `firestore:"storySummary"`
	ImageURL          *string            `firestore:"imageUrl"`
	InitialQuestion   string             `firestore:"initialQuestion"`
	IsOnboardingStory bool               `firestore:"isOnboardingStory"`
	NextSchedule      *NextSchedule      `firestore:"nextSchedule"`
	Sessions          map[string]Session `firestore:"sessions"`
	CreationTime      time.Time          `firestore:"creationTime"`
	LastUpdationTime  time.Time          `firestore:"lastUpdationTime"`
}

// Session is one recorded conversation instance tied to a single external
// call. The callId is the reconciliation key for webhook completion events.
// Updated flips to true exactly once, when generative post-processing has run
// for this session; data fields may still be refreshed afterwards.
type Session struct {
	CallID        string           `firestore:"callId"`
	Transcript    *string          `firestore:"transcript"`
	Turns         []TranscriptTurn `firestore:"transcript_object"`
	RecordingURL  *string          `firestore:"recording_url"`
	VideoURL      *string          `firestore:"videoUrl"`
	VideoComplete bool             `firestore:"videoComplete"`
	Updated       bool             `firestore:"updated"`
	CreationTime  time.Time        `firestore:"creationTime"`
	LastUpdatedAt time.Time        `firestore:"lastUpdatedAt"`
}

// TranscriptTurn is one utterance in a call transcript, narrowed to the
// fields we persist. Upstream SDK additions are deliberately dropped so the
// stored shape stays stable.
type TranscriptTurn struct {
	Role     string        `firestore:"role" json:"role"`
	Content  string        `firestore:"content" json:"content"`
	Words    []WordTiming  `firestore:"words" json:"words"`
	Metadata *TurnMetadata `firestore:"metadata,omitempty" json:"metadata,omitempty"`
}

type TurnMetadata struct {
	ResponseID int `firestore:"response_id" json:"response_id"`
}

// WordTiming carries per-word timing offsets in seconds.
type WordTiming struct {
	Word  string  `firestore:"word" json:"word"`
	Start float64 `firestore:"start" json:"start"`
	End   float64 `firestore:"end" json:"end"`
}

// NextSchedule is a pending outbound call. Cleared (set to nil) once the
// call is successfully dispatched; marked failed with the error otherwise.
type NextSchedule struct {
	DateTime    time.Time `firestore:"dateTime"`
	PhoneNumber string    `firestore:"phoneNumber"`
	Status      string    `firestore:"status"`
	Error       *string   `firestore:"error"`
}

const (
	ScheduleStatusScheduled = "scheduled"
	ScheduleStatusFailed    = "failed"
)

// Category provides the conversational context an agent and the narrative
// generator work within.
type Category struct {
	ID          string `firestore:"-"`
	Title       string `firestore:"title"`
	Description string `firestore:"description"`
}

// User holds the per-user settings the narrative generator consults.
type User struct {
	ID                string            `firestore:"-"`
	Name              string            `firestore:"name"`
	OnboardingStoryID string            `firestore:"onboardingStoryId"`
	StoryPreferences  *StoryPreferences `firestore:"storyPreferences"`
}

type StoryPreferences struct {
	NarrativeStyle   string `firestore:"narrativeStyle"`
	LengthPreference string `firestore:"lengthPreference"`
	DetailRichness   string `firestore:"detailRichness"`
}

// DefaultPreferences is the baseline applied when a user has not chosen
// narrative preferences.
func DefaultPreferences() StoryPreferences {
	return StoryPreferences{
		NarrativeStyle:   "first-person",
		LengthPreference: "balanced",
		DetailRichness:   "balanced",
	}
}

// Agent maps a (user, category) pair to the call-platform agent that runs
// their conversations.
type Agent struct {
	ID         string `firestore:"-"`
	UserID     string `firestore:"userId"`
	CategoryID string `firestore:"categoryId"`
	AgentID    string `firestore:"agentId"`
}

// NoPreviousContext is the summary sentinel passed to agents and the
// narrative generator before any conversation has been summarized.
const NoPreviousContext = "This is the first conversation and there is no previous context."

// ContextSummary returns the story's accumulated summary, or the fixed
// sentinel before the first summarization.
func (s *Story) ContextSummary() string {
	if s != nil && s.StorySummary != nil && *s.StorySummary != "" {
		return *s.StorySummary
	}
	return NoPreviousContext
}

// NewSessionID derives a session id from creation time. Ids are time-ordered
// by construction, which makes per-story iteration order deterministic enough
// for reconciliation.
func NewSessionID(t time.Time) string {
	return fmt.Sprintf("session_%d", t.UnixMilli())
}

// NewSession returns the placeholder session recorded at call initiation.
// All data fields stay null until the completion webhook fills them in.
func NewSession(callID string, now time.Time) Session {
	return Session{
		CallID:       callID,
		CreationTime: now,
	}
}
