package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"talkmubio-backend/internal/story"
)

// CompletionEvent is the narrowed "call ended" event handed to the engine.
// The HTTP layer has already filtered out other event kinds.
type CompletionEvent struct {
	CallID       string
	Transcript   string
	Turns        []TurnInput
	RecordingURL string
}

// TurnInput is one raw transcript turn as delivered by the call platform.
// Fields beyond these are dropped on sanitization so the stored shape stays
// stable regardless of upstream SDK additions.
type TurnInput struct {
	Role       string
	Content    string
	Words      []WordInput
	ResponseID *int
}

type WordInput struct {
	Word  string
	Start float64
	End   float64
}

// Outcome classifies a completion delivery for the HTTP layer.
type Outcome int

const (
	// OutcomeNone is the zero value, paired with a non-nil error.
	OutcomeNone Outcome = iota
	// OutcomeProcessed: the owning session was found and persisted.
	OutcomeProcessed
	// OutcomeDuplicate: the dedup gate already holds this call id.
	OutcomeDuplicate
	// OutcomeNotFound: no story session matches the call id.
	OutcomeNotFound
)

var ErrDuplicateEvent = errors.New("reconcile: duplicate completion event")

// Generator produces the structured narrative update for a story from a
// finished conversation.
type Generator interface {
	StoryUpdate(ctx context.Context, in GenerateInput) (StoryUpdate, error)
}

type GenerateInput struct {
	Category          story.Category
	Preferences       story.StoryPreferences
	UserName          string
	InitialQuestion   string
	OnboardingSummary string
	PreviousSummary   string
	Transcript        string
}

// StoryUpdate is the structured result of a generative summarization step.
// Title and Description are suggestions; the engine adopts them only when the
// story's own fields are still null.
type StoryUpdate struct {
	StorySummary string
	StoryText    string
	Title        string
	Description  string
}

// ImageGenerator renders an illustrative image for a story. Failures are
// non-fatal: the engine proceeds without an image.
type ImageGenerator interface {
	StoryImage(ctx context.Context, summary string, cat story.Category) (string, error)
}

// Hook is an optional collaborator invoked after a successful reconciliation
// (e.g. call-history logging, upcoming-question regeneration). Hooks run on
// their own goroutine, off the webhook request path; failures are logged by
// the hook itself and never fail the webhook.
type Hook interface {
	AfterCompletion(ctx context.Context, ev HookEvent)
}

type HookEvent struct {
	UserID    string
	StoryID   string
	SessionID string
	CallID    string
}

// Engine reconciles call-completion events against story sessions: it
// deduplicates deliveries, locates the owning session, gates the expensive
// generative step on the session's updated flag, and persists the merged
// result in a single targeted update.
type Engine struct {
	gate   Gate
	repo   story.Repository
	gen    Generator
	images ImageGenerator
	hooks  []Hook
	clock  func() time.Time
	log    *slog.Logger
}

func NewEngine(gate Gate, repo story.Repository, gen Generator, images ImageGenerator, log *slog.Logger, hooks ...Hook) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		gate:   gate,
		repo:   repo,
		gen:    gen,
		images: images,
		hooks:  hooks,
		clock:  time.Now,
		log:    log,
	}
}

// HandleCompletion runs the reconciliation algorithm for one delivery.
//
// Failure semantics: once the dedup marker is set, every error path must
// release it so a legitimate redelivery can retry. The not-found path keeps
// the marker; it never set up generative state and redelivering an unmatched
// event cannot do useful work.
func (e *Engine) HandleCompletion(ctx context.Context, ev CompletionEvent) (Outcome, error) {
	if ev.CallID == "" {
		return OutcomeNone, errors.New("reconcile: call id is required")
	}

	acquired, err := e.gate.Acquire(ctx, ev.CallID)
	if err != nil {
		return OutcomeNone, fmt.Errorf("reconcile: dedup gate: %w", err)
	}
	if !acquired {
		e.log.Info("duplicate completion event skipped", "call_id", ev.CallID)
		return OutcomeDuplicate, nil
	}

	sty, sessionID, err := e.repo.StoryByCallID(ctx, ev.CallID)
	if err != nil {
		if errors.Is(err, story.ErrStoryNotFound) {
			return OutcomeNotFound, nil
		}
		e.release(ctx, ev.CallID)
		return OutcomeNone, fmt.Errorf("reconcile: locate story: %w", err)
	}
	sess := sty.Sessions[sessionID]

	now := e.clock().UTC()
	patch := story.SessionPatch{
		Transcript:    &ev.Transcript,
		Turns:         sanitizeTurns(ev.Turns),
		RecordingURL:  &ev.RecordingURL,
		LastUpdatedAt: now,
	}

	if sess.Updated {
		// Generative work never re-runs for an updated session; only the
		// session data fields are refreshed.
		if err := e.repo.MergeSession(ctx, sty.ID, sessionID, patch, nil); err != nil {
			e.release(ctx, ev.CallID)
			return OutcomeNone, fmt.Errorf("reconcile: refresh session: %w", err)
		}
	} else {
		storyPatch, err := e.generate(ctx, sty, ev.Transcript)
		if err != nil {
			e.release(ctx, ev.CallID)
			return OutcomeNone, err
		}
		storyPatch.LastUpdationTime = now

		updated := true
		patch.Updated = &updated
		if err := e.repo.MergeSession(ctx, sty.ID, sessionID, patch, storyPatch); err != nil {
			e.release(ctx, ev.CallID)
			return OutcomeNone, fmt.Errorf("reconcile: persist update: %w", err)
		}
	}

	hookEv := HookEvent{UserID: sty.UserID, StoryID: sty.ID, SessionID: sessionID, CallID: ev.CallID}
	if len(e.hooks) > 0 {
		// Hooks run off the request path; the webhook must answer before the
		// provider's retry timer, and a question-regeneration round trip can
		// take longer than that. WithoutCancel keeps them alive after the
		// HTTP request context closes.
		hookCtx := context.WithoutCancel(ctx)
		go func() {
			for _, h := range e.hooks {
				h.AfterCompletion(hookCtx, hookEv)
			}
		}()
	}
	return OutcomeProcessed, nil
}

// generate runs the generative summarization step and assembles the
// story-level patch. Title/description are adopted only when currently null;
// image generation failure is swallowed.
func (e *Engine) generate(ctx context.Context, sty *story.Story, transcript string) (*story.StoryPatch, error) {
	cat, err := e.repo.Category(ctx, sty.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("reconcile: category %q: %w", sty.CategoryID, err)
	}

	u, err := e.repo.User(ctx, sty.UserID)
	if err != nil {
		return nil, fmt.Errorf("reconcile: user %q: %w", sty.UserID, err)
	}
	prefs := story.DefaultPreferences()
	if u.StoryPreferences != nil {
		prefs = *u.StoryPreferences
	}

	onboardingSummary := ""
	if u.OnboardingStoryID != "" {
		ob, err := e.repo.Story(ctx, u.OnboardingStoryID)
		if err != nil {
			return nil, fmt.Errorf("reconcile: onboarding story %q: %w", u.OnboardingStoryID, err)
		}
		onboardingSummary = ob.ContextSummary()
	}

	// Raw summary, not the first-conversation sentinel: the prompt supplies
	// its own "No previous summary" default.
	prevSummary := ""
	if sty.StorySummary != nil {
		prevSummary = *sty.StorySummary
	}

	upd, err := e.gen.StoryUpdate(ctx, GenerateInput{
		Category:          *cat,
		Preferences:       prefs,
		UserName:          u.Name,
		InitialQuestion:   sty.InitialQuestion,
		OnboardingSummary: onboardingSummary,
		PreviousSummary:   prevSummary,
		Transcript:        transcript,
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile: generate story update: %w", err)
	}

	patch := &story.StoryPatch{
		StorySummary: &upd.StorySummary,
		StoryText:    &upd.StoryText,
	}
	if sty.Title == nil {
		patch.Title = &upd.Title
	}
	if sty.Description == nil {
		patch.Description = &upd.Description
	}

	if sty.ImageURL == nil && e.images != nil {
		url, imgErr := e.images.StoryImage(ctx, upd.StorySummary, *cat)
		if imgErr != nil {
			e.log.Warn("image generation failed, continuing without image", "story_id", sty.ID, "err", imgErr)
		} else if url != "" {
			patch.ImageURL = &url
		}
	}
	return patch, nil
}

func (e *Engine) release(ctx context.Context, callID string) {
	if err := e.gate.Release(ctx, callID); err != nil {
		e.log.Error("dedup marker release failed", "call_id", callID, "err", err)
	}
}

// sanitizeTurns projects raw platform turns down to the persisted shape.
func sanitizeTurns(turns []TurnInput) []story.TranscriptTurn {
	out := make([]story.TranscriptTurn, 0, len(turns))
	for _, t := range turns {
		words := make([]story.WordTiming, 0, len(t.Words))
		for _, w := range t.Words {
			words = append(words, story.WordTiming{Word: w.Word, Start: w.Start, End: w.End})
		}
		turn := story.TranscriptTurn{Role: t.Role, Content: t.Content, Words: words}
		if t.ResponseID != nil {
			turn.Metadata = &story.TurnMetadata{ResponseID: *t.ResponseID}
		}
		out = append(out, turn)
	}
	return out
}
