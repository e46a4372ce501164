package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talkmubio-backend/internal/story"
)

type fakeGenerator struct {
	mu     sync.Mutex
	calls  int
	lastIn GenerateInput
	upd    StoryUpdate
	err    error
}

func (g *fakeGenerator) StoryUpdate(ctx context.Context, in GenerateInput) (StoryUpdate, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.lastIn = in
	if g.err != nil {
		return StoryUpdate{}, g.err
	}
	return g.upd, nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fakeImages struct {
	mu    sync.Mutex
	calls int
	url   string
	err   error
}

func (f *fakeImages) StoryImage(ctx context.Context, summary string, cat story.Category) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

type mergeFailRepo struct {
	story.Repository
	fail bool
}

func (r *mergeFailRepo) MergeSession(ctx context.Context, storyID, sessionID string, sp story.SessionPatch, stp *story.StoryPatch) error {
	if r.fail {
		return errors.New("store write failed")
	}
	return r.Repository.MergeSession(ctx, storyID, sessionID, sp, stp)
}

func seedRepo(t *testing.T) *story.MemoryRepo {
	t.Helper()
	repo := story.NewMemoryRepo()
	repo.Categories["cat1"] = &story.Category{ID: "cat1", Title: "Childhood", Description: "Early memories"}
	repo.Users["u1"] = &story.User{ID: "u1", Name: "Elena"}
	repo.PutStory(&story.Story{
		ID:              "s1",
		UserID:          "u1",
		CategoryID:      "cat1",
		InitialQuestion: "What was your first home like?",
		Sessions: map[string]story.Session{
			"session_1": {CallID: "c1"},
		},
	})
	return repo
}

func event() CompletionEvent {
	return CompletionEvent{
		CallID:     "c1",
		Transcript: "hello",
		Turns: []TurnInput{
			{Role: "agent", Content: "hi", Words: []WordInput{{Word: "hi", Start: 0.1, End: 0.4}}},
		},
		RecordingURL: "http://x",
	}
}

func TestHandleCompletion_FirstDeliveryRunsGenerativeUpdate(t *testing.T) {
	repo := seedRepo(t)
	gen := &fakeGenerator{upd: StoryUpdate{
		StorySummary: "a summary",
		StoryText:    "the story so far",
		Title:        "First Home",
		Description:  "Memories of a first home.",
	}}
	images := &fakeImages{url: "https://img/1.png"}
	eng := NewEngine(NewMemoryGate(time.Minute), repo, gen, images, nil)

	out, err := eng.HandleCompletion(context.Background(), event())
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, out)

	s, err := repo.Story(context.Background(), "s1")
	require.NoError(t, err)

	sess := s.Sessions["session_1"]
	assert.True(t, sess.Updated)
	require.NotNil(t, sess.Transcript)
	assert.Equal(t, "hello", *sess.Transcript)
	require.NotNil(t, sess.RecordingURL)
	assert.Equal(t, "http://x", *sess.RecordingURL)
	require.Len(t, sess.Turns, 1)
	assert.Equal(t, "agent", sess.Turns[0].Role)
	require.Len(t, sess.Turns[0].Words, 1)
	assert.Equal(t, 0.4, sess.Turns[0].Words[0].End)

	require.NotNil(t, s.StorySummary)
	assert.Equal(t, "a summary", *s.StorySummary)
	require.NotNil(t, s.Title)
	assert.Equal(t, "First Home", *s.Title)
	require.NotNil(t, s.ImageURL)
	assert.Equal(t, "https://img/1.png", *s.ImageURL)
	assert.Equal(t, 1, gen.callCount())
}

func TestHandleCompletion_PreviousSummaryIsRawNotSentinel(t *testing.T) {
	repo := seedRepo(t)
	gen := &fakeGenerator{upd: StoryUpdate{StorySummary: "s", StoryText: "t"}}
	eng := NewEngine(NewMemoryGate(time.Minute), repo, gen, nil, nil)

	// First conversation: no stored summary yet. The generator gets the raw
	// empty value so the prompt can apply its own default.
	_, err := eng.HandleCompletion(context.Background(), event())
	require.NoError(t, err)
	assert.Equal(t, "", gen.lastIn.PreviousSummary)

	// Later conversation: the stored summary is passed through unchanged.
	prev := "we talked about the river"
	repo.PutStory(&story.Story{
		ID: "s1", UserID: "u1", CategoryID: "cat1", StorySummary: &prev,
		Sessions: map[string]story.Session{
			"session_1": {CallID: "c2"},
		},
	})
	ev := event()
	ev.CallID = "c2"
	_, err = eng.HandleCompletion(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, prev, gen.lastIn.PreviousSummary)
}

func TestHandleCompletion_ConcurrentDeliveriesProcessOnce(t *testing.T) {
	repo := seedRepo(t)
	gen := &fakeGenerator{upd: StoryUpdate{StorySummary: "s", StoryText: "t"}}
	eng := NewEngine(NewMemoryGate(time.Minute), repo, gen, nil, nil)

	const deliveries = 8
	outcomes := make([]Outcome, deliveries)
	errs := make([]error, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = eng.HandleCompletion(context.Background(), event())
		}(i)
	}
	wg.Wait()

	processed, duplicates := 0, 0
	for i := 0; i < deliveries; i++ {
		require.NoError(t, errs[i])
		switch outcomes[i] {
		case OutcomeProcessed:
			processed++
		case OutcomeDuplicate:
			duplicates++
		default:
			t.Fatalf("unexpected outcome %v", outcomes[i])
		}
	}
	assert.Equal(t, 1, processed)
	assert.Equal(t, deliveries-1, duplicates)
	assert.Equal(t, 1, gen.callCount())
}

func TestHandleCompletion_UpdatedSessionSkipsGenerativeWork(t *testing.T) {
	repo := seedRepo(t)
	done := true
	repo.PutStory(&story.Story{
		ID: "s1", UserID: "u1", CategoryID: "cat1",
		Sessions: map[string]story.Session{
			"session_1": {CallID: "c1", Updated: done},
		},
	})
	gen := &fakeGenerator{upd: StoryUpdate{StorySummary: "s"}}
	eng := NewEngine(NewMemoryGate(time.Minute), repo, gen, nil, nil)

	ev := event()
	ev.Transcript = "a longer revised transcript"
	out, err := eng.HandleCompletion(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, out)
	assert.Equal(t, 0, gen.callCount())

	s, _ := repo.Story(context.Background(), "s1")
	sess := s.Sessions["session_1"]
	assert.True(t, sess.Updated)
	require.NotNil(t, sess.Transcript)
	assert.Equal(t, "a longer revised transcript", *sess.Transcript)
	assert.Nil(t, s.StorySummary)
}

func TestHandleCompletion_PreservesCuratedTitleAndDescription(t *testing.T) {
	repo := seedRepo(t)
	title := "Grandma's Kitchen"
	repo.PutStory(&story.Story{
		ID: "s1", UserID: "u1", CategoryID: "cat1", Title: &title,
		Sessions: map[string]story.Session{
			"session_1": {CallID: "c1"},
		},
	})
	gen := &fakeGenerator{upd: StoryUpdate{
		StorySummary: "s", StoryText: "t",
		Title: "A Different Title", Description: "generated description",
	}}
	eng := NewEngine(NewMemoryGate(time.Minute), repo, gen, nil, nil)

	_, err := eng.HandleCompletion(context.Background(), event())
	require.NoError(t, err)

	s, _ := repo.Story(context.Background(), "s1")
	require.NotNil(t, s.Title)
	assert.Equal(t, "Grandma's Kitchen", *s.Title)
	require.NotNil(t, s.Description)
	assert.Equal(t, "generated description", *s.Description)
}

func TestHandleCompletion_UnmatchedCallReturnsNotFound(t *testing.T) {
	repo := seedRepo(t)
	gen := &fakeGenerator{}
	eng := NewEngine(NewMemoryGate(time.Minute), repo, gen, nil, nil)

	ev := event()
	ev.CallID = "nobody-owns-this"
	out, err := eng.HandleCompletion(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, out)
	assert.Equal(t, 0, gen.callCount())

	// The marker is kept: a replay of the same unmatched event short-circuits
	// at the gate instead of rescanning.
	out, err = eng.HandleCompletion(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, out)
}

func TestHandleCompletion_GenerativeFailureReleasesMarker(t *testing.T) {
	repo := seedRepo(t)
	gen := &fakeGenerator{err: errors.New("model unavailable")}
	eng := NewEngine(NewMemoryGate(time.Minute), repo, gen, nil, nil)

	out, err := eng.HandleCompletion(context.Background(), event())
	require.Error(t, err)
	assert.Equal(t, OutcomeNone, out)

	// Marker released: the redelivery retries and succeeds.
	gen.err = nil
	gen.upd = StoryUpdate{StorySummary: "recovered", StoryText: "t"}
	out, err = eng.HandleCompletion(context.Background(), event())
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, out)

	s, _ := repo.Story(context.Background(), "s1")
	require.NotNil(t, s.StorySummary)
	assert.Equal(t, "recovered", *s.StorySummary)
}

func TestHandleCompletion_MissingCategoryReleasesMarker(t *testing.T) {
	repo := seedRepo(t)
	delete(repo.Categories, "cat1")
	gen := &fakeGenerator{}
	eng := NewEngine(NewMemoryGate(time.Minute), repo, gen, nil, nil)

	out, err := eng.HandleCompletion(context.Background(), event())
	require.Error(t, err)
	assert.ErrorIs(t, err, story.ErrCategoryNotFound)
	assert.Equal(t, OutcomeNone, out)

	// A corrected retry is possible once the category exists again.
	repo.Categories["cat1"] = &story.Category{ID: "cat1", Title: "Childhood"}
	gen.upd = StoryUpdate{StorySummary: "s", StoryText: "t"}
	out, err = eng.HandleCompletion(context.Background(), event())
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, out)
}

func TestHandleCompletion_PersistFailureReleasesMarker(t *testing.T) {
	inner := seedRepo(t)
	repo := &mergeFailRepo{Repository: inner, fail: true}
	gen := &fakeGenerator{upd: StoryUpdate{StorySummary: "s", StoryText: "t"}}
	eng := NewEngine(NewMemoryGate(time.Minute), repo, gen, nil, nil)

	out, err := eng.HandleCompletion(context.Background(), event())
	require.Error(t, err)
	assert.Equal(t, OutcomeNone, out)

	repo.fail = false
	out, err = eng.HandleCompletion(context.Background(), event())
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, out)
}

func TestHandleCompletion_ImageFailureIsNonFatal(t *testing.T) {
	repo := seedRepo(t)
	gen := &fakeGenerator{upd: StoryUpdate{StorySummary: "s", StoryText: "t"}}
	images := &fakeImages{err: errors.New("image service down")}
	eng := NewEngine(NewMemoryGate(time.Minute), repo, gen, images, nil)

	out, err := eng.HandleCompletion(context.Background(), event())
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, out)

	s, _ := repo.Story(context.Background(), "s1")
	assert.Nil(t, s.ImageURL)
	require.NotNil(t, s.StorySummary)
	assert.Equal(t, "s", *s.StorySummary)
}

func TestHandleCompletion_ExistingImageIsNotRegenerated(t *testing.T) {
	repo := seedRepo(t)
	img := "https://img/existing.png"
	repo.PutStory(&story.Story{
		ID: "s1", UserID: "u1", CategoryID: "cat1", ImageURL: &img,
		Sessions: map[string]story.Session{
			"session_1": {CallID: "c1"},
		},
	})
	gen := &fakeGenerator{upd: StoryUpdate{StorySummary: "s", StoryText: "t"}}
	images := &fakeImages{url: "https://img/new.png"}
	eng := NewEngine(NewMemoryGate(time.Minute), repo, gen, images, nil)

	_, err := eng.HandleCompletion(context.Background(), event())
	require.NoError(t, err)

	assert.Equal(t, 0, images.calls)
	s, _ := repo.Story(context.Background(), "s1")
	require.NotNil(t, s.ImageURL)
	assert.Equal(t, img, *s.ImageURL)
}

type slowHook struct {
	entered chan struct{}
	release chan struct{}
	ctxErr  chan error
	got     chan HookEvent
}

func (h *slowHook) AfterCompletion(ctx context.Context, ev HookEvent) {
	close(h.entered)
	<-h.release
	h.ctxErr <- ctx.Err()
	h.got <- ev
}

func TestHandleCompletion_HooksRunOffRequestPath(t *testing.T) {
	repo := seedRepo(t)
	gen := &fakeGenerator{upd: StoryUpdate{StorySummary: "s", StoryText: "t"}}
	hook := &slowHook{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		ctxErr:  make(chan error, 1),
		got:     make(chan HookEvent, 1),
	}
	eng := NewEngine(NewMemoryGate(time.Minute), repo, gen, nil, nil, hook)

	reqCtx, cancel := context.WithCancel(context.Background())
	out, err := eng.HandleCompletion(reqCtx, event())
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, out)

	select {
	case <-hook.entered:
	case <-time.After(time.Second):
		t.Fatal("hook never started")
	}

	// The request context closing must not cancel an in-flight hook.
	cancel()
	close(hook.release)

	select {
	case hookCtxErr := <-hook.ctxErr:
		assert.NoError(t, hookCtxErr)
	case <-time.After(time.Second):
		t.Fatal("hook never finished")
	}
	hookEv := <-hook.got
	assert.Equal(t, "u1", hookEv.UserID)
	assert.Equal(t, "s1", hookEv.StoryID)
	assert.Equal(t, "session_1", hookEv.SessionID)
	assert.Equal(t, "c1", hookEv.CallID)
}

func TestSanitizeTurns_DropsUnknownFieldsAndKeepsResponseID(t *testing.T) {
	rid := 7
	turns := sanitizeTurns([]TurnInput{
		{Role: "user", Content: "hello", ResponseID: &rid},
		{Role: "agent", Content: "hi", Words: []WordInput{{Word: "hi", Start: 1, End: 2}}},
	})
	require.Len(t, turns, 2)
	require.NotNil(t, turns[0].Metadata)
	assert.Equal(t, 7, turns[0].Metadata.ResponseID)
	assert.NotNil(t, turns[0].Words)
	assert.Len(t, turns[0].Words, 0)
	assert.Nil(t, turns[1].Metadata)
}
