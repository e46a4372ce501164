package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"talkmubio-backend/internal/retell"
	"talkmubio-backend/internal/story"
)

const (
	// Interval is the cadence at which the dispatch scan runs.
	Interval = time.Minute
	// Window is how far ahead of now a scheduled call is considered due.
	Window = 5 * time.Minute
)

// Caller is the outbound surface of the call platform used by the loop.
type Caller interface {
	CreatePhoneCall(ctx context.Context, req retell.PhoneCallRequest) (retell.PhoneCallResponse, error)
}

// Loop scans stories for due scheduled calls and places them. Each tick is
// independent; a tick still in flight when the next fires makes the new one a
// no-op (single-flight guard) rather than running two scans concurrently.
type Loop struct {
	repo       story.Repository
	caller     Caller
	fromNumber string
	log        *slog.Logger
	clock      func() time.Time

	running atomic.Bool
}

func NewLoop(repo story.Repository, caller Caller, fromNumber string, log *slog.Logger) *Loop {
	if log == nil {
		log = slog.Default()
	}
	return &Loop{
		repo:       repo,
		caller:     caller,
		fromNumber: fromNumber,
		log:        log,
		clock:      time.Now,
	}
}

// Run drives Tick on a fixed cadence until the context is canceled.
func (l *Loop) Run(ctx context.Context) {
	l.log.Info("scheduled call dispatch started", "interval", Interval.String())

	ticker := time.NewTicker(Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.log.Info("scheduled call dispatch stopped")
			return
		case <-ticker.C:
			l.Tick(ctx, l.clock())
		}
	}
}

// Tick runs one scan-and-place pass. Reports false when skipped because a
// previous tick is still running.
func (l *Loop) Tick(ctx context.Context, now time.Time) bool {
	if !l.running.CompareAndSwap(false, true) {
		l.log.Warn("dispatch tick skipped, previous tick still running")
		return false
	}
	defer l.running.Store(false)

	stories, err := l.repo.ScheduledStories(ctx)
	if err != nil {
		l.log.Error("scheduled story scan failed", "err", err)
		return true
	}

	for _, sty := range stories {
		ns := sty.NextSchedule
		if ns == nil || ns.Status != story.ScheduleStatusScheduled {
			continue
		}
		// Due window is (now, now+Window].
		if !ns.DateTime.After(now) || ns.DateTime.After(now.Add(Window)) {
			continue
		}

		if err := l.dispatch(ctx, sty, now); err != nil {
			// Failures are per-story: record and keep scanning.
			l.log.Error("scheduled call dispatch failed", "story_id", sty.ID, "err", err)
			if markErr := l.repo.MarkScheduleFailed(ctx, sty.ID, err, now); markErr != nil {
				l.log.Error("schedule failure could not be recorded", "story_id", sty.ID, "err", markErr)
			}
			continue
		}
		l.log.Info("scheduled call placed", "story_id", sty.ID)
	}
	return true
}

func (l *Loop) dispatch(ctx context.Context, sty *story.Story, now time.Time) error {
	agentID, err := l.repo.AgentID(ctx, sty.UserID, sty.CategoryID)
	if err != nil {
		return fmt.Errorf("resolve agent: %w", err)
	}

	resp, err := l.caller.CreatePhoneCall(ctx, retell.PhoneCallRequest{
		FromNumber:      l.fromNumber,
		ToNumber:        sty.NextSchedule.PhoneNumber,
		OverrideAgentID: agentID,
		DynamicVariables: map[string]string{
			"initial_question": sty.InitialQuestion,
			"summary":          sty.ContextSummary(),
		},
	})
	if err != nil {
		return fmt.Errorf("place call: %w", err)
	}
	if resp.CallID == "" {
		return retell.ErrNoCallID
	}

	sess := story.NewSession(resp.CallID, now)
	// Phone sessions have no browser video track to wait for.
	sess.VideoComplete = true

	sessionID := story.NewSessionID(now)
	if err := l.repo.AttachSession(ctx, sty.ID, sessionID, sess, true, now); err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	return nil
}
