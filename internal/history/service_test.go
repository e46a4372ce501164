package history

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"talkmubio-backend/internal/reconcile"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestService_AppendRequiresUserAndKind(t *testing.T) {
	svc := NewService(NewMemoryRepo(), discardLogger())

	if err := svc.Append(context.Background(), Entry{Kind: KindWebCall}); err == nil {
		t.Fatalf("expected error")
	}
	if err := svc.Append(context.Background(), Entry{UserID: "u1"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestService_AppendFillsIDAndTimestamp(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, discardLogger())
	svc.clock = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

	if err := svc.Append(context.Background(), Entry{UserID: "u1", Kind: KindPhoneCall, CallID: "call_1"}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	entries := repo.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].ID == "" {
		t.Fatalf("expected generated id")
	}
	if !entries[0].CreatedAt.Equal(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected createdAt: %v", entries[0].CreatedAt)
	}
}

func TestService_AfterCompletionRecordsWebCall(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, discardLogger())

	svc.AfterCompletion(context.Background(), reconcile.HookEvent{
		UserID:    "u1",
		StoryID:   "s1",
		SessionID: "session_1",
		CallID:    "call_abc",
	})

	entries := repo.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Kind != KindWebCall {
		t.Fatalf("expected web_call, got %s", entries[0].Kind)
	}
	if entries[0].CallID != "call_abc" || entries[0].StoryID != "s1" {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
}

func TestMemoryRepo_ByUserFiltersAndOrders(t *testing.T) {
	repo := NewMemoryRepo()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	_ = repo.Append(context.Background(), Entry{ID: "a", UserID: "u1", Kind: KindWebCall, CreatedAt: base})
	_ = repo.Append(context.Background(), Entry{ID: "b", UserID: "u2", Kind: KindWebCall, CreatedAt: base.Add(time.Minute)})
	_ = repo.Append(context.Background(), Entry{ID: "c", UserID: "u1", Kind: KindPhoneCall, CreatedAt: base.Add(2 * time.Minute)})

	got, err := repo.ByUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].ID != "c" || got[1].ID != "a" {
		t.Fatalf("unexpected order: %s, %s", got[0].ID, got[1].ID)
	}
}
