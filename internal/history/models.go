package history

import "time"

// Entry is an immutable, append-only call-history record.
//
// Invariants:
// - Entries are never updated or deleted.
// - user_id is required; history is always scoped to one account.
// - History capture is best-effort; do not block webhook handling on it.

type Entry struct {
	ID     string `json:"id" firestore:"id"`
	UserID string `json:"userId" firestore:"userId"`

	// Kind indicates how the call was initiated.
	Kind Kind `json:"kind" firestore:"kind"`

	StoryID   string `json:"storyId" firestore:"storyId"`
	SessionID string `json:"sessionId" firestore:"sessionId"`
	CallID    string `json:"callId" firestore:"callId"`

	CreatedAt time.Time `json:"createdAt" firestore:"createdAt"`
}

type Kind string

const (
	KindWebCall   Kind = "web_call"
	KindPhoneCall Kind = "phone_call"
)
