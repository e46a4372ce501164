package book

import "time"

// Book is an assembled memory book for one account. Books are built
// asynchronously relative to their creation record: a draft is persisted
// first with status in-progress, then completed or failed in place.
type Book struct {
	ID        string    `firestore:"-"`
	UserID    string    `firestore:"userId"`
	Status    string    `firestore:"status"`
	Title     string    `firestore:"title"`
	ImageURL  string    `firestore:"imageUrl"`
	Chapters  []Chapter `firestore:"chapters"`
	Error     *string   `firestore:"error"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// Chapter is one generated chapter, bound to the story it retells.
type Chapter struct {
	Order    int     `firestore:"order" json:"order"`
	Title    string  `firestore:"title" json:"title"`
	StoryID  string  `firestore:"storyId" json:"storyId"`
	Story    string  `firestore:"story" json:"story"`
	ImageURL *string `firestore:"imageUrl" json:"imageUrl"`
}

const (
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusError      = "error"
)
