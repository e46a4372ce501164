package retell

import (
	"talkmubio-backend/internal/reconcile"
)

// WebhookPayload captures the subset of Retell webhook fields we care about.
// Retell sends application/json with the full call object; unknown fields are
// ignored by decoding and dropped again on sanitization downstream.
//
// Keep it minimal and provider-adapter-only. Reconciliation decisions are not
// made here.

const EventCallEnded = "call_ended"

type WebhookPayload struct {
	Event string      `json:"event"`
	Call  CallPayload `json:"call"`
}

type CallPayload struct {
	CallID           string        `json:"call_id"`
	Transcript       string        `json:"transcript"`
	TranscriptObject []TurnPayload `json:"transcript_object"`
	RecordingURL     string        `json:"recording_url"`
}

type TurnPayload struct {
	Role     string        `json:"role"`
	Content  string        `json:"content"`
	Words    []WordPayload `json:"words"`
	Metadata *TurnMetadata `json:"metadata,omitempty"`
}

type TurnMetadata struct {
	ResponseID *int `json:"response_id,omitempty"`
}

type WordPayload struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// ToCompletionEvent converts the provider payload to the engine's input type.
func (p WebhookPayload) ToCompletionEvent() reconcile.CompletionEvent {
	turns := make([]reconcile.TurnInput, 0, len(p.Call.TranscriptObject))
	for _, t := range p.Call.TranscriptObject {
		words := make([]reconcile.WordInput, 0, len(t.Words))
		for _, w := range t.Words {
			words = append(words, reconcile.WordInput{Word: w.Word, Start: w.Start, End: w.End})
		}
		in := reconcile.TurnInput{Role: t.Role, Content: t.Content, Words: words}
		if t.Metadata != nil && t.Metadata.ResponseID != nil {
			in.ResponseID = t.Metadata.ResponseID
		}
		turns = append(turns, in)
	}
	return reconcile.CompletionEvent{
		CallID:       p.Call.CallID,
		Transcript:   p.Call.Transcript,
		Turns:        turns,
		RecordingURL: p.Call.RecordingURL,
	}
}
