package retell

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"talkmubio-backend/internal/reconcile"
	"talkmubio-backend/internal/story"
)

type fakeReconciler struct {
	outcome reconcile.Outcome
	err     error
	last    *reconcile.CompletionEvent
	calls   int
}

func (f *fakeReconciler) HandleCompletion(ctx context.Context, ev reconcile.CompletionEvent) (reconcile.Outcome, error) {
	f.calls++
	f.last = &ev
	return f.outcome, f.err
}

func webhookRouter(f *fakeReconciler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := WebhookHandler{Engine: f}
	r.POST("/webhook/retell", h.HandleCallEvent)
	return r
}

func postJSON(t *testing.T, r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhook_IgnoresNonCompletionEvents(t *testing.T) {
	f := &fakeReconciler{}
	r := webhookRouter(f)

	w := postJSON(t, r, "/webhook/retell", `{"event":"call_started","call":{"call_id":"c1"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ignored"`) {
		t.Fatalf("expected ignored status, got %s", w.Body.String())
	}
	if f.calls != 0 {
		t.Fatalf("engine must not be invoked for non-completion events")
	}
}

func TestWebhook_CompletionEventIsReconciled(t *testing.T) {
	f := &fakeReconciler{outcome: reconcile.OutcomeProcessed}
	r := webhookRouter(f)

	body := `{"event":"call_ended","call":{
		"call_id":"c1",
		"transcript":"hello",
		"transcript_object":[{"role":"agent","content":"hi","words":[{"word":"hi","start":0.1,"end":0.4}],"metadata":{"response_id":3,"unknown":"dropped"}}],
		"recording_url":"http://x",
		"some_new_sdk_field":true
	}}`
	w := postJSON(t, r, "/webhook/retell", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"success"`) {
		t.Fatalf("expected success status, got %s", w.Body.String())
	}

	if f.last == nil {
		t.Fatalf("engine not invoked")
	}
	ev := *f.last
	if ev.CallID != "c1" || ev.Transcript != "hello" || ev.RecordingURL != "http://x" {
		t.Fatalf("unexpected event mapping: %+v", ev)
	}
	if len(ev.Turns) != 1 || ev.Turns[0].Role != "agent" || len(ev.Turns[0].Words) != 1 {
		t.Fatalf("unexpected turns mapping: %+v", ev.Turns)
	}
	if ev.Turns[0].ResponseID == nil || *ev.Turns[0].ResponseID != 3 {
		t.Fatalf("expected response id carried through")
	}
}

func TestWebhook_NoMatchingStoryIs404(t *testing.T) {
	f := &fakeReconciler{outcome: reconcile.OutcomeNotFound}
	r := webhookRouter(f)

	w := postJSON(t, r, "/webhook/retell", `{"event":"call_ended","call":{"call_id":"cx"}}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "No matching story") {
		t.Fatalf("expected not-found error body, got %s", w.Body.String())
	}
}

func TestWebhook_DuplicateDeliveryIsNoOp(t *testing.T) {
	f := &fakeReconciler{outcome: reconcile.OutcomeDuplicate}
	r := webhookRouter(f)

	w := postJSON(t, r, "/webhook/retell", `{"event":"call_ended","call":{"call_id":"c1"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for duplicate delivery, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ignored"`) {
		t.Fatalf("expected no-op body, got %s", w.Body.String())
	}
}

func TestWebhook_ProcessingFailureIs400(t *testing.T) {
	f := &fakeReconciler{outcome: reconcile.OutcomeProcessed, err: context.DeadlineExceeded}
	r := webhookRouter(f)

	w := postJSON(t, r, "/webhook/retell", `{"event":"call_ended","call":{"call_id":"c1"}}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestWebhook_MalformedBodyIs400(t *testing.T) {
	f := &fakeReconciler{}
	r := webhookRouter(f)

	w := postJSON(t, r, "/webhook/retell", `{"event":`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

type fakeWebCaller struct {
	resp WebCallResponse
	err  error
	last WebCallRequest
}

func (f *fakeWebCaller) CreateWebCall(ctx context.Context, req WebCallRequest) (WebCallResponse, error) {
	f.last = req
	return f.resp, f.err
}

func callRouter(repo story.Repository, caller WebCaller, now time.Time) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := CallHandler{Repo: repo, Caller: caller, Now: func() time.Time { return now }}
	r.POST("/create-web-call", h.CreateWebCall)
	return r
}

func TestCreateWebCall_MissingParamsIs400(t *testing.T) {
	repo := story.NewMemoryRepo()
	r := callRouter(repo, &fakeWebCaller{}, time.Unix(1700000000, 0))

	w := postJSON(t, r, "/create-web-call", `{"userId":"u1"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCreateWebCall_CreatesStoryAndSession(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	repo := story.NewMemoryRepo()
	repo.Agents = []story.Agent{{UserID: "u1", CategoryID: "cat1", AgentID: "agent-1"}}
	caller := &fakeWebCaller{resp: WebCallResponse{AccessToken: "tok", CallID: "call-1"}}
	r := callRouter(repo, caller, now)

	w := postJSON(t, r, "/create-web-call", `{"userId":"u1","categoryId":"cat1","question":"What was your first job?"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		AccessToken string `json:"accessToken"`
		CallID      string `json:"callId"`
		StoryID     string `json:"storyId"`
		SessionID   string `json:"sessionId"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.AccessToken != "tok" || resp.CallID != "call-1" {
		t.Fatalf("unexpected call fields: %+v", resp)
	}
	if resp.StoryID == "" || resp.SessionID == "" {
		t.Fatalf("expected story and session ids: %+v", resp)
	}

	if caller.last.AgentID != "agent-1" {
		t.Fatalf("expected resolved agent, got %q", caller.last.AgentID)
	}
	if caller.last.DynamicVariables["summary"] != story.NoPreviousContext {
		t.Fatalf("expected sentinel summary for a new story")
	}

	s, err := repo.Story(context.Background(), resp.StoryID)
	if err != nil {
		t.Fatalf("story not created: %v", err)
	}
	if s.InitialQuestion != "What was your first job?" {
		t.Fatalf("unexpected initial question %q", s.InitialQuestion)
	}
	sess, ok := s.Sessions[resp.SessionID]
	if !ok {
		t.Fatalf("session not registered")
	}
	if sess.CallID != "call-1" || sess.Updated {
		t.Fatalf("unexpected session: %+v", sess)
	}
}

func TestCreateWebCall_ReusesExistingStorySummary(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	repo := story.NewMemoryRepo()
	repo.Agents = []story.Agent{{UserID: "u1", CategoryID: "cat1", AgentID: "agent-1"}}
	summary := "we covered the move to the city"
	repo.PutStory(&story.Story{ID: "s1", UserID: "u1", CategoryID: "cat1", StorySummary: &summary})

	caller := &fakeWebCaller{resp: WebCallResponse{AccessToken: "tok", CallID: "call-2"}}
	r := callRouter(repo, caller, now)

	body, _ := json.Marshal(map[string]string{
		"userId": "u1", "categoryId": "cat1",
		"question": "q", "existingStoryId": "s1",
	})
	w := postJSON(t, r, "/create-web-call", string(bytes.TrimSpace(body)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if caller.last.DynamicVariables["summary"] != summary {
		t.Fatalf("expected existing summary, got %q", caller.last.DynamicVariables["summary"])
	}

	s, _ := repo.Story(context.Background(), "s1")
	if len(s.Sessions) != 1 {
		t.Fatalf("expected session attached to existing story")
	}
}

func TestCreateWebCall_AgentResolutionFailureIs500(t *testing.T) {
	repo := story.NewMemoryRepo()
	r := callRouter(repo, &fakeWebCaller{}, time.Unix(1700000000, 0))

	w := postJSON(t, r, "/create-web-call", `{"userId":"u1","categoryId":"cat1","question":"q"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}
