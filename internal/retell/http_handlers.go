package retell

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"talkmubio-backend/internal/reconcile"
	"talkmubio-backend/internal/story"
	"talkmubio-backend/pkg/logger"
)

// Reconciler is the completion-event sink behind the webhook endpoint.
type Reconciler interface {
	HandleCompletion(ctx context.Context, ev reconcile.CompletionEvent) (reconcile.Outcome, error)
}

// WebhookHandler converts the Retell webhook to internal types and delegates
// to the reconciliation engine.
//
// No reconciliation logic here.
type WebhookHandler struct {
	Engine Reconciler
}

func (h WebhookHandler) HandleCallEvent(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Engine == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reconciliation engine not configured"})
		return
	}

	var payload WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		log.Warn("retell webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if payload.Event != EventCallEnded {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	outcome, err := h.Engine.HandleCompletion(c.Request.Context(), payload.ToCompletionEvent())
	if err != nil {
		log.Error("webhook reconciliation failed", "call_id", payload.Call.CallID, "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Failed to process webhook"})
		return
	}

	switch outcome {
	case reconcile.OutcomeDuplicate:
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	case reconcile.OutcomeNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "No matching story found for this call"})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	}
}

// WebCaller is the platform surface the call handler needs.
type WebCaller interface {
	CreateWebCall(ctx context.Context, req WebCallRequest) (WebCallResponse, error)
}

// CallHandler starts a browser call for a user, creating the story record on
// first contact and registering the pending session.
type CallHandler struct {
	Repo   story.Repository
	Caller WebCaller

	Now func() time.Time
}

type createWebCallRequest struct {
	UserID          string `json:"userId" binding:"required"`
	CategoryID      string `json:"categoryId" binding:"required"`
	Question        string `json:"question" binding:"required"`
	ExistingStoryID string `json:"existingStoryId"`
}

func (h CallHandler) CreateWebCall(c *gin.Context) {
	log := logger.FromGin(c)

	now := time.Now
	if h.Now != nil {
		now = h.Now
	}

	var req createWebCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Missing required parameters"})
		return
	}

	ctx := c.Request.Context()

	agentID, err := h.Repo.AgentID(ctx, req.UserID, req.CategoryID)
	if err != nil {
		log.Error("agent resolution failed", "user_id", req.UserID, "category_id", req.CategoryID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	summary := story.NoPreviousContext
	if req.ExistingStoryID != "" {
		existing, err := h.Repo.Story(ctx, req.ExistingStoryID)
		if err == nil {
			summary = existing.ContextSummary()
		} else if !errors.Is(err, story.ErrStoryNotFound) {
			log.Error("story lookup failed", "story_id", req.ExistingStoryID, "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	callResp, err := h.Caller.CreateWebCall(ctx, WebCallRequest{
		AgentID: agentID,
		DynamicVariables: map[string]string{
			"initial_question": req.Question,
			"summary":          summary,
		},
	})
	if err != nil {
		log.Error("web call creation failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ts := now().UTC()
	storyID := req.ExistingStoryID
	if storyID == "" {
		storyID, err = h.Repo.CreateStory(ctx, &story.Story{
			UserID:           req.UserID,
			CategoryID:       req.CategoryID,
			InitialQuestion:  req.Question,
			Sessions:         map[string]story.Session{},
			CreationTime:     ts,
			LastUpdationTime: ts,
		})
		if err != nil {
			log.Error("story creation failed", "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	sessionID := story.NewSessionID(ts)
	if err := h.Repo.AttachSession(ctx, storyID, sessionID, story.NewSession(callResp.CallID, ts), false, ts); err != nil {
		log.Error("session registration failed", "story_id", storyID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accessToken": callResp.AccessToken,
		"callId":      callResp.CallID,
		"storyId":     storyID,
		"sessionId":   sessionID,
	})
}
