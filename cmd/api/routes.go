package main

import (
	"github.com/gin-gonic/gin"

	"talkmubio-backend/internal/book"
	"talkmubio-backend/internal/retell"
	"talkmubio-backend/internal/story"
)

type deps struct {
	engine retell.Reconciler
	repo   story.Repository
	caller retell.WebCaller
	books  book.Builder
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d deps) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Provider webhook (public). Replay protection lives in the dedup gate,
	// not at the route layer.
	webhook := retell.WebhookHandler{Engine: d.engine}
	r.POST("/webhook/retell", webhook.HandleCallEvent)

	calls := retell.CallHandler{Repo: d.repo, Caller: d.caller}
	r.POST("/create-web-call", calls.CreateWebCall)

	books := book.Handler{Builder: d.books}
	r.POST("/create-book", books.CreateBook)
}
