package book

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"talkmubio-backend/pkg/logger"
)

// Builder is the assembly surface behind the create-book endpoint.
type Builder interface {
	Build(ctx context.Context, userID string) (Result, error)
}

// Handler exposes book assembly over HTTP. The build runs inline; the draft
// record written up front makes partial progress visible to clients polling
// the book document.
type Handler struct {
	Builder Builder
}

func (h Handler) CreateBook(c *gin.Context) {
	log := logger.FromGin(c)

	userID := c.Query("user_id")
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	res, err := h.Builder.Build(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrNoStories) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "No stories found for this user"})
			return
		}
		log.Error("book creation failed", "user_id", userID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to create book", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        "success",
		"bookId":        res.BookID,
		"title":         res.Title,
		"chaptersCount": res.ChaptersCount,
	})
}
