package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/feedbackloop/backend/internal/database"
	"github.com/emilythestrangee/feedbackloop/backend/internal/middleware"
	"github.com/emilythestrangee/feedbackloop/backend/internal/models"
)

type CommentHandler struct {
	repo  database.Repository
	weeks *weekCache
}

func NewCommentHandler(repo database.Repository, weeks *weekCache) *CommentHandler {
	return &CommentHandler{repo: repo, weeks: weeks}
}

// CreateComment adds a comment to a post
func (h *CommentHandler) CreateComment(c *gin.Context) {
	var req models.CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields: postId, authorId, content"})
		return
	}
	if err := models.ValidateCommentContent(req.Content); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Comment must be between 1 and 5000 characters"})
		return
	}

	authorID, err := middleware.Actor(c, req.AuthorID)
	if err != nil {
		respondError(c, err, "Failed to create comment")
		return
	}

	comment := models.Comment{PostID: req.PostID, AuthorID: authorID, Content: req.Content}
	if err := h.repo.CreateComment(c.Request.Context(), &comment); err != nil {
		respondError(c, err, "Failed to create comment")
		return
	}

	h.weeks.touch(c.Request.Context())
	c.JSON(http.StatusCreated, comment)
}

// UpdateComment edits a comment (PROTECTED - author only)
func (h *CommentHandler) UpdateComment(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req models.UpdateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Comment must be between 1 and 5000 characters"})
		return
	}
	if err := models.ValidateCommentContent(req.Content); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Comment must be between 1 and 5000 characters"})
		return
	}

	ctx := c.Request.Context()
	existing, err := h.repo.GetComment(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to update comment")
		return
	}
	if existing.AuthorID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only edit your own comments"})
		return
	}

	comment, err := h.repo.UpdateComment(ctx, existing.ID, req.Content)
	if err != nil {
		respondError(c, err, "Failed to update comment")
		return
	}
	h.weeks.touch(ctx, existing.CreatedAt)
	c.JSON(http.StatusOK, comment)
}

// DeleteComment removes a comment (PROTECTED - author or admin)
func (h *CommentHandler) DeleteComment(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	existing, err := h.repo.GetComment(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to delete comment")
		return
	}
	if existing.AuthorID != userID {
		admin, err := isAdmin(ctx, h.repo, userID)
		if err != nil {
			respondError(c, err, "Failed to delete comment")
			return
		}
		if !admin {
			c.JSON(http.StatusForbidden, gin.H{"error": "You can only delete your own comments"})
			return
		}
	}

	if err := h.repo.DeleteComment(ctx, existing.ID); err != nil {
		respondError(c, err, "Failed to delete comment")
		return
	}

	h.weeks.touch(ctx, existing.CreatedAt)
	c.JSON(http.StatusOK, gin.H{"success": true})
}
