package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/feedbackloop/backend/internal/database"
	"github.com/emilythestrangee/feedbackloop/backend/internal/middleware"
	"github.com/emilythestrangee/feedbackloop/backend/internal/models"
)

type FeedbackHandler struct {
	repo  database.Repository
	weeks *weekCache
}

func NewFeedbackHandler(repo database.Repository, weeks *weekCache) *FeedbackHandler {
	return &FeedbackHandler{repo: repo, weeks: weeks}
}

// ListFeedback returns posts filtered by status and category, sorted by
// newest (default), popular or controversial.
func (h *FeedbackHandler) ListFeedback(c *gin.Context) {
	filter := models.PostFilter{
		Status:   models.Status(c.Query("status")),
		Category: models.Category(c.Query("category")),
		Sort:     models.Sort(c.DefaultQuery("sort", string(models.SortNewest))),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status filter"})
		return
	}
	if filter.Category != "" && !filter.Category.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid category filter"})
		return
	}
	if !filter.Sort.Valid() {
		filter.Sort = models.SortNewest
	}

	posts, err := h.repo.ListFeedback(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, "Failed to fetch feedback")
		return
	}
	c.JSON(http.StatusOK, posts)
}

// GetFeedback returns a single post with its votes and comments
func (h *FeedbackHandler) GetFeedback(c *gin.Context) {
	detail, err := h.repo.GetFeedback(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to fetch feedback")
		return
	}
	c.JSON(http.StatusOK, detail)
}

// CreateFeedback creates a new post. Category defaults to feature-request.
func (h *FeedbackHandler) CreateFeedback(c *gin.Context) {
	var req models.CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields: title, description, authorId"})
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	if req.Title == "" || req.Description == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title and description cannot be blank"})
		return
	}
	if req.Category == "" {
		req.Category = models.CategoryFeatureRequest
	}
	if !req.Category.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid category"})
		return
	}

	authorID, err := middleware.Actor(c, req.AuthorID)
	if err != nil {
		respondError(c, err, "Failed to create feedback")
		return
	}

	post := models.Post{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		AuthorID:    authorID,
	}
	if err := h.repo.CreatePost(c.Request.Context(), &post); err != nil {
		respondError(c, err, "Failed to create feedback")
		return
	}

	h.weeks.touch(c.Request.Context())
	c.JSON(http.StatusCreated, post)
}

// UpdateFeedback lets an admin triage a post (ADMIN - status, category,
// title, description)
func (h *FeedbackHandler) UpdateFeedback(c *gin.Context) {
	var req models.UpdatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Status != nil && !req.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		return
	}
	if req.Category != nil && !req.Category.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid category"})
		return
	}
	if (req.Title != nil && strings.TrimSpace(*req.Title) == "") ||
		(req.Description != nil && strings.TrimSpace(*req.Description) == "") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title and description cannot be blank"})
		return
	}

	post, err := h.repo.UpdatePost(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err, "Failed to update feedback")
		return
	}

	h.weeks.touch(c.Request.Context(), post.CreatedAt)
	c.JSON(http.StatusOK, post)
}

// DeleteFeedback removes a post with its votes and comments (PROTECTED -
// author or admin)
func (h *FeedbackHandler) DeleteFeedback(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	detail, err := h.repo.GetFeedback(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to delete feedback")
		return
	}
	if detail.AuthorID != userID {
		admin, err := isAdmin(ctx, h.repo, userID)
		if err != nil {
			respondError(c, err, "Failed to delete feedback")
			return
		}
		if !admin {
			c.JSON(http.StatusForbidden, gin.H{"error": "You can only delete your own feedback"})
			return
		}
	}

	if err := h.repo.DeletePost(ctx, detail.ID); err != nil {
		respondError(c, err, "Failed to delete feedback")
		return
	}

	touched := []time.Time{detail.CreatedAt}
	for _, v := range detail.Votes {
		touched = append(touched, v.CreatedAt)
	}
	for _, cm := range detail.Comments {
		touched = append(touched, cm.CreatedAt)
	}
	h.weeks.touch(ctx, touched...)
	c.JSON(http.StatusOK, gin.H{"success": true})
}
