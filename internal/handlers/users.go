package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/feedbackloop/backend/internal/database"
)

type UserHandler struct {
	repo database.Repository
}

func NewUserHandler(repo database.Repository) *UserHandler {
	return &UserHandler{repo: repo}
}

// GetOrCreateUser returns the user with the given email, creating it on
// first use.
func (h *UserHandler) GetOrCreateUser(c *gin.Context) {
	var input struct {
		Email string `json:"email" binding:"required,email"`
		Name  string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields: email, name"})
		return
	}

	user, err := h.repo.GetOrCreateUser(c.Request.Context(), input.Email, strings.TrimSpace(input.Name))
	if err != nil {
		respondError(c, err, "Failed to process user")
		return
	}
	c.JSON(http.StatusOK, user)
}

// GetUserProfile returns a user's public profile
func (h *UserHandler) GetUserProfile(c *gin.Context) {
	user, err := h.repo.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to fetch user")
		return
	}
	c.JSON(http.StatusOK, user.Summary())
}
