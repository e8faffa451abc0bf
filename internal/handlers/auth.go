package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/feedbackloop/backend/internal/apperr"
	"github.com/emilythestrangee/feedbackloop/backend/internal/auth"
	"github.com/emilythestrangee/feedbackloop/backend/internal/database"
	"github.com/emilythestrangee/feedbackloop/backend/internal/models"
)

type AuthHandler struct {
	repo   database.Repository
	tokens *auth.Tokens
}

func NewAuthHandler(repo database.Repository, tokens *auth.Tokens) *AuthHandler {
	return &AuthHandler{repo: repo, tokens: tokens}
}

// Signup handles user registration
func (h *AuthHandler) Signup(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(c, err, "Failed to hash password")
		return
	}

	user := models.User{
		Email:    req.Email,
		Name:     strings.TrimSpace(req.Name),
		Password: hashed,
	}
	if err := h.repo.CreateUser(c.Request.Context(), &user); err != nil {
		respondError(c, err, "Failed to create user")
		return
	}

	h.respondWithToken(c, http.StatusCreated, user)
}

// Login handles user login
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.repo.GetUserByEmail(c.Request.Context(), req.Email)
	if errors.Is(err, apperr.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if err != nil {
		respondError(c, err, "Failed to log in")
		return
	}
	if err := auth.CheckPassword(user.Password, req.Password); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	h.respondWithToken(c, http.StatusOK, *user)
}

// GetMe returns the current authenticated user
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	user, err := h.repo.GetUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "Failed to fetch user")
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *AuthHandler) respondWithToken(c *gin.Context, status int, user models.User) {
	token, err := h.tokens.Issue(user)
	if err != nil {
		respondError(c, err, "Failed to generate token")
		return
	}
	c.JSON(status, models.AuthResponse{Token: token, User: user})
}
