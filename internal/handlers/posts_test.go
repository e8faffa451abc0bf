package handlers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilythestrangee/feedbackloop/backend/internal/models"
)

func TestCreateFeedback(t *testing.T) {
	env := newTestEnv(t)
	author, token := env.user(t, "author@example.com", false)

	w := env.do(t, http.MethodPost, "/api/feedback", "", gin.H{
		"title":       "  Dark mode  ",
		"description": "Please add it",
		"authorId":    author.ID,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	post := decode[models.Post](t, w)
	assert.Equal(t, "Dark mode", post.Title)
	assert.Equal(t, models.CategoryFeatureRequest, post.Category)
	assert.Equal(t, models.StatusUnderReview, post.Status)
	assert.Equal(t, author.ID, post.Author.ID)

	tests := []struct {
		name   string
		token  string
		body   gin.H
		status int
	}{
		{"missing description", "", gin.H{"title": "x", "authorId": author.ID}, http.StatusBadRequest},
		{"blank title", "", gin.H{"title": "   ", "description": "x", "authorId": author.ID}, http.StatusBadRequest},
		{"bad category", "", gin.H{"title": "x", "description": "x", "category": "wish", "authorId": author.ID}, http.StatusBadRequest},
		{"unknown author", "", gin.H{"title": "x", "description": "x", "authorId": "ghost"}, http.StatusNotFound},
		{"token for someone else", token, gin.H{"title": "x", "description": "x", "authorId": "ghost"}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/feedback", tt.token, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestListFeedback(t *testing.T) {
	env := newTestEnv(t)
	author, _ := env.user(t, "author@example.com", false)
	voter, _ := env.user(t, "voter@example.com", false)
	feature := env.post(t, author, models.CategoryFeatureRequest)
	bug := env.post(t, author, models.CategoryBugReport)

	w := env.do(t, http.MethodPost, "/api/votes", "", gin.H{"postId": bug.ID, "userId": voter.ID, "type": "upvote"})
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodPost, "/api/comments", "", gin.H{"postId": bug.ID, "authorId": voter.ID, "content": "same here"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodGet, "/api/feedback?category=bug-report", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"_count":{"votes":1,"comments":1}`)
	posts := decode[[]models.Post](t, w)
	require.Len(t, posts, 1)
	assert.Equal(t, bug.ID, posts[0].ID)
	require.NotNil(t, posts[0].Count)
	assert.Equal(t, models.PostCount{Votes: 1, Comments: 1}, *posts[0].Count)

	w = env.do(t, http.MethodGet, "/api/feedback?sort=popular", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	posts = decode[[]models.Post](t, w)
	require.Len(t, posts, 2)
	assert.Equal(t, bug.ID, posts[0].ID)
	assert.Equal(t, feature.ID, posts[1].ID)

	w = env.do(t, http.MethodGet, "/api/feedback?sort=sideways", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/feedback?status=done", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.do(t, http.MethodGet, "/api/feedback?category=wish", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/feedback?status=planned", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
}

func TestGetFeedback(t *testing.T) {
	env := newTestEnv(t)
	author, _ := env.user(t, "author@example.com", false)
	post := env.post(t, author, models.CategoryImprovement)

	w := env.do(t, http.MethodPost, "/api/comments", "", gin.H{"postId": post.ID, "authorId": author.ID, "content": "me too"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = env.do(t, http.MethodPost, "/api/votes", "", gin.H{"postId": post.ID, "userId": author.ID, "type": "downvote"})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/feedback/"+post.ID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode[models.PostDetail](t, w)
	assert.Equal(t, post.ID, detail.ID)
	assert.Equal(t, 1, detail.Downvotes)
	assert.Len(t, detail.Votes, 1)
	require.Len(t, detail.Comments, 1)
	assert.Equal(t, "me too", detail.Comments[0].Content)

	w = env.do(t, http.MethodGet, "/api/feedback/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateFeedbackRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	author, authorToken := env.user(t, "author@example.com", false)
	_, adminToken := env.user(t, "admin@example.com", true)
	post := env.post(t, author, models.CategoryFeatureRequest)

	w := env.do(t, http.MethodPatch, "/api/feedback/"+post.ID, "", gin.H{"status": "planned"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = env.do(t, http.MethodPatch, "/api/feedback/"+post.ID, authorToken, gin.H{"status": "planned"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPatch, "/api/feedback/"+post.ID, adminToken, gin.H{"status": "done"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.do(t, http.MethodPatch, "/api/feedback/"+post.ID, adminToken, gin.H{"title": " "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPatch, "/api/feedback/"+post.ID, adminToken, gin.H{"status": "planned", "category": "improvement"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[models.Post](t, w)
	assert.Equal(t, models.StatusPlanned, updated.Status)
	assert.Equal(t, models.CategoryImprovement, updated.Category)
	assert.Equal(t, post.Title, updated.Title)

	w = env.do(t, http.MethodPatch, "/api/feedback/missing", adminToken, gin.H{"status": "planned"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteFeedback(t *testing.T) {
	env := newTestEnv(t)
	author, authorToken := env.user(t, "author@example.com", false)
	_, otherToken := env.user(t, "other@example.com", false)
	_, adminToken := env.user(t, "admin@example.com", true)
	first := env.post(t, author, models.CategoryFeatureRequest)
	second := env.post(t, author, models.CategoryBugReport)

	w := env.do(t, http.MethodDelete, "/api/feedback/"+first.ID, "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = env.do(t, http.MethodDelete, "/api/feedback/"+first.ID, otherToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodDelete, "/api/feedback/"+first.ID, authorToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodDelete, "/api/feedback/"+second.ID, adminToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/feedback/"+first.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = env.do(t, http.MethodDelete, "/api/feedback/"+first.ID, authorToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
