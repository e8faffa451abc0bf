package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/emilythestrangee/feedbackloop/backend/internal/auth"
	"github.com/emilythestrangee/feedbackloop/backend/internal/cache"
	"github.com/emilythestrangee/feedbackloop/backend/internal/database"
	"github.com/emilythestrangee/feedbackloop/backend/internal/middleware"
	"github.com/emilythestrangee/feedbackloop/backend/internal/models"
	"github.com/emilythestrangee/feedbackloop/backend/internal/reporting"
	"github.com/emilythestrangee/feedbackloop/backend/internal/voting"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// Wednesday; the current week starts on 2026-10-12.
var testNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	repo     *database.MemoryStore
	tokens   *auth.Tokens
	reporter *reporting.Reporter
	router   *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := database.NewMemoryStore()
	repo.SetClock(func() time.Time { return testNow })
	return newTestEnvWithLedger(t, repo, voting.NewLedger(repo))
}

func newTestEnvWithLedger(t *testing.T, repo *database.MemoryStore, ledger Ledger) *testEnv {
	t.Helper()
	return buildTestEnv(t, repo, ledger, nil)
}

func buildTestEnv(t *testing.T, repo *database.MemoryStore, ledger Ledger, summaries cache.Summaries) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:     repo,
		tokens:   auth.NewTokens("test-secret", time.Hour),
		reporter: reporting.NewReporter(repo, reporting.WithClock(func() time.Time { return testNow })),
	}
	h := NewHandler(Deps{
		Repo:        repo,
		Ledger:      ledger,
		Reporter:    env.reporter,
		Tokens:      env.tokens,
		Summaries:   summaries,
		VoteRetries: 2,
	})
	env.router = routes(h, env.tokens, repo)
	return env
}

func routes(h *Handler, tokens *auth.Tokens, repo database.Repository) *gin.Engine {
	r := gin.New()
	requireAuth := middleware.AuthMiddleware(tokens)

	api := r.Group("/api", middleware.OptionalAuth(tokens))
	api.POST("/users", h.User.GetOrCreateUser)
	api.GET("/users/:id", h.User.GetUserProfile)
	api.POST("/auth/signup", h.Auth.Signup)
	api.POST("/auth/login", h.Auth.Login)
	api.GET("/me", requireAuth, h.Auth.GetMe)
	api.GET("/feedback", h.Feedback.ListFeedback)
	api.POST("/feedback", h.Feedback.CreateFeedback)
	api.GET("/feedback/:id", h.Feedback.GetFeedback)
	api.DELETE("/feedback/:id", requireAuth, h.Feedback.DeleteFeedback)
	api.POST("/votes", h.Vote.CastVote)
	api.POST("/comments", h.Comment.CreateComment)
	api.PATCH("/comments/:id", requireAuth, h.Comment.UpdateComment)
	api.DELETE("/comments/:id", requireAuth, h.Comment.DeleteComment)

	admin := api.Group("", requireAuth, middleware.RequireAdmin(repo))
	admin.PATCH("/feedback/:id", h.Feedback.UpdateFeedback)
	admin.GET("/admin/weekly-summary", h.Admin.WeeklySummary)
	admin.GET("/admin/posts/:id/audit", h.Admin.AuditPost)
	return r
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) user(t *testing.T, email string, admin bool) (models.User, string) {
	t.Helper()
	u := models.User{Email: email, Name: email, IsAdmin: admin}
	require.NoError(t, e.repo.CreateUser(t.Context(), &u))
	token, err := e.tokens.Issue(u)
	require.NoError(t, err)
	return u, token
}

func (e *testEnv) post(t *testing.T, author models.User, category models.Category) models.Post {
	t.Helper()
	p := models.Post{Title: "Dark mode", Description: "Please", Category: category, AuthorID: author.ID}
	require.NoError(t, e.repo.CreatePost(t.Context(), &p))
	return p
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]string](t, w)["error"]
}
