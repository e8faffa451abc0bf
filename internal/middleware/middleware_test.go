package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilythestrangee/feedbackloop/backend/internal/apperr"
	"github.com/emilythestrangee/feedbackloop/backend/internal/auth"
	"github.com/emilythestrangee/feedbackloop/backend/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeUsers map[string]models.User

func (f fakeUsers) GetUser(_ context.Context, id string) (*models.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", apperr.ErrNotFound, id)
	}
	return &u, nil
}

func perform(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAdminGate(t *testing.T) {
	tokens := auth.NewTokens("secret", time.Hour)
	users := fakeUsers{
		"admin": {ID: "admin", IsAdmin: true},
		"user":  {ID: "user"},
	}

	r := gin.New()
	r.GET("/", AuthMiddleware(tokens), RequireAdmin(users), func(c *gin.Context) {
		u, ok := CurrentUser(c)
		require.True(t, ok)
		c.String(http.StatusOK, u.ID)
	})

	adminToken, err := tokens.Issue(models.User{ID: "admin"})
	require.NoError(t, err)
	userToken, err := tokens.Issue(models.User{ID: "user"})
	require.NoError(t, err)
	ghostToken, err := tokens.Issue(models.User{ID: "ghost"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, perform(r, adminToken).Code)
	assert.Equal(t, http.StatusForbidden, perform(r, userToken).Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, ghostToken).Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, "garbage").Code)
}

func TestOptionalAuth(t *testing.T) {
	tokens := auth.NewTokens("secret", time.Hour)
	r := gin.New()
	r.GET("/", OptionalAuth(tokens), func(c *gin.Context) {
		id, _ := UserID(c)
		c.String(http.StatusOK, id)
	})

	w := perform(r, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())

	token, err := tokens.Issue(models.User{ID: "u-1"})
	require.NoError(t, err)
	w = perform(r, token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u-1", w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, perform(r, "forged").Code)
}

func TestActor(t *testing.T) {
	newCtx := func(tokenUser string) *gin.Context {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		if tokenUser != "" {
			c.Set(userIDKey, tokenUser)
		}
		return c
	}

	id, err := Actor(newCtx(""), "body-user")
	require.NoError(t, err)
	assert.Equal(t, "body-user", id)

	_, err = Actor(newCtx(""), " ")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	id, err = Actor(newCtx("token-user"), "")
	require.NoError(t, err)
	assert.Equal(t, "token-user", id)

	id, err = Actor(newCtx("token-user"), "token-user")
	require.NoError(t, err)
	assert.Equal(t, "token-user", id)

	_, err = Actor(newCtx("token-user"), "someone-else")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestRequestLoggerAndRecovery(t *testing.T) {
	logger, hook := test.NewNullLogger()
	r := gin.New()
	r.Use(RequestLogger(logger), Recovery(logger))
	r.GET("/", func(c *gin.Context) { panic("kaboom") })

	w := perform(r, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, w.Body.String())

	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "panic in handler, recovered", entries[0].Message)
	assert.Equal(t, logrus.ErrorLevel, entries[1].Level)
	assert.Equal(t, http.StatusInternalServerError, entries[1].Data["status"])
}
