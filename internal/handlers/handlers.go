package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/emilythestrangee/feedbackloop/backend/internal/apperr"
	"github.com/emilythestrangee/feedbackloop/backend/internal/auth"
	"github.com/emilythestrangee/feedbackloop/backend/internal/cache"
	"github.com/emilythestrangee/feedbackloop/backend/internal/database"
	"github.com/emilythestrangee/feedbackloop/backend/internal/events"
	"github.com/emilythestrangee/feedbackloop/backend/internal/middleware"
	"github.com/emilythestrangee/feedbackloop/backend/internal/models"
	"github.com/emilythestrangee/feedbackloop/backend/internal/reporting"
	"github.com/emilythestrangee/feedbackloop/backend/internal/voting"
)

// Ledger is the vote ledger as the handlers see it.
type Ledger interface {
	CastVote(ctx context.Context, userID, postID string, requested models.VoteType) (*voting.Result, error)
	Audit(ctx context.Context, postID string) (*voting.AuditReport, error)
}

// Deps carries everything the handlers share. Summaries and Events may be
// nil, in which case caching and event publishing are off.
type Deps struct {
	Repo      database.Repository
	Ledger    Ledger
	Reporter  *reporting.Reporter
	Tokens    *auth.Tokens
	Summaries cache.Summaries
	Events    events.Publisher
	// VoteRetries bounds how often a transient vote failure is retried.
	VoteRetries uint64
}

// Handler combines all handler types
type Handler struct {
	Auth     *AuthHandler
	User     *UserHandler
	Feedback *FeedbackHandler
	Vote     *VoteHandler
	Comment  *CommentHandler
	Admin    *AdminHandler
}

// NewHandler creates a unified handler with all sub-handlers
func NewHandler(deps Deps) *Handler {
	if deps.Summaries == nil {
		deps.Summaries = cache.Nop{}
	}
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}
	weeks := &weekCache{summaries: deps.Summaries, reporter: deps.Reporter}

	return &Handler{
		Auth:     NewAuthHandler(deps.Repo, deps.Tokens),
		User:     NewUserHandler(deps.Repo),
		Feedback: NewFeedbackHandler(deps.Repo, weeks),
		Vote:     NewVoteHandler(deps.Ledger, deps.Events, weeks, deps.VoteRetries),
		Comment:  NewCommentHandler(deps.Repo, weeks),
		Admin:    NewAdminHandler(deps.Ledger, deps.Reporter, weeks),
	}
}

// weekCache drops cached summaries touched by a write.
type weekCache struct {
	summaries cache.Summaries
	reporter  *reporting.Reporter
}

// touch invalidates the current week and the weeks containing at.
func (w *weekCache) touch(ctx context.Context, at ...time.Time) {
	if w == nil || w.reporter == nil {
		return
	}
	w.summaries.Invalidate(ctx, w.reporter.CurrentWeek())
	for _, t := range at {
		if !t.IsZero() {
			w.summaries.Invalidate(ctx, w.reporter.WeekFor(t))
		}
	}
}

// respondError writes {"error": ...} with the status matching err. Server
// side failures are logged; the client only sees fallback.
func respondError(c *gin.Context, err error, fallback string) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		log.WithError(err).WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error(fallback)
	}
	c.JSON(status, gin.H{"error": apperr.PublicMessage(err, fallback)})
}

// requireUser returns the verified caller or answers 401.
func requireUser(c *gin.Context) (string, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return "", false
	}
	return id, true
}

// isAdmin re-reads the caller so a revoked admin loses rights at once.
func isAdmin(ctx context.Context, repo database.Repository, userID string) (bool, error) {
	user, err := repo.GetUser(ctx, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return user.IsAdmin, nil
}

func newVoteBackOff(ctx context.Context, retries uint64) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 3 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)
}
