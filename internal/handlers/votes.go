package handlers

import (
	"context"
	"expvar"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/emilythestrangee/feedbackloop/backend/internal/apperr"
	"github.com/emilythestrangee/feedbackloop/backend/internal/events"
	"github.com/emilythestrangee/feedbackloop/backend/internal/middleware"
	"github.com/emilythestrangee/feedbackloop/backend/internal/models"
	"github.com/emilythestrangee/feedbackloop/backend/internal/voting"
)

// Published on /api/admin/debug/vars.
var (
	votesCast    = expvar.NewInt("feedback_votes_cast")
	voteFailures = expvar.NewInt("feedback_vote_failures")
)

type VoteHandler struct {
	ledger  Ledger
	events  events.Publisher
	weeks   *weekCache
	retries uint64
}

func NewVoteHandler(ledger Ledger, publisher events.Publisher, weeks *weekCache, retries uint64) *VoteHandler {
	return &VoteHandler{ledger: ledger, events: publisher, weeks: weeks, retries: retries}
}

// CastVote applies an upvote or downvote, toggling it off when the user
// already holds the same vote.
func (h *VoteHandler) CastVote(c *gin.Context) {
	var req models.VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields: postId, userId, type"})
		return
	}
	if !req.Type.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid vote type. Must be upvote or downvote"})
		return
	}

	userID, err := middleware.Actor(c, req.UserID)
	if err != nil {
		respondError(c, err, "Failed to process vote")
		return
	}

	ctx := c.Request.Context()
	res, err := backoff.RetryWithData(func() (*voting.Result, error) {
		res, err := h.ledger.CastVote(ctx, userID, req.PostID, req.Type)
		if err != nil && !apperr.Retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return res, err
	}, newVoteBackOff(ctx, h.retries))
	if err != nil {
		voteFailures.Add(1)
		respondError(c, err, "Failed to process vote")
		return
	}
	votesCast.Add(1)

	// A toggle or switch rewrites a row that may belong to an older week.
	touched := []time.Time{res.Post.CreatedAt}
	if res.Previous != nil {
		touched = append(touched, res.Previous.CreatedAt)
	}
	h.weeks.touch(ctx, touched...)
	h.publish(ctx, userID, req.Type, res)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"vote":    res.Vote,
		"post":    res.Post,
	})
}

func (h *VoteHandler) publish(ctx context.Context, userID string, requested models.VoteType, res *voting.Result) {
	evt := events.NewVoteEvent(userID, requested, res, time.Now().UTC())
	if err := h.events.PublishVote(ctx, evt); err != nil {
		log.WithError(err).WithField("post_id", evt.PostID).Warn("vote event not published")
	}
}
