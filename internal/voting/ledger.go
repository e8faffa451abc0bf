package voting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/emilythestrangee/feedbackloop/backend/internal/apperr"
	"github.com/emilythestrangee/feedbackloop/backend/internal/models"
)

const (
	DefaultTimeout     = 5 * time.Second
	DefaultMaxAttempts = 3
)

// Tx is the slice of the store the ledger needs inside one transaction.
// CreateVote must return apperr.ErrConstraintViolation when the (user, post)
// pair already has a vote.
type Tx interface {
	LockPost(ctx context.Context, postID string) (*models.Post, error)
	UserExists(ctx context.Context, userID string) (bool, error)
	FindVote(ctx context.Context, userID, postID string) (*models.Vote, error)
	CreateVote(ctx context.Context, userID, postID string, voteType models.VoteType) (*models.Vote, error)
	UpdateVote(ctx context.Context, voteID string, voteType models.VoteType) (*models.Vote, error)
	DeleteVote(ctx context.Context, voteID string) error
	IncrementPostCounter(ctx context.Context, postID string, field models.CounterField, delta int) (*models.Post, error)
	CountVotes(ctx context.Context, postID string) (up int, down int, err error)
}

// Store runs fn in a transaction: all of its writes commit or none do.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Result is what CastVote hands back. Vote is nil when the vote was
// toggled off. Previous is the row as it stood before the call, nil on a
// first vote.
type Result struct {
	Vote     *models.Vote `json:"vote"`
	Post     models.Post  `json:"post"`
	State    State        `json:"-"`
	Previous *models.Vote `json:"-"`
}

type Ledger struct {
	store       Store
	logger      log.FieldLogger
	timeout     time.Duration
	maxAttempts int
}

type Option func(*Ledger)

// WithTimeout bounds the whole CastVote call, retries included.
func WithTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithMaxAttempts bounds how often a constraint violation is retried.
func WithMaxAttempts(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxAttempts = n
		}
	}
}

func WithLogger(logger log.FieldLogger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func NewLedger(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:       store,
		logger:      log.StandardLogger(),
		timeout:     DefaultTimeout,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CastVote applies requested for userID on postID and returns the new vote
// (nil if toggled off) with the post's updated counters.
func (l *Ledger) CastVote(ctx context.Context, userID, postID string, requested models.VoteType) (*Result, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(postID) == "" {
		return nil, fmt.Errorf("%w: userId and postId are required", apperr.ErrInvalidArgument)
	}
	if !requested.Valid() {
		return nil, fmt.Errorf("%w: invalid vote type %q, must be upvote or downvote", apperr.ErrInvalidArgument, requested)
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	for attempt := 1; ; attempt++ {
		res, err := l.castOnce(ctx, userID, postID, requested)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, apperr.ErrConstraintViolation) {
			return nil, apperr.FromContext(err)
		}

		fields := log.Fields{"user_id": userID, "post_id": postID, "attempt": attempt}
		if attempt >= l.maxAttempts {
			l.logger.WithFields(fields).Warn("vote insert kept conflicting, giving up")
			return nil, fmt.Errorf("%w: vote on post %s kept conflicting", apperr.ErrUnavailable, postID)
		}
		l.logger.WithFields(fields).Debug("concurrent vote insert, retrying as update")
	}
}

func (l *Ledger) castOnce(ctx context.Context, userID, postID string, requested models.VoteType) (*Result, error) {
	var res *Result
	err := l.store.InTx(ctx, func(tx Tx) error {
		post, err := tx.LockPost(ctx, postID)
		if err != nil {
			return err
		}
		known, err := tx.UserExists(ctx, userID)
		if err != nil {
			return err
		}
		if !known {
			return fmt.Errorf("%w: user %s", apperr.ErrNotFound, userID)
		}

		current, err := tx.FindVote(ctx, userID, postID)
		if err != nil {
			return err
		}
		from, err := StateOf(current)
		if err != nil {
			l.fault(userID, postID).WithError(err).Error("ledger holds an unreadable vote")
			return err
		}

		tr, err := Next(from, requested)
		if err != nil {
			return err
		}
		if err := l.checkCounters(*post, tr, userID); err != nil {
			return err
		}

		var vote *models.Vote
		switch {
		case tr.To == NoVote:
			err = tx.DeleteVote(ctx, current.ID)
		case tr.From == NoVote:
			vote, err = tx.CreateVote(ctx, userID, postID, requested)
		default:
			vote, err = tx.UpdateVote(ctx, current.ID, requested)
		}
		if err != nil {
			return err
		}

		for _, d := range tr.deltas() {
			if post, err = tx.IncrementPostCounter(ctx, postID, d.field, d.delta); err != nil {
				return err
			}
		}

		res = &Result{Vote: vote, Post: *post, State: tr.To, Previous: current}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// checkCounters refuses a transition that would push a counter below zero.
// That can only happen when the counters already disagree with the ledger.
func (l *Ledger) checkCounters(post models.Post, tr Transition, userID string) error {
	for _, d := range tr.deltas() {
		current := post.Counter(d.field)
		if current+d.delta >= 0 {
			continue
		}
		l.fault(userID, post.ID).WithFields(log.Fields{
			"field":   d.field,
			"current": current,
			"delta":   d.delta,
			"from":    tr.From.String(),
			"to":      tr.To.String(),
		}).Error("vote counter would go negative, ledger and counters diverged")
		return fmt.Errorf("%w: post %s %s would drop to %d", apperr.ErrConsistencyFault, post.ID, d.field, current+d.delta)
	}
	return nil
}

func (l *Ledger) fault(userID, postID string) log.FieldLogger {
	return l.logger.WithFields(log.Fields{
		"component": "vote_ledger",
		"user_id":   userID,
		"post_id":   postID,
	})
}

// AuditReport compares a post's counters with a fresh count of its votes.
type AuditReport struct {
	PostID          string `json:"postId"`
	Upvotes         int    `json:"upvotes"`
	Downvotes       int    `json:"downvotes"`
	LedgerUpvotes   int    `json:"ledgerUpvotes"`
	LedgerDownvotes int    `json:"ledgerDownvotes"`
	Consistent      bool   `json:"consistent"`
}

// Audit recounts the ledger for postID under the post lock. A mismatch is
// logged as a consistency fault and reported with Consistent=false.
func (l *Ledger) Audit(ctx context.Context, postID string) (*AuditReport, error) {
	if strings.TrimSpace(postID) == "" {
		return nil, fmt.Errorf("%w: postId is required", apperr.ErrInvalidArgument)
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var report *AuditReport
	err := l.store.InTx(ctx, func(tx Tx) error {
		post, err := tx.LockPost(ctx, postID)
		if err != nil {
			return err
		}
		up, down, err := tx.CountVotes(ctx, postID)
		if err != nil {
			return err
		}
		report = &AuditReport{
			PostID:          postID,
			Upvotes:         post.Upvotes,
			Downvotes:       post.Downvotes,
			LedgerUpvotes:   up,
			LedgerDownvotes: down,
			Consistent:      post.Upvotes == up && post.Downvotes == down,
		}
		return nil
	})
	if err != nil {
		return nil, apperr.FromContext(err)
	}

	if !report.Consistent {
		l.logger.WithFields(log.Fields{
			"component":        "vote_ledger",
			"post_id":          postID,
			"upvotes":          report.Upvotes,
			"downvotes":        report.Downvotes,
			"ledger_upvotes":   report.LedgerUpvotes,
			"ledger_downvotes": report.LedgerDownvotes,
		}).Error("vote counters disagree with the ledger")
	}
	return report, nil
}
