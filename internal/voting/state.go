// Package voting owns the vote ledger: one vote per (user, post) and the
// post counters that mirror it.
package voting

import (
	"fmt"

	"github.com/emilythestrangee/feedbackloop/backend/internal/apperr"
	"github.com/emilythestrangee/feedbackloop/backend/internal/models"
)

// State is what a single user holds on a single post.
type State int

const (
	NoVote State = iota
	Upvoted
	Downvoted
)

func (s State) String() string {
	switch s {
	case Upvoted:
		return "upvoted"
	case Downvoted:
		return "downvoted"
	default:
		return "none"
	}
}

// counts is the contribution of a state to (upvotes, downvotes).
func (s State) counts() (int, int) {
	switch s {
	case Upvoted:
		return 1, 0
	case Downvoted:
		return 0, 1
	default:
		return 0, 0
	}
}

// StateOf reads the state from a ledger row. A nil row is NoVote.
func StateOf(v *models.Vote) (State, error) {
	if v == nil {
		return NoVote, nil
	}
	switch v.Type {
	case models.VoteUp:
		return Upvoted, nil
	case models.VoteDown:
		return Downvoted, nil
	}
	return NoVote, fmt.Errorf("%w: vote %s has unknown type %q", apperr.ErrConsistencyFault, v.ID, v.Type)
}

// Transition is one edge of the state machine together with the counter
// deltas it implies.
type Transition struct {
	From          State
	To            State
	UpvoteDelta   int
	DownvoteDelta int
}

// Next applies a requested vote to the current state. Requesting the vote
// already held toggles it off; anything else replaces it.
func Next(from State, requested models.VoteType) (Transition, error) {
	var to State
	switch requested {
	case models.VoteUp:
		to = Upvoted
	case models.VoteDown:
		to = Downvoted
	default:
		return Transition{}, fmt.Errorf("%w: invalid vote type %q, must be upvote or downvote", apperr.ErrInvalidArgument, requested)
	}
	if to == from {
		to = NoVote
	}

	fromUp, fromDown := from.counts()
	toUp, toDown := to.counts()
	return Transition{
		From:          from,
		To:            to,
		UpvoteDelta:   toUp - fromUp,
		DownvoteDelta: toDown - fromDown,
	}, nil
}

func (t Transition) deltas() []counterDelta {
	var out []counterDelta
	if t.UpvoteDelta != 0 {
		out = append(out, counterDelta{field: models.FieldUpvotes, delta: t.UpvoteDelta})
	}
	if t.DownvoteDelta != 0 {
		out = append(out, counterDelta{field: models.FieldDownvotes, delta: t.DownvoteDelta})
	}
	return out
}

type counterDelta struct {
	field models.CounterField
	delta int
}
