package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilythestrangee/feedbackloop/backend/internal/models"
	"github.com/emilythestrangee/feedbackloop/backend/internal/reporting"
	"github.com/emilythestrangee/feedbackloop/backend/internal/voting"
)

func TestVoteMessageKeyedByPost(t *testing.T) {
	at := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	res := &voting.Result{
		Post:  models.Post{ID: "post-1", Upvotes: 2, Downvotes: 1},
		State: voting.Upvoted,
	}

	msg, err := voteMessage(NewVoteEvent("user-1", models.VoteUp, res, at))
	require.NoError(t, err)
	assert.Equal(t, "post-1", string(msg.Key))
	assert.Equal(t, at, msg.Time)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "upvoted", decoded["state"])
	assert.Equal(t, "upvote", decoded["requested"])
	assert.EqualValues(t, 2, decoded["upvotes"])
}

func TestSummaryMessageKeyedByWeek(t *testing.T) {
	w := reporting.WeekOf(time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC))
	s := reporting.Aggregate(w, nil, nil, nil)

	msg, err := summaryMessage(SummaryEvent{Stats: s.Stats, GeneratedAt: w.End})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-08", string(msg.Key))
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.PublishVote(context.Background(), VoteEvent{}))
	assert.NoError(t, p.PublishSummary(context.Background(), SummaryEvent{}))
	assert.NoError(t, p.Close())
}
