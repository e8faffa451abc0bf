package voting_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilythestrangee/feedbackloop/backend/internal/apperr"
	"github.com/emilythestrangee/feedbackloop/backend/internal/database"
	"github.com/emilythestrangee/feedbackloop/backend/internal/models"
	"github.com/emilythestrangee/feedbackloop/backend/internal/voting"
)

func newPost(t *testing.T, store *database.MemoryStore) *models.Post {
	t.Helper()
	ctx := context.Background()
	author, err := store.GetOrCreateUser(ctx, "author@example.com", "Author")
	require.NoError(t, err)
	post := &models.Post{Title: "Export to CSV", Description: "please", AuthorID: author.ID}
	require.NoError(t, store.CreatePost(ctx, post))
	return post
}

// addVoters registers users whose IDs are the given names.
func addVoters(t *testing.T, store *database.MemoryStore, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, store.CreateUser(context.Background(), &models.User{ID: id, Email: id + "@example.com", Name: id}))
	}
}

func counters(r *voting.Result) [2]int {
	return [2]int{r.Post.Upvotes, r.Post.Downvotes}
}

func TestCastVoteScenarioTwoUsers(t *testing.T) {
	store := database.NewMemoryStore()
	post := newPost(t, store)
	addVoters(t, store, "A", "B")
	ledger := voting.NewLedger(store)
	ctx := context.Background()

	res, err := ledger.CastVote(ctx, "A", post.ID, models.VoteUp)
	require.NoError(t, err)
	assert.Equal(t, [2]int{1, 0}, counters(res))
	require.NotNil(t, res.Vote)
	assert.Equal(t, models.VoteUp, res.Vote.Type)

	res, err = ledger.CastVote(ctx, "B", post.ID, models.VoteDown)
	require.NoError(t, err)
	assert.Equal(t, [2]int{1, 1}, counters(res))

	res, err = ledger.CastVote(ctx, "A", post.ID, models.VoteDown)
	require.NoError(t, err)
	assert.Equal(t, [2]int{0, 2}, counters(res))
	assert.Equal(t, voting.Downvoted, res.State)

	res, err = ledger.CastVote(ctx, "B", post.ID, models.VoteDown)
	require.NoError(t, err)
	assert.Equal(t, [2]int{0, 1}, counters(res))
	assert.Nil(t, res.Vote)
	assert.Equal(t, voting.NoVote, res.State)

	detail, err := store.GetFeedback(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, detail.Votes, 1)
	assert.Equal(t, "A", detail.Votes[0].UserID)
	assert.Equal(t, models.VoteDown, detail.Votes[0].Type)
}

func TestCastVoteTwiceReturnsToBaseline(t *testing.T) {
	store := database.NewMemoryStore()
	post := newPost(t, store)
	addVoters(t, store, "U")
	ledger := voting.NewLedger(store)
	ctx := context.Background()

	for _, voteType := range []models.VoteType{models.VoteUp, models.VoteDown} {
		_, err := ledger.CastVote(ctx, "U", post.ID, voteType)
		require.NoError(t, err)
		res, err := ledger.CastVote(ctx, "U", post.ID, voteType)
		require.NoError(t, err)

		assert.Equal(t, [2]int{0, 0}, counters(res))
		assert.Nil(t, res.Vote)
	}
}

func TestCastVoteInvalidTypeChangesNothing(t *testing.T) {
	store := database.NewMemoryStore()
	post := newPost(t, store)
	addVoters(t, store, "U")
	ledger := voting.NewLedger(store)
	ctx := context.Background()

	_, err := ledger.CastVote(ctx, "U", post.ID, models.VoteUp)
	require.NoError(t, err)

	_, err = ledger.CastVote(ctx, "U", post.ID, models.VoteType("superlike"))
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	report, err := ledger.Audit(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Upvotes)
	assert.Equal(t, 0, report.Downvotes)
	assert.True(t, report.Consistent)
}

func TestCastVoteValidatesIdentifiers(t *testing.T) {
	ledger := voting.NewLedger(database.NewMemoryStore())
	ctx := context.Background()

	_, err := ledger.CastVote(ctx, "", "p1", models.VoteUp)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	_, err = ledger.CastVote(ctx, "u1", "  ", models.VoteUp)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestCastVoteUnknownPost(t *testing.T) {
	ledger := voting.NewLedger(database.NewMemoryStore())

	_, err := ledger.CastVote(context.Background(), "u1", "missing", models.VoteUp)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCastVoteUnknownVoterChangesNothing(t *testing.T) {
	store := database.NewMemoryStore()
	post := newPost(t, store)
	ledger := voting.NewLedger(store)
	ctx := context.Background()

	_, err := ledger.CastVote(ctx, "no-such-user", post.ID, models.VoteUp)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.False(t, apperr.Retryable(err))

	detail, err := store.GetFeedback(ctx, post.ID)
	require.NoError(t, err)
	assert.Empty(t, detail.Votes)
	assert.Equal(t, 0, detail.Upvotes)
	assert.Equal(t, 0, detail.Downvotes)
}

func TestCastVoteCountersMatchLedgerAfterRandomSequence(t *testing.T) {
	store := database.NewMemoryStore()
	post := newPost(t, store)
	ledger := voting.NewLedger(store)
	ctx := context.Background()

	users := []string{"u1", "u2", "u3", "u4"}
	addVoters(t, store, users...)
	types := []models.VoteType{models.VoteUp, models.VoteDown}
	for i := 0; i < 200; i++ {
		user := users[(i*7)%len(users)]
		voteType := types[(i*i+i/3)%len(types)]
		_, err := ledger.CastVote(ctx, user, post.ID, voteType)
		require.NoError(t, err)

		report, err := ledger.Audit(ctx, post.ID)
		require.NoError(t, err)
		require.True(t, report.Consistent, "step %d", i)
		require.GreaterOrEqual(t, report.Upvotes, 0)
		require.GreaterOrEqual(t, report.Downvotes, 0)
	}
}

func TestCastVoteConcurrentUsers(t *testing.T) {
	store := database.NewMemoryStore()
	post := newPost(t, store)
	ledger := voting.NewLedger(store)
	ctx := context.Background()

	const voters = 50
	for i := 0; i < voters; i++ {
		addVoters(t, store, fmt.Sprintf("user-%d", i))
	}
	var wg sync.WaitGroup
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			voteType := models.VoteUp
			if i%2 == 1 {
				voteType = models.VoteDown
			}
			_, err := ledger.CastVote(ctx, fmt.Sprintf("user-%d", i), post.ID, voteType)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	report, err := ledger.Audit(ctx, post.ID)
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.Equal(t, 25, report.Upvotes)
	assert.Equal(t, 25, report.Downvotes)
}

func TestCastVoteConcurrentSameUser(t *testing.T) {
	store := database.NewMemoryStore()
	post := newPost(t, store)
	addVoters(t, store, "same")
	ledger := voting.NewLedger(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 7; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.CastVote(ctx, "same", post.ID, models.VoteDown)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	report, err := ledger.Audit(ctx, post.ID)
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	// An odd number of toggles leaves the downvote in place.
	assert.Equal(t, 0, report.Upvotes)
	assert.Equal(t, 1, report.Downvotes)
}

// racyStore hides the existing vote from the first FindVote, the way a
// concurrent insert would look right before the unique index fires.
type racyStore struct {
	inner    voting.Store
	attempts atomic.Int32
}

func (s *racyStore) InTx(ctx context.Context, fn func(tx voting.Tx) error) error {
	attempt := s.attempts.Add(1)
	return s.inner.InTx(ctx, func(tx voting.Tx) error {
		if attempt == 1 {
			return fn(blindTx{Tx: tx})
		}
		return fn(tx)
	})
}

type blindTx struct {
	voting.Tx
}

func (blindTx) FindVote(context.Context, string, string) (*models.Vote, error) {
	return nil, nil
}

func TestCastVoteRetriesAfterConstraintViolation(t *testing.T) {
	store := database.NewMemoryStore()
	post := newPost(t, store)
	addVoters(t, store, "U")
	ctx := context.Background()

	_, err := voting.NewLedger(store).CastVote(ctx, "U", post.ID, models.VoteUp)
	require.NoError(t, err)

	racy := &racyStore{inner: store}
	res, err := voting.NewLedger(racy).CastVote(ctx, "U", post.ID, models.VoteDown)
	require.NoError(t, err)
	assert.EqualValues(t, 2, racy.attempts.Load())
	assert.Equal(t, [2]int{0, 1}, counters(res))
	require.NotNil(t, res.Vote)
	assert.Equal(t, models.VoteDown, res.Vote.Type)
}

type alwaysBlindStore struct {
	inner voting.Store
}

func (s alwaysBlindStore) InTx(ctx context.Context, fn func(tx voting.Tx) error) error {
	return s.inner.InTx(ctx, func(tx voting.Tx) error { return fn(blindTx{Tx: tx}) })
}

func TestCastVoteGivesUpAsUnavailable(t *testing.T) {
	store := database.NewMemoryStore()
	post := newPost(t, store)
	addVoters(t, store, "U")
	ctx := context.Background()

	_, err := voting.NewLedger(store).CastVote(ctx, "U", post.ID, models.VoteUp)
	require.NoError(t, err)

	ledger := voting.NewLedger(alwaysBlindStore{inner: store}, voting.WithMaxAttempts(2))
	_, err = ledger.CastVote(ctx, "U", post.ID, models.VoteDown)
	assert.ErrorIs(t, err, apperr.ErrUnavailable)
	assert.NotErrorIs(t, err, apperr.ErrConstraintViolation)

	report, err := voting.NewLedger(store).Audit(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Upvotes)
	assert.Equal(t, 0, report.Downvotes)
}

func TestCastVoteRefusesNegativeCounter(t *testing.T) {
	store := database.NewMemoryStore()
	post := newPost(t, store)
	addVoters(t, store, "U")
	ctx := context.Background()

	logger, hook := test.NewNullLogger()
	ledger := voting.NewLedger(store, voting.WithLogger(logger))

	_, err := ledger.CastVote(ctx, "U", post.ID, models.VoteUp)
	require.NoError(t, err)
	require.NoError(t, store.SetCounters(post.ID, 0, 0))

	_, err = ledger.CastVote(ctx, "U", post.ID, models.VoteUp)
	assert.ErrorIs(t, err, apperr.ErrConsistencyFault)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, post.ID, entry.Data["post_id"])
	assert.Equal(t, "U", entry.Data["user_id"])

	detail, err := store.GetFeedback(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, detail.Votes, 1, "the vote must survive the aborted toggle")
	assert.Equal(t, 0, detail.Upvotes)
}

func TestAuditReportsDrift(t *testing.T) {
	store := database.NewMemoryStore()
	post := newPost(t, store)
	addVoters(t, store, "U")
	ctx := context.Background()

	logger, hook := test.NewNullLogger()
	ledger := voting.NewLedger(store, voting.WithLogger(logger))

	_, err := ledger.CastVote(ctx, "U", post.ID, models.VoteDown)
	require.NoError(t, err)
	require.NoError(t, store.SetCounters(post.ID, 3, 1))

	report, err := ledger.Audit(ctx, post.ID)
	require.NoError(t, err)
	assert.False(t, report.Consistent)
	assert.Equal(t, 3, report.Upvotes)
	assert.Equal(t, 0, report.LedgerUpvotes)
	assert.Equal(t, 1, report.LedgerDownvotes)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

type slowStore struct{}

func (slowStore) InTx(ctx context.Context, fn func(tx voting.Tx) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestCastVoteTimeoutIsUnavailable(t *testing.T) {
	ledger := voting.NewLedger(slowStore{}, voting.WithTimeout(10*time.Millisecond))

	_, err := ledger.CastVote(context.Background(), "U", "P", models.VoteUp)
	assert.ErrorIs(t, err, apperr.ErrUnavailable)
	assert.True(t, apperr.Retryable(err))
}

func TestCastVoteCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := voting.NewLedger(slowStore{}).CastVote(ctx, "U", "P", models.VoteUp)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, apperr.Retryable(err))
}
