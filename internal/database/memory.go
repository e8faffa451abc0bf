package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emilythestrangee/feedbackloop/backend/internal/apperr"
	"github.com/emilythestrangee/feedbackloop/backend/internal/models"
	"github.com/emilythestrangee/feedbackloop/backend/internal/reporting"
	"github.com/emilythestrangee/feedbackloop/backend/internal/voting"
)

// MemoryStore is an in-process Repository. A single mutex stands in for the
// database lock: transactions run one at a time on a copy of the data and
// replace it only when fn succeeds.
type MemoryStore struct {
	mu    sync.Mutex
	data  *memData
	clock func() time.Time
}

type memData struct {
	users    map[string]models.User
	posts    map[string]models.Post
	votes    map[string]models.Vote
	comments map[string]models.Comment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: &memData{
			users:    map[string]models.User{},
			posts:    map[string]models.Post{},
			votes:    map[string]models.Vote{},
			comments: map[string]models.Comment{},
		},
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the timestamp source for new rows.
func (m *MemoryStore) SetClock(clock func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = clock
}

func (d *memData) clone() *memData {
	c := &memData{
		users:    make(map[string]models.User, len(d.users)),
		posts:    make(map[string]models.Post, len(d.posts)),
		votes:    make(map[string]models.Vote, len(d.votes)),
		comments: make(map[string]models.Comment, len(d.comments)),
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.posts {
		c.posts[k] = v
	}
	for k, v := range d.votes {
		c.votes[k] = v
	}
	for k, v := range d.comments {
		c.comments[k] = v
	}
	return c
}

func (d *memData) withAuthor(p models.Post) models.Post {
	p.Author = d.users[p.AuthorID]
	return p
}

func (d *memData) withCount(p models.Post) models.Post {
	count := &models.PostCount{}
	for _, v := range d.votes {
		if v.PostID == p.ID {
			count.Votes++
		}
	}
	for _, c := range d.comments {
		if c.PostID == p.ID {
			count.Comments++
		}
	}
	p.Count = count
	return p
}

func (d *memData) commentWithAuthor(c models.Comment) models.Comment {
	c.Author = d.users[c.AuthorID]
	return c
}

func (d *memData) userByEmail(email string) (models.User, bool) {
	for _, u := range d.users {
		if u.Email == email {
			return u, true
		}
	}
	return models.User{}, false
}

func (m *MemoryStore) InTx(ctx context.Context, fn func(tx voting.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := m.data.clone()
	if err := fn(&memTx{data: work, now: m.clock}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.data = work
	return nil
}

type memTx struct {
	data *memData
	now  func() time.Time
}

func (t *memTx) LockPost(ctx context.Context, postID string) (*models.Post, error) {
	p, ok := t.data.posts[postID]
	if !ok {
		return nil, fmt.Errorf("%w: post %s", apperr.ErrNotFound, postID)
	}
	return &p, nil
}

func (t *memTx) UserExists(ctx context.Context, userID string) (bool, error) {
	_, ok := t.data.users[userID]
	return ok, nil
}

func (t *memTx) FindVote(ctx context.Context, userID, postID string) (*models.Vote, error) {
	for _, v := range t.data.votes {
		if v.UserID == userID && v.PostID == postID {
			return &v, nil
		}
	}
	return nil, nil
}

func (t *memTx) CreateVote(ctx context.Context, userID, postID string, voteType models.VoteType) (*models.Vote, error) {
	if _, ok := t.data.users[userID]; !ok {
		return nil, fmt.Errorf("%w: user %s", apperr.ErrNotFound, userID)
	}
	for _, v := range t.data.votes {
		if v.UserID == userID && v.PostID == postID {
			return nil, fmt.Errorf("%w: idx_vote_user_post (%s, %s)", apperr.ErrConstraintViolation, userID, postID)
		}
	}
	now := t.now()
	v := models.Vote{ID: uuid.NewString(), Type: voteType, UserID: userID, PostID: postID, CreatedAt: now, UpdatedAt: now}
	t.data.votes[v.ID] = v
	return &v, nil
}

func (t *memTx) UpdateVote(ctx context.Context, voteID string, voteType models.VoteType) (*models.Vote, error) {
	v, ok := t.data.votes[voteID]
	if !ok {
		return nil, fmt.Errorf("%w: vote %s", apperr.ErrNotFound, voteID)
	}
	v.Type = voteType
	v.UpdatedAt = t.now()
	t.data.votes[voteID] = v
	return &v, nil
}

func (t *memTx) DeleteVote(ctx context.Context, voteID string) error {
	if _, ok := t.data.votes[voteID]; !ok {
		return fmt.Errorf("%w: vote %s", apperr.ErrNotFound, voteID)
	}
	delete(t.data.votes, voteID)
	return nil
}

func (t *memTx) IncrementPostCounter(ctx context.Context, postID string, field models.CounterField, delta int) (*models.Post, error) {
	p, ok := t.data.posts[postID]
	if !ok {
		return nil, fmt.Errorf("%w: post %s", apperr.ErrNotFound, postID)
	}
	switch field {
	case models.FieldUpvotes:
		p.Upvotes += delta
	case models.FieldDownvotes:
		p.Downvotes += delta
	default:
		return nil, fmt.Errorf("%w: unknown counter %q", apperr.ErrInvalidArgument, field)
	}
	if p.Upvotes < 0 || p.Downvotes < 0 {
		return nil, fmt.Errorf("%w: chk_posts_%s on post %s", apperr.ErrConsistencyFault, field, postID)
	}
	t.data.posts[postID] = p
	return &p, nil
}

func (t *memTx) CountVotes(ctx context.Context, postID string) (int, int, error) {
	var up, down int
	for _, v := range t.data.votes {
		if v.PostID != postID {
			continue
		}
		switch v.Type {
		case models.VoteUp:
			up++
		case models.VoteDown:
			down++
		}
	}
	return up, down, nil
}

func (m *MemoryStore) ListPosts(ctx context.Context, w reporting.Window) ([]models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	posts := []models.Post{}
	for _, p := range m.data.posts {
		if w.Contains(p.CreatedAt) {
			posts = append(posts, m.data.withCount(m.data.withAuthor(p)))
		}
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].CreatedAt.After(posts[j].CreatedAt) })
	return posts, nil
}

func (m *MemoryStore) ListVotes(ctx context.Context, w reporting.Window) ([]models.Vote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	votes := []models.Vote{}
	for _, v := range m.data.votes {
		if w.Contains(v.CreatedAt) {
			votes = append(votes, v)
		}
	}
	sort.Slice(votes, func(i, j int) bool { return votes[i].CreatedAt.After(votes[j].CreatedAt) })
	return votes, nil
}

func (m *MemoryStore) ListComments(ctx context.Context, w reporting.Window) ([]models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	comments := []models.Comment{}
	for _, c := range m.data.comments {
		if w.Contains(c.CreatedAt) {
			comments = append(comments, m.data.commentWithAuthor(c))
		}
	}
	sort.Slice(comments, func(i, j int) bool { return comments[i].CreatedAt.After(comments[j].CreatedAt) })
	return comments, nil
}

func (m *MemoryStore) Health(ctx context.Context) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]string{
		"status":  "up",
		"message": "It's healthy",
		"driver":  "memory",
		"posts":   fmt.Sprintf("%d", len(m.data.posts)),
	}
}

func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) GetOrCreateUser(ctx context.Context, email, name string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	email = normalizeEmail(email)
	if u, ok := m.data.userByEmail(email); ok {
		return &u, nil
	}
	u := models.User{Email: email, Name: name}
	m.insertUser(&u)
	return &u, nil
}

func (m *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user.Email = normalizeEmail(user.Email)
	if _, ok := m.data.userByEmail(user.Email); ok {
		return fmt.Errorf("%w: user already exists", apperr.ErrInvalidArgument)
	}
	m.insertUser(user)
	return nil
}

func (m *MemoryStore) insertUser(u *models.User) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := m.clock()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	m.data.users[u.ID] = *u
}

func (m *MemoryStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.data.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", apperr.ErrNotFound, id)
	}
	return &u, nil
}

func (m *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.data.userByEmail(normalizeEmail(email))
	if !ok {
		return nil, fmt.Errorf("%w: user", apperr.ErrNotFound)
	}
	return &u, nil
}

func (m *MemoryStore) ListFeedback(ctx context.Context, filter models.PostFilter) ([]models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	posts := []models.Post{}
	for _, p := range m.data.posts {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		posts = append(posts, m.data.withCount(m.data.withAuthor(p)))
	}

	sort.SliceStable(posts, func(i, j int) bool {
		a, b := posts[i], posts[j]
		switch filter.Sort {
		case models.SortPopular:
			if a.Upvotes != b.Upvotes {
				return a.Upvotes > b.Upvotes
			}
		case models.SortControversial:
			if a.Upvotes != b.Upvotes {
				return a.Upvotes > b.Upvotes
			}
			if a.Downvotes != b.Downvotes {
				return a.Downvotes > b.Downvotes
			}
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return posts, nil
}

func (m *MemoryStore) GetFeedback(ctx context.Context, id string) (*models.PostDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.data.posts[id]
	if !ok {
		return nil, fmt.Errorf("%w: post %s", apperr.ErrNotFound, id)
	}
	detail := models.PostDetail{Post: m.data.withAuthor(p), Votes: []models.Vote{}, Comments: []models.Comment{}}
	for _, v := range m.data.votes {
		if v.PostID == id {
			detail.Votes = append(detail.Votes, v)
		}
	}
	for _, c := range m.data.comments {
		if c.PostID == id {
			detail.Comments = append(detail.Comments, m.data.commentWithAuthor(c))
		}
	}
	sort.Slice(detail.Votes, func(i, j int) bool { return detail.Votes[i].CreatedAt.Before(detail.Votes[j].CreatedAt) })
	sort.Slice(detail.Comments, func(i, j int) bool { return detail.Comments[i].CreatedAt.Before(detail.Comments[j].CreatedAt) })
	return &detail, nil
}

// CreatePost stores post. A preset CreatedAt is kept so reports can be
// exercised against past weeks.
func (m *MemoryStore) CreatePost(ctx context.Context, post *models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data.users[post.AuthorID]; !ok {
		return fmt.Errorf("%w: user %s", apperr.ErrNotFound, post.AuthorID)
	}
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if post.Category == "" {
		post.Category = models.CategoryFeatureRequest
	}
	if post.Status == "" {
		post.Status = models.StatusUnderReview
	}
	post.Upvotes, post.Downvotes = 0, 0
	now := m.clock()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.UpdatedAt = now
	post.Author = models.User{}

	m.data.posts[post.ID] = *post
	*post = m.data.withAuthor(*post)
	return nil
}

func (m *MemoryStore) UpdatePost(ctx context.Context, id string, req models.UpdatePostRequest) (*models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.data.posts[id]
	if !ok {
		return nil, fmt.Errorf("%w: post %s", apperr.ErrNotFound, id)
	}
	if req.Title != nil {
		p.Title = *req.Title
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Status != nil {
		p.Status = *req.Status
	}
	if req.Category != nil {
		p.Category = *req.Category
	}
	p.UpdatedAt = m.clock()
	m.data.posts[id] = p

	p = m.data.withAuthor(p)
	return &p, nil
}

func (m *MemoryStore) DeletePost(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data.posts[id]; !ok {
		return fmt.Errorf("%w: post %s", apperr.ErrNotFound, id)
	}
	for vid, v := range m.data.votes {
		if v.PostID == id {
			delete(m.data.votes, vid)
		}
	}
	for cid, c := range m.data.comments {
		if c.PostID == id {
			delete(m.data.comments, cid)
		}
	}
	delete(m.data.posts, id)
	return nil
}

func (m *MemoryStore) CreateComment(ctx context.Context, comment *models.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data.posts[comment.PostID]; !ok {
		return fmt.Errorf("%w: post %s", apperr.ErrNotFound, comment.PostID)
	}
	if _, ok := m.data.users[comment.AuthorID]; !ok {
		return fmt.Errorf("%w: user %s", apperr.ErrNotFound, comment.AuthorID)
	}
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	now := m.clock()
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = now
	}
	comment.UpdatedAt = now
	comment.Author = models.User{}

	m.data.comments[comment.ID] = *comment
	*comment = m.data.commentWithAuthor(*comment)
	return nil
}

func (m *MemoryStore) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.data.comments[id]
	if !ok {
		return nil, fmt.Errorf("%w: comment %s", apperr.ErrNotFound, id)
	}
	c = m.data.commentWithAuthor(c)
	return &c, nil
}

func (m *MemoryStore) UpdateComment(ctx context.Context, id, content string) (*models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.data.comments[id]
	if !ok {
		return nil, fmt.Errorf("%w: comment %s", apperr.ErrNotFound, id)
	}
	c.Content = content
	c.UpdatedAt = m.clock()
	m.data.comments[id] = c

	c = m.data.commentWithAuthor(c)
	return &c, nil
}

func (m *MemoryStore) DeleteComment(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data.comments[id]; !ok {
		return fmt.Errorf("%w: comment %s", apperr.ErrNotFound, id)
	}
	delete(m.data.comments, id)
	return nil
}

// SetCounters overwrites a post's counters without touching the ledger.
// It exists to reproduce drift in tests and audits.
func (m *MemoryStore) SetCounters(postID string, up, down int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.data.posts[postID]
	if !ok {
		return fmt.Errorf("%w: post %s", apperr.ErrNotFound, postID)
	}
	p.Upvotes, p.Downvotes = up, down
	m.data.posts[postID] = p
	return nil
}

// PutVote inserts a ledger row directly, bypassing counters.
func (m *MemoryStore) PutVote(v models.Vote) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = m.clock()
	}
	m.data.votes[v.ID] = v
}

var (
	_ Repository = (*MemoryStore)(nil)
	_ Repository = (*Store)(nil)
)
