package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emilythestrangee/feedbackloop/backend/internal/apperr"
	"github.com/emilythestrangee/feedbackloop/backend/internal/models"
	"github.com/emilythestrangee/feedbackloop/backend/internal/reporting"
	"github.com/emilythestrangee/feedbackloop/backend/internal/voting"
)

// Store is the gorm-backed Repository.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for migrations and seeding.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// InTx runs fn inside a database transaction. Returning an error from fn
// rolls everything back.
func (s *Store) InTx(ctx context.Context, fn func(tx voting.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

type gormTx struct {
	db *gorm.DB
}

// LockPost reads the post with SELECT ... FOR UPDATE.
func (t *gormTx) LockPost(ctx context.Context, postID string) (*models.Post, error) {
	var post models.Post
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", postID).
		Take(&post).Error
	if err != nil {
		return nil, translate(err, "post "+postID)
	}
	return &post, nil
}

func (t *gormTx) UserExists(ctx context.Context, userID string) (bool, error) {
	var n int64
	if err := t.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&n).Error; err != nil {
		return false, translate(err, "user "+userID)
	}
	return n > 0, nil
}

func (t *gormTx) FindVote(ctx context.Context, userID, postID string) (*models.Vote, error) {
	var vote models.Vote
	err := t.db.WithContext(ctx).
		Where("user_id = ? AND post_id = ?", userID, postID).
		Take(&vote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err, "vote")
	}
	return &vote, nil
}

func (t *gormTx) CreateVote(ctx context.Context, userID, postID string, voteType models.VoteType) (*models.Vote, error) {
	vote := models.Vote{UserID: userID, PostID: postID, Type: voteType}
	if err := t.db.WithContext(ctx).Omit(clause.Associations).Create(&vote).Error; err != nil {
		return nil, translate(err, "vote")
	}
	return &vote, nil
}

func (t *gormTx) UpdateVote(ctx context.Context, voteID string, voteType models.VoteType) (*models.Vote, error) {
	err := t.db.WithContext(ctx).Model(&models.Vote{}).Where("id = ?", voteID).Update("type", voteType).Error
	if err != nil {
		return nil, translate(err, "vote")
	}

	var vote models.Vote
	if err := t.db.WithContext(ctx).Where("id = ?", voteID).Take(&vote).Error; err != nil {
		return nil, translate(err, "vote "+voteID)
	}
	return &vote, nil
}

func (t *gormTx) DeleteVote(ctx context.Context, voteID string) error {
	res := t.db.WithContext(ctx).Where("id = ?", voteID).Delete(&models.Vote{})
	if res.Error != nil {
		return translate(res.Error, "vote")
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: vote %s", apperr.ErrNotFound, voteID)
	}
	return nil
}

// IncrementPostCounter adds delta to the named counter in SQL and returns
// the post as stored afterwards.
func (t *gormTx) IncrementPostCounter(ctx context.Context, postID string, field models.CounterField, delta int) (*models.Post, error) {
	if field != models.FieldUpvotes && field != models.FieldDownvotes {
		return nil, fmt.Errorf("%w: unknown counter %q", apperr.ErrInvalidArgument, field)
	}

	column := string(field)
	err := t.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("id = ?", postID).
		UpdateColumn(column, gorm.Expr(column+" + ?", delta)).Error
	if err != nil {
		return nil, translate(err, "post "+postID)
	}

	var post models.Post
	if err := t.db.WithContext(ctx).Where("id = ?", postID).Take(&post).Error; err != nil {
		return nil, translate(err, "post "+postID)
	}
	return &post, nil
}

func (t *gormTx) CountVotes(ctx context.Context, postID string) (int, int, error) {
	return countVotes(t.db.WithContext(ctx), postID)
}

func countVotes(db *gorm.DB, postID string) (int, int, error) {
	var rows []struct {
		Type  models.VoteType
		Total int
	}
	err := db.Model(&models.Vote{}).
		Select("type, COUNT(*) AS total").
		Where("post_id = ?", postID).
		Group("type").
		Scan(&rows).Error
	if err != nil {
		return 0, 0, translate(err, "votes")
	}

	var up, down int
	for _, r := range rows {
		switch r.Type {
		case models.VoteUp:
			up = r.Total
		case models.VoteDown:
			down = r.Total
		}
	}
	return up, down, nil
}

func windowScope(w reporting.Window) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("created_at >= ? AND created_at < ?", w.Start, w.End)
	}
}

func (s *Store) ListPosts(ctx context.Context, w reporting.Window) ([]models.Post, error) {
	var posts []models.Post
	err := s.db.WithContext(ctx).
		Scopes(windowScope(w)).
		Preload("Author").
		Order("created_at desc").
		Find(&posts).Error
	if err != nil {
		return nil, translate(err, "posts")
	}
	if err := attachCounts(s.db.WithContext(ctx), posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *Store) ListVotes(ctx context.Context, w reporting.Window) ([]models.Vote, error) {
	var votes []models.Vote
	err := s.db.WithContext(ctx).
		Scopes(windowScope(w)).
		Order("created_at desc").
		Find(&votes).Error
	if err != nil {
		return nil, translate(err, "votes")
	}
	return votes, nil
}

func (s *Store) ListComments(ctx context.Context, w reporting.Window) ([]models.Comment, error) {
	var comments []models.Comment
	err := s.db.WithContext(ctx).
		Scopes(windowScope(w)).
		Preload("Author").
		Order("created_at desc").
		Find(&comments).Error
	if err != nil {
		return nil, translate(err, "comments")
	}
	return comments, nil
}

// GetOrCreateUser returns the user with email, creating it with name on
// first sight.
func (s *Store) GetOrCreateUser(ctx context.Context, email, name string) (*models.User, error) {
	email = normalizeEmail(email)
	var user models.User
	err := s.db.WithContext(ctx).
		Where(models.User{Email: email}).
		Attrs(models.User{Name: name}).
		FirstOrCreate(&user).Error
	if IsUniqueViolation(err) {
		// Lost a race with another first request for the same email.
		return s.GetUserByEmail(ctx, email)
	}
	if err != nil {
		return nil, translate(err, "user")
	}
	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	user.Email = normalizeEmail(user.Email)
	err := s.db.WithContext(ctx).Create(user).Error
	if IsUniqueViolation(err) {
		return fmt.Errorf("%w: user already exists", apperr.ErrInvalidArgument)
	}
	return translate(err, "user")
}

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error; err != nil {
		return nil, translate(err, "user "+id)
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).Take(&user).Error; err != nil {
		return nil, translate(err, "user")
	}
	return &user, nil
}

func (s *Store) ListFeedback(ctx context.Context, filter models.PostFilter) ([]models.Post, error) {
	q := s.db.WithContext(ctx).Preload("Author")
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}

	switch filter.Sort {
	case models.SortPopular:
		q = q.Order("upvotes desc")
	case models.SortControversial:
		q = q.Order("upvotes desc").Order("downvotes desc")
	}
	q = q.Order("created_at desc")

	posts := []models.Post{}
	if err := q.Find(&posts).Error; err != nil {
		return nil, translate(err, "posts")
	}
	if err := attachCounts(s.db.WithContext(ctx), posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// attachCounts sets Count on every post using one grouped query per table.
func attachCounts(db *gorm.DB, posts []models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}

	votes, err := countByPost(db.Model(&models.Vote{}), ids)
	if err != nil {
		return translate(err, "votes")
	}
	comments, err := countByPost(db.Model(&models.Comment{}), ids)
	if err != nil {
		return translate(err, "comments")
	}
	for i := range posts {
		posts[i].Count = &models.PostCount{Votes: votes[posts[i].ID], Comments: comments[posts[i].ID]}
	}
	return nil
}

func countByPost(q *gorm.DB, ids []string) (map[string]int, error) {
	var rows []struct {
		PostID string
		Total  int
	}
	err := q.Select("post_id, COUNT(*) AS total").
		Where("post_id IN ?", ids).
		Group("post_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	totals := make(map[string]int, len(rows))
	for _, r := range rows {
		totals[r.PostID] = r.Total
	}
	return totals, nil
}

func (s *Store) GetFeedback(ctx context.Context, id string) (*models.PostDetail, error) {
	db := s.db.WithContext(ctx)

	var detail models.PostDetail
	if err := db.Preload("Author").Where("id = ?", id).Take(&detail.Post).Error; err != nil {
		return nil, translate(err, "post "+id)
	}

	detail.Votes = []models.Vote{}
	if err := db.Where("post_id = ?", id).Order("created_at asc").Find(&detail.Votes).Error; err != nil {
		return nil, translate(err, "votes")
	}
	detail.Comments = []models.Comment{}
	if err := db.Preload("Author").Where("post_id = ?", id).Order("created_at asc").Find(&detail.Comments).Error; err != nil {
		return nil, translate(err, "comments")
	}
	return &detail, nil
}

func (s *Store) CreatePost(ctx context.Context, post *models.Post) error {
	db := s.db.WithContext(ctx)
	if _, err := s.GetUser(ctx, post.AuthorID); err != nil {
		return err
	}
	post.Upvotes, post.Downvotes = 0, 0
	if err := db.Omit(clause.Associations).Create(post).Error; err != nil {
		return translate(err, "post")
	}
	return translate(db.Preload("Author").Where("id = ?", post.ID).Take(post).Error, "post "+post.ID)
}

func (s *Store) UpdatePost(ctx context.Context, id string, req models.UpdatePostRequest) (*models.Post, error) {
	updates := map[string]any{}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if req.Category != nil {
		updates["category"] = *req.Category
	}

	db := s.db.WithContext(ctx)
	var post models.Post
	if err := db.Where("id = ?", id).Take(&post).Error; err != nil {
		return nil, translate(err, "post "+id)
	}
	if len(updates) > 0 {
		if err := db.Model(&post).Updates(updates).Error; err != nil {
			return nil, translate(err, "post "+id)
		}
	}

	if err := db.Preload("Author").Where("id = ?", id).Take(&post).Error; err != nil {
		return nil, translate(err, "post "+id)
	}
	return &post, nil
}

// DeletePost removes the post with its votes and comments in one
// transaction.
func (s *Store) DeletePost(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&models.Vote{}).Error; err != nil {
			return translate(err, "votes")
		}
		if err := tx.Where("post_id = ?", id).Delete(&models.Comment{}).Error; err != nil {
			return translate(err, "comments")
		}
		res := tx.Where("id = ?", id).Delete(&models.Post{})
		if res.Error != nil {
			return translate(res.Error, "post "+id)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: post %s", apperr.ErrNotFound, id)
		}
		return nil
	})
}

func (s *Store) CreateComment(ctx context.Context, comment *models.Comment) error {
	db := s.db.WithContext(ctx)
	var n int64
	if err := db.Model(&models.Post{}).Where("id = ?", comment.PostID).Count(&n).Error; err != nil {
		return translate(err, "post")
	}
	if n == 0 {
		return fmt.Errorf("%w: post %s", apperr.ErrNotFound, comment.PostID)
	}
	if _, err := s.GetUser(ctx, comment.AuthorID); err != nil {
		return err
	}

	if err := db.Omit(clause.Associations).Create(comment).Error; err != nil {
		return translate(err, "comment")
	}
	return translate(db.Preload("Author").Where("id = ?", comment.ID).Take(comment).Error, "comment "+comment.ID)
}

func (s *Store) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	var comment models.Comment
	if err := s.db.WithContext(ctx).Preload("Author").Where("id = ?", id).Take(&comment).Error; err != nil {
		return nil, translate(err, "comment "+id)
	}
	return &comment, nil
}

func (s *Store) UpdateComment(ctx context.Context, id, content string) (*models.Comment, error) {
	if _, err := s.GetComment(ctx, id); err != nil {
		return nil, err
	}
	err := s.db.WithContext(ctx).Model(&models.Comment{}).Where("id = ?", id).Update("content", content).Error
	if err != nil {
		return nil, translate(err, "comment "+id)
	}
	return s.GetComment(ctx, id)
}

func (s *Store) DeleteComment(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Comment{})
	if res.Error != nil {
		return translate(res.Error, "comment "+id)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: comment %s", apperr.ErrNotFound, id)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
