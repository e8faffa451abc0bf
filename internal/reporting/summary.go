package reporting

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/emilythestrangee/feedbackloop/backend/internal/apperr"
	"github.com/emilythestrangee/feedbackloop/backend/internal/models"
)

// Source reads the entities created inside a window.
type Source interface {
	ListPosts(ctx context.Context, w Window) ([]models.Post, error)
	ListVotes(ctx context.Context, w Window) ([]models.Vote, error)
	ListComments(ctx context.Context, w Window) ([]models.Comment, error)
}

type CategoryCounts struct {
	FeatureRequest int `json:"featureRequest"`
	BugReport      int `json:"bugReport"`
	Improvement    int `json:"improvement"`
	Other          int `json:"other"`
}

func (c CategoryCounts) Total() int {
	return c.FeatureRequest + c.BugReport + c.Improvement + c.Other
}

// StatusCounts groups feedback by status. Unrecognized collects stored
// statuses outside the known set and is omitted when zero.
type StatusCounts struct {
	UnderReview  int `json:"underReview"`
	Planned      int `json:"planned"`
	Completed    int `json:"completed"`
	Rejected     int `json:"rejected"`
	Unrecognized int `json:"unrecognized,omitempty"`
}

func (s StatusCounts) Total() int {
	return s.UnderReview + s.Planned + s.Completed + s.Rejected + s.Unrecognized
}

type Stats struct {
	WeekStart          time.Time      `json:"weekStart"`
	WeekEnd            time.Time      `json:"weekEnd"`
	TotalFeedback      int            `json:"totalFeedback"`
	TotalVotes         int            `json:"totalVotes"`
	TotalComments      int            `json:"totalComments"`
	FeedbackByCategory CategoryCounts `json:"feedbackByCategory"`
	FeedbackByStatus   StatusCounts   `json:"feedbackByStatus"`
	Upvotes            int            `json:"upvotes"`
	Downvotes          int            `json:"downvotes"`
}

type Summary struct {
	Stats    Stats            `json:"stats"`
	Feedback []models.Post    `json:"feedback"`
	Votes    []models.Vote    `json:"votes"`
	Comments []models.Comment `json:"comments"`
}

// Aggregate counts what was read for w. It never fails: every post lands
// in exactly one category bucket and one status bucket.
func Aggregate(w Window, posts []models.Post, votes []models.Vote, comments []models.Comment) *Summary {
	if posts == nil {
		posts = []models.Post{}
	}
	if votes == nil {
		votes = []models.Vote{}
	}
	if comments == nil {
		comments = []models.Comment{}
	}

	stats := Stats{
		WeekStart:     w.Start,
		WeekEnd:       w.End,
		TotalFeedback: len(posts),
		TotalVotes:    len(votes),
		TotalComments: len(comments),
	}

	for _, p := range posts {
		switch p.Category {
		case models.CategoryFeatureRequest:
			stats.FeedbackByCategory.FeatureRequest++
		case models.CategoryBugReport:
			stats.FeedbackByCategory.BugReport++
		case models.CategoryImprovement:
			stats.FeedbackByCategory.Improvement++
		default:
			stats.FeedbackByCategory.Other++
		}

		switch p.Status {
		case models.StatusUnderReview:
			stats.FeedbackByStatus.UnderReview++
		case models.StatusPlanned:
			stats.FeedbackByStatus.Planned++
		case models.StatusCompleted:
			stats.FeedbackByStatus.Completed++
		case models.StatusRejected:
			stats.FeedbackByStatus.Rejected++
		default:
			stats.FeedbackByStatus.Unrecognized++
		}
	}

	for _, v := range votes {
		switch v.Type {
		case models.VoteUp:
			stats.Upvotes++
		case models.VoteDown:
			stats.Downvotes++
		}
	}

	return &Summary{Stats: stats, Feedback: posts, Votes: votes, Comments: comments}
}

type Reporter struct {
	source   Source
	logger   log.FieldLogger
	location *time.Location
	now      func() time.Time
	timeout  time.Duration
}

type Option func(*Reporter)

// WithLocation sets the zone whose Monday starts the week.
func WithLocation(loc *time.Location) Option {
	return func(r *Reporter) {
		if loc != nil {
			r.location = loc
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) {
		if now != nil {
			r.now = now
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(r *Reporter) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithLogger(logger log.FieldLogger) Option {
	return func(r *Reporter) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewReporter(source Source, opts ...Option) *Reporter {
	r := &Reporter{
		source:   source,
		logger:   log.StandardLogger(),
		location: time.UTC,
		now:      time.Now,
		timeout:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CurrentWeek is the week containing the reporter's now.
func (r *Reporter) CurrentWeek() Window {
	return r.WeekFor(r.now())
}

// WeekFor is the week containing the instant t, in the reporter's zone.
func (r *Reporter) WeekFor(t time.Time) Window {
	return WeekOf(t.In(r.location))
}

// DateWeek is the week containing the calendar day of day, read in the
// reporter's zone.
func (r *Reporter) DateWeek(day time.Time) Window {
	y, m, d := day.Date()
	return WeekOf(time.Date(y, m, d, 12, 0, 0, 0, r.location))
}

func (r *Reporter) Location() *time.Location {
	return r.location
}

// Weekly reports on the current week.
func (r *Reporter) Weekly(ctx context.Context) (*Summary, error) {
	return r.Build(ctx, r.CurrentWeek())
}

// ForDate reports on the week containing day, read in the reporter's zone.
func (r *Reporter) ForDate(ctx context.Context, day time.Time) (*Summary, error) {
	return r.Build(ctx, r.DateWeek(day))
}

// Build reads posts, votes and comments created inside w and aggregates
// them.
func (r *Reporter) Build(ctx context.Context, w Window) (*Summary, error) {
	if !w.Start.Before(w.End) {
		return nil, fmt.Errorf("%w: empty report window %s", apperr.ErrInvalidArgument, w)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	posts, err := r.source.ListPosts(ctx, w)
	if err != nil {
		return nil, r.readFailed("posts", w, err)
	}
	votes, err := r.source.ListVotes(ctx, w)
	if err != nil {
		return nil, r.readFailed("votes", w, err)
	}
	comments, err := r.source.ListComments(ctx, w)
	if err != nil {
		return nil, r.readFailed("comments", w, err)
	}

	return Aggregate(w, posts, votes, comments), nil
}

func (r *Reporter) readFailed(what string, w Window, err error) error {
	r.logger.WithError(err).WithFields(log.Fields{
		"component":  "weekly_report",
		"entity":     what,
		"week_start": w.Start,
	}).Error("failed to read report data")
	return fmt.Errorf("list %s for %s: %w", what, w, apperr.FromContext(err))
}
