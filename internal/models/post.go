package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Category string

const (
	CategoryFeatureRequest Category = "feature-request"
	CategoryBugReport      Category = "bug-report"
	CategoryImprovement    Category = "improvement"
	CategoryOther          Category = "other"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryFeatureRequest, CategoryBugReport, CategoryImprovement, CategoryOther:
		return true
	}
	return false
}

type Status string

const (
	StatusUnderReview Status = "under-review"
	StatusPlanned     Status = "planned"
	StatusCompleted   Status = "completed"
	StatusRejected    Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusUnderReview, StatusPlanned, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

// CounterField names one of the two denormalized vote counters on a post.
type CounterField string

const (
	FieldUpvotes   CounterField = "upvotes"
	FieldDownvotes CounterField = "downvotes"
)

// Post is a feedback post. Upvotes and Downvotes are a cached projection of
// the votes table and are only written through the vote ledger.
type Post struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Title       string    `gorm:"size:300;not null" json:"title"`
	Description string    `gorm:"type:text;not null" json:"description"`
	Category    Category  `gorm:"size:32;index;not null;default:'feature-request'" json:"category"`
	Status      Status    `gorm:"size:32;index;not null;default:'under-review'" json:"status"`
	Upvotes     int       `gorm:"not null;default:0;check:chk_posts_upvotes,upvotes >= 0" json:"upvotes"`
	Downvotes   int       `gorm:"not null;default:0;check:chk_posts_downvotes,downvotes >= 0" json:"downvotes"`
	AuthorID    string    `gorm:"size:36;index;not null" json:"authorId"`
	Author      User      `gorm:"foreignKey:AuthorID" json:"author"`
	CreatedAt   time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// Count is filled in by listings only.
	Count *PostCount `gorm:"-" json:"_count,omitempty"`
}

// PostCount holds how many ledger rows and comments a post has.
type PostCount struct {
	Votes    int `json:"votes"`
	Comments int `json:"comments"`
}

func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Category == "" {
		p.Category = CategoryFeatureRequest
	}
	if p.Status == "" {
		p.Status = StatusUnderReview
	}
	return nil
}

// Counter returns the value of the named counter.
func (p Post) Counter(field CounterField) int {
	if field == FieldDownvotes {
		return p.Downvotes
	}
	return p.Upvotes
}

type CreatePostRequest struct {
	Title       string   `json:"title" binding:"required"`
	Description string   `json:"description" binding:"required"`
	Category    Category `json:"category"`
	AuthorID    string   `json:"authorId" binding:"required"`
}

// UpdatePostRequest carries the admin-editable fields; nil means unchanged.
type UpdatePostRequest struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Status      *Status   `json:"status"`
	Category    *Category `json:"category"`
}

// PostDetail is a post with its ledger rows and discussion.
type PostDetail struct {
	Post
	Votes    []Vote    `json:"votes"`
	Comments []Comment `json:"comments"`
}

// Sort orders a feedback listing.
type Sort string

const (
	SortNewest        Sort = "newest"
	SortPopular       Sort = "popular"
	SortControversial Sort = "controversial"
)

func (s Sort) Valid() bool {
	return s == SortNewest || s == SortPopular || s == SortControversial
}

// PostFilter narrows a feedback listing. Empty fields match everything.
type PostFilter struct {
	Status   Status
	Category Category
	Sort     Sort
}
