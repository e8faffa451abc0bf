package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/emilythestrangee/feedbackloop/backend/internal/apperr"
)

const MaxCommentLength = 5000

type Comment struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	AuthorID  string    `gorm:"size:36;index;not null" json:"authorId"`
	Author    User      `gorm:"foreignKey:AuthorID" json:"author"`
	PostID    string    `gorm:"size:36;index;not null" json:"postId"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// ValidateCommentContent enforces 1..5000 characters with something other
// than whitespace.
func ValidateCommentContent(content string) error {
	if strings.TrimSpace(content) == "" || utf8.RuneCountInString(content) > MaxCommentLength {
		return fmt.Errorf("%w: comment must be between 1 and %d characters", apperr.ErrInvalidArgument, MaxCommentLength)
	}
	return nil
}

type CreateCommentRequest struct {
	PostID   string `json:"postId" binding:"required"`
	AuthorID string `json:"authorId" binding:"required"`
	Content  string `json:"content" binding:"required"`
}

type UpdateCommentRequest struct {
	Content string `json:"content" binding:"required"`
}
