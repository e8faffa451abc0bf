package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type VoteType string

const (
	VoteUp   VoteType = "upvote"
	VoteDown VoteType = "downvote"
)

func (t VoteType) Valid() bool {
	return t == VoteUp || t == VoteDown
}

// Vote is one ledger row. A user holds at most one vote per post.
type Vote struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Type      VoteType  `gorm:"size:16;not null" json:"type"`
	UserID    string    `gorm:"size:36;not null;uniqueIndex:idx_vote_user_post" json:"userId"`
	User      User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	PostID    string    `gorm:"size:36;not null;uniqueIndex:idx_vote_user_post;index" json:"postId"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (v *Vote) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}

type VoteRequest struct {
	PostID string   `json:"postId" binding:"required"`
	UserID string   `json:"userId" binding:"required"`
	Type   VoteType `json:"type" binding:"required"`
}
