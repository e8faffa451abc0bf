// Command seed creates the demo accounts and a few feedback posts.
package main

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/emilythestrangee/feedbackloop/backend/internal/apperr"
	"github.com/emilythestrangee/feedbackloop/backend/internal/auth"
	"github.com/emilythestrangee/feedbackloop/backend/internal/config"
	"github.com/emilythestrangee/feedbackloop/backend/internal/database"
	"github.com/emilythestrangee/feedbackloop/backend/internal/models"
)

type seedUser struct {
	email    string
	name     string
	password string
	admin    bool
}

var users = []seedUser{
	{email: "user@example.com", name: "Demo User", password: "password123"},
	{email: "admin@example.com", name: "Admin", password: "admin123", admin: true},
}

var posts = []models.Post{
	{Title: "Dark mode", Description: "Add a dark theme to the board.", Category: models.CategoryFeatureRequest},
	{Title: "Vote button flickers", Description: "The vote count jumps back for a moment after voting.", Category: models.CategoryBugReport},
	{Title: "Faster search", Description: "Filtering by category should not reload the page.", Category: models.CategoryImprovement},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	cfg.SetupLogging()

	repo, err := database.Open(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to open database")
	}
	defer repo.Close()

	ctx := context.Background()
	var author *models.User
	for _, su := range users {
		u, err := ensureUser(ctx, repo, su)
		if err != nil {
			log.WithError(err).WithField("email", su.email).Fatal("failed to seed user")
		}
		if author == nil {
			author = u
		}
	}

	existing, err := repo.ListFeedback(ctx, models.PostFilter{})
	if err != nil {
		log.WithError(err).Fatal("failed to list feedback")
	}
	if len(existing) > 0 {
		log.WithField("posts", len(existing)).Info("feedback already present, skipping posts")
		return
	}
	for _, p := range posts {
		p.AuthorID = author.ID
		if err := repo.CreatePost(ctx, &p); err != nil {
			log.WithError(err).WithField("title", p.Title).Fatal("failed to seed post")
		}
	}
	log.WithField("posts", len(posts)).Info("seed complete")
}

func ensureUser(ctx context.Context, repo database.Repository, su seedUser) (*models.User, error) {
	hash, err := auth.HashPassword(su.password)
	if err != nil {
		return nil, err
	}
	u := &models.User{Email: su.email, Name: su.name, Password: hash, IsAdmin: su.admin}
	err = repo.CreateUser(ctx, u)
	if errors.Is(err, apperr.ErrInvalidArgument) {
		log.WithField("email", su.email).Info("user already exists")
		return repo.GetUserByEmail(ctx, su.email)
	}
	if err != nil {
		return nil, err
	}
	log.WithField("email", su.email).Info("user created")
	return u, nil
}
