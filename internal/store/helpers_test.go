package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/erazemk/menjalnica/internal/model"
	"github.com/google/uuid"
)

func seedUser(t *testing.T, database *sql.DB, email string) *model.User {
	t.Helper()
	u, err := CreateUser(context.Background(), database, &model.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: "hash",
		CreatedAt:    1,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func seedItem(t *testing.T, database *sql.DB, owner, title string, createdAt int64) *model.Item {
	t.Helper()
	it, err := InsertItem(context.Background(), database, &model.Item{
		ID:          uuid.NewString(),
		UserID:      owner,
		Title:       title,
		Description: "A perfectly fine " + title,
		ImageURL:    "http://example.test/" + title + ".jpg",
		Category:    "Other",
		Condition:   "good",
		CreatedAt:   createdAt,
	})
	if err != nil {
		t.Fatalf("InsertItem: %v", err)
	}
	return it
}
