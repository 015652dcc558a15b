package data

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/zenmed/carechat/internal/db"
)

func setupDB(t *testing.T) *db.Client {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set; skipping integration test")
	}

	ctx := context.Background()
	c, err := db.New(ctx, uri)
	if err != nil {
		t.Fatalf("db.New failed: %v", err)
	}

	// ensure clean collections in case previous runs left data
	_ = c.UsersCollection().Drop(ctx)

	return c
}

func TestUsersCreateAndGet(t *testing.T) {
	// no env loader; require MONGODB_URI to be set externally

	c := setupDB(t)
	defer func() { _ = c.Close(context.Background()) }()

	users := NewUsersStore(c.UsersCollection())

	ctx := context.Background()
	email := time.Now().UTC().Format("20060102-150405") + "-integration@example.com"

	user := &User{
		ID:       "it-u1",
		Email:    email,
		Name:     "Integration Test",
		Role:     RoleDoctor,
		Password: "hashed-password",
	}
	if err := users.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	// Get by email
	u2, err := users.GetUserByEmail(ctx, email)
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if u2.Email != email || u2.Role != RoleDoctor {
		t.Fatalf("GetUserByEmail returned wrong user: %s/%s", u2.Email, u2.Role)
	}

	// Get by id
	got, err := users.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	if got.Email != email {
		t.Fatalf("GetUserByID returned wrong email: %s", got.Email)
	}

	// Unknown lookups map to ErrNotFound.
	if _, err := users.GetUserByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
