package store

import (
	"context"
	"testing"

	"github.com/erazemk/gradilisce/internal/apperr"
	"github.com/erazemk/gradilisce/internal/db"
	"github.com/erazemk/gradilisce/internal/model"
)

func TestCreateAndGetUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, err := CreateUser(ctx, database, "testuser", "hash123", model.RoleUser)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Username != "testuser" {
		t.Errorf("expected username 'testuser', got %q", user.Username)
	}
	if user.Role != model.RoleUser {
		t.Errorf("expected role 'user', got %q", user.Role)
	}

	got, err := GetUser(ctx, database, user.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Username != "testuser" {
		t.Errorf("expected username 'testuser', got %q", got.Username)
	}
}

func TestGetUserByUsername(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	CreateUser(ctx, database, "alice", "hash", model.RoleAdmin)

	user, err := GetUserByUsername(ctx, database, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if user == nil {
		t.Fatal("expected user, got nil")
	}
	if user.Username != "alice" {
		t.Errorf("expected 'alice', got %q", user.Username)
	}

	missing, err := GetUserByUsername(ctx, database, "bob")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing user")
	}
}

func TestListUsers(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	CreateUser(ctx, database, "a", "hash", model.RoleUser)
	CreateUser(ctx, database, "b", "hash", model.RoleManager)

	users, err := ListUsers(ctx, database)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("expected 2 users, got %d", len(users))
	}
}

func TestDeleteUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "deleteme", "hash", model.RoleUser)
	DeleteUser(ctx, database, user.ID)

	users, _ := ListUsers(ctx, database)
	if len(users) != 0 {
		t.Errorf("expected 0 users after delete, got %d", len(users))
	}
}

func TestUpdateUserPassword(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "pwuser", "oldhash", model.RoleUser)
	UpdateUserPassword(ctx, database, user.ID, "newhash")

	got, _ := GetUser(ctx, database, user.ID)
	if got.PasswordHash != "newhash" {
		t.Errorf("expected password hash 'newhash', got %q", got.PasswordHash)
	}
}

func TestCannotRemoveLastAdmin(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	admin, _ := CreateUser(ctx, database, "root", "hash", model.RoleAdmin)

	if err := DeleteUser(ctx, database, admin.ID); !apperr.Is(err, apperr.CodeInvalidState) {
		t.Fatalf("DeleteUser last admin: got %v, want INVALID_STATE", err)
	}
	if err := UpdateUser(ctx, database, admin.ID, model.RoleUser); !apperr.Is(err, apperr.CodeInvalidState) {
		t.Fatalf("demoting last admin: got %v, want INVALID_STATE", err)
	}

	CreateUser(ctx, database, "second", "hash", model.RoleAdmin)
	if err := UpdateUser(ctx, database, admin.ID, model.RoleManager); err != nil {
		t.Fatalf("demoting with another admin present: %v", err)
	}
}

func TestUsernameReusableAfterDelete(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	old, _ := CreateUser(ctx, database, "reuse", "old", model.RoleUser)
	if _, err := CreateUser(ctx, database, "reuse", "dup", model.RoleUser); !apperr.Is(err, apperr.CodeInvalidState) {
		t.Fatalf("duplicate username: got %v, want INVALID_STATE", err)
	}

	DeleteUser(ctx, database, old.ID)
	fresh, err := CreateUser(ctx, database, "reuse", "new", model.RoleUser)
	if err != nil {
		t.Fatalf("CreateUser after delete: %v", err)
	}

	got, _ := GetUserByUsername(ctx, database, "reuse")
	if got.ID != fresh.ID {
		t.Errorf("GetUserByUsername returned %d, want active user %d", got.ID, fresh.ID)
	}
}
