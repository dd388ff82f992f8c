package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/sql-snippets/internal/apperror"
	"github.com/sakif/sql-snippets/internal/model"
)

// upsertTestUser creates a user and fails the test if it errors.
func upsertTestUser(t *testing.T, db *DB, githubID int64, login string) *model.User {
	t.Helper()
	user := &model.User{
		GitHubID:  githubID,
		Login:     login,
		Email:     login + "@example.com",
		AvatarURL: "https://avatars.githubusercontent.com/u/123",
	}
	if err := db.Upsert(context.Background(), user); err != nil {
		t.Fatalf("failed to upsert test user: %v", err)
	}
	return user
}

// =========================================================================
// UPSERT TESTS
// =========================================================================

func TestUserUpsert_NewUser(t *testing.T) {
	db := newTestDB(t)

	user := &model.User{
		GitHubID:  55555,
		Login:     "new_upsert_user",
		Email:     "new@example.com",
		AvatarURL: "https://example.com/new.png",
	}

	if err := db.Upsert(context.Background(), user); err != nil {
		t.Fatalf("Upsert() (new) error = %v", err)
	}

	if user.ID == "" {
		t.Error("Upsert() did not set user.ID for new user")
	}
	if user.CreatedAt.IsZero() {
		t.Error("Upsert() did not set user.CreatedAt for new user")
	}
	if user.IsPaid {
		t.Error("Upsert() new user IsPaid = true, want false")
	}

	found, err := db.GetUserByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetUserByID() after Upsert: %v", err)
	}
	if found.Login != "new_upsert_user" {
		t.Errorf("Login = %q, want %q", found.Login, "new_upsert_user")
	}
}

func TestUserUpsert_ExistingUser_UpdatesProfile(t *testing.T) {
	db := newTestDB(t)

	first := upsertTestUser(t, db, 66666, "original_login")
	originalID := first.ID

	// Second login: same GitHub account, updated profile.
	second := &model.User{
		GitHubID:  66666,
		Login:     "updated_login",
		Email:     "new@example.com",
		AvatarURL: "https://example.com/new.png",
	}
	if err := db.Upsert(context.Background(), second); err != nil {
		t.Fatalf("Upsert() second login: %v", err)
	}

	if second.ID != originalID {
		t.Errorf("Upsert() changed user ID: got %q, want %q", second.ID, originalID)
	}

	found, err := db.GetUserByID(context.Background(), originalID)
	if err != nil {
		t.Fatalf("GetUserByID() after second Upsert: %v", err)
	}
	if found.Login != "updated_login" {
		t.Errorf("Login after upsert = %q, want %q", found.Login, "updated_login")
	}
	if found.Email != "new@example.com" {
		t.Errorf("Email after upsert = %q, want %q", found.Email, "new@example.com")
	}
}

func TestUserUpsert_DoesNotChangeCreatedAt(t *testing.T) {
	db := newTestDB(t)

	usr := upsertTestUser(t, db, 77777, "timecheck")
	originalCreatedAt := usr.CreatedAt

	usr2 := &model.User{GitHubID: 77777, Login: "timecheck_updated"}
	if err := db.Upsert(context.Background(), usr2); err != nil {
		t.Fatalf("Upsert() second: %v", err)
	}

	if !usr2.CreatedAt.Equal(originalCreatedAt) {
		t.Errorf("Upsert() changed CreatedAt: got %v, want %v", usr2.CreatedAt, originalCreatedAt)
	}
}

func TestUserUpsert_KeepsPaidFlag(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	usr := upsertTestUser(t, db, 12121, "payer")
	if err := db.SetPaid(ctx, usr.ID, true); err != nil {
		t.Fatalf("SetPaid() error = %v", err)
	}

	again := &model.User{GitHubID: 12121, Login: "payer"}
	if err := db.Upsert(ctx, again); err != nil {
		t.Fatalf("Upsert() after SetPaid: %v", err)
	}
	if !again.IsPaid {
		t.Error("Upsert() reset IsPaid on an existing paid user")
	}
}

// =========================================================================
// GET BY ID TESTS
// =========================================================================

func TestUserGetByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByID(context.Background(), "nonexistent-id")
	if err == nil {
		t.Fatal("GetUserByID() should have returned an error for nonexistent ID")
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// SET PAID TESTS
// =========================================================================

func TestSetPaid(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	usr := upsertTestUser(t, db, 31337, "upgrader")

	if err := db.SetPaid(ctx, usr.ID, true); err != nil {
		t.Fatalf("SetPaid(true) error = %v", err)
	}
	found, err := db.GetUserByID(ctx, usr.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if !found.IsPaid {
		t.Error("IsPaid = false after SetPaid(true)")
	}

	if err := db.SetPaid(ctx, usr.ID, false); err != nil {
		t.Fatalf("SetPaid(false) error = %v", err)
	}
	found, err = db.GetUserByID(ctx, usr.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if found.IsPaid {
		t.Error("IsPaid = true after SetPaid(false)")
	}
}

func TestSetPaid_UnknownUser(t *testing.T) {
	db := newTestDB(t)

	err := db.SetPaid(context.Background(), "nobody", true)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("SetPaid() error = %v, want ErrNotFound", err)
	}
}
