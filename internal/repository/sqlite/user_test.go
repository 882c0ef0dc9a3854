package sqlite

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sakif/csstoy/internal/apperror"
	"github.com/sakif/csstoy/internal/model"
)

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestUserCreate(t *testing.T) {
	db := newTestDB(t)

	user := &model.User{
		Username:     "testuser",
		Email:        "test@example.com",
		PasswordHash: "hash",
	}
	if err := db.Users().Create(context.Background(), user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if user.ID == "" {
		t.Error("Create() did not set user.ID")
	}
	if user.CreatedAt.IsZero() {
		t.Error("Create() did not set user.CreatedAt")
	}
	if user.Role != model.RoleUser {
		t.Errorf("Role = %q, want %q", user.Role, model.RoleUser)
	}
	if user.Avatar != model.DefaultAvatar {
		t.Errorf("Avatar = %q, want %q", user.Avatar, model.DefaultAvatar)
	}
}

func TestUserCreate_Duplicates(t *testing.T) {
	tests := []struct {
		name        string
		username    string
		email       string
		wantMessage string
	}{
		{"same username", "taken", "other@example.com", "username is already taken"},
		{"same email", "someoneelse", "taken@example.com", "email is already registered"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			createTestUser(t, db, "taken")

			err := db.Users().Create(context.Background(), &model.User{Username: tt.username, Email: tt.email})
			if !errors.Is(err, apperror.ErrConflict) {
				t.Fatalf("Create() error = %v, want ErrConflict", err)
			}
			if err.Error() != tt.wantMessage {
				t.Errorf("message = %q, want %q", err.Error(), tt.wantMessage)
			}
		})
	}
}

// =========================================================================
// LOOKUPS
// =========================================================================

func TestUserLookups(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	created := createTestUser(t, db, "lookup")

	byID, err := db.Users().GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	byEmail, err := db.Users().GetByEmail(ctx, "lookup@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	byName, err := db.Users().GetByUsername(ctx, "lookup")
	if err != nil {
		t.Fatalf("GetByUsername() error = %v", err)
	}

	for _, u := range []*model.User{byID, byEmail, byName} {
		if u.ID != created.ID {
			t.Errorf("got ID %q, want %q", u.ID, created.ID)
		}
	}
	if byID.PasswordHash != "not-a-real-hash" {
		t.Errorf("PasswordHash = %q, want stored hash", byID.PasswordHash)
	}
	if byID.LastLogin != nil {
		t.Errorf("LastLogin = %v, want nil for a fresh account", byID.LastLogin)
	}
}

func TestUserGetByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Users().GetByID(context.Background(), "nonexistent")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// UPDATES
// =========================================================================

func TestUserUpdateProfile(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "before")
	createTestUser(t, db, "occupied")

	if err := db.Users().UpdateProfile(ctx, user.ID, "after", ""); err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	got, err := db.Users().GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Username != "after" {
		t.Errorf("Username = %q, want after", got.Username)
	}
	if got.Avatar != model.DefaultAvatar {
		t.Errorf("Avatar = %q, empty input must keep the old value", got.Avatar)
	}

	err = db.Users().UpdateProfile(ctx, user.ID, "occupied", "")
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("UpdateProfile(taken name) error = %v, want ErrConflict", err)
	}
}

func TestUserUpdatePasswordAndLastLogin(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "pw")

	if err := db.Users().UpdatePassword(ctx, user.ID, "new-hash"); err != nil {
		t.Fatalf("UpdatePassword() error = %v", err)
	}
	at := time.Now().UTC().Truncate(time.Second)
	if err := db.Users().TouchLastLogin(ctx, user.ID, at); err != nil {
		t.Fatalf("TouchLastLogin() error = %v", err)
	}

	got, err := db.Users().GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.PasswordHash != "new-hash" {
		t.Errorf("PasswordHash = %q, want new-hash", got.PasswordHash)
	}
	if got.LastLogin == nil || !got.LastLogin.Equal(at) {
		t.Errorf("LastLogin = %v, want %v", got.LastLogin, at)
	}

	if err := db.Users().UpdatePassword(ctx, "ghost", "x"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("UpdatePassword(ghost) error = %v, want ErrNotFound", err)
	}
}

func TestUserSetRole(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "boss")

	if err := db.Users().SetRole(ctx, "boss", model.RoleAdmin); err != nil {
		t.Fatalf("SetRole() error = %v", err)
	}
	got, err := db.Users().GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !got.IsAdmin() {
		t.Errorf("Role = %q, want admin", got.Role)
	}

	if err := db.Users().SetRole(ctx, "nobody", model.RoleAdmin); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("SetRole(nobody) error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// GITHUB UPSERT
// =========================================================================

func TestUpsertGitHub_CreatesThenReuses(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first, err := db.Users().UpsertGitHub(ctx, 4242, "octo", "octo@example.com", "https://avatars/1")
	if err != nil {
		t.Fatalf("UpsertGitHub() error = %v", err)
	}
	if first.GitHubID == nil || *first.GitHubID != 4242 {
		t.Errorf("GitHubID = %v, want 4242", first.GitHubID)
	}

	second, err := db.Users().UpsertGitHub(ctx, 4242, "octo", "octo@example.com", "https://avatars/2")
	if err != nil {
		t.Fatalf("UpsertGitHub() second error = %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second login created a new account: %s != %s", second.ID, first.ID)
	}
	if second.Avatar != "https://avatars/2" {
		t.Errorf("Avatar = %q, want refreshed avatar", second.Avatar)
	}
}

func TestUpsertGitHub_UsernameCollision(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "octo")

	user, err := db.Users().UpsertGitHub(context.Background(), 7, "octo", "", "")
	if err != nil {
		t.Fatalf("UpsertGitHub() error = %v", err)
	}
	if !strings.HasPrefix(user.Username, "octo-") {
		t.Errorf("Username = %q, want octo-<suffix>", user.Username)
	}
	if !strings.HasSuffix(user.Email, "@users.noreply.github.com") {
		t.Errorf("Email = %q, want a noreply placeholder", user.Email)
	}
}
