package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/learnmade/internal/apperror"
	"github.com/sakif/learnmade/internal/model"
)

func createTestUser(t *testing.T, u *UserStore, email string, role model.Role) *model.User {
	t.Helper()
	user := &model.User{Email: email, PasswordHash: "$2a$04$hash", Role: role}
	if err := u.Create(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

func TestUserCreate(t *testing.T) {
	u := newTestDB(t).Users()

	user := &model.User{Email: "test@example.com"}
	if err := u.Create(context.Background(), user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if user.ID == "" {
		t.Error("Create() did not set ID")
	}
	if user.Role != model.RoleUser {
		t.Errorf("Role = %q, want default %q", user.Role, model.RoleUser)
	}
}

func TestUserCreate_DuplicateEmail(t *testing.T) {
	u := newTestDB(t).Users()
	createTestUser(t, u, "test@example.com", model.RoleUser)

	err := u.Create(context.Background(), &model.User{Email: "test@example.com"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("Create() error = %v, want ErrConflict", err)
	}
}

func TestUserLookups(t *testing.T) {
	u := newTestDB(t).Users()
	created := createTestUser(t, u, "admin@example.com", model.RoleAdmin)

	byID, err := u.GetUserByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if byID.Email != "admin@example.com" || byID.Role != model.RoleAdmin || byID.GitHubID != nil {
		t.Errorf("GetUserByID() = %+v", byID)
	}

	byEmail, err := u.GetByEmail(context.Background(), "admin@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if byEmail.ID != created.ID || byEmail.PasswordHash != "$2a$04$hash" {
		t.Errorf("GetByEmail() = %+v", byEmail)
	}

	if _, err := u.GetUserByID(context.Background(), "nope"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID(nope) error = %v, want ErrNotFound", err)
	}
}

func TestUserUpdate_RoleAndGitHubLink(t *testing.T) {
	u := newTestDB(t).Users()
	user := createTestUser(t, u, "dev@example.com", model.RoleUser)

	ghID := int64(12345)
	user.Role = model.RoleAdmin
	user.GitHubID = &ghID
	if err := u.Update(context.Background(), user); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := u.GetByGitHubID(context.Background(), 12345)
	if err != nil {
		t.Fatalf("GetByGitHubID() error = %v", err)
	}
	if got.ID != user.ID || got.Role != model.RoleAdmin {
		t.Errorf("GetByGitHubID() = %+v", got)
	}
	if got.GitHubID == nil || *got.GitHubID != 12345 {
		t.Errorf("GitHubID = %v, want 12345", got.GitHubID)
	}
}

func TestUserUpdate_NotFound(t *testing.T) {
	u := newTestDB(t).Users()

	err := u.Update(context.Background(), &model.User{ID: "ghost", Role: model.RoleUser})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
}

func TestUser_ManyWithoutGitHub(t *testing.T) {
	u := newTestDB(t).Users()

	// NULL github_id values never collide on the UNIQUE index.
	createTestUser(t, u, "a@example.com", model.RoleUser)
	createTestUser(t, u, "b@example.com", model.RoleUser)
}
