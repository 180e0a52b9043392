package service

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/flat-swap/internal/apperror"
	"github.com/sakif/flat-swap/internal/model"
)

func strp(s string) *string { return &s }

func seedUser(repo *fakeUserRepo, id, subject string) *model.User {
	return repo.add(&model.User{ID: id, Subject: subject, IsActive: true})
}

func TestUserUpdate_Self(t *testing.T) {
	repo := newFakeUserRepo()
	seedUser(repo, "u-1", "auth0|abc123")
	svc := NewUserService(repo, newFakeListingRepo(), testLogger())

	user, err := svc.Update(context.Background(), "u-1", "u-1", model.UserUpdate{
		Email:     strp("jane@example.com"),
		FirstName: strp("Jane"),
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if user.Email == nil || *user.Email != "jane@example.com" {
		t.Errorf("Email = %v, want jane@example.com", user.Email)
	}
	if !user.ProfileComplete {
		t.Error("ProfileComplete = false, want true once email and first name are set")
	}
}

func TestUserUpdate_OtherUserForbidden(t *testing.T) {
	repo := newFakeUserRepo()
	seedUser(repo, "u-1", "auth0|abc123")
	svc := NewUserService(repo, newFakeListingRepo(), testLogger())

	_, err := svc.Update(context.Background(), "u-2", "u-1", model.UserUpdate{
		Email: strp("takeover@example.com"),
	})
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("Update() error = %v, want ErrForbidden", err)
	}
}

func TestUserUpdate_EmptyEmailRejected(t *testing.T) {
	repo := newFakeUserRepo()
	seedUser(repo, "u-1", "auth0|abc123")
	svc := NewUserService(repo, newFakeListingRepo(), testLogger())

	_, err := svc.Update(context.Background(), "u-1", "u-1", model.UserUpdate{
		Email: strp("   "),
	})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Update() error = %v, want ErrValidation", err)
	}
}

func TestUserUpdate_PartialKeepsOtherFields(t *testing.T) {
	repo := newFakeUserRepo()
	u := seedUser(repo, "u-1", "auth0|abc123")
	u.Email = strp("jane@example.com")
	u.FirstName = strp("Jane")
	svc := NewUserService(repo, newFakeListingRepo(), testLogger())

	user, err := svc.Update(context.Background(), "u-1", "u-1", model.UserUpdate{
		LastName: strp("Doe"),
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if user.Email == nil || *user.Email != "jane@example.com" {
		t.Errorf("Email = %v, want untouched jane@example.com", user.Email)
	}
	if user.LastName == nil || *user.LastName != "Doe" {
		t.Errorf("LastName = %v, want Doe", user.LastName)
	}
}

func TestUserDelete_Self(t *testing.T) {
	repo := newFakeUserRepo()
	seedUser(repo, "u-1", "auth0|abc123")
	svc := NewUserService(repo, newFakeListingRepo(), testLogger())

	if err := svc.Delete(context.Background(), "u-1", "u-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetByID(context.Background(), "u-1"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("user still present after delete: %v", err)
	}
}

func TestUserDelete_OtherUserForbidden(t *testing.T) {
	repo := newFakeUserRepo()
	seedUser(repo, "u-1", "auth0|abc123")
	svc := NewUserService(repo, newFakeListingRepo(), testLogger())

	if err := svc.Delete(context.Background(), "u-2", "u-1"); !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("Delete() error = %v, want ErrForbidden", err)
	}
}

func TestUserDelete_WithListingsConflict(t *testing.T) {
	users := newFakeUserRepo()
	seedUser(users, "u-1", "auth0|abc123")

	listings := newFakeListingRepo()
	if err := listings.Create(context.Background(), validUnitListing("u-1")); err != nil {
		t.Fatalf("seeding listing: %v", err)
	}

	svc := NewUserService(users, listings, testLogger())

	err := svc.Delete(context.Background(), "u-1", "u-1")
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("Delete() with owned listings error = %v, want ErrConflict", err)
	}
	if _, gerr := users.GetByID(context.Background(), "u-1"); gerr != nil {
		t.Errorf("conflicted delete must leave the user intact: %v", gerr)
	}
}

func TestUserList_ClampsLimit(t *testing.T) {
	repo := newFakeUserRepo()
	seedUser(repo, "u-1", "auth0|a")
	svc := NewUserService(repo, newFakeListingRepo(), testLogger())

	// The fake ignores pagination, so this just exercises the clamp paths.
	if _, err := svc.List(context.Background(), -5, -10); err != nil {
		t.Errorf("List() with negative paging error = %v", err)
	}
	if _, err := svc.List(context.Background(), MaxListLimit+500, 0); err != nil {
		t.Errorf("List() with oversized limit error = %v", err)
	}
}

func TestUserGetByID_EmptyID(t *testing.T) {
	svc := NewUserService(newFakeUserRepo(), newFakeListingRepo(), testLogger())

	_, err := svc.GetByID(context.Background(), "  ")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("GetByID() error = %v, want ErrValidation", err)
	}
}
