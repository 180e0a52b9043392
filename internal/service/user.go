package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/flat-swap/internal/apperror"
	"github.com/sakif/flat-swap/internal/model"
	"github.com/sakif/flat-swap/internal/repository"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// UserService handles user profile reads and self-service mutations.
// Mutations are self-only: the actor must be the user being changed.
type UserService struct {
	users    repository.UserRepository
	listings repository.ListingRepository
	logger   *slog.Logger
}

func NewUserService(users repository.UserRepository, listings repository.ListingRepository, logger *slog.Logger) *UserService {
	return &UserService{
		users:    users,
		listings: listings,
		logger:   logger,
	}
}

// List returns users with pagination. Limit is clamped to 1..MaxListLimit.
func (s *UserService) List(ctx context.Context, limit, offset int) ([]model.User, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	users, err := s.users.List(ctx, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		s.logger.Error("failed to list users", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

// GetByID returns the user with the given internal ID.
func (s *UserService) GetByID(ctx context.Context, id string) (*model.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "user ID is required")
	}
	return s.users.GetByID(ctx, id)
}

// Update applies a partial profile update. Only the user themselves may
// update their profile. ProfileComplete flips to true when the update
// leaves both an email and a first name set.
func (s *UserService) Update(ctx context.Context, actorID, id string, upd model.UserUpdate) (*model.User, error) {
	if actorID != id {
		return nil, apperror.Forbidden("not authorized to update this user")
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Email != nil {
		email := strings.TrimSpace(*upd.Email)
		if email == "" {
			return nil, apperror.ValidationFailed("email", "email must not be empty")
		}
		user.Email = &email
	}
	if upd.FirstName != nil {
		user.FirstName = upd.FirstName
	}
	if upd.LastName != nil {
		user.LastName = upd.LastName
	}
	if upd.ProfilePictureURL != nil {
		user.ProfilePictureURL = upd.ProfilePictureURL
	}

	if user.Email != nil && user.FirstName != nil {
		user.ProfileComplete = true
	}

	if err := s.users.Update(ctx, user); err != nil {
		s.logger.Error("failed to update user",
			slog.String("userID", id),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.logger.Info("user updated", slog.String("userID", id))
	return user, nil
}

// Delete removes a user account. Self-only, and refused with a conflict
// while the user still owns listings — neither cascading nor orphaning
// listings silently.
func (s *UserService) Delete(ctx context.Context, actorID, id string) error {
	if actorID != id {
		return apperror.Forbidden("not authorized to delete this user")
	}

	count, err := s.listings.CountByUser(ctx, id)
	if err != nil {
		return fmt.Errorf("counting listings for user %s: %w", id, err)
	}
	if count > 0 {
		return apperror.Conflict(
			fmt.Sprintf("user still owns %d listing(s); delete them first", count))
	}

	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("user deleted", slog.String("userID", id))
	return nil
}
