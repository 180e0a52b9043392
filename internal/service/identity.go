// Package service contains the business logic layer: identity
// reconciliation plus user and listing rules. Handlers parse HTTP and call
// in here; repositories persist. Services return apperror values, never
// HTTP status codes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/sakif/flat-swap/internal/apperror"
	"github.com/sakif/flat-swap/internal/auth"
	"github.com/sakif/flat-swap/internal/model"
	"github.com/sakif/flat-swap/internal/repository"
)

// IdentityService turns verified identity-provider claims into durable
// local user records. It is the auth middleware's IdentityResolver.
type IdentityService struct {
	users  repository.UserRepository
	logger *slog.Logger
}

func NewIdentityService(users repository.UserRepository, logger *slog.Logger) *IdentityService {
	return &IdentityService{
		users:  users,
		logger: logger,
	}
}

// compile-time check that the middleware contract is satisfied
var _ auth.IdentityResolver = (*IdentityService)(nil)

// ResolveSubject looks up the local user for a provider subject.
func (s *IdentityService) ResolveSubject(ctx context.Context, subject string) (*model.User, error) {
	return s.users.GetBySubject(ctx, subject)
}

// Reconcile creates or updates the local user record to match the verified
// ID-token claims.
//
// Existing user: the claims are diffed against the stored profile — email
// (when present and changed), name (split on the first whitespace), and
// picture. ProfileComplete is recomputed as "email and name both present
// in this pass". Nothing is persisted when nothing changed, so reconciling
// the same claims twice is a no-op on the second pass.
//
// New user: created active, non-superuser, with the profile claims applied.
// Two concurrent first registrations for one subject can both reach the
// create path; the UNIQUE constraint on subject makes one of them fail
// with a conflict, which we treat as "lost the race" and retry as an
// update of the winner's row.
func (s *IdentityService) Reconcile(ctx context.Context, claims *auth.Claims) (*model.User, error) {
	if claims == nil || claims.Subject == "" {
		return nil, apperror.ValidationFailed("sub", "identity claims missing subject")
	}

	user, err := s.users.GetBySubject(ctx, claims.Subject)
	switch {
	case err == nil:
		return s.reconcileExisting(ctx, user, claims)

	case errors.Is(err, apperror.ErrNotFound):
		user, err = s.createFromClaims(ctx, claims)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		// Lost a concurrent first-registration race: the row exists now.
		s.logger.Info("registration race detected, retrying as existing user",
			slog.String("subject", claims.Subject),
		)
		user, err = s.users.GetBySubject(ctx, claims.Subject)
		if err != nil {
			return nil, fmt.Errorf("service/identity: re-fetching user after conflict: %w", err)
		}
		return s.reconcileExisting(ctx, user, claims)

	default:
		return nil, fmt.Errorf("service/identity: looking up subject: %w", err)
	}
}

func (s *IdentityService) reconcileExisting(ctx context.Context, user *model.User, claims *auth.Claims) (*model.User, error) {
	changed := false

	if claims.Email != "" && !equalPtr(user.Email, claims.Email) {
		email := claims.Email
		user.Email = &email
		changed = true
	}

	name := strings.TrimSpace(claims.DisplayName())
	if name != "" {
		first, last := splitName(name)
		if !equalPtr(user.FirstName, first) || !ptrEq(user.LastName, last) {
			user.FirstName = &first
			user.LastName = last
			changed = true
		}
	}

	if claims.Picture != "" && !equalPtr(user.ProfilePictureURL, claims.Picture) {
		picture := claims.Picture
		user.ProfilePictureURL = &picture
		changed = true
	}

	complete := claims.Email != "" && name != ""
	if user.ProfileComplete != complete {
		user.ProfileComplete = complete
		changed = true
	}

	if !changed {
		return user, nil
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("service/identity: updating user %s: %w", user.ID, err)
	}

	s.logger.Info("user profile reconciled",
		slog.String("userID", user.ID),
		slog.String("subject", user.Subject),
	)

	return user, nil
}

func (s *IdentityService) createFromClaims(ctx context.Context, claims *auth.Claims) (*model.User, error) {
	name := strings.TrimSpace(claims.DisplayName())

	user := &model.User{
		Subject:         claims.Subject,
		IsActive:        true,
		IsSuperuser:     false,
		ProfileComplete: claims.Email != "" && name != "",
	}

	if claims.Email != "" {
		email := claims.Email
		user.Email = &email
	}
	if name != "" {
		first, last := splitName(name)
		user.FirstName = &first
		user.LastName = last
	}
	if claims.Picture != "" {
		picture := claims.Picture
		user.ProfilePictureURL = &picture
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("subject", user.Subject),
	)

	return user, nil
}

// splitName splits a display name on the first whitespace: the first word
// becomes the first name, the remainder the last name. A single-word name
// yields no last name (nil, not empty string).
func splitName(name string) (first string, last *string) {
	i := strings.IndexFunc(name, unicode.IsSpace)
	if i < 0 {
		return name, nil
	}
	rest := strings.TrimSpace(name[i+1:])
	return name[:i], &rest
}

// equalPtr reports whether p points at exactly s.
func equalPtr(p *string, s string) bool {
	return p != nil && *p == s
}

// ptrEq reports whether two optional strings hold the same value.
func ptrEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
