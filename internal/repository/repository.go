// Package repository defines the persistence interfaces the service layer
// programs against. The sqlite subpackage is the concrete implementation.
package repository

import (
	"context"

	"github.com/sakif/flat-swap/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// ListingFilter narrows a listing query. Nil fields are not applied.
// Price bounds are checked against whichever price field the row's variant
// populates (unit_price for unit listings, price_per_room for room ones).
type ListingFilter struct {
	Type         *model.ListingType
	UserID       *string
	MinPrice     *float64
	MaxPrice     *float64
	MinRooms     *int
	MaxRooms     *int
	MinBathrooms *int
	MaxBathrooms *int
	MaxDistance  *int
	Furnished    *bool
	Gym          *bool
	LaundryUnit  *bool
	LaundryBldg  *bool
}

type UserRepository interface {
	// Create inserts a new user, assigning ID and CreatedAt. Returns an
	// error matching apperror.ErrConflict when the subject (or email) is
	// already taken.
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	// GetBySubject looks up a user by their provider subject claim.
	GetBySubject(ctx context.Context, subject string) (*model.User, error)
	List(ctx context.Context, opts ListOptions) ([]model.User, error)
	Update(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, id string) error
}

type ListingRepository interface {
	Create(ctx context.Context, listing *model.Listing) error
	GetByID(ctx context.Context, id string) (*model.Listing, error)
	List(ctx context.Context, filter ListingFilter, opts ListOptions) ([]model.Listing, error)
	ListByUser(ctx context.Context, userID string) ([]model.Listing, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	Update(ctx context.Context, listing *model.Listing) error
	Delete(ctx context.Context, id string) error
}
