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

// ListingService handles listing CRUD and the ownership rules on mutation.
// Reads are public; create/update/delete require an owning actor.
type ListingService struct {
	listings repository.ListingRepository
	logger   *slog.Logger
}

func NewListingService(listings repository.ListingRepository, logger *slog.Logger) *ListingService {
	return &ListingService{
		listings: listings,
		logger:   logger,
	}
}

// Create validates and persists a new listing owned by the actor.
// The listing's variant must already be consistent: the matching detail
// group set, the other nil (the handler builds it via the model
// constructors, which guarantee this).
func (s *ListingService) Create(ctx context.Context, listing *model.Listing) (*model.Listing, error) {
	switch listing.Type {
	case model.ListingTypeUnit:
		if listing.Unit == nil || listing.Room != nil {
			return nil, apperror.ValidationFailed("listing_type", "unit listing requires unit fields only")
		}
		if listing.Unit.UnitPrice <= 0 {
			return nil, apperror.ValidationFailed("unit_price", "unit_price must be positive")
		}
	case model.ListingTypeRoom:
		if listing.Room == nil || listing.Unit != nil {
			return nil, apperror.ValidationFailed("listing_type", "room listing requires room fields only")
		}
		if listing.Room.PricePerRoom <= 0 {
			return nil, apperror.ValidationFailed("price_per_room", "price_per_room must be positive")
		}
	default:
		return nil, apperror.ValidationFailed("listing_type", "listing_type must be 'unit' or 'room'")
	}

	listing.Address = strings.TrimSpace(listing.Address)
	if listing.Address == "" {
		return nil, apperror.ValidationFailed("address", "address is required")
	}
	if listing.NumRoomsAvailable <= 0 {
		return nil, apperror.ValidationFailed("num_rooms_available", "num_rooms_available must be positive")
	}
	if listing.TotalRooms < listing.NumRoomsAvailable {
		return nil, apperror.ValidationFailed("total_rooms", "total_rooms must be at least num_rooms_available")
	}
	if listing.EndDate.Before(listing.StartDate.Time) {
		return nil, apperror.ValidationFailed("end_date", "end_date must not be before start_date")
	}

	if err := s.listings.Create(ctx, listing); err != nil {
		s.logger.Error("failed to create listing",
			slog.String("userID", listing.UserID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating listing: %w", err)
	}

	s.logger.Info("listing created",
		slog.String("id", listing.ID),
		slog.String("type", string(listing.Type)),
		slog.String("userID", listing.UserID),
	)

	// Re-read to pick up the joined owner summary.
	return s.listings.GetByID(ctx, listing.ID)
}

// List returns listings matching the filter, with pagination.
func (s *ListingService) List(ctx context.Context, filter repository.ListingFilter, limit, offset int) ([]model.Listing, error) {
	if filter.Type != nil && !filter.Type.Valid() {
		return nil, apperror.ValidationFailed("listing_type", "listing_type must be 'unit' or 'room'")
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	listings, err := s.listings.List(ctx, filter, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		s.logger.Error("failed to list listings", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing listings: %w", err)
	}
	return listings, nil
}

// ListMine returns all listings owned by the actor.
func (s *ListingService) ListMine(ctx context.Context, userID string) ([]model.Listing, error) {
	listings, err := s.listings.ListByUser(ctx, userID)
	if err != nil {
		s.logger.Error("failed to list user listings",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("listing user listings: %w", err)
	}
	return listings, nil
}

// GetByID returns a single listing.
func (s *ListingService) GetByID(ctx context.Context, id string) (*model.Listing, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "listing ID is required")
	}
	return s.listings.GetByID(ctx, id)
}

// Update applies a partial update to a listing the actor owns.
// The variant is fixed at creation: fields belonging to the other variant
// are rejected rather than silently dropped.
func (s *ListingService) Update(ctx context.Context, actorID, id string, upd model.ListingUpdate) (*model.Listing, error) {
	listing, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if listing.UserID != actorID {
		return nil, apperror.Forbidden("not authorized to update this listing")
	}

	applyCommon(listing, upd)

	switch listing.Type {
	case model.ListingTypeUnit:
		if upd.PricePerRoom != nil || upd.EnsuiteRooms != nil || upd.SharedBathrooms != nil {
			return nil, apperror.ValidationFailed("listing_type", "room fields do not apply to a unit listing")
		}
		if upd.UnitPrice != nil {
			if *upd.UnitPrice <= 0 {
				return nil, apperror.ValidationFailed("unit_price", "unit_price must be positive")
			}
			listing.Unit.UnitPrice = *upd.UnitPrice
		}
		if upd.TotalEnsuite != nil {
			listing.Unit.TotalEnsuite = *upd.TotalEnsuite
		}
		if upd.TotalSharedBathrooms != nil {
			listing.Unit.TotalSharedBathrooms = *upd.TotalSharedBathrooms
		}
	case model.ListingTypeRoom:
		if upd.UnitPrice != nil || upd.TotalEnsuite != nil || upd.TotalSharedBathrooms != nil {
			return nil, apperror.ValidationFailed("listing_type", "unit fields do not apply to a room listing")
		}
		if upd.PricePerRoom != nil {
			if *upd.PricePerRoom <= 0 {
				return nil, apperror.ValidationFailed("price_per_room", "price_per_room must be positive")
			}
			listing.Room.PricePerRoom = *upd.PricePerRoom
		}
		if upd.EnsuiteRooms != nil {
			listing.Room.EnsuiteRooms = *upd.EnsuiteRooms
		}
		if upd.SharedBathrooms != nil {
			listing.Room.SharedBathrooms = *upd.SharedBathrooms
		}
	}

	if listing.EndDate.Before(listing.StartDate.Time) {
		return nil, apperror.ValidationFailed("end_date", "end_date must not be before start_date")
	}

	if err := s.listings.Update(ctx, listing); err != nil {
		s.logger.Error("failed to update listing",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating listing: %w", err)
	}

	s.logger.Info("listing updated", slog.String("id", id))
	return listing, nil
}

// Delete removes a listing the actor owns.
func (s *ListingService) Delete(ctx context.Context, actorID, id string) error {
	listing, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if listing.UserID != actorID {
		return apperror.Forbidden("not authorized to delete this listing")
	}

	if err := s.listings.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("listing deleted", slog.String("id", id))
	return nil
}

func applyCommon(listing *model.Listing, upd model.ListingUpdate) {
	if upd.Address != nil {
		listing.Address = *upd.Address
	}
	if upd.NumRoomsAvailable != nil {
		listing.NumRoomsAvailable = *upd.NumRoomsAvailable
	}
	if upd.TotalRooms != nil {
		listing.TotalRooms = *upd.TotalRooms
	}
	if upd.NumBathrooms != nil {
		listing.NumBathrooms = *upd.NumBathrooms
	}
	if upd.Furnished != nil {
		listing.Furnished = *upd.Furnished
	}
	if upd.Ensuite != nil {
		listing.Ensuite = *upd.Ensuite
	}
	if upd.StartDate != nil {
		listing.StartDate = *upd.StartDate
	}
	if upd.EndDate != nil {
		listing.EndDate = *upd.EndDate
	}
	if upd.DistanceToUni != nil {
		listing.DistanceToUni = upd.DistanceToUni
	}
	if upd.GymInBuilding != nil {
		listing.GymInBuilding = upd.GymInBuilding
	}
	if upd.LaundryInUnit != nil {
		listing.LaundryInUnit = upd.LaundryInUnit
	}
	if upd.LaundryInBuilding != nil {
		listing.LaundryInBuilding = upd.LaundryInBuilding
	}
	if upd.UtilitiesIncluded != nil {
		listing.UtilitiesIncluded = upd.UtilitiesIncluded
	}
	if upd.BuildingName != nil {
		listing.BuildingName = upd.BuildingName
	}
	if upd.Images != nil {
		listing.Images = upd.Images
	}
}
