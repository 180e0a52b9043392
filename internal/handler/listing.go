package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sakif/flat-swap/internal/apperror"
	"github.com/sakif/flat-swap/internal/auth"
	"github.com/sakif/flat-swap/internal/model"
	"github.com/sakif/flat-swap/internal/repository"
	"github.com/sakif/flat-swap/internal/service"
)

// ListingHandler manages listing CRUD endpoints. Reads are public;
// mutations require the authenticated owner.
type ListingHandler struct {
	listings *service.ListingService
	logger   *slog.Logger
}

func NewListingHandler(listings *service.ListingService, logger *slog.Logger) *ListingHandler {
	return &ListingHandler{
		listings: listings,
		logger:   logger,
	}
}

// createListingRequest is the creation envelope. It carries the common
// fields plus both variant groups as pointers; listing_type decides which
// group is required and the other must be absent.
type createListingRequest struct {
	ListingType model.ListingType `json:"listing_type"`

	Address           string      `json:"address"`
	NumRoomsAvailable int         `json:"num_rooms_available"`
	TotalRooms        int         `json:"total_rooms"`
	NumBathrooms      int         `json:"num_bathrooms"`
	Furnished         bool        `json:"furnished"`
	Ensuite           int         `json:"ensuite"`
	StartDate         *model.Date `json:"start_date"`
	EndDate           *model.Date `json:"end_date"`
	DistanceToUni     *int        `json:"distance_to_university"`
	GymInBuilding     *bool       `json:"gym_in_building"`
	LaundryInUnit     *bool       `json:"laundry_in_unit"`
	LaundryInBuilding *bool       `json:"laundry_in_building"`
	UtilitiesIncluded *string     `json:"utilities_included"`
	BuildingName      *string     `json:"building_name"`
	Images            []string    `json:"images"`

	UnitPrice            *float64 `json:"unit_price"`
	TotalEnsuite         *int     `json:"total_ensuite"`
	TotalSharedBathrooms *int     `json:"total_shared_bathrooms"`

	PricePerRoom    *float64 `json:"price_per_room"`
	EnsuiteRooms    *int     `json:"how_many_ensuite_rooms"`
	SharedBathrooms *int     `json:"how_many_shared_bathrooms_in_apartment"`
}

// listingResponse flattens a listing for the wire: the variant-specific
// fields appear at the top level (only the populated group) alongside the
// discriminator, matching what clients filter and sort on.
type listingResponse struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	ListingType model.ListingType `json:"listing_type"`

	Address           string     `json:"address"`
	NumRoomsAvailable int        `json:"num_rooms_available"`
	TotalRooms        int        `json:"total_rooms"`
	NumBathrooms      int        `json:"num_bathrooms"`
	Furnished         bool       `json:"furnished"`
	Ensuite           int        `json:"ensuite"`
	StartDate         model.Date `json:"start_date"`
	EndDate           model.Date `json:"end_date"`
	DistanceToUni     *int       `json:"distance_to_university"`
	GymInBuilding     *bool      `json:"gym_in_building"`
	LaundryInUnit     *bool      `json:"laundry_in_unit"`
	LaundryInBuilding *bool      `json:"laundry_in_building"`
	UtilitiesIncluded *string    `json:"utilities_included"`
	BuildingName      *string    `json:"building_name"`
	Images            []string   `json:"images"`

	UnitPrice            *float64 `json:"unit_price,omitempty"`
	TotalEnsuite         *int     `json:"total_ensuite,omitempty"`
	TotalSharedBathrooms *int     `json:"total_shared_bathrooms,omitempty"`

	PricePerRoom    *float64 `json:"price_per_room,omitempty"`
	EnsuiteRooms    *int     `json:"how_many_ensuite_rooms,omitempty"`
	SharedBathrooms *int     `json:"how_many_shared_bathrooms_in_apartment,omitempty"`

	Owner     *model.ListingOwner `json:"user,omitempty"`
	CreatedAt string              `json:"created_at"`
	UpdatedAt *string             `json:"updated_at"`
}

func toListingResponse(l *model.Listing) listingResponse {
	resp := listingResponse{
		ID:                l.ID,
		UserID:            l.UserID,
		ListingType:       l.Type,
		Address:           l.Address,
		NumRoomsAvailable: l.NumRoomsAvailable,
		TotalRooms:        l.TotalRooms,
		NumBathrooms:      l.NumBathrooms,
		Furnished:         l.Furnished,
		Ensuite:           l.Ensuite,
		StartDate:         l.StartDate,
		EndDate:           l.EndDate,
		DistanceToUni:     l.DistanceToUni,
		GymInBuilding:     l.GymInBuilding,
		LaundryInUnit:     l.LaundryInUnit,
		LaundryInBuilding: l.LaundryInBuilding,
		UtilitiesIncluded: l.UtilitiesIncluded,
		BuildingName:      l.BuildingName,
		Images:            l.Images,
		Owner:             l.Owner,
		CreatedAt:         l.CreatedAt.Format(time.RFC3339),
	}

	if l.UpdatedAt != nil {
		s := l.UpdatedAt.Format(time.RFC3339)
		resp.UpdatedAt = &s
	}

	switch l.Type {
	case model.ListingTypeUnit:
		resp.UnitPrice = &l.Unit.UnitPrice
		resp.TotalEnsuite = &l.Unit.TotalEnsuite
		resp.TotalSharedBathrooms = &l.Unit.TotalSharedBathrooms
	case model.ListingTypeRoom:
		resp.PricePerRoom = &l.Room.PricePerRoom
		resp.EnsuiteRooms = &l.Room.EnsuiteRooms
		resp.SharedBathrooms = &l.Room.SharedBathrooms
	}

	return resp
}

func toListingResponses(listings []model.Listing) []listingResponse {
	out := make([]listingResponse, 0, len(listings))
	for i := range listings {
		out = append(out, toListingResponse(&listings[i]))
	}
	return out
}

// HandleCreate creates a listing owned by the caller.
//
// HTTP: POST /api/v1/listings
func (h *ListingHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}

	var req createListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid listing JSON", slog.String("error", err.Error()))
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	listing, err := req.toListing(actor.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	created, err := h.listings.Create(r.Context(), listing)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toListingResponse(created))
}

// toListing builds the tagged listing variant from the flat envelope,
// switching exhaustively on the discriminator.
func (r *createListingRequest) toListing(userID string) (*model.Listing, error) {
	var listing *model.Listing

	switch r.ListingType {
	case model.ListingTypeUnit:
		if r.UnitPrice == nil || r.TotalEnsuite == nil || r.TotalSharedBathrooms == nil {
			return nil, apperror.ValidationFailed("listing_type",
				"unit listing requires unit_price, total_ensuite and total_shared_bathrooms")
		}
		if r.PricePerRoom != nil || r.EnsuiteRooms != nil || r.SharedBathrooms != nil {
			return nil, apperror.ValidationFailed("listing_type",
				"room fields do not apply to a unit listing")
		}
		listing = model.NewUnitListing(userID, model.UnitDetails{
			UnitPrice:            *r.UnitPrice,
			TotalEnsuite:         *r.TotalEnsuite,
			TotalSharedBathrooms: *r.TotalSharedBathrooms,
		})
	case model.ListingTypeRoom:
		if r.PricePerRoom == nil || r.EnsuiteRooms == nil || r.SharedBathrooms == nil {
			return nil, apperror.ValidationFailed("listing_type",
				"room listing requires price_per_room, how_many_ensuite_rooms and how_many_shared_bathrooms_in_apartment")
		}
		if r.UnitPrice != nil || r.TotalEnsuite != nil || r.TotalSharedBathrooms != nil {
			return nil, apperror.ValidationFailed("listing_type",
				"unit fields do not apply to a room listing")
		}
		listing = model.NewRoomListing(userID, model.RoomDetails{
			PricePerRoom:    *r.PricePerRoom,
			EnsuiteRooms:    *r.EnsuiteRooms,
			SharedBathrooms: *r.SharedBathrooms,
		})
	default:
		return nil, apperror.ValidationFailed("listing_type", "listing_type must be 'unit' or 'room'")
	}

	if r.StartDate == nil || r.EndDate == nil {
		return nil, apperror.ValidationFailed("start_date", "start_date and end_date are required")
	}

	listing.Address = r.Address
	listing.NumRoomsAvailable = r.NumRoomsAvailable
	listing.TotalRooms = r.TotalRooms
	listing.NumBathrooms = r.NumBathrooms
	listing.Furnished = r.Furnished
	listing.Ensuite = r.Ensuite
	listing.StartDate = *r.StartDate
	listing.EndDate = *r.EndDate
	listing.DistanceToUni = r.DistanceToUni
	listing.GymInBuilding = r.GymInBuilding
	listing.LaundryInUnit = r.LaundryInUnit
	listing.LaundryInBuilding = r.LaundryInBuilding
	listing.UtilitiesIncluded = r.UtilitiesIncluded
	listing.BuildingName = r.BuildingName
	listing.Images = r.Images

	return listing, nil
}

// HandleList returns listings matching the query filters. Public.
//
// HTTP: GET /api/v1/listings?listing_type=room&min_price=400&...
func (h *ListingHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListingFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}

	skip, limit, err := pagination(r)
	if err != nil {
		writeError(w, err)
		return
	}

	listings, err := h.listings.List(r.Context(), filter, limit, skip)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toListingResponses(listings))
}

// HandleListMine returns the caller's own listings.
//
// HTTP: GET /api/v1/listings/my-listings
func (h *ListingHandler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}

	listings, err := h.listings.ListMine(r.Context(), actor.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toListingResponses(listings))
}

// HandleGet returns a single listing. Public.
//
// HTTP: GET /api/v1/listings/{id}
func (h *ListingHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	listing, err := h.listings.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toListingResponse(listing))
}

// HandleUpdate applies a partial update to a listing the caller owns.
//
// HTTP: PUT /api/v1/listings/{id}
func (h *ListingHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}

	var upd model.ListingUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		h.logger.Warn("invalid listing update JSON", slog.String("error", err.Error()))
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	listing, err := h.listings.Update(r.Context(), actor.ID, r.PathValue("id"), upd)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toListingResponse(listing))
}

// HandleDelete removes a listing the caller owns.
//
// HTTP: DELETE /api/v1/listings/{id}
func (h *ListingHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}

	if err := h.listings.Delete(r.Context(), actor.ID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// parseListingFilter reads the optional query filters. A malformed value is
// a 400; an absent parameter leaves the filter field nil.
func parseListingFilter(r *http.Request) (repository.ListingFilter, error) {
	var filter repository.ListingFilter
	q := r.URL.Query()

	if v := q.Get("listing_type"); v != "" {
		t := model.ListingType(v)
		if !t.Valid() {
			return filter, apperror.ValidationFailed("listing_type", "listing_type must be 'unit' or 'room'")
		}
		filter.Type = &t
	}
	if v := q.Get("user_id"); v != "" {
		filter.UserID = &v
	}

	var err error
	if filter.MinPrice, err = floatParam(q.Get("min_price"), "min_price"); err != nil {
		return filter, err
	}
	if filter.MaxPrice, err = floatParam(q.Get("max_price"), "max_price"); err != nil {
		return filter, err
	}
	if filter.MinRooms, err = intParam(q.Get("min_rooms"), "min_rooms"); err != nil {
		return filter, err
	}
	if filter.MaxRooms, err = intParam(q.Get("max_rooms"), "max_rooms"); err != nil {
		return filter, err
	}
	if filter.MinBathrooms, err = intParam(q.Get("min_bathrooms"), "min_bathrooms"); err != nil {
		return filter, err
	}
	if filter.MaxBathrooms, err = intParam(q.Get("max_bathrooms"), "max_bathrooms"); err != nil {
		return filter, err
	}
	if filter.MaxDistance, err = intParam(q.Get("max_distance"), "max_distance"); err != nil {
		return filter, err
	}
	if filter.Furnished, err = boolParam(q.Get("furnished"), "furnished"); err != nil {
		return filter, err
	}
	if filter.Gym, err = boolParam(q.Get("gym_in_building"), "gym_in_building"); err != nil {
		return filter, err
	}
	if filter.LaundryUnit, err = boolParam(q.Get("laundry_in_unit"), "laundry_in_unit"); err != nil {
		return filter, err
	}
	if filter.LaundryBldg, err = boolParam(q.Get("laundry_in_building"), "laundry_in_building"); err != nil {
		return filter, err
	}

	return filter, nil
}

func floatParam(v, name string) (*float64, error) {
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, apperror.ValidationFailed(name, name+" must be a number")
	}
	return &f, nil
}

func intParam(v, name string) (*int, error) {
	if v == "" {
		return nil, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return nil, apperror.ValidationFailed(name, name+" must be an integer")
	}
	return &i, nil
}

func boolParam(v, name string) (*bool, error) {
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, apperror.ValidationFailed(name, name+" must be true or false")
	}
	return &b, nil
}
