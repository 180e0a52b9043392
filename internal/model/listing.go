package model

import "time"

// ListingType discriminates the two listing variants.
type ListingType string

const (
	// ListingTypeUnit is a whole-unit listing: one price for the entire place.
	ListingTypeUnit ListingType = "unit"
	// ListingTypeRoom is a per-room listing: individual rooms priced separately.
	ListingTypeRoom ListingType = "room"
)

// Valid reports whether t is one of the known listing types.
func (t ListingType) Valid() bool {
	return t == ListingTypeUnit || t == ListingTypeRoom
}

// UnitDetails is the field group specific to whole-unit listings.
type UnitDetails struct {
	UnitPrice            float64 `json:"unit_price"`
	TotalEnsuite         int     `json:"total_ensuite"`
	TotalSharedBathrooms int     `json:"total_shared_bathrooms"`
}

// RoomDetails is the field group specific to per-room listings.
type RoomDetails struct {
	PricePerRoom    float64 `json:"price_per_room"`
	EnsuiteRooms    int     `json:"how_many_ensuite_rooms"`
	SharedBathrooms int     `json:"how_many_shared_bathrooms_in_apartment"`
}

// Listing represents a rental listing owned by exactly one user.
//
// The variant-specific fields live behind the Type tag: a listing carries
// Unit details or Room details, never both. The NewUnitListing/NewRoomListing
// constructors and the sqlite boundary are the only places that set the
// detail pointers, so code past the constructors can rely on exactly one
// being non-nil for the matching Type.
type Listing struct {
	ID     string      `json:"id"`
	UserID string      `json:"user_id"`
	Type   ListingType `json:"listing_type"`

	Address           string   `json:"address"`
	NumRoomsAvailable int      `json:"num_rooms_available"`
	TotalRooms        int      `json:"total_rooms"`
	NumBathrooms      int      `json:"num_bathrooms"`
	Furnished         bool     `json:"furnished"`
	Ensuite           int      `json:"ensuite"`
	StartDate         Date     `json:"start_date"`
	EndDate           Date     `json:"end_date"`
	DistanceToUni     *int     `json:"distance_to_university"`
	GymInBuilding     *bool    `json:"gym_in_building"`
	LaundryInUnit     *bool    `json:"laundry_in_unit"`
	LaundryInBuilding *bool    `json:"laundry_in_building"`
	UtilitiesIncluded *string  `json:"utilities_included"`
	BuildingName      *string  `json:"building_name"`
	Images            []string `json:"images"`

	Unit *UnitDetails `json:"unit,omitempty"`
	Room *RoomDetails `json:"room,omitempty"`

	// Owner is the listing owner's public summary, populated on reads.
	Owner *ListingOwner `json:"user,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

// NewUnitListing returns a Listing tagged as a whole-unit variant.
func NewUnitListing(userID string, details UnitDetails) *Listing {
	return &Listing{UserID: userID, Type: ListingTypeUnit, Unit: &details}
}

// NewRoomListing returns a Listing tagged as a per-room variant.
func NewRoomListing(userID string, details RoomDetails) *Listing {
	return &Listing{UserID: userID, Type: ListingTypeRoom, Room: &details}
}

// Price returns the populated price field for either variant.
func (l *Listing) Price() float64 {
	switch l.Type {
	case ListingTypeUnit:
		if l.Unit != nil {
			return l.Unit.UnitPrice
		}
	case ListingTypeRoom:
		if l.Room != nil {
			return l.Room.PricePerRoom
		}
	}
	return 0
}

// ListingOwner is the owner summary embedded in listing responses.
type ListingOwner struct {
	ID        string  `json:"id"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Email     *string `json:"email"`
	FullName  string  `json:"full_name"`
}

// OwnerSummary builds the public owner summary for listing responses.
func OwnerSummary(u *User) *ListingOwner {
	return &ListingOwner{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		FullName:  u.FullName(),
	}
}

// ListingUpdate carries a partial listing update. Nil means "leave unchanged".
// Variant-specific fields only apply when the stored listing has that
// variant; the service rejects attempts to set the other group's fields.
type ListingUpdate struct {
	Address           *string  `json:"address"`
	NumRoomsAvailable *int     `json:"num_rooms_available"`
	TotalRooms        *int     `json:"total_rooms"`
	NumBathrooms      *int     `json:"num_bathrooms"`
	Furnished         *bool    `json:"furnished"`
	Ensuite           *int     `json:"ensuite"`
	StartDate         *Date    `json:"start_date"`
	EndDate           *Date    `json:"end_date"`
	DistanceToUni     *int     `json:"distance_to_university"`
	GymInBuilding     *bool    `json:"gym_in_building"`
	LaundryInUnit     *bool    `json:"laundry_in_unit"`
	LaundryInBuilding *bool    `json:"laundry_in_building"`
	UtilitiesIncluded *string  `json:"utilities_included"`
	BuildingName      *string  `json:"building_name"`
	Images            []string `json:"images"`

	UnitPrice            *float64 `json:"unit_price"`
	TotalEnsuite         *int     `json:"total_ensuite"`
	TotalSharedBathrooms *int     `json:"total_shared_bathrooms"`

	PricePerRoom    *float64 `json:"price_per_room"`
	EnsuiteRooms    *int     `json:"how_many_ensuite_rooms"`
	SharedBathrooms *int     `json:"how_many_shared_bathrooms_in_apartment"`
}
