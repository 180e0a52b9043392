package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/flat-swap/internal/apperror"
	"github.com/sakif/flat-swap/internal/model"
	"github.com/sakif/flat-swap/internal/repository"
)

// compile-time check that *DB implements repository.ListingRepository
var _ repository.ListingRepository = (*DB)(nil)

const listingColumns = `l.id, l.user_id, l.listing_type, l.address,
	l.num_rooms_available, l.total_rooms, l.num_bathrooms, l.furnished, l.ensuite,
	l.start_date, l.end_date, l.distance_to_university, l.gym_in_building,
	l.laundry_in_unit, l.laundry_in_building, l.utilities_included, l.building_name,
	l.images, l.unit_price, l.total_ensuite, l.total_shared_bathrooms,
	l.price_per_room, l.ensuite_rooms, l.shared_bathrooms, l.created_at, l.updated_at,
	u.id, u.first_name, u.last_name, u.email`

const listingFrom = ` FROM listings l JOIN users u ON u.id = l.user_id`

// Create inserts a listing, assigning an xid and CreatedAt.
// Exactly one variant group is written; the other group's columns stay NULL.
func (db *DB) Create(ctx context.Context, listing *model.Listing) error {
	listing.ID = xid.New().String()
	listing.CreatedAt = time.Now().UTC()

	images, err := marshalImages(listing.Images)
	if err != nil {
		return err
	}

	var (
		unitPrice, pricePerRoom       sql.NullFloat64
		totalEnsuite, totalShared     sql.NullInt64
		ensuiteRooms, sharedBathrooms sql.NullInt64
	)
	switch listing.Type {
	case model.ListingTypeUnit:
		unitPrice = sql.NullFloat64{Float64: listing.Unit.UnitPrice, Valid: true}
		totalEnsuite = sql.NullInt64{Int64: int64(listing.Unit.TotalEnsuite), Valid: true}
		totalShared = sql.NullInt64{Int64: int64(listing.Unit.TotalSharedBathrooms), Valid: true}
	case model.ListingTypeRoom:
		pricePerRoom = sql.NullFloat64{Float64: listing.Room.PricePerRoom, Valid: true}
		ensuiteRooms = sql.NullInt64{Int64: int64(listing.Room.EnsuiteRooms), Valid: true}
		sharedBathrooms = sql.NullInt64{Int64: int64(listing.Room.SharedBathrooms), Valid: true}
	default:
		return fmt.Errorf("sqlite: unknown listing type %q", listing.Type)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO listings (id, user_id, listing_type, address, num_rooms_available,
			total_rooms, num_bathrooms, furnished, ensuite, start_date, end_date,
			distance_to_university, gym_in_building, laundry_in_unit, laundry_in_building,
			utilities_included, building_name, images,
			unit_price, total_ensuite, total_shared_bathrooms,
			price_per_room, ensuite_rooms, shared_bathrooms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		listing.ID,
		listing.UserID,
		string(listing.Type),
		listing.Address,
		listing.NumRoomsAvailable,
		listing.TotalRooms,
		listing.NumBathrooms,
		listing.Furnished,
		listing.Ensuite,
		listing.StartDate.String(),
		listing.EndDate.String(),
		nullInt(listing.DistanceToUni),
		nullBool(listing.GymInBuilding),
		nullBool(listing.LaundryInUnit),
		nullBool(listing.LaundryInBuilding),
		nullString(listing.UtilitiesIncluded),
		nullString(listing.BuildingName),
		images,
		unitPrice,
		totalEnsuite,
		totalShared,
		pricePerRoom,
		ensuiteRooms,
		sharedBathrooms,
		listing.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting listing: %w", err)
	}

	return nil
}

// GetByID retrieves a listing with its owner summary joined in.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Listing, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+listingColumns+listingFrom+` WHERE l.id = ?`, id)

	listing, err := scanListing(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("listing", id)
		}
		return nil, fmt.Errorf("sqlite: getting listing %s: %w", id, err)
	}
	return listing, nil
}

// List returns listings matching the filter, newest first.
//
// The price bounds apply to whichever price column the row's variant
// populates — COALESCE picks unit_price for unit rows and price_per_room
// for room rows, since exactly one is ever non-NULL.
func (db *DB) List(ctx context.Context, filter repository.ListingFilter, opts repository.ListOptions) ([]model.Listing, error) {
	query := `SELECT ` + listingColumns + listingFrom + ` WHERE 1=1`
	var args []any

	if filter.Type != nil {
		query += ` AND l.listing_type = ?`
		args = append(args, string(*filter.Type))
	}
	if filter.UserID != nil {
		query += ` AND l.user_id = ?`
		args = append(args, *filter.UserID)
	}
	if filter.MinPrice != nil {
		query += ` AND COALESCE(l.unit_price, l.price_per_room) >= ?`
		args = append(args, *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		query += ` AND COALESCE(l.unit_price, l.price_per_room) <= ?`
		args = append(args, *filter.MaxPrice)
	}
	if filter.MinRooms != nil {
		query += ` AND l.num_rooms_available >= ?`
		args = append(args, *filter.MinRooms)
	}
	if filter.MaxRooms != nil {
		query += ` AND l.num_rooms_available <= ?`
		args = append(args, *filter.MaxRooms)
	}
	if filter.MinBathrooms != nil {
		query += ` AND l.num_bathrooms >= ?`
		args = append(args, *filter.MinBathrooms)
	}
	if filter.MaxBathrooms != nil {
		query += ` AND l.num_bathrooms <= ?`
		args = append(args, *filter.MaxBathrooms)
	}
	if filter.MaxDistance != nil {
		query += ` AND l.distance_to_university <= ?`
		args = append(args, *filter.MaxDistance)
	}
	if filter.Furnished != nil {
		query += ` AND l.furnished = ?`
		args = append(args, *filter.Furnished)
	}
	if filter.Gym != nil {
		query += ` AND l.gym_in_building = ?`
		args = append(args, *filter.Gym)
	}
	if filter.LaundryUnit != nil {
		query += ` AND l.laundry_in_unit = ?`
		args = append(args, *filter.LaundryUnit)
	}
	if filter.LaundryBldg != nil {
		query += ` AND l.laundry_in_building = ?`
		args = append(args, *filter.LaundryBldg)
	}

	query += ` ORDER BY l.created_at DESC LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Offset)

	return db.queryListings(ctx, query, args...)
}

// ListByUser returns all listings owned by userID, newest first.
func (db *DB) ListByUser(ctx context.Context, userID string) ([]model.Listing, error) {
	return db.queryListings(ctx,
		`SELECT `+listingColumns+listingFrom+` WHERE l.user_id = ? ORDER BY l.created_at DESC`,
		userID)
}

// CountByUser returns how many listings userID owns.
func (db *DB) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM listings WHERE user_id = ?`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting listings for user %s: %w", userID, err)
	}
	return count, nil
}

// Update persists all mutable fields of the listing and sets UpdatedAt.
// The variant columns written are those of the listing's own type; the
// other group's columns are left untouched (they are NULL already).
func (db *DB) Update(ctx context.Context, listing *model.Listing) error {
	now := time.Now().UTC()
	listing.UpdatedAt = &now

	images, err := marshalImages(listing.Images)
	if err != nil {
		return err
	}

	query := `UPDATE listings SET address = ?, num_rooms_available = ?, total_rooms = ?,
		num_bathrooms = ?, furnished = ?, ensuite = ?, start_date = ?, end_date = ?,
		distance_to_university = ?, gym_in_building = ?, laundry_in_unit = ?,
		laundry_in_building = ?, utilities_included = ?, building_name = ?, images = ?,
		updated_at = ?`
	args := []any{
		listing.Address,
		listing.NumRoomsAvailable,
		listing.TotalRooms,
		listing.NumBathrooms,
		listing.Furnished,
		listing.Ensuite,
		listing.StartDate.String(),
		listing.EndDate.String(),
		nullInt(listing.DistanceToUni),
		nullBool(listing.GymInBuilding),
		nullBool(listing.LaundryInUnit),
		nullBool(listing.LaundryInBuilding),
		nullString(listing.UtilitiesIncluded),
		nullString(listing.BuildingName),
		images,
		now,
	}

	switch listing.Type {
	case model.ListingTypeUnit:
		query += `, unit_price = ?, total_ensuite = ?, total_shared_bathrooms = ?`
		args = append(args, listing.Unit.UnitPrice, listing.Unit.TotalEnsuite, listing.Unit.TotalSharedBathrooms)
	case model.ListingTypeRoom:
		query += `, price_per_room = ?, ensuite_rooms = ?, shared_bathrooms = ?`
		args = append(args, listing.Room.PricePerRoom, listing.Room.EnsuiteRooms, listing.Room.SharedBathrooms)
	default:
		return fmt.Errorf("sqlite: unknown listing type %q", listing.Type)
	}

	query += ` WHERE id = ?`
	args = append(args, listing.ID)

	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: updating listing %s: %w", listing.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: updating listing %s: %w", listing.ID, err)
	}
	if affected == 0 {
		return apperror.NotFound("listing", listing.ID)
	}

	return nil
}

// Delete removes a listing. Returns apperror.ErrNotFound for an unknown ID.
func (db *DB) Delete(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM listings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting listing %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: deleting listing %s: %w", id, err)
	}
	if affected == 0 {
		return apperror.NotFound("listing", id)
	}

	return nil
}

func (db *DB) queryListings(ctx context.Context, query string, args ...any) ([]model.Listing, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing listings: %w", err)
	}
	defer rows.Close()

	listings := []model.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning listing row: %w", err)
		}
		listings = append(listings, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating listing rows: %w", err)
	}

	return listings, nil
}

func scanListing(s scanner) (*model.Listing, error) {
	var (
		l                  model.Listing
		listingType        string
		startDate, endDate string
		distance           sql.NullInt64
		gym, lUnit, lBldg  sql.NullBool
		utilities          sql.NullString
		building           sql.NullString
		images             sql.NullString
		unitPrice          sql.NullFloat64
		totalEnsuite       sql.NullInt64
		totalShared        sql.NullInt64
		pricePerRoom       sql.NullFloat64
		ensuiteRooms       sql.NullInt64
		sharedBathrooms    sql.NullInt64
		updatedAt          sql.NullTime
		owner              model.ListingOwner
		ownerFirst         sql.NullString
		ownerLast          sql.NullString
		ownerEmail         sql.NullString
	)

	err := s.Scan(
		&l.ID,
		&l.UserID,
		&listingType,
		&l.Address,
		&l.NumRoomsAvailable,
		&l.TotalRooms,
		&l.NumBathrooms,
		&l.Furnished,
		&l.Ensuite,
		&startDate,
		&endDate,
		&distance,
		&gym,
		&lUnit,
		&lBldg,
		&utilities,
		&building,
		&images,
		&unitPrice,
		&totalEnsuite,
		&totalShared,
		&pricePerRoom,
		&ensuiteRooms,
		&sharedBathrooms,
		&l.CreatedAt,
		&updatedAt,
		&owner.ID,
		&ownerFirst,
		&ownerLast,
		&ownerEmail,
	)
	if err != nil {
		return nil, err
	}

	l.Type = model.ListingType(listingType)
	if l.StartDate, err = model.ParseDate(startDate); err != nil {
		return nil, err
	}
	if l.EndDate, err = model.ParseDate(endDate); err != nil {
		return nil, err
	}

	l.DistanceToUni = intPtr(distance)
	l.GymInBuilding = boolPtr(gym)
	l.LaundryInUnit = boolPtr(lUnit)
	l.LaundryInBuilding = boolPtr(lBldg)
	l.UtilitiesIncluded = stringPtr(utilities)
	l.BuildingName = stringPtr(building)

	if images.Valid && images.String != "" {
		if err := json.Unmarshal([]byte(images.String), &l.Images); err != nil {
			return nil, fmt.Errorf("decoding images for listing %s: %w", l.ID, err)
		}
	}

	// Reconstruct the variant from whichever column group is populated.
	switch l.Type {
	case model.ListingTypeUnit:
		if !unitPrice.Valid {
			return nil, fmt.Errorf("listing %s tagged unit but unit columns are NULL", l.ID)
		}
		l.Unit = &model.UnitDetails{
			UnitPrice:            unitPrice.Float64,
			TotalEnsuite:         int(totalEnsuite.Int64),
			TotalSharedBathrooms: int(totalShared.Int64),
		}
	case model.ListingTypeRoom:
		if !pricePerRoom.Valid {
			return nil, fmt.Errorf("listing %s tagged room but room columns are NULL", l.ID)
		}
		l.Room = &model.RoomDetails{
			PricePerRoom:    pricePerRoom.Float64,
			EnsuiteRooms:    int(ensuiteRooms.Int64),
			SharedBathrooms: int(sharedBathrooms.Int64),
		}
	default:
		return nil, fmt.Errorf("listing %s has unknown type %q", l.ID, listingType)
	}

	if updatedAt.Valid {
		t := updatedAt.Time
		l.UpdatedAt = &t
	}

	owner.FirstName = stringPtr(ownerFirst)
	owner.LastName = stringPtr(ownerLast)
	owner.Email = stringPtr(ownerEmail)
	ownerUser := model.User{FirstName: owner.FirstName, LastName: owner.LastName}
	owner.FullName = ownerUser.FullName()
	l.Owner = &owner

	return &l, nil
}

func marshalImages(images []string) (sql.NullString, error) {
	if images == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(images)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("sqlite: encoding images: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func intPtr(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	i := int(ni.Int64)
	return &i
}

func boolPtr(nb sql.NullBool) *bool {
	if !nb.Valid {
		return nil
	}
	b := nb.Bool
	return &b
}
