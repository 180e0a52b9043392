package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/flat-swap/internal/apperror"
	"github.com/sakif/flat-swap/internal/model"
	"github.com/sakif/flat-swap/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, subject, email, first_name, last_name, profile_picture_url,
	is_active, is_superuser, profile_complete, created_at, updated_at`

// Create inserts a new user, assigning an xid and CreatedAt.
// A duplicate subject or email surfaces as apperror.ErrConflict, which the
// identity service uses to resolve the concurrent first-registration race.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	user.CreatedAt = time.Now().UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, subject, email, first_name, last_name, profile_picture_url,
			is_active, is_superuser, profile_complete, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Subject,
		nullString(user.Email),
		nullString(user.FirstName),
		nullString(user.LastName),
		nullString(user.ProfilePictureURL),
		user.IsActive,
		user.IsSuperuser,
		user.ProfileComplete,
		user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict(fmt.Sprintf("user already exists for subject %s", user.Subject))
		}
		return fmt.Errorf("sqlite: inserting user (subject=%s): %w", user.Subject, err)
	}

	return nil
}

// GetByID retrieves a user by internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetByID(ctx context.Context, id string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)

	user, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return user, nil
}

// GetBySubject retrieves a user by their provider subject claim.
func (db *DB) GetBySubject(ctx context.Context, subject string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE subject = ?`, subject)

	user, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", subject)
		}
		return nil, fmt.Errorf("sqlite: getting user by subject: %w", err)
	}
	return user, nil
}

// List returns users ordered by creation time.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.User, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at LIMIT ? OFFSET ?`,
		opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating user rows: %w", err)
	}

	return users, nil
}

// Update persists the mutable profile fields and sets UpdatedAt.
// Subject is immutable and deliberately absent from the SET list.
func (db *DB) Update(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.UpdatedAt = &now

	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET email = ?, first_name = ?, last_name = ?, profile_picture_url = ?,
			is_active = ?, is_superuser = ?, profile_complete = ?, updated_at = ?
		 WHERE id = ?`,
		nullString(user.Email),
		nullString(user.FirstName),
		nullString(user.LastName),
		nullString(user.ProfilePictureURL),
		user.IsActive,
		user.IsSuperuser,
		user.ProfileComplete,
		now,
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("email already in use")
		}
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}
	if affected == 0 {
		return apperror.NotFound("user", user.ID)
	}

	return nil
}

// Delete removes a user. Returns apperror.ErrNotFound for an unknown ID.
func (db *DB) Delete(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", id, err)
	}
	if affected == 0 {
		return apperror.NotFound("user", id)
	}

	return nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*model.User, error) {
	var (
		u         model.User
		email     sql.NullString
		firstName sql.NullString
		lastName  sql.NullString
		picture   sql.NullString
		updatedAt sql.NullTime
	)

	err := s.Scan(
		&u.ID,
		&u.Subject,
		&email,
		&firstName,
		&lastName,
		&picture,
		&u.IsActive,
		&u.IsSuperuser,
		&u.ProfileComplete,
		&u.CreatedAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.Email = stringPtr(email)
	u.FirstName = stringPtr(firstName)
	u.LastName = stringPtr(lastName)
	u.ProfilePictureURL = stringPtr(picture)
	if updatedAt.Valid {
		t := updatedAt.Time
		u.UpdatedAt = &t
	}

	return &u, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
