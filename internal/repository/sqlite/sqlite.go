// Package sqlite implements the repository interfaces using SQLite as the
// storage backend (modernc.org/sqlite, the pure-Go driver — no CGo).
//
// The domain model treats a listing as a tagged variant, but SQLite has no
// sum types, so the listings table stores both variant field groups as
// nullable columns. The row↔model conversion at this package's boundary is
// the only place that deals with that: rows are written with exactly one
// group populated and read back into the matching variant.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New creates a SQLite database connection and runs migrations.
// Use ":memory:" for tests.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL allows concurrent reads during a write; foreign keys are off by
	// default in SQLite and we rely on listings.user_id → users.id.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	// subject is UNIQUE: one provider identity maps to exactly one account.
	// This constraint is what makes concurrent first registrations safe —
	// the loser of the race gets a constraint violation and retries the
	// lookup (see service.IdentityService.Reconcile).
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id                  TEXT PRIMARY KEY,
			subject             TEXT NOT NULL UNIQUE,
			email               TEXT UNIQUE,
			first_name          TEXT,
			last_name           TEXT,
			profile_picture_url TEXT,
			is_active           INTEGER NOT NULL DEFAULT 1,
			is_superuser        INTEGER NOT NULL DEFAULT 0,
			profile_complete    INTEGER NOT NULL DEFAULT 0,
			created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at          DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_users_subject ON users(subject);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS listings (
			id                  TEXT PRIMARY KEY,
			user_id             TEXT NOT NULL REFERENCES users(id),
			listing_type        TEXT NOT NULL,
			address             TEXT NOT NULL,
			num_rooms_available INTEGER NOT NULL,
			total_rooms         INTEGER NOT NULL,
			num_bathrooms       INTEGER NOT NULL,
			furnished           INTEGER NOT NULL,
			ensuite             INTEGER NOT NULL,
			start_date          TEXT NOT NULL,
			end_date            TEXT NOT NULL,
			distance_to_university INTEGER,
			gym_in_building     INTEGER,
			laundry_in_unit     INTEGER,
			laundry_in_building INTEGER,
			utilities_included  TEXT,
			building_name       TEXT,
			images              TEXT,
			unit_price          REAL,
			total_ensuite       INTEGER,
			total_shared_bathrooms INTEGER,
			price_per_room      REAL,
			ensuite_rooms       INTEGER,
			shared_bathrooms    INTEGER,
			created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at          DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_listings_user_id ON listings(user_id);
		CREATE INDEX IF NOT EXISTS idx_listings_type ON listings(listing_type);
	`)
	if err != nil {
		return fmt.Errorf("creating listings table: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint
// failure. The modernc driver surfaces these as plain errors with the
// SQLite message text.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
