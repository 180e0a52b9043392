// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered user account.
//
// We use a hosted identity provider for authentication, so the primary
// external identifier is the token's "sub" claim. We still generate our own
// internal string ID (xid) for consistency with Listing and to avoid tying
// our primary keys to a third-party's identifier scheme.
//
// The UNIQUE constraint on subject in the DB ensures one provider identity
// maps to exactly one local account. Subject is immutable once created.
//
// Email and the name fields are pointers because the provider may not share
// them: an absent claim is "unknown", which is different from an empty
// string. ProfileComplete records whether email and name were both present
// at the last reconciliation.
type User struct {
	ID                string     `json:"id"`
	Subject           string     `json:"-"` // provider "sub" claim, not exposed over HTTP
	Email             *string    `json:"email"`
	FirstName         *string    `json:"first_name"`
	LastName          *string    `json:"last_name"`
	ProfilePictureURL *string    `json:"profile_picture_url"`
	IsActive          bool       `json:"is_active"`
	IsSuperuser       bool       `json:"is_superuser"`
	ProfileComplete   bool       `json:"profile_complete"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         *time.Time `json:"updated_at"`
}

// FullName joins whichever name parts are present.
func (u *User) FullName() string {
	switch {
	case u.FirstName != nil && u.LastName != nil:
		return *u.FirstName + " " + *u.LastName
	case u.FirstName != nil:
		return *u.FirstName
	case u.LastName != nil:
		return *u.LastName
	}
	return ""
}

// UserUpdate carries a partial profile update. Nil means "leave unchanged".
type UserUpdate struct {
	Email             *string `json:"email"`
	FirstName         *string `json:"first_name"`
	LastName          *string `json:"last_name"`
	ProfilePictureURL *string `json:"profile_picture_url"`
}
