package domain

import "context"

// BatchEntry pairs a head record with the detail that was live when the
// entry went dirty. Detail may be nil when only head fields changed.
type BatchEntry struct {
	User   *User
	Detail *UserDetail
}

// Storage is the backing-store collaborator. Column layout, password
// hashing, and the encoding of settings/groups/contacts are storage
// concerns; the core reads and rewrites them wholesale.
//
// Lookups that find nothing return zero values with a nil error; errors are
// reserved for the store itself failing.
type Storage interface {
	// Login verifies credentials and returns the account uuid, or "" when
	// the email is unknown or the password does not match.
	Login(ctx context.Context, email, password string) (string, error)

	// GetUUID translates an email to an account uuid, case-insensitively.
	// It is the single source of email resolution for contact lookups.
	GetUUID(ctx context.Context, email string) (string, error)

	// GetUser loads a head record, or nil when the uuid is unknown.
	GetUser(ctx context.Context, uuid string) (*User, error)

	// GetDetail loads the full settings/groups/contacts graph.
	GetDetail(ctx context.Context, uuid string) (*UserDetail, error)

	// SaveBatch writes dirty head+detail pairs back in one round trip.
	SaveBatch(ctx context.Context, entries []BatchEntry) error
}
