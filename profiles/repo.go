package profiles

import "context"

// Repo reads profile rows from the backing store.
type Repo interface {
	// GetByID returns the profile for a user ID, or (nil, nil) when no row
	// exists. An error means the read itself failed.
	GetByID(ctx context.Context, id string) (*Profile, error)
}
