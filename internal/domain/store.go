package domain

import "context"

// TowerStore is the persistent tower table as seen by resolution.
// Lookups return (nil, nil) when nothing matches.
type TowerStore interface {
	// FindExact returns the tower for (mcc, mnc, cellID, lac). A nil lac
	// matches any LAC.
	FindExact(ctx context.Context, mcc, mnc int, cellID int64, lac *int) (*Tower, error)

	// FindBySignature returns candidates ordered by most recently updated.
	FindBySignature(ctx context.Context, q SignatureQuery) ([]Tower, error)

	// GetOrCreate inserts t unless a tower with the same key exists, and
	// returns the stored row and whether it was created.
	GetOrCreate(ctx context.Context, t Tower) (Tower, bool, error)

	// ApplyPatch applies a partial update to the tower with the given ID.
	ApplyPatch(ctx context.Context, id int64, p TowerPatch) (Tower, error)
}
