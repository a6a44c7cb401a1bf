package repository

import (
	"context"

	"visit-recorder/internal/domain"
)

// Table is the name of the visits table shared by every backend
const Table = "visiteurs"

// Columns of the visits table, in insert order (id is generated)
var Columns = []string{"ip", "langue", "navigateur", "appareil", "fuseau", "date_access"}

// VisitRepository abstracts where visits are persisted.
// Implementations acquire a connection per call and release it before returning.
type VisitRepository interface {
	// EnsureSchema creates the visits table if it does not exist yet.
	// It is safe to call on every request.
	EnsureSchema(ctx context.Context) error

	// Create inserts a visit and sets its generated ID
	Create(ctx context.Context, visit *domain.Visit) error

	// List returns visits newest first, skipping offset rows. A limit <= 0
	// returns every remaining row.
	List(ctx context.Context, limit, offset int) ([]*domain.Visit, error)

	// Count returns the number of stored visits
	Count(ctx context.Context) (int64, error)

	Ping(ctx context.Context) error
	Close()
}
