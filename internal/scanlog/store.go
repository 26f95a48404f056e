package scanlog

import (
	"context"

	id "pharmatrust/pkg/domain"
)

// DefaultHistoryLimit bounds ListByUser when the caller does not say.
const DefaultHistoryLimit = 50

// Store is the append-only persistence behind the audit trail. Append is
// called synchronously on the verification path so an accepted scan response
// always implies a persisted entry.
type Store interface {
	Append(ctx context.Context, e Entry) error
	ListByUser(ctx context.Context, userID id.UserID, limit int) ([]Entry, error)
}
