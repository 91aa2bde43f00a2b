package store

import (
	"context"

	"dayplan/backend/internal/domain"
)

// CalendarRepository persists one calendar document per capability id.
// Save is an upsert with last-writer-wins semantics. Load returns
// ErrNotFound when nothing was ever saved under id.
type CalendarRepository interface {
	Save(ctx context.Context, id domain.CapabilityID, body []byte) error
	Load(ctx context.Context, id domain.CapabilityID) (domain.CalendarDocument, error)
}
