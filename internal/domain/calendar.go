package domain

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// CapabilityID is the unguessable token that names a shared calendar.
// Knowing it is the only access check.
type CapabilityID string

func (id CapabilityID) String() string { return string(id) }

// CalendarDocument is a serialized iCalendar body as stored for one link.
type CalendarDocument struct {
	ID        CapabilityID
	Body      []byte
	UpdatedAt time.Time
}

// Calendar is the persisted row behind a capability link. Saving replaces
// the whole document.
type Calendar struct {
	bun.BaseModel `bun:"table:calendars"`

	ID        string    `bun:"id,pk"`
	Document  string    `bun:"document,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

func (c *Calendar) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		c.UpdatedAt = now
	case *bun.UpdateQuery:
		c.UpdatedAt = now
	}
	return nil
}

func (c Calendar) ToDocument() CalendarDocument {
	return CalendarDocument{
		ID:        CapabilityID(c.ID),
		Body:      []byte(c.Document),
		UpdatedAt: c.UpdatedAt,
	}
}
