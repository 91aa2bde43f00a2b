package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"dayplan/backend/internal/domain"
	"dayplan/backend/internal/store"
)

type CalendarRepo struct {
	db *bun.DB
}

func NewCalendarRepo(db *bun.DB) *CalendarRepo {
	return &CalendarRepo{db: db}
}

var _ store.CalendarRepository = (*CalendarRepo)(nil)

// Save upserts the document for id. Writers for the same id are serialized
// on an advisory lock, so the last commit is the stored version.
func (r *CalendarRepo) Save(ctx context.Context, id domain.CapabilityID, body []byte) error {
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockCalendar(ctx, tx, string(id)); err != nil {
			return err
		}
		m := domain.Calendar{
			ID:       string(id),
			Document: string(body),
		}
		_, err := tx.NewInsert().
			Model(&m).
			On("CONFLICT (id) DO UPDATE").
			Set("document = EXCLUDED.document").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		return err
	})
	return mapError("save", err)
}

func (r *CalendarRepo) Load(ctx context.Context, id domain.CapabilityID) (domain.CalendarDocument, error) {
	var row domain.Calendar
	err := r.db.NewSelect().
		Model(&row).
		Where("id = ?", string(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CalendarDocument{}, store.ErrNotFound
		}
		return domain.CalendarDocument{}, mapError("load", err)
	}
	return row.ToDocument(), nil
}

func lockCalendar(ctx context.Context, tx bun.Tx, id string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", id).Exec(ctx)
	return err
}

func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return store.Wrap(op, err, isTemporary(err))
}

func isTemporary(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"), // connection exception
			strings.HasPrefix(pgErr.Code, "53"), // insufficient resources
			pgErr.Code == "40001",               // serialization_failure
			pgErr.Code == "40P01",               // deadlock_detected
			pgErr.Code == "57P01",               // admin_shutdown
			pgErr.Code == "57P03":               // cannot_connect_now
			return true
		}
		return false
	}
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}
