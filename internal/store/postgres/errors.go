package postgres

import (
	"errors"
	"fmt"

	"github.com/dkeye/huddle/internal/store"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// mapPostgresError maps driver errors to store sentinels where one applies.
func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrMeetingNotFound
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgerrcode.ForeignKeyViolation:
		return fmt.Errorf("%w: %s", store.ErrMeetingNotFound, pgErr.Detail)
	case pgerrcode.InvalidTextRepresentation:
		// malformed uuid in a lookup
		return store.ErrMeetingNotFound
	case pgerrcode.QueryCanceled:
		return fmt.Errorf("query canceled: %w", err)
	case pgerrcode.TooManyConnections, pgerrcode.CannotConnectNow:
		return fmt.Errorf("database unavailable: %w", err)
	}
	return fmt.Errorf("postgres error [%s]: %s: %w", pgErr.Code, pgErr.Message, err)
}
