// Package postgres loads per-client quota overrides from a Postgres
// configuration table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ajiwo/admission/quotas"
	"github.com/ajiwo/admission/window"
)

const (
	createTableSQL = `
CREATE TABLE IF NOT EXISTS configuration (
	id           SERIAL PRIMARY KEY,
	service_name TEXT    NOT NULL,
	client_id    TEXT    NOT NULL,
	rate_limit   INTEGER NOT NULL,
	window_size  INTEGER NOT NULL,
	UNIQUE (service_name, client_id)
)`

	selectSQL = `
SELECT service_name, client_id, rate_limit, window_size
FROM configuration
WHERE $1 = '' OR service_name = $1
ORDER BY service_name, client_id`
)

// WindowUnit is the unit of the window_size column
const WindowUnit = time.Minute

var ErrInvalidRow = errors.New("invalid configuration row")

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Row is one record of the configuration table
type Row struct {
	Service    string
	ClientID   string
	RateLimit  int
	WindowSize int // minutes
}

// Quota converts the row into a window quota
func (r Row) Quota() window.Quota {
	return window.Quota{
		Limit:  r.RateLimit,
		Window: time.Duration(r.WindowSize) * WindowUnit,
	}
}

func (r Row) String() string {
	return fmt.Sprintf("%s (%s): %d, %d", r.ClientID, r.Service, r.RateLimit, r.WindowSize)
}

// EnsureSchema creates the configuration table when it does not exist
func EnsureSchema(ctx context.Context, db Execer) error {
	if _, err := db.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create configuration table: %w", err)
	}
	return nil
}

// List returns the configuration rows of service, or every row when service
// is empty.
func List(ctx context.Context, db Querier, service string) ([]Row, error) {
	rows, err := db.Query(ctx, selectSQL, service)
	if err != nil {
		return nil, fmt.Errorf("failed to query quota configuration: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Row, error) {
		var r Row
		err := row.Scan(&r.Service, &r.ClientID, &r.RateLimit, &r.WindowSize)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read quota configuration: %w", err)
	}
	return out, nil
}

// Load reads the overrides of service into an immutable table. Any invalid
// row fails the whole load. An empty service loads every row, so a client
// configured under two services is rejected as ambiguous.
func Load(ctx context.Context, db Querier, service string) (*quotas.Table, error) {
	rows, err := List(ctx, db, service)
	if err != nil {
		return nil, err
	}

	entries := make(map[string]window.Quota, len(rows))
	owners := make(map[string]string, len(rows))
	for _, r := range rows {
		if first, dup := owners[r.ClientID]; dup {
			return nil, fmt.Errorf("%w: client %q is configured for services %q and %q, set a service filter (ADMISSION_SERVICE)",
				ErrInvalidRow, r.ClientID, first, r.Service)
		}
		owners[r.ClientID] = r.Service
		q := r.Quota()
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("%w: client %q: %w", ErrInvalidRow, r.ClientID, err)
		}
		entries[r.ClientID] = q
	}

	return quotas.NewTable(entries)
}
