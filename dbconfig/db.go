package dbconfig

import (
	"context"
	"database/sql"
	"time"

	commonerrors "github.com/ClipFinance/approval-lib/common/errors"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

const defaultQueryTimeout = 10 * time.Second

type DBConfig struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// NewDBConfig creates a new DBConfig instance with the provided connection string.
// The connection string is parsed here; the first connection is made by the first query.
//
// Parameters:
// - connStr: the database connection string (URL or key=value form).
//
// Returns:
// - *DBConfig: a pointer to the newly created DBConfig instance.
// - error: an error if the connection string is invalid.
func NewDBConfig(connStr string) (*DBConfig, error) {
	if connStr == "" {
		return nil, errors.Wrap(commonerrors.ErrInvalidConfig, "empty database connection string")
	}

	connector, err := pq.NewConnector(connStr)
	if err != nil {
		return nil, errors.Wrapf(commonerrors.ErrInvalidConfig, "database connection string: %v", err)
	}

	return NewDBConfigFromDB(sql.OpenDB(connector)), nil
}

// NewDBConfigFromDB wraps an already opened database handle.
func NewDBConfigFromDB(db *sql.DB) *DBConfig {
	return &DBConfig{
		db:           db,
		queryTimeout: defaultQueryTimeout,
	}
}

// Ping checks that the database is reachable.
func (r *DBConfig) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	if err := r.db.PingContext(ctx); err != nil {
		return errors.Wrapf(commonerrors.ErrDatabaseConnect, "ping: %v", err)
	}
	return nil
}

// Close releases the connection pool.
func (r *DBConfig) Close() error {
	return r.db.Close()
}

func dbError(op string, err error) error {
	return errors.Wrapf(commonerrors.ErrDatabaseConnect, "%s: %v", op, err)
}
