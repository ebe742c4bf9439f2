// Package sqlstore implements store.Store on PostgreSQL (pgx) or SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"conclave.org/internal/migrate"
	"conclave.org/internal/store"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"
)

//go:embed migrations
var migrations embed.FS

// Migrations returns the schema files for driver.
func Migrations(driver string) (fs.FS, error) {
	switch driver {
	case DriverPostgres:
		return fs.Sub(migrations, "migrations/postgres")
	case DriverSQLite:
		return fs.Sub(migrations, "migrations/sqlite")
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
}

type Store struct {
	db     *sqlx.DB
	driver string
}

var _ store.Store = (*Store)(nil)

// Open connects to dsn. It does not migrate; call Migrate for that.
func Open(driver, dsn string) (*Store, error) {
	if _, err := Migrations(driver); err != nil {
		return nil, err
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

// New wraps an open handle; the driver name is taken from db.
func New(db *sqlx.DB) *Store {
	switch db.DriverName() {
	case DriverSQLite:
		// one writer; the in-memory database lives on this connection
		db.SetMaxOpenConns(1)
	default:
		// Tuned pool defaults; adjust under load tests
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(15 * time.Minute)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}
	return &Store{db: db, driver: db.DriverName()}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sqlx.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Migrate applies pending schema migrations.
func (s *Store) Migrate(ctx context.Context) ([]string, error) {
	fsys, err := Migrations(s.driver)
	if err != nil {
		return nil, err
	}
	return migrate.NewManager(s.db, fsys).Up(ctx)
}

// InTx runs fn in one database transaction, serializable on PostgreSQL.
func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	opts := &sql.TxOptions{}
	if s.driver == DriverPostgres {
		opts.Isolation = sql.LevelSerializable
	}
	sqlTx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&tx{ctx: ctx, tx: sqlTx}); err != nil {
		return err
	}
	return mapErr(sqlTx.Commit())
}

// mapErr folds driver constraint errors into the store sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", store.ErrDuplicate, pgErr.ConstraintName)
		case "23514":
			return store.ErrNegativeBalance
		case "40001", "40P01":
			return store.ErrConflict
		}
		return err
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return store.ErrDuplicate
		case sqlite3.ErrConstraintCheck:
			return store.ErrNegativeBalance
		}
		if liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked {
			return store.ErrConflict
		}
	}
	return err
}
