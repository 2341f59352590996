// Package postgres implements the PostgreSQL persistence layer of the
// admissions core: applications, the audit log, the program catalog,
// applicant profiles, messages and notifications.
//
// Repositories take their queries through the transaction carried by the
// context when there is one, so a lifecycle operation and its audit entries
// commit or roll back together.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/admissions-hub/admissions-core/config"
	"github.com/admissions-hub/admissions-core/internal/domain/application"
	"github.com/admissions-hub/admissions-core/internal/domain/shared"
)

var (
	// ErrConnectionClosed is returned by every call after Close.
	ErrConnectionClosed = errors.New("postgres: connection pool is closed")
	// ErrNoDatabaseURL is returned when neither a URL nor a host is configured.
	ErrNoDatabaseURL = errors.New("postgres: database url is not configured")
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config describes the pool. URL, when set, wins over the discrete fields.
type Config struct {
	URL string

	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration
}

// DefaultConfig returns pool settings for a small service.
func DefaultConfig() Config {
	return Config{
		Port:              5432,
		Database:          "admissions",
		User:              "postgres",
		SSLMode:           "disable",
		MaxConns:          10,
		MinConns:          2,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   30 * time.Minute,
		HealthCheckPeriod: time.Minute,
		ConnectTimeout:    10 * time.Second,
	}
}

// ConfigFromApp maps the application's database settings onto a pool config.
func ConfigFromApp(db config.DatabaseConfig) Config {
	cfg := DefaultConfig()
	cfg.URL = db.URL
	if db.MaxOpenConns > 0 {
		cfg.MaxConns = int32(db.MaxOpenConns)
	}
	if db.MaxIdleConns > 0 {
		cfg.MinConns = int32(min(db.MaxIdleConns, int(cfg.MaxConns)))
	}
	if db.ConnMaxLifetime > 0 {
		cfg.MaxConnLifetime = db.ConnMaxLifetime
	}
	if db.ConnMaxIdleTime > 0 {
		cfg.MaxConnIdleTime = db.ConnMaxIdleTime
	}
	return cfg
}

// DSN returns the connection string, or "" when nothing is configured.
func (c Config) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	if c.Host == "" {
		return ""
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.Host + ":" + strconv.Itoa(c.Port),
		Path:   "/" + c.Database,
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(c.ConnectTimeout.Seconds())))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// PoolConfig parses the DSN and applies the pool limits.
func (c Config) PoolConfig() (*pgxpool.Config, error) {
	dsn := c.DSN()
	if dsn == "" {
		return nil, ErrNoDatabaseURL
	}
	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse connection string: %w", err)
	}

	set := func(dst *time.Duration, v time.Duration) {
		if v > 0 {
			*dst = v
		}
	}
	if c.MaxConns > 0 {
		pc.MaxConns = c.MaxConns
	}
	if c.MinConns > 0 {
		pc.MinConns = c.MinConns
	}
	set(&pc.MaxConnLifetime, c.MaxConnLifetime)
	set(&pc.MaxConnIdleTime, c.MaxConnIdleTime)
	set(&pc.HealthCheckPeriod, c.HealthCheckPeriod)
	set(&pc.ConnConfig.ConnectTimeout, c.ConnectTimeout)
	return pc, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CONNECTION
// ══════════════════════════════════════════════════════════════════════════════

// Connection is the shared pool. It implements application.Transactor and
// routes queries through the transaction in the context, if any.
type Connection struct {
	pool   *pgxpool.Pool
	closed atomic.Bool
}

var _ application.Transactor = (*Connection)(nil)

// NewConnection opens the pool and pings the database.
func NewConnection(ctx context.Context, cfg Config) (*Connection, error) {
	pc, err := cfg.PoolConfig()
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Connection{pool: pool}, nil
}

// Close closes the pool. Later calls are no-ops.
func (c *Connection) Close() {
	if c.closed.CompareAndSwap(false, true) && c.pool != nil {
		c.pool.Close()
	}
}

// Ping checks the database for health reporting.
func (c *Connection) Ping(ctx context.Context) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	return c.pool.Ping(ctx)
}

type txKey struct{}

// WithinTx runs fn in a read-committed transaction carried by the context
// handed to fn; nested calls join the outer transaction. Serialization
// failures and deadlocks come back as shared.ErrConcurrentModification so
// callers can retry.
func (c *Connection) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	err := pgx.BeginTxFunc(ctx, c.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
	if IsSerializationFailure(err) {
		return shared.WrapError("application", "Save", shared.ErrConcurrentModification,
			"transaction aborted by a concurrent writer", err)
	}
	return err
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (c *Connection) querier(ctx context.Context) (querier, error) {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx, nil
	}
	if c.closed.Load() {
		return nil, ErrConnectionClosed
	}
	return c.pool, nil
}

// Exec runs a statement that returns no rows.
func (c *Connection) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q, err := c.querier(ctx)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	return q.Exec(ctx, sql, args...)
}

// Query runs a query that returns rows.
func (c *Connection) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	q, err := c.querier(ctx)
	if err != nil {
		return nil, err
	}
	return q.Query(ctx, sql, args...)
}

// QueryRow runs a query that returns at most one row.
func (c *Connection) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	q, err := c.querier(ctx)
	if err != nil {
		return errRow{err: err}
	}
	return q.QueryRow(ctx, sql, args...)
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

// ══════════════════════════════════════════════════════════════════════════════
// ERROR HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation checks if the error is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	return pgCode(err) == "23505"
}

// IsForeignKeyViolation checks if the error is a foreign key violation.
func IsForeignKeyViolation(err error) bool {
	return pgCode(err) == "23503"
}

// IsNotNullViolation checks if the error is a not null violation.
func IsNotNullViolation(err error) bool {
	return pgCode(err) == "23502"
}

// IsSerializationFailure reports serialization failures and deadlocks, both
// of which succeed when the transaction is re-run.
func IsSerializationFailure(err error) bool {
	switch pgCode(err) {
	case "40001", "40P01":
		return true
	default:
		return false
	}
}

// IsNoRows checks if the error is a "no rows" error.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
