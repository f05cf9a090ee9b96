package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/animus-labs/animus-tracking/internal/platform/sqlite"
	"github.com/animus-labs/animus-tracking/internal/repo"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Dialect selects the SQL flavour of the underlying database.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DB is satisfied by both *sql.DB and *sql.Tx.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements the tracking and registry repositories on a SQL database.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
	actor   string
	host    string
}

type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithAuditIdentity sets the actor and host recorded in audit events.
func WithAuditIdentity(actor, host string) Option {
	return func(s *Store) {
		s.actor = strings.TrimSpace(actor)
		s.host = strings.TrimSpace(host)
	}
}

func New(db *sql.DB, dialect Dialect, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	switch dialect {
	case DialectSQLite, DialectPostgres:
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	s := &Store{db: db, dialect: dialect, now: time.Now, actor: "unknown"}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) retry(ctx context.Context, op func() error) error {
	if s.dialect == DialectSQLite {
		return sqlite.RetryOnBusy(ctx, op)
	}
	return op()
}

// inTx runs fn in a transaction, committing on nil and rolling back otherwise.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return s.retry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

func (s *Store) nowUTC() time.Time {
	return s.now().UTC()
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func handleNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repo.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var (
	_ repo.Backend                 = (*Store)(nil)
	_ repo.AtomicStageTransitioner = (*Store)(nil)
	_ repo.StageAuditor            = (*Store)(nil)
)
