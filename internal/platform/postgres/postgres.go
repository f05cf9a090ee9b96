// Package postgres opens the tracking store's PostgreSQL pool through pgx.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/animus-labs/animus-tracking/internal/platform/env"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// Pool holds database/sql pool limits. Both command line tools issue a
// handful of sequential queries, so the defaults stay small.
type Pool struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

func DefaultPool() Pool {
	return Pool{
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		PingTimeout:     2 * time.Second,
	}
}

// PoolFromEnv overlays DATABASE_* variables onto DefaultPool.
func PoolFromEnv() (Pool, error) {
	p := DefaultPool()
	ints := []struct {
		key string
		dst *int
	}{
		{"DATABASE_MAX_OPEN_CONNS", &p.MaxOpenConns},
		{"DATABASE_MAX_IDLE_CONNS", &p.MaxIdleConns},
	}
	for _, v := range ints {
		n, err := env.Int(v.key, *v.dst)
		if err != nil {
			return Pool{}, err
		}
		*v.dst = n
	}
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"DATABASE_CONN_MAX_LIFETIME", &p.ConnMaxLifetime},
		{"DATABASE_CONN_MAX_IDLE_TIME", &p.ConnMaxIdleTime},
		{"DATABASE_PING_TIMEOUT", &p.PingTimeout},
	}
	for _, v := range durations {
		d, err := env.Duration(v.key, *v.dst)
		if err != nil {
			return Pool{}, err
		}
		*v.dst = d
	}
	return p, p.Validate()
}

func (p Pool) Validate() error {
	switch {
	case p.PingTimeout <= 0:
		return errors.New("DATABASE_PING_TIMEOUT must be positive")
	case p.MaxOpenConns < 1:
		return errors.New("DATABASE_MAX_OPEN_CONNS must be >= 1")
	case p.MaxIdleConns < 0 || p.MaxIdleConns > p.MaxOpenConns:
		return fmt.Errorf("DATABASE_MAX_IDLE_CONNS must be between 0 and %d", p.MaxOpenConns)
	case p.ConnMaxLifetime < 0, p.ConnMaxIdleTime < 0:
		return errors.New("DATABASE_CONN_MAX_* durations must be >= 0")
	}
	return nil
}

// Config is a parsed connection plus pool limits.
type Config struct {
	Conn *pgx.ConnConfig
	Pool Pool
}

// ParseConfig parses a postgres:// tracking URI and reads pool limits
// from the environment.
func ParseConfig(rawURL string) (Config, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return Config{}, errors.New("database url is required")
	}
	if !IsURL(rawURL) {
		return Config{}, fmt.Errorf("database url must use postgres:// or postgresql:// (got %q)", rawURL)
	}
	conn, err := pgx.ParseConfig(rawURL)
	if err != nil {
		return Config{}, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := PoolFromEnv()
	if err != nil {
		return Config{}, err
	}
	return Config{Conn: conn, Pool: pool}, nil
}

// String names the database without credentials.
func (c Config) String() string {
	if c.Conn == nil {
		return "postgres://"
	}
	hostPort := net.JoinHostPort(c.Conn.Host, strconv.Itoa(int(c.Conn.Port)))
	if c.Conn.User != "" {
		return fmt.Sprintf("postgres://%s@%s/%s", c.Conn.User, hostPort, c.Conn.Database)
	}
	return fmt.Sprintf("postgres://%s/%s", hostPort, c.Conn.Database)
}

// IsURL reports whether raw names a postgres connection.
func IsURL(raw string) bool {
	lower := strings.ToLower(strings.TrimSpace(raw))
	return strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://")
}

// Open returns a pinged pool. The caller owns the returned handle.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.Conn == nil {
		return nil, errors.New("database connection config is required")
	}
	if err := cfg.Pool.Validate(); err != nil {
		return nil, err
	}

	db := stdlib.OpenDB(*cfg.Conn)
	db.SetMaxOpenConns(cfg.Pool.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Pool.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.Pool.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Pool.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg, err)
	}
	return db, nil
}
