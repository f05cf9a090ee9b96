package tracking

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/animus-labs/animus-tracking/internal/platform/postgres"
)

type BackendKind string

const (
	BackendREST     BackendKind = "rest"
	BackendPostgres BackendKind = "postgres"
	BackendSQLite   BackendKind = "sqlite"
)

// Target is a parsed tracking URI.
type Target struct {
	Kind BackendKind
	// URL is set for REST and Postgres targets.
	URL string
	// Dir is the local tracking directory for SQLite targets.
	Dir string
}

// DatabasePath is the SQLite file backing a local target.
func (t Target) DatabasePath() string {
	return filepath.Join(t.Dir, "tracking.db")
}

// ArtifactDir is where a local target keeps artifacts when no object store
// is configured.
func (t Target) ArtifactDir() string {
	return filepath.Join(t.Dir, "artifacts")
}

// ParseURI resolves a tracking URI: http(s) URLs address a tracking server,
// postgres URLs a database, and sqlite://PATH or a bare path a local
// directory.
func ParseURI(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Target{}, errors.New("tracking uri is required")
	}
	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return Target{Kind: BackendREST, URL: raw}, nil
	case postgres.IsURL(raw):
		return Target{Kind: BackendPostgres, URL: raw}, nil
	case strings.HasPrefix(lower, "sqlite://"):
		dir := raw[len("sqlite://"):]
		if dir == "" {
			return Target{}, fmt.Errorf("sqlite tracking uri has no path: %q", raw)
		}
		return Target{Kind: BackendSQLite, Dir: filepath.Clean(dir)}, nil
	case strings.Contains(raw, "://"):
		return Target{}, fmt.Errorf("unsupported tracking uri scheme: %q", raw)
	default:
		return Target{Kind: BackendSQLite, Dir: filepath.Clean(raw)}, nil
	}
}
