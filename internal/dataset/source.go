package dataset

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/animus-labs/animus-tracking/internal/platform/objectstore"
)

// Source opens split files by name.
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	String() string
}

// FileSource reads splits from a local directory.
type FileSource struct {
	Dir string
}

func (s FileSource) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.Dir, name))
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s FileSource) String() string {
	return s.Dir
}

// ObjectSource reads splits from a bucket prefix.
type ObjectSource struct {
	Store  objectstore.Store
	Bucket string
	Prefix string
}

func (s ObjectSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if s.Store == nil {
		return nil, fmt.Errorf("object source %s: store not configured", s)
	}
	rc, _, err := s.Store.Get(ctx, s.Bucket, path.Join(s.Prefix, name))
	if err != nil {
		return nil, err
	}
	return rc, nil
}

func (s ObjectSource) String() string {
	return "s3://" + path.Join(s.Bucket, s.Prefix)
}

// IsObjectURI reports whether raw names an s3:// location.
func IsObjectURI(raw string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(raw)), "s3://")
}

// ParseObjectURI splits s3://bucket/prefix into its parts.
func ParseObjectURI(raw string) (bucket, prefix string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("parse data path: %w", err)
	}
	if !strings.EqualFold(u.Scheme, "s3") || u.Host == "" {
		return "", "", fmt.Errorf("data path %q is not s3://bucket/prefix", raw)
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}
