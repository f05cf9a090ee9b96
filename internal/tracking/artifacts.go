package tracking

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/animus-labs/animus-tracking/internal/domain"
	"github.com/animus-labs/animus-tracking/internal/platform/objectstore"
)

// ArtifactStore places run artifacts in a bucket and names them by URI.
type ArtifactStore struct {
	store  objectstore.Store
	bucket string
	root   string
}

// Artifact describes one stored run artifact.
type Artifact struct {
	Path      string
	URI       string
	ObjectKey string
	SHA256    string
	SizeBytes int64
}

// NewArtifactStore returns a store writing into bucket. root is the URI
// prefix that names the bucket, e.g. s3://mlartifacts.
func NewArtifactStore(store objectstore.Store, bucket, root string) (*ArtifactStore, error) {
	if store == nil {
		return nil, errors.New("object store is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	root = strings.TrimSuffix(strings.TrimSpace(root), "/")
	if root == "" {
		return nil, errors.New("artifact root is required")
	}
	return &ArtifactStore{store: store, bucket: bucket, root: root}, nil
}

// Root is the URI prefix of every artifact in the store.
func (s *ArtifactStore) Root() string {
	if s == nil {
		return ""
	}
	return s.root
}

func (s *ArtifactStore) Put(ctx context.Context, run domain.Run, artifactPath string, body []byte, contentType string) (Artifact, error) {
	if s == nil || s.store == nil {
		return Artifact{}, errors.New("artifact store not initialized")
	}
	artifactPath = strings.Trim(path.Clean("/"+strings.TrimSpace(artifactPath)), "/")
	if artifactPath == "" {
		return Artifact{}, errors.New("artifact path is required")
	}
	if strings.TrimSpace(run.ID) == "" {
		return Artifact{}, errors.New("run id is required")
	}

	key := path.Join(s.runPrefix(run), artifactPath)
	size := int64(len(body))
	if err := s.store.Put(ctx, s.bucket, key, bytes.NewReader(body), size, strings.TrimSpace(contentType)); err != nil {
		return Artifact{}, fmt.Errorf("put artifact %s: %w", artifactPath, err)
	}
	sum := sha256.Sum256(body)
	return Artifact{
		Path:      artifactPath,
		URI:       s.root + "/" + key,
		ObjectKey: key,
		SHA256:    hex.EncodeToString(sum[:]),
		SizeBytes: size,
	}, nil
}

func (s *ArtifactStore) Get(ctx context.Context, uri string) (io.ReadCloser, error) {
	if s == nil || s.store == nil {
		return nil, errors.New("artifact store not initialized")
	}
	key, ok := strings.CutPrefix(uri, s.root+"/")
	if !ok {
		return nil, fmt.Errorf("artifact %q is outside %s", uri, s.root)
	}
	rc, _, err := s.store.Get(ctx, s.bucket, key)
	if err != nil {
		return nil, err
	}
	return rc, nil
}

// runPrefix follows the run's artifact URI when it lives in this store and
// falls back to experiment/run/artifacts otherwise.
func (s *ArtifactStore) runPrefix(run domain.Run) string {
	if key, ok := strings.CutPrefix(run.ArtifactURI, s.root+"/"); ok && key != "" {
		return strings.Trim(key, "/")
	}
	exp := strings.TrimSpace(run.ExperimentID)
	if exp == "" {
		exp = "0"
	}
	return path.Join(exp, run.ID, "artifacts")
}
