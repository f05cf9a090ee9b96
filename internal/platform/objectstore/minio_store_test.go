package objectstore

import (
	"errors"
	"net/http"
	"testing"

	"github.com/minio/minio-go/v7"
)

func TestNewMinioStoreValidatesConfig(t *testing.T) {
	if _, err := NewMinioStore(Config{Endpoint: "http://minio:9000"}); err == nil {
		t.Fatalf("expected validation error")
	}
	store, err := NewMinioStore(Config{
		Endpoint:  "minio:9000",
		AccessKey: "animus",
		SecretKey: "animus-secret",
		Region:    "us-east-1",
		Bucket:    "mlartifacts",
	})
	if err != nil {
		t.Fatalf("NewMinioStore() err=%v", err)
	}
	if store.region != "us-east-1" {
		t.Fatalf("region=%q", store.region)
	}
}

func TestMapErrorNotFound(t *testing.T) {
	for _, err := range []error{
		minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound},
		minio.ErrorResponse{Code: "NoSuchBucket", StatusCode: http.StatusNotFound},
	} {
		if got := mapError(err, "b", "k"); !errors.Is(got, ErrObjectNotFound) {
			t.Fatalf("mapError(%v)=%v, want ErrObjectNotFound", err, got)
		}
	}
	denied := minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}
	if got := mapError(denied, "b", "k"); errors.Is(got, ErrObjectNotFound) {
		t.Fatalf("mapError(AccessDenied) mapped to not found")
	}
	if mapError(nil, "b", "k") != nil {
		t.Fatalf("mapError(nil) != nil")
	}
}
