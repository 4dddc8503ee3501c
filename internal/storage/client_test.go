package storage

import (
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"
)

func TestNewClientRequiresBucket(t *testing.T) {
	if _, err := NewClient(Config{Endpoint: "localhost:9000", Bucket: " "}); err == nil {
		t.Fatal("expected missing bucket error")
	}
}

func TestIsNotFound(t *testing.T) {
	for _, code := range []string{"NoSuchKey", "NoSuchObject", "NoSuchBucket"} {
		if !isNotFound(minio.ErrorResponse{Code: code}) {
			t.Fatalf("expected %s to read as not found", code)
		}
	}
	if isNotFound(minio.ErrorResponse{Code: "AccessDenied"}) {
		t.Fatal("expected AccessDenied to be a real error")
	}
	if isNotFound(errors.New("connection refused")) {
		t.Fatal("expected plain errors to be real errors")
	}
}
