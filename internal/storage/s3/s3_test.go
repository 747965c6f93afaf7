package s3

import (
	"strings"
	"testing"

	"github.com/marketplace-registry/marketplace-registry/internal/config"
)

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(&config.S3StorageConfig{Region: "us-east-1"})
	if err == nil || !strings.Contains(err.Error(), "bucket") {
		t.Errorf("expected bucket error, got %v", err)
	}
}

func TestNewRequiresRegion(t *testing.T) {
	_, err := New(&config.S3StorageConfig{Bucket: "marketplace-modules"})
	if err == nil || !strings.Contains(err.Error(), "region") {
		t.Errorf("expected region error, got %v", err)
	}
}

func TestNewRejectsIncompleteStaticCredentials(t *testing.T) {
	_, err := New(&config.S3StorageConfig{
		Bucket:      "marketplace-modules",
		Region:      "us-east-1",
		AuthMethod:  "static",
		AccessKeyID: "AKIAEXAMPLE",
	})
	if err == nil || !strings.Contains(err.Error(), "secret_access_key") {
		t.Errorf("expected static credential error, got %v", err)
	}
}

func TestNewRejectsUnknownAuthMethod(t *testing.T) {
	_, err := New(&config.S3StorageConfig{
		Bucket:     "marketplace-modules",
		Region:     "us-east-1",
		AuthMethod: "kerberos",
	})
	if err == nil || !strings.Contains(err.Error(), "auth_method") {
		t.Errorf("expected auth_method error, got %v", err)
	}
}
