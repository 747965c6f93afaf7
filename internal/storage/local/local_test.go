package local

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/marketplace-registry/marketplace-registry/internal/config"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(&config.LocalStorageConfig{BasePath: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	info, err := s.Put(ctx, "modules/acme-sync/1.0.0.tar.gz", strings.NewReader("archive bytes"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if info.Size != int64(len("archive bytes")) {
		t.Errorf("Size = %d", info.Size)
	}
	if len(info.Checksum) != 64 {
		t.Errorf("Checksum length = %d, want 64", len(info.Checksum))
	}

	reader, err := s.Get(ctx, "modules/acme-sync/1.0.0.tar.gz")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer reader.Close()
	data, _ := io.ReadAll(reader)
	if string(data) != "archive bytes" {
		t.Errorf("content = %q", data)
	}
}

func TestGetMissing(t *testing.T) {
	s := newStore(t)
	if _, err := s.Get(context.Background(), "nope"); err == nil {
		t.Error("expected error for missing object")
	}
}

func TestDeleteIdempotent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if _, err := s.Put(ctx, "a/b.txt", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "a/b.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// Deleting again is not an error.
	if err := s.Delete(ctx, "a/b.txt"); err != nil {
		t.Errorf("second Delete: %v", err)
	}

	exists, err := s.Exists(ctx, "a/b.txt")
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("object still exists after delete")
	}
}

func TestDeletePrefix(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for _, key := range []string{"modules/m1/1.0.0.tar.gz", "modules/m1/1.1.0.tar.gz", "modules/m2/1.0.0.tar.gz"} {
		if _, err := s.Put(ctx, key, strings.NewReader("x")); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.DeletePrefix(ctx, "modules/m1"); err != nil {
		t.Fatalf("DeletePrefix: %v", err)
	}

	if exists, _ := s.Exists(ctx, "modules/m1/1.0.0.tar.gz"); exists {
		t.Error("m1 object survived DeletePrefix")
	}
	if exists, _ := s.Exists(ctx, "modules/m2/1.0.0.tar.gz"); !exists {
		t.Error("m2 object was removed by unrelated DeletePrefix")
	}
}

func TestKeyEscapeRejected(t *testing.T) {
	s := newStore(t)
	if _, err := s.Put(context.Background(), "../outside.txt", strings.NewReader("x")); err == nil {
		t.Error("expected error for escaping key")
	}
}

func TestStat(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	put, err := s.Put(ctx, "obj", strings.NewReader("hello"))
	if err != nil {
		t.Fatal(err)
	}

	info, err := s.Stat(ctx, "obj")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Checksum != put.Checksum {
		t.Errorf("Stat checksum %s != Put checksum %s", info.Checksum, put.Checksum)
	}
	if info.Size != 5 {
		t.Errorf("Size = %d, want 5", info.Size)
	}
	if info.LastModified.IsZero() {
		t.Error("LastModified not set")
	}
}
