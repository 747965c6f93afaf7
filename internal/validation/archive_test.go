package validation

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"strings"
	"testing"
)

func buildTarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDetectArchiveKind(t *testing.T) {
	cases := map[string]ArchiveKind{
		"module.tar.gz": ArchiveTarGz,
		"module.tgz":    ArchiveTarGz,
		"Module.ZIP":    ArchiveZip,
	}
	for name, want := range cases {
		kind, err := DetectArchiveKind(name)
		if err != nil {
			t.Errorf("DetectArchiveKind(%q) error: %v", name, err)
		}
		if kind != want {
			t.Errorf("DetectArchiveKind(%q) = %s, want %s", name, kind, want)
		}
	}

	if _, err := DetectArchiveKind("module.rar"); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestValidateArchive_ValidTarGz(t *testing.T) {
	data := buildTarGz(t, map[string]string{"manifest.json": "{}", "main.py": "pass"})
	if err := ValidateArchive(data, ArchiveTarGz, 0); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateArchive_ValidZip(t *testing.T) {
	data := buildZip(t, map[string]string{"manifest.json": "{}"})
	if err := ValidateArchive(data, ArchiveZip, 0); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateArchive_PathTraversal(t *testing.T) {
	data := buildTarGz(t, map[string]string{"../../etc/passwd": "root"})
	err := ValidateArchive(data, ArchiveTarGz, 0)
	if err == nil || !strings.Contains(err.Error(), "traversal") {
		t.Errorf("expected path traversal error, got %v", err)
	}
}

func TestValidateArchive_ZipPathTraversal(t *testing.T) {
	data := buildZip(t, map[string]string{"../escape.txt": "x"})
	err := ValidateArchive(data, ArchiveZip, 0)
	if err == nil {
		t.Error("expected path traversal error for zip")
	}
}

func TestValidateArchive_SizeBound(t *testing.T) {
	big := strings.Repeat("a", 2048)
	data := buildTarGz(t, map[string]string{"big.txt": big})
	err := ValidateArchive(data, ArchiveTarGz, 1024)
	if err == nil {
		t.Error("expected size bound error")
	}
}

func TestValidateArchive_Empty(t *testing.T) {
	data := buildTarGz(t, map[string]string{})
	err := ValidateArchive(data, ArchiveTarGz, 0)
	if err == nil || !strings.Contains(err.Error(), "empty") {
		t.Errorf("expected empty archive error, got %v", err)
	}
}

func TestValidateArchive_NotGzip(t *testing.T) {
	err := ValidateArchive([]byte("plain text"), ArchiveTarGz, 0)
	if err == nil {
		t.Error("expected gzip format error")
	}
}

func TestValidatePath(t *testing.T) {
	bad := []string{"/etc/passwd", "../up", "a/../../b", `C:\windows\system32`, ".git/config"}
	for _, p := range bad {
		if err := ValidatePath(p); err == nil {
			t.Errorf("ValidatePath(%q) = nil, want error", p)
		}
	}
	good := []string{"manifest.json", "src/main.py", "docs/readme.md", ".hidden"}
	for _, p := range good {
		if err := ValidatePath(p); err != nil {
			t.Errorf("ValidatePath(%q) = %v, want nil", p, err)
		}
	}
}
