package ingest

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/marketplace-registry/marketplace-registry/internal/validation"
)

// ExtractPackage unpacks a stored module archive (always tar.gz) into dest.
// The QA worker uses it to restage content for analysis.
func ExtractPackage(data []byte, maxSize int64, dest string) error {
	return extractArchive(data, validation.ArchiveTarGz, maxSize, dest)
}

// extractArchive validates and unpacks an uploaded archive into dest.
func extractArchive(data []byte, kind validation.ArchiveKind, maxSize int64, dest string) error {
	if err := validation.ValidateArchive(data, kind, maxSize); err != nil {
		return classifyArchiveError(err)
	}

	switch kind {
	case validation.ArchiveTarGz:
		return extractTarGz(data, dest)
	case validation.ArchiveZip:
		return extractZip(data, dest)
	default:
		return &IngestionError{Kind: "corrupt", Err: fmt.Errorf("unsupported archive kind %s", kind)}
	}
}

func classifyArchiveError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "exceeds"):
		return &IngestionError{Kind: "too_large", Err: err}
	case strings.Contains(msg, "path"), strings.Contains(msg, "link"):
		return &IngestionError{Kind: "traversal", Err: err}
	default:
		return &IngestionError{Kind: "corrupt", Err: err}
	}
}

func extractTarGz(data []byte, dest string) error {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return &IngestionError{Kind: "corrupt", Err: err}
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return &IngestionError{Kind: "corrupt", Err: err}
		}

		// Paths were validated before extraction; Clean keeps joins tidy.
		target := filepath.Join(dest, filepath.FromSlash(filepath.Clean(header.Name)))

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr, header.FileInfo().Mode()); err != nil {
				return err
			}
		}
	}
}

func extractZip(data []byte, dest string) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return &IngestionError{Kind: "corrupt", Err: err}
	}

	for _, file := range zr.File {
		target := filepath.Join(dest, filepath.FromSlash(filepath.Clean(file.Name)))

		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return &IngestionError{Kind: "corrupt", Err: err}
		}
		err = writeEntry(target, rc, file.Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func writeEntry(target string, r io.Reader, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, r)
	return err
}

// packTarGz archives a staged directory for permanent storage. Entries are
// written in sorted path order so identical trees produce identical archives.
func packTarGz(dir string) ([]byte, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk staged directory: %w", err)
	}
	sort.Strings(paths)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for _, path := range paths {
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}

		header := &tar.Header{
			Name: filepath.ToSlash(rel),
			Mode: int64(info.Mode().Perm()),
			Size: info.Size(),
		}
		if err := tw.WriteHeader(header); err != nil {
			return nil, err
		}

		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		_, err = io.Copy(tw, f)
		f.Close()
		if err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
