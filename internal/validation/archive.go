package validation

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// DefaultMaxArchiveSize bounds archives when the caller supplies no limit (50MB).
const DefaultMaxArchiveSize = 50 * 1024 * 1024

// ArchiveKind identifies a supported archive container format.
type ArchiveKind string

const (
	ArchiveTarGz ArchiveKind = "tar.gz"
	ArchiveZip   ArchiveKind = "zip"
)

// DetectArchiveKind maps a declared filename to its archive format. An
// unrecognized extension is a client error.
func DetectArchiveKind(filename string) (ArchiveKind, error) {
	name := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return ArchiveTarGz, nil
	case strings.HasSuffix(name, ".zip"):
		return ArchiveZip, nil
	default:
		return "", fmt.Errorf("unsupported archive format: %s (supported: .tar.gz, .tgz, .zip)", filepath.Ext(filename))
	}
}

// ValidateArchive walks an archive's entries without extracting, checking
// container integrity, per-entry path safety, and the total uncompressed size
// bound. It runs before extraction so a hostile archive is rejected without
// writing anything to disk.
func ValidateArchive(data []byte, kind ArchiveKind, maxSize int64) error {
	if maxSize <= 0 {
		maxSize = DefaultMaxArchiveSize
	}
	if int64(len(data)) > maxSize {
		return fmt.Errorf("archive size %d exceeds maximum allowed size of %d bytes", len(data), maxSize)
	}

	switch kind {
	case ArchiveTarGz:
		return validateTarGz(data, maxSize)
	case ArchiveZip:
		return validateZip(data, maxSize)
	default:
		return fmt.Errorf("unsupported archive kind: %s", kind)
	}
}

func validateTarGz(data []byte, maxSize int64) error {
	gzReader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("invalid gzip format: %w", err)
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)

	var totalSize int64
	fileCount := 0
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("invalid tar format: %w", err)
		}

		if header.Typeflag == tar.TypeSymlink || header.Typeflag == tar.TypeLink {
			return fmt.Errorf("links not allowed in archives: %s", header.Name)
		}
		if err := ValidatePath(header.Name); err != nil {
			return fmt.Errorf("invalid file path in archive: %w", err)
		}

		fileCount++
		totalSize += header.Size
		if totalSize > maxSize {
			return fmt.Errorf("archive contents exceed maximum allowed size of %d bytes", maxSize)
		}
	}

	if fileCount == 0 {
		return fmt.Errorf("archive is empty")
	}
	return nil
}

func validateZip(data []byte, maxSize int64) error {
	zipReader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("invalid zip format: %w", err)
	}

	var totalSize int64
	fileCount := 0
	for _, f := range zipReader.File {
		if err := ValidatePath(f.Name); err != nil {
			return fmt.Errorf("invalid file path in archive: %w", err)
		}

		fileCount++
		totalSize += int64(f.UncompressedSize64)
		if totalSize > maxSize {
			return fmt.Errorf("archive contents exceed maximum allowed size of %d bytes", maxSize)
		}
	}

	if fileCount == 0 {
		return fmt.Errorf("archive is empty")
	}
	return nil
}

// ValidatePath rejects archive entry names that could escape the extraction
// directory.
func ValidatePath(path string) error {
	cleaned := filepath.Clean(path)

	if filepath.IsAbs(cleaned) {
		return fmt.Errorf("absolute paths not allowed: %s", path)
	}

	// Windows-style absolute paths (C:\...) can appear in archives built on
	// Windows machines even when the server runs elsewhere.
	if len(cleaned) >= 3 && cleaned[1] == ':' && (cleaned[2] == '\\' || cleaned[2] == '/') {
		return fmt.Errorf("absolute paths not allowed: %s", path)
	}

	if cleaned == ".." || strings.HasPrefix(cleaned, "../") || strings.Contains(cleaned, "/../") {
		return fmt.Errorf("path traversal not allowed: %s", path)
	}

	if strings.HasPrefix(cleaned, ".git") || strings.Contains(cleaned, "/.git/") {
		return fmt.Errorf("git directories not allowed in archives")
	}

	return nil
}
