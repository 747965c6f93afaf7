// Package treehash computes a deterministic SHA-256 content hash over a
// directory tree. The hash covers relative file paths and file contents,
// visited in sorted order, so two submissions with identical content produce
// identical hashes regardless of archive packaging, file timestamps, or
// upload route. The registry uses this hash to detect duplicate module
// submissions before any record is created.
package treehash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// HashDir computes the content hash of the tree rooted at dir. Only regular
// files participate: directories contribute through the paths of the files
// they contain, and symlinks are skipped.
func HashDir(dir string) (string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to walk directory: %w", err)
	}

	// WalkDir visits lexically, but sort explicitly so the ordering contract
	// does not depend on traversal internals.
	sort.Strings(files)

	hasher := sha256.New()
	for _, rel := range files {
		// Path and content are both hashed so renames change the hash.
		fmt.Fprintf(hasher, "%s\x00", rel)
		if err := hashFile(hasher, filepath.Join(dir, filepath.FromSlash(rel))); err != nil {
			return "", err
		}
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func hashFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file for hashing: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to hash file %s: %w", path, err)
	}
	return nil
}

// HashReader computes the SHA-256 hash of a single stream, used for archive
// and version checksums.
func HashReader(reader io.Reader) (string, error) {
	hasher := sha256.New()
	if _, err := io.Copy(hasher, reader); err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
