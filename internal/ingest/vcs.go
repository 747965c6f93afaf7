package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// cloneRepository performs a shallow clone of repoURL at ref (branch or tag
// name, empty for the default branch) into dest. The clone is wall-clock
// bounded by the configured timeout.
func (s *Service) cloneRepository(ctx context.Context, repoURL, ref, dest string) error {
	cloneCtx, cancel := context.WithTimeout(ctx, s.cfg.Ingestion.CloneTimeout)
	defer cancel()

	opts := &git.CloneOptions{
		URL:   repoURL,
		Depth: 1,
	}
	if ref != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(ref)
		opts.SingleBranch = true
	}

	_, err := git.PlainCloneContext(cloneCtx, dest, false, opts)
	if err != nil && ref != "" {
		// The ref may name a tag rather than a branch.
		if cleanErr := clearDir(dest); cleanErr != nil {
			return cleanErr
		}
		opts.ReferenceName = plumbing.NewTagReferenceName(ref)
		_, err = git.PlainCloneContext(cloneCtx, dest, false, opts)
	}
	if err != nil {
		return &IngestionError{Kind: "network", Err: fmt.Errorf("failed to clone %s: %w", repoURL, err)}
	}

	// Repository metadata plays no part in content hashing or analysis.
	return os.RemoveAll(filepath.Join(dest, ".git"))
}

func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}
