package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// downloadArchive fetches an archive over HTTP with the configured wall-clock
// timeout and a hard byte bound enforced while streaming.
func (s *Service) downloadArchive(ctx context.Context, url string) ([]byte, error) {
	dlCtx, cancel := context.WithTimeout(ctx, s.cfg.Ingestion.DownloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(dlCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &IngestionError{Kind: "network", Err: err}
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &IngestionError{Kind: "network", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &IngestionError{Kind: "network", Err: fmt.Errorf("download returned status %d", resp.StatusCode)}
	}

	maxBytes := s.cfg.Ingestion.MaxArchiveBytes()
	if resp.ContentLength > maxBytes {
		return nil, &IngestionError{Kind: "too_large", Err: fmt.Errorf("remote archive is %d bytes, limit is %d", resp.ContentLength, maxBytes)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, &IngestionError{Kind: "network", Err: err}
	}
	if int64(len(data)) > maxBytes {
		return nil, &IngestionError{Kind: "too_large", Err: fmt.Errorf("remote archive exceeds the %d byte limit", maxBytes)}
	}
	return data, nil
}
