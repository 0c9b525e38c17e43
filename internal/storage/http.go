package storage

import (
	"context"
	"fmt"
	"net/http"

	"github.com/banshee-data/dataset.export/internal/fsutil"
	"github.com/banshee-data/dataset.export/internal/httputil"
)

// HTTPFetcher downloads http(s) payloads through an injectable client.
type HTTPFetcher struct {
	Client httputil.HTTPClient
	FS     fsutil.FileSystem
}

// Fetch GETs the locator and writes the body to dest.
func (f *HTTPFetcher) Fetch(ctx context.Context, locator, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", locator, err)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", locator, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: unexpected status %d", locator, resp.StatusCode)
	}

	if err := writeTo(f.FS, dest, resp.Body); err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return nil
}
