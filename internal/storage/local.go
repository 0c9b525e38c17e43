package storage

import (
	"context"
	"fmt"

	"github.com/banshee-data/dataset.export/internal/fsutil"
)

// LocalFetcher copies payloads that are already on a filesystem reachable
// through FS.
type LocalFetcher struct {
	FS fsutil.FileSystem
}

// Fetch copies the file at locator to dest.
func (f *LocalFetcher) Fetch(ctx context.Context, locator, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fsutil.CopyFile(f.FS, locator, dest); err != nil {
		return fmt.Errorf("copy %s: %w", locator, err)
	}
	return nil
}
