// Package storage fetches sensor payloads into the output tree. Locators
// are opaque strings from the scene document; the scheme picks the backend:
// plain paths copy from the local filesystem, http(s):// downloads, and
// cos:// pulls from Tencent Cloud Object Storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/banshee-data/dataset.export/internal/fsutil"
)

// ErrUnsupportedScheme marks locators no configured fetcher can serve.
var ErrUnsupportedScheme = errors.New("unsupported locator scheme")

// Fetcher copies the payload behind a locator to dest on the output
// filesystem.
type Fetcher interface {
	Fetch(ctx context.Context, locator, dest string) error
}

// Router dispatches to a backend fetcher by locator scheme. Nil backends
// reject their scheme with ErrUnsupportedScheme.
type Router struct {
	Local Fetcher
	HTTP  Fetcher
	COS   Fetcher
}

// Fetch routes the locator to the backend matching its scheme.
func (r *Router) Fetch(ctx context.Context, locator, dest string) error {
	var f Fetcher
	scheme := Scheme(locator)
	switch scheme {
	case "":
		f = r.Local
	case "http", "https":
		f = r.HTTP
	case "cos":
		f = r.COS
	default:
		return fmt.Errorf("%w: %q in %s", ErrUnsupportedScheme, scheme, locator)
	}

	if f == nil {
		return fmt.Errorf("%w: no fetcher configured for %q", ErrUnsupportedScheme, scheme)
	}
	return f.Fetch(ctx, locator, dest)
}

// Scheme extracts the lowercase locator scheme; plain paths return "".
func Scheme(locator string) string {
	i := strings.Index(locator, "://")
	if i < 0 {
		return ""
	}
	return strings.ToLower(locator[:i])
}

// writeTo streams r into dest, creating parent directories.
func writeTo(fsys fsutil.FileSystem, dest string, r io.Reader) error {
	if err := fsys.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	w, err := fsys.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
