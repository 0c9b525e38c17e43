package storage

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tencentyun/cos-go-sdk-v5"

	"github.com/banshee-data/dataset.export/internal/fsutil"
)

// COSFetcher pulls cos://bucket/key payloads from Tencent Cloud Object
// Storage. Clients are created lazily, one per bucket.
type COSFetcher struct {
	FS        fsutil.FileSystem
	Region    string
	SecretID  string
	SecretKey string
	Timeout   time.Duration

	mu      sync.Mutex
	clients map[string]*cos.Client
}

// Fetch downloads the object behind a cos:// locator to dest.
func (f *COSFetcher) Fetch(ctx context.Context, locator, dest string) error {
	bucket, key, err := parseCOSLocator(locator)
	if err != nil {
		return err
	}

	client, err := f.clientFor(bucket)
	if err != nil {
		return err
	}

	resp, err := client.Object.Get(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", locator, err)
	}
	defer resp.Body.Close()

	if err := writeTo(f.FS, dest, resp.Body); err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return nil
}

func (f *COSFetcher) clientFor(bucket string) (*cos.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[bucket]; ok {
		return c, nil
	}

	u, err := url.Parse(fmt.Sprintf("https://%s.cos.%s.myqcloud.com", bucket, f.Region))
	if err != nil {
		return nil, fmt.Errorf("bucket url for %s: %w", bucket, err)
	}

	c := cos.NewClient(&cos.BaseURL{BucketURL: u}, &http.Client{
		Timeout: f.Timeout,
		Transport: &cos.AuthorizationTransport{
			SecretID:  f.SecretID,
			SecretKey: f.SecretKey,
		},
	})

	if f.clients == nil {
		f.clients = make(map[string]*cos.Client)
	}
	f.clients[bucket] = c
	return c, nil
}

// parseCOSLocator splits cos://bucket/key into its parts.
func parseCOSLocator(locator string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(locator, "cos://")
	if !ok {
		return "", "", fmt.Errorf("not a cos locator: %s", locator)
	}

	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("cos locator needs bucket and key: %s", locator)
	}
	return bucket, key, nil
}
