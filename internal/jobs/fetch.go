package jobs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"

	"server/internal/domain"
)

// maxImageBytes bounds how much of an untrusted URL we are willing to read.
const maxImageBytes = 24 << 20

// referenceFetchLimit bounds concurrent fetches of character reference
// images so a single job cannot hammer an upstream host.
const referenceFetchLimit = 2

var imageRequestHeaders = map[string]string{
	"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Accept":          "image/avif,image/webp,image/apng,image/png,image/jpeg,image/*,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
}

// fetchImage downloads rawURL and validates the payload by magic-byte
// sniffing. Untrusted URLs may mislabel content, so the Content-Type
// header is never trusted on its own.
func fetchImage(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	if !domain.ValidImageURL(rawURL) {
		return nil, fmt.Errorf("not an absolute http(s) url: %q", rawURL)
	}
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse image url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create image request: %w", err)
	}
	for k, v := range imageRequestHeaders {
		req.Header.Set(k, v)
	}
	req.Header.Set("Referer", parsed.Scheme+"://"+parsed.Host+"/")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	if !looksLikeImage(data) {
		return nil, fmt.Errorf("fetched content is not an image (%s)", mimetype.Detect(data))
	}
	return data, nil
}

func looksLikeImage(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	return strings.HasPrefix(mimetype.Detect(data).String(), "image/")
}

// fetchReferenceImages pulls up to len(urls) character reference images
// under a bounded limiter. Individual failures are skipped, not fatal;
// the job proceeds with whatever references resolved.
func fetchReferenceImages(ctx context.Context, client *http.Client, urls []string) [][]byte {
	fetched := make([][]byte, len(urls))
	g := new(errgroup.Group)
	g.SetLimit(referenceFetchLimit)
	for i, u := range urls {
		g.Go(func() error {
			data, err := fetchImage(ctx, client, u)
			if err == nil {
				fetched[i] = data
			}
			return nil
		})
	}
	_ = g.Wait()

	refs := make([][]byte, 0, len(urls))
	for _, data := range fetched {
		if data != nil {
			refs = append(refs, data)
		}
	}
	return refs
}
