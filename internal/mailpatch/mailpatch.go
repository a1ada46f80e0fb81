// Package mailpatch fetches patches posted to kernel mailing lists and renders
// them the way `git show -U0` would, so they compare cleanly against commits.
package mailpatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNotFound is returned when the archive has no patch at the URL.
var ErrNotFound = errors.New("patch not found")

// FetchError is an unexpected HTTP status from a patch archive.
type FetchError struct {
	URL    string
	Status int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.Status)
}

// ArchiveURL maps a patchwork or lore link to the URL of its raw mbox.
func ArchiveURL(link string) string {
	switch {
	case strings.Contains(link, "/patch/"):
		if !strings.HasSuffix(link, "/") {
			link += "/"
		}
		if strings.HasSuffix(link, "/mbox/") || strings.HasSuffix(link, "/raw/") {
			return link
		}
		return link + "mbox/"
	case strings.Contains(link, "lore.kernel.org/"):
		link = strings.TrimSuffix(link, "/")
		if strings.HasSuffix(link, "/raw") {
			return link
		}
		return link + "/raw"
	default:
		return link
	}
}

// Fetcher downloads patches over HTTP.
type Fetcher struct {
	httpClient *http.Client
}

// NewFetcher creates a Fetcher with a bounded request timeout.
func NewFetcher() *Fetcher {
	return &Fetcher{httpClient: &http.Client{Timeout: 60 * time.Second}}
}

// Fetch returns the body at url.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%s: %w", url, ErrNotFound)
	}
	if resp.StatusCode >= 400 {
		return "", &FetchError{URL: url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}
	return string(body), nil
}

// FetchPatch downloads the patch linked from an "(am from <link>)" line and
// returns it as a zero-context diff.
func (f *Fetcher) FetchPatch(ctx context.Context, link string) (string, error) {
	mbox, err := f.Fetch(ctx, ArchiveURL(link))
	if err != nil {
		return "", err
	}
	return ZeroContext(mbox)
}
