package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"pcal/internal/fsutil"
	appLog "pcal/internal/log"
)

// FetchResult is the outcome of fetching one feed.
type FetchResult struct {
	URL       string
	Body      []byte
	FromCache bool // body reused after 304 or a failed request
}

// cacheEntry holds HTTP cache metadata for a single feed URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher downloads ICS feeds for import, with ETag / Last-Modified
// revalidation and a disk cache that also serves as a fallback when the
// remote is unreachable.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

// NewFetcher creates a Fetcher caching under cacheDir.
func NewFetcher(cacheDir string, client *http.Client) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./cache/ics"
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{client: client, cacheDir: cacheDir}
}

// Fetch GETs rawURL. A cached body is returned on 304, and also on network
// errors or non-2xx answers when one exists.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (FetchResult, error) {
	res := FetchResult{URL: rawURL}
	if rawURL == "" {
		return res, errors.New("feed URL is empty")
	}

	dir := f.cacheDirFor(rawURL)
	meta, _ := f.loadMeta(dir)
	cached, _ := os.ReadFile(filepath.Join(dir, "body.ics"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return res, err
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	safe := redactURL(rawURL)
	appLog.Debug("ics fetch start", "url", safe)

	resp, err := f.client.Do(req)
	if err != nil {
		if len(cached) > 0 {
			appLog.Error("ics fetch failed, using cached body", err, "url", safe)
			res.Body, res.FromCache = cached, true
			return res, nil
		}
		return res, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		if len(cached) == 0 {
			return res, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Info("ics feed not modified, using cache", "url", safe)
		res.Body, res.FromCache = cached, true
		return res, nil

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return res, err
		}
		entry := cacheEntry{
			URL:          rawURL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			UpdatedAt:    time.Now().UTC(),
		}
		if err := f.saveCache(dir, entry, body); err != nil {
			appLog.Error("ics cache save failed", err, "url", safe)
		}
		appLog.Info("ics fetch success", "url", safe, "status", resp.StatusCode, "bytes", len(body))
		res.Body = body
		return res, nil

	default:
		if len(cached) > 0 {
			appLog.Error("ics fetch non-OK, using cached body", errors.New(resp.Status), "url", safe)
			res.Body, res.FromCache = cached, true
			return res, nil
		}
		return res, fmt.Errorf("fetch %s: %s", safe, resp.Status)
	}
}

// cacheDirFor keys the cache by the first 8 bytes of the URL's SHA-256.
func (f *Fetcher) cacheDirFor(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func (f *Fetcher) loadMeta(dir string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return meta, err
	}
	err = json.Unmarshal(data, &meta)
	return meta, err
}

func (f *Fetcher) saveCache(dir string, meta cacheEntry, body []byte) error {
	// Body first so meta never points at a missing body.
	if err := fsutil.WriteFileAtomic(filepath.Join(dir, "body.ics"), body, ".body-*.tmp"); err != nil {
		return err
	}
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(filepath.Join(dir, "meta.json"), data, ".meta-*.tmp")
}

// redactURL keeps only scheme and host; private feed URLs carry secrets in
// the path or query.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
