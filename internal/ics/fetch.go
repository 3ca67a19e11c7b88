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

	appLog "studycal/internal/log"
)

// ErrUnauthorized is wrapped when the provider rejects the credential.
var ErrUnauthorized = errors.New("ics: credential rejected")

// Source is one provider feed to pull.
type Source struct {
	// ID names the feed in logs, typically "<user>/<provider>".
	ID  string
	URL string
	// Token, when set, is sent as a Bearer credential.
	Token string
}

// FetchResult is the body of one feed, fresh or from the disk cache.
type FetchResult struct {
	Source    Source
	Body      []byte
	FromCache bool
}

type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher pulls ICS feeds with conditional GETs. The last good body of each
// source (ID, URL and token together) is kept on disk and served when the
// provider is down or answers 304.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

// NewFetcher returns a Fetcher caching under cacheDir.
func NewFetcher(cacheDir string) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./var/ics-cache"
	}
	return &Fetcher{
		client:   &http.Client{Timeout: 15 * time.Second},
		cacheDir: cacheDir,
	}
}

// WithClient replaces the HTTP client.
func (f *Fetcher) WithClient(c *http.Client) *Fetcher {
	f.client = c
	return f
}

// FetchOne fetches src, falling back to the cached body on network errors
// and non-200 answers. A 401 or 403 is returned as an error: a rejected
// credential never gets the cached body.
func (f *Fetcher) FetchOne(ctx context.Context, src Source) (FetchResult, error) {
	if src.URL == "" {
		return FetchResult{}, errors.New("ics: source url is empty")
	}

	dir := f.cacheDirFor(src)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return FetchResult{}, fmt.Errorf("ics: create cache dir: %w", err)
	}
	meta, _ := loadMeta(dir)
	cached, _ := os.ReadFile(filepath.Join(dir, "body.ics"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return FetchResult{}, fmt.Errorf("ics: build request: %w", err)
	}
	req.Header.Set("Accept", "text/calendar")
	if src.Token != "" {
		req.Header.Set("Authorization", "Bearer "+src.Token)
	}
	if meta.URL == src.URL && len(cached) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Debug("ics fetch start", "id", src.ID, "url", RedactURL(src.URL))
	fromCache := func(reason error) (FetchResult, error) {
		if len(cached) == 0 {
			return FetchResult{}, reason
		}
		appLog.Warn("ics fetch failed, serving cached body", "id", src.ID, "url", RedactURL(src.URL), "reason", reason.Error())
		return FetchResult{Source: src, Body: cached, FromCache: true}, nil
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return FetchResult{}, ctx.Err()
		}
		return fromCache(fmt.Errorf("ics: fetch %s: %w", src.ID, err))
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fromCache(fmt.Errorf("ics: read %s: %w", src.ID, err))
		}
		next := cacheMeta{
			URL:          src.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := saveCache(dir, next, body); err != nil {
			appLog.Error("ics cache save failed", err, "id", src.ID)
		}
		appLog.Info("ics fetch ok", "id", src.ID, "bytes", len(body))
		return FetchResult{Source: src, Body: body}, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return FetchResult{}, fmt.Errorf("ics: %s answered 304 with nothing cached", src.ID)
		}
		appLog.Debug("ics feed not modified", "id", src.ID)
		return FetchResult{Source: src, Body: cached, FromCache: true}, nil

	case http.StatusUnauthorized, http.StatusForbidden:
		appLog.Warn("ics fetch rejected", "id", src.ID, "url", RedactURL(src.URL), "status", resp.StatusCode)
		return FetchResult{}, fmt.Errorf("ics: fetch %s: %s: %w", src.ID, resp.Status, ErrUnauthorized)

	default:
		return fromCache(fmt.Errorf("ics: fetch %s: %s", src.ID, resp.Status))
	}
}

// cacheDirFor keys the cache on the source ID, URL and token, so two
// connections sharing a feed URL never read each other's body.
func (f *Fetcher) cacheDirFor(src Source) string {
	h := sha256.New()
	for _, part := range []string{src.ID, src.URL, src.Token} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return filepath.Join(f.cacheDir, hex.EncodeToString(h.Sum(nil)[:16]))
}

func loadMeta(dir string) (cacheMeta, error) {
	var meta cacheMeta
	data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return meta, err
	}
	err = json.Unmarshal(data, &meta)
	return meta, err
}

// saveCache writes the body before the metadata so metadata never refers
// to a body that is not there.
func saveCache(dir string, meta cacheMeta, body []byte) error {
	if err := os.WriteFile(filepath.Join(dir, "body.ics"), body, 0o600); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "meta.json"), data, 0o600)
}

// RedactURL keeps only scheme and host; feed paths and queries carry
// per-user secrets.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/(redacted)"
}
