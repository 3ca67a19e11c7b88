// Package capture renders the printable week page in headless Chromium and
// saves it as a PNG.
package capture

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	appLog "studycal/internal/log"
)

// Default capture parameters. They match the week page layout.
const (
	DefaultWidth    = 1400
	DefaultHeight   = 900
	DefaultTimeout  = 30 * time.Second
	DefaultSelector = `[data-ready="true"]`
)

// Options defines one Chromium screenshot.
type Options struct {
	// URL to capture, e.g. "http://127.0.0.1:8080/calendar/week".
	URL string

	// OutputPath is where the PNG is written.
	OutputPath string

	// Width and Height are the viewport size in pixels.
	Width  int
	Height int

	Timeout time.Duration

	// Selector must become visible before the screenshot is taken.
	Selector string

	// Headers are sent with every request the page makes, e.g. the
	// X-User-ID or Authorization header the API expects.
	Headers map[string]string
}

func (o *Options) normalize() error {
	if o.URL == "" {
		return fmt.Errorf("capture: URL is required")
	}
	if o.OutputPath == "" {
		return fmt.Errorf("capture: OutputPath is required")
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Selector == "" {
		o.Selector = DefaultSelector
	}
	return nil
}

// WeekURL builds the week page URL for base ("http://host:port") and an
// optional YYYY-MM-DD date.
func WeekURL(base, date string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + "/calendar/week")
	if err != nil {
		return "", fmt.Errorf("capture: invalid base URL %q: %w", base, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("capture: base URL %q needs a scheme and host", base)
	}
	if date != "" {
		q := u.Query()
		q.Set("date", date)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Snapshot launches headless Chromium, navigates to opts.URL, waits for
// opts.Selector and writes a full-page PNG to opts.OutputPath.
func Snapshot(parentCtx context.Context, opts Options) error {
	if err := opts.normalize(); err != nil {
		return err
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	headers := make(network.Headers, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}

	var png []byte
	tasks := chromedp.Tasks{
		network.Enable(),
		network.SetExtraHTTPHeaders(headers),
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(opts.Selector, chromedp.ByQuery),
		// Let the last paint land.
		chromedp.Sleep(300 * time.Millisecond),
		chromedp.FullScreenshot(&png, 100),
	}

	started := time.Now()
	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if dir := filepath.Dir(opts.OutputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("capture: create output dir: %w", err)
		}
	}
	if err := os.WriteFile(opts.OutputPath, png, 0o644); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}
	appLog.Info("capture: snapshot written", "path", opts.OutputPath, "bytes", len(png), "took", time.Since(started).String())
	return nil
}
