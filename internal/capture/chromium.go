// Package capture renders the HTML month view to a PNG with headless
// Chromium.
package capture

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"pcal/internal/fsutil"
)

// Default capture parameters. They match the layout of the /calendar page.
const (
	DefaultWidth      = 1200
	DefaultHeight     = 900
	DefaultTimeoutSec = 30
)

// Options defines a month snapshot.
type Options struct {
	// BaseURL is the running server, e.g. "http://127.0.0.1:8080".
	BaseURL string

	Year  int
	Month time.Month

	// OutputPath is where the PNG is written.
	OutputPath string

	// Width and Height are the viewport in pixels; zero selects the
	// defaults.
	Width  int
	Height int

	// Username / Password are sent as HTTP Basic Auth when set.
	Username string
	Password string

	// Ink reduces the screenshot to black, red and white.
	Ink bool

	// Timeout bounds the whole capture. Zero selects DefaultTimeoutSec.
	Timeout time.Duration
}

// MonthURL is the /calendar page address for opts.
func MonthURL(opts Options) (string, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("capture: invalid base URL %q", opts.BaseURL)
	}
	u.Path = "/calendar"
	q := url.Values{}
	if opts.Year > 0 {
		q.Set("year", strconv.Itoa(opts.Year))
	}
	if opts.Month >= time.January && opts.Month <= time.December {
		q.Set("month", strconv.Itoa(int(opts.Month)))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// CaptureMonthPNG navigates headless Chromium to the month page, waits for
// `[data-ready="true"]` and writes a full-page screenshot.
func CaptureMonthPNG(parentCtx context.Context, opts Options) error {
	target, err := MonthURL(opts)
	if err != nil {
		return err
	}
	if opts.OutputPath == "" {
		return fmt.Errorf("capture: OutputPath is required")
	}
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Duration(DefaultTimeoutSec) * time.Second
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()
	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
	}
	if opts.Username != "" {
		cred := base64.StdEncoding.EncodeToString([]byte(opts.Username + ":" + opts.Password))
		tasks = append(tasks,
			network.Enable(),
			network.SetExtraHTTPHeaders(network.Headers{"Authorization": "Basic " + cred}),
		)
	}
	tasks = append(tasks,
		chromedp.Navigate(target),
		chromedp.WaitVisible(`[data-ready="true"]`, chromedp.ByQuery),
		// Small extra delay to allow final paints.
		chromedp.Sleep(300*time.Millisecond),
		chromedp.FullScreenshot(&png, 100),
	)

	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}
	if opts.Ink {
		if png, err = inkPNG(png); err != nil {
			return err
		}
	}
	if err := fsutil.WriteFileAtomic(opts.OutputPath, png, ".pcal-snapshot-*.tmp"); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}
	return nil
}
