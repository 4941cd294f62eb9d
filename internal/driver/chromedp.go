package driver

import (
	"context"
	"errors"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"

	"github.com/sells-group/tender-scout/internal/resilience"
)

// Options tunes the headless browser session.
type Options struct {
	// Headless disables the visible browser window. Default true; turning it
	// off helps when debugging a selector against a live site.
	Headless bool

	// OperationTimeout bounds each individual driver call. Default 30s.
	OperationTimeout time.Duration
}

// ChromeDriver implements PageDriver on a single long-lived chromedp
// browser context, so cookies set at login persist for the whole session.
type ChromeDriver struct {
	browserCtx context.Context
	cancels    []context.CancelFunc
	timeout    time.Duration
}

// NewChrome starts a headless Chrome instance. Requires Chrome/Chromium on
// the host. The returned driver must be closed to release the process.
func NewChrome(ctx context.Context, opts Options) (*ChromeDriver, error) {
	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = 30 * time.Second
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	// Start the browser now rather than on first use, so a missing Chrome
	// binary fails loudly at session start.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, eris.Wrap(err, "driver: start chrome")
	}

	return &ChromeDriver{
		browserCtx: browserCtx,
		cancels:    []context.CancelFunc{cancelBrowser, cancelAlloc},
		timeout:    opts.OperationTimeout,
	}, nil
}

func (d *ChromeDriver) run(ctx context.Context, op string, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(d.browserCtx, d.timeout)
	defer cancel()

	// Honor the caller's cancellation without tying chromedp to its context
	// tree (the browser context must outlive individual operations).
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(opCtx, actions...) }()

	select {
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	case err := <-done:
		if err == nil {
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return &resilience.NavigationTimeoutError{Err: eris.Wrapf(err, "driver: %s timed out", op)}
		}
		return eris.Wrapf(err, "driver: %s", op)
	}
}

func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, "navigate "+url,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	)
}

func (d *ChromeDriver) Fill(ctx context.Context, selector, value string) error {
	return d.run(ctx, "fill "+selector,
		chromedp.WaitVisible(selector),
		chromedp.Clear(selector),
		chromedp.SendKeys(selector, value),
	)
}

func (d *ChromeDriver) Click(ctx context.Context, selector string) error {
	return d.run(ctx, "click "+selector,
		chromedp.WaitVisible(selector),
		chromedp.Click(selector),
	)
}

func (d *ChromeDriver) WaitVisible(ctx context.Context, selector string) error {
	return d.run(ctx, "wait "+selector, chromedp.WaitVisible(selector))
}

func (d *ChromeDriver) Text(ctx context.Context, selector string) (string, error) {
	var out string
	err := d.run(ctx, "text "+selector, chromedp.Text(selector, &out, chromedp.NodeVisible))
	return out, err
}

func (d *ChromeDriver) HTML(ctx context.Context, selector string) (string, error) {
	var out string
	err := d.run(ctx, "html "+selector, chromedp.OuterHTML(selector, &out))
	return out, err
}

func (d *ChromeDriver) CurrentURL(ctx context.Context) (string, error) {
	var out string
	err := d.run(ctx, "current url", chromedp.Location(&out))
	return out, err
}

func (d *ChromeDriver) Close() error {
	for _, cancel := range d.cancels {
		cancel()
	}
	return nil
}
