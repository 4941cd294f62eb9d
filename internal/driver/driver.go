// Package driver abstracts the browser-automation capability the source
// adapters are built on. Adapters only see this interface; the chromedp
// implementation lives alongside it and fakes stand in during tests.
package driver

import "context"

// PageDriver is the minimal surface a source adapter needs from a browser:
// navigate, fill, click, and read text/attributes/markup. Implementations
// keep cookies and session state alive across calls so a login survives
// subsequent navigation.
type PageDriver interface {
	// Navigate loads a URL and waits for the document to be ready.
	Navigate(ctx context.Context, url string) error

	// Fill sets the value of the input matched by selector.
	Fill(ctx context.Context, selector, value string) error

	// Click clicks the element matched by selector.
	Click(ctx context.Context, selector string) error

	// WaitVisible blocks until the element matched by selector is visible.
	WaitVisible(ctx context.Context, selector string) error

	// Text returns the inner text of the element matched by selector.
	Text(ctx context.Context, selector string) (string, error)

	// HTML returns the outer HTML of the element matched by selector,
	// typically handed straight to goquery.
	HTML(ctx context.Context, selector string) (string, error)

	// CurrentURL returns the URL of the page currently loaded.
	CurrentURL(ctx context.Context) (string, error)

	// Close releases the underlying browser resources.
	Close() error
}
