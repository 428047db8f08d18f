package harness

import (
	"log/slog"

	"github.com/pkg/browser"
)

// BrowserLauncher opens participant pages in the default browser.
type BrowserLauncher struct {
	Logger *slog.Logger

	open func(url string) error
}

// NewBrowserLauncher returns a launcher backed by the platform opener
// (xdg-open, open or rundll32).
func NewBrowserLauncher(logger *slog.Logger) *BrowserLauncher {
	return &BrowserLauncher{
		Logger: logger,
		open:   browser.OpenURL,
	}
}

// Open starts the browser on url. A launch failure is only logged; the
// caller's wait then times out unless the page is opened by hand.
func (b *BrowserLauncher) Open(url string) {
	b.Logger.Info("opening browser", slog.String("url", url))

	if err := b.open(url); err != nil {
		b.Logger.Warn("could not open browser, open the URL manually",
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
	}
}
