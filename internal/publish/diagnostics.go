package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
)

// CaptureDiagnostics writes a full-page screenshot and an HTML snapshot of
// the current page into dir, named by label and timestamp. Best effort; the
// caller logs failures and moves on.
func CaptureDiagnostics(ctx context.Context, session *Session, dir, label string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure diagnostics directory: %w", err)
	}

	stamp := time.Now().Format("20060102-150405")
	base := filepath.Join(dir, fmt.Sprintf("%s-%s", label, stamp))

	var (
		shot []byte
		html string
	)
	if err := chromedp.Run(ctx,
		chromedp.FullScreenshot(&shot, 80),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("capture page state: %w", err)
	}

	if err := os.WriteFile(base+".png", shot, 0o644); err != nil {
		return fmt.Errorf("write screenshot: %w", err)
	}
	if err := os.WriteFile(base+".html", []byte(html), 0o644); err != nil {
		return fmt.Errorf("write page snapshot: %w", err)
	}
	return nil
}
