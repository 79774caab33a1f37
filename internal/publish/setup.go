package publish

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/chromedp/chromedp"

	"reelpress/internal/config"
	"reelpress/internal/creds"
	"reelpress/internal/logging"
	"reelpress/internal/services"
)

// Setup bootstraps an account's credentials interactively: a headed browser
// opens the platform's login surface, the operator completes the login out
// of band, then signals with Enter on stdin. The captured session cookies
// are persisted to the account's credential file.
//
// The wait is cancelable through ctx; a closed stdin also ends it.
func Setup(ctx context.Context, browser config.Browser, store *creds.FileStore, stdin io.Reader, status io.Writer, logger *slog.Logger) error {
	// Login requires a visible browser regardless of configuration.
	browser.Headless = false

	session, err := NewSession(ctx, browser, store, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := chromedp.Run(session.Context(), chromedp.Navigate(loginURL)); err != nil {
		return services.Wrap(services.ErrTransient, "setup", "open login surface", "", err)
	}

	fmt.Fprintln(status, "Log in to the creator platform in the opened browser window.")
	fmt.Fprintln(status, "Press Enter here once you are logged in.")

	if err := awaitOperator(ctx, stdin); err != nil {
		return err
	}

	if err := session.ExportCookies(session.Context()); err != nil {
		return err
	}

	log := logging.NewComponentLogger(logger, "setup")
	log.Info("credentials captured", logging.String("path", store.Path()))
	fmt.Fprintf(status, "Credentials saved to %s\n", store.Path())
	return nil
}

// awaitOperator blocks until a line arrives on stdin or the context ends.
func awaitOperator(ctx context.Context, stdin io.Reader) error {
	signal := make(chan error, 1)
	go func() {
		reader := bufio.NewReader(stdin)
		_, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			signal <- fmt.Errorf("read operator signal: %w", err)
			return
		}
		signal <- nil
	}()

	select {
	case err := <-signal:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
