// Package publish drives the creator platform's web composer through a real
// browser session: credential import, file ingest, metadata entry, product
// attachment, scheduling, and publish confirmation.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"reelpress/internal/config"
	"reelpress/internal/creds"
	"reelpress/internal/logging"
	"reelpress/internal/services"
)

const (
	loginURL    = "https://creator.douyin.com/"
	composerURL = "https://creator.douyin.com/creator-micro/content/upload"

	// After ingest the composer lands on one of two publish surfaces
	// depending on which variant the platform serves.
	publishSurfaceA = "creator.douyin.com/creator-micro/content/publish"
	publishSurfaceB = "creator.douyin.com/creator-micro/content/post/video"

	manageSurface = "creator.douyin.com/creator-micro/content/manage"
)

// Session owns one browser instance bound to one account's credentials.
type Session struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	store       *creds.FileStore
	logger      *slog.Logger
}

// NewSession launches a browser and returns the session wrapper. The caller
// must Close it.
func NewSession(parent context.Context, cfg config.Browser, store *creds.FileStore, logger *slog.Logger) (*Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("lang", "zh-CN"),
	)
	if cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromePath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, opts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	// Force browser startup now so launch failures surface here rather
	// than inside the first workflow step.
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocCancel()
		return nil, services.Wrap(services.ErrTransient, "browser", "launch browser", "", err)
	}

	return &Session{
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
		store:       store,
		logger:      logging.NewComponentLogger(logger, "browser"),
	}, nil
}

// Context returns the browser-bound context actions run against.
func (s *Session) Context() context.Context { return s.ctx }

// Close tears the browser down. Safe on a nil session.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.cancel()
	s.allocCancel()
}

// ImportCookies loads the account's persisted cookies into the browser.
// A missing credential file is not an error; the login probe decides.
func (s *Session) ImportCookies(ctx context.Context) error {
	cookies, err := s.store.Load()
	if err != nil {
		return services.Wrap(services.ErrCredential, "browser", "load credentials", "", err)
	}
	if len(cookies) == 0 {
		return nil
	}

	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		param := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.Expires > 0 {
			expires := cdp.TimeSinceEpoch(epochTime(c.Expires))
			param.Expires = &expires
		}
		if c.SameSite != "" {
			param.SameSite = network.CookieSameSite(strings.ToUpper(c.SameSite[:1]) + strings.ToLower(c.SameSite[1:]))
		}
		params = append(params, param)
	}

	err = chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.SetCookies(params).Do(ctx)
	}))
	if err != nil {
		return services.Wrap(services.ErrCredential, "browser", "import credentials", "", err)
	}
	s.logger.Debug("credentials imported", logging.Int("cookies", len(params)))
	return nil
}

// ExportCookies persists the browser's current cookies back to the account
// credential file. Called whenever the session is live, including on aborts,
// so refreshed session tokens survive failed runs.
func (s *Session) ExportCookies(ctx context.Context) error {
	var raw []*network.Cookie
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var getErr error
		raw, getErr = storage.GetCookies().Do(ctx)
		return getErr
	}))
	if err != nil {
		return services.Wrap(services.ErrCredential, "browser", "export credentials", "", err)
	}

	cookies := make([]creds.Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, creds.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	if err := s.store.Save(cookies); err != nil {
		return services.Wrap(services.ErrCredential, "browser", "persist credentials", "", err)
	}
	s.logger.Debug("credentials persisted", logging.Int("cookies", len(cookies)))
	return nil
}

// ProbeLogin verifies the imported session is still accepted. Navigating to
// the composer while logged out redirects to a login surface.
func (s *Session) ProbeLogin(ctx context.Context) error {
	var location string
	err := chromedp.Run(ctx,
		chromedp.Navigate(composerURL),
		chromedp.Location(&location),
	)
	if err != nil {
		return services.Wrap(services.ErrCredential, "browser", "probe login", "", err)
	}
	if strings.Contains(location, "login") || strings.Contains(location, "passport") {
		return services.Wrap(services.ErrCredential, "browser", "probe login",
			fmt.Sprintf("session rejected, landed on %s", location), nil)
	}
	return nil
}

func epochTime(seconds float64) time.Time {
	sec := int64(seconds)
	nsec := int64((seconds - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}
