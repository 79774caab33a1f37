package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reelpress/internal/config"
	"reelpress/internal/creds"
	"reelpress/internal/publish"
	"reelpress/internal/services"
	"reelpress/internal/sidecar"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var (
		account       string
		file          string
		title         string
		tags          string
		publishAtMS   int64
		productURL    string
		productTitle  string
		thumbnailPath string
		metaPath      string
		headed        bool
		skipCookie    bool
	)

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Publish one video through the browser workflow",
		Long: `Publish one staged video. Metadata comes from the sidecar file next to
the video (or --meta); flags override individual sidecar lines. The final
stdout line is a machine-readable result for the dispatcher.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.newLogger(cfg)
			if err != nil {
				return err
			}

			if strings.TrimSpace(account) == "" {
				return errors.New("--account is required")
			}
			videoPath, err := config.ExpandPath(file)
			if err != nil {
				return err
			}
			if strings.TrimSpace(videoPath) == "" {
				return errors.New("--file is required")
			}

			sidecarPath := metaPath
			if sidecarPath == "" {
				sidecarPath = sidecar.PathFor(videoPath)
			}
			meta, err := sidecar.Load(sidecarPath)
			if err != nil {
				return err
			}
			if title != "" {
				meta.Title = title
			}
			if tags != "" {
				meta.Topics = sidecar.NormalizeTopics(tags)
			}
			if productURL != "" {
				meta.ProductLink = productURL
			}
			if productTitle != "" {
				meta.ProductShortTitle = sidecar.ClipShortTitle(productTitle)
			}
			if meta.Title == "" {
				meta.Title = stemOf(videoPath)
			}

			browser := cfg.Browser
			browser.Headless = config.BoolFromEnv("HEADLESS", browser.Headless)
			if headed {
				browser.Headless = false
			}
			browser.SkipCookieCheck = config.BoolFromEnv("SKIP_COOKIE_CHECK", browser.SkipCookieCheck)
			if skipCookie {
				browser.SkipCookieCheck = true
			}

			job := publish.Job{
				Account:           account,
				VideoPath:         videoPath,
				Title:             meta.Title,
				Topics:            meta.Topics,
				ProductLink:       meta.ProductLink,
				ProductShortTitle: meta.ProductShortTitle,
				ThumbnailPath:     thumbnailPath,
			}
			if publishAtMS > 0 {
				at := time.UnixMilli(publishAtMS)
				job.PublishAt = &at
			}

			store := creds.NewFileStore(cfg.CookieFile(account))
			runner := publish.NewRunner(cfg.Workflow, browser, store, cfg.AccountRunsDir(account), logger)
			outcome := runner.Run(cmd.Context(), job)

			out := cmd.OutOrStdout()
			if outcome.Published() {
				// Legacy marker first, structured line last.
				fmt.Fprintln(out, publish.MarkerSuccess)
			}
			fmt.Fprintln(out, outcome.ResultLine())

			if !outcome.Published() {
				if outcome.State == publish.StateAbortedQuota {
					return fmt.Errorf("%w: %s", services.ErrQuota, outcome.Reason)
				}
				return fmt.Errorf("publish did not complete: %s", outcome.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "Account whose credentials publish the video")
	cmd.Flags().StringVar(&file, "file", "", "Staged video file to publish")
	cmd.Flags().StringVarP(&title, "title", "t", "", "Work title (overrides the sidecar)")
	cmd.Flags().StringVar(&tags, "tags", "", "Comma-separated topic tags (overrides the sidecar)")
	cmd.Flags().Int64Var(&publishAtMS, "publish-at", 0, "Scheduled publish time in epoch milliseconds (0 = immediately)")
	cmd.Flags().StringVar(&productURL, "product-url", "", "Product link to attach (overrides the sidecar)")
	cmd.Flags().StringVar(&productTitle, "product-title", "", "Product short title (overrides the sidecar)")
	cmd.Flags().StringVar(&thumbnailPath, "thumbnail", "", "Thumbnail image to set as the cover")
	cmd.Flags().StringVar(&metaPath, "meta", "", "Sidecar metadata file (defaults to the video's stem + .txt)")
	cmd.Flags().BoolVar(&headed, "headed", false, "Run with a visible browser")
	cmd.Flags().BoolVar(&skipCookie, "skip-cookie-check", false, "Skip the login probe before the workflow")

	return cmd
}

func stemOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
