package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"reelpress/internal/config"
	"reelpress/internal/dispatch"
	"reelpress/internal/logging"
	"reelpress/internal/notifications"
	"reelpress/internal/runstore"
	"reelpress/internal/services"
	"reelpress/internal/services/bitable"
)

func newDispatchCommand(ctx *commandContext) *cobra.Command {
	var headed bool

	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Run one dispatch cycle over the remote record store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.newLogger(cfg)
			if err != nil {
				return err
			}

			// Child upload runners inherit the environment; a headed
			// dispatch forces them out of headless mode.
			if headed || config.BoolFromEnv("DISPATCH_HEADED", false) {
				if err := os.Setenv("HEADLESS", "0"); err != nil {
					return fmt.Errorf("propagate headed mode: %w", err)
				}
			}

			client, err := bitable.New(cfg.Store, logger)
			if err != nil {
				return err
			}

			runs, err := runstore.OpenPath(filepath.Join(cfg.Paths.LogDir, "runs.db"))
			if err != nil {
				return err
			}
			defer runs.Close()

			notifier := notifications.NewService(cfg.Notifications)
			dispatcher := dispatch.NewDispatcher(cfg, client, runs, notifier, logger)

			result, err := dispatcher.RunCycle(cmd.Context())
			if err != nil {
				if services.Fatal(err) {
					if notifyErr := notifier.NotifyError(cmd.Context(), err, "dispatch cycle"); notifyErr != nil {
						logger.Warn("error notification failed", logging.Error(notifyErr))
					}
				}
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Cycle complete: %d ready, %d published, %d failed\n",
				result.Ready, result.Published, result.Failed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&headed, "headed", false, "Run publish workflows with a visible browser")
	return cmd
}
