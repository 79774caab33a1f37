package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"reelpress/internal/creds"
	"reelpress/internal/publish"
)

func newSetupCommand(ctx *commandContext) *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Capture an account's login session interactively",
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

			store := creds.NewFileStore(cfg.CookieFile(account))
			return publish.Setup(cmd.Context(), cfg.Browser, store, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "Account to capture credentials for")
	return cmd
}
