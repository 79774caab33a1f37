package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"reelpress/internal/runstore"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var (
		account string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show publish run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runs, err := runstore.OpenPath(filepath.Join(cfg.Paths.LogDir, "runs.db"))
			if err != nil {
				return err
			}
			defer runs.Close()

			items, err := runs.List(cmd.Context(), account, limit)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Started", "Account", "Record", "Status", "Reason", "Exit", "Duration"})
			for _, run := range items {
				duration := ""
				if run.Finished() {
					duration = run.Duration().Round(time.Second).String()
				}
				t.AppendRow(table.Row{
					run.StartedAt.Local().Format("2006-01-02 15:04:05"),
					run.Account,
					run.RecordIdentity,
					string(run.Status),
					run.Reason,
					run.ExitCode,
					duration,
				})
			}
			applyTableStyle(t)
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "Filter runs by account")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to show (0 = all)")

	cmd.AddCommand(newRunsStatsCommand(ctx))
	return cmd
}

func newRunsStatsCommand(ctx *commandContext) *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runs, err := runstore.OpenPath(filepath.Join(cfg.Paths.LogDir, "runs.db"))
			if err != nil {
				return err
			}
			defer runs.Close()

			stats, err := runs.Stats(cmd.Context(), account)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Total", "Succeeded", "Failed", "Running"})
			t.AppendRow(table.Row{stats.Total, stats.Succeeded, stats.Failed, stats.Running})
			applyTableStyle(t)
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "Filter stats by account")
	return cmd
}

func applyTableStyle(t table.Writer) {
	if isatty.IsTerminal(os.Stdout.Fd()) {
		t.SetStyle(table.StyleRounded)
		return
	}
	style := table.StyleDefault
	style.Options.DrawBorder = false
	style.Options.SeparateColumns = true
	style.Options.SeparateHeader = false
	t.SetStyle(style)
}
