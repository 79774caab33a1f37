package config

import (
	"fmt"
	"strings"
)

// Validate checks structural configuration invariants. Store credentials are
// deliberately not required here; commands that never talk to the store
// (upload, setup) must keep working without them.
func (c *Config) Validate() error {
	for name, value := range map[string]string{
		"paths.videos_dir":  c.Paths.VideosDir,
		"paths.runs_dir":    c.Paths.RunsDir,
		"paths.cookies_dir": c.Paths.CookiesDir,
		"paths.log_dir":     c.Paths.LogDir,
	} {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("config: %s must not be empty", name)
		}
	}

	if err := c.Store.Fields.validate(); err != nil {
		return err
	}

	for name, value := range map[string]int{
		"workflow.composer_ready_timeout": c.Workflow.ComposerReadyTimeout,
		"workflow.upload_timeout":         c.Workflow.UploadTimeout,
		"workflow.product_dialog_timeout": c.Workflow.ProductDialogTimeout,
		"workflow.publish_timeout":        c.Workflow.PublishTimeout,
		"workflow.poll_interval":          c.Workflow.PollInterval,
		"workflow.cookie_probe_timeout":   c.Workflow.CookieProbeTimeout,
		"store.request_timeout":           c.Store.RequestTimeout,
	} {
		if value <= 0 {
			return fmt.Errorf("config: %s must be positive, got %d", name, value)
		}
	}

	if strings.TrimSpace(c.Store.SuccessLabel) == "" || strings.TrimSpace(c.Store.FailureLabel) == "" {
		return fmt.Errorf("config: store.success_label and store.failure_label must not be empty")
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("config: logging.format must be console or json, got %q", c.Logging.Format)
	}

	return nil
}

func (f Fields) validate() error {
	for name, value := range map[string]string{
		"source_path":    f.SourcePath,
		"account":        f.Account,
		"publish_time":   f.PublishTime,
		"title":          f.Title,
		"topics":         f.Topics,
		"product_link":   f.ProductLink,
		"product_title":  f.ProductTitle,
		"status":         f.Status,
		"error_text":     f.ErrorText,
		"executing_host": f.ExecutingHost,
		"last_run_at":    f.LastRunAt,
	} {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("config: store.fields.%s must not be empty", name)
		}
	}
	return nil
}
