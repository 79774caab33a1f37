package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	VideosDir  string `toml:"videos_dir"`
	RunsDir    string `toml:"runs_dir"`
	CookiesDir string `toml:"cookies_dir"`
	LogDir     string `toml:"log_dir"`
}

// Store contains configuration for the remote tabular record store.
type Store struct {
	AppID          string `toml:"app_id"`
	AppSecret      string `toml:"app_secret"`
	BaseURL        string `toml:"base_url"`
	AppToken       string `toml:"app_token"`
	TableID        string `toml:"table_id"`
	ViewID         string `toml:"view_id"`
	SuccessLabel   string `toml:"success_label"`
	FailureLabel   string `toml:"failure_label"`
	RequestTimeout int    `toml:"request_timeout"`
	UTCOffsetHours int    `toml:"utc_offset_hours"`
	Fields         Fields `toml:"fields"`
}

// Fields maps the logical job-record schema to the store's display-name
// column identifiers. Validated once at startup; record fields are never
// addressed by ad hoc strings elsewhere.
type Fields struct {
	SourcePath    string `toml:"source_path"`
	Account       string `toml:"account"`
	PublishTime   string `toml:"publish_time"`
	Title         string `toml:"title"`
	Topics        string `toml:"topics"`
	ProductLink   string `toml:"product_link"`
	ProductTitle  string `toml:"product_title"`
	Status        string `toml:"status"`
	ErrorText     string `toml:"error_text"`
	ExecutingHost string `toml:"executing_host"`
	LastRunAt     string `toml:"last_run_at"`
}

// Browser contains configuration for the automated browser session.
type Browser struct {
	Headless        bool   `toml:"headless"`
	ChromePath      string `toml:"chrome_path"`
	SkipCookieCheck bool   `toml:"skip_cookie_check"`
}

// Workflow contains timeouts for the publish workflow's bounded waits.
// All values are seconds.
type Workflow struct {
	ComposerReadyTimeout int `toml:"composer_ready_timeout"`
	UploadTimeout        int `toml:"upload_timeout"`
	ProductDialogTimeout int `toml:"product_dialog_timeout"`
	PublishTimeout       int `toml:"publish_timeout"`
	PollInterval         int `toml:"poll_interval"`
	CookieProbeTimeout   int `toml:"cookie_probe_timeout"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for reelpress.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Store         Store         `toml:"store"`
	Browser       Browser       `toml:"browser"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/reelpress/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("reelpress.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for dispatcher operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.VideosDir, c.Paths.RunsDir, c.Paths.CookiesDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// CookieFile returns the per-account credential file path.
func (c *Config) CookieFile(account string) string {
	return filepath.Join(c.Paths.CookiesDir, fmt.Sprintf("douyin_%s.json", strings.TrimSpace(account)))
}

// AccountRunsDir returns the per-account directory for diagnostic artifacts.
func (c *Config) AccountRunsDir(account string) string {
	return filepath.Join(c.Paths.RunsDir, strings.TrimSpace(account))
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
