package config

import (
	"os"
	"strings"
)

// normalize expands paths and applies environment fallbacks for store
// credentials so secrets can stay out of the config file.
func (c *Config) normalize() error {
	for _, entry := range []struct {
		value *string
	}{
		{&c.Paths.VideosDir},
		{&c.Paths.RunsDir},
		{&c.Paths.CookiesDir},
		{&c.Paths.LogDir},
		{&c.Browser.ChromePath},
	} {
		if strings.TrimSpace(*entry.value) == "" {
			continue
		}
		expanded, err := expandPath(*entry.value)
		if err != nil {
			return err
		}
		*entry.value = expanded
	}

	applyEnvFallback(&c.Store.AppID, "REELPRESS_APP_ID")
	applyEnvFallback(&c.Store.AppSecret, "REELPRESS_APP_SECRET")
	applyEnvFallback(&c.Store.AppToken, "REELPRESS_APP_TOKEN")
	applyEnvFallback(&c.Store.TableID, "REELPRESS_TABLE_ID")
	applyEnvFallback(&c.Store.ViewID, "REELPRESS_VIEW_ID")

	c.Store.BaseURL = strings.TrimRight(strings.TrimSpace(c.Store.BaseURL), "/")
	return nil
}

func applyEnvFallback(value *string, name string) {
	if strings.TrimSpace(*value) != "" {
		return
	}
	if env := strings.TrimSpace(os.Getenv(name)); env != "" {
		*value = env
	}
}

// BoolFromEnv reads a boolean toggle from the environment, returning the
// fallback when the variable is unset. CLI flags take precedence over these.
func BoolFromEnv(name string, fallback bool) bool {
	value, ok := os.LookupEnv(name)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
