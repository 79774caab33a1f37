package dispatch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const slugMaxLen = 60

// Slugify folds an account name into a filesystem-safe slug: lowercase
// ASCII alphanumerics with single dashes, capped in length. Everything else
// collapses to a dash so store-side display names stay usable as filenames.
func Slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if len(slug) > slugMaxLen {
		slug = strings.TrimRight(slug[:slugMaxLen], "-")
	}
	if slug == "" {
		slug = "account"
	}
	return slug
}

// DestFileName builds the destination name for a dispatched copy:
// slug(account)_YYYYMMDD-HHMM_stem.ext.
func DestFileName(account string, at time.Time, sourcePath string) string {
	base := filepath.Base(sourcePath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return fmt.Sprintf("%s_%s_%s%s", Slugify(account), at.Format("20060102-1504"), stem, ext)
}

// UniqueDestPath returns dir/name, appending a numeric suffix before the
// extension until the path does not exist.
func UniqueDestPath(dir, name string) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	candidate := filepath.Join(dir, name)
	for n := 1; ; n++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, n, ext))
	}
}
