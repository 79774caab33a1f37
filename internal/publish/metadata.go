package publish

import (
	"strings"
	"time"
)

// ClipTitle trims the work title to the composer's rune limit.
func ClipTitle(title string) string {
	title = strings.TrimSpace(title)
	runes := []rune(title)
	if len(runes) <= TitleRuneLimit {
		return title
	}
	return string(runes[:TitleRuneLimit])
}

// FormatSchedule renders a publish timestamp the way the composer's
// date-time input expects it.
func FormatSchedule(t time.Time) string {
	return t.Format("2006-01-02 15:04")
}
