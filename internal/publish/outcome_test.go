package publish_test

import (
	"strings"
	"testing"
	"time"

	"reelpress/internal/publish"
)

func TestResultLineRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		outcome publish.Outcome
	}{
		{"published", publish.Outcome{State: publish.StatePublished, ManageURL: "https://creator.douyin.com/creator-micro/content/manage?enter_from=publish"}},
		{"quota", publish.Outcome{State: publish.StateAbortedQuota, Reason: "product attachment quota reached"}},
		{"timeout", publish.Outcome{State: publish.StateTimedOut, Reason: "await upload complete: gave up after 15m0s"}},
		{"credential", publish.Outcome{State: publish.StateCredentialFailure, Reason: "probe login: session rejected"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := tt.outcome.ResultLine()
			parsed, ok := publish.ParseResultLine(line)
			if !ok {
				t.Fatalf("result line did not parse: %q", line)
			}
			if parsed != tt.outcome {
				t.Fatalf("round trip mismatch: %+v != %+v", parsed, tt.outcome)
			}
		})
	}
}

func TestParseResultLineRejectsOtherLines(t *testing.T) {
	for _, line := range []string{
		"",
		"INFO publish: workflow published",
		"reelpress-resultstate=published",
		"reelpress-result nonsense",
	} {
		if _, ok := publish.ParseResultLine(line); ok {
			t.Errorf("line %q should not parse as a result", line)
		}
	}
}

func TestParseResultLineQuotedReason(t *testing.T) {
	out := publish.Outcome{State: publish.StateAbortedError, Reason: "attach product: dialog never settled"}
	parsed, ok := publish.ParseResultLine(out.ResultLine())
	if !ok {
		t.Fatal("expected the line to parse")
	}
	if parsed.Reason != out.Reason {
		t.Fatalf("reason mangled: %q", parsed.Reason)
	}
}

func TestClipTitle(t *testing.T) {
	if got := publish.ClipTitle("  short  "); got != "short" {
		t.Fatalf("expected trimmed title, got %q", got)
	}

	long := strings.Repeat("海", 40)
	clipped := publish.ClipTitle(long)
	if got := len([]rune(clipped)); got != publish.TitleRuneLimit {
		t.Fatalf("expected %d runes, got %d", publish.TitleRuneLimit, got)
	}
}

func TestFormatSchedule(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.FixedZone("UTC+8", 8*3600))
	if got := publish.FormatSchedule(at); got != "2026-03-14 09:30" {
		t.Fatalf("unexpected schedule format %q", got)
	}
}

func TestPublishedHelper(t *testing.T) {
	if !(publish.Outcome{State: publish.StatePublished}).Published() {
		t.Fatal("published outcome should report Published")
	}
	if (publish.Outcome{State: publish.StateAbortedQuota}).Published() {
		t.Fatal("quota outcome should not report Published")
	}
}
