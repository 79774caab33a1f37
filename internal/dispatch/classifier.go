package dispatch

import (
	"strings"

	"reelpress/internal/publish"
	"reelpress/internal/record"
)

// Failure reasons written to the store's error column. Kept to a closed set
// so operators can filter on them.
const (
	ReasonQuotaExceeded     = "quota_exceeded"
	ReasonPublishFailed     = "publish_failed"
	ReasonSourceNotAbsolute = "must be absolute path"
	ReasonSourceMissing     = "video file missing or not a file"
)

// Classification is the dispatcher's reading of one runner execution.
type Classification struct {
	Outcome   record.Outcome
	ManageURL string
}

// Classify maps a runner's exit code and merged transcript to an outcome.
//
// The structured trailing result line is authoritative when present. The
// substring markers remain as a fallback so truncated transcripts and output
// from older runner builds still classify: a success marker at exit zero
// wins, then a quota marker at any exit code.
func Classify(exitCode int, transcript string) Classification {
	lines := strings.Split(strings.TrimRight(transcript, "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		outcome, ok := publish.ParseResultLine(lines[i])
		if !ok {
			continue
		}
		switch outcome.State {
		case publish.StatePublished:
			return Classification{
				Outcome:   record.Outcome{Kind: record.OutcomeSuccess},
				ManageURL: outcome.ManageURL,
			}
		case publish.StateAbortedQuota:
			return Classification{Outcome: record.Outcome{Kind: record.OutcomeFailure, Reason: ReasonQuotaExceeded}}
		default:
			return Classification{Outcome: record.Outcome{Kind: record.OutcomeFailure, Reason: ReasonPublishFailed}}
		}
	}

	if exitCode == 0 && strings.Contains(transcript, publish.MarkerSuccess) {
		return Classification{Outcome: record.Outcome{Kind: record.OutcomeSuccess}}
	}
	if strings.Contains(transcript, publish.MarkerQuota) {
		return Classification{Outcome: record.Outcome{Kind: record.OutcomeFailure, Reason: ReasonQuotaExceeded}}
	}
	return Classification{Outcome: record.Outcome{Kind: record.OutcomeFailure, Reason: ReasonPublishFailed}}
}
