package publish

import (
	"fmt"
	"strings"
)

// State is the terminal state of one publish workflow run.
type State string

const (
	StatePublished         State = "published"
	StateAbortedQuota      State = "quota_reached"
	StateAbortedError      State = "error"
	StateCredentialFailure State = "credential_failure"
	StateTimedOut          State = "timeout"
)

// Legacy substring markers the dispatcher greps transcripts for. The
// structured result line below is preferred; these are kept so older
// transcripts and partial output still classify.
const (
	MarkerSuccess = "视频发布成功"
	MarkerQuota   = "额度已满"
)

// ResultLinePrefix opens the structured trailing line the runner prints as
// its last stdout line. The dispatcher parses this in preference to the
// substring markers.
const ResultLinePrefix = "reelpress-result"

// Outcome is the runner's terminal report.
type Outcome struct {
	State     State
	ManageURL string
	Reason    string
}

// Published reports whether the workflow reached the publish confirmation.
func (o Outcome) Published() bool { return o.State == StatePublished }

// ResultLine renders the outcome as the structured trailing line.
func (o Outcome) ResultLine() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s state=%s", ResultLinePrefix, o.State)
	if o.ManageURL != "" {
		fmt.Fprintf(&b, " manage_url=%s", o.ManageURL)
	}
	if o.Reason != "" {
		fmt.Fprintf(&b, " reason=%q", o.Reason)
	}
	return b.String()
}

// ParseResultLine recovers an Outcome from one transcript line. The second
// return is false when the line is not a result line.
func ParseResultLine(line string) (Outcome, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, ResultLinePrefix+" ") {
		return Outcome{}, false
	}

	var out Outcome
	for _, field := range splitFields(strings.TrimPrefix(line, ResultLinePrefix+" ")) {
		key, value, found := strings.Cut(field, "=")
		if !found {
			continue
		}
		value = strings.Trim(value, `"`)
		switch key {
		case "state":
			out.State = State(value)
		case "manage_url":
			out.ManageURL = value
		case "reason":
			out.Reason = value
		}
	}
	if out.State == "" {
		return Outcome{}, false
	}
	return out, true
}

// splitFields splits key=value pairs on spaces, keeping quoted values whole.
func splitFields(s string) []string {
	var (
		fields  []string
		current strings.Builder
		quoted  bool
	)
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			current.WriteRune(r)
		case r == ' ' && !quoted:
			if current.Len() > 0 {
				fields = append(fields, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		fields = append(fields, current.String())
	}
	return fields
}
