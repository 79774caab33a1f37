package record

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"reelpress/internal/config"
)

// JobRecord is one row of the remote store as consumed by the dispatcher.
// Identity is the store-assigned key and may become invalid between read and
// write; the remaining fields are the pre-execution snapshot.
type JobRecord struct {
	Identity          string
	Account           string
	SourcePath        string
	ScheduledAt       *int64 // epoch milliseconds; nil when the cell is empty
	Title             string
	Topics            string
	ProductLink       string
	ProductShortTitle string
	Status            string
}

// FromFields builds a JobRecord from a raw store row using the configured
// column schema. Unknown cell shapes degrade to empty values; parsing never
// fails.
func FromFields(schema config.Fields, identity string, fields map[string]any) JobRecord {
	return JobRecord{
		Identity:          identity,
		Account:           strings.TrimSpace(coerceString(fields[schema.Account])),
		SourcePath:        strings.TrimSpace(coerceString(fields[schema.SourcePath])),
		ScheduledAt:       coerceEpochMS(fields[schema.PublishTime]),
		Title:             coerceString(fields[schema.Title]),
		Topics:            coerceString(fields[schema.Topics]),
		ProductLink:       strings.TrimSpace(coerceString(fields[schema.ProductLink])),
		ProductShortTitle: strings.TrimSpace(coerceString(fields[schema.ProductTitle])),
		Status:            strings.TrimSpace(coerceString(fields[schema.Status])),
	}
}

// IsReady reports whether a record should be executed now: status empty and
// a scheduled time that is present and not in the future. Total over
// malformed timestamps; those simply read as absent.
func IsReady(rec JobRecord, now time.Time) bool {
	if rec.Status != "" {
		return false
	}
	if rec.ScheduledAt == nil {
		return false
	}
	return *rec.ScheduledAt <= now.UnixMilli()
}

// CleanIdentity strips non-alphanumeric characters from a store record
// identity and reports whether the result is well-formed. Malformed
// identities are rejected locally before any network call.
func CleanIdentity(identity string) (string, bool) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(identity) {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	return cleaned, strings.HasPrefix(cleaned, "rec")
}

// RescueKey is the content fingerprint used to re-identify a record when its
// identity no longer resolves. It must be derived from the field values that
// were true at read time.
type RescueKey struct {
	SourcePath  string
	Account     string
	ScheduledAt *int64
}

// Rescue derives the record's rescue key from its pre-execution snapshot.
func (r JobRecord) Rescue() RescueKey {
	return RescueKey{SourcePath: r.SourcePath, Account: r.Account, ScheduledAt: r.ScheduledAt}
}

// Matches reports whether a candidate record satisfies every non-null key of
// the fingerprint. Unrelated field differences never block a match.
func (k RescueKey) Matches(candidate JobRecord) bool {
	if k.SourcePath != "" && candidate.SourcePath != k.SourcePath {
		return false
	}
	if k.Account != "" && candidate.Account != k.Account {
		return false
	}
	if k.ScheduledAt != nil {
		if candidate.ScheduledAt == nil || *candidate.ScheduledAt != *k.ScheduledAt {
			return false
		}
	}
	return true
}

func (k RescueKey) String() string {
	at := "<nil>"
	if k.ScheduledAt != nil {
		at = strconv.FormatInt(*k.ScheduledAt, 10)
	}
	return fmt.Sprintf("source=%s account=%s scheduled_at=%s", k.SourcePath, k.Account, at)
}

// OutcomeKind is the closed result space the reconciler writes back.
type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "success"
	OutcomeFailure OutcomeKind = "failure"
)

// Outcome is the classified result of one publish workflow execution.
// Created once per job and consumed exactly once by the reconciler.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
}

// Success reports whether the outcome represents a confirmed publish.
func (o Outcome) Success() bool { return o.Kind == OutcomeSuccess }

func coerceString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case map[string]any:
		return coerceString(v["text"])
	case []any:
		parts := make([]string, 0, len(v))
		for _, entry := range v {
			if s := coerceString(entry); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "")
	default:
		return fmt.Sprint(v)
	}
}

func coerceEpochMS(value any) *int64 {
	switch v := value.(type) {
	case nil:
		return nil
	case float64:
		ms := int64(v)
		return &ms
	case int64:
		return &v
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil
		}
		if ms, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return &ms
		}
		if ts, err := time.Parse(time.RFC3339, strings.Replace(trimmed, " ", "T", 1)); err == nil {
			ms := ts.UnixMilli()
			return &ms
		}
		return nil
	default:
		return nil
	}
}
