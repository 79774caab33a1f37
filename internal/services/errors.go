package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAuth marks failures exchanging application credentials for a store token.
	ErrAuth = errors.New("store auth error")
	// ErrFetch marks failures listing records from the store.
	ErrFetch = errors.New("store fetch error")
	// ErrValidation marks per-job input problems (missing or relative source path).
	ErrValidation = errors.New("validation error")
	// ErrCredential marks an absent or rejected platform credential.
	ErrCredential = errors.New("credential error")
	// ErrQuota marks the platform's commerce-link quota being exhausted.
	ErrQuota = errors.New("quota exhausted")
	// ErrTimeout marks a bounded wait on a platform state transition expiring.
	ErrTimeout = errors.New("timeout")
	// ErrTransient marks everything else worth retrying in a later cycle.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Fatal reports whether an error should abort the whole dispatch cycle
// rather than fail a single job.
func Fatal(err error) bool {
	return errors.Is(err, ErrAuth) || errors.Is(err, ErrFetch)
}

// ExitCode maps an error to the process exit code contract: auth failures
// and fetch failures get distinct codes so operators can tell them apart.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrAuth):
		return 2
	case errors.Is(err, ErrFetch):
		return 3
	default:
		return 1
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
