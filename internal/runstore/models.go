package runstore

import "time"

// Status describes where a publish run ended up.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Run is one dispatch of a single record through the publish workflow.
type Run struct {
	ID             int64
	RunID          string
	RecordIdentity string
	Account        string
	SourcePath     string
	DestPath       string
	Status         Status
	Reason         string
	ExitCode       int
	Host           string
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Finished reports whether the run reached a terminal status.
func (r *Run) Finished() bool {
	return r.Status == StatusSucceeded || r.Status == StatusFailed
}

// Duration returns the wall time between start and finish, zero while running.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Stats summarizes run history for one account or the whole machine.
type Stats struct {
	Total     int
	Succeeded int
	Failed    int
	Running   int
}
