package publish

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"reelpress/internal/config"
	"reelpress/internal/creds"
	"reelpress/internal/logging"
	"reelpress/internal/services"
)

// TitleRuneLimit is the composer's hard cap on work titles.
const TitleRuneLimit = 30

// Job is one video to push through the composer.
type Job struct {
	Account           string
	VideoPath         string
	Title             string
	Topics            []string
	ProductLink       string
	ProductShortTitle string
	ThumbnailPath     string

	// PublishAt nil means publish immediately. A set value must be in the
	// future when the schedule step runs; past values fall back to
	// immediate publishing.
	PublishAt *time.Time
}

// Runner executes the publish workflow for one job inside one browser
// session. It never returns an error: every failure mode is folded into a
// terminal Outcome so the process boundary stays classifiable.
type Runner struct {
	workflow       config.Workflow
	browser        config.Browser
	store          *creds.FileStore
	diagnosticsDir string
	logger         *slog.Logger
}

// NewRunner wires a Runner for one account.
func NewRunner(workflow config.Workflow, browser config.Browser, store *creds.FileStore, diagnosticsDir string, logger *slog.Logger) *Runner {
	return &Runner{
		workflow:       workflow,
		browser:        browser,
		store:          store,
		diagnosticsDir: diagnosticsDir,
		logger:         logging.NewComponentLogger(logger, "publish"),
	}
}

// Run drives the job through the full state machine.
func (r *Runner) Run(ctx context.Context, job Job) Outcome {
	lease, err := r.store.Acquire(ctx)
	if err != nil {
		return Outcome{State: StateAbortedError, Reason: "credential lease unavailable"}
	}
	defer lease.Release()

	session, err := NewSession(ctx, r.browser, r.store, r.logger)
	if err != nil {
		r.logger.Error("browser launch failed", logging.Error(err))
		return Outcome{State: StateAbortedError, Reason: "browser launch failed"}
	}
	defer session.Close()

	run := &workflowRun{
		runner:  r,
		session: session,
		job:     job,
		logger:  r.logger.With(logging.String(logging.FieldAccount, job.Account)),
	}

	// Steps run against the browser-bound context; the caller's ctx is its
	// parent, so cancellation still propagates.
	outcome := run.execute(session.Context())

	// Persist whatever session state the platform handed back, even on
	// aborts. Skipped only when authentication itself never went live.
	if outcome.State != StateCredentialFailure {
		if err := session.ExportCookies(session.Context()); err != nil {
			run.logger.Warn("credential persist failed", logging.Error(err))
		}
	}
	return outcome
}

type workflowRun struct {
	runner  *Runner
	session *Session
	job     Job
	logger  *slog.Logger
}

func (w *workflowRun) execute(ctx context.Context) Outcome {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"authenticate", w.authenticate},
		{"open composer", w.openComposer},
		{"ingest file", w.ingestFile},
		{"await composer ready", w.awaitComposerReady},
		{"fill metadata", w.fillMetadata},
		{"await upload complete", w.awaitUploadComplete},
		{"set thumbnail", w.setThumbnail},
	}
	for _, step := range steps {
		if outcome, done := w.runStep(ctx, step.name, step.fn); done {
			return outcome
		}
	}

	// Product attachment aborts the whole run on quota or dialog error;
	// the publish confirmation must never fire for those.
	switch result, err := w.attachProduct(ctx); {
	case err != nil:
		w.captureDiagnostics(ctx, "attach-product")
		w.logger.Error("step failed", logging.String(logging.FieldStage, "attach product"), logging.Error(err))
		return Outcome{State: StateAbortedError, Reason: "attach product: " + err.Error()}
	case result == productQuotaReached:
		w.captureDiagnostics(ctx, "product-quota")
		w.logger.Warn("product quota reached, aborting before publish")
		return Outcome{State: StateAbortedQuota, Reason: "product attachment quota reached"}
	case result == productError:
		w.captureDiagnostics(ctx, "product-error")
		w.logger.Error("product dialog reported an error, aborting before publish")
		return Outcome{State: StateAbortedError, Reason: "product dialog error"}
	}

	if outcome, done := w.runStep(ctx, "set schedule", w.setSchedule); done {
		return outcome
	}

	manageURL, err := w.confirmPublish(ctx)
	if err != nil {
		return w.failureOutcome(ctx, "confirm publish", err)
	}

	w.logger.Info("workflow published",
		logging.String("manage_url", manageURL),
		logging.String(logging.FieldEventType, "published"),
	)
	return Outcome{State: StatePublished, ManageURL: manageURL}
}

// runStep executes one step and folds its error into a terminal outcome.
// The bool reports whether the workflow must stop.
func (w *workflowRun) runStep(ctx context.Context, name string, fn func(context.Context) error) (Outcome, bool) {
	w.logger.Debug("step started", logging.String(logging.FieldStage, name))
	if err := fn(ctx); err != nil {
		return w.failureOutcome(ctx, name, err), true
	}
	return Outcome{}, false
}

func (w *workflowRun) failureOutcome(ctx context.Context, step string, err error) Outcome {
	w.logger.Error("step failed", logging.String(logging.FieldStage, step), logging.Error(err))
	switch {
	case errors.Is(err, services.ErrCredential):
		return Outcome{State: StateCredentialFailure, Reason: step + ": " + err.Error()}
	case errors.Is(err, services.ErrTimeout):
		w.captureDiagnostics(ctx, "timeout")
		return Outcome{State: StateTimedOut, Reason: step + ": " + err.Error()}
	default:
		w.captureDiagnostics(ctx, "error")
		return Outcome{State: StateAbortedError, Reason: step + ": " + err.Error()}
	}
}

func (w *workflowRun) captureDiagnostics(ctx context.Context, label string) {
	if w.runner.diagnosticsDir == "" {
		return
	}
	if err := CaptureDiagnostics(ctx, w.session, w.runner.diagnosticsDir, label); err != nil {
		w.logger.Warn("diagnostic capture failed", logging.Error(err))
	}
}

func (w *workflowRun) pollInterval() time.Duration {
	interval := time.Duration(w.runner.workflow.PollInterval) * time.Second
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return interval
}

// waitUntil polls probe until it reports done, the timeout elapses, or the
// context dies. Timeout surfaces as ErrTimeout so it classifies distinctly.
func (w *workflowRun) waitUntil(ctx context.Context, what string, timeout time.Duration, probe func(context.Context) (bool, error)) error {
	deadline := time.Now().Add(timeout)
	interval := w.pollInterval()
	for {
		done, err := probe(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if time.Now().After(deadline) {
			return services.Wrap(services.ErrTimeout, "publish", what,
				"gave up after "+timeout.String(), nil)
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
