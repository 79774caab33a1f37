// Package dispatch implements the one-shot dispatch cycle: fetch ready
// records, run each through the out-of-process publish runner, classify the
// transcript, and reconcile the outcome back to the store.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"reelpress/internal/config"
	"reelpress/internal/logging"
	"reelpress/internal/notifications"
	"reelpress/internal/record"
	"reelpress/internal/runstore"
	"reelpress/internal/services"
	"reelpress/internal/services/bitable"
	"reelpress/internal/sidecar"
)

// storeClient is the slice of the store client the dispatcher needs.
type storeClient interface {
	Authenticate(ctx context.Context) (bitable.Token, error)
	ListAll(ctx context.Context, token bitable.Token) ([]record.JobRecord, error)
	UpdateByIdentity(ctx context.Context, token bitable.Token, identity string, fields map[string]any) (bool, error)
}

// runnerFunc executes the publish runner and returns its merged transcript
// and exit code. err is reserved for failures to start the process at all.
type runnerFunc func(ctx context.Context, args []string) (transcript string, exitCode int, err error)

// Dispatcher drives one dispatch cycle. Jobs run sequentially; a failure in
// one never stops the rest of the cycle.
type Dispatcher struct {
	cfg        *config.Config
	store      storeClient
	reconciler *Reconciler
	runs       *runstore.Store
	notifier   notifications.Service
	logger     *slog.Logger
	host       string
	clock      func() time.Time
	runner     runnerFunc
}

// NewDispatcher wires a dispatcher from its collaborators.
func NewDispatcher(cfg *config.Config, store storeClient, runs *runstore.Store, notifier notifications.Service, logger *slog.Logger) *Dispatcher {
	host := HostIdentity()
	return &Dispatcher{
		cfg:        cfg,
		store:      store,
		reconciler: NewReconciler(store, cfg.Store, host, logger),
		runs:       runs,
		notifier:   notifier,
		logger:     logging.NewComponentLogger(logger, "dispatcher"),
		host:       host,
		clock:      time.Now,
		runner:     execRunner,
	}
}

// CycleResult summarizes one dispatch cycle.
type CycleResult struct {
	Ready     int
	Published int
	Failed    int
}

// RunCycle performs one fetch-filter-dispatch-reconcile pass. Store
// authentication and fetch failures abort the cycle; everything past that
// point is isolated per job.
func (d *Dispatcher) RunCycle(ctx context.Context) (CycleResult, error) {
	started := d.clock()

	token, err := d.store.Authenticate(ctx)
	if err != nil {
		return CycleResult{}, err
	}

	records, err := d.store.ListAll(ctx, token)
	if err != nil {
		return CycleResult{}, err
	}

	now := d.clock()
	var ready []record.JobRecord
	for _, rec := range records {
		if record.IsReady(rec, now) {
			ready = append(ready, rec)
		}
	}

	result := CycleResult{Ready: len(ready)}
	d.logger.Info("dispatch cycle started",
		logging.Int("records", len(records)),
		logging.Int("ready", len(ready)),
	)
	if len(ready) == 0 {
		return result, nil
	}
	if err := d.notifier.NotifyCycleStarted(ctx, len(ready)); err != nil {
		d.logger.Warn("cycle notification failed", logging.Error(err))
	}

	for _, rec := range ready {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if d.processJob(ctx, token, rec) {
			result.Published++
		} else {
			result.Failed++
		}
	}

	d.logger.Info("dispatch cycle finished",
		logging.Int("published", result.Published),
		logging.Int("failed", result.Failed),
		logging.Duration("duration", d.clock().Sub(started)),
	)
	if err := d.notifier.NotifyCycleCompleted(ctx, result.Published, result.Failed, d.clock().Sub(started)); err != nil {
		d.logger.Warn("cycle notification failed", logging.Error(err))
	}
	return result, nil
}

// processJob shepherds one record through preparation, execution,
// classification, and reconciliation. Panics are contained here so one bad
// job cannot take the cycle down.
func (d *Dispatcher) processJob(ctx context.Context, token bitable.Token, rec record.JobRecord) (published bool) {
	ctx = services.WithRecordID(ctx, rec.Identity)
	ctx = services.WithAccount(ctx, rec.Account)
	log := logging.WithContext(ctx, d.logger)

	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", logging.Any("panic", r))
			published = false
		}
	}()

	destPath, err := d.prepare(rec)
	if err != nil {
		log.Error("job preparation failed", logging.Error(err))
		d.reconcileBestEffort(ctx, token, rec, Classification{
			Outcome: record.Outcome{Kind: record.OutcomeFailure, Reason: prepareReason(err)},
		}, log)
		return false
	}

	run, err := d.runs.Begin(ctx, rec.Identity, rec.Account, rec.SourcePath, destPath, d.host)
	if err != nil {
		log.Warn("run history unavailable", logging.Error(err))
	} else {
		ctx = services.WithRunID(ctx, run.RunID)
		log = logging.WithContext(ctx, d.logger)
	}

	transcript, exitCode := d.execute(ctx, rec, destPath, log)
	classification := Classify(exitCode, transcript)

	if run != nil {
		status := runstore.StatusFailed
		if classification.Outcome.Success() {
			status = runstore.StatusSucceeded
		}
		if err := d.runs.Finish(ctx, run.RunID, status, classification.Outcome.Reason, exitCode); err != nil {
			log.Warn("run history update failed", logging.Error(err))
		}
	}

	d.reconcileBestEffort(ctx, token, rec, classification, log)
	d.notifyJob(ctx, rec, classification, log)

	log.Info("job finished",
		logging.String("status", string(classification.Outcome.Kind)),
		logging.String("reason", classification.Outcome.Reason),
		logging.Int("exit_code", exitCode),
	)
	return classification.Outcome.Success()
}

// prepare copies the source video into the per-account runs directory under
// the destination naming scheme and materializes the sidecar next to it.
func (d *Dispatcher) prepare(rec record.JobRecord) (string, error) {
	videoPath, err := d.resolveSource(rec)
	if err != nil {
		return "", err
	}

	accountDir := d.cfg.AccountRunsDir(rec.Account)
	if err := os.MkdirAll(accountDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure account runs directory: %w", err)
	}

	at := d.clock()
	if rec.ScheduledAt != nil && *rec.ScheduledAt > 0 {
		at = time.UnixMilli(*rec.ScheduledAt).In(d.storeZone())
	}
	destPath := UniqueDestPath(accountDir, DestFileName(rec.Account, at, videoPath))
	if err := copyFile(videoPath, destPath); err != nil {
		return "", err
	}

	title := rec.Title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	}
	if _, err := sidecar.Write(destPath, title, rec.Topics, rec.ProductLink, rec.ProductShortTitle); err != nil {
		return "", err
	}
	return destPath, nil
}

// Source path validation failures carry the fixed message written to the
// store's error column.
var (
	errSourceNotAbsolute = errors.New(ReasonSourceNotAbsolute)
	errSourceMissing     = errors.New(ReasonSourceMissing)
)

// resolveSource validates the record's source path. Only an absolute path to
// an existing regular file is accepted; anything else fails the job before a
// copy is attempted.
func (d *Dispatcher) resolveSource(rec record.JobRecord) (string, error) {
	if rec.SourcePath == "" || !filepath.IsAbs(rec.SourcePath) {
		return "", services.Wrap(services.ErrValidation, "dispatch", "resolve source", rec.SourcePath, errSourceNotAbsolute)
	}

	info, err := os.Stat(rec.SourcePath)
	if err != nil || info.IsDir() {
		return "", services.Wrap(services.ErrValidation, "dispatch", "resolve source", rec.SourcePath, errSourceMissing)
	}
	return rec.SourcePath, nil
}

// prepareReason maps a preparation failure to the reason written back to the
// store. Validation failures keep their fixed message.
func prepareReason(err error) string {
	switch {
	case errors.Is(err, errSourceNotAbsolute):
		return ReasonSourceNotAbsolute
	case errors.Is(err, errSourceMissing):
		return ReasonSourceMissing
	default:
		return ReasonPublishFailed
	}
}

// execute runs the publish runner out of process and captures its merged
// transcript. A runner that cannot start at all reads as a failed publish.
func (d *Dispatcher) execute(ctx context.Context, rec record.JobRecord, destPath string, log *slog.Logger) (string, int) {
	args := []string{"upload", "--account", rec.Account, "--file", destPath}
	if rec.ScheduledAt != nil && *rec.ScheduledAt > 0 {
		args = append(args, "--publish-at", strconv.FormatInt(*rec.ScheduledAt, 10))
	}

	transcript, exitCode, err := d.runner(ctx, args)
	if err != nil {
		log.Error("runner did not start", logging.Error(err))
		return transcript, 1
	}

	if err := d.writeTranscript(rec, transcript); err != nil {
		log.Warn("transcript not persisted", logging.Error(err))
	}
	return transcript, exitCode
}

func (d *Dispatcher) writeTranscript(rec record.JobRecord, transcript string) error {
	dir := d.cfg.AccountRunsDir(rec.Account)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("%s-%s.log", d.clock().Format("20060102-150405"), Slugify(rec.Identity))
	return os.WriteFile(filepath.Join(dir, name), []byte(transcript), 0o644)
}

func (d *Dispatcher) reconcileBestEffort(ctx context.Context, token bitable.Token, rec record.JobRecord, c Classification, log *slog.Logger) {
	if err := d.reconciler.Apply(ctx, token, rec, c); err != nil {
		log.Error("outcome reconciliation failed", logging.Error(err))
	}
}

func (d *Dispatcher) notifyJob(ctx context.Context, rec record.JobRecord, c Classification, log *slog.Logger) {
	var err error
	if c.Outcome.Success() {
		err = d.notifier.NotifyPublished(ctx, rec.Account, rec.Title, c.ManageURL)
	} else {
		err = d.notifier.NotifyPublishFailed(ctx, rec.Account, rec.Title, c.Outcome.Reason)
	}
	if err != nil {
		log.Warn("job notification failed", logging.Error(err))
	}
}

func (d *Dispatcher) storeZone() *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC+%d", d.cfg.Store.UTCOffsetHours), d.cfg.Store.UTCOffsetHours*3600)
}

// execRunner re-invokes this binary's upload command with merged output.
func execRunner(ctx context.Context, args []string) (string, int, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", 1, fmt.Errorf("locate executable: %w", err)
	}

	var buf bytes.Buffer
	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	runErr := cmd.Run()
	if runErr == nil {
		return buf.String(), 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return buf.String(), exitErr.ExitCode(), nil
	}
	return buf.String(), 1, services.Wrap(services.ErrTransient, "dispatch", "start runner", "", runErr)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source video: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create destination copy: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy video: %w", err)
	}
	return out.Sync()
}
