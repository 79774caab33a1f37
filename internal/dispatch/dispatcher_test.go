package dispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"reelpress/internal/config"
	"reelpress/internal/logging"
	"reelpress/internal/notifications"
	"reelpress/internal/record"
	"reelpress/internal/runstore"
	"reelpress/internal/services"
	"reelpress/internal/sidecar"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.VideosDir = filepath.Join(root, "videos")
	cfg.Paths.RunsDir = filepath.Join(root, "runs")
	cfg.Paths.CookiesDir = filepath.Join(root, "cookies")
	cfg.Paths.LogDir = filepath.Join(root, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	return &cfg
}

func stageVideo(t *testing.T, cfg *config.Config, folder string) string {
	t.Helper()
	dir := filepath.Join(cfg.Paths.VideosDir, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(path, []byte("video-bytes"), 0o644); err != nil {
		t.Fatalf("write video: %v", err)
	}
	return path
}

func testDispatcher(t *testing.T, cfg *config.Config, store *fakeStore, transcript string, exitCode int) (*Dispatcher, *[]string) {
	t.Helper()
	runs, err := runstore.OpenPath(filepath.Join(cfg.Paths.LogDir, "runs.db"))
	if err != nil {
		t.Fatalf("open runstore: %v", err)
	}
	t.Cleanup(func() { _ = runs.Close() })

	d := NewDispatcher(cfg, store, runs, notifications.NewService(config.Notifications{}), logging.NewNop())
	d.clock = func() time.Time { return time.Date(2026, 3, 14, 1, 30, 0, 0, time.UTC) }

	var invocations []string
	d.runner = func(_ context.Context, args []string) (string, int, error) {
		invocations = append(invocations, strings.Join(args, " "))
		return transcript, exitCode, nil
	}
	return d, &invocations
}

func readyRecord(identity, sourcePath string) record.JobRecord {
	return record.JobRecord{
		Identity:    identity,
		Account:     "studio-a",
		SourcePath:  sourcePath,
		ScheduledAt: ms(1_700_000_000_000),
		Title:       "spring teaser",
		Topics:      "旅游，美食",
	}
}

func TestRunCyclePublishesReadyRecord(t *testing.T) {
	cfg := testConfig(t)
	clip := stageVideo(t, cfg, "spring")

	future := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	store := &fakeStore{records: []record.JobRecord{
		readyRecord("recReady1", clip),
		{Identity: "recFuture", Account: "studio-a", SourcePath: clip, ScheduledAt: &future},
		{Identity: "recDone", Account: "studio-a", SourcePath: clip, ScheduledAt: ms(1), Status: "执行成功"},
	}}

	transcript := "INFO publish: workflow published\nreelpress-result state=published manage_url=https://creator.douyin.com/creator-micro/content/manage\n"
	d, invocations := testDispatcher(t, cfg, store, transcript, 0)

	result, err := d.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if result.Ready != 1 || result.Published != 1 || result.Failed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	if len(*invocations) != 1 {
		t.Fatalf("expected one runner invocation, got %v", *invocations)
	}
	args := (*invocations)[0]
	if !strings.HasPrefix(args, "upload --account studio-a --file ") {
		t.Fatalf("unexpected runner args: %s", args)
	}
	if !strings.Contains(args, "--publish-at 1700000000000") {
		t.Fatalf("schedule flag missing: %s", args)
	}

	// The store got exactly one write: success label against the identity.
	if len(store.updates) != 1 || store.updates[0].identity != "recReady1" {
		t.Fatalf("unexpected store writes: %+v", store.updates)
	}

	// The copy and its sidecar landed in the per-account runs directory.
	accountDir := cfg.AccountRunsDir("studio-a")
	entries, err := os.ReadDir(accountDir)
	if err != nil {
		t.Fatalf("read account dir: %v", err)
	}
	var video, meta string
	for _, e := range entries {
		switch filepath.Ext(e.Name()) {
		case ".mp4":
			video = e.Name()
		case ".txt":
			meta = e.Name()
		}
	}
	if !strings.HasPrefix(video, "studio-a_") || !strings.Contains(video, "_clip.mp4") {
		t.Fatalf("unexpected dest name %q", video)
	}
	if meta == "" {
		t.Fatal("sidecar not materialized")
	}
	loaded, err := sidecar.Load(filepath.Join(accountDir, meta))
	if err != nil {
		t.Fatalf("load sidecar: %v", err)
	}
	if loaded.Title != "spring teaser" || len(loaded.Topics) != 2 {
		t.Fatalf("unexpected sidecar content: %+v", loaded)
	}
}

func TestRunCycleQuotaFailureWritesReason(t *testing.T) {
	cfg := testConfig(t)
	clip := stageVideo(t, cfg, "spring")
	store := &fakeStore{records: []record.JobRecord{readyRecord("recReady1", clip)}}

	d, _ := testDispatcher(t, cfg, store, "reelpress-result state=quota_reached\n", 1)
	result, err := d.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if result.Failed != 1 || result.Published != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	schema := cfg.Store.Fields
	if len(store.updates) != 1 {
		t.Fatalf("expected one write, got %+v", store.updates)
	}
	fields := store.updates[0].fields
	if fields[schema.Status] != cfg.Store.FailureLabel || fields[schema.ErrorText] != ReasonQuotaExceeded {
		t.Fatalf("unexpected outcome fields: %+v", fields)
	}
}

func TestRunCycleRelativeSourceFailsFast(t *testing.T) {
	cfg := testConfig(t)
	stageVideo(t, cfg, "spring")
	store := &fakeStore{records: []record.JobRecord{readyRecord("recReady1", filepath.Join("spring", "clip.mp4"))}}

	d, invocations := testDispatcher(t, cfg, store, "", 0)
	result, err := d.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if result.Failed != 1 || result.Published != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(*invocations) != 0 {
		t.Fatal("runner must not start for a relative source path")
	}
	if len(store.updates) != 1 || store.updates[0].fields[cfg.Store.Fields.ErrorText] != ReasonSourceNotAbsolute {
		t.Fatalf("validation failure not reconciled with fixed message: %+v", store.updates)
	}
	// No copy may be attempted before validation.
	if entries, err := os.ReadDir(cfg.AccountRunsDir("studio-a")); err == nil && len(entries) > 0 {
		t.Fatalf("file copy attempted for invalid source: %v", entries)
	}
}

func TestRunCycleMissingSourceReconcilesFailure(t *testing.T) {
	cfg := testConfig(t)
	store := &fakeStore{records: []record.JobRecord{
		readyRecord("recReady1", filepath.Join(cfg.Paths.VideosDir, "missing.mp4")),
	}}

	d, invocations := testDispatcher(t, cfg, store, "", 0)
	result, err := d.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if result.Failed != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(*invocations) != 0 {
		t.Fatal("runner must not start when preparation fails")
	}
	if len(store.updates) != 1 || store.updates[0].fields[cfg.Store.Fields.ErrorText] != ReasonSourceMissing {
		t.Fatalf("preparation failure not reconciled: %+v", store.updates)
	}
}

func TestRunCycleDirectorySourceRejected(t *testing.T) {
	cfg := testConfig(t)
	clip := stageVideo(t, cfg, "spring")
	store := &fakeStore{records: []record.JobRecord{readyRecord("recReady1", filepath.Dir(clip))}}

	d, invocations := testDispatcher(t, cfg, store, "", 0)
	result, err := d.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if result.Failed != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(*invocations) != 0 {
		t.Fatal("runner must not start for a directory source")
	}
	if len(store.updates) != 1 || store.updates[0].fields[cfg.Store.Fields.ErrorText] != ReasonSourceMissing {
		t.Fatalf("directory source not reconciled as invalid: %+v", store.updates)
	}
}

func TestRunCycleAuthFailureAbortsCycle(t *testing.T) {
	cfg := testConfig(t)
	authErr := services.Wrap(services.ErrAuth, "store", "token exchange", "", errors.New("denied"))
	store := &fakeStore{authErr: authErr}

	d, _ := testDispatcher(t, cfg, store, "", 0)
	if _, err := d.RunCycle(context.Background()); !errors.Is(err, services.ErrAuth) {
		t.Fatalf("expected auth error to propagate, got %v", err)
	}
	if store.listCalls != 0 {
		t.Fatal("fetch must not run after failed authentication")
	}
}

func TestRunCycleFetchFailureAbortsCycle(t *testing.T) {
	cfg := testConfig(t)
	fetchErr := services.Wrap(services.ErrFetch, "store", "list records", "", errors.New("boom"))
	store := &fakeStore{listErr: fetchErr}

	d, _ := testDispatcher(t, cfg, store, "", 0)
	if _, err := d.RunCycle(context.Background()); !errors.Is(err, services.ErrFetch) {
		t.Fatalf("expected fetch error to propagate, got %v", err)
	}
}
