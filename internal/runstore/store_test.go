package runstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"reelpress/internal/runstore"
)

func openStore(t *testing.T) *runstore.Store {
	t.Helper()
	store, err := runstore.OpenPath(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBeginFinishRoundTrip(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	run, err := store.Begin(ctx, "recAbc", "studio-a", "/videos/a.mp4", "/runs/studio-a/x.mp4", "host-1234")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if run.RunID == "" || run.Status != runstore.StatusRunning {
		t.Fatalf("unexpected run: %+v", run)
	}

	if err := store.Finish(ctx, run.RunID, runstore.StatusFailed, "quota_exceeded", 1); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	loaded, err := store.GetByRunID(ctx, run.RunID)
	if err != nil {
		t.Fatalf("GetByRunID: %v", err)
	}
	if loaded == nil || loaded.Status != runstore.StatusFailed || loaded.Reason != "quota_exceeded" || loaded.ExitCode != 1 {
		t.Fatalf("unexpected loaded run: %+v", loaded)
	}
	if !loaded.Finished() || loaded.FinishedAt.IsZero() {
		t.Fatal("run should be terminal with a finish timestamp")
	}
}

func TestFinishUnknownRunFails(t *testing.T) {
	store := openStore(t)
	if err := store.Finish(context.Background(), "missing", runstore.StatusSucceeded, "", 0); err == nil {
		t.Fatal("expected error for unknown run id")
	}
}

func TestGetByRunIDMissingResolvesNil(t *testing.T) {
	store := openStore(t)
	run, err := store.GetByRunID(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetByRunID: %v", err)
	}
	if run != nil {
		t.Fatalf("expected nil, got %+v", run)
	}
}

func TestListFiltersByAccountNewestFirst(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	first, err := store.Begin(ctx, "rec1", "studio-a", "/v/1.mp4", "", "h")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	second, err := store.Begin(ctx, "rec2", "studio-a", "/v/2.mp4", "", "h")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := store.Begin(ctx, "rec3", "studio-b", "/v/3.mp4", "", "h"); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	runs, err := store.List(ctx, "studio-a", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs for studio-a, got %d", len(runs))
	}
	if runs[0].RunID != second.RunID || runs[1].RunID != first.RunID {
		t.Fatalf("expected newest first, got %s then %s", runs[0].RunID, runs[1].RunID)
	}

	limited, err := store.List(ctx, "", 1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d runs", len(limited))
	}
}

func TestStatsCountsByStatus(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	ok, err := store.Begin(ctx, "rec1", "studio-a", "/v/1.mp4", "", "h")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	bad, err := store.Begin(ctx, "rec2", "studio-a", "/v/2.mp4", "", "h")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := store.Begin(ctx, "rec3", "studio-a", "/v/3.mp4", "", "h"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := store.Finish(ctx, ok.RunID, runstore.StatusSucceeded, "", 0); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if err := store.Finish(ctx, bad.RunID, runstore.StatusFailed, "publish_failed", 1); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	stats, err := store.Stats(ctx, "studio-a")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 3 || stats.Succeeded != 1 || stats.Failed != 1 || stats.Running != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
