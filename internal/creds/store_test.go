package creds_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"reelpress/internal/creds"
)

func TestLoadMissingFileResolvesEmpty(t *testing.T) {
	store := creds.NewFileStore(filepath.Join(t.TempDir(), "douyin_studio-a.json"))
	cookies, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cookies != nil {
		t.Fatalf("expected nil cookies, got %v", cookies)
	}
	if store.Exists() {
		t.Fatal("Exists should be false for a missing file")
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	store := creds.NewFileStore(filepath.Join(t.TempDir(), "douyin_studio-a.json"))
	in := []creds.Cookie{
		{Name: "sessionid", Value: "abc", Domain: ".douyin.com", Path: "/", Expires: 1_900_000_000, HTTPOnly: true, Secure: true},
		{Name: "ttwid", Value: "xyz", Domain: ".douyin.com", Path: "/"},
	}
	if err := store.Save(in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !store.Exists() {
		t.Fatal("Exists should be true after Save")
	}

	out, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out) != 2 || out[0].Name != "sessionid" || !out[0].HTTPOnly {
		t.Fatalf("unexpected cookies: %+v", out)
	}
}

func TestAcquireLeaseIsExclusive(t *testing.T) {
	store := creds.NewFileStore(filepath.Join(t.TempDir(), "douyin_studio-a.json"))

	lease, err := store.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lease.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if _, err := store.Acquire(ctx); err == nil {
		t.Fatal("second acquire should fail while the lease is held")
	}
}

func TestReleaseNilLease(t *testing.T) {
	var lease *creds.Lease
	if err := lease.Release(); err != nil {
		t.Fatalf("nil release should be a no-op, got %v", err)
	}
}
