package record_test

import (
	"testing"
	"time"

	"reelpress/internal/config"
	"reelpress/internal/record"
)

func ms(v int64) *int64 { return &v }

func TestIsReady(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	cases := []struct {
		name string
		rec  record.JobRecord
		want bool
	}{
		{"due and unprocessed", record.JobRecord{ScheduledAt: ms(1_699_999_999_999)}, true},
		{"due exactly now", record.JobRecord{ScheduledAt: ms(1_700_000_000_000)}, true},
		{"zero means immediate", record.JobRecord{ScheduledAt: ms(0)}, true},
		{"future", record.JobRecord{ScheduledAt: ms(1_700_000_000_001)}, false},
		{"no timestamp", record.JobRecord{}, false},
		{"already succeeded", record.JobRecord{Status: "执行成功", ScheduledAt: ms(0)}, false},
		{"already failed", record.JobRecord{Status: "执行失败", ScheduledAt: ms(0)}, false},
	}
	for _, tc := range cases {
		if got := record.IsReady(tc.rec, now); got != tc.want {
			t.Errorf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestFromFieldsCoercesCellShapes(t *testing.T) {
	schema := config.Default().Store.Fields
	fields := map[string]any{
		schema.SourcePath:  " /videos/a.mp4 ",
		schema.Account:     "studio-a",
		schema.PublishTime: float64(1_700_000_000_000),
		schema.Title:       []any{map[string]any{"text": "morning "}, map[string]any{"text": "routine"}},
		schema.Topics:      "旅游，美食",
		schema.Status:      nil,
	}
	rec := record.FromFields(schema, "recAbc123", fields)
	if rec.SourcePath != "/videos/a.mp4" {
		t.Fatalf("unexpected source path: %q", rec.SourcePath)
	}
	if rec.ScheduledAt == nil || *rec.ScheduledAt != 1_700_000_000_000 {
		t.Fatalf("unexpected scheduled at: %v", rec.ScheduledAt)
	}
	if rec.Title != "morning routine" {
		t.Fatalf("unexpected title: %q", rec.Title)
	}
	if rec.Status != "" {
		t.Fatalf("expected empty status, got %q", rec.Status)
	}
}

func TestFromFieldsMalformedTimestampReadsAbsent(t *testing.T) {
	schema := config.Default().Store.Fields
	rec := record.FromFields(schema, "rec1", map[string]any{schema.PublishTime: "next tuesday"})
	if rec.ScheduledAt != nil {
		t.Fatalf("expected nil scheduled at, got %d", *rec.ScheduledAt)
	}
	if record.IsReady(rec, time.Now()) {
		t.Fatal("malformed timestamp must not be ready")
	}
}

func TestFromFieldsParsesISOTimestamp(t *testing.T) {
	schema := config.Default().Store.Fields
	rec := record.FromFields(schema, "rec1", map[string]any{schema.PublishTime: "2026-08-12T16:30:00+08:00"})
	if rec.ScheduledAt == nil {
		t.Fatal("expected parsed timestamp")
	}
	want := time.Date(2026, 8, 12, 16, 30, 0, 0, time.FixedZone("CST", 8*3600)).UnixMilli()
	if *rec.ScheduledAt != want {
		t.Fatalf("got %d want %d", *rec.ScheduledAt, want)
	}
}

func TestCleanIdentity(t *testing.T) {
	cases := []struct {
		in    string
		want  string
		valid bool
	}{
		{"recAbc123", "recAbc123", true},
		{" rec-Abc_123 ", "recAbc123", true},
		{"Abc123", "Abc123", false},
		{"", "", false},
		{"rec", "rec", true},
	}
	for _, tc := range cases {
		got, valid := record.CleanIdentity(tc.in)
		if got != tc.want || valid != tc.valid {
			t.Errorf("CleanIdentity(%q) = %q,%v want %q,%v", tc.in, got, valid, tc.want, tc.valid)
		}
	}
}

func TestRescueKeyMatchesNonNullKeysOnly(t *testing.T) {
	key := record.RescueKey{SourcePath: "/v/a.mp4", Account: "studio-a", ScheduledAt: ms(100)}

	match := record.JobRecord{SourcePath: "/v/a.mp4", Account: "studio-a", ScheduledAt: ms(100), Title: "different title entirely"}
	if !key.Matches(match) {
		t.Fatal("unrelated field differences must not block a match")
	}

	if key.Matches(record.JobRecord{SourcePath: "/v/b.mp4", Account: "studio-a", ScheduledAt: ms(100)}) {
		t.Fatal("source path mismatch must not match")
	}
	if key.Matches(record.JobRecord{SourcePath: "/v/a.mp4", Account: "studio-a"}) {
		t.Fatal("missing scheduled time must not match a non-null key")
	}

	partial := record.RescueKey{SourcePath: "/v/a.mp4"}
	if !partial.Matches(record.JobRecord{SourcePath: "/v/a.mp4", Account: "anything"}) {
		t.Fatal("null keys must be skipped during matching")
	}
}

func TestRescueComesFromSnapshot(t *testing.T) {
	rec := record.JobRecord{SourcePath: "/v/a.mp4", Account: "studio-a", ScheduledAt: ms(42)}
	key := rec.Rescue()
	rec.SourcePath = "/mutated/elsewhere.mp4"
	if key.SourcePath != "/v/a.mp4" {
		t.Fatal("rescue key must capture read-time values")
	}
}
