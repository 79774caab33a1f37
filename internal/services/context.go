package services

import "context"

type contextKey string

const (
	recordIDKey contextKey = "record_id"
	accountKey  contextKey = "account"
	stageKey    contextKey = "stage"
	runIDKey    contextKey = "run_id"
)

// WithRecordID attaches a store record identity to the context.
func WithRecordID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, recordIDKey, id)
}

// RecordIDFromContext extracts a store record identity from the context.
func RecordIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(recordIDKey).(string)
	return id, ok && id != ""
}

// WithAccount attaches a publisher account alias to the context.
func WithAccount(ctx context.Context, account string) context.Context {
	return context.WithValue(ctx, accountKey, account)
}

// AccountFromContext extracts a publisher account alias from the context.
func AccountFromContext(ctx context.Context) (string, bool) {
	account, ok := ctx.Value(accountKey).(string)
	return account, ok && account != ""
}

// WithStage attaches a workflow stage name to the context.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext extracts a workflow stage name from the context.
func StageFromContext(ctx context.Context) (string, bool) {
	stage, ok := ctx.Value(stageKey).(string)
	return stage, ok && stage != ""
}

// WithRunID attaches a dispatch run identifier to the context.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts a dispatch run identifier from the context.
func RunIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey).(string)
	return id, ok && id != ""
}
