package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"reelpress/internal/config"
	"reelpress/internal/logging"
	"reelpress/internal/record"
	"reelpress/internal/services/bitable"
)

// recordStore is the slice of the store client the reconciler needs.
type recordStore interface {
	ListAll(ctx context.Context, token bitable.Token) ([]record.JobRecord, error)
	UpdateByIdentity(ctx context.Context, token bitable.Token, identity string, fields map[string]any) (bool, error)
}

// Reconciler writes a classified outcome back to the store. The record's
// identity may have drifted between read and execution; a rejected direct
// write falls back to relocating the record by its content fingerprint.
// At most one write succeeds per job.
type Reconciler struct {
	store  recordStore
	schema config.Fields
	labels struct{ success, failure string }
	host   string
	zone   *time.Location
	clock  func() time.Time
	logger *slog.Logger
}

// NewReconciler wires a reconciler against one store client.
func NewReconciler(store recordStore, cfg config.Store, host string, logger *slog.Logger) *Reconciler {
	r := &Reconciler{
		store:  store,
		schema: cfg.Fields,
		host:   host,
		zone:   time.FixedZone(fmt.Sprintf("UTC+%d", cfg.UTCOffsetHours), cfg.UTCOffsetHours*3600),
		clock:  time.Now,
		logger: logging.NewComponentLogger(logger, "reconciler"),
	}
	r.labels.success = cfg.SuccessLabel
	r.labels.failure = cfg.FailureLabel
	return r
}

// Apply records the outcome against the store. Business-level rejection of
// the direct write triggers rescue relocation; an outcome that cannot be
// written at all is logged as unrecoverable and surfaced as an error.
func (r *Reconciler) Apply(ctx context.Context, token bitable.Token, snapshot record.JobRecord, c Classification) error {
	fields := r.outcomeFields(c)
	log := r.logger.With(
		logging.String(logging.FieldRecordID, snapshot.Identity),
		logging.String(logging.FieldAccount, snapshot.Account),
	)

	ok, err := r.store.UpdateByIdentity(ctx, token, snapshot.Identity, fields)
	if err != nil {
		return fmt.Errorf("write outcome for %s: %w", snapshot.Identity, err)
	}
	if ok {
		log.Info("outcome written", logging.String("status", string(c.Outcome.Kind)))
		return nil
	}

	// The identity no longer resolves. Refetch and relocate by the
	// pre-execution content fingerprint.
	key := snapshot.Rescue()
	log.Warn("direct write rejected, attempting rescue relocation",
		logging.String("rescue_key", key.String()),
		logging.String(logging.FieldEventType, "rescue_started"),
	)

	records, err := r.store.ListAll(ctx, token)
	if err != nil {
		return fmt.Errorf("rescue refetch for %s: %w", snapshot.Identity, err)
	}

	for _, candidate := range records {
		if !key.Matches(candidate) {
			continue
		}
		ok, err := r.store.UpdateByIdentity(ctx, token, candidate.Identity, fields)
		if err != nil {
			return fmt.Errorf("rescue write for %s: %w", candidate.Identity, err)
		}
		if ok {
			log.Info("outcome written via rescue relocation",
				logging.String("relocated_to", candidate.Identity),
				logging.String(logging.FieldEventType, "rescue_succeeded"),
			)
			return nil
		}
		// A rejected rescue candidate is stale too; keep scanning.
	}

	log.Error("outcome unrecoverable, no record matches the rescue key",
		logging.String("rescue_key", key.String()),
		logging.String("status", string(c.Outcome.Kind)),
		logging.String("reason", c.Outcome.Reason),
		logging.String(logging.FieldEventType, "rescue_failed"),
	)
	return fmt.Errorf("outcome for %s unrecoverable: no rescue match", snapshot.Identity)
}

func (r *Reconciler) outcomeFields(c Classification) map[string]any {
	fields := map[string]any{
		r.schema.ExecutingHost: r.host,
		r.schema.LastRunAt:     r.clock().In(r.zone).Format("2006-01-02 15:04:05"),
	}
	if c.Outcome.Success() {
		fields[r.schema.Status] = r.labels.success
		fields[r.schema.ErrorText] = ""
	} else {
		fields[r.schema.Status] = r.labels.failure
		fields[r.schema.ErrorText] = c.Outcome.Reason
	}
	return fields
}
