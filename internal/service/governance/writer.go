package governance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"basecore/internal/domain"
)

// ChainWriter appends column-level change records to the audit chain.
//
// Two entry points share the chaining logic: Append opens its own
// immediate transaction on the single-connection write pool, and
// AppendTx runs inside a caller-supplied transaction so audit rows
// commit atomically with the data mutation they describe.
type ChainWriter struct {
	db         *sql.DB
	repo       domain.AuditRepository
	logger     *slog.Logger
	actorClaim string
	now        func() time.Time
}

// ChainWriterOption configures a ChainWriter.
type ChainWriterOption func(*ChainWriter)

// WithActorClaim selects the identity field recorded as the actor
// display name when a mutation event carries none. Recognized claims:
// "email" (the default), "id", "role", "account_id".
func WithActorClaim(claim string) ChainWriterOption {
	return func(w *ChainWriter) {
		if claim != "" {
			w.actorClaim = claim
		}
	}
}

// NewChainWriter creates a ChainWriter over the write pool.
func NewChainWriter(db *sql.DB, repo domain.AuditRepository, logger *slog.Logger, opts ...ChainWriterOption) *ChainWriter {
	if logger == nil {
		logger = slog.Default()
	}
	w := &ChainWriter{db: db, repo: repo, logger: logger, actorClaim: "email", now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// actorName resolves the configured identity claim to a display name.
func (w *ChainWriter) actorName(id domain.Identity) string {
	switch w.actorClaim {
	case "id":
		return id.UserID
	case "role":
		return id.Role
	case "account_id":
		return id.AccountID
	default:
		return id.Email
	}
}

// Append writes one logical mutation's column changes as a contiguous
// chain segment inside its own transaction. A writer failure leaves the
// chain untouched; the caller must treat it as fatal to the enclosing
// mutation.
func (w *ChainWriter) Append(ctx context.Context, changes []domain.ColumnChange) ([]domain.AuditEntry, error) {
	if len(changes) == 0 {
		return nil, nil
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin audit transaction: %w", err)
	}

	entries, err := w.appendAll(ctx, w.repo.WithTx(tx), changes)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit audit transaction: %w", err)
	}
	return entries, nil
}

// AppendTx writes the changes through a connection already inside the
// mutating transaction. Used from data-mutation hooks against a
// single-writer store, where opening a second transaction would
// deadlock and a crash between the two would lose the audit trail.
func (w *ChainWriter) AppendTx(ctx context.Context, tx *sql.Tx, changes []domain.ColumnChange) ([]domain.AuditEntry, error) {
	if len(changes) == 0 {
		return nil, nil
	}
	return w.appendAll(ctx, w.repo.WithTx(tx), changes)
}

// appendAll fetches the chain tail once, then chains and inserts the
// batch in order. The surrounding transaction serializes the
// read-tail/compute/insert sequence against concurrent batches.
func (w *ChainWriter) appendAll(ctx context.Context, repo domain.AuditRepository, changes []domain.ColumnChange) ([]domain.AuditEntry, error) {
	prev, err := repo.TailChecksum(ctx)
	if err != nil {
		return nil, fmt.Errorf("read chain tail: %w", err)
	}

	entries := make([]domain.AuditEntry, 0, len(changes))
	for i := range changes {
		entry, err := w.buildEntry(&changes[i], prev)
		if err != nil {
			return nil, err
		}
		if err := repo.Insert(ctx, entry); err != nil {
			return nil, fmt.Errorf("insert audit entry for %s.%s: %w", entry.TableName, entry.ColumnName, err)
		}
		prev = &entry.Checksum
		entries = append(entries, *entry)
	}

	w.logger.Debug("audit chain extended",
		"entries", len(entries),
		"table", changes[0].TableName,
		"operation", changes[0].Operation)
	return entries, nil
}

// buildEntry derives one chain entry from a column change, attaching
// previous_hash and the entry checksum.
func (w *ChainWriter) buildEntry(c *domain.ColumnChange, prev *string) (*domain.AuditEntry, error) {
	switch c.Operation {
	case domain.AuditOpCreate, domain.AuditOpUpdate, domain.AuditOpDelete:
	default:
		return nil, domain.ErrValidation("invalid audit operation %q", c.Operation)
	}
	if c.TableName == "" || c.ColumnName == "" {
		return nil, domain.ErrValidation("audit change requires table_name and column_name")
	}

	occurred := c.OccurredAt
	if occurred.IsZero() {
		occurred = w.now().UTC()
	}

	e := &domain.AuditEntry{
		ID:               uuid.NewString(),
		AccountID:        c.AccountID,
		Operation:        c.Operation,
		TableName:        c.TableName,
		RecordID:         c.RecordID,
		ColumnName:       c.ColumnName,
		OldValue:         encodeValue(c.OldValue),
		NewValue:         encodeValue(c.NewValue),
		ActorID:          c.ActorID,
		ActorEmail:       c.ActorEmail,
		ActorName:        c.ActorName,
		SignatureID:      c.SignatureID,
		SignatureMeaning: c.SignatureMeaning,
		IP:               c.IP,
		UserAgent:        c.UserAgent,
		RequestID:        c.RequestID,
		OccurredAt:       occurred,
		PreviousHash:     prev,
		Metadata:         c.Metadata,
	}
	e.Checksum = Checksum(e)
	return e, nil
}

// encodeValue serializes a column value to its canonical JSON text.
// nil stays NULL so unset and empty values remain distinguishable.
func encodeValue(v any) *string {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		s := fmt.Sprintf("%v", v)
		return &s
	}
	s := string(b)
	return &s
}
