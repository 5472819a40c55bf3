package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"basecore/internal/domain"
)

// Compile-time check.
var _ domain.AuditRepository = (*AuditRepo)(nil)

// AuditRepo implements AuditRepository using SQLite. Entries are
// insert-only; the audit_log triggers abort any UPDATE or DELETE.
type AuditRepo struct {
	db DBTX
}

// NewAuditRepo creates a new AuditRepo over the write pool.
func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// WithTx returns a repository bound to tx, so audit rows commit
// atomically with the data mutation they describe.
func (r *AuditRepo) WithTx(tx *sql.Tx) domain.AuditRepository {
	return &AuditRepo{db: tx}
}

const auditColumns = `id, account_id, operation, table_name, record_id, column_name,
	old_value, new_value, actor_id, actor_email, actor_name,
	signature_id, signature_meaning, ip, user_agent, request_id,
	occurred_at, checksum, previous_hash, metadata`

// TailChecksum returns the checksum of the newest chain entry, or nil
// when the chain is empty.
func (r *AuditRepo) TailChecksum(ctx context.Context) (*string, error) {
	var checksum string
	err := r.db.QueryRowContext(ctx,
		"SELECT checksum FROM audit_log ORDER BY seq DESC LIMIT 1").Scan(&checksum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &checksum, nil
}

// Insert appends one entry. The caller has already attached checksum and
// previous_hash.
func (r *AuditRepo) Insert(ctx context.Context, e *domain.AuditEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (`+auditColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.AccountID, e.Operation, e.TableName, e.RecordID, e.ColumnName,
		e.OldValue, e.NewValue, e.ActorID, e.ActorEmail, e.ActorName,
		e.SignatureID, e.SignatureMeaning, e.IP, e.UserAgent, e.RequestID,
		e.OccurredAt, e.Checksum, e.PreviousHash, mustJSONString(e.Metadata),
	)
	return mapDBError(err)
}

// List returns a filtered, paginated list of audit entries, newest
// first.
func (r *AuditRepo) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, int64, error) {
	where, args := auditFilterClause(filter)

	var total int64
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM audit_log"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listArgs := append(append([]any{}, args...), filter.Page.Limit(), filter.Page.Offset())
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+auditColumns+" FROM audit_log"+where+" ORDER BY seq DESC LIMIT ? OFFSET ?",
		listArgs...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, *e)
	}
	return entries, total, rows.Err()
}

// ScanChain streams every entry in chain order (oldest first).
func (r *AuditRepo) ScanChain(ctx context.Context, fn func(*domain.AuditEntry) error) error {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+auditColumns+" FROM audit_log ORDER BY seq ASC")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

func auditFilterClause(filter domain.AuditFilter) (string, []any) {
	var conds []string
	var args []any
	if filter.AccountID != nil {
		conds = append(conds, "account_id = ?")
		args = append(args, *filter.AccountID)
	}
	if filter.TableName != nil {
		conds = append(conds, "table_name = ?")
		args = append(args, *filter.TableName)
	}
	if filter.RecordID != nil {
		conds = append(conds, "record_id = ?")
		args = append(args, *filter.RecordID)
	}
	if filter.ActorID != nil {
		conds = append(conds, "actor_id = ?")
		args = append(args, *filter.ActorID)
	}
	if filter.Operation != nil {
		conds = append(conds, "operation = ?")
		args = append(args, *filter.Operation)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanAuditEntry(row rowScanner) (*domain.AuditEntry, error) {
	var e domain.AuditEntry
	var metadataJSON string
	err := row.Scan(
		&e.ID, &e.AccountID, &e.Operation, &e.TableName, &e.RecordID, &e.ColumnName,
		&e.OldValue, &e.NewValue, &e.ActorID, &e.ActorEmail, &e.ActorName,
		&e.SignatureID, &e.SignatureMeaning, &e.IP, &e.UserAgent, &e.RequestID,
		&e.OccurredAt, &e.Checksum, &e.PreviousHash, &metadataJSON,
	)
	if err != nil {
		return nil, mapDBError(err)
	}
	if metadataJSON != "" && metadataJSON != "{}" {
		if err := json.Unmarshal([]byte(metadataJSON), &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata for audit entry %s: %w", e.ID, err)
		}
	}
	return &e, nil
}
