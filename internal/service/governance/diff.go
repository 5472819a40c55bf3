package governance

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"

	"basecore/internal/domain"
)

// MutationEvent is the callback surface consumed from data-mutation
// hooks: one mutated record with its before/after snapshots and the
// identity/tenant metadata contributed at mutation time.
type MutationEvent struct {
	Operation string // CREATE, UPDATE, or DELETE
	AccountID string
	Identity  domain.Identity
	ActorName string // display name; derived from the configured identity claim when empty
	Meta      domain.RequestMeta

	// Electronic-signature attestation, optional.
	SignatureID      string
	SignatureMeaning string

	Old      *domain.RecordSnapshot // nil for CREATE
	New      *domain.RecordSnapshot // nil for DELETE
	Metadata map[string]any
}

// HandleMutation builds per-column changes from the event's snapshots
// and appends them through the caller's transaction. Intended to be
// registered as a mutation hook; a returned error must roll back the
// data mutation, never be logged and dropped.
func (w *ChainWriter) HandleMutation(ctx context.Context, tx *sql.Tx, ev MutationEvent) ([]domain.AuditEntry, error) {
	if ev.ActorName == "" {
		ev.ActorName = w.actorName(ev.Identity)
	}
	changes, err := ev.Changes()
	if err != nil {
		return nil, err
	}
	return w.AppendTx(ctx, tx, changes)
}

// Changes derives the ordered column-change list for the event: one
// change per created, modified, or deleted column, in column-name order.
func (ev *MutationEvent) Changes() ([]domain.ColumnChange, error) {
	snap := ev.New
	if snap == nil {
		snap = ev.Old
	}
	if snap == nil {
		return nil, domain.ErrValidation("mutation event carries no record snapshot")
	}

	base := domain.ColumnChange{
		AccountID:        ev.AccountID,
		Operation:        ev.Operation,
		TableName:        snap.TableName,
		RecordID:         snap.RecordID,
		ActorID:          ev.Identity.UserID,
		ActorEmail:       ev.Identity.Email,
		ActorName:        ev.ActorName,
		SignatureID:      ev.SignatureID,
		SignatureMeaning: ev.SignatureMeaning,
		IP:               ev.Meta.IP,
		UserAgent:        ev.Meta.UserAgent,
		RequestID:        ev.Meta.RequestID,
		Metadata:         ev.Metadata,
	}

	var changes []domain.ColumnChange
	for _, col := range changedColumns(ev.Old, ev.New) {
		c := base
		c.ColumnName = col
		if ev.Old != nil {
			c.OldValue = ev.Old.Fields[col]
		}
		if ev.New != nil {
			c.NewValue = ev.New.Fields[col]
		}
		changes = append(changes, c)
	}
	return changes, nil
}

// changedColumns returns the sorted union of columns whose values differ
// between the snapshots. For CREATE and DELETE every column qualifies.
func changedColumns(old, new *domain.RecordSnapshot) []string {
	seen := map[string]bool{}
	var cols []string
	add := func(col string) {
		if !seen[col] {
			seen[col] = true
			cols = append(cols, col)
		}
	}
	if old != nil {
		for col := range old.Fields {
			add(col)
		}
	}
	if new != nil {
		for col := range new.Fields {
			add(col)
		}
	}

	var changed []string
	for _, col := range cols {
		if old == nil || new == nil || !equalValues(old.Fields[col], new.Fields[col]) {
			changed = append(changed, col)
		}
	}
	sort.Strings(changed)
	return changed
}

// equalValues compares column values by canonical JSON.
func equalValues(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ja) == string(jb)
}
