package governance

import (
	"context"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "basecore/internal/db"
	"basecore/internal/db/repository"
	"basecore/internal/domain"
)

func snapshot(fields map[string]any) *domain.RecordSnapshot {
	return &domain.RecordSnapshot{TableName: "posts", RecordID: "rec-1", Fields: fields}
}

func TestChangesUpdateOnlyDiffers(t *testing.T) {
	ev := MutationEvent{
		Operation: domain.AuditOpUpdate,
		AccountID: "acct-1",
		Identity:  domain.Identity{UserID: "u-1", Email: "dev@example.com"},
		Old:       snapshot(map[string]any{"title": "a", "status": "draft", "views": 3}),
		New:       snapshot(map[string]any{"title": "a", "status": "published", "views": 4}),
	}

	changes, err := ev.Changes()
	require.NoError(t, err)
	require.Len(t, changes, 2)

	// Column-name order.
	assert.Equal(t, "status", changes[0].ColumnName)
	assert.Equal(t, "views", changes[1].ColumnName)

	assert.Equal(t, "draft", changes[0].OldValue)
	assert.Equal(t, "published", changes[0].NewValue)
	assert.Equal(t, "u-1", changes[0].ActorID)
	assert.Equal(t, "posts", changes[0].TableName)
}

func TestChangesCreateCoversAllColumns(t *testing.T) {
	ev := MutationEvent{
		Operation: domain.AuditOpCreate,
		New:       snapshot(map[string]any{"title": "a", "status": "draft"}),
	}
	changes, err := ev.Changes()
	require.NoError(t, err)
	require.Len(t, changes, 2)
	for _, c := range changes {
		assert.Nil(t, c.OldValue)
		assert.NotNil(t, c.NewValue)
	}
}

func TestChangesDeleteCoversAllColumns(t *testing.T) {
	ev := MutationEvent{
		Operation: domain.AuditOpDelete,
		Old:       snapshot(map[string]any{"title": "a"}),
	}
	changes, err := ev.Changes()
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "a", changes[0].OldValue)
	assert.Nil(t, changes[0].NewValue)
}

func TestChangesNoSnapshotIsError(t *testing.T) {
	ev := MutationEvent{Operation: domain.AuditOpUpdate}
	_, err := ev.Changes()
	require.Error(t, err)
}

func TestChangesEquivalentValuesSkipped(t *testing.T) {
	ev := MutationEvent{
		Operation: domain.AuditOpUpdate,
		Old:       snapshot(map[string]any{"tags": []string{"a", "b"}}),
		New:       snapshot(map[string]any{"tags": []string{"a", "b"}}),
	}
	changes, err := ev.Changes()
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestHandleMutationDerivesActorNameFromClaim(t *testing.T) {
	writeDB, _ := internaldb.OpenTestSQLite(t)
	repo := repository.NewAuditRepo(writeDB)
	ctx := context.Background()

	ev := MutationEvent{
		Operation: domain.AuditOpUpdate,
		Identity:  domain.Identity{UserID: "u-1", Email: "dev@example.com"},
		Old:       snapshot(map[string]any{"status": "draft"}),
		New:       snapshot(map[string]any{"status": "published"}),
	}

	// Default claim records the email.
	w := NewChainWriter(writeDB, repo, nil)
	tx, err := writeDB.BeginTx(ctx, nil)
	require.NoError(t, err)
	entries, err := w.HandleMutation(ctx, tx, ev)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.Len(t, entries, 1)
	assert.Equal(t, "dev@example.com", entries[0].ActorName)

	// A configured claim selects another identity field.
	w = NewChainWriter(writeDB, repo, nil, WithActorClaim("id"))
	tx, err = writeDB.BeginTx(ctx, nil)
	require.NoError(t, err)
	entries, err = w.HandleMutation(ctx, tx, ev)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.Equal(t, "u-1", entries[0].ActorName)

	// An explicit display name always wins.
	ev.ActorName = "Dev"
	tx, err = writeDB.BeginTx(ctx, nil)
	require.NoError(t, err)
	entries, err = w.HandleMutation(ctx, tx, ev)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.Equal(t, "Dev", entries[0].ActorName)
}

func TestHandleMutationAppendsInCallerTransaction(t *testing.T) {
	writeDB, _ := internaldb.OpenTestSQLite(t)
	repo := repository.NewAuditRepo(writeDB)
	w := NewChainWriter(writeDB, repo, nil)
	ctx := context.Background()

	ev := MutationEvent{
		Operation: domain.AuditOpUpdate,
		AccountID: "acct-1",
		Identity:  domain.Identity{UserID: "u-1", Email: "dev@example.com"},
		ActorName: "Dev",
		Meta:      domain.RequestMeta{RequestID: "req-1", IP: "10.0.0.1"},
		Old:       snapshot(map[string]any{"status": "draft"}),
		New:       snapshot(map[string]any{"status": "published"}),
	}

	tx, err := writeDB.BeginTx(ctx, nil)
	require.NoError(t, err)
	entries, err := w.HandleMutation(ctx, tx, ev)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	require.Len(t, entries, 1)
	assert.Equal(t, "Dev", entries[0].ActorName)
	assert.Equal(t, "req-1", entries[0].RequestID)

	stored, total, err := repo.List(ctx, domain.AuditFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, entries[0].Checksum, stored[0].Checksum)
}
