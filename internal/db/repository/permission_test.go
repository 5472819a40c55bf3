package repository

import (
	"context"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"basecore/internal/db"
	"basecore/internal/domain"
)

func newPermissionRepo(t *testing.T) *PermissionRepo {
	t.Helper()
	writeDB, _ := db.OpenTestSQLite(t)
	return NewPermissionRepo(writeDB)
}

func readRules(rule string) domain.RuleSet {
	return domain.RuleSet{
		Read: &domain.OperationRule{Rule: rule, Fields: domain.AllFields()},
	}
}

func TestPermissionRepoCRUD(t *testing.T) {
	repo := newPermissionRepo(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, &domain.Permission{
		Role:       "editor",
		Collection: "posts",
		Rules:      readRules("@owns_record"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "editor", created.Role)
	assert.Equal(t, "posts", created.Collection)
	require.NotNil(t, created.Rules.Read)
	assert.Equal(t, "@owns_record", created.Rules.Read.Rule)
	assert.True(t, created.Rules.Read.Fields.Wildcard)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	newRules := domain.RuleSet{
		Read: &domain.OperationRule{Rule: "@is_public", Fields: domain.Fields("title", "summary")},
	}
	updated, err := repo.Update(ctx, created.ID, domain.UpdatePermissionRequest{Rules: &newRules})
	require.NoError(t, err)
	assert.Equal(t, "@is_public", updated.Rules.Read.Rule)
	assert.Equal(t, []string{"title", "summary"}, updated.Rules.Read.Fields.Names)
	assert.False(t, updated.Rules.Read.Fields.Wildcard)

	require.NoError(t, repo.Delete(ctx, created.ID))

	_, err = repo.GetByID(ctx, created.ID)
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestPermissionRepoNotFound(t *testing.T) {
	repo := newPermissionRepo(t)
	ctx := context.Background()

	var nf *domain.NotFoundError

	_, err := repo.GetByID(ctx, "missing")
	require.ErrorAs(t, err, &nf)

	rules := readRules("@is_public")
	_, err = repo.Update(ctx, "missing", domain.UpdatePermissionRequest{Rules: &rules})
	require.ErrorAs(t, err, &nf)

	require.ErrorAs(t, repo.Delete(ctx, "missing"), &nf)
}

func TestPermissionRepoListForCollection(t *testing.T) {
	repo := newPermissionRepo(t)
	ctx := context.Background()

	seed := []struct{ role, collection string }{
		{"editor", "posts"},
		{"viewer", "posts"},
		{"editor", "comments"},
		{"*", "posts"},
		{"editor", "*"},
		{"*", "*"},
	}
	for _, s := range seed {
		_, err := repo.Create(ctx, &domain.Permission{
			Role:       s.role,
			Collection: s.collection,
			Rules:      readRules("@is_public"),
		})
		require.NoError(t, err)
	}

	// Exact role on exact collection plus every wildcard combination.
	perms, err := repo.ListForCollection(ctx, "posts", "editor")
	require.NoError(t, err)
	require.Len(t, perms, 4)
	for _, p := range perms {
		assert.Contains(t, []string{"editor", "*"}, p.Role)
		assert.Contains(t, []string{"posts", "*"}, p.Collection)
	}

	// A role with no exact rows still matches the wildcard rows.
	perms, err = repo.ListForCollection(ctx, "comments", "auditor")
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.Equal(t, "*", perms[0].Role)
	assert.Equal(t, "*", perms[0].Collection)

	perms, err = repo.ListForCollection(ctx, "comments", "editor")
	require.NoError(t, err)
	assert.Len(t, perms, 3)
}

func TestPermissionRepoListPagination(t *testing.T) {
	repo := newPermissionRepo(t)
	ctx := context.Background()

	for _, collection := range []string{"a", "b", "c", "d", "e"} {
		_, err := repo.Create(ctx, &domain.Permission{
			Role:       "editor",
			Collection: collection,
			Rules:      readRules("@is_public"),
		})
		require.NoError(t, err)
	}

	page1, total, err := repo.List(ctx, domain.PageRequest{MaxResults: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	require.Len(t, page1, 2)
	assert.Equal(t, "a", page1[0].Collection)
	assert.Equal(t, "b", page1[1].Collection)

	token := domain.NextPageToken(0, 2, total)
	require.NotEmpty(t, token)

	page2, _, err := repo.List(ctx, domain.PageRequest{MaxResults: 2, PageToken: token})
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, "c", page2[0].Collection)

	lastToken := domain.NextPageToken(2, 2, total)
	page3, _, err := repo.List(ctx, domain.PageRequest{MaxResults: 2, PageToken: lastToken})
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, "e", page3[0].Collection)
	assert.Empty(t, domain.NextPageToken(4, 2, total))
}
