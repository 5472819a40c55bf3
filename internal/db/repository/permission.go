package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"basecore/internal/domain"
)

// Compile-time check.
var _ domain.PermissionRepository = (*PermissionRepo)(nil)

// PermissionRepo implements PermissionRepository using SQLite.
type PermissionRepo struct {
	db *sql.DB
}

// NewPermissionRepo creates a new PermissionRepo.
func NewPermissionRepo(db *sql.DB) *PermissionRepo {
	return &PermissionRepo{db: db}
}

const permissionColumns = "id, role, collection, rules, created_at, updated_at"

// Create inserts a new permission.
func (r *PermissionRepo) Create(ctx context.Context, p *domain.Permission) (*domain.Permission, error) {
	rulesJSON, err := json.Marshal(p.Rules)
	if err != nil {
		return nil, fmt.Errorf("marshal rules: %w", err)
	}

	id := newID()
	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO permissions (id, role, collection, rules, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, p.Role, p.Collection, string(rulesJSON), now, now,
	)
	if err != nil {
		return nil, mapDBError(err)
	}
	return r.GetByID(ctx, id)
}

// GetByID returns one permission by id.
func (r *PermissionRepo) GetByID(ctx context.Context, id string) (*domain.Permission, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+permissionColumns+" FROM permissions WHERE id = ?", id)
	return scanPermission(row)
}

// List returns a paginated list of permissions.
func (r *PermissionRepo) List(ctx context.Context, page domain.PageRequest) ([]domain.Permission, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM permissions").Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+permissionColumns+` FROM permissions
		ORDER BY collection, role
		LIMIT ? OFFSET ?`,
		page.Limit(), page.Offset(),
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	perms, err := collectPermissions(rows)
	if err != nil {
		return nil, 0, err
	}
	return perms, total, nil
}

// Update replaces a permission's rule set.
func (r *PermissionRepo) Update(ctx context.Context, id string, req domain.UpdatePermissionRequest) (*domain.Permission, error) {
	if req.Rules == nil {
		return r.GetByID(ctx, id)
	}
	rulesJSON, err := json.Marshal(req.Rules)
	if err != nil {
		return nil, fmt.Errorf("marshal rules: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE permissions SET rules = ?, updated_at = ? WHERE id = ?`,
		string(rulesJSON), time.Now().UTC(), id,
	)
	if err != nil {
		return nil, mapDBError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, domain.ErrNotFound("permission %s not found", id)
	}
	return r.GetByID(ctx, id)
}

// Delete removes a permission.
func (r *PermissionRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM permissions WHERE id = ?", id)
	if err != nil {
		return mapDBError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound("permission %s not found", id)
	}
	return nil
}

// ListForCollection returns permissions matching the collection (exact
// or wildcard) and role (exact or wildcard), ordered stably.
func (r *PermissionRepo) ListForCollection(ctx context.Context, collection, role string) ([]domain.Permission, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+permissionColumns+` FROM permissions
		WHERE (collection = ? OR collection = '*')
		  AND (role = ? OR role = '*')
		ORDER BY created_at, id`,
		collection, role,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPermission(row rowScanner) (*domain.Permission, error) {
	var p domain.Permission
	var rulesJSON string
	err := row.Scan(&p.ID, &p.Role, &p.Collection, &rulesJSON, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	if err := json.Unmarshal([]byte(rulesJSON), &p.Rules); err != nil {
		return nil, fmt.Errorf("unmarshal rules for permission %s: %w", p.ID, err)
	}
	return &p, nil
}

func collectPermissions(rows *sql.Rows) ([]domain.Permission, error) {
	var perms []domain.Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, *p)
	}
	return perms, rows.Err()
}
