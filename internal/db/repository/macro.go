package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"basecore/internal/domain"
)

// Compile-time checks.
var (
	_ domain.MacroRepository = (*MacroRepo)(nil)
	_ domain.MacroQuerier    = (*MacroRepo)(nil)
)

// MacroRepo implements MacroRepository and MacroQuerier using SQLite.
type MacroRepo struct {
	db *sql.DB
}

// NewMacroRepo creates a new MacroRepo.
func NewMacroRepo(db *sql.DB) *MacroRepo {
	return &MacroRepo{db: db}
}

const macroColumns = "id, name, parameters, body, sql_query, created_by, created_at, updated_at"

// Create inserts a new macro.
func (r *MacroRepo) Create(ctx context.Context, m *domain.Macro) (*domain.Macro, error) {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO macros (id, name, parameters, body, sql_query, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		newID(), m.Name, mustJSONArray(m.Parameters),
		nullString(m.Body), nullString(m.SQLQuery),
		m.CreatedBy, now, now,
	)
	if err != nil {
		return nil, mapDBError(err)
	}
	return r.GetByName(ctx, m.Name)
}

// GetByName returns one macro by its unique name.
func (r *MacroRepo) GetByName(ctx context.Context, name string) (*domain.Macro, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+macroColumns+" FROM macros WHERE name = ?", name)
	m, err := scanMacro(row)
	if err != nil {
		var nf *domain.NotFoundError
		if errors.As(err, &nf) {
			return nil, domain.ErrNotFound("macro %q not found", name)
		}
		return nil, err
	}
	return m, nil
}

// List returns a paginated list of macros.
func (r *MacroRepo) List(ctx context.Context, page domain.PageRequest) ([]domain.Macro, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM macros").Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+macroColumns+` FROM macros ORDER BY name LIMIT ? OFFSET ?`,
		page.Limit(), page.Offset(),
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var macros []domain.Macro
	for rows.Next() {
		m, err := scanMacro(rows)
		if err != nil {
			return nil, 0, err
		}
		macros = append(macros, *m)
	}
	return macros, total, rows.Err()
}

// Update applies partial updates to a macro.
func (r *MacroRepo) Update(ctx context.Context, name string, req domain.UpdateMacroRequest) (*domain.Macro, error) {
	current, err := r.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}

	params := current.Parameters
	if req.Parameters != nil {
		params = req.Parameters
	}
	body := current.Body
	if req.Body != nil {
		body = *req.Body
	}
	query := current.SQLQuery
	if req.SQLQuery != nil {
		query = *req.SQLQuery
	}
	if body != "" && query != "" {
		return nil, domain.ErrValidation("body and sql_query are mutually exclusive")
	}
	if body == "" && query == "" {
		return nil, domain.ErrValidation("one of body or sql_query is required")
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE macros SET parameters = ?, body = ?, sql_query = ?, updated_at = ?
		WHERE name = ?`,
		mustJSONArray(params), nullString(body), nullString(query),
		time.Now().UTC(), name,
	)
	if err != nil {
		return nil, mapDBError(err)
	}
	return r.GetByName(ctx, name)
}

// Delete removes a macro.
func (r *MacroRepo) Delete(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM macros WHERE name = ?", name)
	if err != nil {
		return mapDBError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound("macro %q not found", name)
	}
	return nil
}

// QueryScalar executes a query-backed macro's statement with named
// parameters and returns the single value of its first row.
func (r *MacroRepo) QueryScalar(ctx context.Context, query string, args map[string]any) (any, error) {
	named := make([]any, 0, len(args))
	for name, value := range args {
		named = append(named, sql.Named(name, value))
	}

	var v any
	if err := r.db.QueryRowContext(ctx, query, named...).Scan(&v); err != nil {
		return nil, fmt.Errorf("macro query: %w", err)
	}
	return v, nil
}

func scanMacro(row rowScanner) (*domain.Macro, error) {
	var m domain.Macro
	var paramsJSON string
	var body, query sql.NullString
	err := row.Scan(&m.ID, &m.Name, &paramsJSON, &body, &query, &m.CreatedBy, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	if err := json.Unmarshal([]byte(paramsJSON), &m.Parameters); err != nil {
		return nil, fmt.Errorf("unmarshal parameters for macro %q: %w", m.Name, err)
	}
	m.Body = body.String
	m.SQLQuery = query.String
	return &m, nil
}
