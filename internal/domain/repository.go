package domain

import (
	"context"
	"database/sql"
)

// PermissionRepository provides CRUD operations for permissions.
type PermissionRepository interface {
	Create(ctx context.Context, p *Permission) (*Permission, error)
	GetByID(ctx context.Context, id string) (*Permission, error)
	List(ctx context.Context, page PageRequest) ([]Permission, int64, error)
	Update(ctx context.Context, id string, req UpdatePermissionRequest) (*Permission, error)
	Delete(ctx context.Context, id string) error

	// ListForCollection returns permissions whose collection matches the
	// target exactly or via the "*" wildcard, and whose role matches the
	// given role or the "*" wildcard.
	ListForCollection(ctx context.Context, collection, role string) ([]Permission, error)
}

// MacroRepository provides CRUD operations for database-defined macros.
type MacroRepository interface {
	Create(ctx context.Context, m *Macro) (*Macro, error)
	GetByName(ctx context.Context, name string) (*Macro, error)
	List(ctx context.Context, page PageRequest) ([]Macro, int64, error)
	Update(ctx context.Context, name string, req UpdateMacroRequest) (*Macro, error)
	Delete(ctx context.Context, name string) error
}

// MacroQuerier executes the parameterized scalar query of a query-backed
// macro. Implemented by the repository layer against the read pool.
type MacroQuerier interface {
	QueryScalar(ctx context.Context, query string, args map[string]any) (any, error)
}

// AuditRepository provides operations for audit chain entries. Entries
// are insert-only; the storage layer rejects updates and deletes.
type AuditRepository interface {
	// WithTx returns a repository bound to the given transaction, for
	// appends issued from inside a mutating transaction.
	WithTx(tx *sql.Tx) AuditRepository

	// TailChecksum returns the checksum of the newest chain entry, or
	// nil when the chain is empty.
	TailChecksum(ctx context.Context) (*string, error)

	Insert(ctx context.Context, e *AuditEntry) error
	List(ctx context.Context, filter AuditFilter) ([]AuditEntry, int64, error)

	// ScanChain streams every entry in chain order.
	ScanChain(ctx context.Context, fn func(*AuditEntry) error) error
}
