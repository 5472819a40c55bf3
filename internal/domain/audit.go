package domain

import "time"

// Audit operations. Audit rows record data mutations only, so there is
// no read entry.
const (
	AuditOpCreate = "CREATE"
	AuditOpUpdate = "UPDATE"
	AuditOpDelete = "DELETE"
)

// RecordSnapshot is an explicit tagged value capturing one record's
// state at mutation time: the table it lives in and its column values.
type RecordSnapshot struct {
	TableName string
	RecordID  string
	Fields    map[string]any
}

// ColumnChange describes one changed column of one mutated record. It is
// the writer's input; the writer derives the persisted AuditEntry from
// it, attaching chain and checksum fields.
type ColumnChange struct {
	AccountID  string
	Operation  string // CREATE, UPDATE, or DELETE
	TableName  string
	RecordID   string
	ColumnName string
	OldValue   any
	NewValue   any

	ActorID    string
	ActorEmail string
	ActorName  string

	// Electronic-signature attestation, optional.
	SignatureID      string
	SignatureMeaning string

	IP        string
	UserAgent string
	RequestID string

	// OccurredAt defaults to the append time when zero.
	OccurredAt time.Time

	Metadata map[string]any
}

// AuditEntry is one persisted row of the hash-linked audit chain.
// Checksum is a pure function of every other field plus PreviousHash;
// once written the row never changes (enforced by database triggers).
type AuditEntry struct {
	ID         string
	AccountID  string
	Operation  string
	TableName  string
	RecordID   string
	ColumnName string
	OldValue   *string
	NewValue   *string

	ActorID    string
	ActorEmail string
	ActorName  string

	SignatureID      string
	SignatureMeaning string

	IP        string
	UserAgent string
	RequestID string

	OccurredAt   time.Time
	Checksum     string
	PreviousHash *string
	Metadata     map[string]any
}

// AuditFilter narrows audit log listings.
type AuditFilter struct {
	AccountID *string
	TableName *string
	RecordID  *string
	ActorID   *string
	Operation *string
	Page      PageRequest
}
