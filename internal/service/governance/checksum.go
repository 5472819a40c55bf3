// Package governance implements the tamper-evident audit chain: entry
// checksums, the two chain writer paths, and chain verification.
package governance

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"basecore/internal/domain"
)

// checksumTimeLayout is the timezone-naive ISO form timestamps are
// normalized to before hashing, keeping the digest independent of
// timezone representation drift.
const checksumTimeLayout = "2006-01-02T15:04:05.000000"

// Checksum canonicalizes an audit entry and returns its SHA-256 hex
// digest. The digest covers every persisted field except the generated
// row id, plus the previous entry's checksum. It is a pure function:
// identical logical input always hashes identically, across both writer
// variants and across processes.
func Checksum(e *domain.AuditEntry) string {
	h := sha256.New()
	writeField(h, "account_id", e.AccountID)
	writeField(h, "operation", e.Operation)
	writeField(h, "table_name", e.TableName)
	writeField(h, "record_id", e.RecordID)
	writeField(h, "column_name", e.ColumnName)
	writeField(h, "old_value", e.OldValue)
	writeField(h, "new_value", e.NewValue)
	writeField(h, "actor_id", e.ActorID)
	writeField(h, "actor_email", e.ActorEmail)
	writeField(h, "actor_name", e.ActorName)
	writeField(h, "signature_id", e.SignatureID)
	writeField(h, "signature_meaning", e.SignatureMeaning)
	writeField(h, "ip", e.IP)
	writeField(h, "user_agent", e.UserAgent)
	writeField(h, "request_id", e.RequestID)
	writeField(h, "occurred_at", normalizeTime(e.OccurredAt))
	writeField(h, "previous_hash", e.PreviousHash)
	// nil and empty metadata canonicalize to one form: the store keeps
	// "{}" for both and scans it back as nil, so hashing them apart
	// would flag an untampered round-tripped entry.
	meta := e.Metadata
	if len(meta) == 0 {
		meta = nil
	}
	writeField(h, "metadata", meta)
	return hex.EncodeToString(h.Sum(nil))
}

// writeField appends one "name=json\n" line to the digest. json.Marshal
// sorts map keys, so metadata serializes deterministically.
func writeField(w io.Writer, name string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		// Only map values can fail here; canonicalize as null.
		b = []byte("null")
	}
	fmt.Fprintf(w, "%s=%s\n", name, b)
}

func normalizeTime(t time.Time) string {
	return t.UTC().Format(checksumTimeLayout)
}
