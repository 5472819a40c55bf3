package governance

import (
	"strings"
	"testing"
	"time"

	"basecore/internal/domain"
)

func sampleEntry() *domain.AuditEntry {
	oldVal := `"draft"`
	newVal := `"published"`
	prev := strings.Repeat("ab12", 16)
	return &domain.AuditEntry{
		ID:           "row-1",
		AccountID:    "acct-1",
		Operation:    domain.AuditOpUpdate,
		TableName:    "posts",
		RecordID:     "rec-1",
		ColumnName:   "status",
		OldValue:     &oldVal,
		NewValue:     &newVal,
		ActorID:      "u-1",
		ActorEmail:   "dev@example.com",
		ActorName:    "Dev",
		IP:           "10.0.0.1",
		UserAgent:    "cli/1.0",
		RequestID:    "req-1",
		OccurredAt:   time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC),
		PreviousHash: &prev,
		Metadata:     map[string]any{"b": 2, "a": 1},
	}
}

func TestChecksumDeterministic(t *testing.T) {
	a, b := sampleEntry(), sampleEntry()
	ca, cb := Checksum(a), Checksum(b)
	if ca != cb {
		t.Fatalf("checksums differ: %s vs %s", ca, cb)
	}
	if len(ca) != 64 {
		t.Errorf("checksum length = %d, want 64 hex chars", len(ca))
	}
}

func TestChecksumIgnoresRowID(t *testing.T) {
	a, b := sampleEntry(), sampleEntry()
	b.ID = "different-row-id"
	if Checksum(a) != Checksum(b) {
		t.Error("checksum must not depend on the generated row id")
	}
}

func TestChecksumSensitiveToEveryField(t *testing.T) {
	base := Checksum(sampleEntry())

	mutations := map[string]func(e *domain.AuditEntry){
		"account_id":        func(e *domain.AuditEntry) { e.AccountID = "other" },
		"operation":         func(e *domain.AuditEntry) { e.Operation = domain.AuditOpDelete },
		"table_name":        func(e *domain.AuditEntry) { e.TableName = "users" },
		"record_id":         func(e *domain.AuditEntry) { e.RecordID = "rec-2" },
		"column_name":       func(e *domain.AuditEntry) { e.ColumnName = "title" },
		"old_value":         func(e *domain.AuditEntry) { e.OldValue = nil },
		"new_value":         func(e *domain.AuditEntry) { e.NewValue = nil },
		"actor_id":          func(e *domain.AuditEntry) { e.ActorID = "u-2" },
		"actor_email":       func(e *domain.AuditEntry) { e.ActorEmail = "x@example.com" },
		"actor_name":        func(e *domain.AuditEntry) { e.ActorName = "Other" },
		"signature_id":      func(e *domain.AuditEntry) { e.SignatureID = "sig-1" },
		"signature_meaning": func(e *domain.AuditEntry) { e.SignatureMeaning = "approved" },
		"ip":                func(e *domain.AuditEntry) { e.IP = "10.0.0.2" },
		"user_agent":        func(e *domain.AuditEntry) { e.UserAgent = "other" },
		"request_id":        func(e *domain.AuditEntry) { e.RequestID = "req-2" },
		"occurred_at":       func(e *domain.AuditEntry) { e.OccurredAt = e.OccurredAt.Add(time.Microsecond) },
		"previous_hash":     func(e *domain.AuditEntry) { e.PreviousHash = nil },
		"metadata":          func(e *domain.AuditEntry) { e.Metadata = map[string]any{"a": 2} },
	}

	for field, mutate := range mutations {
		e := sampleEntry()
		mutate(e)
		if Checksum(e) == base {
			t.Errorf("checksum unchanged after mutating %s", field)
		}
	}
}

func TestChecksumTimezoneInvariant(t *testing.T) {
	a := sampleEntry()
	b := sampleEntry()
	loc := time.FixedZone("UTC+5", 5*3600)
	b.OccurredAt = b.OccurredAt.In(loc)
	if Checksum(a) != Checksum(b) {
		t.Error("checksum must be invariant under timezone representation")
	}
}

func TestChecksumMetadataKeyOrderInvariant(t *testing.T) {
	a := sampleEntry()
	a.Metadata = map[string]any{"x": 1, "y": "two", "z": true}
	b := sampleEntry()
	b.Metadata = map[string]any{"z": true, "y": "two", "x": 1}
	if Checksum(a) != Checksum(b) {
		t.Error("checksum must not depend on metadata key insertion order")
	}
}

func TestChecksumNilAndEmptyMetadataEqual(t *testing.T) {
	a := sampleEntry()
	a.Metadata = nil
	b := sampleEntry()
	b.Metadata = map[string]any{}
	if Checksum(a) != Checksum(b) {
		t.Error("nil and empty metadata must hash identically; the store cannot tell them apart")
	}
}

func TestChecksumNilVersusEmptyValue(t *testing.T) {
	a := sampleEntry()
	a.OldValue = nil
	empty := `""`
	b := sampleEntry()
	b.OldValue = &empty
	if Checksum(a) == Checksum(b) {
		t.Error("NULL and empty-string values must hash differently")
	}
}
