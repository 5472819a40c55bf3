package governance

import (
	"context"

	"basecore/internal/domain"
)

// AuditService provides the read side of the audit chain.
type AuditService struct {
	repo domain.AuditRepository
}

// NewAuditService creates a new AuditService.
func NewAuditService(repo domain.AuditRepository) *AuditService {
	return &AuditService{repo: repo}
}

// List returns a filtered, paginated list of audit entries.
func (s *AuditService) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, int64, error) {
	return s.repo.List(ctx, filter)
}

// VerifyResult reports the outcome of a full-chain verification walk.
type VerifyResult struct {
	Entries  int64  // entries checked
	OK       bool   // true when every checksum and link held
	BrokenAt string // id of the first entry that failed, when !OK
	Reason   string // what failed at BrokenAt
}

// Verify walks the whole chain in order, recomputing every checksum and
// re-checking every previous-hash link. It detects any post-write
// tampering that slipped past the storage triggers.
func (s *AuditService) Verify(ctx context.Context) (*VerifyResult, error) {
	result := &VerifyResult{OK: true}
	var prev *string

	err := s.repo.ScanChain(ctx, func(e *domain.AuditEntry) error {
		result.Entries++
		if !result.OK {
			return nil
		}
		switch {
		case !equalHash(e.PreviousHash, prev):
			result.OK = false
			result.BrokenAt = e.ID
			result.Reason = "previous_hash does not match the preceding entry's checksum"
		case Checksum(e) != e.Checksum:
			result.OK = false
			result.BrokenAt = e.ID
			result.Reason = "stored checksum does not match recomputed checksum"
		}
		prev = &e.Checksum
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func equalHash(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
