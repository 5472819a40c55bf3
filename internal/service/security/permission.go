package security

import (
	"context"

	"basecore/internal/domain"
	"basecore/internal/rules"
)

// PermissionService provides administrator-facing permission management.
// Rule expressions are parsed and macro-expanded at save time so syntax
// errors, unresolved macros, and macro cycles surface to the rule
// author rather than during live access checks.
type PermissionService struct {
	permissions domain.PermissionRepository
	macros      domain.MacroRepository
}

// NewPermissionService creates a new PermissionService.
func NewPermissionService(permissions domain.PermissionRepository, macros domain.MacroRepository) *PermissionService {
	return &PermissionService{permissions: permissions, macros: macros}
}

// Create validates and stores a new permission.
func (s *PermissionService) Create(ctx context.Context, req domain.CreatePermissionRequest) (*domain.Permission, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.validateRules(ctx, &req.Rules); err != nil {
		return nil, err
	}
	return s.permissions.Create(ctx, &domain.Permission{
		Role:       req.Role,
		Collection: req.Collection,
		Rules:      req.Rules,
	})
}

// Get retrieves a permission by id.
func (s *PermissionService) Get(ctx context.Context, id string) (*domain.Permission, error) {
	return s.permissions.GetByID(ctx, id)
}

// List returns a paginated list of permissions.
func (s *PermissionService) List(ctx context.Context, page domain.PageRequest) ([]domain.Permission, int64, error) {
	return s.permissions.List(ctx, page)
}

// Update validates and replaces a permission's rule set.
func (s *PermissionService) Update(ctx context.Context, id string, req domain.UpdatePermissionRequest) (*domain.Permission, error) {
	if req.Rules != nil {
		if err := s.validateRules(ctx, req.Rules); err != nil {
			return nil, err
		}
	}
	return s.permissions.Update(ctx, id, req)
}

// Delete removes a permission.
func (s *PermissionService) Delete(ctx context.Context, id string) error {
	return s.permissions.Delete(ctx, id)
}

// validateRules dry-runs expansion and parsing of every operation rule.
// Query-backed macros are resolved but not executed.
func (s *PermissionService) validateRules(ctx context.Context, rs *domain.RuleSet) error {
	expander := rules.NewExpander(s.macros, dryRunExecutor{})
	for _, op := range domain.Operations {
		r := rs.ForOperation(op)
		if r == nil {
			continue
		}
		expanded, err := expander.Expand(ctx, r.Rule)
		if err != nil {
			return err
		}
		if _, err := rules.Parse(expanded); err != nil {
			return err
		}
	}
	return nil
}

// dryRunExecutor stands in for the execution engine during save-time
// validation: it checks arity and substitutes a placeholder scalar
// without touching storage.
type dryRunExecutor struct{}

func (dryRunExecutor) Execute(_ context.Context, m *domain.Macro, args []string) (any, error) {
	if len(args) != len(m.Parameters) {
		return nil, domain.ErrValidation("macro @%s takes %d arguments, got %d", m.Name, len(m.Parameters), len(args))
	}
	return int64(1), nil
}
