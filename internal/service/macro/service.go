// Package macro implements administrator-facing macro management.
package macro

import (
	"context"
	"errors"

	"basecore/internal/domain"
	"basecore/internal/rules"
)

// Service manages database-defined macros. Built-in macro names are
// reserved and cannot be created, replaced, or deleted. Textual bodies
// are cycle-checked at save time.
type Service struct {
	repo domain.MacroRepository
}

// NewService creates a new macro Service.
func NewService(repo domain.MacroRepository) *Service {
	return &Service{repo: repo}
}

// Create validates and stores a new macro.
func (s *Service) Create(ctx context.Context, req domain.CreateMacroRequest) (*domain.Macro, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if rules.IsBuiltin(req.Name) {
		return nil, domain.ErrConflict("macro name %q is reserved for a built-in", req.Name)
	}
	m := &domain.Macro{
		Name:       req.Name,
		Parameters: req.Parameters,
		Body:       req.Body,
		SQLQuery:   req.SQLQuery,
		CreatedBy:  req.CreatedBy,
	}
	if err := s.checkCycle(ctx, m); err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, m)
}

// GetByName retrieves a macro by its unique name.
func (s *Service) GetByName(ctx context.Context, name string) (*domain.Macro, error) {
	return s.repo.GetByName(ctx, name)
}

// List returns a paginated list of macros.
func (s *Service) List(ctx context.Context, page domain.PageRequest) ([]domain.Macro, int64, error) {
	return s.repo.List(ctx, page)
}

// Update applies a partial update to a macro, keyed by name. The merged
// definition is cycle-checked before anything is persisted, so a
// rejected update leaves the stored macro untouched.
func (s *Service) Update(ctx context.Context, name string, req domain.UpdateMacroRequest) (*domain.Macro, error) {
	current, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}

	pending := *current
	if req.Parameters != nil {
		pending.Parameters = req.Parameters
	}
	if req.Body != nil {
		pending.Body = *req.Body
	}
	if req.SQLQuery != nil {
		pending.SQLQuery = *req.SQLQuery
	}
	if err := s.checkCycle(ctx, &pending); err != nil {
		return nil, err
	}
	return s.repo.Update(ctx, name, req)
}

// Delete removes a macro. Built-ins are compiled in and cannot be
// deleted.
func (s *Service) Delete(ctx context.Context, name string) error {
	if rules.IsBuiltin(name) {
		return domain.ErrConflict("macro %q is a built-in", name)
	}
	return s.repo.Delete(ctx, name)
}

// checkCycle dry-expands the macro's textual body so a self- or
// mutually-recursive definition fails at save time instead of during an
// authorization check. Query-backed macros have nothing to expand.
func (s *Service) checkCycle(ctx context.Context, m *domain.Macro) error {
	if m.QueryBacked() {
		return nil
	}
	expander := rules.NewExpander(preview{repo: s.repo, pending: m}, noExec{})
	_, err := expander.Expand(ctx, "@"+m.Name+callArgs(len(m.Parameters)))
	var unresolved *domain.UnresolvedMacroError
	if errors.As(err, &unresolved) {
		// References to macros that do not exist yet are allowed;
		// they fail at evaluation time if still missing.
		return nil
	}
	return err
}

// callArgs renders a placeholder argument list of the given arity.
func callArgs(n int) string {
	if n == 0 {
		return ""
	}
	out := "("
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ", "
		}
		out += "0"
	}
	return out + ")"
}

// preview resolves macro lookups against the repository but serves the
// not-yet-persisted definition for its own name, so Create can detect
// cycles before the row exists.
type preview struct {
	repo    domain.MacroRepository
	pending *domain.Macro
}

func (p preview) GetByName(ctx context.Context, name string) (*domain.Macro, error) {
	if name == p.pending.Name {
		return p.pending, nil
	}
	return p.repo.GetByName(ctx, name)
}

// noExec substitutes a placeholder for query-backed macros reached
// during cycle checking; they cannot participate in textual cycles.
type noExec struct{}

func (noExec) Execute(_ context.Context, m *domain.Macro, args []string) (any, error) {
	if len(args) != len(m.Parameters) {
		return nil, domain.ErrValidation("macro @%s takes %d arguments, got %d", m.Name, len(m.Parameters), len(args))
	}
	return int64(1), nil
}
