package declarative

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"basecore/internal/domain"
)

// MacroStore is the slice of the macro admin service the applier needs.
type MacroStore interface {
	GetByName(ctx context.Context, name string) (*domain.Macro, error)
	Create(ctx context.Context, req domain.CreateMacroRequest) (*domain.Macro, error)
	Update(ctx context.Context, name string, req domain.UpdateMacroRequest) (*domain.Macro, error)
}

// PermissionStore is the slice of the permission admin service the
// applier needs.
type PermissionStore interface {
	List(ctx context.Context, page domain.PageRequest) ([]domain.Permission, int64, error)
	Create(ctx context.Context, req domain.CreatePermissionRequest) (*domain.Permission, error)
	Update(ctx context.Context, id string, req domain.UpdatePermissionRequest) (*domain.Permission, error)
}

// Applier reconciles a DesiredState into the metadata store. It only
// creates and updates: resources absent from the declarative files are
// left untouched.
type Applier struct {
	macros      MacroStore
	permissions PermissionStore
	logger      *slog.Logger
}

// NewApplier creates an Applier over the admin services.
func NewApplier(macros MacroStore, permissions PermissionStore, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{macros: macros, permissions: permissions, logger: logger}
}

// Apply upserts macros first, then permissions, so rule expressions can
// reference the macros declared alongside them.
func (a *Applier) Apply(ctx context.Context, state *DesiredState) error {
	for i := range state.Macros {
		if err := a.applyMacro(ctx, &state.Macros[i]); err != nil {
			return err
		}
	}
	for i := range state.Permissions {
		if err := a.applyPermission(ctx, &state.Permissions[i]); err != nil {
			return err
		}
	}
	return nil
}

func (a *Applier) applyMacro(ctx context.Context, res *MacroResource) error {
	existing, err := a.macros.GetByName(ctx, res.Name)
	if err != nil {
		var nf *domain.NotFoundError
		if !errors.As(err, &nf) {
			return fmt.Errorf("macro %q: %w", res.Name, err)
		}
		_, err := a.macros.Create(ctx, domain.CreateMacroRequest{
			Name:       res.Name,
			Parameters: res.Parameters,
			Body:       res.Body,
			SQLQuery:   res.SQLQuery,
			CreatedBy:  "declarative",
		})
		if err != nil {
			return fmt.Errorf("macro %q: %w", res.Name, err)
		}
		a.logger.Info("declarative macro created", "name", res.Name)
		return nil
	}

	if macroUpToDate(existing, res) {
		return nil
	}
	req := domain.UpdateMacroRequest{Parameters: res.Parameters}
	if res.Body != "" {
		req.Body = &res.Body
		empty := ""
		req.SQLQuery = &empty
	} else {
		req.SQLQuery = &res.SQLQuery
		empty := ""
		req.Body = &empty
	}
	if _, err := a.macros.Update(ctx, existing.Name, req); err != nil {
		return fmt.Errorf("macro %q: %w", res.Name, err)
	}
	a.logger.Info("declarative macro updated", "name", res.Name)
	return nil
}

func macroUpToDate(m *domain.Macro, res *MacroResource) bool {
	if m.Body != res.Body || m.SQLQuery != res.SQLQuery {
		return false
	}
	if len(m.Parameters) != len(res.Parameters) {
		return false
	}
	for i := range m.Parameters {
		if m.Parameters[i] != res.Parameters[i] {
			return false
		}
	}
	return true
}

func (a *Applier) applyPermission(ctx context.Context, res *PermissionResource) error {
	rules, err := buildRuleSet(res)
	if err != nil {
		return err
	}

	existing, err := a.findPermission(ctx, res.Role, res.Collection)
	if err != nil {
		return err
	}
	if existing == nil {
		_, err := a.permissions.Create(ctx, domain.CreatePermissionRequest{
			Role:       res.Role,
			Collection: res.Collection,
			Rules:      *rules,
		})
		if err != nil {
			return fmt.Errorf("permission %s/%s: %w", res.Role, res.Collection, err)
		}
		a.logger.Info("declarative permission created", "role", res.Role, "collection", res.Collection)
		return nil
	}

	if _, err := a.permissions.Update(ctx, existing.ID, domain.UpdatePermissionRequest{Rules: rules}); err != nil {
		return fmt.Errorf("permission %s/%s: %w", res.Role, res.Collection, err)
	}
	a.logger.Info("declarative permission updated", "role", res.Role, "collection", res.Collection)
	return nil
}

// findPermission scans the permission list for the (role, collection)
// pair. The permission table is small, administrator-curated data.
func (a *Applier) findPermission(ctx context.Context, role, collection string) (*domain.Permission, error) {
	page := domain.PageRequest{MaxResults: domain.MaxMaxResults}
	for {
		perms, total, err := a.permissions.List(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("list permissions: %w", err)
		}
		for i := range perms {
			if perms[i].Role == role && perms[i].Collection == collection {
				return &perms[i], nil
			}
		}
		next := domain.NextPageToken(page.Offset(), page.Limit(), total)
		if next == "" {
			return nil, nil
		}
		page.PageToken = next
	}
}

// buildRuleSet converts the YAML rule map into a RuleSet. A missing or
// ["*"] field list means the wildcard.
func buildRuleSet(res *PermissionResource) (*domain.RuleSet, error) {
	rs := &domain.RuleSet{}
	for key, def := range res.Rules {
		op := domain.Operation(key)
		if !op.Valid() {
			return nil, fmt.Errorf("permission %s/%s: unknown operation %q", res.Role, res.Collection, key)
		}
		fields := domain.AllFields()
		if len(def.Fields) > 0 && !(len(def.Fields) == 1 && def.Fields[0] == "*") {
			fields = domain.Fields(def.Fields...)
		}
		rs.SetOperation(op, &domain.OperationRule{Rule: def.Rule, Fields: fields})
	}
	return rs, nil
}
