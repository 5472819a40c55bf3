package security

import (
	"context"
	"errors"
	"testing"

	"basecore/internal/domain"
)

func newPermissionService(macros map[string]*domain.Macro) (*PermissionService, *fakePermissionRepo) {
	if macros == nil {
		macros = map[string]*domain.Macro{}
	}
	repo := &fakePermissionRepo{}
	return NewPermissionService(repo, &fakeMacroRepo{byName: macros}), repo
}

func createReq(rule string) domain.CreatePermissionRequest {
	rs := domain.RuleSet{}
	rs.SetOperation(domain.OpRead, &domain.OperationRule{Rule: rule, Fields: domain.AllFields()})
	return domain.CreatePermissionRequest{Role: "editor", Collection: "posts", Rules: rs}
}

func TestPermissionCreateValidRule(t *testing.T) {
	svc, repo := newPermissionService(nil)
	p, err := svc.Create(context.Background(), createReq("@owns_record && status = 'active'"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Role != "editor" || len(repo.perms) != 1 {
		t.Errorf("permission = %+v", p)
	}
}

func TestPermissionCreateQueryBackedMacroNotExecuted(t *testing.T) {
	macros := map[string]*domain.Macro{
		"team_of": {Name: "team_of", Parameters: []string{"user"}, SQLQuery: "SELECT 1"},
	}
	svc, _ := newPermissionService(macros)
	// Save-time validation substitutes a placeholder for the query;
	// a valid expression referencing it must be accepted.
	if _, err := svc.Create(context.Background(), createReq("team_id = @team_of('u1')")); err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func TestPermissionCreateRejectsSyntaxError(t *testing.T) {
	svc, repo := newPermissionService(nil)
	_, err := svc.Create(context.Background(), createReq("status = "))
	var syntaxErr *domain.RuleSyntaxError
	if !errors.As(err, &syntaxErr) {
		t.Fatalf("error = %v, want RuleSyntaxError", err)
	}
	if len(repo.perms) != 0 {
		t.Error("invalid permission must not be stored")
	}
}

func TestPermissionCreateRejectsUnresolvedMacro(t *testing.T) {
	svc, _ := newPermissionService(nil)
	_, err := svc.Create(context.Background(), createReq("@no_such_macro"))
	var unresolved *domain.UnresolvedMacroError
	if !errors.As(err, &unresolved) {
		t.Fatalf("error = %v, want UnresolvedMacroError", err)
	}
}

func TestPermissionCreateRejectsMacroCycle(t *testing.T) {
	macros := map[string]*domain.Macro{
		"a": {Name: "a", Body: "@b"},
		"b": {Name: "b", Body: "@a"},
	}
	svc, _ := newPermissionService(macros)
	_, err := svc.Create(context.Background(), createReq("@a"))
	var cycleErr *domain.MacroCycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("error = %v, want MacroCycleError", err)
	}
}

func TestPermissionCreateRejectsEmptyRuleSet(t *testing.T) {
	svc, _ := newPermissionService(nil)
	_, err := svc.Create(context.Background(), domain.CreatePermissionRequest{Role: "editor", Collection: "posts"})
	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
}

func TestPermissionUpdateValidatesRules(t *testing.T) {
	svc, repo := newPermissionService(nil)
	p, err := svc.Create(context.Background(), createReq("@is_public"))
	if err != nil {
		t.Fatal(err)
	}

	bad := domain.RuleSet{}
	bad.SetOperation(domain.OpRead, &domain.OperationRule{Rule: "status = ", Fields: domain.AllFields()})
	if _, err := svc.Update(context.Background(), p.ID, domain.UpdatePermissionRequest{Rules: &bad}); err == nil {
		t.Fatal("expected validation error")
	}

	// The stored rule set is untouched after the failed update.
	stored := repo.perms[0]
	if stored.Rules.Read.Rule != "@is_public" {
		t.Errorf("stored rule = %q", stored.Rules.Read.Rule)
	}
}
