// Package security implements authorization evaluation and permission
// administration.
package security

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"basecore/internal/domain"
	"basecore/internal/rules"
)

// AuthorizationService evaluates permission rules into executable
// filters. It holds no per-request state: macro memoization lives in a
// fresh execution engine per evaluation.
type AuthorizationService struct {
	permissions domain.PermissionRepository
	macros      domain.MacroRepository
	querier     domain.MacroQuerier
	limiter     *rate.Limiter // shared cap on macro query load, optional
	timeout     time.Duration
	logger      *slog.Logger
}

// AuthorizationOption configures an AuthorizationService.
type AuthorizationOption func(*AuthorizationService)

// WithMacroLimiter caps query-backed macro executions across all
// evaluations served by this instance.
func WithMacroLimiter(l *rate.Limiter) AuthorizationOption {
	return func(s *AuthorizationService) { s.limiter = l }
}

// WithMacroTimeout overrides the per-execution macro timeout. Intended
// for tests.
func WithMacroTimeout(d time.Duration) AuthorizationOption {
	return func(s *AuthorizationService) { s.timeout = d }
}

// NewAuthorizationService creates an AuthorizationService backed by
// domain repositories.
func NewAuthorizationService(
	permissions domain.PermissionRepository,
	macros domain.MacroRepository,
	querier domain.MacroQuerier,
	logger *slog.Logger,
	opts ...AuthorizationOption,
) *AuthorizationService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &AuthorizationService{
		permissions: permissions,
		macros:      macros,
		querier:     querier,
		timeout:     rules.DefaultMacroTimeout,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authorize evaluates every permission row matching (collection,
// operation) for the identity's role and returns the OR-combined
// filter.
//
// Absence of a matching rule is a clean denial (AccessDeniedError).
// Any expansion, execution, or compilation failure is reported as an
// AuthorizationEvaluationError: it indicates misconfiguration, and is
// never converted into a denial or an allow.
func (s *AuthorizationService) Authorize(ctx context.Context, id domain.Identity, collection string, op domain.Operation) (*domain.RuleFilter, error) {
	if !op.Valid() {
		return nil, domain.ErrValidation("invalid operation %q", op)
	}

	perms, err := s.permissions.ListForCollection(ctx, collection, id.Role)
	if err != nil {
		return nil, &domain.AuthorizationEvaluationError{Collection: collection, Operation: op, Err: err}
	}

	var matched []*domain.OperationRule
	for i := range perms {
		if r := perms[i].Rules.ForOperation(op); r != nil {
			matched = append(matched, r)
		}
	}
	if len(matched) == 0 {
		return nil, domain.ErrAccessDenied("no permission grants %s on %s", op, collection)
	}

	// Engine per evaluation: the memo cache must never outlive one
	// authorization check.
	engineOpts := []rules.EngineOption{rules.WithTimeout(s.timeout)}
	if s.limiter != nil {
		engineOpts = append(engineOpts, rules.WithLimiter(s.limiter))
	}
	expander := rules.NewExpander(s.macros, rules.NewEngine(s.querier, engineOpts...)).WithIdentity(id)

	params := rules.NewParams()
	predicate := ""
	fields := domain.FieldList{}

	for _, r := range matched {
		expanded, err := expander.Expand(ctx, r.Rule)
		if err != nil {
			return nil, &domain.AuthorizationEvaluationError{Collection: collection, Operation: op, Err: err}
		}
		expr, err := rules.Parse(expanded)
		if err != nil {
			return nil, &domain.AuthorizationEvaluationError{Collection: collection, Operation: op, Err: err}
		}
		pred, err := rules.Compile(expr, id, params)
		if err != nil {
			return nil, &domain.AuthorizationEvaluationError{Collection: collection, Operation: op, Err: err}
		}

		if predicate == "" {
			predicate = pred
		} else {
			predicate = "(" + predicate + " OR " + pred + ")"
		}
		fields = fields.Union(r.Fields)
	}

	s.logger.Debug("authorization evaluated",
		"collection", collection,
		"operation", string(op),
		"rules", len(matched),
		"role", id.Role)

	return &domain.RuleFilter{
		Predicate: predicate,
		Params:    params.Values(),
		Fields:    fields,
	}, nil
}
