// Package app provides application-level wiring and dependency injection
// for the basecore authorization and audit services.
package app

import (
	"context"
	"database/sql"
	"log/slog"

	"golang.org/x/time/rate"

	"basecore/internal/config"
	"basecore/internal/db/repository"
	"basecore/internal/declarative"
	"basecore/internal/service/governance"
	"basecore/internal/service/macro"
	"basecore/internal/service/security"
)

// Deps holds the external dependencies that main() must provide:
// database handles, config, and the logger.
type Deps struct {
	Cfg     *config.Config
	WriteDB *sql.DB
	ReadDB  *sql.DB
	Logger  *slog.Logger
}

// Services groups the service pointers callers embed into their request
// handling and mutation paths.
type Services struct {
	Authorization *security.AuthorizationService
	Permission    *security.PermissionService
	Macro         *macro.Service
	Audit         *governance.AuditService
	ChainWriter   *governance.ChainWriter
}

// App holds the fully-wired application.
type App struct {
	Services Services
}

// New wires all repositories and services from the provided deps, and
// applies declarative configuration when a directory is configured.
func New(ctx context.Context, deps Deps) (*App, error) {
	cfg := deps.Cfg

	// Repositories. Authorization reads go through the read pool; the
	// audit chain and admin writes go through the single-writer pool.
	permissionRepo := repository.NewPermissionRepo(deps.WriteDB)
	permissionReadRepo := repository.NewPermissionRepo(deps.ReadDB)
	macroRepo := repository.NewMacroRepo(deps.WriteDB)
	macroReadRepo := repository.NewMacroRepo(deps.ReadDB)
	auditRepo := repository.NewAuditRepo(deps.WriteDB)

	// Services.
	authOpts := []security.AuthorizationOption{
		security.WithMacroTimeout(cfg.MacroTimeout),
	}
	if cfg.MacroRateRPS > 0 {
		authOpts = append(authOpts,
			security.WithMacroLimiter(rate.NewLimiter(rate.Limit(cfg.MacroRateRPS), cfg.MacroRateBurst)))
	}
	authSvc := security.NewAuthorizationService(
		permissionReadRepo, macroReadRepo, macroReadRepo,
		deps.Logger.With("component", "authorization"),
		authOpts...,
	)
	permissionSvc := security.NewPermissionService(permissionRepo, macroRepo)
	macroSvc := macro.NewService(macroRepo)
	auditSvc := governance.NewAuditService(repository.NewAuditRepo(deps.ReadDB))
	chainWriter := governance.NewChainWriter(deps.WriteDB, auditRepo,
		deps.Logger.With("component", "audit-chain"),
		governance.WithActorClaim(cfg.AuditActorClaim))

	// Declarative configuration (optional).
	if cfg.DeclarativeDir != "" {
		state, err := declarative.LoadDirectory(cfg.DeclarativeDir)
		if err != nil {
			return nil, err
		}
		applier := declarative.NewApplier(macroSvc, permissionSvc,
			deps.Logger.With("component", "declarative"))
		if err := applier.Apply(ctx, state); err != nil {
			return nil, err
		}
	}

	return &App{
		Services: Services{
			Authorization: authSvc,
			Permission:    permissionSvc,
			Macro:         macroSvc,
			Audit:         auditSvc,
			ChainWriter:   chainWriter,
		},
	}, nil
}
