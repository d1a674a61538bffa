package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/leonardojasson-oss/jasson-leads-control/internal/audit"
	audithttp "github.com/leonardojasson-oss/jasson-leads-control/internal/audit/http"
	"github.com/leonardojasson-oss/jasson-leads-control/internal/observability"
	"github.com/leonardojasson-oss/jasson-leads-control/internal/platform/cache"
	"github.com/leonardojasson-oss/jasson-leads-control/internal/rbac"
	"github.com/leonardojasson-oss/jasson-leads-control/internal/users"
	"github.com/leonardojasson-oss/jasson-leads-control/jobs"
)

// API is the assembled HTTP service with the resources it owns.
type API struct {
	Handler http.Handler
	Store   *Store
	Metrics *observability.Metrics

	redis     *redis.Client
	jobClient *jobs.Client
	inspector *asynq.Inspector
	logger    *slog.Logger
}

// NewAPI opens the store and Redis and builds the router. Redis is optional:
// when REDIS_ADDR is empty or unreachable toggles run unguarded and job
// endpoints report an unconfigured queue.
func NewAPI(ctx context.Context, cfg *Config, logger *slog.Logger) (*API, error) {
	store, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	api := &API{Store: store, Metrics: observability.NewMetrics(), logger: logger}

	api.redis, err = cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, toggles run unguarded", slog.Any("error", err))
	}

	permissions := rbac.NewService(store.Permissions,
		rbac.WithGuard(rbac.NewRedisGuard(api.redis, cfg.ToggleGuardTTL, logger)),
		rbac.WithLogger(logger),
		rbac.WithObserver(api.Metrics),
	)
	authz := rbac.Middleware{Resolver: permissions, Logger: logger, Enforce: cfg.AuthzEnforce}

	var jobHandler *jobs.Handler
	if api.redis != nil {
		opts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		api.jobClient = jobs.NewClient(opts)
		api.inspector = asynq.NewInspector(opts)
		jobHandler = jobs.NewHandler(api.inspector, api.jobClient, logger)
	} else {
		jobHandler = jobs.NewHandler(nil, nil, logger)
	}

	api.Handler = NewRouter(RouterParams{
		Logger:             logger,
		Config:             cfg,
		RBACMiddleware:     authz,
		PermissionsHandler: rbac.NewHandler(logger, permissions, authz),
		UsersHandler:       users.NewHandler(logger, users.NewService(store.Permissions, logger, api.Metrics), authz),
		AuditHandler:       audithttp.NewHandler(logger, audit.NewService(store.Audit)),
		JobHandler:         jobHandler,
		Metrics:            api.Metrics,
	})
	return api, nil
}

// Close releases the store, Redis and queue connections.
func (a *API) Close() {
	if a == nil {
		return
	}
	if a.inspector != nil {
		_ = a.inspector.Close()
	}
	if a.jobClient != nil {
		_ = a.jobClient.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis close", slog.Any("error", err))
		}
	}
	a.Store.Close()
}
