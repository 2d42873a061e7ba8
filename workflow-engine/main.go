package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ledgerline-labs/ledgerline-go/internal/auditexport"
	"github.com/ledgerline-labs/ledgerline-go/internal/platform/auditlog"
	"github.com/ledgerline-labs/ledgerline-go/internal/platform/auth"
	"github.com/ledgerline-labs/ledgerline-go/internal/platform/env"
	"github.com/ledgerline-labs/ledgerline-go/internal/platform/httpserver"
	"github.com/ledgerline-labs/ledgerline-go/internal/platform/objectstore"
	"github.com/ledgerline-labs/ledgerline-go/internal/platform/postgres"
	repopg "github.com/ledgerline-labs/ledgerline-go/internal/repo/postgres"
	"github.com/ledgerline-labs/ledgerline-go/internal/workflow/action"
	"github.com/ledgerline-labs/ledgerline-go/internal/workflow/engine"
	"github.com/ledgerline-labs/ledgerline-go/internal/workflow/entity"
	"github.com/ledgerline-labs/ledgerline-go/internal/workflow/guard"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("WORKFLOW_ENGINE_HTTP_ADDR", ":8084")
	shutdownTimeout, err := env.Duration("WORKFLOW_ENGINE_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object store config", "error", err)
		os.Exit(2)
	}
	storeClient, err := objectstore.NewMinIOClient(storeCfg)
	if err != nil {
		logger.Error("object store client init failed", "error", err)
		os.Exit(2)
	}
	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := objectstore.EnsureBuckets(startupCtx, storeClient, storeCfg); err != nil {
		cancel()
		logger.Error("object store unavailable", "error", err)
		os.Exit(1)
	}
	cancel()

	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid auth config", "error", err)
		os.Exit(2)
	}
	var authenticator auth.Authenticator
	switch authCfg.Mode {
	case auth.ModeOIDC:
		authenticator, err = auth.NewOIDCAuthenticator(ctx, authCfg)
	case auth.ModeHeaders:
		authenticator, err = auth.NewGatewayHeadersAuthenticator(authCfg.InternalAuthSecret)
	case auth.ModeDev:
		logger.Warn("dev auth mode enabled, all requests share a fixed identity")
		authenticator = auth.NewDevAuthenticator(authCfg)
	}
	if err != nil {
		logger.Error("authenticator init failed", "mode", string(authCfg.Mode), "error", err)
		os.Exit(2)
	}

	var permissions auth.PermissionChecker = auth.AllowAll{}
	if path := strings.TrimSpace(env.String("LEDGERLINE_ROLE_PERMISSIONS_FILE", "")); path != "" {
		permissions, err = auth.LoadRolePermissions(path)
		if err != nil {
			logger.Error("invalid role permissions file", "path", path, "error", err)
			os.Exit(2)
		}
	} else {
		logger.Warn("no role permissions file configured, every permission is granted")
	}

	entityCfgPath := strings.TrimSpace(env.String("LEDGERLINE_ENTITY_CONFIG_FILE", ""))
	if entityCfgPath == "" {
		logger.Error("LEDGERLINE_ENTITY_CONFIG_FILE is required")
		os.Exit(2)
	}
	entityCfg, err := entity.LoadRegistryConfig(entityCfgPath)
	if err != nil {
		logger.Error("invalid entity config", "path", entityCfgPath, "error", err)
		os.Exit(2)
	}
	entities, err := entity.RegistryFromConfig(db, entityCfg)
	if err != nil {
		logger.Error("entity registry init failed", "error", err)
		os.Exit(2)
	}
	logger.Info("entity registry ready", "types", entities.Types())

	guards := guard.NewBuiltinRegistry()

	actions := action.NewRegistry()
	for actionType, impl := range map[string]action.Action{
		"log":          &action.LogAction{Logger: logger},
		"set_field":    &action.SetFieldAction{Registry: entities},
		"record_event": &action.RecordEventAction{DB: db},
		"webhook":      &action.WebhookAction{},
	} {
		if err := actions.Register(actionType, impl); err != nil {
			logger.Error("action registration failed", "action_type", actionType, "error", err)
			os.Exit(2)
		}
	}

	workers, err := env.Int("WORKFLOW_ENGINE_ACTION_WORKERS", 2)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	queueSize, err := env.Int("WORKFLOW_ENGINE_ACTION_QUEUE_SIZE", 256)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	retryDelay, err := env.Duration("WORKFLOW_ENGINE_ACTION_RETRY_DELAY", 5*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	dispatcher := action.NewDispatcher(actions, logger, action.DispatcherConfig{
		Workers:    workers,
		QueueSize:  queueSize,
		RetryDelay: retryDelay,
	})
	dispatcher.Start(ctx)
	defer dispatcher.Close()

	store := repopg.NewStore(db)
	eng, err := engine.New(engine.Options{
		Store:       store,
		Entities:    entities,
		Guards:      guards,
		Actions:     actions,
		Permissions: permissions,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("engine init failed", "error", err)
		os.Exit(2)
	}

	exporter, err := auditexport.New(store, storeClient, storeCfg.BucketArchives)
	if err != nil {
		logger.Error("exporter init failed", "error", err)
		os.Exit(2)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("workflow-engine"))
	mux.HandleFunc(
		"/readyz",
		httpserver.ReadyzWithChecks(
			"workflow-engine",
			httpserver.ReadinessCheck{
				Name: "postgres",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return db.PingContext(checkCtx)
				},
			},
			httpserver.ReadinessCheck{
				Name: "minio",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return objectstore.CheckBuckets(checkCtx, storeClient, storeCfg)
				},
			},
		),
	)

	api := newWorkflowAPI(logger, eng, exporter)
	api.register(mux)
	admin := newAdminAPI(logger, db, store, api)
	admin.register(mux)

	handler := auth.Middleware{
		Logger:        logger,
		Authenticator: authenticator,
		Authorize:     auth.MethodRoleAuthorizer(),
		Audit: func(ctx context.Context, event auth.DenyEvent) error {
			auditCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
			defer cancel()
			return auditlog.InsertAuthDeny(auditCtx, db, "workflow-engine", event)
		},
		SkipPrefixes: []string{"/healthz", "/readyz"},
	}.Wrap(mux)

	cfg := httpserver.Config{
		Service:         "workflow-engine",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}

	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "workflow-engine", handler)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
