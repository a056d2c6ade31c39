// Package app is the composition root: it wires every domain package
// into the HTTP/WS surface and dispatches on run mode.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/podexhq/coordinator/internal/config"
	"github.com/podexhq/coordinator/internal/httpserver"
	"github.com/podexhq/coordinator/internal/platform"
	"github.com/podexhq/coordinator/internal/telemetry"
	"github.com/podexhq/coordinator/pkg/deviceauth"
	"github.com/podexhq/coordinator/pkg/dockerhost"
	"github.com/podexhq/coordinator/pkg/notify"
	"github.com/podexhq/coordinator/pkg/permission"
	"github.com/podexhq/coordinator/pkg/placement"
	"github.com/podexhq/coordinator/pkg/realtime"
	"github.com/podexhq/coordinator/pkg/taskqueue"
	"github.com/podexhq/coordinator/pkg/tier"
	"github.com/podexhq/coordinator/pkg/workspace"
)

// Run reads config, connects to infrastructure, and starts the
// appropriate mode (api, worker, or migrate).
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("starting coordinator", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := prometheus.NewRegistry()
	metricsReg.MustRegister(httpserver.HTTPRequestDuration())
	metricsReg.MustRegister(telemetry.All()...)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg)
	case "worker":
		return runWorker(ctx, cfg, logger, rdb)
	case "migrate":
		logger.Info("migrate mode: migrations already applied, exiting")
		return nil
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// deps bundles the domain components runAPI and runWorker both need,
// so each constructs its own deps without duplicating wiring logic.
type deps struct {
	catalog      *tier.Catalog
	hostRegistry *placement.HostRegistry
	router       *dockerhost.Router
	wsStore      *workspace.RedisStore
	orch         *workspace.Orchestrator
	broker       *permission.Broker
	auditSink    *permission.RedisAuditSink
	auditWriter  *permission.AuditWriter
	allowlist    *permission.AllowlistStore
	hooks        *permission.HookExecutor
	queue        *taskqueue.Queue
	sweeper      *taskqueue.Sweeper
	hub          *realtime.Hub
	codes        *deviceauth.CodeStore
	tokens       *deviceauth.TokenManager
	blacklist    *deviceauth.Blacklist
	sessions     *deviceauth.SessionStore
	limiter      *deviceauth.PollLimiter
	pods         *deviceauth.LocalPodStore
	notifier     *notify.Notifier
}

func buildDeps(cfg *config.Config, logger *slog.Logger, rdb *redis.Client) (*deps, error) {
	catalog, err := tier.LoadCatalog(logger, cfg.TierCatalogPath)
	if err != nil {
		return nil, fmt.Errorf("loading tier catalog: %w", err)
	}

	notifier := notify.NewNotifier(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)

	router := dockerhost.NewRouter(func(hostID string) {
		telemetry.DockerCircuitOpenTotal.WithLabelValues(hostID).Inc()
		logger.Warn("docker backend circuit tripped open", "host_id", hostID)
		if err := notifier.NotifyHostOffline(context.Background(), hostID, hostID, "circuit breaker tripped open"); err != nil {
			logger.Error("posting host-offline notification", "error", err)
		}
	})

	hub := realtime.NewHub(logger)

	wsStore := workspace.NewRedisStore(rdb)
	hostRegistry := placement.NewHostRegistry(rdb, func(ctx context.Context, hostID string) (float64, int, error) {
		workspaces, err := wsStore.ListByHost(ctx, hostID)
		if err != nil {
			return 0, 0, err
		}
		var cpu float64
		var memMB int
		for _, ws := range workspaces {
			if ws.Status == workspace.StatusDeleted {
				continue
			}
			cpu += ws.Hardware.VCPU
			memMB += ws.Hardware.MemoryMB
		}
		return cpu, memMB, nil
	}, logger)

	orch := workspace.NewOrchestrator(wsStore, hostRegistry, router, catalog, logger)

	sessionSecret := cfg.SessionSecret
	if sessionSecret == "" {
		sessionSecret = deviceauth.GenerateDevSecret()
		logger.Info("device auth: using auto-generated dev secret (set PODEX_SESSION_SECRET in production)")
	}
	tokens, err := deviceauth.NewTokenManager(sessionSecret)
	if err != nil {
		return nil, fmt.Errorf("creating token manager: %w", err)
	}

	blacklist := deviceauth.NewBlacklist(rdb)
	sessions := deviceauth.NewSessionStore(rdb, blacklist)
	limiter := deviceauth.NewPollLimiter(rdb, cfg.DevicePollFloor)
	pods := deviceauth.NewLocalPodStore(rdb)
	codes := deviceauth.NewCodeStore(rdb)

	auditSink := permission.NewRedisAuditSink(rdb)
	auditWriter := permission.NewAuditWriter(auditSink, logger)
	allowlist := permission.NewAllowlistStore(rdb)
	broker := permission.NewBroker(cfg.ApprovalTimeout)
	hooks := permission.NewHookExecutor()

	queue := taskqueue.NewQueue(rdb, logger, cfg.TaskVisibilityTimeout)
	sweeper := taskqueue.NewSweeper(queue, cfg.TaskSweepInterval)

	return &deps{
		catalog:      catalog,
		hostRegistry: hostRegistry,
		router:       router,
		wsStore:      wsStore,
		orch:         orch,
		broker:       broker,
		auditSink:    auditSink,
		auditWriter:  auditWriter,
		allowlist:    allowlist,
		hooks:        hooks,
		queue:        queue,
		sweeper:      sweeper,
		hub:          hub,
		codes:        codes,
		tokens:       tokens,
		blacklist:    blacklist,
		sessions:     sessions,
		limiter:      limiter,
		pods:         pods,
		notifier:     notifier,
	}, nil
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	d, err := buildDeps(cfg, logger, rdb)
	if err != nil {
		return err
	}

	d.auditWriter.Start(ctx)
	defer d.auditWriter.Close()
	go d.broker.Run(ctx, cfg.ApprovalTimeout/2)
	go func() {
		if err := d.sweeper.Run(ctx); err != nil {
			logger.Error("task queue sweeper stopped", "error", err)
		}
	}()

	authMW := deviceauth.HTTPMiddleware(d.tokens, d.blacklist)
	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg, httpserver.AuthMiddleware(authMW))

	verificationURI := fmt.Sprintf("http://%s/device", cfg.ListenAddr())
	authHandler := deviceauth.NewHandler(d.codes, d.tokens, d.blacklist, d.sessions, d.limiter, d.pods, verificationURI, logger)
	srv.Router.Mount("/auth", authHandler.PublicRoutes())
	srv.APIRouter.Mount("/auth", authHandler.Routes())

	workspaceHandler := workspace.NewHandler(d.orch, logger)
	srv.APIRouter.Mount("/workspaces", workspaceHandler.Routes())

	taskHandler := taskqueue.NewHandler(d.queue, logger)
	srv.APIRouter.Mount("/sessions", taskHandler.Routes())

	tierHandler := tier.NewHandler(d.catalog, logger)
	srv.APIRouter.Mount("/tiers", tierHandler.Routes())

	categorizer := permission.DefaultCategorizer()
	permissionHandler := permission.NewHandler(categorizer, d.broker, d.auditWriter, d.allowlist, logger)
	srv.APIRouter.Mount("/permissions", permissionHandler.Routes())

	realtimeAuth := deviceauth.NewAuthenticator(d.tokens, d.blacklist, d.pods)
	realtimeSrv := realtime.NewServer(d.hub, realtimeAuth, logger)
	for _, ns := range []realtime.Namespace{
		realtime.NamespaceLocalPod,
		realtime.NamespaceSession,
		realtime.NamespaceTerminal,
		realtime.NamespaceYjs,
		realtime.NamespaceVoice,
	} {
		srv.WSRouter.Get(string(ns), realtimeSrv.Handle(ns))
	}

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, rdb *redis.Client) error {
	d, err := buildDeps(cfg, logger, rdb)
	if err != nil {
		return err
	}

	logger.Info("worker started")
	go d.broker.Run(ctx, cfg.ApprovalTimeout/2)

	return d.sweeper.Run(ctx)
}
