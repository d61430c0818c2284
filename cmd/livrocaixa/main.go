package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/conectell/livrocaixa/cmd/livrocaixa/cli"
	"github.com/conectell/livrocaixa/internal/app"
	"github.com/conectell/livrocaixa/internal/audit"
	"github.com/conectell/livrocaixa/internal/auth"
	"github.com/conectell/livrocaixa/internal/categories"
	"github.com/conectell/livrocaixa/internal/companies"
	"github.com/conectell/livrocaixa/internal/dashboard"
	"github.com/conectell/livrocaixa/internal/ledger"
	"github.com/conectell/livrocaixa/internal/observability"
	"github.com/conectell/livrocaixa/internal/platform/cache"
	"github.com/conectell/livrocaixa/internal/platform/db"
	"github.com/conectell/livrocaixa/internal/rbac"
	"github.com/conectell/livrocaixa/internal/shared"
	"github.com/conectell/livrocaixa/internal/users"
	"github.com/conectell/livrocaixa/jobs"
	"github.com/conectell/livrocaixa/report"
)

const usage = `usage:
  livrocaixa                         run the HTTP API
  livrocaixa migrate up|down [steps] apply or roll back migrations
  livrocaixa migrate version         print the schema version
  livrocaixa jobs trigger <task>     enqueue ledger:integrity or idempotency:cleanup
  livrocaixa jobs stats              print queue state`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	args := os.Args[1:]
	if len(args) == 0 {
		err = serve(ctx, cfg, logger)
	} else {
		switch args[0] {
		case "migrate":
			err = runMigrate(cfg, args[1:])
		case "jobs":
			err = runJobs(ctx, cfg, args[1:])
		default:
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
	}
	if err != nil {
		logger.Error("livrocaixa", slog.Any("error", err))
		os.Exit(1)
	}
}

func runMigrate(cfg *app.Config, args []string) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	steps := 0
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			return fmt.Errorf("migrate: invalid steps %q", args[1])
		}
		steps = n
	}
	status, err := db.Migrate(cfg.PGDSN, args[0], steps)
	if err != nil {
		return err
	}
	fmt.Printf("version=%d dirty=%t changed=%t\n", status.Version, status.Dirty, status.Changed)
	return nil
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	c := cli.NewJobsCLI(cfg.RedisAddr)
	defer c.Close()
	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return errors.New(usage)
		}
		info, err := c.Trigger(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return nil
	case "stats":
		stats, err := c.InspectQueues()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	default:
		return errors.New(usage)
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	sessionManager := shared.NewSessionManager(redisClient, "livrocaixa_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger(pool)
	idempotency := shared.NewIdempotencyStore(pool)
	policy := rbac.DefaultPolicy()
	rbacMiddleware := rbac.Middleware{Policy: policy, Logger: logger}

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	authService := auth.NewService(auth.NewRepository(pool), auditLogger, logger)
	authService.EnablePasswordReset(auth.PasswordReset{
		Store:    auth.NewResetStore(redisClient, cfg.PasswordResetTTL),
		Mailer:   auth.LogMailer{Logger: logger},
		LinkBase: cfg.PasswordResetURL,
	})
	authenticator := auth.NewAuthenticator(authService, tokens, logger)

	dashboardCache := dashboard.NewCache(redisClient, cfg.DashboardCacheTTL)
	ledgerService := ledger.NewService(ledger.NewRepository(pool), auditLogger, ledger.Options{
		Retry: ledger.RetryPolicy{
			MaxAttempts: cfg.LedgerMaxAttempts,
			BaseDelay:   cfg.LedgerRetryBase,
			MaxDelay:    cfg.LedgerRetryMax,
		},
		Metrics:     ledger.NewMetrics(metrics.Registerer()),
		Invalidator: dashboardCache,
		Logger:      logger,
	})
	dashboardService := dashboard.NewService(ledgerService, dashboardCache, logger)
	categoriesService := categories.NewService(categories.NewRepository(pool), auditLogger, dashboardCache, logger)
	categoriesService.WithUsage(ledgerService)
	usersService := users.NewService(users.NewRepository(pool), auditLogger, logger)
	companiesService := companies.NewService(companies.NewRepository(pool), auditLogger, logger)

	renderer, err := report.NewRenderer(cfg.Location())
	if err != nil {
		return err
	}
	reportService := report.NewService(report.Options{
		Ledger:    ledgerService,
		Converter: report.NewClient(cfg.GotenbergURL),
		Renderer:  renderer,
		Repo:      report.NewRepository(pool),
		Store:     report.NewPDFStore(redisClient, cfg.ReportRetention),
		Audit:     auditLogger,
		Currency:  cfg.DefaultCurrency,
		Logger:    logger,
	})

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer jobClient.Close()
	inspector := asynq.NewInspector(redisOpts)
	defer inspector.Close()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		Authenticator:  authenticator,
		RBACMiddleware: rbacMiddleware,
		Metrics:        metrics,
		HealthChecks: map[string]app.HealthCheck{
			"postgres": pingPostgres(pool),
			"redis":    pingRedis(redisClient),
		},
		AuthHandler:        auth.NewHandler(logger, authService, tokens, sessionManager, csrfManager),
		PermissionsHandler: rbac.NewPermissionsHandler(policy),
		DashboardHandler:   dashboard.NewHandler(logger, dashboardService, rbacMiddleware),
		LedgerHandler:      ledger.NewHandler(logger, ledgerService, idempotency, rbacMiddleware),
		CategoriesHandler:  categories.NewHandler(logger, categoriesService, rbacMiddleware),
		UsersHandler:       users.NewHandler(logger, usersService, rbacMiddleware),
		CompaniesHandler:   companies.NewHandler(logger, companiesService, rbacMiddleware),
		ReportHandler:      report.NewHandler(reportService, jobClient, rbacMiddleware, logger),
		AuditHandler:       audit.NewHandler(logger, audit.NewService(audit.NewRepository(pool)), rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func pingPostgres(pool *pgxpool.Pool) app.HealthCheck {
	return func(ctx context.Context) error { return pool.Ping(ctx) }
}

func pingRedis(client *redis.Client) app.HealthCheck {
	return func(ctx context.Context) error { return cache.Ping(ctx, client) }
}
