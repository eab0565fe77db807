package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	gconfig "github.com/goliatone/go-config/config"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-tenant-auth"
	"github.com/goliatone/go-tenant-auth/activitymap"
	"github.com/goliatone/go-tenant-auth/config"
	"github.com/goliatone/go-tenant-auth/migrations"
	"github.com/goliatone/go-tenant-auth/repository"
	"github.com/goliatone/go-tenant-auth/workspace"
)

// App holds the wired components of the server
type App struct {
	config *gconfig.Container[*config.Config]
	logger *glog.BaseLogger
	db     *bun.DB
	redis  *redis.Client
	srv    router.Server[*fiber.App]

	repo          auth.RepositoryManager
	activity      *activitymap.Store
	tokens        *auth.TokenServiceImpl
	authenticator *auth.Authenticator
	approvals     *auth.ApprovalService
	guard         *auth.RouteAuthenticator
	workspace     *workspace.Service
	sweeper       *auth.Sweeper
}

func (a *App) Config() *config.Config {
	return a.config.Raw()
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func main() {
	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(logLevel(os.Getenv("LOG_LEVEL"))),
		glog.WithName("app"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(ctx, lgr.GetLogger("config"))
	if err != nil {
		lgr.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	app := &App{config: cfg, logger: lgr}

	steps := []struct {
		name string
		fn   func(context.Context, *App) error
	}{
		{"persistence", WithPersistence},
		{"redis", WithRedis},
		{"services", WithServices},
		{"admin", WithAdminSeed},
		{"http", WithHTTPServer},
	}
	for _, step := range steps {
		if err := step.fn(ctx, app); err != nil {
			lgr.Error("startup failed", "step", step.name, "error", err)
			os.Exit(1)
		}
	}

	app.sweeper.Start(ctx)

	addr := fmt.Sprintf(":%d", app.Config().App.Port)
	lgr.Info("server listening", "addr", addr, "env", app.Config().App.Env)
	app.srv.Serve(addr)

	sig := WaitExitSignal()
	lgr.Info("shutting down", "signal", sig.String())

	shutdownCtx, stop := context.WithTimeout(context.Background(), app.Config().GetShutdownTimeout())
	defer stop()

	if err := app.srv.Shutdown(shutdownCtx); err != nil {
		lgr.Error("http shutdown failed", "error", err)
	}

	cancel()
	select {
	case <-app.sweeper.Done():
	case <-shutdownCtx.Done():
	}

	if app.redis != nil {
		_ = app.redis.Close()
	}
	if err := app.db.Close(); err != nil {
		lgr.Error("database close failed", "error", err)
	}
}

// WithPersistence opens the database and applies migrations
func WithPersistence(ctx context.Context, app *App) error {
	logger := app.GetLogger("persistence")

	db, err := repository.OpenDB(ctx, app.Config().GetDBConfig())
	if err != nil {
		return err
	}
	app.db = db

	if _, err := migrations.Migrate(ctx, db, logger); err != nil {
		return err
	}

	app.activity = activitymap.NewStore(db, activitymap.WithChannel("api"))
	return nil
}

// WithRedis connects redis when it is configured
func WithRedis(ctx context.Context, app *App) error {
	redisCfg, enabled := app.Config().GetRedisConfig()
	if !enabled {
		app.GetLogger("redis").Info("redis not configured, using database only")
		return nil
	}

	client, err := repository.NewRedisClient(ctx, redisCfg)
	if err != nil {
		return err
	}
	app.redis = client
	return nil
}

// WithServices builds the token, login, approval and workspace services
func WithServices(ctx context.Context, app *App) error {
	cfg := app.Config()
	auth.BcryptCost = cfg.Security.BcryptCost

	managerOpts := []auth.RepositoryManagerOption{}
	authOpts := []auth.AuthenticatorOption{
		auth.WithAuthenticatorLogger(app.GetLogger("login")),
		auth.WithAuthenticatorActivitySink(app.activity),
	}

	if app.redis != nil {
		managerOpts = append(managerOpts, auth.WithManagerBlacklistOptions(
			auth.WithBlacklistCache(repository.NewRedisBlacklistCache(app.redis)),
			auth.WithBlacklistLogger(app.GetLogger("blacklist")),
		))
		authOpts = append(authOpts, auth.WithLoginLimiter(
			repository.NewRedisLoginLimiter(app.redis, cfg.GetLoginMaxAttempts()),
		))
	}

	app.repo = auth.NewRepositoryManager(app.db, managerOpts...)

	app.tokens = auth.NewTokenService(app.repo, cfg,
		auth.WithTokenServiceLogger(app.GetLogger("tokens")),
		auth.WithTokenServiceActivitySink(app.activity),
	)

	app.authenticator = auth.NewAuthenticator(app.repo, app.tokens, cfg, authOpts...)

	notifier := auth.LogNotifier{Logger: app.GetLogger("notifier")}

	app.approvals = auth.NewApprovalService(app.repo,
		auth.WithApprovalLogger(app.GetLogger("approvals")),
		auth.WithApprovalNotifier(notifier),
		auth.WithApprovalActivitySink(app.activity),
	)

	app.guard = auth.NewHTTPAuthenticator(app.tokens,
		auth.WithRouteLogger(app.GetLogger("guard")),
		auth.WithRouteValidationListeners(auth.ActiveAccountListener(app.repo.Users())),
	)

	app.workspace = workspace.NewService(
		workspace.NewManager(app.db),
		app.repo,
		app.approvals,
		workspace.WithLogger(app.GetLogger("workspace")),
		workspace.WithActivitySink(app.activity),
	)

	app.sweeper = auth.NewSweeper(app.tokens, cfg.GetSweepInterval(), app.GetLogger("sweeper"))
	return nil
}

// WithAdminSeed creates the system administrator when one is configured
func WithAdminSeed(ctx context.Context, app *App) error {
	seed, ok := app.Config().GetAdminSeed()
	if !ok {
		return nil
	}

	created, err := auth.SeedAdmin(ctx, app.repo, seed, auth.BcryptHasher{})
	if err != nil {
		return err
	}
	if created {
		app.GetLogger("seed").Info("system administrator created", "email", seed.Email)
	}
	return nil
}

// WithHTTPServer mounts every API on a fiber backed router
func WithHTTPServer(ctx context.Context, app *App) error {
	cfg := app.Config()

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		f := router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:      true,
			EnablePrintRoutes: !cfg.IsProduction(),
			StrictRouting:     false,
		}))
		f.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.App.CORSOrigin,
			AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
			AllowCredentials: cfg.App.CORSOrigin != "*",
		}))
		return f
	})

	srv.Router().WithLogger(app.GetLogger("router"))

	srv.Router().Get("/health", func(c router.Context) error {
		status := "ok"
		code := http.StatusOK
		if err := app.db.PingContext(c.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		return auth.RespondData(c, code, map[string]any{
			"status": status,
			"time":   time.Now().UTC().Format(time.RFC3339),
		}, "")
	})

	authController := auth.NewAuthController(app.repo, app.authenticator, app.guard, cfg,
		auth.WithControllerLogger(app.GetLogger("auth")),
		auth.WithControllerNotifier(auth.LogNotifier{Logger: app.GetLogger("notifier")}),
		auth.WithControllerActivitySink(app.activity),
	)
	auth.RegisterAuthRoutes(srv.Router().Group("/api/v1/auth"), authController)

	api := srv.Router().Group("/api/v1")
	auth.RegisterApprovalRoutes(api, auth.NewApprovalController(app.approvals, app.guard))
	workspace.RegisterRoutes(api, workspace.NewController(app.workspace, app.guard))

	if !cfg.IsProduction() {
		app.GetLogger("config").Debug("effective configuration", "config", print.MaybePrettyJSON(cfg))
	}

	app.srv = srv
	return nil
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}

func logLevel(raw string) glog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return glog.Trace
	case "debug":
		return glog.Debug
	case "warn", "warning":
		return glog.Warn
	case "error":
		return glog.Error
	default:
		return glog.Info
	}
}
