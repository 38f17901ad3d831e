package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-roster-sync/api/swagger"
	"github.com/noah-isme/sma-roster-sync/internal/client"
	"github.com/noah-isme/sma-roster-sync/internal/handler"
	"github.com/noah-isme/sma-roster-sync/internal/middleware"
	"github.com/noah-isme/sma-roster-sync/internal/models"
	"github.com/noah-isme/sma-roster-sync/internal/repository"
	"github.com/noah-isme/sma-roster-sync/internal/service"
	"github.com/noah-isme/sma-roster-sync/pkg/cache"
	"github.com/noah-isme/sma-roster-sync/pkg/config"
	"github.com/noah-isme/sma-roster-sync/pkg/database"
	"github.com/noah-isme/sma-roster-sync/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-roster-sync/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-roster-sync/pkg/middleware/requestid"
	mongodb "github.com/noah-isme/sma-roster-sync/pkg/mongo"
	"github.com/noah-isme/sma-roster-sync/pkg/storage"
)

// @title SMA Roster Sync API
// @version 1.0.0
// @description Draft sync and submission gating for attendance and grade entry.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const (
	janitorInterval = time.Minute
	shutdownTimeout = 15 * time.Second
)

type draftBackend interface {
	Get(ctx context.Context, scope models.DraftScope) ([]byte, error)
	Put(ctx context.Context, scope models.DraftScope, payload []byte, savedAt time.Time) error
	Delete(ctx context.Context, scope models.DraftScope) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := service.NewMetricsService()

	drafts, checks, closeBackend, err := openDraftBackend(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("failed to open draft backend", zap.String("driver", cfg.Drafts.Driver), zap.Error(err))
	}
	defer closeBackend()

	eligibility, err := eligibilityFromConfig(cfg.Grades.IneligibleStates)
	if err != nil {
		logr.Fatal("invalid grade eligibility rule", zap.Error(err))
	}

	roster := client.NewRosterClient(client.Config{
		BaseURL: cfg.RosterService.BaseURL,
		Timeout: cfg.RosterService.Timeout,
	}, metrics, logr.Named("roster_client"))

	validate := validator.New()
	draftStore := service.NewDraftStore(drafts, service.DraftStoreConfig{MaxAge: cfg.Drafts.MaxAge}, metrics, logr.Named("drafts"))
	gate := service.NewPrerequisiteGate(roster, metrics, logr.Named("gate"))
	events := service.NewEventHub(0, logr.Named("events"))
	sessions := service.NewSessionService(service.SessionDeps{
		Roster:      roster,
		Drafts:      draftStore,
		Reconciler:  service.NewRosterReconciler(draftStore, logr.Named("reconciler")),
		Bulk:        service.NewBulkEditor(draftStore, eligibility, logr.Named("bulk")),
		Gate:        gate,
		Coordinator: service.NewSubmissionCoordinator(gate, roster, draftStore, metrics, logr.Named("submission")),
		Events:      events,
	}, service.SessionConfig{
		IdleTTL:  cfg.Sessions.IdleTTL,
		GradeMin: cfg.Grades.Min,
		GradeMax: cfg.Grades.Max,
	}, validate, metrics, logr.Named("sessions"))
	exporter := service.NewExportService(logr.Named("export"), nil, nil)
	auth := service.NewAuthService(service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	go sessions.RunJanitor(ctx, janitorInterval)

	sessionHandler := handler.NewSessionHandler(sessions, exporter)
	eventsHandler := handler.NewEventsHandler(sessions, events, cfg.CORS.AllowedOrigins, logr.Named("ws"))
	metricsHandler := handler.NewMetricsHandler(metrics, checks)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(auth), middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin, models.RoleSuperAdmin))
	api.GET("/metrics/summary", middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin), metricsHandler.Summary)

	sessionRoutes := api.Group("/sessions")
	sessionRoutes.POST("", sessionHandler.Open)
	sessionRoutes.DELETE("/:id", sessionHandler.Close)
	sessionRoutes.PUT("/:id/selection", sessionHandler.SelectKey)
	sessionRoutes.GET("/:id/records", sessionHandler.WorkingSet)
	sessionRoutes.POST("/:id/records/bulk", sessionHandler.BulkEdit)
	sessionRoutes.PATCH("/:id/records/:entityId", sessionHandler.EditRecord)
	sessionRoutes.POST("/:id/submit", sessionHandler.Submit)
	sessionRoutes.DELETE("/:id/draft", sessionHandler.ClearDraft)
	sessionRoutes.GET("/:id/export", sessionHandler.Export)
	sessionRoutes.GET("/:id/events", eventsHandler.Stream)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "draft_driver", cfg.Drafts.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

// openDraftBackend connects the configured draft driver and returns its
// readiness probe and a cleanup func.
func openDraftBackend(ctx context.Context, cfg *config.Config, logr *zap.Logger) (draftBackend, map[string]handler.ReadinessCheck, func(), error) {
	noop := func() {}

	switch cfg.Drafts.Driver {
	case config.DraftDriverMemory:
		logr.Warn("using in-memory draft store, drafts are lost on restart")
		return repository.NewMemoryDraftRepository(cfg.Drafts.KeyPrefix), nil, noop, nil

	case config.DraftDriverFile:
		store, err := storage.NewLocalStorage(cfg.Drafts.FileDir)
		if err != nil {
			return nil, nil, noop, err
		}
		return repository.NewFileDraftRepository(store), nil, noop, nil

	case config.DraftDriverRedis:
		rdb, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, noop, err
		}
		repo := repository.NewRedisDraftRepository(rdb, cfg.Drafts.KeyPrefix)
		checks := map[string]handler.ReadinessCheck{
			"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}
		return repo, checks, func() { _ = repo.Close() }, nil

	case config.DraftDriverPostgres:
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, nil, noop, err
		}
		repo := repository.NewPostgresDraftRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, noop, err
		}
		checks := map[string]handler.ReadinessCheck{"postgres": db.PingContext}
		return repo, checks, func() { _ = db.Close() }, nil

	case config.DraftDriverMongo:
		mc, mdb, err := mongodb.NewDatabase(ctx, cfg.Mongo)
		if err != nil {
			return nil, nil, noop, err
		}
		checks := map[string]handler.ReadinessCheck{
			"mongo": func(ctx context.Context) error { return mc.Ping(ctx, nil) },
		}
		closeFn := func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mc.Disconnect(disconnectCtx)
		}
		return repository.NewMongoDraftRepository(mdb, cfg.Drafts.KeyPrefix), checks, closeFn, nil

	default:
		return nil, nil, noop, fmt.Errorf("unknown draft store driver %q", cfg.Drafts.Driver)
	}
}

func eligibilityFromConfig(states []string) (service.EligibilityPredicate, error) {
	if len(states) == 0 {
		return service.DefaultEligibility(), nil
	}
	parsed := make([]models.AttendanceStatus, 0, len(states))
	for _, raw := range states {
		status, ok := models.ParseAttendanceStatus(raw)
		if !ok {
			return nil, fmt.Errorf("unknown attendance status %q in GRADES_INELIGIBLE_STATES", raw)
		}
		parsed = append(parsed, status)
	}
	return service.IneligibleWhen(parsed...), nil
}
