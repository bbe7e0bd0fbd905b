package app

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lewisdonovan/isleno-sub001/internal/clients"
	"github.com/lewisdonovan/isleno-sub001/internal/config"
	httpserver "github.com/lewisdonovan/isleno-sub001/internal/http"
	"github.com/lewisdonovan/isleno-sub001/internal/http/handlers"
	"github.com/lewisdonovan/isleno-sub001/internal/http/middleware"
	"github.com/lewisdonovan/isleno-sub001/internal/ledger/storage"
	"github.com/lewisdonovan/isleno-sub001/internal/repository"
	"github.com/lewisdonovan/isleno-sub001/internal/service"
	"github.com/lewisdonovan/isleno-sub001/internal/session"
	libdb "github.com/lewisdonovan/isleno-sub001/libs/db"
	libredis "github.com/lewisdonovan/isleno-sub001/libs/redis"
)

// App wires budget-service dependencies.
type App struct {
	server      *httpserver.Server
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

// New constructs the application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	sqlDB, err := libdb.NewPostgresDB(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	// Ledger persistence is best-effort: without redis the sessions simply
	// live in memory for the process lifetime.
	var redisClient *redis.Client
	var ledgerStore storage.Store
	if cfg.Redis.Addr != "" {
		redisClient, err = libredis.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("redis unavailable, session ledgers will not persist", zap.Error(err))
		} else {
			ledgerStore = storage.NewRedisStore(redisClient, cfg.LedgerTTL())
		}
	}

	erpClient := clients.NewERPClient(cfg.ERP.BaseURL, cfg.ERPTimeout(), logger)
	permRepo := repository.NewPermissionRepository(sqlDB)
	impactService := service.NewImpactService(erpClient, permRepo, logger)
	sessions := session.NewManager(ledgerStore, logger)

	impactHandler := handlers.NewImpactHandler(impactService, logger)
	sessionHandler := handlers.NewSessionHandler(sessions, impactService, logger)
	streamHandler := handlers.NewImpactStreamHandler(sessions, logger)

	routes := httpserver.Routes{
		ImpactByAccount:      impactHandler.HandleByAccount,
		ImpactByConstruction: impactHandler.HandleByConstruction,
		ImpactByDepartment:   impactHandler.HandleByDepartment,
		RecordApproval:       sessionHandler.HandleRecordApproval,
		IsApproved:           sessionHandler.HandleIsApproved,
		SessionStats:         sessionHandler.HandleStats,
		SessionClear:         sessionHandler.HandleClear,
		SessionImpact:        sessionHandler.HandleImpact,
		ImpactStream:         streamHandler.HandleStream,
		Health:               handlers.NewHealthHandler(),
	}

	auth := middleware.AuthMiddleware(cfg.Auth.JWTSecret)
	apiMiddleware := func(next http.Handler) http.Handler {
		return auth(middleware.SessionMiddleware(next))
	}

	router := httpserver.NewRouter(routes, apiMiddleware)
	server := httpserver.NewServer(cfg.HTTPAddress(), router, logger)

	return &App{
		server:      server,
		db:          sqlDB,
		redisClient: redisClient,
		logger:      logger,
	}, nil
}

// Run starts HTTP server.
func (a *App) Run(ctx context.Context) error {
	return a.server.Run(ctx)
}

// Close releases resources.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
