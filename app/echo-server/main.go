package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpmetrics "splitEngine/app/echo-server/metrics"
	"splitEngine/app/echo-server/router"
	"splitEngine/business/assignment"
	"splitEngine/business/bandit"
	"splitEngine/business/campaign"
	"splitEngine/business/flag"
	"splitEngine/business/identity"
	"splitEngine/business/recorder"
	"splitEngine/business/targeting"
	"splitEngine/internal/middleware"
	"splitEngine/internal/repository/memory"
	psqlRepo "splitEngine/internal/repository/postgres"
	redisRepo "splitEngine/internal/repository/redis"
	"splitEngine/internal/rest"
	"splitEngine/pkg/config"
	"splitEngine/pkg/database"
	"splitEngine/pkg/database/redis"
	"splitEngine/pkg/logger"
	"splitEngine/pkg/metrics"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type stores struct {
	campaigns   campaign.CampaignRepository
	assignments assignment.AssignmentRepository
	events      recorder.EventRepository
	allocations bandit.AllocationRepository
	subjects    targeting.SubjectRepository
	merges      identity.MergeRepository
	close       func()
}

func openStores(cfg *config.Config) (*stores, error) {
	if cfg.Database.Driver == config.StoreDriverMemory {
		db := memory.NewDB()
		subjects := memory.NewSubjectRepository(db)
		return &stores{
			campaigns:   memory.NewCampaignRepository(db),
			assignments: memory.NewAssignmentRepository(db),
			events:      memory.NewEventRepository(db),
			allocations: memory.NewAllocationRepository(db),
			subjects:    subjects,
			merges:      subjects,
			close:       func() {},
		}, nil
	}

	db, err := database.InitPostgres(cfg)
	if err != nil {
		return nil, err
	}
	subjects := psqlRepo.NewSubjectRepository(db)
	return &stores{
		campaigns:   psqlRepo.NewCampaignRepository(db),
		assignments: psqlRepo.NewAssignmentRepository(db),
		events:      psqlRepo.NewEventRepository(db),
		allocations: psqlRepo.NewAllocationRepository(db),
		subjects:    subjects,
		merges:      subjects,
		close: func() {
			if err := database.ClosePostgres(db); err != nil {
				logger.Error("Failed to close database", "error", err)
			}
		},
	}, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.App.Environment)
	defer logger.Sync()
	logger.Info("Starting split engine", "version", cfg.App.Version, "store", cfg.Database.Driver)

	metrics.Init()
	httpmetrics.Init()

	st, err := openStores(cfg)
	if err != nil {
		logger.Fatal("Failed to open store", "error", err)
	}
	defer st.close()

	// Config cache shared across instances when redis is on
	var cache campaign.Cache = memory.NewCampaignCache()
	if cfg.Redis.Enabled {
		client, err := redis.NewRedisClient(cfg)
		if err != nil {
			logger.Fatal("Failed to connect to redis", "error", err)
		}
		defer func() {
			if err := redis.CloseRedisClient(client); err != nil {
				logger.Error("Failed to close redis", "error", err)
			}
		}()
		cache = redisRepo.NewCampaignCache(client)
		logger.Info("Redis config cache enabled")
	}

	banditCfg := bandit.DefaultConfig()
	banditCfg.ExplorationDiscount = cfg.Engine.ExplorationDiscount
	if err := banditCfg.Validate(); err != nil {
		logger.Fatal("Invalid bandit config", "error", err)
	}

	// Init service
	reader := campaign.NewCachedReader(st.campaigns, cache, cfg.Engine.ConfigCacheTTL)
	resolver := targeting.NewResolver(st.subjects)
	recorderService := recorder.NewRecorderService(st.events, st.assignments, reader)
	assignmentService := assignment.NewAssignmentService(reader, st.assignments, resolver, recorderService)
	flagService := flag.NewFlagService(reader, resolver, cfg.Engine.MaxDependencyDepth)
	banditService := bandit.NewBanditService(st.campaigns, recorderService, st.allocations, reader, banditCfg)
	campaignService := campaign.NewCampaignService(st.campaigns, reader)
	identityService := identity.NewIdentityService(st.merges)

	// Init handler
	evaluationHandler := rest.NewEvaluationHandler(assignmentService, flagService, recorderService)
	campaignHandler := rest.NewCampaignHandler(campaignService)
	experimentHandler := rest.NewExperimentHandler(campaignService, assignmentService, banditService, recorderService)
	identityHandler := rest.NewIdentityHandler(identityService)

	// Init echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.HTTPErrorHandler = middleware.ErrorHandler

	// Global middleware
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderXRequestID},
	}))
	e.Use(middleware.TraceMiddleware())
	e.Use(httpmetrics.Middleware())
	e.Use(middleware.TimeoutMiddleware(cfg.Server.RequestTimeout))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})

	// Setup routes
	api := e.Group("/api/v1")
	router.SetEvaluationRoutes(api, evaluationHandler)
	router.SetCampaignRoutes(api, campaignHandler)
	router.SetExperimentRoutes(api, experimentHandler)
	router.SetIdentityRoutes(api, identityHandler)

	// Goroutine server
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		logger.Info("Server starting", "address", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Server stopped")
}
