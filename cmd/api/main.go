package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/pimgrid/api/internal/handlers"
	"github.com/pimgrid/api/internal/platform/auth"
	"github.com/pimgrid/api/internal/platform/config"
	"github.com/pimgrid/api/internal/platform/observability"
	"github.com/pimgrid/api/internal/repositories"
	"github.com/pimgrid/api/internal/repositories/memory"
	"github.com/pimgrid/api/internal/repositories/postgres"
	"github.com/pimgrid/api/internal/services"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	registry := memory.NewRegistry()
	defer func() {
		if err := registry.Close(ctx); err != nil {
			logger.Warn("registry close error", zap.Error(err))
		}
	}()

	relations := repositories.RelationStore(registry.Relations())
	readiness := map[string]handlers.ReadinessCheck{}

	if cfg.Database.DSN != "" {
		pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
			DSN:      cfg.Database.DSN,
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer pool.Close()
		relations = postgres.NewRelationStore(pool)
		readiness["postgres"] = func(ctx context.Context) error {
			return pool.Ping(ctx)
		}
		logger.Info("relation store backed by postgres")
	}

	idGen := func() string { return ulid.Make().String() }

	attributeService, err := services.NewAttributeService(services.AttributeServiceDeps{
		Products:   registry.Products(),
		Families:   registry.Families(),
		Attributes: registry.Attributes(),
		Values:     registry.AttributeValues(),
		IDGen:      idGen,
		Logger:     logger.Named("attributes"),
	})
	if err != nil {
		logger.Fatal("failed to build attribute service", zap.Error(err))
	}

	cascadeService, err := services.NewChannelCascadeService(services.ChannelCascadeDeps{
		Products:          registry.Products(),
		Catalogs:          registry.Catalogs(),
		Categories:        registry.Categories(),
		Channels:          registry.Channels(),
		Relations:         relations,
		Policy:            cfg.Catalog.BehaviorOnCatalogChange,
		AllowNonLeafLinks: cfg.Catalog.AllowNonLeafCategoryLinks,
		Logger:            logger.Named("cascade"),
	})
	if err != nil {
		logger.Fatal("failed to build channel cascade service", zap.Error(err))
	}

	productService, err := services.NewProductService(services.ProductServiceDeps{
		Registry:   registry,
		Attributes: attributeService,
		Cascade:    cascadeService,
		IDGen:      idGen,
		Logger:     logger.Named("products"),
	})
	if err != nil {
		logger.Fatal("failed to build product service", zap.Error(err))
	}

	orderingService, err := services.NewOrderingService(services.OrderingServiceDeps{
		Relations: relations,
	})
	if err != nil {
		logger.Fatal("failed to build ordering service", zap.Error(err))
	}

	projector, err := services.NewLocaleProjector(services.LocaleProjectorDeps{
		Values:          registry.AttributeValues(),
		Attributes:      registry.Attributes(),
		Channels:        registry.Channels(),
		Relations:       relations,
		Authorizer:      auth.RoleAuthorizer{},
		InputLanguages:  cfg.Locale.InputLanguages,
		MultilangActive: cfg.Locale.MultilangActive,
	})
	if err != nil {
		logger.Fatal("failed to build locale projector", zap.Error(err))
	}

	associationService, err := services.NewAssociationService(services.AssociationServiceDeps{
		Registry: registry,
		IDGen:    idGen,
		Logger:   logger.Named("associations"),
	})
	if err != nil {
		logger.Fatal("failed to build association service", zap.Error(err))
	}

	relationHandlers := handlers.NewRelationHandlers(cascadeService, orderingService)
	productHandlers := handlers.NewProductHandlers(productService, attributeService, projector, relationHandlers)
	associationHandlers := handlers.NewAssociationHandlers(associationService)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.TraceMiddleware(),
			observability.InjectLoggerMiddleware(logger),
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(logger),
			auth.Middleware(cfg.Auth.JWTSecret),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(readiness)),
		handlers.WithProductRoutes(productHandlers.Routes),
		handlers.WithAssociationRoutes(associationHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("pimgrid api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
